// Package pipeline runs the daemon's periodic background loops and ties them
// together under a single lifecycle.
package pipeline

import (
	"context"
	"log/slog"
	"time"
)

// ArchiveRunner executes one archival sweep of everything older than the
// cutoff. Implemented by the S3 journal archiver.
type ArchiveRunner interface {
	RunOnce(ctx context.Context, before time.Time) (int, error)
}

// Archiver drives periodic journal archival.
type Archiver struct {
	runner   ArchiveRunner
	interval time.Duration
	logger   *slog.Logger
}

// NewArchiver creates an Archiver sweeping on the given interval.
func NewArchiver(runner ArchiveRunner, interval time.Duration, logger *slog.Logger) *Archiver {
	return &Archiver{
		runner:   runner,
		interval: interval,
		logger:   logger,
	}
}

// RunLoop sweeps on the interval until ctx is cancelled. The first sweep
// happens after one full interval so startup is not serialized behind S3. A
// failed sweep is logged and retried on the next tick.
func (a *Archiver) RunLoop(ctx context.Context) error {
	a.logger.Info("archiver started", slog.Duration("interval", a.interval))

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("archiver stopped")
			return ctx.Err()
		case <-ticker.C:
			count, err := a.runner.RunOnce(ctx, time.Now().UTC())
			if err != nil {
				a.logger.Error("archive sweep failed", slog.String("error", err.Error()))
				continue
			}
			if count > 0 {
				a.logger.Info("archive sweep complete", slog.Int("records", count))
			}
		}
	}
}
