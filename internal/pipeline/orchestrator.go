package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// Orchestrator runs the daemon's long-lived loops (engine queue, paper
// scanner, archiver) as one errgroup. Which loops exist depends on the run
// mode, so they are registered by name rather than held as fixed fields.
type Orchestrator struct {
	loops  []namedLoop
	logger *slog.Logger
}

type namedLoop struct {
	name string
	run  func(ctx context.Context) error
}

// NewOrchestrator creates an empty Orchestrator.
func NewOrchestrator(logger *slog.Logger) *Orchestrator {
	return &Orchestrator{logger: logger}
}

// Add registers a loop. run must block until its work is done or ctx is
// cancelled.
func (o *Orchestrator) Add(name string, run func(ctx context.Context) error) {
	o.loops = append(o.loops, namedLoop{name: name, run: run})
}

// Run starts every registered loop as a goroutine and blocks until all have
// returned. A loop failing with a non-context error cancels the shared
// context, stopping the others; context cancellation itself is a clean
// shutdown.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.Info("orchestrator starting", slog.Int("loops", len(o.loops)))

	g, ctx := errgroup.WithContext(ctx)

	for _, l := range o.loops {
		g.Go(func() error {
			o.logger.Info("starting loop", slog.String("loop", l.name))
			err := l.run(ctx)
			if ctx.Err() != nil {
				return nil // clean shutdown
			}
			if err != nil {
				return fmt.Errorf("%s: %w", l.name, err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		o.logger.Error("orchestrator stopped with error", slog.String("error", err.Error()))
		return err
	}

	o.logger.Info("orchestrator stopped cleanly")
	return nil
}
