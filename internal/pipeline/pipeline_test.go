package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type countingRunner struct {
	calls  atomic.Int64
	err    error
	failN  int64
	result int
}

func (c *countingRunner) RunOnce(context.Context, time.Time) (int, error) {
	n := c.calls.Add(1)
	if c.err != nil && n <= c.failN {
		return 0, c.err
	}
	return c.result, nil
}

func TestArchiverSweepsOnInterval(t *testing.T) {
	runner := &countingRunner{result: 3}
	arch := NewArchiver(runner, 10*time.Millisecond, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Millisecond)
	defer cancel()

	err := arch.RunLoop(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.GreaterOrEqual(t, runner.calls.Load(), int64(2))
}

func TestArchiverKeepsSweepingAfterFailure(t *testing.T) {
	runner := &countingRunner{err: errors.New("s3 down"), failN: 2}
	arch := NewArchiver(runner, 10*time.Millisecond, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	err := arch.RunLoop(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.GreaterOrEqual(t, runner.calls.Load(), int64(3))
}

func TestOrchestratorCleanShutdown(t *testing.T) {
	orch := NewOrchestrator(testLogger())

	var started atomic.Int64
	for _, name := range []string{"engine", "scanner"} {
		orch.Add(name, func(ctx context.Context) error {
			started.Add(1)
			<-ctx.Done()
			return ctx.Err()
		})
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		for started.Load() < 2 {
			time.Sleep(time.Millisecond)
		}
		cancel()
	}()

	require.NoError(t, orch.Run(ctx))
	require.Equal(t, int64(2), started.Load())
}

func TestOrchestratorLoopFailureStopsOthers(t *testing.T) {
	orch := NewOrchestrator(testLogger())

	boom := errors.New("queue wedged")
	orch.Add("engine", func(context.Context) error {
		return boom
	})

	otherStopped := make(chan struct{})
	orch.Add("scanner", func(ctx context.Context) error {
		<-ctx.Done()
		close(otherStopped)
		return ctx.Err()
	})

	err := orch.Run(context.Background())
	require.ErrorIs(t, err, boom)
	require.ErrorContains(t, err, "engine")

	select {
	case <-otherStopped:
	case <-time.After(time.Second):
		t.Fatal("second loop was not cancelled")
	}
}

func TestOrchestratorNoLoops(t *testing.T) {
	orch := NewOrchestrator(testLogger())
	require.NoError(t, orch.Run(context.Background()))
}
