// Package supervisor implements the process lifecycle that owns every stage
// worker and the composite pipeline: setup, a run loop, teardown on signal.
package supervisor

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// Program is the lifecycle contract a supervisor drives: Setup acquires
// resources (subscribe to topics, spawn child processes), RunLoop blocks
// until ctx is canceled or the work is naturally exhausted, Teardown
// releases what Setup acquired. Single-stage workers use Setup to subscribe
// to their topics; the composite ETL program uses Setup to spawn one process
// per stage.
type Program interface {
	Setup() error
	RunLoop(ctx context.Context) error
	Teardown() error
}

// MainControlProgram drives one Program's lifecycle, installing SIGINT/
// SIGTERM handlers that call Teardown and cancel RunLoop's context on the
// first signal. signal.Stop on return is the Go analogue of the original's
// save-and-restore of prior signal.signal handlers: once Run returns,
// SIGINT/SIGTERM revert to Go's default behavior for this process.
type MainControlProgram struct {
	Program Program
}

// Run attaches signal handling, runs Setup, then RunLoop, then Teardown.
// A Setup error is returned at once, without RunLoop or Teardown. A Teardown error is only returned if RunLoop itself succeeded,
// so a fatal RunLoop error is never masked.
func (m *MainControlProgram) Run(parent context.Context) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	torndown := make(chan struct{})
	go func() {
		defer close(torndown)
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := m.Program.Setup(); err != nil {
		return err
	}

	runErr := m.Program.RunLoop(ctx)
	cancel()
	<-torndown

	if tdErr := m.Program.Teardown(); tdErr != nil && runErr == nil {
		return tdErr
	}
	return runErr
}
