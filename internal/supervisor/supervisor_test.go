package supervisor

import (
	"context"
	"errors"
	"os"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeProgram struct {
	setupCalls    int32
	teardownCalls int32
	runErr        error
}

func (f *fakeProgram) Setup() error {
	atomic.AddInt32(&f.setupCalls, 1)
	return nil
}

func (f *fakeProgram) RunLoop(ctx context.Context) error {
	<-ctx.Done()
	return f.runErr
}

func (f *fakeProgram) Teardown() error {
	atomic.AddInt32(&f.teardownCalls, 1)
	return nil
}

func TestMainControlProgramTearsDownOnSignal(t *testing.T) {
	prog := &fakeProgram{}
	mcp := &MainControlProgram{Program: prog}

	done := make(chan error, 1)
	go func() { done <- mcp.Run(context.Background()) }()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGINT))

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after SIGINT")
	}
	require.EqualValues(t, 1, atomic.LoadInt32(&prog.setupCalls))
	require.EqualValues(t, 1, atomic.LoadInt32(&prog.teardownCalls))
}

func TestMainControlProgramPropagatesRunLoopError(t *testing.T) {
	wantErr := errors.New("stage crashed")
	prog := &fakeProgram{runErr: wantErr}
	mcp := &MainControlProgram{Program: prog}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- mcp.Run(ctx) }()
	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, wantErr)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}
