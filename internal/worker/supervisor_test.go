package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/docforge/ingestproc/internal/logging"
)

type fakeRunnable struct {
	runs    int32
	err     error
	blockOn <-chan struct{}
}

func (f *fakeRunnable) Run(ctx context.Context) error {
	atomic.AddInt32(&f.runs, 1)
	if f.blockOn != nil {
		<-f.blockOn
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	return f.err
}

func TestSupervisorShutsDownCooperativelyOnContextCancel(t *testing.T) {
	never := make(chan struct{})
	r := &fakeRunnable{blockOn: never}
	sup := NewSupervisor(logging.NoopLogger{})
	sup.Add("upload", r)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sup.Run(ctx)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	close(never) // let the worker observe cancellation instead of blocking forever
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected supervisor.Run to return after context cancellation")
	}
	assert.GreaterOrEqual(t, atomic.LoadInt32(&r.runs), int32(1))
}

func TestSupervisorRestartsFailingWorkerAfterCooldown(t *testing.T) {
	r := &fakeRunnable{err: errors.New("boom")}
	sup := NewSupervisor(logging.NoopLogger{})
	sup.restartCooldown = 10 * time.Millisecond
	sup.Add("enrichment", r)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sup.Run(ctx)
		close(done)
	}()

	time.Sleep(60 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected supervisor.Run to return after context cancellation")
	}
	assert.Greater(t, atomic.LoadInt32(&r.runs), int32(1), "expected the worker to be restarted at least once")
}

func TestSupervisorAbandonsStragglerAfterJoinTimeout(t *testing.T) {
	never := make(chan struct{})
	r := &fakeRunnable{blockOn: never}
	sup := NewSupervisor(logging.NoopLogger{})
	sup.joinTimeout = 20 * time.Millisecond
	sup.Add("upload", r)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sup.Run(ctx)
		close(done)
	}()

	time.Sleep(5 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected supervisor.Run to abandon the straggler and return")
	}
	close(never)
}
