package worker

import (
	"context"
	"sync"
	"time"

	"github.com/docforge/ingestproc/internal/logging"
)

const restartCooldown = 15 * time.Second

// runnable is anything the supervisor can start, restart, and wait on.
type runnable interface {
	Run(ctx context.Context) error
}

// namedWorker pairs a runnable with the label it appears under in logs and
// metrics.
type namedWorker struct {
	name string
	run  runnable
}

// Supervisor starts a configured count of each worker type and restarts any
// of them after an unhandled failure, once a fixed cooldown has elapsed.
// Shutdown is cooperative: cancelling the supplied context is the only
// signal each worker needs to observe between tasks or batches.
type Supervisor struct {
	log              logging.Logger
	workers          []namedWorker
	joinTimeout      time.Duration
	restartCooldown  time.Duration
}

func NewSupervisor(log logging.Logger) *Supervisor {
	return &Supervisor{log: log, joinTimeout: 30 * time.Second, restartCooldown: restartCooldown}
}

// Add registers a worker instance under name; Run starts every registered
// worker exactly once and keeps it alive for the supervisor's lifetime.
func (s *Supervisor) Add(name string, r runnable) {
	s.workers = append(s.workers, namedWorker{name: name, run: r})
}

// Run starts every registered worker under its own restart-on-failure
// wrapper and blocks until ctx is cancelled, then waits up to its join
// timeout per worker for a clean exit before abandoning stragglers.
func (s *Supervisor) Run(ctx context.Context) {
	var wg sync.WaitGroup

	for _, nw := range s.workers {
		wg.Add(1)
		go func(nw namedWorker) {
			defer wg.Done()
			s.superviseOne(ctx, nw)
		}(nw)
	}

	<-ctx.Done()

	joined := make(chan struct{})
	go func() {
		wg.Wait()
		close(joined)
	}()

	select {
	case <-joined:
	case <-time.After(s.joinTimeout):
		s.log.Warn("supervisor shutdown timed out, abandoning stragglers", map[string]interface{}{
			"timeout": s.joinTimeout.String(),
		})
	}
}

// superviseOne runs a single worker, restarting it after restartCooldown on
// any unhandled failure, until ctx is cancelled or the worker returns the
// context's own cancellation error.
func (s *Supervisor) superviseOne(ctx context.Context, nw namedWorker) {
	for {
		if ctx.Err() != nil {
			return
		}

		err := nw.run.Run(ctx)
		if err == nil || err == context.Canceled || err == context.DeadlineExceeded {
			return
		}

		s.log.Error("worker failed, restarting after cooldown", map[string]interface{}{
			"worker": nw.name, "error": err, "cooldown": s.restartCooldown.String(),
		})

		select {
		case <-ctx.Done():
			return
		case <-time.After(s.restartCooldown):
		}
	}
}
