// Package retrypolicy implements the explicit retry policy object called
// for by the design notes: {max_attempts, base_delay, max_delay,
// classify(err)} applied at the call site, rather than a decorator wrapping
// every outbound call implicitly.
package retrypolicy

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/docforge/ingestproc/internal/errkind"
)

// Policy is the call-site retry object. Classify decides, per attempt,
// whether the error is worth retrying at all; Transient and
// ResourceExhaustion are retryable by default classification, everything
// else fails fast.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Classify    func(error) errkind.Kind
}

// Default returns the policy used for LLM and embedding HTTP calls: 3
// attempts, exponential backoff from 500ms up to 10s.
func Default() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    10 * time.Second,
		Classify:    errkind.Classify,
	}
}

// Execute runs fn, retrying according to the policy. It gives up
// immediately on a non-retryable classification, on context
// cancellation, or once MaxAttempts is exhausted.
func (p Policy) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	classify := p.Classify
	if classify == nil {
		classify = errkind.Classify
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.BaseDelay
	b.MaxInterval = p.MaxDelay
	b.MaxElapsedTime = 0 // bounded by MaxAttempts instead of elapsed time

	var lastErr error
	attempt := 0
	for {
		attempt++
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}

		kind := classify(lastErr)
		retryable := kind == errkind.Transient || kind == errkind.ResourceExhaustion
		if !retryable || attempt >= p.MaxAttempts {
			return lastErr
		}

		delay := b.NextBackOff()
		if delay == backoff.Stop {
			return lastErr
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
