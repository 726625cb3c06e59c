// Package embedder turns chunk text into vectors through a local or remote
// model endpoint, with adaptive batch-halving on resource exhaustion and a
// circuit breaker guarding a persistently failing backend.
package embedder

import (
	"context"

	"github.com/docforge/ingestproc/internal/errkind"
	"github.com/docforge/ingestproc/internal/retrypolicy"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// Embedder is the capability every concrete variant satisfies.
type Embedder interface {
	Encode(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// Config drives batch sizing and the resilience wrapper around whichever
// wire dialect is selected.
type Config struct {
	BatchSize    int
	QPSLimit     float64 // 0 = unlimited
	Dialect      string  // "openai" or "ollama"
	Endpoint     string
	Model        string
	RequestTimeout int // seconds
}

// resilientClient is held by RemoteEmbedder, the one embedder type used
// for both the "local" and "api" modes, so every call shares one retry
// policy, one circuit breaker, and one optional QPS ceiling.
type resilientClient struct {
	policy  retrypolicy.Policy
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
}

func newResilientClient(name string, qps float64) *resilientClient {
	var limiter *rate.Limiter
	if qps > 0 {
		limiter = rate.NewLimiter(rate.Limit(qps), 1)
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	policy := retrypolicy.Default()
	policy.Classify = errkind.Classify

	return &resilientClient{policy: policy, breaker: breaker, limiter: limiter}
}

func (c *resilientClient) do(ctx context.Context, fn func() error) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	return c.policy.Execute(ctx, func(ctx context.Context) error {
		_, err := c.breaker.Execute(func() (interface{}, error) {
			return nil, fn()
		})
		return err
	})
}
