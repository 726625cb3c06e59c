package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckReportsOKWhenEveryDependencyPasses(t *testing.T) {
	h := New(time.Second,
		Checker{Name: "database", Ping: func(ctx context.Context) error { return nil }},
		Checker{Name: "object_store", Ping: func(ctx context.Context) error { return nil }},
	)

	status := h.Check(context.Background())
	assert.True(t, status.OK)
	assert.Equal(t, "ok", status.Dependencies["database"])
	assert.Equal(t, "ok", status.Dependencies["object_store"])
}

func TestCheckReportsFailureOfASingleDependency(t *testing.T) {
	h := New(time.Second,
		Checker{Name: "database", Ping: func(ctx context.Context) error { return nil }},
		Checker{Name: "graph_store", Ping: func(ctx context.Context) error { return errors.New("connection refused") }},
	)

	status := h.Check(context.Background())
	assert.False(t, status.OK)
	assert.Equal(t, "ok", status.Dependencies["database"])
	assert.Equal(t, "connection refused", status.Dependencies["graph_store"])
}

func TestCheckBoundsASlowDependencyByTimeout(t *testing.T) {
	h := New(20*time.Millisecond,
		Checker{Name: "slow", Ping: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		}},
	)

	start := time.Now()
	status := h.Check(context.Background())
	assert.False(t, status.OK)
	assert.Less(t, time.Since(start), time.Second)
}

func TestHandlerReturns503WhenUnhealthy(t *testing.T) {
	h := New(time.Second, Checker{Name: "database", Ping: func(ctx context.Context) error { return errors.New("down") }})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	h.Handler()(rec, req)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var status Status
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&status))
	assert.False(t, status.OK)
}

func TestHandlerReturns200WhenHealthy(t *testing.T) {
	h := New(time.Second, Checker{Name: "database", Ping: func(ctx context.Context) error { return nil }})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	h.Handler()(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}
