// Package metrics registers the processor's Prometheus collectors once per
// process and exposes small typed helpers so worker code never touches a
// raw collector directly.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds every collector the processor exposes on /metrics.
type Registry struct {
	docsProcessed       prometheus.Counter
	docsDeprovisioned   prometheus.Counter
	chunksEnriched      *prometheus.CounterVec
	processingErrors    *prometheus.CounterVec
	processingDuration  *prometheus.HistogramVec
	llmRequests         *prometheus.CounterVec
	embeddingBatchGauge prometheus.Gauge
}

// New registers every collector against reg. Pass prometheus.NewRegistry()
// in production and a fresh registry per test to avoid duplicate
// registration panics across test cases.
func New(reg prometheus.Registerer) *Registry {
	r := &Registry{
		docsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "docs_processed_total", Help: "Documents successfully ingested.",
		}),
		docsDeprovisioned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "docs_deprovisioned_total", Help: "Documents removed on a deleted event.",
		}),
		chunksEnriched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chunks_enriched_total", Help: "Chunks reaching completed for a stage.",
		}, []string{"stage"}),
		processingErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "processing_errors_total", Help: "Errors encountered per worker type and stage.",
		}, []string{"worker_type", "stage"}),
		processingDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "doc_processing_duration_seconds", Help: "End-to-end duration of one upload-worker task.",
		}, []string{"operation"}),
		llmRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "llm_requests_total", Help: "LLM and embedding requests issued.",
		}, []string{"request_type", "is_success"}),
		embeddingBatchGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "embedding_batch_size_current", Help: "Current effective embedding batch size after adaptive halving.",
		}),
	}

	reg.MustRegister(r.docsProcessed, r.docsDeprovisioned, r.chunksEnriched,
		r.processingErrors, r.processingDuration, r.llmRequests, r.embeddingBatchGauge)

	return r
}

func (r *Registry) IncDocsProcessed()     { r.docsProcessed.Inc() }
func (r *Registry) IncDocsDeprovisioned() { r.docsDeprovisioned.Inc() }

func (r *Registry) IncChunksEnriched(stage string) {
	r.chunksEnriched.WithLabelValues(stage).Inc()
}

func (r *Registry) IncProcessingErrors(workerType, stage string) {
	r.processingErrors.WithLabelValues(workerType, stage).Inc()
}

func (r *Registry) ObserveProcessingDuration(operation string, d time.Duration) {
	r.processingDuration.WithLabelValues(operation).Observe(d.Seconds())
}

func (r *Registry) IncLLMRequests(requestType string, success bool) {
	r.llmRequests.WithLabelValues(requestType, boolLabel(success)).Inc()
}

func (r *Registry) SetEmbeddingBatchSize(size int) {
	r.embeddingBatchGauge.Set(float64(size))
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
