package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRegistryIncrementsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg)

	r.IncDocsProcessed()
	r.IncDocsProcessed()
	r.IncDocsDeprovisioned()
	r.IncChunksEnriched("embedding_generation")
	r.IncProcessingErrors("enrichment", "metadata_extraction")
	r.IncLLMRequests("metadata_extraction", true)
	r.IncLLMRequests("metadata_extraction", false)
	r.ObserveProcessingDuration("created", 2*time.Second)
	r.SetEmbeddingBatchSize(16)

	assert.Equal(t, float64(2), testutil.ToFloat64(r.docsProcessed))
	assert.Equal(t, float64(1), testutil.ToFloat64(r.docsDeprovisioned))
	assert.Equal(t, float64(1), testutil.ToFloat64(r.chunksEnriched.WithLabelValues("embedding_generation")))
	assert.Equal(t, float64(1), testutil.ToFloat64(r.processingErrors.WithLabelValues("enrichment", "metadata_extraction")))
	assert.Equal(t, float64(1), testutil.ToFloat64(r.llmRequests.WithLabelValues("metadata_extraction", "true")))
	assert.Equal(t, float64(1), testutil.ToFloat64(r.llmRequests.WithLabelValues("metadata_extraction", "false")))
	assert.Equal(t, float64(16), testutil.ToFloat64(r.embeddingBatchGauge))
}

func TestNewRegistersAllCollectorsExactlyOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	assert.NotPanics(t, func() { New(reg) })
}
