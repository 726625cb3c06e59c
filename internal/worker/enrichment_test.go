package worker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docforge/ingestproc/internal/embedder"
	"github.com/docforge/ingestproc/internal/errkind"
	"github.com/docforge/ingestproc/internal/graphstore"
	"github.com/docforge/ingestproc/internal/llmclient"
	"github.com/docforge/ingestproc/internal/logging"
	"github.com/docforge/ingestproc/internal/metrics"
	"github.com/docforge/ingestproc/internal/model"
	"github.com/docforge/ingestproc/internal/queue"
	"github.com/docforge/ingestproc/internal/repository"
	"github.com/prometheus/client_golang/prometheus"
)

type oomEmbedder struct{}

func (oomEmbedder) Dimension() int { return 4 }
func (oomEmbedder) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, errkind.New("embed_oom", "out of memory", errkind.ResourceExhaustion)
}

func newEnrichmentWorker(t *testing.T, db *repository.ChunkRepository, tasks *queue.TaskQueue,
	llmlog *repository.LLMLogRepository, emb embedder.Embedder, llm *llmclient.Client) *EnrichmentWorker {
	t.Helper()
	return NewEnrichmentWorker(EnrichmentWorkerConfig{
		Log: logging.NoopLogger{}, Metrics: metrics.New(prometheus.NewRegistry()), Tasks: tasks,
		Chunks: db, LLMLog: llmlog, Embedder: embedder.NewAdaptiveBatcher(emb, 10), LLM: llm,
		Graph: graphstore.NoopStore{}, GraphEnabled: false, EmbeddingVersion: 1,
		EmbeddingBatchSize: 10, EnrichmentBatchSize: 10, LLMMaxConcurrency: 2,
		MetadataSystemPrompt: "extract metadata", RelationSystemPrompt: "extract relations",
	})
}

func TestRunEmbeddingStageBulkWritesOnSuccess(t *testing.T) {
	db, mock := newMockDB(t)
	chunks := repository.NewChunkRepository(db)
	tasks := queue.New(db)
	llmlog := repository.NewLLMLogRepository(db)
	docID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT doc_id, chunk_id, tenant_id, text, section, type, block_type").
		WillReturnRows(sqlmock.NewRows([]string{
			"doc_id", "chunk_id", "tenant_id", "text", "section", "type", "block_type",
			"metadata", "embedding_version", "enrichment_status",
		}).AddRow(docID, 1, uuid.New(), "some text", "", "", "", []byte(`{}`), 0, []byte(`{}`)))
	mock.ExpectExec("UPDATE chunks SET enrichment_status").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE chunks").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	w := newEnrichmentWorker(t, chunks, tasks, llmlog, &fakeEmbedderVectors{dim: 4}, llmclient.New(llmclient.Config{}))
	n, err := w.runEmbeddingStage(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunEmbeddingStageMarksBatchFailedOnOOM(t *testing.T) {
	db, mock := newMockDB(t)
	chunks := repository.NewChunkRepository(db)
	tasks := queue.New(db)
	llmlog := repository.NewLLMLogRepository(db)
	docID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT doc_id, chunk_id, tenant_id, text, section, type, block_type").
		WillReturnRows(sqlmock.NewRows([]string{
			"doc_id", "chunk_id", "tenant_id", "text", "section", "type", "block_type",
			"metadata", "embedding_version", "enrichment_status",
		}).AddRow(docID, 1, uuid.New(), "some text", "", "", "", []byte(`{}`), 0, []byte(`{}`)))
	mock.ExpectExec("UPDATE chunks SET enrichment_status").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	mock.ExpectExec("UPDATE chunks").WillReturnResult(sqlmock.NewResult(0, 1))

	w := newEnrichmentWorker(t, chunks, tasks, llmlog, oomEmbedder{}, llmclient.New(llmclient.Config{}))
	n, err := w.runEmbeddingStage(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunLLMStageMetadataExtractionSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{
					"role": "assistant",
					"content": "<json_output>{\"summary\":\"a summary\",\"keywords\":[\"a\",\"b\"]}</json_output>",
				}},
			},
			"usage": map[string]int{"prompt_tokens": 10, "completion_tokens": 5},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(body)
	}))
	defer server.Close()

	db, mock := newMockDB(t)
	chunks := repository.NewChunkRepository(db)
	tasks := queue.New(db)
	llmlog := repository.NewLLMLogRepository(db)
	docID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT doc_id, chunk_id, tenant_id, text, section, type, block_type").
		WillReturnRows(sqlmock.NewRows([]string{
			"doc_id", "chunk_id", "tenant_id", "text", "section", "type", "block_type",
			"metadata", "embedding_version", "enrichment_status",
		}).AddRow(docID, 1, uuid.New(), "some text", "", "", "", []byte(`{}`), 0, []byte(`{}`)))
	mock.ExpectExec("UPDATE chunks SET enrichment_status").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	mock.ExpectExec("INSERT INTO llm_requests_log").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("UPDATE chunks SET enrichment_status").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE chunks SET metadata").WillReturnResult(sqlmock.NewResult(0, 1))

	llm := llmclient.New(llmclient.Config{Provider: llmclient.ProviderOpenAI, APIBase: server.URL, Model: "test-model"})
	w := newEnrichmentWorker(t, chunks, tasks, llmlog, &fakeEmbedderVectors{dim: 4}, llm)

	n, err := w.runLLMStage(context.Background(), model.StageMetadataExtraction, w.extractMetadata)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
