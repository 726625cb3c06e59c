package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/docforge/ingestproc/internal/embedder"
	"github.com/docforge/ingestproc/internal/graphstore"
	"github.com/docforge/ingestproc/internal/llmclient"
	"github.com/docforge/ingestproc/internal/logging"
	"github.com/docforge/ingestproc/internal/metrics"
	"github.com/docforge/ingestproc/internal/model"
	"github.com/docforge/ingestproc/internal/queue"
	"github.com/docforge/ingestproc/internal/repository"
)

// EnrichmentWorker sweeps embedding_generation, metadata_extraction, and
// (when the graph store is enabled) relation_extraction each poll cycle.
type EnrichmentWorker struct {
	log    logging.Logger
	metric *metrics.Registry
	tasks  *queue.TaskQueue
	chunks *repository.ChunkRepository
	llmlog *repository.LLMLogRepository
	embed  *embedder.AdaptiveBatcher
	llm    *llmclient.Client
	graph  graphstore.GraphStore

	graphEnabled        bool
	embeddingVersion    int
	embeddingBatchSize  int
	enrichmentBatchSize int
	llmMaxConcurrency   int
	pollEvery           time.Duration

	metadataSystemPrompt string
	relationSystemPrompt string
}

type EnrichmentWorkerConfig struct {
	Log                  logging.Logger
	Metrics              *metrics.Registry
	Tasks                *queue.TaskQueue
	Chunks               *repository.ChunkRepository
	LLMLog               *repository.LLMLogRepository
	Embedder             *embedder.AdaptiveBatcher
	LLM                  *llmclient.Client
	Graph                graphstore.GraphStore
	GraphEnabled         bool
	EmbeddingVersion     int
	EmbeddingBatchSize   int
	EnrichmentBatchSize  int
	LLMMaxConcurrency    int
	PollEvery            time.Duration
	MetadataSystemPrompt string
	RelationSystemPrompt string
}

func NewEnrichmentWorker(cfg EnrichmentWorkerConfig) *EnrichmentWorker {
	return &EnrichmentWorker{
		log: cfg.Log, metric: cfg.Metrics, tasks: cfg.Tasks, chunks: cfg.Chunks,
		llmlog: cfg.LLMLog, embed: cfg.Embedder, llm: cfg.LLM, graph: cfg.Graph,
		graphEnabled: cfg.GraphEnabled, embeddingVersion: cfg.EmbeddingVersion,
		embeddingBatchSize: cfg.EmbeddingBatchSize, enrichmentBatchSize: cfg.EnrichmentBatchSize,
		llmMaxConcurrency: cfg.LLMMaxConcurrency, pollEvery: cfg.PollEvery,
		metadataSystemPrompt: cfg.MetadataSystemPrompt, relationSystemPrompt: cfg.RelationSystemPrompt,
	}
}

// Run sweeps stages until ctx is cancelled, sleeping poll_interval whenever
// an entire cycle claims zero chunks across every stage.
func (w *EnrichmentWorker) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		n, err := w.runCycle(ctx)
		if err != nil {
			w.log.Error("enrichment cycle failed", map[string]interface{}{"error": err})
		}
		if n == 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(w.pollEvery):
			}
		}
	}
}

// runCycle sweeps the fixed stage order once and returns the number of
// chunks it claimed across all stages.
func (w *EnrichmentWorker) runCycle(ctx context.Context) (int, error) {
	total := 0

	n, err := w.runEmbeddingStage(ctx)
	total += n
	if err != nil {
		return total, fmt.Errorf("embedding_generation stage: %w", err)
	}

	n, err = w.runLLMStage(ctx, model.StageMetadataExtraction, w.extractMetadata)
	total += n
	if err != nil {
		return total, fmt.Errorf("metadata_extraction stage: %w", err)
	}

	if w.graphEnabled {
		n, err = w.runLLMStage(ctx, model.StageRelationExtraction, w.extractRelations)
		total += n
		if err != nil {
			return total, fmt.Errorf("relation_extraction stage: %w", err)
		}
	}

	return total, nil
}

// runEmbeddingStage claims one batch and groups it by document. Each
// document's chunks are encoded as a unit and are either all bulk-written
// or all marked failed together; a failure for one document does not fail
// the other documents in the batch.
func (w *EnrichmentWorker) runEmbeddingStage(ctx context.Context) (int, error) {
	claimed, err := w.tasks.ClaimPendingChunks(ctx, model.StageEmbeddingGeneration, w.embeddingBatchSize)
	if err != nil {
		return 0, fmt.Errorf("claim embedding batch: %w", err)
	}
	if len(claimed) == 0 {
		return 0, nil
	}

	byDoc := groupByDoc(claimed)
	for docID, chunks := range byDoc {
		texts := make([]string, len(chunks))
		chunkIDs := make([]int, len(chunks))
		for i, c := range chunks {
			texts[i] = c.Text
			chunkIDs[i] = c.ChunkID
		}

		vectors, encErr := w.embed.EncodeBatch(ctx, texts)
		if encErr != nil {
			w.log.Error("embedding batch failed", map[string]interface{}{"doc_id": docID, "error": encErr})
			w.metric.IncProcessingErrors("enrichment", model.StageEmbeddingGeneration)
			if err := w.chunks.MarkStageFailedBatch(ctx, docID, chunkIDs, model.StageEmbeddingGeneration, encErr.Error()); err != nil {
				return len(claimed), fmt.Errorf("mark embedding batch failed for %s: %w", docID, err)
			}
			continue
		}

		embeddings := make(map[int][]float32, len(chunks))
		for i, chunkID := range chunkIDs {
			embeddings[chunkID] = vectors[i]
		}
		if err := w.chunks.BulkSetEmbeddings(ctx, docID, w.embeddingVersion, embeddings); err != nil {
			return len(claimed), fmt.Errorf("bulk set embeddings for %s: %w", docID, err)
		}
		for range chunks {
			w.metric.IncChunksEnriched(model.StageEmbeddingGeneration)
		}
	}

	return len(claimed), nil
}

// chunkProcessor runs one LLM call against a claimed chunk and reports the
// terminal status, optional metadata/result payload, and error message to
// merge back via UpdateChunkStage.
type chunkProcessor func(ctx context.Context, c model.Chunk) (status string, result map[string]interface{}, errMsg string)

// runLLMStage claims a batch for stage and fans each chunk out to process
// under a bounded worker pool; each chunk's outcome is independent.
func (w *EnrichmentWorker) runLLMStage(ctx context.Context, stage string, process chunkProcessor) (int, error) {
	claimed, err := w.tasks.ClaimPendingChunks(ctx, stage, w.enrichmentBatchSize)
	if err != nil {
		return 0, fmt.Errorf("claim %s batch: %w", stage, err)
	}
	if len(claimed) == 0 {
		return 0, nil
	}

	sem := make(chan struct{}, w.llmMaxConcurrency)
	var wg sync.WaitGroup

	for _, c := range claimed {
		c := c
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			status, result, errMsg := process(ctx, c)
			if status == model.StageFailed {
				w.metric.IncProcessingErrors("enrichment", stage)
			} else {
				w.metric.IncChunksEnriched(stage)
			}
			if err := w.tasks.UpdateChunkStage(ctx, c.DocID, c.ChunkID, stage, status, result, errMsg); err != nil {
				w.log.Error("update chunk stage failed", map[string]interface{}{
					"doc_id": c.DocID, "chunk_id": c.ChunkID, "stage": stage, "error": err,
				})
			}
		}()
	}
	wg.Wait()

	return len(claimed), nil
}

func (w *EnrichmentWorker) extractMetadata(ctx context.Context, c model.Chunk) (string, map[string]interface{}, string) {
	start := time.Now()
	out, res, err := w.llm.ExtractMetadata(ctx, w.metadataSystemPrompt, c.Text)
	w.logLLMCall(ctx, "metadata_extraction", c, res, start, err)
	if err != nil {
		return model.StageFailed, nil, err.Error()
	}

	result := map[string]interface{}{"summary": out.Summary, "keywords": out.Keywords, "entities": out.Entities}
	return model.StageCompleted, result, ""
}

func (w *EnrichmentWorker) extractRelations(ctx context.Context, c model.Chunk) (string, map[string]interface{}, string) {
	start := time.Now()
	candidates, res, err := w.llm.ExtractRelations(ctx, w.relationSystemPrompt, c.Text)
	w.logLLMCall(ctx, "relation_extraction", c, res, start, err)
	if err != nil {
		return model.StageFailed, nil, err.Error()
	}

	edges := llmclient.SanitizeRelations(candidates)
	for _, edge := range edges {
		edge.TenantID, edge.DocID = c.TenantID, c.DocID
		edge.Subject.TenantID, edge.Subject.DocID = c.TenantID, c.DocID
		edge.Object.TenantID, edge.Object.DocID = c.TenantID, c.DocID

		if err := w.graph.UpsertNode(ctx, edge.Subject); err != nil {
			return model.StageFailed, nil, fmt.Sprintf("upsert subject node: %v", err)
		}
		if err := w.graph.UpsertNode(ctx, edge.Object); err != nil {
			return model.StageFailed, nil, fmt.Sprintf("upsert object node: %v", err)
		}
		if err := w.graph.UpsertEdge(ctx, edge); err != nil {
			return model.StageFailed, nil, fmt.Sprintf("upsert edge: %v", err)
		}
	}

	result := map[string]interface{}{"relation_count": len(edges)}
	return model.StageCompleted, result, ""
}

func (w *EnrichmentWorker) logLLMCall(ctx context.Context, requestType string, c model.Chunk, res llmclient.Result, start time.Time, callErr error) {
	end := time.Now()
	rec := model.LLMLogRecord{
		Start: start, End: end, DurationMillis: end.Sub(start).Milliseconds(),
		Success: callErr == nil, RequestType: requestType,
		RawResponse: res.RawResponse, PromptTokens: res.PromptTokens, CompletionTokens: res.CompletionTokens,
		TenantID: c.TenantID, DocID: c.DocID, ChunkID: c.ChunkID,
	}
	if callErr != nil {
		rec.Error = callErr.Error()
	}

	w.metric.IncLLMRequests(requestType, callErr == nil)
	if err := w.llmlog.Append(ctx, rec); err != nil {
		w.log.Error("append llm log record failed", map[string]interface{}{"error": err})
	}
}

func groupByDoc(chunks []model.Chunk) map[uuid.UUID][]model.Chunk {
	out := map[uuid.UUID][]model.Chunk{}
	for _, c := range chunks {
		out[c.DocID] = append(out[c.DocID], c)
	}
	return out
}
