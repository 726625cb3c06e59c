// Package worker implements the long-lived goroutines that drain the task
// queue: upload, enrichment, migration, and the supervisor that restarts
// any of them after an unhandled failure.
package worker

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/docforge/ingestproc/internal/chunking"
	"github.com/docforge/ingestproc/internal/graphstore"
	"github.com/docforge/ingestproc/internal/logging"
	"github.com/docforge/ingestproc/internal/metrics"
	"github.com/docforge/ingestproc/internal/model"
	"github.com/docforge/ingestproc/internal/objectstore"
	"github.com/docforge/ingestproc/internal/parser"
	"github.com/docforge/ingestproc/internal/queue"
	"github.com/docforge/ingestproc/internal/repository"
)

// UploadWorker handles created/updated/deleted queue events: parsing,
// normalizing, chunking, and persisting a document, or tearing one down.
type UploadWorker struct {
	log              logging.Logger
	metrics          *metrics.Registry
	tasks            *queue.TaskQueue
	docs             *repository.DocumentRepository
	chunks           *repository.ChunkRepository
	objects          objectstore.ObjectStore
	graph            graphstore.GraphStore
	dispatcher       *parser.Dispatcher
	chunker          *chunking.Chunker
	bucket           string
	pollEvery        time.Duration
	graphEnabled     bool
	embeddingVersion int
	// operations is the set this worker instance polls, in priority order.
	// The supervisor runs separate pools over {created, updated} ("upload")
	// and {deleted} ("deletion") so a backlog of one kind never starves the
	// other's dedicated worker count.
	operations []model.Operation
}

type UploadWorkerConfig struct {
	Log        logging.Logger
	Metrics    *metrics.Registry
	Tasks      *queue.TaskQueue
	Docs       *repository.DocumentRepository
	Chunks     *repository.ChunkRepository
	Objects    objectstore.ObjectStore
	Graph      graphstore.GraphStore
	// GraphEnabled distinguishes a real graph store from graphstore.NoopStore,
	// which is still a non-nil interface value and can't be told apart from
	// a configured store by a nil check alone.
	GraphEnabled bool
	Dispatcher   *parser.Dispatcher
	Chunker      *chunking.Chunker
	PollEvery    time.Duration
	// Operations defaults to {created, updated, deleted} when left empty.
	Operations []model.Operation
	// EmbeddingVersion stamps every newly persisted chunk, so a chunk
	// created mid-migration is already tagged with the version the
	// migration worker will re-embed it under if it's stale.
	EmbeddingVersion int
}

func NewUploadWorker(cfg UploadWorkerConfig) *UploadWorker {
	ops := cfg.Operations
	if len(ops) == 0 {
		ops = []model.Operation{model.OperationCreated, model.OperationUpdated, model.OperationDeleted}
	}
	return &UploadWorker{
		log: cfg.Log, metrics: cfg.Metrics, tasks: cfg.Tasks, docs: cfg.Docs,
		chunks: cfg.Chunks, objects: cfg.Objects, graph: cfg.Graph,
		dispatcher: cfg.Dispatcher, chunker: cfg.Chunker, pollEvery: cfg.PollEvery,
		graphEnabled: cfg.GraphEnabled, operations: ops, embeddingVersion: cfg.EmbeddingVersion,
	}
}

// Run loops claiming created/updated/deleted tasks until ctx is cancelled,
// observing shutdown between iterations (cooperative cancellation).
func (w *UploadWorker) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		processed, err := w.runOnce(ctx)
		if err != nil {
			w.log.Error("upload cycle failed", map[string]interface{}{"error": err})
		}
		if !processed {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(w.pollEvery):
			}
		}
	}
}

func (w *UploadWorker) runOnce(ctx context.Context) (bool, error) {
	for _, op := range w.operations {
		task, err := w.tasks.ClaimNext(ctx, op)
		if err != nil {
			return false, fmt.Errorf("claim next %s task: %w", op, err)
		}
		if task == nil {
			continue
		}

		start := time.Now()
		procErr := w.processTask(ctx, task)
		w.metrics.ObserveProcessingDuration(string(task.Operation), time.Since(start))

		if procErr != nil {
			w.metrics.IncProcessingErrors("upload", "")
			_ = w.tasks.Complete(ctx, task.ID, model.TaskStatusFailed, procErr.Error())
			w.log.Error("task failed", map[string]interface{}{
				"task_id": task.ID, "operation": task.Operation, "error": procErr,
			})
		}
		return true, nil
	}
	return false, nil
}

func (w *UploadWorker) processTask(ctx context.Context, task *model.Task) error {
	switch task.Operation {
	case model.OperationDeleted:
		return w.processDelete(ctx, task)
	default: // created, updated: identical handling (resolved open question)
		return w.processCreatedOrUpdated(ctx, task)
	}
}

func (w *UploadWorker) processDelete(ctx context.Context, task *model.Task) error {
	if err := w.graph.DeleteSubgraph(ctx, task.ItemUUID, task.TenantID); err != nil {
		return fmt.Errorf("delete graph subgraph: %w", err)
	}
	if err := w.docs.Delete(ctx, task.ItemUUID); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	w.metrics.IncDocsDeprovisioned()
	return w.tasks.Complete(ctx, task.ID, model.TaskStatusDone, "deleted")
}

func (w *UploadWorker) processCreatedOrUpdated(ctx context.Context, task *model.Task) error {
	docID := task.ItemUUID

	exists, err := w.docs.Exists(ctx, docID)
	if err != nil {
		return fmt.Errorf("check existing document: %w", err)
	}
	if exists {
		if err := w.graph.DeleteSubgraph(ctx, docID, task.TenantID); err != nil {
			return fmt.Errorf("cascade delete graph before reprocess: %w", err)
		}
		if err := w.docs.Delete(ctx, docID); err != nil {
			return fmt.Errorf("cascade delete document before reprocess: %w", err)
		}
	}

	if task.S3Path == "" {
		return fmt.Errorf("task %d missing s3_path for operation %s", task.ID, task.Operation)
	}

	localPath, err := w.objects.DownloadToTemp(ctx, task.S3Path)
	if err != nil {
		return fmt.Errorf("download object %s: %w", task.S3Path, err)
	}
	defer removeFile(localPath)

	blocks, _, err := w.dispatcher.Parse(localPath, docID)
	if err != nil {
		return fmt.Errorf("parse document: %w", err)
	}
	if len(blocks) > 0 && blocks[0].Type == parser.BlockError {
		return fmt.Errorf("parse document: %s", blocks[0].Text)
	}

	blocks = normalizeBlocks(blocks)
	blocks = enrichHierarchy(blocks)

	sections := blocksToSections(blocks)
	chunks := w.chunker.SplitDocument(sections)

	if len(chunks) == 0 {
		size, sizeErr := fileSize(localPath)
		if sizeErr == nil && size > 1024 {
			return fmt.Errorf("parser produced no content")
		}
		return w.tasks.Complete(ctx, task.ID, model.TaskStatusDone, "empty, no indexing required")
	}

	doc := model.Document{
		DocID: docID, TenantID: task.TenantID, OwnerUserID: task.UserID,
		Filename: task.ItemName, UploadedAt: time.Now().UTC(),
	}

	modelChunks := chunksToModel(docID, task.TenantID, chunks, w.graphEnabled, w.embeddingVersion)
	if err := w.docs.InsertWithChunks(ctx, doc, modelChunks); err != nil {
		return fmt.Errorf("persist document and chunks: %w", err)
	}

	w.metrics.IncDocsProcessed()
	return w.tasks.Complete(ctx, task.ID, model.TaskStatusDone,
		fmt.Sprintf("processed, %d chunks", len(modelChunks)))
}

var hyphenLinebreak = regexp.MustCompile(`-\n`)
var singleNewline = regexp.MustCompile(`([^\n])\n([^\n])`)

// normalizeBlocks strips hyphen-linebreaks then joins single newlines
// within a paragraph to spaces, preserving blank-line paragraph boundaries.
func normalizeBlocks(blocks []parser.Block) []parser.Block {
	out := make([]parser.Block, len(blocks))
	for i, b := range blocks {
		if b.Type == parser.BlockParagraph || b.Type == parser.BlockHeading {
			text := hyphenLinebreak.ReplaceAllString(b.Text, "")
			text = singleNewline.ReplaceAllString(text, "$1 $2")
			b.Text = text
		}
		out[i] = b
	}
	return out
}

type headingFrame struct {
	level int
	text  string
}

// enrichHierarchy maintains a stack of (level, heading_text), popping
// everything at or above the current heading's level before pushing it,
// and stamps every non-heading block's context_path from the live stack.
func enrichHierarchy(blocks []parser.Block) []parser.Block {
	var stack []headingFrame
	out := make([]parser.Block, len(blocks))

	for i, b := range blocks {
		if b.Type == parser.BlockHeading {
			level := b.Level
			if level <= 0 {
				level = 1
			}
			for len(stack) > 0 && stack[len(stack)-1].level >= level {
				stack = stack[:len(stack)-1]
			}
			stack = append(stack, headingFrame{level: level, text: b.Text})
			out[i] = b
			continue
		}

		path := make([]string, len(stack))
		for j, f := range stack {
			path[j] = f.text
		}
		if b.Metadata == nil {
			b.Metadata = map[string]interface{}{}
		}
		b.Metadata["context_path"] = path
		out[i] = b
	}
	return out
}

func blocksToSections(blocks []parser.Block) []chunking.Section {
	sections := make([]chunking.Section, 0, len(blocks))
	for _, b := range blocks {
		sections = append(sections, chunking.Section{
			Text: b.Text,
			Type: string(b.Type),
			Meta: b.Metadata,
		})
	}
	return sections
}

func chunksToModel(docID, tenantID uuid.UUID, chunks []chunking.Chunk, graphEnabled bool, embeddingVersion int) []model.Chunk {
	out := make([]model.Chunk, 0, len(chunks))
	status := model.EnrichmentStatus{
		model.StageEmbeddingGeneration: {Status: model.StagePending, UpdatedAt: time.Now().UTC()},
		model.StageMetadataExtraction:  {Status: model.StagePending, UpdatedAt: time.Now().UTC()},
	}
	if graphEnabled {
		status[model.StageRelationExtraction] = model.StageStatus{Status: model.StagePending, UpdatedAt: time.Now().UTC()}
	}

	for i, c := range chunks {
		meta := model.ChunkMetadata{ContextPath: firstContextPath(c.Meta)}
		if wd, ok := c.Meta["is_whole_doc"].(bool); ok {
			meta.IsWholeDoc = wd
		}

		out = append(out, model.Chunk{
			DocID: docID, ChunkID: i + 1, TenantID: tenantID,
			Text: c.Text, BlockType: c.BlockType,
			Metadata:         meta,
			EmbeddingVersion: embeddingVersion,
			EnrichmentStatus: cloneStatus(status),
		})
	}
	return out
}

// firstContextPath reads the heading-stack path off a chunk's leading
// source section, a reasonable representative for a chunk composed of
// several adjacent sections that share the same heading ancestry.
func firstContextPath(meta map[string]interface{}) []string {
	sections, ok := meta["sections"].([]map[string]interface{})
	if !ok || len(sections) == 0 {
		return nil
	}
	cp, ok := sections[0]["context_path"].([]string)
	if !ok {
		return nil
	}
	return cp
}

func cloneStatus(s model.EnrichmentStatus) model.EnrichmentStatus {
	out := make(model.EnrichmentStatus, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

