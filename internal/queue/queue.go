// Package queue implements the task queue and the per-chunk enrichment
// claim protocol on top of Postgres row-level locks, so concurrent workers
// never block on or double-process the same row.
package queue

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/docforge/ingestproc/internal/model"
)

// TaskQueue wraps the knowledge_events table and the chunks table's
// per-stage enrichment claim.
type TaskQueue struct {
	db *sqlx.DB
}

func New(db *sqlx.DB) *TaskQueue {
	return &TaskQueue{db: db}
}

// ClaimNext atomically selects the oldest "new" row for operation, flips it
// to "processing", and returns it. Returns (nil, nil) when no row is
// available.
func (q *TaskQueue) ClaimNext(ctx context.Context, operation model.Operation) (*model.Task, error) {
	tx, err := q.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin claim_next tx: %w", err)
	}
	defer tx.Rollback()

	var task model.Task
	err = tx.GetContext(ctx, &task, `
		SELECT id, item_uuid, tenant_id, user_id, operation, operation_time,
		       item_name, item_type, content, status, s3_path, result_message
		FROM knowledge_events
		WHERE operation = $1 AND status = $2
		ORDER BY operation_time ASC
		FOR UPDATE SKIP LOCKED
		LIMIT 1`, operation, model.TaskStatusNew)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select claimable task: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE knowledge_events SET status = $1 WHERE id = $2`,
		model.TaskStatusProcessing, task.ID); err != nil {
		return nil, fmt.Errorf("mark task processing: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit claim_next tx: %w", err)
	}

	task.Status = model.TaskStatusProcessing
	return &task, nil
}

// Complete performs the terminal transition to done or failed. Idempotent:
// completing an already-terminal task is a no-op, not an error.
func (q *TaskQueue) Complete(ctx context.Context, taskID int64, status model.TaskStatus, message string) error {
	if status != model.TaskStatusDone && status != model.TaskStatusFailed {
		return fmt.Errorf("complete: status %q is not terminal", status)
	}
	_, err := q.db.ExecContext(ctx, `
		UPDATE knowledge_events
		SET status = $1, result_message = $2
		WHERE id = $3 AND status NOT IN ($4, $5)`,
		status, message, taskID, model.TaskStatusDone, model.TaskStatusFailed)
	if err != nil {
		return fmt.Errorf("complete task %d: %w", taskID, err)
	}
	return nil
}

// ClaimPendingChunks flips up to batchSize chunks' enrichment_status for
// stage from pending to processing, in deterministic (doc_id, chunk_id)
// order, and returns the claimed rows.
func (q *TaskQueue) ClaimPendingChunks(ctx context.Context, stage string, batchSize int) ([]model.Chunk, error) {
	tx, err := q.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin claim_pending_chunks tx: %w", err)
	}
	defer tx.Rollback()

	var chunks []model.Chunk
	err = tx.SelectContext(ctx, &chunks, `
		SELECT doc_id, chunk_id, tenant_id, text, section, type, block_type,
		       metadata, embedding_version, enrichment_status
		FROM chunks
		WHERE enrichment_status -> $1 ->> 'status' = $2
		ORDER BY doc_id, chunk_id
		FOR UPDATE SKIP LOCKED
		LIMIT $3`, stage, model.StagePending, batchSize)
	if err != nil {
		return nil, fmt.Errorf("select claimable chunks: %w", err)
	}
	if len(chunks) == 0 {
		return nil, tx.Commit()
	}

	now := time.Now().UTC()
	for i := range chunks {
		if chunks[i].EnrichmentStatus == nil {
			chunks[i].EnrichmentStatus = model.EnrichmentStatus{}
		}
		chunks[i].EnrichmentStatus[stage] = model.StageStatus{Status: model.StageProcessing, UpdatedAt: now}

		if _, err := tx.ExecContext(ctx, `
			UPDATE chunks SET enrichment_status = jsonb_set(enrichment_status, $1, $2::jsonb)
			WHERE doc_id = $3 AND chunk_id = $4`,
			stagePath(stage), stageStatusJSON(model.StageProcessing, now, ""),
			chunks[i].DocID, chunks[i].ChunkID); err != nil {
			return nil, fmt.Errorf("mark chunk processing: %w", err)
		}
	}

	return chunks, tx.Commit()
}

// UpdateChunkStage merges a terminal (or intermediate) status into a
// chunk's enrichment_status, and when status is completed and result is
// non-nil also merges result into the chunk's metadata under llm_<stage>.
func (q *TaskQueue) UpdateChunkStage(ctx context.Context, docID uuid.UUID, chunkID int, stage, status string, result map[string]interface{}, errMsg string) error {
	now := time.Now().UTC()

	_, err := q.db.ExecContext(ctx, `
		UPDATE chunks SET enrichment_status = jsonb_set(enrichment_status, $1, $2::jsonb)
		WHERE doc_id = $3 AND chunk_id = $4`,
		stagePath(stage), stageStatusJSON(status, now, errMsg), docID, chunkID)
	if err != nil {
		return fmt.Errorf("update chunk stage: %w", err)
	}

	if result == nil || status != model.StageCompleted {
		return nil
	}

	metaKey := "llm_" + stage
	_, err = q.db.ExecContext(ctx, `
		UPDATE chunks SET metadata = jsonb_set(metadata, $1, $2::jsonb)
		WHERE doc_id = $3 AND chunk_id = $4`,
		pgPath(metaKey), resultJSON(result), docID, chunkID)
	if err != nil {
		return fmt.Errorf("merge llm result into metadata: %w", err)
	}
	return nil
}
