package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pgvector/pgvector-go"

	"github.com/docforge/ingestproc/internal/model"
)

// ChunkRepository covers chunk reads and the bulk embedding writes used by
// the enrichment and migration workers.
type ChunkRepository struct {
	db *sqlx.DB
}

func NewChunkRepository(db *sqlx.DB) *ChunkRepository {
	return &ChunkRepository{db: db}
}

// BulkSetEmbeddings writes one embedding per chunk in a single transaction
// and marks embedding_generation completed for each row.
func (r *ChunkRepository) BulkSetEmbeddings(ctx context.Context, docID uuid.UUID, version int, embeddings map[int][]float32) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin bulk embedding tx: %w", err)
	}
	defer tx.Rollback()

	for chunkID, vector := range embeddings {
		v := pgvector.NewVector(vector)
		_, err := tx.ExecContext(ctx, `
			UPDATE chunks
			SET embedding = $1, embedding_version = $2,
			    enrichment_status = jsonb_set(enrichment_status, '{embedding_generation}',
			        jsonb_build_object('status', 'completed', 'updated_at', now()))
			WHERE doc_id = $3 AND chunk_id = $4`,
			v, version, docID, chunkID)
		if err != nil {
			return fmt.Errorf("set embedding for chunk %d: %w", chunkID, err)
		}
	}

	return tx.Commit()
}

// MarkStageFailedBatch marks every chunk in chunkIDs failed for stage,
// used when an entire embedding batch fails together.
func (r *ChunkRepository) MarkStageFailedBatch(ctx context.Context, docID uuid.UUID, chunkIDs []int, stage, message string) error {
	for _, chunkID := range chunkIDs {
		_, err := r.db.ExecContext(ctx, `
			UPDATE chunks
			SET enrichment_status = jsonb_set(enrichment_status, $1,
			    jsonb_build_object('status', 'failed', 'updated_at', now(), 'error_message', $2::text))
			WHERE doc_id = $3 AND chunk_id = $4`,
			fmt.Sprintf("{%s}", stage), message, docID, chunkID)
		if err != nil {
			return fmt.Errorf("mark chunk %d failed for %s: %w", chunkID, stage, err)
		}
	}
	return nil
}

// ChunksBelowVersion selects a batch of chunks still on an old embedding
// version, for the migration worker's side-column-fill loop.
func (r *ChunkRepository) ChunksBelowVersion(ctx context.Context, targetVersion, batchSize int) ([]model.Chunk, error) {
	var chunks []model.Chunk
	err := r.db.SelectContext(ctx, &chunks, `
		SELECT doc_id, chunk_id, tenant_id, text, section, type, block_type,
		       metadata, embedding_version, enrichment_status
		FROM chunks
		WHERE embedding_version < $1
		ORDER BY doc_id, chunk_id
		LIMIT $2`, targetVersion, batchSize)
	if err != nil {
		return nil, fmt.Errorf("select chunks below version %d: %w", targetVersion, err)
	}
	return chunks, nil
}

// BulkSetEmbeddingNew writes into the side column embedding_new created by
// the migration worker before the atomic rename.
func (r *ChunkRepository) BulkSetEmbeddingNew(ctx context.Context, targetVersion int, embeddings map[uuid.UUID]map[int][]float32) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin embedding_new tx: %w", err)
	}
	defer tx.Rollback()

	for docID, byChunk := range embeddings {
		for chunkID, vector := range byChunk {
			v := pgvector.NewVector(vector)
			_, err := tx.ExecContext(ctx, `
				UPDATE chunks SET embedding_new = $1, embedding_version = $2
				WHERE doc_id = $3 AND chunk_id = $4`,
				v, targetVersion, docID, chunkID)
			if err != nil {
				return fmt.Errorf("set embedding_new for %s/%d: %w", docID, chunkID, err)
			}
		}
	}

	return tx.Commit()
}

func (r *ChunkRepository) CountByDoc(ctx context.Context, docID uuid.UUID) (int, error) {
	var n int
	err := r.db.GetContext(ctx, &n, `SELECT count(*) FROM chunks WHERE doc_id = $1`, docID)
	if err != nil {
		return 0, fmt.Errorf("count chunks for %s: %w", docID, err)
	}
	return n, nil
}
