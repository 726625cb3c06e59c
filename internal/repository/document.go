// Package repository implements the relational persistence layer:
// documents, chunks, settings, and the LLM audit log, all over a shared
// pooled *sqlx.DB.
package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pgvector/pgvector-go"

	"github.com/docforge/ingestproc/internal/model"
)

// DocumentRepository owns the documents table and the cascade delete of its
// chunks.
type DocumentRepository struct {
	db *sqlx.DB
}

func NewDocumentRepository(db *sqlx.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

func (r *DocumentRepository) Exists(ctx context.Context, docID uuid.UUID) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM documents WHERE doc_id = $1)`, docID)
	if err != nil {
		return false, fmt.Errorf("check document exists: %w", err)
	}
	return exists, nil
}

// InsertWithChunks persists the document and all its chunks in a single
// transaction, so a crash mid-write never leaves an orphaned document.
func (r *DocumentRepository) InsertWithChunks(ctx context.Context, doc model.Document, chunks []model.Chunk) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert_with_chunks tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.NamedExecContext(ctx, `
		INSERT INTO documents (doc_id, tenant_id, owner_user_id, filename, title, author, metadata, uploaded_at)
		VALUES (:doc_id, :tenant_id, :owner_user_id, :filename, :title, :author, :metadata, :uploaded_at)`,
		doc)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}

	for _, c := range chunks {
		var vec *pgvector.Vector
		if len(c.Embedding) > 0 {
			v := pgvector.NewVector(c.Embedding)
			vec = &v
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO chunks (doc_id, chunk_id, tenant_id, text, section, type, block_type,
			                     embedding, embedding_version, metadata, enrichment_status, text_tsv)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, to_tsvector('simple', $4))`,
			c.DocID, c.ChunkID, c.TenantID, c.Text, c.Section, c.Type, c.BlockType,
			vec, c.EmbeddingVersion, c.Metadata, c.EnrichmentStatus)
		if err != nil {
			return fmt.Errorf("insert chunk %d: %w", c.ChunkID, err)
		}
	}

	return tx.Commit()
}

// Delete removes the document and cascades to its chunks via the foreign
// key's ON DELETE CASCADE.
func (r *DocumentRepository) Delete(ctx context.Context, docID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM documents WHERE doc_id = $1`, docID)
	if err != nil {
		return fmt.Errorf("delete document %s: %w", docID, err)
	}
	return nil
}

func (r *DocumentRepository) Get(ctx context.Context, docID uuid.UUID) (*model.Document, error) {
	var doc model.Document
	err := r.db.GetContext(ctx, &doc, `SELECT * FROM documents WHERE doc_id = $1`, docID)
	if err != nil {
		return nil, fmt.Errorf("get document %s: %w", docID, err)
	}
	return &doc, nil
}
