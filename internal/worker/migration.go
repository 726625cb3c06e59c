package worker

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/docforge/ingestproc/internal/embedder"
	"github.com/docforge/ingestproc/internal/logging"
	"github.com/docforge/ingestproc/internal/model"
	"github.com/docforge/ingestproc/internal/repository"
)

// MigrationWorker performs the online embedding-dimension migration: a
// side column is filled batch-by-batch, then atomically swapped in for the
// live column. It runs to the exclusion of every enrichment worker and
// signals shutdown on completion so the operator restarts in steady state.
type MigrationWorker struct {
	log      logging.Logger
	db       *sqlx.DB
	chunks   *repository.ChunkRepository
	settings *repository.SettingsRepository
	embed    *embedder.AdaptiveBatcher

	targetVersion int
	modelName     string
	dimension     int
	batchSize     int

	// done is closed once the migration completes, the signal the
	// supervisor watches to shut the process down for a clean restart.
	done chan struct{}
}

type MigrationWorkerConfig struct {
	Log           logging.Logger
	DB            *sqlx.DB
	Chunks        *repository.ChunkRepository
	Settings      *repository.SettingsRepository
	Embedder      *embedder.AdaptiveBatcher
	TargetVersion int
	ModelName     string
	Dimension     int
	BatchSize     int
}

func NewMigrationWorker(cfg MigrationWorkerConfig) *MigrationWorker {
	return &MigrationWorker{
		log: cfg.Log, db: cfg.DB, chunks: cfg.Chunks, settings: cfg.Settings, embed: cfg.Embedder,
		targetVersion: cfg.TargetVersion, modelName: cfg.ModelName, dimension: cfg.Dimension,
		batchSize: cfg.BatchSize, done: make(chan struct{}),
	}
}

// Done returns a channel closed once the migration finishes successfully,
// the supervisor's cue to shut everything down for a clean restart.
func (w *MigrationWorker) Done() <-chan struct{} { return w.done }

// Run executes the full protocol: ensure the side column exists, loop
// re-embedding chunks still below the target version, then atomically
// rename the side column into place and persist the new config.
// Resume-on-restart falls out of the selection condition in
// ChunksBelowVersion: a restart after a mid-loop shutdown leaves the side
// column and every row already written to it in place, so only the rows
// that never got re-embedded are picked up again.
func (w *MigrationWorker) Run(ctx context.Context) error {
	if err := w.ensureSideColumn(ctx); err != nil {
		return fmt.Errorf("ensure embedding_new column: %w", err)
	}

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		batch, err := w.chunks.ChunksBelowVersion(ctx, w.targetVersion, w.batchSize)
		if err != nil {
			return fmt.Errorf("select migration batch: %w", err)
		}
		if len(batch) == 0 {
			break
		}

		if err := w.migrateBatch(ctx, batch); err != nil {
			return fmt.Errorf("migrate batch: %w", err)
		}
		w.log.Info("migration batch complete", map[string]interface{}{
			"chunks": len(batch), "target_version": w.targetVersion,
		})
	}

	if err := w.swapColumns(ctx); err != nil {
		return fmt.Errorf("swap embedding columns: %w", err)
	}

	cfg := model.EmbeddingConfig{ModelName: w.modelName, Dimension: w.dimension, Version: w.targetVersion}
	if err := w.settings.UpsertEmbeddingConfig(ctx, cfg); err != nil {
		return fmt.Errorf("persist embedding config: %w", err)
	}

	w.log.Info("embedding migration complete, signaling shutdown", map[string]interface{}{
		"target_version": w.targetVersion, "dimension": w.dimension,
	})
	close(w.done)
	return nil
}

// migrateBatch re-embeds one batch, grouped per document so each document's
// chunks are encoded together, and bulk-writes the results into the side
// column.
func (w *MigrationWorker) migrateBatch(ctx context.Context, batch []model.Chunk) error {
	byDoc := groupByDoc(batch)

	embeddings := make(map[uuid.UUID]map[int][]float32, len(byDoc))
	for docID, chunks := range byDoc {
		texts := make([]string, len(chunks))
		for i, c := range chunks {
			texts[i] = c.Text
		}

		vectors, err := w.embed.EncodeBatch(ctx, texts)
		if err != nil {
			return fmt.Errorf("re-embed doc %s: %w", docID, err)
		}

		byChunk := make(map[int][]float32, len(chunks))
		for i, c := range chunks {
			byChunk[c.ChunkID] = vectors[i]
		}
		embeddings[docID] = byChunk
	}

	return w.chunks.BulkSetEmbeddingNew(ctx, w.targetVersion, embeddings)
}

// ensureSideColumn is intentionally not preceded by a DROP: a resumed
// migration after a mid-loop shutdown has already written some rows into
// embedding_new (and bumped their embedding_version to targetVersion),
// and dropping the column here would orphan those rows with a NULL
// embedding at swap time since ChunksBelowVersion would no longer select
// them for re-embedding.
func (w *MigrationWorker) ensureSideColumn(ctx context.Context) error {
	if _, err := w.db.ExecContext(ctx,
		fmt.Sprintf(`ALTER TABLE chunks ADD COLUMN IF NOT EXISTS embedding_new vector(%d)`, w.dimension)); err != nil {
		return fmt.Errorf("add embedding_new: %w", err)
	}
	return nil
}

func (w *MigrationWorker) swapColumns(ctx context.Context) error {
	tx, err := w.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin swap tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `ALTER TABLE chunks DROP COLUMN embedding`); err != nil {
		return fmt.Errorf("drop old embedding column: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `ALTER TABLE chunks RENAME COLUMN embedding_new TO embedding`); err != nil {
		return fmt.Errorf("rename embedding_new: %w", err)
	}
	return tx.Commit()
}
