package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/docforge/ingestproc/internal/model"
)

const embeddingConfigKey = "embedding_config"

// SettingsRepository owns the single-row-per-key settings table; today the
// only row is the embedding_config singleton the migration worker updates.
type SettingsRepository struct {
	db *sqlx.DB
}

func NewSettingsRepository(db *sqlx.DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// GetEmbeddingConfig returns (nil, nil) when no config has ever been
// persisted, which is the expected state on a brand new deployment.
func (r *SettingsRepository) GetEmbeddingConfig(ctx context.Context) (*model.EmbeddingConfig, error) {
	var raw []byte
	err := r.db.GetContext(ctx, &raw, `SELECT value FROM settings WHERE key = $1`, embeddingConfigKey)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get embedding config: %w", err)
	}

	var cfg model.EmbeddingConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("decode embedding config: %w", err)
	}
	return &cfg, nil
}

// UpsertEmbeddingConfig writes the singleton row, used by the migration
// worker on successful completion.
func (r *SettingsRepository) UpsertEmbeddingConfig(ctx context.Context, cfg model.EmbeddingConfig) error {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode embedding config: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO settings (key, value, created_at, updated_at)
		VALUES ($1, $2, now(), now())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
		embeddingConfigKey, raw)
	if err != nil {
		return fmt.Errorf("upsert embedding config: %w", err)
	}
	return nil
}
