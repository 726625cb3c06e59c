package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/docforge/ingestproc/internal/model"
)

// LLMLogRepository is the append-only audit trail for every LLM and
// embedding call the processor makes.
type LLMLogRepository struct {
	db *sqlx.DB
}

func NewLLMLogRepository(db *sqlx.DB) *LLMLogRepository {
	return &LLMLogRepository{db: db}
}

func (r *LLMLogRepository) Append(ctx context.Context, rec model.LLMLogRecord) error {
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO llm_requests_log
			(start_time, end_time, duration_ms, success, request_type, model, prompt,
			 raw_response, error, prompt_tokens, completion_tokens, tenant_id, doc_id, chunk_id)
		VALUES
			(:start_time, :end_time, :duration_ms, :success, :request_type, :model, :prompt,
			 :raw_response, :error, :prompt_tokens, :completion_tokens, :tenant_id, :doc_id, :chunk_id)`,
		rec)
	if err != nil {
		return fmt.Errorf("append llm log record: %w", err)
	}
	return nil
}
