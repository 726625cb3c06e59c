package worker

import (
	"context"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docforge/ingestproc/internal/embedder"
	"github.com/docforge/ingestproc/internal/logging"
	"github.com/docforge/ingestproc/internal/repository"
)

type fakeEmbedderVectors struct{ dim int }

func (f *fakeEmbedderVectors) Dimension() int { return f.dim }
func (f *fakeEmbedderVectors) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, f.dim)
	}
	return out, nil
}

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "sqlmock"), mock
}

func TestMigrationWorkerRunsSingleBatchToCompletion(t *testing.T) {
	db, mock := newMockDB(t)
	chunks := repository.NewChunkRepository(db)
	settings := repository.NewSettingsRepository(db)
	embed := embedder.NewAdaptiveBatcher(&fakeEmbedderVectors{dim: 4}, 32)

	docID := uuid.New()
	tenantID := uuid.New()

	mock.ExpectExec("ALTER TABLE chunks ADD COLUMN IF NOT EXISTS embedding_new vector").WillReturnResult(sqlmock.NewResult(0, 0))

	rows := sqlmock.NewRows([]string{
		"doc_id", "chunk_id", "tenant_id", "text", "section", "type", "block_type",
		"metadata", "embedding_version", "enrichment_status",
	}).AddRow(docID, 1, tenantID, "hello world", "", "", "", []byte(`{}`), 1, []byte(`{}`))
	mock.ExpectQuery("SELECT doc_id, chunk_id, tenant_id, text, section, type, block_type").
		WillReturnRows(rows)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE chunks SET embedding_new").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	mock.ExpectQuery("SELECT doc_id, chunk_id, tenant_id, text, section, type, block_type").
		WillReturnRows(sqlmock.NewRows([]string{
			"doc_id", "chunk_id", "tenant_id", "text", "section", "type", "block_type",
			"metadata", "embedding_version", "enrichment_status",
		}))

	mock.ExpectBegin()
	mock.ExpectExec("ALTER TABLE chunks DROP COLUMN embedding").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("ALTER TABLE chunks RENAME COLUMN embedding_new TO embedding").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	mock.ExpectExec("INSERT INTO settings").WillReturnResult(sqlmock.NewResult(0, 1))

	w := NewMigrationWorker(MigrationWorkerConfig{
		Log: logging.NoopLogger{}, DB: db, Chunks: chunks, Settings: settings, Embedder: embed,
		TargetVersion: 2, ModelName: "new-model", Dimension: 4, BatchSize: 10,
	})

	err := w.Run(context.Background())
	require.NoError(t, err)

	select {
	case <-w.Done():
	default:
		t.Fatal("expected done channel to be closed after successful migration")
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

// TestMigrationWorkerResumeDoesNotDropSideColumn guards against
// resurrecting a DROP COLUMN before the ADD: a resumed run must not wipe
// rows a prior, interrupted run already wrote to embedding_new.
func TestMigrationWorkerResumeDoesNotDropSideColumn(t *testing.T) {
	db, mock := newMockDB(t)
	chunks := repository.NewChunkRepository(db)
	settings := repository.NewSettingsRepository(db)
	embed := embedder.NewAdaptiveBatcher(&fakeEmbedderVectors{dim: 4}, 32)

	mock.ExpectExec("ALTER TABLE chunks ADD COLUMN IF NOT EXISTS embedding_new vector").WillReturnResult(sqlmock.NewResult(0, 0))

	mock.ExpectQuery("SELECT doc_id, chunk_id, tenant_id, text, section, type, block_type").
		WillReturnRows(sqlmock.NewRows([]string{
			"doc_id", "chunk_id", "tenant_id", "text", "section", "type", "block_type",
			"metadata", "embedding_version", "enrichment_status",
		}))

	mock.ExpectBegin()
	mock.ExpectExec("ALTER TABLE chunks DROP COLUMN embedding").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("ALTER TABLE chunks RENAME COLUMN embedding_new TO embedding").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	mock.ExpectExec("INSERT INTO settings").WillReturnResult(sqlmock.NewResult(0, 1))

	w := NewMigrationWorker(MigrationWorkerConfig{
		Log: logging.NoopLogger{}, DB: db, Chunks: chunks, Settings: settings, Embedder: embed,
		TargetVersion: 2, ModelName: "new-model", Dimension: 4, BatchSize: 10,
	})

	err := w.Run(context.Background())
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
