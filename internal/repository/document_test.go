package repository

import (
	"context"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docforge/ingestproc/internal/model"
)

func TestDocumentRepositoryInsertWithChunksCommitsOneTransaction(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewDocumentRepository(sqlx.NewDb(db, "sqlmock"))

	docID := uuid.New()
	tenantID := uuid.New()
	doc := model.Document{DocID: docID, TenantID: tenantID, Filename: "report.pdf"}
	chunks := []model.Chunk{
		{DocID: docID, ChunkID: 0, TenantID: tenantID, Text: "first chunk"},
		{DocID: docID, ChunkID: 1, TenantID: tenantID, Text: "second chunk"},
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO documents").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO chunks").WithArgs(
		docID, 0, tenantID, "first chunk", "", "", "",
		nil, 0, sqlmock.AnyArg(), sqlmock.AnyArg(),
	).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO chunks").WithArgs(
		docID, 1, tenantID, "second chunk", "", "", "",
		nil, 0, sqlmock.AnyArg(), sqlmock.AnyArg(),
	).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err = repo.InsertWithChunks(context.Background(), doc, chunks)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentRepositoryInsertWithChunksRollsBackOnChunkFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewDocumentRepository(sqlx.NewDb(db, "sqlmock"))

	docID := uuid.New()
	doc := model.Document{DocID: docID, Filename: "report.pdf"}
	chunks := []model.Chunk{{DocID: docID, ChunkID: 0, Text: "first chunk"}}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO documents").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO chunks").WillReturnError(assert.AnError)
	mock.ExpectRollback()

	err = repo.InsertWithChunks(context.Background(), doc, chunks)
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentRepositoryDelete(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewDocumentRepository(sqlx.NewDb(db, "sqlmock"))
	docID := uuid.New()

	mock.ExpectExec("DELETE FROM documents").WithArgs(docID).WillReturnResult(sqlmock.NewResult(0, 1))

	err = repo.Delete(context.Background(), docID)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
