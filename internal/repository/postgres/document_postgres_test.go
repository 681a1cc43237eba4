package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"rtodocs/internal/model"
	"rtodocs/internal/repository"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var columns = []string{
	"id", "user_id", "entity_type", "entity_id", "document_type", "file_path", "file_name",
	"mime_type", "size", "status", "verified_by", "verified_at", "created_at",
}

func newRepo(t *testing.T) (*DocumentPostgres, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewDocumentPostgres(db), mock
}

func TestDocumentPostgres_Create(t *testing.T) {
	repo, mock := newRepo(t)
	ctx := context.Background()

	now := time.Now().UTC()
	doc := &model.Document{
		ID:           "doc-1",
		UserID:       "user-1",
		EntityType:   model.EntityVehicle,
		EntityID:     "veh-1",
		DocumentType: model.DocInsurance,
		FilePath:     "1700000000000-42.pdf",
		FileName:     "policy.pdf",
		MimeType:     "application/pdf",
		Size:         123,
		Status:       model.StatusPending,
		CreatedAt:    now,
	}

	rows := sqlmock.NewRows(columns).
		AddRow(doc.ID, doc.UserID, "VEHICLE", doc.EntityID, "INSURANCE", doc.FilePath, doc.FileName,
			doc.MimeType, doc.Size, "PENDING", nil, nil, now)

	mock.ExpectQuery("INSERT INTO documents").
		WithArgs(doc.ID, doc.UserID, "VEHICLE", doc.EntityID, "INSURANCE", doc.FilePath, doc.FileName,
			doc.MimeType, doc.Size, "PENDING", now).
		WillReturnRows(rows)

	result, err := repo.Create(ctx, doc)

	require.NoError(t, err)
	assert.Equal(t, doc.ID, result.ID)
	assert.Equal(t, model.StatusPending, result.Status)
	assert.Equal(t, model.EntityVehicle, result.EntityType)
	assert.Nil(t, result.VerifiedBy)
	assert.Nil(t, result.VerifiedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentPostgres_FindByID(t *testing.T) {
	repo, mock := newRepo(t)
	ctx := context.Background()

	t.Run("found", func(t *testing.T) {
		verifiedAt := time.Now().UTC()
		rows := sqlmock.NewRows(columns).
			AddRow("doc-1", "user-1", "VEHICLE", "veh-1", "PAN", "a.pdf", "pan.pdf",
				"application/pdf", 100, "VERIFIED", "officer-1", verifiedAt, time.Now())

		mock.ExpectQuery("SELECT (.+) FROM documents WHERE id = ?").
			WithArgs("doc-1").
			WillReturnRows(rows)

		doc, err := repo.FindByID(ctx, "doc-1")

		require.NoError(t, err)
		assert.Equal(t, "doc-1", doc.ID)
		require.NotNil(t, doc.VerifiedBy)
		assert.Equal(t, "officer-1", *doc.VerifiedBy)
		require.NotNil(t, doc.VerifiedAt)
		assert.True(t, verifiedAt.Equal(*doc.VerifiedAt))
	})

	t.Run("not found", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM documents WHERE id = ?").
			WithArgs("missing").
			WillReturnError(sql.ErrNoRows)

		doc, err := repo.FindByID(ctx, "missing")

		assert.True(t, errors.Is(err, sql.ErrNoRows))
		assert.Nil(t, doc)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentPostgres_ListByEntity(t *testing.T) {
	repo, mock := newRepo(t)
	ctx := context.Background()

	t.Run("newest first", func(t *testing.T) {
		newer := time.Now().UTC()
		older := newer.Add(-time.Hour)
		rows := sqlmock.NewRows(columns).
			AddRow("doc-2", "u", "VEHICLE", "veh-1", "PAN", "b.pdf", "b.pdf", "application/pdf", 1, "PENDING", nil, nil, newer).
			AddRow("doc-1", "u", "VEHICLE", "veh-1", "PAN", "a.pdf", "a.pdf", "application/pdf", 1, "PENDING", nil, nil, older)

		mock.ExpectQuery("SELECT (.+) FROM documents WHERE entity_id = \\$1 ORDER BY created_at DESC").
			WithArgs("veh-1").
			WillReturnRows(rows)

		docs, err := repo.ListByEntity(ctx, "veh-1")

		require.NoError(t, err)
		require.Len(t, docs, 2)
		assert.Equal(t, "doc-2", docs[0].ID)
		assert.Equal(t, "doc-1", docs[1].ID)
	})

	t.Run("empty", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM documents WHERE entity_id").
			WithArgs("none").
			WillReturnRows(sqlmock.NewRows(columns))

		docs, err := repo.ListByEntity(ctx, "none")

		require.NoError(t, err)
		assert.NotNil(t, docs)
		assert.Empty(t, docs)
	})

	t.Run("query error", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM documents WHERE entity_id").
			WithArgs("boom").
			WillReturnError(errors.New("connection reset"))

		_, err := repo.ListByEntity(ctx, "boom")
		assert.EqualError(t, err, "connection reset")
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentPostgres_ListByStatus(t *testing.T) {
	repo, mock := newRepo(t)
	ctx := context.Background()

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM documents WHERE status = \\$1").
		WithArgs("PENDING").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	rows := sqlmock.NewRows(columns).
		AddRow("doc-1", "u", "CHALLAN", "ch-1", "OTHER", "a.png", "a.png", "image/png", 1, "PENDING", nil, nil, time.Now())

	mock.ExpectQuery("SELECT (.+) FROM documents WHERE status = \\$1 ORDER BY").
		WithArgs("PENDING", 1, 2).
		WillReturnRows(rows)

	res, err := repo.ListByStatus(ctx, model.StatusPending, repository.PageQuery{Limit: 1, Offset: 2})

	require.NoError(t, err)
	assert.Equal(t, 3, res.Total)
	assert.Len(t, res.Items, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentPostgres_SetVerificationStatus(t *testing.T) {
	repo, mock := newRepo(t)
	ctx := context.Background()
	at := time.Now().UTC()

	t.Run("updated", func(t *testing.T) {
		rows := sqlmock.NewRows(columns).
			AddRow("doc-1", "u", "VEHICLE", "veh-1", "PAN", "a.pdf", "a.pdf", "application/pdf", 1, "REJECTED", "officer-9", at, at.Add(-time.Hour))

		mock.ExpectQuery("UPDATE documents SET status = \\$1, verified_by = \\$2, verified_at = \\$3 WHERE id = \\$4 RETURNING").
			WithArgs("REJECTED", "officer-9", at, "doc-1").
			WillReturnRows(rows)

		doc, err := repo.SetVerificationStatus(ctx, "doc-1", "officer-9", model.StatusRejected, at)

		require.NoError(t, err)
		assert.Equal(t, model.StatusRejected, doc.Status)
		assert.Equal(t, "officer-9", *doc.VerifiedBy)
	})

	t.Run("missing row", func(t *testing.T) {
		mock.ExpectQuery("UPDATE documents").
			WithArgs("VERIFIED", "officer-9", at, "missing").
			WillReturnRows(sqlmock.NewRows(columns))

		doc, err := repo.SetVerificationStatus(ctx, "missing", "officer-9", model.StatusVerified, at)

		assert.ErrorIs(t, err, sql.ErrNoRows)
		assert.Nil(t, doc)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentPostgres_ListFilePaths(t *testing.T) {
	repo, mock := newRepo(t)

	mock.ExpectQuery("SELECT file_path FROM documents").
		WillReturnRows(sqlmock.NewRows([]string{"file_path"}).AddRow("a.pdf").AddRow("b.png"))

	paths, err := repo.ListFilePaths(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []string{"a.pdf", "b.png"}, paths)
	assert.NoError(t, mock.ExpectationsWereMet())
}
