package postgres

import (
	"context"
	"database/sql"
	"time"

	"rtodocs/internal/model"
	"rtodocs/internal/repository"
)

const documentColumns = `id, user_id, entity_type, entity_id, document_type, file_path, file_name,
		mime_type, size, status, verified_by, verified_at, created_at`

// DocumentPostgres is a PostgreSQL implementation of repository.DocumentRepository.
// It uses database/sql with parameterized queries and contains no business logic.
type DocumentPostgres struct {
	db *sql.DB
}

// NewDocumentPostgres creates a new DocumentPostgres repository.
func NewDocumentPostgres(db *sql.DB) *DocumentPostgres {
	return &DocumentPostgres{db: db}
}

var _ repository.DocumentRepository = (*DocumentPostgres)(nil)

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(s rowScanner) (*model.Document, error) {
	var (
		d          model.Document
		verifiedBy sql.NullString
		verifiedAt sql.NullTime
	)
	if err := s.Scan(
		&d.ID,
		&d.UserID,
		&d.EntityType,
		&d.EntityID,
		&d.DocumentType,
		&d.FilePath,
		&d.FileName,
		&d.MimeType,
		&d.Size,
		&d.Status,
		&verifiedBy,
		&verifiedAt,
		&d.CreatedAt,
	); err != nil {
		return nil, err
	}
	if verifiedBy.Valid {
		v := verifiedBy.String
		d.VerifiedBy = &v
	}
	if verifiedAt.Valid {
		v := verifiedAt.Time
		d.VerifiedAt = &v
	}
	return &d, nil
}

// Create inserts a new document row and returns the stored record.
func (r *DocumentPostgres) Create(ctx context.Context, doc *model.Document) (*model.Document, error) {
	const q = `
		INSERT INTO documents (id, user_id, entity_type, entity_id, document_type, file_path,
			file_name, mime_type, size, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING ` + documentColumns
	row := r.db.QueryRowContext(ctx, q,
		doc.ID,
		doc.UserID,
		doc.EntityType,
		doc.EntityID,
		doc.DocumentType,
		doc.FilePath,
		doc.FileName,
		doc.MimeType,
		doc.Size,
		doc.Status,
		doc.CreatedAt,
	)
	return scanDocument(row)
}

// FindByID fetches a single document by its ID.
func (r *DocumentPostgres) FindByID(ctx context.Context, id string) (*model.Document, error) {
	const q = `SELECT ` + documentColumns + ` FROM documents WHERE id = $1`
	return scanDocument(r.db.QueryRowContext(ctx, q, id))
}

// ListByEntity returns all documents for an entity ordered newest first.
func (r *DocumentPostgres) ListByEntity(ctx context.Context, entityID string) ([]model.Document, error) {
	const q = `SELECT ` + documentColumns + `
		FROM documents
		WHERE entity_id = $1
		ORDER BY created_at DESC, id DESC`
	rows, err := r.db.QueryContext(ctx, q, entityID)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

// ListByStatus returns documents in a status using LIMIT/OFFSET pagination and a total count.
func (r *DocumentPostgres) ListByStatus(ctx context.Context, status model.Status, pq repository.PageQuery) (*repository.PageResult[model.Document], error) {
	const qCount = `SELECT COUNT(*) FROM documents WHERE status = $1`
	var total int
	if err := r.db.QueryRowContext(ctx, qCount, status).Scan(&total); err != nil {
		return nil, err
	}

	const qList = `SELECT ` + documentColumns + `
		FROM documents
		WHERE status = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`
	rows, err := r.db.QueryContext(ctx, qList, status, pq.Limit, pq.Offset)
	if err != nil {
		return nil, err
	}
	items, err := collect(rows)
	if err != nil {
		return nil, err
	}

	return &repository.PageResult[model.Document]{
		Items: items,
		Total: total,
	}, nil
}

// SetVerificationStatus updates the review fields atomically and returns the new row.
// A missing id yields sql.ErrNoRows.
func (r *DocumentPostgres) SetVerificationStatus(ctx context.Context, id, verifierID string, status model.Status, at time.Time) (*model.Document, error) {
	const q = `
		UPDATE documents
		SET status = $1, verified_by = $2, verified_at = $3
		WHERE id = $4
		RETURNING ` + documentColumns
	return scanDocument(r.db.QueryRowContext(ctx, q, status, verifierID, at, id))
}

// ListFilePaths returns every stored file_path.
func (r *DocumentPostgres) ListFilePaths(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT file_path FROM documents`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	paths := make([]string, 0)
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

func collect(rows *sql.Rows) ([]model.Document, error) {
	defer rows.Close()

	items := make([]model.Document, 0)
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
