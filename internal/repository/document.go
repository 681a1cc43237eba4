package repository

import (
	"context"
	"time"

	"rtodocs/internal/model"
)

// DocumentRepository defines data access for documents using SQL queries only.
// No business logic here, only persistence.
// Lookups of a missing row return sql.ErrNoRows unwrapped.
type DocumentRepository interface {
	// Create inserts a new document record.
	// The caller provides ID and CreatedAt; status is stored as given (PENDING on upload).
	// Returns the stored document as read back from the database.
	Create(ctx context.Context, doc *model.Document) (*model.Document, error)

	// FindByID returns a document by its ID.
	FindByID(ctx context.Context, id string) (*model.Document, error)

	// ListByEntity returns every document attached to entityID, newest first.
	ListByEntity(ctx context.Context, entityID string) ([]model.Document, error)

	// ListByStatus returns a page of documents in the given status, newest first, and the total count.
	ListByStatus(ctx context.Context, status model.Status, pq PageQuery) (*PageResult[model.Document], error)

	// SetVerificationStatus sets status, verifier and verification time in one statement
	// and returns the updated row. It does not look at the current status.
	SetVerificationStatus(ctx context.Context, id, verifierID string, status model.Status, at time.Time) (*model.Document, error)

	// ListFilePaths returns the storage key of every document.
	ListFilePaths(ctx context.Context) ([]string, error)
}
