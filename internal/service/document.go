package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"rtodocs/internal/logging"
	"rtodocs/internal/metrics"
	"rtodocs/internal/model"
	"rtodocs/internal/repository"
	"rtodocs/internal/storage"
	"rtodocs/internal/upload"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

var tracer = otel.Tracer("rtodocs/internal/service")

// DocumentListResult is the service-level DTO for paginated documents.
type DocumentListResult struct {
	Items  []model.Document `json:"documents"`
	Total  int              `json:"total"`
	Limit  int              `json:"limit"`
	Offset int              `json:"offset"`
}

// Download is an open document file. The caller must close Content.
type Download struct {
	Document *model.Document
	Content  io.ReadCloser
	Size     int64
}

// DocumentService defines the use cases for handling documents.
type DocumentService interface {
	// Upload streams a multipart body (file plus entity_type, entity_id,
	// document_type) into storage and records a PENDING document owned by caller.
	// On every failure after the bytes were stored, the stored file is removed.
	Upload(ctx context.Context, caller model.Caller, body io.Reader, boundary string) (*model.Document, error)

	// ListByEntity returns every document attached to an entity, newest first.
	ListByEntity(ctx context.Context, entityID string) ([]model.Document, error)

	// ListByStatus returns a page of documents in a status (PENDING when empty).
	ListByStatus(ctx context.Context, status string, limit, offset int) (*DocumentListResult, error)

	// Get returns a single document by its ID.
	Get(ctx context.Context, id string) (*model.Document, error)

	// Verify records a reviewer's decision. It does not require the document
	// to be PENDING: a later call overwrites status, verifier and time.
	Verify(ctx context.Context, caller model.Caller, id, status string) (*model.Document, error)

	// Open returns the stored bytes of a document.
	Open(ctx context.Context, id string) (*Download, error)

	// FindOrphans lists stored keys without a document row, skipping files
	// younger than minAge because their row may still be on its way.
	FindOrphans(ctx context.Context, minAge time.Duration) ([]string, error)

	// RemoveOrphans deletes the given keys from storage.
	RemoveOrphans(ctx context.Context, keys []string) error
}

// documentService is a concrete implementation of DocumentService.
type documentService struct {
	store    storage.Storage
	repo     repository.DocumentRepository
	acceptor *upload.Acceptor
	validate *validator.Validate
	log      *logging.Logger
	metrics  *metrics.Documents
	now      func() time.Time
	newID    func() string
	maxBytes int64
}

// Option customizes a DocumentService.
type Option func(*documentService)

// WithLogger sets the logger used for cleanup failures.
func WithLogger(l *logging.Logger) Option {
	return func(s *documentService) { s.log = l }
}

// WithMetrics records pipeline counters.
func WithMetrics(m *metrics.Documents) Option {
	return func(s *documentService) { s.metrics = m }
}

// WithMaxUploadBytes caps the file size (default 5 MiB).
func WithMaxUploadBytes(n int64) Option {
	return func(s *documentService) { s.maxBytes = n }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *documentService) { s.now = now }
}

// NewDocumentService constructs a new DocumentService.
func NewDocumentService(store storage.Storage, repo repository.DocumentRepository, opts ...Option) DocumentService {
	s := &documentService{
		store:    store,
		repo:     repo,
		validate: newValidator(),
		now:      time.Now,
		newID:    uuid.NewString,
		maxBytes: upload.DefaultMaxBytes,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.acceptor = upload.NewAcceptor(store, s.maxBytes)
	s.acceptor.OnCleanupError = func(key string, err error) {
		s.cleanupFailed(key, "upload_aborted", err)
	}
	return s
}

func (s *documentService) Upload(ctx context.Context, caller model.Caller, body io.Reader, boundary string) (doc *model.Document, err error) {
	ctx, span := tracer.Start(ctx, "DocumentService.Upload")
	defer func() { endSpan(span, err) }()

	if !caller.Authenticated() {
		return nil, ErrUnauthenticated
	}

	res, err := s.acceptor.Accept(ctx, body, boundary)
	if err != nil {
		if reason, ok := rejectionReason(err); ok {
			s.metrics.Rejected(reason)
			if reason == "too_large" {
				s.log.Warn("document_service", "upload_too_large", logging.Fields{
					"user_id":   caller.UserID,
					"max_bytes": s.acceptor.MaxBytes(),
				})
			}
			return nil, invalid(err)
		}
		return nil, err
	}
	if res.File == nil {
		s.metrics.Rejected("no_file")
		return nil, invalid(upload.ErrNoFile)
	}
	file := res.File
	span.SetAttributes(attribute.String("document.file_path", file.Key), attribute.Int64("document.size", file.Size))

	meta, err := s.parseMetadata(res)
	if err != nil {
		s.metrics.Rejected("invalid_metadata")
		s.discard(ctx, file.Key, "invalid_metadata")
		return nil, err
	}

	stored, err := s.repo.Create(ctx, &model.Document{
		ID:           s.newID(),
		UserID:       caller.UserID,
		EntityType:   meta.entityType,
		EntityID:     meta.entityID,
		DocumentType: meta.documentType,
		FilePath:     file.Key,
		FileName:     file.OriginalName,
		MimeType:     file.MimeType,
		Size:         file.Size,
		Status:       model.StatusPending,
		CreatedAt:    s.now().UTC(),
	})
	if err != nil {
		s.discard(ctx, file.Key, "record_insert_failed")
		return nil, fmt.Errorf("db save failed: %w", err)
	}

	s.metrics.Uploaded(string(stored.DocumentType))
	return stored, nil
}

func rejectionReason(err error) (string, bool) {
	switch {
	case errors.Is(err, upload.ErrInvalidFile):
		return "invalid_file", true
	case errors.Is(err, upload.ErrTooLarge):
		return "too_large", true
	case errors.Is(err, upload.ErrMultipleFiles):
		return "multiple_files", true
	case errors.Is(err, upload.ErrMalformed):
		return "malformed", true
	}
	return "", false
}

// discard removes a stored file synchronously. A failure is logged and
// counted but never replaces the error the caller is about to get.
func (s *documentService) discard(ctx context.Context, key, reason string) {
	if err := s.store.Delete(context.WithoutCancel(ctx), key); err != nil {
		s.cleanupFailed(key, reason, err)
	}
}

func (s *documentService) cleanupFailed(key, reason string, err error) {
	s.metrics.CleanupFailed(reason)
	s.log.Error("document_service", "upload_cleanup_failed", err, logging.Fields{
		"file_path": key,
		"reason":    reason,
	})
}

// ListByEntity returns an entity's documents without pagination.
func (s *documentService) ListByEntity(ctx context.Context, entityID string) ([]model.Document, error) {
	if strings.TrimSpace(entityID) == "" {
		return nil, ErrIDRequired
	}
	return s.repo.ListByEntity(ctx, entityID)
}

// ListByStatus returns paginated documents without exposing repository types.
func (s *documentService) ListByStatus(ctx context.Context, status string, limit, offset int) (*DocumentListResult, error) {
	st := model.StatusPending
	if status != "" {
		parsed, err := model.ParseStatus(status)
		if err != nil {
			return nil, invalid(err)
		}
		st = parsed
	}
	if limit <= 0 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	if offset < 0 {
		offset = 0
	}

	res, err := s.repo.ListByStatus(ctx, st, repository.PageQuery{Limit: limit, Offset: offset})
	if err != nil {
		return nil, err
	}
	return &DocumentListResult{Items: res.Items, Total: res.Total, Limit: limit, Offset: offset}, nil
}

// Get returns a document by ID.
func (s *documentService) Get(ctx context.Context, id string) (*model.Document, error) {
	if id == "" {
		return nil, ErrIDRequired
	}
	doc, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return doc, nil
}

func (s *documentService) Verify(ctx context.Context, caller model.Caller, id, status string) (doc *model.Document, err error) {
	ctx, span := tracer.Start(ctx, "DocumentService.Verify", trace.WithAttributes(attribute.String("document.id", id)))
	defer func() { endSpan(span, err) }()

	if !caller.Authenticated() {
		return nil, ErrUnauthenticated
	}
	if id == "" {
		return nil, ErrIDRequired
	}
	verdict, err := model.ParseVerdict(status)
	if err != nil {
		return nil, invalid(err)
	}

	doc, err = s.repo.SetVerificationStatus(ctx, id, caller.UserID, verdict, s.now().UTC())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	s.metrics.Verified(string(verdict))
	return doc, nil
}

func (s *documentService) Open(ctx context.Context, id string) (dl *Download, err error) {
	ctx, span := tracer.Start(ctx, "DocumentService.Open", trace.WithAttributes(attribute.String("document.id", id)))
	defer func() { endSpan(span, err) }()

	doc, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	rc, info, err := s.store.Get(ctx, doc.FilePath)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			s.log.Warn("document_service", "document_file_missing", logging.Fields{
				"document_id": doc.ID,
				"file_path":   doc.FilePath,
			})
			return nil, ErrFileMissing
		}
		return nil, fmt.Errorf("open file: %w", err)
	}
	return &Download{Document: doc, Content: rc, Size: info.Size}, nil
}

func (s *documentService) FindOrphans(ctx context.Context, minAge time.Duration) ([]string, error) {
	keys, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list storage: %w", err)
	}
	paths, err := s.repo.ListFilePaths(ctx)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	known := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		known[p] = struct{}{}
	}

	cutoff := s.now().Add(-minAge)
	orphans := make([]string, 0)
	for _, k := range keys {
		if _, ok := known[k]; ok {
			continue
		}
		if at, ok := storedAt(k); ok && at.After(cutoff) {
			continue
		}
		orphans = append(orphans, k)
	}
	sort.Strings(orphans)
	return orphans, nil
}

func (s *documentService) RemoveOrphans(ctx context.Context, keys []string) error {
	var errs []error
	for _, k := range keys {
		if err := s.store.Delete(ctx, k); err != nil {
			errs = append(errs, fmt.Errorf("delete %s: %w", k, err))
			continue
		}
		s.log.Info("document_service", "orphan_removed", logging.Fields{"file_path": k})
	}
	return errors.Join(errs...)
}

// storedAt reads the epoch-ms prefix of a generated key.
func storedAt(key string) (time.Time, bool) {
	prefix, _, ok := strings.Cut(key, "-")
	if !ok {
		return time.Time{}, false
	}
	ms, err := strconv.ParseInt(prefix, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.UnixMilli(ms), true
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
