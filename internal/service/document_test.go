package service

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"testing"
	"time"

	"rtodocs/internal/logging"
	"rtodocs/internal/metrics"
	"rtodocs/internal/model"
	"rtodocs/internal/repository"
	"rtodocs/internal/repository/memory"
	repoMocks "rtodocs/internal/repository/mocks"
	"rtodocs/internal/storage"
	"rtodocs/internal/upload"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var (
	fixedNow = time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)
	citizen  = model.Caller{UserID: "user-1", Role: model.RoleCitizen}
	officer  = model.Caller{UserID: "officer-1", Role: model.RoleRTOOfficer}
)

type formPart struct {
	field       string
	filename    string
	contentType string
	body        string
}

func multipartBody(t *testing.T, parts ...formPart) (*bytes.Buffer, string) {
	t.Helper()
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)
	for _, p := range parts {
		if p.filename == "" {
			require.NoError(t, w.WriteField(p.field, p.body))
			continue
		}
		h := textproto.MIMEHeader{}
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, p.field, p.filename))
		h.Set("Content-Type", p.contentType)
		pw, err := w.CreatePart(h)
		require.NoError(t, err)
		_, err = pw.Write([]byte(p.body))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf, w.Boundary()
}

func pdfPart(body string) formPart {
	return formPart{field: upload.FileField, filename: "rc.pdf", contentType: "application/pdf", body: body}
}

func validFields() []formPart {
	return []formPart{
		{field: FieldEntityType, body: "vehicle"},
		{field: FieldEntityID, body: "KA01AB1234"},
		{field: FieldDocumentType, body: "insurance"},
	}
}

type fixture struct {
	store storage.Storage
	repo  *memory.DocumentMemory
	reg   *prometheus.Registry
	logs  *bytes.Buffer
	svc   DocumentService
}

func newFixture(t *testing.T, store storage.Storage, opts ...Option) *fixture {
	t.Helper()
	if store == nil {
		store = storage.NewDiskFs(afero.NewMemMapFs())
	}
	reg := prometheus.NewRegistry()
	m, err := metrics.NewDocuments(reg)
	require.NoError(t, err)
	logs := &bytes.Buffer{}
	repo := memory.NewDocumentMemory()

	all := append([]Option{
		WithClock(func() time.Time { return fixedNow }),
		WithLogger(logging.New(logs, time.UTC)),
		WithMetrics(m),
	}, opts...)
	return &fixture{
		store: store,
		repo:  repo,
		reg:   reg,
		logs:  logs,
		svc:   NewDocumentService(store, repo, all...),
	}
}

func (f *fixture) upload(t *testing.T, caller model.Caller, parts ...formPart) (*model.Document, error) {
	t.Helper()
	body, boundary := multipartBody(t, parts...)
	return f.svc.Upload(context.Background(), caller, body, boundary)
}

func (f *fixture) storedKeys(t *testing.T) []string {
	t.Helper()
	keys, err := f.store.List(context.Background())
	require.NoError(t, err)
	return keys
}

func counterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		var sum float64
		for _, m := range mf.GetMetric() {
			sum += m.GetCounter().GetValue()
		}
		return sum
	}
	return 0
}

type undeletable struct {
	storage.Storage
}

func (undeletable) Delete(context.Context, string) error {
	return errors.New("device busy")
}

func TestDocumentService_Upload(t *testing.T) {
	f := newFixture(t, nil)

	doc, err := f.upload(t, citizen, append(validFields(), pdfPart("%PDF-1.7 policy"))...)
	require.NoError(t, err)

	assert.NotEmpty(t, doc.ID)
	assert.Equal(t, "user-1", doc.UserID)
	assert.Equal(t, model.EntityVehicle, doc.EntityType)
	assert.Equal(t, "KA01AB1234", doc.EntityID)
	assert.Equal(t, model.DocInsurance, doc.DocumentType)
	assert.Equal(t, "rc.pdf", doc.FileName)
	assert.Equal(t, "application/pdf", doc.MimeType)
	assert.Equal(t, int64(len("%PDF-1.7 policy")), doc.Size)
	assert.Equal(t, model.StatusPending, doc.Status)
	assert.Nil(t, doc.VerifiedBy)
	assert.Nil(t, doc.VerifiedAt)
	assert.Equal(t, fixedNow, doc.CreatedAt)

	assert.Equal(t, []string{doc.FilePath}, f.storedKeys(t))
	stored, err := f.repo.FindByID(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Equal(t, doc, stored)
	assert.Equal(t, 1.0, counterValue(t, f.reg, "rto_documents_uploaded_total"))
}

func TestDocumentService_Upload_FieldsAfterFile(t *testing.T) {
	f := newFixture(t, nil)

	doc, err := f.upload(t, citizen, append([]formPart{pdfPart("pdf")}, validFields()...)...)
	require.NoError(t, err)
	assert.Equal(t, model.DocInsurance, doc.DocumentType)
}

func TestDocumentService_Upload_Rejections(t *testing.T) {
	tests := []struct {
		name       string
		caller     model.Caller
		parts      []formPart
		wantErr    error
		wantMsg    string
		wantReason string
	}{
		{
			name:    "unauthenticated caller",
			caller:  model.Caller{},
			parts:   append(validFields(), pdfPart("pdf")),
			wantErr: ErrUnauthenticated,
		},
		{
			name:       "no file",
			caller:     citizen,
			parts:      validFields(),
			wantErr:    upload.ErrNoFile,
			wantMsg:    "file is required",
			wantReason: "no_file",
		},
		{
			name:   "disallowed type",
			caller: citizen,
			parts: append(validFields(), formPart{
				field: upload.FileField, filename: "script.exe", contentType: "application/octet-stream", body: "MZ",
			}),
			wantErr:    upload.ErrInvalidFile,
			wantMsg:    "only jpeg, jpg, png and pdf files are allowed",
			wantReason: "invalid_file",
		},
		{
			name:       "missing metadata",
			caller:     citizen,
			parts:      []formPart{pdfPart("pdf")},
			wantMsg:    "missing required fields: entity_type, entity_id, document_type",
			wantReason: "invalid_metadata",
		},
		{
			name:   "unknown entity type",
			caller: citizen,
			parts: []formPart{
				{field: FieldEntityType, body: "BOAT"},
				{field: FieldEntityID, body: "X1"},
				{field: FieldDocumentType, body: "PAN"},
				pdfPart("pdf"),
			},
			wantMsg:    `invalid entity_type "BOAT"`,
			wantReason: "invalid_metadata",
		},
		{
			name:   "unknown document type",
			caller: citizen,
			parts: []formPart{
				{field: FieldEntityType, body: "CHALLAN"},
				{field: FieldEntityID, body: "CH-9"},
				{field: FieldDocumentType, body: "LIBRARY_CARD"},
				pdfPart("pdf"),
			},
			wantMsg:    `invalid document_type "LIBRARY_CARD"`,
			wantReason: "invalid_metadata",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)

			doc, err := f.upload(t, tt.caller, tt.parts...)
			require.Error(t, err)
			assert.Nil(t, doc)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
			if tt.wantMsg != "" {
				var verr *ValidationError
				require.ErrorAs(t, err, &verr)
				assert.Equal(t, tt.wantMsg, verr.Message)
			}
			if tt.wantReason != "" {
				assert.Equal(t, 1.0, counterValue(t, f.reg, "rto_upload_rejected_total"))
			}

			assert.Empty(t, f.storedKeys(t), "a rejected upload leaves no file behind")
			paths, err := f.repo.ListFilePaths(context.Background())
			require.NoError(t, err)
			assert.Empty(t, paths)
		})
	}
}

func TestDocumentService_Upload_TooLarge(t *testing.T) {
	f := newFixture(t, nil, WithMaxUploadBytes(8))

	_, err := f.upload(t, citizen, append(validFields(), pdfPart("0123456789"))...)
	require.Error(t, err)
	assert.ErrorIs(t, err, upload.ErrTooLarge)
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
	assert.Empty(t, f.storedKeys(t))
	assert.Equal(t, 1.0, counterValue(t, f.reg, "rto_upload_rejected_total"))
	assert.Contains(t, f.logs.String(), `"event":"upload_too_large"`)
	assert.Contains(t, f.logs.String(), `"max_bytes":8`)
}

func TestDocumentService_Upload_RecordFailureRemovesFile(t *testing.T) {
	store := storage.NewDiskFs(afero.NewMemMapFs())
	mRepo := new(repoMocks.MockDocumentRepository)
	mRepo.On("Create", mock.Anything, mock.AnythingOfType("*model.Document")).
		Return(nil, errors.New("connection reset"))

	svc := NewDocumentService(store, mRepo)
	body, boundary := multipartBody(t, append(validFields(), pdfPart("pdf"))...)

	doc, err := svc.Upload(context.Background(), citizen, body, boundary)
	assert.Nil(t, doc)
	assert.EqualError(t, err, "db save failed: connection reset")

	keys, err := store.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, keys)
	mRepo.AssertExpectations(t)
}

func TestDocumentService_Upload_CleanupFailureIsReported(t *testing.T) {
	inner := storage.NewDiskFs(afero.NewMemMapFs())
	f := newFixture(t, undeletable{inner})

	_, err := f.upload(t, citizen, pdfPart("pdf"))
	var verr *ValidationError
	require.ErrorAs(t, err, &verr, "the caller still sees the validation failure")

	assert.Len(t, f.storedKeys(t), 1)
	assert.Equal(t, 1.0, counterValue(t, f.reg, "rto_upload_cleanup_failures_total"))
	assert.Contains(t, f.logs.String(), `"event":"upload_cleanup_failed"`)
	assert.Contains(t, f.logs.String(), `"reason":"invalid_metadata"`)
	assert.Contains(t, f.logs.String(), `"error_message":"device busy"`)
}

func TestDocumentService_ListByEntity(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.upload(t, citizen, append(validFields(), pdfPart("a"))...)
	require.NoError(t, err)
	_, err = f.upload(t, citizen,
		formPart{field: FieldEntityType, body: "VEHICLE"},
		formPart{field: FieldEntityID, body: "OTHER-1"},
		formPart{field: FieldDocumentType, body: "PUC_CERTIFICATE"},
		pdfPart("b"),
	)
	require.NoError(t, err)

	docs, err := f.svc.ListByEntity(ctx, "KA01AB1234")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, model.DocInsurance, docs[0].DocumentType)

	docs, err = f.svc.ListByEntity(ctx, "unknown")
	require.NoError(t, err)
	assert.Empty(t, docs)

	_, err = f.svc.ListByEntity(ctx, "  ")
	assert.ErrorIs(t, err, ErrIDRequired)
}

func TestDocumentService_Verify(t *testing.T) {
	now := fixedNow
	f := newFixture(t, nil, WithClock(func() time.Time { return now }))
	ctx := context.Background()

	doc, err := f.upload(t, citizen, append(validFields(), pdfPart("pdf"))...)
	require.NoError(t, err)

	verified, err := f.svc.Verify(ctx, officer, doc.ID, "verified")
	require.NoError(t, err)
	assert.Equal(t, model.StatusVerified, verified.Status)
	require.NotNil(t, verified.VerifiedBy)
	assert.Equal(t, "officer-1", *verified.VerifiedBy)
	require.NotNil(t, verified.VerifiedAt)
	assert.Equal(t, fixedNow, *verified.VerifiedAt)

	// a settled document can be reviewed again; the last decision wins
	now = fixedNow.Add(3 * time.Hour)
	second := model.Caller{UserID: "admin-7", Role: model.RoleRTOAdmin}
	rejected, err := f.svc.Verify(ctx, second, doc.ID, "REJECTED")
	require.NoError(t, err)
	assert.Equal(t, model.StatusRejected, rejected.Status)
	assert.Equal(t, "admin-7", *rejected.VerifiedBy)
	require.NotNil(t, rejected.VerifiedAt)
	assert.Equal(t, now, *rejected.VerifiedAt)

	stored, err := f.svc.Get(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusRejected, stored.Status)
	assert.Equal(t, "admin-7", *stored.VerifiedBy)
	assert.Equal(t, now, *stored.VerifiedAt)
	assert.Equal(t, fixedNow, *verified.VerifiedAt, "the first response is not rewritten")

	assert.Equal(t, 2.0, counterValue(t, f.reg, "rto_documents_verified_total"))
}

func TestDocumentService_Verify_Errors(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	doc, err := f.upload(t, citizen, append(validFields(), pdfPart("pdf"))...)
	require.NoError(t, err)

	tests := []struct {
		name    string
		caller  model.Caller
		id      string
		status  string
		wantErr error
		wantMsg string
	}{
		{name: "unauthenticated", caller: model.Caller{}, id: doc.ID, status: "VERIFIED", wantErr: ErrUnauthenticated},
		{name: "empty id", caller: officer, id: "", status: "VERIFIED", wantErr: ErrIDRequired},
		{name: "pending is not a verdict", caller: officer, id: doc.ID, status: "PENDING", wantMsg: "status must be VERIFIED or REJECTED"},
		{name: "garbage status", caller: officer, id: doc.ID, status: "maybe", wantMsg: "status must be VERIFIED or REJECTED"},
		{name: "unknown document", caller: officer, id: "2b1f5e0e-1111-4c1b-9a53-000000000000", status: "VERIFIED", wantErr: ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.svc.Verify(ctx, tt.caller, tt.id, tt.status)
			assert.Nil(t, got)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
			if tt.wantMsg != "" {
				var verr *ValidationError
				require.ErrorAs(t, err, &verr)
				assert.Equal(t, tt.wantMsg, verr.Message)
			}
		})
	}

	unchanged, err := f.svc.Get(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, unchanged.Status)
}

func TestDocumentService_Open(t *testing.T) {
	fs := afero.NewMemMapFs()
	f := newFixture(t, storage.NewDiskFs(fs))
	ctx := context.Background()

	doc, err := f.upload(t, citizen, append(validFields(), pdfPart("%PDF-1.4 bytes"))...)
	require.NoError(t, err)

	dl, err := f.svc.Open(ctx, doc.ID)
	require.NoError(t, err)
	content, err := io.ReadAll(dl.Content)
	require.NoError(t, err)
	require.NoError(t, dl.Content.Close())
	assert.Equal(t, "%PDF-1.4 bytes", string(content))
	assert.Equal(t, doc.ID, dl.Document.ID)
	assert.Equal(t, int64(len(content)), dl.Size)

	require.NoError(t, fs.Remove(doc.FilePath))
	_, err = f.svc.Open(ctx, doc.ID)
	assert.ErrorIs(t, err, ErrFileMissing)
	assert.Contains(t, f.logs.String(), `"event":"document_file_missing"`)

	_, err = f.svc.Open(ctx, "missing-id")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDocumentService_Get(t *testing.T) {
	mRepo := new(repoMocks.MockDocumentRepository)
	svc := NewDocumentService(nil, mRepo)
	ctx := context.Background()

	mRepo.On("FindByID", ctx, "doc-1").Return(&model.Document{ID: "doc-1"}, nil)
	mRepo.On("FindByID", ctx, "gone").Return(nil, sql.ErrNoRows)
	mRepo.On("FindByID", ctx, "boom").Return(nil, errors.New("db down"))

	doc, err := svc.Get(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "doc-1", doc.ID)

	_, err = svc.Get(ctx, "gone")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.Get(ctx, "boom")
	assert.EqualError(t, err, "db down")

	_, err = svc.Get(ctx, "")
	assert.ErrorIs(t, err, ErrIDRequired)
}

func TestDocumentService_ListByStatus(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name       string
		status     string
		limit      int
		offset     int
		wantStatus model.Status
		wantQuery  repository.PageQuery
	}{
		{name: "defaults to pending queue", status: "", limit: 0, offset: 0, wantStatus: model.StatusPending, wantQuery: repository.PageQuery{Limit: 20, Offset: 0}},
		{name: "clamps limit", status: "verified", limit: 500, offset: 40, wantStatus: model.StatusVerified, wantQuery: repository.PageQuery{Limit: 100, Offset: 40}},
		{name: "negative offset", status: "REJECTED", limit: 5, offset: -3, wantStatus: model.StatusRejected, wantQuery: repository.PageQuery{Limit: 5, Offset: 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mRepo := new(repoMocks.MockDocumentRepository)
			mRepo.On("ListByStatus", ctx, tt.wantStatus, tt.wantQuery).
				Return(&repository.PageResult[model.Document]{Items: []model.Document{{ID: "a"}}, Total: 1}, nil)
			svc := NewDocumentService(nil, mRepo)

			res, err := svc.ListByStatus(ctx, tt.status, tt.limit, tt.offset)
			require.NoError(t, err)
			assert.Equal(t, 1, res.Total)
			assert.Equal(t, tt.wantQuery.Limit, res.Limit)
			assert.Equal(t, tt.wantQuery.Offset, res.Offset)
			mRepo.AssertExpectations(t)
		})
	}

	t.Run("invalid status", func(t *testing.T) {
		svc := NewDocumentService(nil, new(repoMocks.MockDocumentRepository))
		_, err := svc.ListByStatus(ctx, "ARCHIVED", 10, 0)
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, `invalid status "ARCHIVED"`, verr.Message)
	})
}

func TestDocumentService_Orphans(t *testing.T) {
	fs := afero.NewMemMapFs()
	f := newFixture(t, storage.NewDiskFs(fs))
	ctx := context.Background()

	doc, err := f.upload(t, citizen, append(validFields(), pdfPart("kept"))...)
	require.NoError(t, err)

	fresh := fmt.Sprintf("%d-2.pdf", fixedNow.Add(-time.Minute).UnixMilli())
	for _, k := range []string{"1000-1.pdf", fresh, "notes.pdf"} {
		require.NoError(t, afero.WriteFile(fs, k, []byte("x"), 0o644))
	}

	orphans, err := f.svc.FindOrphans(ctx, 10*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, []string{"1000-1.pdf", "notes.pdf"}, orphans)

	require.NoError(t, f.svc.RemoveOrphans(ctx, orphans))
	assert.ElementsMatch(t, []string{doc.FilePath, fresh}, f.storedKeys(t))
	assert.Contains(t, f.logs.String(), `"event":"orphan_removed"`)

	orphans, err = f.svc.FindOrphans(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{fresh}, orphans)
}

func TestDocumentService_FindOrphans_ListFailure(t *testing.T) {
	mRepo := new(repoMocks.MockDocumentRepository)
	mRepo.On("ListFilePaths", mock.Anything).Return(nil, errors.New("db down"))
	svc := NewDocumentService(storage.NewDiskFs(afero.NewMemMapFs()), mRepo)

	_, err := svc.FindOrphans(context.Background(), time.Hour)
	assert.EqualError(t, err, "list records: db down")
}
