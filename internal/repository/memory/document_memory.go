package memory

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"rtodocs/internal/model"
	"rtodocs/internal/repository"
)

// DocumentMemory keeps documents in a map. It mirrors the PostgreSQL
// repository's semantics, including sql.ErrNoRows for missing rows, and is
// used by tests and by the server when no database is configured.
type DocumentMemory struct {
	mu   sync.RWMutex
	rows map[string]model.Document
}

// NewDocumentMemory returns an empty repository.
func NewDocumentMemory() *DocumentMemory {
	return &DocumentMemory{rows: make(map[string]model.Document)}
}

var _ repository.DocumentRepository = (*DocumentMemory)(nil)

func (m *DocumentMemory) Create(_ context.Context, doc *model.Document) (*model.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[doc.ID]; ok {
		return nil, fmt.Errorf("duplicate document id %s", doc.ID)
	}
	for _, d := range m.rows {
		if d.FilePath == doc.FilePath {
			return nil, fmt.Errorf("duplicate file_path %s", doc.FilePath)
		}
	}
	stored := *doc
	m.rows[doc.ID] = stored
	return &stored, nil
}

func (m *DocumentMemory) FindByID(_ context.Context, id string) (*model.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.rows[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &d, nil
}

func (m *DocumentMemory) ListByEntity(_ context.Context, entityID string) ([]model.Document, error) {
	return m.filter(func(d model.Document) bool { return d.EntityID == entityID }), nil
}

func (m *DocumentMemory) ListByStatus(_ context.Context, status model.Status, pq repository.PageQuery) (*repository.PageResult[model.Document], error) {
	all := m.filter(func(d model.Document) bool { return d.Status == status })
	res := &repository.PageResult[model.Document]{Items: []model.Document{}, Total: len(all)}
	if pq.Offset < len(all) {
		end := min(pq.Offset+pq.Limit, len(all))
		res.Items = all[pq.Offset:end]
	}
	return res, nil
}

func (m *DocumentMemory) SetVerificationStatus(_ context.Context, id, verifierID string, status model.Status, at time.Time) (*model.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.rows[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	d.Status = status
	d.VerifiedBy = &verifierID
	d.VerifiedAt = &at
	m.rows[id] = d
	return &d, nil
}

func (m *DocumentMemory) ListFilePaths(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.rows))
	for _, d := range m.rows {
		out = append(out, d.FilePath)
	}
	sort.Strings(out)
	return out, nil
}

// filter returns matching rows ordered like the SQL queries: created_at DESC, id DESC.
func (m *DocumentMemory) filter(keep func(model.Document) bool) []model.Document {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Document, 0)
	for _, d := range m.rows {
		if keep(d) {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}
