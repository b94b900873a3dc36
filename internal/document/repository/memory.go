package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/evault/evault/internal/document"
)

// MemoryRepo keeps documents in process. It is used when MongoDB is not
// configured and in tests. Stored values are never handed out directly.
type MemoryRepo struct {
	mu    sync.RWMutex
	store map[string]*document.Document
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{store: make(map[string]*document.Document)}
}

func (m *MemoryRepo) Create(_ context.Context, d *document.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.store[d.ID]; ok {
		return ErrExists
	}
	d.Revision = 1
	m.store[d.ID] = d.Clone()
	return nil
}

func (m *MemoryRepo) Get(_ context.Context, id string) (*document.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if d, ok := m.store[id]; ok {
		return d.Clone(), nil
	}
	return nil, ErrNotFound
}

func (m *MemoryRepo) Update(_ context.Context, id string, fn MutateFunc) (*document.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.store[id]
	if !ok {
		return nil, ErrNotFound
	}
	next := cur.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	next.Revision = cur.Revision + 1
	m.store[id] = next
	return next.Clone(), nil
}

func (m *MemoryRepo) Delete(_ context.Context, id string, fn MutateFunc) (*document.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.store[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := cur.Clone()
	if fn != nil {
		if err := fn(c); err != nil {
			return nil, err
		}
	}
	delete(m.store, id)
	return c, nil
}

func (m *MemoryRepo) List(_ context.Context, principal string, f document.Filter) ([]*document.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*document.Document, 0)
	for _, d := range m.store {
		if f.Visible(principal, d) {
			out = append(out, d.Clone())
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func (m *MemoryRepo) StorageKeys(_ context.Context) (map[string]struct{}, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make(map[string]struct{})
	for _, d := range m.store {
		for _, k := range d.StorageKeys() {
			keys[k] = struct{}{}
		}
	}
	return keys, nil
}

func sortNewestFirst(docs []*document.Document) {
	sort.SliceStable(docs, func(i, j int) bool {
		if docs[i].UploadDate.Equal(docs[j].UploadDate) {
			return docs[i].ID < docs[j].ID
		}
		return docs[i].UploadDate.After(docs[j].UploadDate)
	})
}
