package accounts

import (
	"context"
	"errors"
	"sync"
)

var (
	ErrAccountNotFound = errors.New("account not found")
	ErrDuplicate       = errors.New("username or email already exists")
)

// Repository persists accounts. Lookups by username are exact; emails are
// stored lowercased by the service.
type Repository interface {
	Create(ctx context.Context, a *Account) error
	GetByID(ctx context.Context, id string) (*Account, error)
	GetByUsername(ctx context.Context, username string) (*Account, error)
	GetByEmail(ctx context.Context, email string) (*Account, error)
	Update(ctx context.Context, a *Account) error
	Delete(ctx context.Context, id string) error
}

// MemoryRepository keeps accounts in process.
type MemoryRepository struct {
	mu   sync.RWMutex
	byID map[string]*Account
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{byID: make(map[string]*Account)}
}

func (m *MemoryRepository) Create(_ context.Context, a *Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[a.ID]; ok {
		return ErrDuplicate
	}
	for _, o := range m.byID {
		if o.Username == a.Username || o.Email == a.Email {
			return ErrDuplicate
		}
	}
	m.byID[a.ID] = a.clone()
	return nil
}

func (m *MemoryRepository) GetByID(_ context.Context, id string) (*Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if a, ok := m.byID[id]; ok {
		return a.clone(), nil
	}
	return nil, ErrAccountNotFound
}

func (m *MemoryRepository) find(match func(*Account) bool) (*Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, a := range m.byID {
		if match(a) {
			return a.clone(), nil
		}
	}
	return nil, ErrAccountNotFound
}

func (m *MemoryRepository) GetByUsername(_ context.Context, username string) (*Account, error) {
	return m.find(func(a *Account) bool { return a.Username == username })
}

func (m *MemoryRepository) GetByEmail(_ context.Context, email string) (*Account, error) {
	return m.find(func(a *Account) bool { return a.Email == email })
}

func (m *MemoryRepository) Update(_ context.Context, a *Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[a.ID]; !ok {
		return ErrAccountNotFound
	}
	m.byID[a.ID] = a.clone()
	return nil
}

func (m *MemoryRepository) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[id]; !ok {
		return ErrAccountNotFound
	}
	delete(m.byID, id)
	return nil
}
