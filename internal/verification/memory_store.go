package verification

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory verification token store for demo/development.
type MemoryStore struct {
	mu     sync.Mutex
	tokens map[string]*Token // by ID
	hashes map[string]string // hash → ID
}

// NewMemoryStore creates a new in-memory verification token store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tokens: make(map[string]*Token),
		hashes: make(map[string]string),
	}
}

func (m *MemoryStore) Create(_ context.Context, t *Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.tokens[t.ID] = &cp
	m.hashes[t.TokenHash] = t.ID
	return nil
}

func (m *MemoryStore) GetByHash(_ context.Context, hash string) (*Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.hashes[hash]
	if !ok {
		return nil, ErrInvalidToken
	}
	cp := *m.tokens[id]
	return &cp, nil
}

func (m *MemoryStore) InvalidateActive(_ context.Context, userID, purpose string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, t := range m.tokens {
		if t.UserID == userID && t.Purpose == purpose && t.UsedAt == nil && t.ExpiresAt.After(now) {
			used := now
			t.UsedAt = &used
		}
	}
	return nil
}

func (m *MemoryStore) MarkUsed(_ context.Context, id string, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tokens[id]
	if !ok {
		return false, ErrInvalidToken
	}
	if t.UsedAt != nil {
		return false, nil
	}
	used := now
	t.UsedAt = &used
	return true, nil
}

var _ Store = (*MemoryStore)(nil)
