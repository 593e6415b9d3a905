package embed

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory embed store for demo/development.
type MemoryStore struct {
	mu       sync.RWMutex
	tokens   map[string][]*Token   // by business ID, append order
	sessions map[string][]*Session // by business ID, append order
}

// NewMemoryStore creates a new in-memory embed store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tokens:   make(map[string][]*Token),
		sessions: make(map[string][]*Session),
	}
}

func (m *MemoryStore) CreateToken(_ context.Context, t *Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.tokens[t.BusinessID] = append(m.tokens[t.BusinessID], &cp)
	return nil
}

func (m *MemoryStore) LatestToken(_ context.Context, businessID string) (*Token, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tokens := m.tokens[businessID]
	if len(tokens) == 0 {
		return nil, ErrTokenNotFound
	}
	latest := tokens[0]
	for _, t := range tokens[1:] {
		if t.CreatedAt.After(latest.CreatedAt) {
			latest = t
		}
	}
	cp := *latest
	return &cp, nil
}

func (m *MemoryStore) CreateSession(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.sessions[s.BusinessID] = append(m.sessions[s.BusinessID], &cp)
	return nil
}

func (m *MemoryStore) RecentSessions(_ context.Context, businessID string, since time.Time) ([]*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Session
	for _, s := range m.sessions[businessID] {
		if !s.CreatedAt.Before(since) {
			cp := *s
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) DeleteExpiredSessions(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for businessID, sessions := range m.sessions {
		kept := sessions[:0]
		for _, s := range sessions {
			if s.ExpiresAt.After(now) {
				kept = append(kept, s)
			} else {
				n++
			}
		}
		m.sessions[businessID] = kept
	}
	return n, nil
}

var _ Store = (*MemoryStore)(nil)
