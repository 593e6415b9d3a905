package user

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory user store for demo/development.
type MemoryStore struct {
	mu     sync.RWMutex
	users  map[string]*User  // by ID
	emails map[string]string // email → ID
}

// NewMemoryStore creates a new in-memory user store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:  make(map[string]*User),
		emails: make(map[string]string),
	}
}

func (m *MemoryStore) Create(_ context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.emails[u.Email]; exists {
		return ErrEmailTaken
	}
	cp := *u
	m.users[u.ID] = &cp
	m.emails[u.Email] = u.ID
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *MemoryStore) GetByEmail(_ context.Context, email string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.emails[email]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *m.users[id]
	return &cp, nil
}

func (m *MemoryStore) Update(_ context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	old, ok := m.users[u.ID]
	if !ok {
		return ErrNotFound
	}
	if old.Email != u.Email {
		if _, taken := m.emails[u.Email]; taken {
			return ErrEmailTaken
		}
		delete(m.emails, old.Email)
		m.emails[u.Email] = u.ID
	}
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *MemoryStore) DeactivateExpired(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for _, u := range m.users {
		if u.DisabledAt == nil && u.EmailConfirmedAt == nil &&
			u.EmailVerificationDeadline != nil && u.EmailVerificationDeadline.Before(now) {
			t := now
			u.DisabledAt = &t
			u.UpdatedAt = now
			n++
		}
	}
	return n, nil
}

var _ Store = (*MemoryStore)(nil)
