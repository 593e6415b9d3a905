package business

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory business store for demo/development.
type MemoryStore struct {
	mu         sync.RWMutex
	businesses map[string]*Business // by ID
	slugs      map[string]string    // slug → ID
	keys       map[string]string    // public embed key → ID
}

// NewMemoryStore creates a new in-memory business store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		businesses: make(map[string]*Business),
		slugs:      make(map[string]string),
		keys:       make(map[string]string),
	}
}

func (m *MemoryStore) Create(_ context.Context, b *Business) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.slugs[b.Slug]; exists {
		return ErrSlugTaken
	}
	if _, exists := m.keys[b.PublicEmbedKey]; exists {
		return ErrKeyTaken
	}

	cp := clone(b)
	m.businesses[b.ID] = cp
	m.slugs[b.Slug] = b.ID
	m.keys[b.PublicEmbedKey] = b.ID
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*Business, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	b, ok := m.businesses[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(b), nil
}

func (m *MemoryStore) GetBySlug(_ context.Context, slug string) (*Business, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.slugs[slug]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(m.businesses[id]), nil
}

func (m *MemoryStore) GetByEmbedKey(_ context.Context, key string) (*Business, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.keys[key]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(m.businesses[id]), nil
}

func (m *MemoryStore) GetByStripeCustomer(_ context.Context, customerID string) (*Business, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, b := range m.businesses {
		if b.StripeCustomerID == customerID && customerID != "" {
			return clone(b), nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) Update(_ context.Context, b *Business) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	old, ok := m.businesses[b.ID]
	if !ok {
		return ErrNotFound
	}
	if old.PublicEmbedKey != b.PublicEmbedKey {
		if _, taken := m.keys[b.PublicEmbedKey]; taken {
			return ErrKeyTaken
		}
		delete(m.keys, old.PublicEmbedKey)
		m.keys[b.PublicEmbedKey] = b.ID
	}
	m.businesses[b.ID] = clone(b)
	return nil
}

// clone copies a business including its domain slice so callers cannot
// mutate store state through a returned pointer.
func clone(b *Business) *Business {
	cp := *b
	cp.AllowedDomains = append([]string(nil), b.AllowedDomains...)
	return &cp
}

var _ Store = (*MemoryStore)(nil)
