package conversation

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory conversation store for demo/development.
type MemoryStore struct {
	mu            sync.RWMutex
	conversations map[string]*Conversation
	messages      map[string][]*Message // by conversation ID
}

// NewMemoryStore creates a new in-memory conversation store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		conversations: make(map[string]*Conversation),
		messages:      make(map[string][]*Message),
	}
}

func (m *MemoryStore) CreateConversation(_ context.Context, conv *Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *conv
	m.conversations[conv.ID] = &cp
	return nil
}

func (m *MemoryStore) AddMessage(_ context.Context, msg *Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	conv, ok := m.conversations[msg.ConversationID]
	if !ok {
		return ErrNotFound
	}
	cp := *msg
	m.messages[msg.ConversationID] = append(m.messages[msg.ConversationID], &cp)
	if msg.CreatedAt.After(conv.LastActivityAt) {
		conv.LastActivityAt = msg.CreatedAt
	}
	return nil
}

func (m *MemoryStore) ListActiveIDs(_ context.Context, businessID string, start, end time.Time) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var ids []string
	for _, conv := range m.conversations {
		if conv.BusinessID != businessID {
			continue
		}
		if conv.LastActivityAt.Before(start) || conv.LastActivityAt.After(end) {
			continue
		}
		ids = append(ids, conv.ID)
	}
	return ids, nil
}

func (m *MemoryStore) CountUserMessages(_ context.Context, conversationIDs []string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, id := range conversationIDs {
		for _, msg := range m.messages[id] {
			if msg.Role == RoleUser {
				count++
			}
		}
	}
	return count, nil
}

var _ Store = (*MemoryStore)(nil)
