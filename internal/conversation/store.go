package conversation

import (
	"context"
	"time"
)

// Store persists conversations and messages.
type Store interface {
	CreateConversation(ctx context.Context, conv *Conversation) error
	AddMessage(ctx context.Context, msg *Message) error
	// ListActiveIDs returns IDs of the business's conversations whose last
	// activity falls inside [start, end].
	ListActiveIDs(ctx context.Context, businessID string, start, end time.Time) ([]string, error)
	// CountUserMessages counts user-authored messages across the given
	// conversations. Callers chunk the ID list; one call is one query.
	CountUserMessages(ctx context.Context, conversationIDs []string) (int, error)
}
