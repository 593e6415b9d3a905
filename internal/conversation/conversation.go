// Package conversation stores chat conversations and messages. The usage
// meter reads them; the chat pipeline that writes them in production is a
// separate service sharing this schema.
package conversation

import (
	"errors"
	"time"

	"github.com/willowchat/willow/internal/idgen"
)

// ErrNotFound is returned when a conversation does not exist.
var ErrNotFound = errors.New("conversation: not found")

// Message roles. Only RoleUser counts toward a tenant's usage.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
	RoleTool      = "tool"
)

// Conversation is a single widget chat thread.
type Conversation struct {
	ID             string    `json:"id"`
	BusinessID     string    `json:"businessId"`
	LastActivityAt time.Time `json:"lastActivityAt"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Message is one turn within a conversation.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	Role           string    `json:"role"`
	Body           string    `json:"body"`
	CreatedAt      time.Time `json:"createdAt"`
}

// NewConversationID mints a conversation ID.
func NewConversationID() string {
	return idgen.WithPrefix("cnv_")
}

// NewMessageID mints a message ID.
func NewMessageID() string {
	return idgen.WithPrefix("msg_")
}
