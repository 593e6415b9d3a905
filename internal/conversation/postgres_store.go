package conversation

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"
)

// PostgresStore persists conversations and messages in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed conversation store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) CreateConversation(ctx context.Context, conv *Conversation) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO conversations (id, business_id, last_activity_at, created_at)
		VALUES ($1, $2, $3, $4)`,
		conv.ID, conv.BusinessID, conv.LastActivityAt, conv.CreatedAt,
	)
	return err
}

func (p *PostgresStore) AddMessage(ctx context.Context, msg *Message) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `
		UPDATE conversations SET last_activity_at = GREATEST(last_activity_at, $1)
		WHERE id = $2`, msg.CreatedAt, msg.ConversationID)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, role, body, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		msg.ID, msg.ConversationID, msg.Role, msg.Body, msg.CreatedAt,
	)
	if err != nil {
		return err
	}
	return tx.Commit()
}

func (p *PostgresStore) ListActiveIDs(ctx context.Context, businessID string, start, end time.Time) ([]string, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id FROM conversations
		WHERE business_id = $1 AND last_activity_at >= $2 AND last_activity_at <= $3`,
		businessID, start, end)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (p *PostgresStore) CountUserMessages(ctx context.Context, conversationIDs []string) (int, error) {
	if len(conversationIDs) == 0 {
		return 0, nil
	}
	var count int
	err := p.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM messages
		WHERE role = 'user' AND conversation_id = ANY($1)`,
		pq.Array(conversationIDs)).Scan(&count)
	return count, err
}

// Migrate creates the conversations and messages tables (used in dev/test;
// prod uses migration files).
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS conversations (
			id               TEXT PRIMARY KEY,
			business_id      TEXT NOT NULL,
			last_activity_at TIMESTAMPTZ NOT NULL,
			created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_conversations_business_activity
			ON conversations(business_id, last_activity_at);
		CREATE TABLE IF NOT EXISTS messages (
			id              TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL REFERENCES conversations(id),
			role            TEXT NOT NULL,
			body            TEXT NOT NULL,
			created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id);
	`)
	return err
}

var _ Store = (*PostgresStore)(nil)
