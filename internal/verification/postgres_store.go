package verification

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"
)

// PostgresStore persists verification tokens in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed verification token store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) Create(ctx context.Context, t *Token) error {
	var meta []byte
	if t.Meta != nil {
		var err error
		meta, err = json.Marshal(t.Meta)
		if err != nil {
			return err
		}
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO verification_tokens (id, user_id, purpose, email, token_hash, meta, expires_at, used_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		t.ID, t.UserID, t.Purpose, t.Email, t.TokenHash, meta, t.ExpiresAt, t.UsedAt, t.CreatedAt,
	)
	return err
}

func (p *PostgresStore) GetByHash(ctx context.Context, hash string) (*Token, error) {
	t := &Token{}
	var (
		meta   []byte
		usedAt sql.NullTime
	)
	err := p.db.QueryRowContext(ctx, `
		SELECT id, user_id, purpose, email, token_hash, meta, expires_at, used_at, created_at
		FROM verification_tokens WHERE token_hash = $1`, hash).Scan(
		&t.ID, &t.UserID, &t.Purpose, &t.Email, &t.TokenHash, &meta, &t.ExpiresAt, &usedAt, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, err
	}
	if usedAt.Valid {
		u := usedAt.Time
		t.UsedAt = &u
	}
	if len(meta) > 0 {
		_ = json.Unmarshal(meta, &t.Meta)
	}
	return t, nil
}

func (p *PostgresStore) InvalidateActive(ctx context.Context, userID, purpose string, now time.Time) error {
	_, err := p.db.ExecContext(ctx, `
		UPDATE verification_tokens SET used_at = $1
		WHERE user_id = $2 AND purpose = $3 AND used_at IS NULL AND expires_at > $1`,
		now, userID, purpose)
	return err
}

// MarkUsed relies on the used_at IS NULL guard for exactly-once redemption
// under concurrent calls.
func (p *PostgresStore) MarkUsed(ctx context.Context, id string, now time.Time) (bool, error) {
	result, err := p.db.ExecContext(ctx, `
		UPDATE verification_tokens SET used_at = $1
		WHERE id = $2 AND used_at IS NULL`, now, id)
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

// Migrate creates the verification_tokens table (used in dev/test; prod uses
// migration files).
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS verification_tokens (
			id         TEXT PRIMARY KEY,
			user_id    TEXT NOT NULL,
			purpose    TEXT NOT NULL,
			email      TEXT NOT NULL,
			token_hash TEXT NOT NULL UNIQUE,
			meta       JSONB,
			expires_at TIMESTAMPTZ NOT NULL,
			used_at    TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_verification_tokens_user ON verification_tokens(user_id, purpose);
	`)
	return err
}

var _ Store = (*PostgresStore)(nil)
