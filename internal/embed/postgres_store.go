package embed

import (
	"context"
	"database/sql"
	"time"
)

// PostgresStore persists embed tokens and sessions in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed embed store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) CreateToken(ctx context.Context, t *Token) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO embed_tokens (id, business_id, token, created_at)
		VALUES ($1, $2, $3, $4)`,
		t.ID, t.BusinessID, t.Token, t.CreatedAt,
	)
	return err
}

func (p *PostgresStore) LatestToken(ctx context.Context, businessID string) (*Token, error) {
	t := &Token{}
	err := p.db.QueryRowContext(ctx, `
		SELECT id, business_id, token, created_at FROM embed_tokens
		WHERE business_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT 1`, businessID).Scan(&t.ID, &t.BusinessID, &t.Token, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrTokenNotFound
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (p *PostgresStore) CreateSession(ctx context.Context, s *Session) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO embed_sessions (id, business_id, host, is_preview, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		s.ID, s.BusinessID, s.Host, s.IsPreview, s.ExpiresAt, s.CreatedAt,
	)
	return err
}

func (p *PostgresStore) RecentSessions(ctx context.Context, businessID string, since time.Time) ([]*Session, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, business_id, host, is_preview, expires_at, created_at
		FROM embed_sessions
		WHERE business_id = $1 AND created_at >= $2
		ORDER BY created_at DESC`, businessID, since)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*Session
	for rows.Next() {
		s := &Session{}
		if err := rows.Scan(&s.ID, &s.BusinessID, &s.Host, &s.IsPreview, &s.ExpiresAt, &s.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (p *PostgresStore) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	result, err := p.db.ExecContext(ctx, `
		DELETE FROM embed_sessions WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// Migrate creates the embed tables (used in dev/test; prod uses migration files).
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS embed_tokens (
			id          TEXT PRIMARY KEY,
			business_id TEXT NOT NULL,
			token       TEXT NOT NULL UNIQUE,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_embed_tokens_business ON embed_tokens(business_id, created_at DESC);
		CREATE TABLE IF NOT EXISTS embed_sessions (
			id          TEXT PRIMARY KEY,
			business_id TEXT NOT NULL,
			host        TEXT NOT NULL,
			is_preview  BOOLEAN NOT NULL DEFAULT FALSE,
			expires_at  TIMESTAMPTZ NOT NULL,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_embed_sessions_business ON embed_sessions(business_id, created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_embed_sessions_expiry ON embed_sessions(expires_at);
	`)
	return err
}

var _ Store = (*PostgresStore)(nil)
