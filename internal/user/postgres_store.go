package user

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"
)

// PostgresStore persists users in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed user store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const userColumns = `id, business_id, email, password_hash, locale,
	email_confirmed_at, email_verification_deadline, disabled_at, created_at, updated_at`

func (p *PostgresStore) Create(ctx context.Context, u *User) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		u.ID, u.BusinessID, u.Email, u.PasswordHash, u.Locale,
		u.EmailConfirmedAt, u.EmailVerificationDeadline, u.DisabledAt,
		u.CreatedAt, u.UpdatedAt,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return ErrEmailTaken
		}
		return err
	}
	return nil
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*User, error) {
	return p.scanUser(p.db.QueryRowContext(ctx, `
		SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

func (p *PostgresStore) GetByEmail(ctx context.Context, email string) (*User, error) {
	return p.scanUser(p.db.QueryRowContext(ctx, `
		SELECT `+userColumns+` FROM users WHERE email = $1`, email))
}

func (p *PostgresStore) Update(ctx context.Context, u *User) error {
	result, err := p.db.ExecContext(ctx, `
		UPDATE users SET email = $1, password_hash = $2, locale = $3,
			email_confirmed_at = $4, email_verification_deadline = $5,
			disabled_at = $6, updated_at = $7
		WHERE id = $8`,
		u.Email, u.PasswordHash, u.Locale, u.EmailConfirmedAt,
		u.EmailVerificationDeadline, u.DisabledAt, u.UpdatedAt, u.ID,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return ErrEmailTaken
		}
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PostgresStore) DeactivateExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := p.db.ExecContext(ctx, `
		UPDATE users SET disabled_at = $1, updated_at = $1
		WHERE disabled_at IS NULL
		  AND email_confirmed_at IS NULL
		  AND email_verification_deadline IS NOT NULL
		  AND email_verification_deadline < $1`, now)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (p *PostgresStore) scanUser(row *sql.Row) (*User, error) {
	u := &User{}
	var confirmedAt, deadline, disabledAt sql.NullTime
	err := row.Scan(&u.ID, &u.BusinessID, &u.Email, &u.PasswordHash, &u.Locale,
		&confirmedAt, &deadline, &disabledAt, &u.CreatedAt, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if confirmedAt.Valid {
		t := confirmedAt.Time
		u.EmailConfirmedAt = &t
	}
	if deadline.Valid {
		t := deadline.Time
		u.EmailVerificationDeadline = &t
	}
	if disabledAt.Valid {
		t := disabledAt.Time
		u.DisabledAt = &t
	}
	return u, nil
}

// Migrate creates the users table (used in dev/test; prod uses migration files).
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS users (
			id                          TEXT PRIMARY KEY,
			business_id                 TEXT NOT NULL,
			email                       TEXT NOT NULL UNIQUE,
			password_hash               TEXT NOT NULL,
			locale                      TEXT NOT NULL DEFAULT 'en',
			email_confirmed_at          TIMESTAMPTZ,
			email_verification_deadline TIMESTAMPTZ,
			disabled_at                 TIMESTAMPTZ,
			created_at                  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at                  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_users_business ON users(business_id);
	`)
	return err
}

var _ Store = (*PostgresStore)(nil)
