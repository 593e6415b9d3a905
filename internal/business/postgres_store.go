package business

import (
	"context"
	"database/sql"
	"strings"

	"github.com/lib/pq"
)

// PostgresStore persists businesses in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed business store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const businessColumns = `id, name, slug, public_embed_key, allowed_domains, email,
	email_verified_at, stripe_customer_id, stripe_subscription_id, billing_status,
	billing_plan, trial_end, current_period_end, cancel_at_period_end, created_at, updated_at`

func (p *PostgresStore) Create(ctx context.Context, b *Business) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO businesses (`+businessColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		b.ID, b.Name, b.Slug, b.PublicEmbedKey, pq.Array(b.AllowedDomains), b.Email,
		b.EmailVerifiedAt, nullStr(b.StripeCustomerID), nullStr(b.StripeSubscriptionID),
		b.BillingStatus, nullStr(b.BillingPlan), b.TrialEnd, b.CurrentPeriodEnd,
		b.CancelAtPeriodEnd, b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			if strings.Contains(pqErr.Constraint, "embed_key") {
				return ErrKeyTaken
			}
			return ErrSlugTaken
		}
		return err
	}
	return nil
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*Business, error) {
	return p.scanBusiness(p.db.QueryRowContext(ctx, `
		SELECT `+businessColumns+` FROM businesses WHERE id = $1`, id))
}

func (p *PostgresStore) GetBySlug(ctx context.Context, slug string) (*Business, error) {
	return p.scanBusiness(p.db.QueryRowContext(ctx, `
		SELECT `+businessColumns+` FROM businesses WHERE slug = $1`, slug))
}

func (p *PostgresStore) GetByEmbedKey(ctx context.Context, key string) (*Business, error) {
	return p.scanBusiness(p.db.QueryRowContext(ctx, `
		SELECT `+businessColumns+` FROM businesses WHERE public_embed_key = $1`, key))
}

func (p *PostgresStore) GetByStripeCustomer(ctx context.Context, customerID string) (*Business, error) {
	if customerID == "" {
		return nil, ErrNotFound
	}
	return p.scanBusiness(p.db.QueryRowContext(ctx, `
		SELECT `+businessColumns+` FROM businesses WHERE stripe_customer_id = $1`, customerID))
}

func (p *PostgresStore) Update(ctx context.Context, b *Business) error {
	result, err := p.db.ExecContext(ctx, `
		UPDATE businesses SET name = $1, public_embed_key = $2, allowed_domains = $3,
			email = $4, email_verified_at = $5, stripe_customer_id = $6,
			stripe_subscription_id = $7, billing_status = $8, billing_plan = $9,
			trial_end = $10, current_period_end = $11, cancel_at_period_end = $12,
			updated_at = $13
		WHERE id = $14`,
		b.Name, b.PublicEmbedKey, pq.Array(b.AllowedDomains), b.Email, b.EmailVerifiedAt,
		nullStr(b.StripeCustomerID), nullStr(b.StripeSubscriptionID), b.BillingStatus,
		nullStr(b.BillingPlan), b.TrialEnd, b.CurrentPeriodEnd, b.CancelAtPeriodEnd,
		b.UpdatedAt, b.ID,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return ErrKeyTaken
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

func (p *PostgresStore) scanBusiness(row *sql.Row) (*Business, error) {
	b := &Business{}
	var (
		domains     pq.StringArray
		custID      sql.NullString
		subID       sql.NullString
		billingPlan sql.NullString
		trialEnd    sql.NullTime
		periodEnd   sql.NullTime
		verifiedAt  sql.NullTime
	)
	err := row.Scan(&b.ID, &b.Name, &b.Slug, &b.PublicEmbedKey, &domains, &b.Email,
		&verifiedAt, &custID, &subID, &b.BillingStatus, &billingPlan, &trialEnd,
		&periodEnd, &b.CancelAtPeriodEnd, &b.CreatedAt, &b.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	b.AllowedDomains = []string(domains)
	if custID.Valid {
		b.StripeCustomerID = custID.String
	}
	if subID.Valid {
		b.StripeSubscriptionID = subID.String
	}
	if billingPlan.Valid {
		b.BillingPlan = billingPlan.String
	}
	if trialEnd.Valid {
		t := trialEnd.Time
		b.TrialEnd = &t
	}
	if periodEnd.Valid {
		t := periodEnd.Time
		b.CurrentPeriodEnd = &t
	}
	if verifiedAt.Valid {
		t := verifiedAt.Time
		b.EmailVerifiedAt = &t
	}
	return b, nil
}

func nullStr(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// Migrate creates the businesses table (used in dev/test; prod uses migration files).
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS businesses (
			id                     TEXT PRIMARY KEY,
			name                   TEXT NOT NULL,
			slug                   TEXT NOT NULL UNIQUE,
			public_embed_key       TEXT NOT NULL UNIQUE,
			allowed_domains        TEXT[] NOT NULL DEFAULT '{}',
			email                  TEXT NOT NULL,
			email_verified_at      TIMESTAMPTZ,
			stripe_customer_id     TEXT,
			stripe_subscription_id TEXT,
			billing_status         TEXT NOT NULL DEFAULT 'incomplete',
			billing_plan           TEXT,
			trial_end              TIMESTAMPTZ,
			current_period_end     TIMESTAMPTZ,
			cancel_at_period_end   BOOLEAN NOT NULL DEFAULT FALSE,
			created_at             TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at             TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_businesses_embed_key ON businesses(public_embed_key);
		CREATE INDEX IF NOT EXISTS idx_businesses_stripe_customer ON businesses(stripe_customer_id);
	`)
	return err
}

var _ Store = (*PostgresStore)(nil)
