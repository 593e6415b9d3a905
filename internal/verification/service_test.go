package verification

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/willowchat/willow/internal/business"
	"github.com/willowchat/willow/internal/user"
)

type fixture struct {
	service    *Service
	store      *MemoryStore
	users      user.Store
	businesses business.Store
	user       *user.User
	business   *business.Business
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	now := time.Now()

	businesses := business.NewMemoryStore()
	b := &business.Business{
		ID:             business.NewID(),
		Name:           "Acme",
		Slug:           "acme",
		PublicEmbedKey: business.NewEmbedKey(),
		Email:          "owner@acme.example",
		BillingStatus:  business.BillingTrialing,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	require.NoError(t, businesses.Create(context.Background(), b))

	users := user.NewMemoryStore()
	u := &user.User{
		ID:           user.NewID(),
		BusinessID:   b.ID,
		Email:        "owner@acme.example",
		PasswordHash: "x",
		Locale:       "en",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, users.Create(context.Background(), u))

	store := NewMemoryStore()
	return &fixture{
		service:    NewService(store, users, businesses),
		store:      store,
		users:      users,
		businesses: businesses,
		user:       u,
		business:   b,
	}
}

func TestIssueRedeem_RoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	raw, err := f.service.Issue(ctx, f.user.ID, PurposeSignup, f.user.Email)
	require.NoError(t, err)
	require.NotEmpty(t, raw)

	red, err := f.service.Redeem(ctx, raw)
	require.NoError(t, err)
	assert.Equal(t, f.user.ID, red.UserID)
	assert.Equal(t, PurposeSignup, red.Purpose)
	assert.Equal(t, f.user.Email, red.Email)

	// Side effects: user confirmed, business profile stamped.
	u, err := f.users.Get(ctx, f.user.ID)
	require.NoError(t, err)
	assert.NotNil(t, u.EmailConfirmedAt)

	b, err := f.businesses.Get(ctx, f.business.ID)
	require.NoError(t, err)
	assert.NotNil(t, b.EmailVerifiedAt)

	// Exactly once.
	_, err = f.service.Redeem(ctx, raw)
	assert.ErrorIs(t, err, ErrAlreadyUsed)
}

func TestRedeem_UnknownToken(t *testing.T) {
	f := newFixture(t)
	_, err := f.service.Redeem(context.Background(), "never-issued")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestIssue_SupersedesPriorActive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.service.Issue(ctx, f.user.ID, PurposeSignup, f.user.Email)
	require.NoError(t, err)
	second, err := f.service.Issue(ctx, f.user.ID, PurposeSignup, f.user.Email)
	require.NoError(t, err)

	// The superseded token reads as already used, not expired.
	_, err = f.service.Redeem(ctx, first)
	assert.ErrorIs(t, err, ErrAlreadyUsed)

	_, err = f.service.Redeem(ctx, second)
	assert.NoError(t, err)
}

func TestIssue_DifferentPurposesCoexist(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	signup, err := f.service.Issue(ctx, f.user.ID, PurposeSignup, f.user.Email)
	require.NoError(t, err)
	change, err := f.service.Issue(ctx, f.user.ID, PurposeEmailChange, "new@acme.example")
	require.NoError(t, err)

	_, err = f.service.Redeem(ctx, signup)
	assert.NoError(t, err, "an email_change issuance must not supersede a signup token")
	_, err = f.service.Redeem(ctx, change)
	assert.NoError(t, err)
}

func TestRedeem_Expired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	raw := NewSecret()
	require.NoError(t, f.store.Create(ctx, &Token{
		ID:        "vt_expired",
		UserID:    f.user.ID,
		Purpose:   PurposeSignup,
		Email:     f.user.Email,
		TokenHash: HashToken(raw),
		ExpiresAt: time.Now().Add(-time.Minute),
		CreatedAt: time.Now().Add(-TokenTTL - time.Minute),
	}))

	_, err := f.service.Redeem(ctx, raw)
	assert.ErrorIs(t, err, ErrExpired)
}

func TestRedeem_EmailChangeUpdatesAddresses(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	raw, err := f.service.Issue(ctx, f.user.ID, PurposeEmailChange, "new@acme.example")
	require.NoError(t, err)

	red, err := f.service.Redeem(ctx, raw)
	require.NoError(t, err)
	assert.Equal(t, "new@acme.example", red.Email)

	u, err := f.users.Get(ctx, f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, "new@acme.example", u.Email)
	assert.NotNil(t, u.EmailConfirmedAt)

	b, err := f.businesses.Get(ctx, f.business.ID)
	require.NoError(t, err)
	assert.Equal(t, "new@acme.example", b.Email)
}

func TestIssue_SetsDeadlineOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.Issue(ctx, f.user.ID, PurposeSignup, f.user.Email)
	require.NoError(t, err)

	u, err := f.users.Get(ctx, f.user.ID)
	require.NoError(t, err)
	require.NotNil(t, u.EmailVerificationDeadline)
	firstDeadline := *u.EmailVerificationDeadline

	// A re-send must not push the deadline back.
	time.Sleep(5 * time.Millisecond)
	_, err = f.service.Issue(ctx, f.user.ID, PurposeSignup, f.user.Email)
	require.NoError(t, err)

	u, err = f.users.Get(ctx, f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, firstDeadline, *u.EmailVerificationDeadline)
}

func TestIssue_BadPurpose(t *testing.T) {
	f := newFixture(t)
	_, err := f.service.Issue(context.Background(), f.user.ID, "password_reset", f.user.Email)
	assert.ErrorIs(t, err, ErrBadPurpose)
}

func TestHashToken_Deterministic(t *testing.T) {
	raw := NewSecret()
	assert.Equal(t, HashToken(raw), HashToken(raw))
	assert.NotEqual(t, raw, HashToken(raw))
	assert.Len(t, HashToken(raw), 64)
}
