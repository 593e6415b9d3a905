package user

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seed(t *testing.T, store Store, email string, deadline *time.Time, confirmed bool) *User {
	t.Helper()
	now := time.Now()
	u := &User{
		ID:                        NewID(),
		BusinessID:                "bus_1",
		Email:                     email,
		PasswordHash:              "x",
		Locale:                    "en",
		EmailVerificationDeadline: deadline,
		CreatedAt:                 now,
		UpdatedAt:                 now,
	}
	if confirmed {
		u.EmailConfirmedAt = &now
	}
	require.NoError(t, store.Create(context.Background(), u))
	return u
}

func TestDeactivateExpired(t *testing.T) {
	store := NewMemoryStore()
	now := time.Now()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	expired := seed(t, store, "expired@test", &past, false)
	confirmed := seed(t, store, "confirmed@test", &past, true)
	pending := seed(t, store, "pending@test", &future, false)
	noDeadline := seed(t, store, "nodeadline@test", nil, false)

	n, err := store.DeactivateExpired(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := store.Get(context.Background(), expired.ID)
	require.NoError(t, err)
	assert.NotNil(t, got.DisabledAt)

	for _, u := range []*User{confirmed, pending, noDeadline} {
		got, err := store.Get(context.Background(), u.ID)
		require.NoError(t, err)
		assert.Nil(t, got.DisabledAt, got.Email)
	}

	// Second pass is a no-op.
	n, err = store.DeactivateExpired(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestGetByEmail(t *testing.T) {
	store := NewMemoryStore()
	u := seed(t, store, "owner@test", nil, false)

	got, err := store.GetByEmail(context.Background(), "owner@test")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	_, err = store.GetByEmail(context.Background(), "nobody@test")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreate_DuplicateEmail(t *testing.T) {
	store := NewMemoryStore()
	seed(t, store, "dup@test", nil, false)

	err := store.Create(context.Background(), &User{
		ID:           NewID(),
		BusinessID:   "bus_2",
		Email:        "dup@test",
		PasswordHash: "x",
	})
	assert.ErrorIs(t, err, ErrEmailTaken)
}
