package user

import (
	"context"
	"time"
)

// Store persists user data.
type Store interface {
	Create(ctx context.Context, u *User) error
	Get(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	Update(ctx context.Context, u *User) error
	// DeactivateExpired disables users whose email verification deadline
	// passed without confirmation. Returns the number of accounts disabled.
	// Called by the sweep process only.
	DeactivateExpired(ctx context.Context, now time.Time) (int64, error)
}
