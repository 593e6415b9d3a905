package verification

import (
	"context"
	"time"
)

// Store persists verification tokens.
type Store interface {
	Create(ctx context.Context, t *Token) error
	GetByHash(ctx context.Context, hash string) (*Token, error)
	// InvalidateActive marks all unused, unexpired tokens for (userID,
	// purpose) as used so a newly issued token supersedes them.
	InvalidateActive(ctx context.Context, userID, purpose string, now time.Time) error
	// MarkUsed sets used_at atomically. Returns false if the token was
	// already used; the store's row-level atomicity is the only lock.
	MarkUsed(ctx context.Context, id string, now time.Time) (bool, error)
}
