package embed

import (
	"context"
	"time"
)

// Store persists embed tokens and session activity.
type Store interface {
	CreateToken(ctx context.Context, t *Token) error
	// LatestToken returns the business's most recently created token, or
	// ErrTokenNotFound. Ordering by creation time makes concurrent
	// first-issuance races converge on one winner.
	LatestToken(ctx context.Context, businessID string) (*Token, error)

	CreateSession(ctx context.Context, s *Session) error
	// RecentSessions returns sessions created at or after since, newest first.
	RecentSessions(ctx context.Context, businessID string, since time.Time) ([]*Session, error)
	// DeleteExpiredSessions prunes sessions past their expiry. Called by the
	// sweep process only.
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)
}
