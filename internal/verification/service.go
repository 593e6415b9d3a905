package verification

import (
	"context"
	"errors"
	"time"

	"github.com/willowchat/willow/internal/business"
	"github.com/willowchat/willow/internal/idgen"
	"github.com/willowchat/willow/internal/logging"
	"github.com/willowchat/willow/internal/metrics"
	"github.com/willowchat/willow/internal/user"
)

// Service issues and redeems verification tokens and applies the account
// side effects of a successful redemption. It never deletes accounts; the
// sweep process owns deadline enforcement.
type Service struct {
	store      Store
	users      user.Store
	businesses business.Store
}

// NewService creates a verification service.
func NewService(store Store, users user.Store, businesses business.Store) *Service {
	return &Service{store: store, users: users, businesses: businesses}
}

// Issue creates a token for (userID, purpose) targeting email and returns
// the plaintext secret exactly once. Prior active tokens of the same purpose
// are superseded. First signup issuance also stamps the account's
// verification deadline.
func (s *Service) Issue(ctx context.Context, userID, purpose, email string) (string, error) {
	if !ValidPurpose(purpose) {
		return "", ErrBadPurpose
	}

	u, err := s.users.Get(ctx, userID)
	if err != nil {
		return "", err
	}

	now := time.Now()
	raw := NewSecret()

	if err := s.store.InvalidateActive(ctx, userID, purpose, now); err != nil {
		return "", err
	}
	tok := &Token{
		ID:        idgen.WithPrefix("vt_"),
		UserID:    userID,
		Purpose:   purpose,
		Email:     email,
		TokenHash: HashToken(raw),
		ExpiresAt: now.Add(TokenTTL),
		CreatedAt: now,
	}
	if purpose == PurposeEmailChange {
		tok.Meta = map[string]string{"pending_email": email}
	}
	if err := s.store.Create(ctx, tok); err != nil {
		return "", err
	}

	// The deadline is set once, on the first signup token, and is not pushed
	// back by re-sends.
	if purpose == PurposeSignup && u.EmailVerificationDeadline == nil {
		deadline := now.Add(TokenTTL)
		u.EmailVerificationDeadline = &deadline
		u.UpdatedAt = now
		if err := s.users.Update(ctx, u); err != nil {
			return "", err
		}
	}

	return raw, nil
}

// Redemption is the result of a successful redeem.
type Redemption struct {
	UserID  string `json:"userId"`
	Purpose string `json:"purpose"`
	Email   string `json:"email"`
}

// Redeem validates a plaintext token and applies its side effects: the user's
// email is stamped confirmed, the business profile's email_verified_at is set,
// and an email_change token additionally overwrites the stored addresses.
//
// The error taxonomy, checked in order: unknown hash is ErrInvalidToken, a
// set used_at is ErrAlreadyUsed, a past expiry is ErrExpired.
func (s *Service) Redeem(ctx context.Context, raw string) (*Redemption, error) {
	tok, err := s.store.GetByHash(ctx, HashToken(raw))
	if err != nil {
		if errors.Is(err, ErrInvalidToken) {
			metrics.VerificationRedemptionsTotal.WithLabelValues("invalid").Inc()
		}
		return nil, err
	}

	now := time.Now()
	if tok.UsedAt != nil {
		metrics.VerificationRedemptionsTotal.WithLabelValues("consumed").Inc()
		return nil, ErrAlreadyUsed
	}
	if tok.ExpiresAt.Before(now) {
		metrics.VerificationRedemptionsTotal.WithLabelValues("expired").Inc()
		return nil, ErrExpired
	}

	ok, err := s.store.MarkUsed(ctx, tok.ID, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		// Lost a concurrent redemption race.
		metrics.VerificationRedemptionsTotal.WithLabelValues("consumed").Inc()
		return nil, ErrAlreadyUsed
	}

	if err := s.applySideEffects(ctx, tok, now); err != nil {
		// The token is spent either way; surface the failure rather than
		// pretending verification completed.
		return nil, err
	}

	metrics.VerificationRedemptionsTotal.WithLabelValues("ok").Inc()
	return &Redemption{UserID: tok.UserID, Purpose: tok.Purpose, Email: tok.Email}, nil
}

func (s *Service) applySideEffects(ctx context.Context, tok *Token, now time.Time) error {
	u, err := s.users.Get(ctx, tok.UserID)
	if err != nil {
		return err
	}

	u.EmailConfirmedAt = &now
	if tok.Purpose == PurposeEmailChange {
		u.Email = tok.Email
	}
	u.UpdatedAt = now
	if err := s.users.Update(ctx, u); err != nil {
		return err
	}

	b, err := s.businesses.Get(ctx, u.BusinessID)
	if err != nil {
		// A dangling user without a business profile should not block the
		// user-level confirmation.
		logging.L(ctx).Warn("verified user has no business profile", "user_id", u.ID, "business_id", u.BusinessID)
		return nil
	}
	b.EmailVerifiedAt = &now
	if tok.Purpose == PurposeEmailChange {
		b.Email = tok.Email
	}
	b.UpdatedAt = now
	return s.businesses.Update(ctx, b)
}
