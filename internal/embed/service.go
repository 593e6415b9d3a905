package embed

import (
	"context"
	"errors"
	"time"

	"github.com/willowchat/willow/internal/business"
	"github.com/willowchat/willow/internal/hostmatch"
	"github.com/willowchat/willow/internal/idgen"
	"github.com/willowchat/willow/internal/logging"
	"github.com/willowchat/willow/internal/metrics"
)

// Service implements embed token issuance.
type Service struct {
	store      Store
	businesses business.Store
}

// NewService creates an embed service.
func NewService(store Store, businesses business.Store) *Service {
	return &Service{store: store, businesses: businesses}
}

// GetOrCreateToken resolves a public embed key and candidate host to the
// business's current embed token, minting one only if none exists yet. This
// is not a rotation endpoint: repeated calls return the same token.
//
// Two simultaneous first-calls for a brand-new business may both insert; that
// race is tolerated. Both tokens are valid and LatestToken converges
// subsequent calls on the newer row.
func (s *Service) GetOrCreateToken(ctx context.Context, publicKey, host string) (*Token, error) {
	if publicKey == "" {
		return nil, ErrMissingKey
	}

	b, err := s.businesses.GetByEmbedKey(ctx, publicKey)
	if err != nil {
		if errors.Is(err, business.ErrNotFound) {
			metrics.EmbedSessionsTotal.WithLabelValues("not_found").Inc()
			return nil, ErrInvalidKey
		}
		return nil, err
	}

	// Strict policy. The suffix matcher is for telemetry only and must never
	// guard issuance.
	if !hostmatch.IsAllowed(host, b.AllowedDomains) {
		metrics.EmbedSessionsTotal.WithLabelValues("domain_rejected").Inc()
		return nil, &DomainError{Host: host, AllowedDomains: b.AllowedDomains, BusinessID: b.ID}
	}

	tok, err := s.store.LatestToken(ctx, b.ID)
	if err == nil {
		metrics.EmbedSessionsTotal.WithLabelValues("ok").Inc()
		return tok, nil
	}
	if !errors.Is(err, ErrTokenNotFound) {
		return nil, err
	}

	now := time.Now()
	tok = &Token{
		ID:         idgen.WithPrefix("emb_"),
		BusinessID: b.ID,
		Token:      NewTokenValue(),
		CreatedAt:  now,
	}
	if err := s.store.CreateToken(ctx, tok); err != nil {
		return nil, err
	}
	metrics.EmbedTokensIssuedTotal.Inc()
	metrics.EmbedSessionsTotal.WithLabelValues("ok").Inc()
	logging.L(ctx).Info("minted embed token", "business_id", b.ID)
	return tok, nil
}

// RecordSession appends an activity row for the install-status telemetry.
// Failures are logged, not surfaced: activity logging must never break
// widget bootstrap.
func (s *Service) RecordSession(ctx context.Context, businessID, host string, isPreview bool) {
	now := time.Now()
	err := s.store.CreateSession(ctx, &Session{
		ID:         idgen.WithPrefix("ses_"),
		BusinessID: businessID,
		Host:       host,
		IsPreview:  isPreview,
		ExpiresAt:  now.Add(SessionTTL),
		CreatedAt:  now,
	})
	if err != nil {
		logging.L(ctx).Warn("failed to record embed session", "business_id", businessID, "error", err)
	}
}

// InstallStatus summarizes recent widget activity for the dashboard.
type InstallStatus struct {
	WidgetLive       bool       `json:"widgetLive"`
	Installed        bool       `json:"installed"`
	ActiveDomainHost *string    `json:"activeDomainHost"`
	LastSeenAt       *time.Time `json:"lastSeenAt"`
}

// Status scans the last 24h of session activity against the business's
// allowlist using the loose suffix matcher. The result is informational; it
// never feeds an authorization decision.
func (s *Service) Status(ctx context.Context, b *business.Business, now time.Time) (*InstallStatus, error) {
	sessions, err := s.store.RecentSessions(ctx, b.ID, now.Add(-SessionTTL))
	if err != nil {
		return nil, err
	}

	st := &InstallStatus{}
	for _, sess := range sessions {
		st.WidgetLive = true
		if sess.IsPreview {
			continue
		}
		if hostmatch.MatchesSuffix(sess.Host, b.AllowedDomains) {
			st.Installed = true
			// Sessions come newest-first, so the first match is the most
			// recent sighting.
			if st.ActiveDomainHost == nil {
				host := sess.Host
				seen := sess.CreatedAt
				st.ActiveDomainHost = &host
				st.LastSeenAt = &seen
			}
		}
	}
	return st, nil
}
