// Package business provides tenant accounts for the Willow platform. A
// business owns a chat widget configuration, a domain allowlist, and a
// billing subscription.
package business

import (
	"errors"
	"time"

	"github.com/willowchat/willow/internal/idgen"
)

// Errors
var (
	ErrNotFound  = errors.New("business: not found")
	ErrSlugTaken = errors.New("business: slug already taken")
	ErrKeyTaken  = errors.New("business: public embed key already taken")
)

// BillingStatus values mirror the Stripe subscription lifecycle subset we
// consume.
const (
	BillingIncomplete = "incomplete"
	BillingTrialing   = "trialing"
	BillingActive     = "active"
	BillingCanceled   = "canceled"
	BillingPastDue    = "past_due"
)

// Business represents a tenant account.
type Business struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Slug           string   `json:"slug"`
	PublicEmbedKey string   `json:"publicEmbedKey"`
	AllowedDomains []string `json:"allowedDomains"`

	Email           string     `json:"email"`
	EmailVerifiedAt *time.Time `json:"emailVerifiedAt,omitempty"`

	StripeCustomerID     string     `json:"stripeCustomerId,omitempty"`
	StripeSubscriptionID string     `json:"stripeSubscriptionId,omitempty"`
	BillingStatus        string     `json:"billingStatus"`
	BillingPlan          string     `json:"billingPlan,omitempty"`
	TrialEnd             *time.Time `json:"trialEnd,omitempty"`
	CurrentPeriodEnd     *time.Time `json:"currentPeriodEnd,omitempty"`
	CancelAtPeriodEnd    bool       `json:"cancelAtPeriodEnd"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewEmbedKey mints a public embed key. The key is an identifier, not a
// secret, but it must be unguessable so third parties cannot probe allowlists.
func NewEmbedKey() string {
	return "pk_" + idgen.Secret(16)
}

// NewID mints a business ID.
func NewID() string {
	return idgen.WithPrefix("bus_")
}
