// Package billing adapts Stripe subscription lifecycle events onto business
// billing fields and serves the authenticated usage endpoint. The webhook is
// the only writer of billing_status, billing_plan, trial_end,
// current_period_end and cancel_at_period_end.
package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/webhook"

	"github.com/willowchat/willow/internal/business"
	"github.com/willowchat/willow/internal/logging"
	"github.com/willowchat/willow/internal/metrics"
)

// ErrUnknownCustomer is returned when an event references a Stripe customer
// no business row carries. The webhook handler acknowledges these so Stripe
// does not retry them forever.
var ErrUnknownCustomer = errors.New("billing: unknown stripe customer")

// Service processes Stripe webhook payloads.
type Service struct {
	businesses    business.Store
	webhookSecret string
}

// NewService creates a billing service.
func NewService(businesses business.Store, webhookSecret string) *Service {
	return &Service{businesses: businesses, webhookSecret: webhookSecret}
}

// HandleWebhook verifies the payload signature and applies the event.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	event, err := webhook.ConstructEvent(payload, signature, s.webhookSecret)
	if err != nil {
		return fmt.Errorf("billing: signature verification failed: %w", err)
	}
	return s.Apply(ctx, event)
}

// Apply routes a verified event to its handler. Unhandled event types are
// acknowledged without action.
func (s *Service) Apply(ctx context.Context, event stripe.Event) error {
	log := logging.L(ctx)

	var err error
	switch event.Type {
	case "checkout.session.completed":
		err = s.applyCheckoutCompleted(ctx, event)
	case "customer.subscription.created", "customer.subscription.updated":
		err = s.applySubscriptionChange(ctx, event)
	case "customer.subscription.deleted":
		err = s.applySubscriptionDeleted(ctx, event)
	default:
		log.Debug("unhandled stripe event", "type", event.Type)
		metrics.StripeWebhookEventsTotal.WithLabelValues(string(event.Type), "ignored").Inc()
		return nil
	}

	result := "ok"
	if errors.Is(err, ErrUnknownCustomer) {
		log.Warn("stripe event for unknown customer", "type", event.Type, "event_id", event.ID)
		result = "unknown_customer"
		err = nil
	} else if err != nil {
		result = "error"
	}
	metrics.StripeWebhookEventsTotal.WithLabelValues(string(event.Type), result).Inc()
	return err
}

// applyCheckoutCompleted links the Stripe customer and subscription to the
// business named in the checkout metadata. Onboarding stamps business_id into
// the session metadata when it creates the checkout.
func (s *Service) applyCheckoutCompleted(ctx context.Context, event stripe.Event) error {
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return fmt.Errorf("billing: unmarshal checkout session: %w", err)
	}

	businessID := sess.Metadata["business_id"]
	if businessID == "" {
		return fmt.Errorf("billing: checkout session %s has no business_id metadata", sess.ID)
	}

	b, err := s.businesses.Get(ctx, businessID)
	if err != nil {
		if errors.Is(err, business.ErrNotFound) {
			return ErrUnknownCustomer
		}
		return err
	}

	if sess.Customer != nil {
		b.StripeCustomerID = sess.Customer.ID
	}
	if sess.Subscription != nil {
		b.StripeSubscriptionID = sess.Subscription.ID
	}
	if err := s.businesses.Update(ctx, b); err != nil {
		return err
	}

	logging.L(ctx).Info("checkout completed",
		"business_id", b.ID, "stripe_customer_id", b.StripeCustomerID)
	return nil
}

// applySubscriptionChange maps a created or updated subscription onto the
// owning business's billing fields.
func (s *Service) applySubscriptionChange(ctx context.Context, event stripe.Event) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return fmt.Errorf("billing: unmarshal subscription: %w", err)
	}

	b, err := s.businessForSubscription(ctx, &sub)
	if err != nil {
		return err
	}

	b.StripeSubscriptionID = sub.ID
	b.BillingStatus = string(sub.Status)
	if p := planFromSubscription(&sub); p != "" {
		b.BillingPlan = p
	}
	b.TrialEnd = unixPtr(sub.TrialEnd)
	b.CurrentPeriodEnd = unixPtr(sub.CurrentPeriodEnd)
	b.CancelAtPeriodEnd = sub.CancelAtPeriodEnd

	if err := s.businesses.Update(ctx, b); err != nil {
		return err
	}

	logging.L(ctx).Info("subscription updated",
		"business_id", b.ID,
		"billing_status", b.BillingStatus,
		"billing_plan", b.BillingPlan,
		"cancel_at_period_end", b.CancelAtPeriodEnd)
	return nil
}

// applySubscriptionDeleted marks the business canceled. The nominal plan is
// left in place for display; entitlement resolution already treats a canceled
// status as the lowest tier.
func (s *Service) applySubscriptionDeleted(ctx context.Context, event stripe.Event) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return fmt.Errorf("billing: unmarshal subscription: %w", err)
	}

	b, err := s.businessForSubscription(ctx, &sub)
	if err != nil {
		return err
	}

	b.BillingStatus = business.BillingCanceled
	b.TrialEnd = nil
	b.CancelAtPeriodEnd = false
	if err := s.businesses.Update(ctx, b); err != nil {
		return err
	}

	logging.L(ctx).Info("subscription canceled", "business_id", b.ID)
	return nil
}

func (s *Service) businessForSubscription(ctx context.Context, sub *stripe.Subscription) (*business.Business, error) {
	if sub.Customer == nil || sub.Customer.ID == "" {
		return nil, fmt.Errorf("billing: subscription %s has no customer", sub.ID)
	}
	b, err := s.businesses.GetByStripeCustomer(ctx, sub.Customer.ID)
	if errors.Is(err, business.ErrNotFound) {
		return nil, ErrUnknownCustomer
	}
	return b, err
}

// planFromSubscription derives the nominal plan name from the subscription's
// first price. Price metadata wins, then the lookup key, then the nickname.
func planFromSubscription(sub *stripe.Subscription) string {
	if sub.Items == nil || len(sub.Items.Data) == 0 {
		return ""
	}
	price := sub.Items.Data[0].Price
	if price == nil {
		return ""
	}
	if p := price.Metadata["plan"]; p != "" {
		return strings.ToLower(p)
	}
	if price.LookupKey != "" {
		return strings.ToLower(price.LookupKey)
	}
	return strings.ToLower(price.Nickname)
}

func unixPtr(sec int64) *time.Time {
	if sec <= 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}
