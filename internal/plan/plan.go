// Package plan resolves a business's raw billing state into the effective
// entitlement tier used for feature gating. Resolution is pure and total:
// unrecognized input degrades to the most restrictive tier rather than
// erroring, except the trial override, which is intentionally generous.
package plan

import "time"

// Tier identifies an entitlement level.
type Tier string

const (
	TierBasic  Tier = "basic"
	TierGrowth Tier = "growth"
	TierPro    Tier = "pro"
	TierCustom Tier = "custom"
)

// BillingStatus mirrors the payment provider's subscription status values we
// consume. Stored as-is on the business row by the billing webhook.
type BillingStatus string

const (
	StatusIncomplete BillingStatus = "incomplete"
	StatusTrialing   BillingStatus = "trialing"
	StatusActive     BillingStatus = "active"
	StatusCanceled   BillingStatus = "canceled"
	StatusPastDue    BillingStatus = "past_due"
)

// Effective maps the nominal plan, billing status, and trial end to the tier
// actually granted. A live trial (trialing with no trial end recorded, or a
// trial end in the future) unlocks the highest tier regardless of the nominal
// plan. "starter" is a legacy alias for basic; anything unrecognized is basic.
func Effective(billingPlan string, status BillingStatus, trialEnd *time.Time) Tier {
	if status == StatusTrialing && (trialEnd == nil || trialEnd.After(time.Now())) {
		return TierPro
	}
	return normalize(billingPlan)
}

func normalize(billingPlan string) Tier {
	switch billingPlan {
	case string(TierGrowth):
		return TierGrowth
	case string(TierPro):
		return TierPro
	case string(TierCustom):
		return TierCustom
	case "starter", string(TierBasic):
		return TierBasic
	default:
		return TierBasic
	}
}

// IsGrowthOrHigher reports whether the tier unlocks growth-gated features
// (indexed content, multiple locales).
func IsGrowthOrHigher(t Tier) bool {
	switch t {
	case TierGrowth, TierPro, TierCustom:
		return true
	}
	return false
}

// Unbounded marks a limit with no cap.
const Unbounded = -1

// DomainLimit returns how many allowlisted domains the tier may configure.
func DomainLimit(t Tier) int {
	switch t {
	case TierPro:
		return 3
	case TierCustom:
		return Unbounded
	default:
		return 1
	}
}

// LocaleLimit returns how many widget locales the tier may configure.
func LocaleLimit(t Tier) int {
	switch t {
	case TierGrowth:
		return 2
	case TierPro:
		return 3
	case TierCustom:
		return Unbounded
	default:
		return 1
	}
}
