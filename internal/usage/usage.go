// Package usage meters user-authored messages against per-tier limits over a
// rolling billing window.
package usage

import (
	"context"
	"time"

	"github.com/willowchat/willow/internal/config"
	"github.com/willowchat/willow/internal/conversation"
	"github.com/willowchat/willow/internal/plan"
)

// ChunkSize caps how many conversation IDs go into a single store query.
const ChunkSize = 200

// BillingState is the subset of a business's billing fields the meter reads.
type BillingState struct {
	Status           plan.BillingStatus
	Plan             string
	TrialEnd         *time.Time
	CurrentPeriodEnd *time.Time
}

// Window is the derived usage window. Never persisted; computed per request.
type Window struct {
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`
	// Limit is nil when the tier is unlimited.
	Limit *int `json:"limit"`
	// Degraded is set when neither trial end nor period end was usable and
	// the window fell back to "now". Callers should log it; the tenant is
	// served rather than blocked.
	Degraded bool `json:"-"`
}

// ResolveWindow computes the usage window from billing state.
//
// periodEnd is trialEnd while trialing (falling back to currentPeriodEnd),
// else currentPeriodEnd, else now. periodStart is periodEnd minus the
// configured period length.
func ResolveWindow(state BillingState, now time.Time, limits config.UsageLimits) Window {
	var end time.Time
	if state.Status == plan.StatusTrialing && state.TrialEnd != nil {
		end = *state.TrialEnd
	} else if state.CurrentPeriodEnd != nil {
		end = *state.CurrentPeriodEnd
	}

	degraded := false
	if end.IsZero() {
		end = now
		degraded = true
	}

	return Window{
		PeriodStart: end.AddDate(0, 0, -limits.PeriodDays),
		PeriodEnd:   end,
		Limit:       limitFor(state, limits),
		Degraded:    degraded,
	}
}

// limitFor selects the per-tier message limit. Trialing status always gets
// the trial limit regardless of the nominal plan; a configured value of zero
// or below means unlimited.
func limitFor(state BillingState, limits config.UsageLimits) *int {
	var n int
	if state.Status == plan.StatusTrialing {
		n = limits.Trial
	} else {
		switch plan.Effective(state.Plan, state.Status, state.TrialEnd) {
		case plan.TierGrowth:
			n = limits.Growth
		case plan.TierPro:
			n = limits.Pro
		case plan.TierCustom:
			n = limits.Custom
		default:
			n = limits.Basic
		}
	}
	if n <= 0 {
		return nil
	}
	return &n
}

// Remaining returns nil for unlimited tiers, otherwise max(limit-used, 0).
func Remaining(limit *int, used int) *int {
	if limit == nil {
		return nil
	}
	r := *limit - used
	if r < 0 {
		r = 0
	}
	return &r
}

// Meter counts usage against the conversation store.
type Meter struct {
	conversations conversation.Store
}

// NewMeter creates a usage meter over a conversation store.
func NewMeter(conversations conversation.Store) *Meter {
	return &Meter{conversations: conversations}
}

// CountUsage counts user-authored messages in the business's conversations
// active inside the window. Conversation IDs are chunked so no single query
// carries more than ChunkSize IDs.
func (m *Meter) CountUsage(ctx context.Context, businessID string, w Window) (int, error) {
	ids, err := m.conversations.ListActiveIDs(ctx, businessID, w.PeriodStart, w.PeriodEnd)
	if err != nil {
		return 0, err
	}

	total := 0
	for start := 0; start < len(ids); start += ChunkSize {
		end := min(start+ChunkSize, len(ids))
		n, err := m.conversations.CountUserMessages(ctx, ids[start:end])
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}
