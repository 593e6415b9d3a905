package usage

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/willowchat/willow/internal/config"
	"github.com/willowchat/willow/internal/conversation"
	"github.com/willowchat/willow/internal/plan"
)

func testLimits() config.UsageLimits {
	return config.UsageLimits{
		Trial:      200,
		Basic:      50,
		Growth:     500,
		Pro:        2000,
		Custom:     10000,
		PeriodDays: 30,
	}
}

func TestResolveWindow_TrialUsesTrialEnd(t *testing.T) {
	now := time.Now()
	trialEnd := now.Add(7 * 24 * time.Hour)

	w := ResolveWindow(BillingState{
		Status:   plan.StatusTrialing,
		Plan:     "basic",
		TrialEnd: &trialEnd,
	}, now, testLimits())

	assert.Equal(t, trialEnd, w.PeriodEnd)
	assert.Equal(t, trialEnd.AddDate(0, 0, -30), w.PeriodStart)
	require.NotNil(t, w.Limit)
	assert.Equal(t, 200, *w.Limit, "trialing always meters against the trial limit")
	assert.False(t, w.Degraded)
}

func TestResolveWindow_TrialFallsBackToPeriodEnd(t *testing.T) {
	now := time.Now()
	periodEnd := now.Add(20 * 24 * time.Hour)

	w := ResolveWindow(BillingState{
		Status:           plan.StatusTrialing,
		CurrentPeriodEnd: &periodEnd,
	}, now, testLimits())

	assert.Equal(t, periodEnd, w.PeriodEnd)
}

func TestResolveWindow_ActiveUsesPeriodEnd(t *testing.T) {
	now := time.Now()
	periodEnd := now.Add(10 * 24 * time.Hour)

	w := ResolveWindow(BillingState{
		Status:           plan.StatusActive,
		Plan:             "growth",
		CurrentPeriodEnd: &periodEnd,
	}, now, testLimits())

	assert.Equal(t, periodEnd, w.PeriodEnd)
	require.NotNil(t, w.Limit)
	assert.Equal(t, 500, *w.Limit)
}

func TestResolveWindow_FailsOpenToNow(t *testing.T) {
	now := time.Now()

	w := ResolveWindow(BillingState{
		Status: plan.StatusActive,
		Plan:   "pro",
	}, now, testLimits())

	assert.Equal(t, now, w.PeriodEnd)
	assert.True(t, w.Degraded)
}

func TestResolveWindow_ExactPeriodLength(t *testing.T) {
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	periodEnd := now.Add(24 * time.Hour)

	w := ResolveWindow(BillingState{
		Status:           plan.StatusActive,
		CurrentPeriodEnd: &periodEnd,
	}, now, testLimits())

	assert.Equal(t, 30*24*time.Hour, w.PeriodEnd.Sub(w.PeriodStart))
}

func TestResolveWindow_UnlimitedWhenConfiguredNonPositive(t *testing.T) {
	limits := testLimits()
	limits.Custom = -1

	w := ResolveWindow(BillingState{
		Status: plan.StatusActive,
		Plan:   "custom",
	}, time.Now(), limits)

	assert.Nil(t, w.Limit)
}

func TestResolveWindow_StarterMetersAsBasic(t *testing.T) {
	w := ResolveWindow(BillingState{
		Status: plan.StatusActive,
		Plan:   "starter",
	}, time.Now(), testLimits())

	require.NotNil(t, w.Limit)
	assert.Equal(t, 50, *w.Limit)
}

func TestRemaining(t *testing.T) {
	limit := 50

	r := Remaining(&limit, 20)
	require.NotNil(t, r)
	assert.Equal(t, 30, *r)

	r = Remaining(&limit, 70)
	require.NotNil(t, r)
	assert.Equal(t, 0, *r, "remaining is never negative")

	assert.Nil(t, Remaining(nil, 1000), "unlimited stays unlimited")
}

// chunkRecordingStore wraps a conversation store and records the size of each
// CountUserMessages call.
type chunkRecordingStore struct {
	conversation.Store
	chunkSizes []int
}

func (c *chunkRecordingStore) CountUserMessages(ctx context.Context, ids []string) (int, error) {
	c.chunkSizes = append(c.chunkSizes, len(ids))
	return c.Store.CountUserMessages(ctx, ids)
}

func TestMeter_ChunksConversationIDs(t *testing.T) {
	mem := conversation.NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	// 450 conversations, one user message each.
	for i := 0; i < 450; i++ {
		conv := &conversation.Conversation{
			ID:             fmt.Sprintf("cnv_%04d", i),
			BusinessID:     "bus_1",
			LastActivityAt: now,
			CreatedAt:      now,
		}
		require.NoError(t, mem.CreateConversation(ctx, conv))
		require.NoError(t, mem.AddMessage(ctx, &conversation.Message{
			ID:             conversation.NewMessageID(),
			ConversationID: conv.ID,
			Role:           conversation.RoleUser,
			Body:           "hi",
			CreatedAt:      now,
		}))
	}

	rec := &chunkRecordingStore{Store: mem}
	meter := NewMeter(rec)

	w := Window{PeriodStart: now.Add(-time.Hour), PeriodEnd: now.Add(time.Hour)}
	total, err := meter.CountUsage(ctx, "bus_1", w)
	require.NoError(t, err)

	assert.Equal(t, 450, total)
	assert.Equal(t, []int{200, 200, 50}, rec.chunkSizes)
	for _, size := range rec.chunkSizes {
		assert.LessOrEqual(t, size, ChunkSize)
	}
}

func TestMeter_EmptyWindow(t *testing.T) {
	meter := NewMeter(conversation.NewMemoryStore())
	now := time.Now()

	total, err := meter.CountUsage(context.Background(), "bus_1",
		Window{PeriodStart: now.Add(-time.Hour), PeriodEnd: now})
	require.NoError(t, err)
	assert.Equal(t, 0, total)
}
