package billing

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/willowchat/willow/internal/auth"
	"github.com/willowchat/willow/internal/business"
	"github.com/willowchat/willow/internal/config"
	"github.com/willowchat/willow/internal/logging"
	"github.com/willowchat/willow/internal/metrics"
	"github.com/willowchat/willow/internal/plan"
	"github.com/willowchat/willow/internal/usage"
)

// maxWebhookBytes bounds the Stripe payload we are willing to read.
const maxWebhookBytes = 1 << 16

// Handler exposes billing HTTP endpoints.
type Handler struct {
	service    *Service
	businesses business.Store
	meter      *usage.Meter
	limits     config.UsageLimits
}

// NewHandler creates a billing handler.
func NewHandler(service *Service, businesses business.Store, meter *usage.Meter, limits config.UsageLimits) *Handler {
	return &Handler{service: service, businesses: businesses, meter: meter, limits: limits}
}

// RegisterRoutes sets up the unauthenticated webhook route. Stripe's
// signature is the credential.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/billing/webhook", h.Webhook)
}

// RegisterProtectedRoutes sets up routes that require a session token.
func (h *Handler) RegisterProtectedRoutes(r *gin.RouterGroup) {
	r.GET("/billing/usage", h.Usage)
}

// Webhook handles POST /v1/billing/webhook
func (h *Handler) Webhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBytes))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "failed to read body"})
		return
	}

	sig := c.GetHeader("Stripe-Signature")
	if err := h.service.HandleWebhook(c.Request.Context(), payload, sig); err != nil {
		logging.L(c.Request.Context()).Error("stripe webhook failed", "error", err)
		// 400 makes Stripe retry the delivery.
		c.JSON(http.StatusBadRequest, gin.H{"error": "webhook_failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}

// Usage handles GET /v1/billing/usage
func (h *Handler) Usage(c *gin.Context) {
	ctx := c.Request.Context()

	b, err := h.businesses.Get(ctx, auth.GetBusinessID(c))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "business not found"})
		return
	}

	state := usage.BillingState{
		Status:           plan.BillingStatus(b.BillingStatus),
		Plan:             b.BillingPlan,
		TrialEnd:         b.TrialEnd,
		CurrentPeriodEnd: b.CurrentPeriodEnd,
	}
	window := usage.ResolveWindow(state, time.Now(), h.limits)
	if window.Degraded {
		logging.L(ctx).Warn("usage window degraded to now",
			"business_id", b.ID, "billing_status", b.BillingStatus)
	}

	used, err := h.meter.CountUsage(ctx, b.ID, window)
	if err != nil {
		logging.L(ctx).Error("usage count failed", "business_id", b.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "failed to count usage"})
		return
	}

	tier := plan.Effective(b.BillingPlan, state.Status, b.TrialEnd)
	metrics.UsageQueriesTotal.WithLabelValues(string(tier)).Inc()

	c.JSON(http.StatusOK, gin.H{
		"status":       b.BillingStatus,
		"plan":         tier,
		"used":         used,
		"limit":        window.Limit,
		"remaining":    usage.Remaining(window.Limit, used),
		"period_start": window.PeriodStart,
		"period_end":   window.PeriodEnd,
	})
}
