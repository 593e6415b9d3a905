package business

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/willowchat/willow/internal/auth"
	"github.com/willowchat/willow/internal/hostmatch"
	"github.com/willowchat/willow/internal/plan"
	"github.com/willowchat/willow/internal/validation"
)

// Handler provides HTTP endpoints for business management.
type Handler struct {
	store Store
}

// NewHandler creates a new business handler.
func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

// RegisterAdminRoutes sets up the admin-only business creation route.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.POST("/businesses", h.CreateBusiness)
}

// RegisterProtectedRoutes sets up business routes that require a session
// token. Callers may only act on their own business.
func (h *Handler) RegisterProtectedRoutes(r *gin.RouterGroup) {
	r.GET("/businesses/:id", h.GetBusiness)
	r.PATCH("/businesses/:id", h.UpdateBusiness)
	r.POST("/businesses/:id/rotate-key", h.RotateKey)
}

// ---------- Admin endpoints ----------

// CreateBusiness handles POST /v1/businesses (admin only).
func (h *Handler) CreateBusiness(c *gin.Context) {
	var req struct {
		Name           string   `json:"name" binding:"required"`
		Slug           string   `json:"slug" binding:"required"`
		Email          string   `json:"email" binding:"required"`
		AllowedDomains []string `json:"allowedDomains"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "name, slug and email required"})
		return
	}

	req.Slug = strings.ToLower(strings.TrimSpace(req.Slug))
	if !validation.IsValidSlug(req.Slug) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_slug",
			"message": "slug must be 2-64 lowercase alphanumeric/hyphens",
		})
		return
	}
	req.Email = validation.NormalizeEmail(req.Email)
	if !validation.IsValidEmail(req.Email) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_email", "message": "email is not valid"})
		return
	}

	domains, ok := normalizeDomains(c, req.AllowedDomains)
	if !ok {
		return
	}

	now := time.Now()
	b := &Business{
		ID:             NewID(),
		Name:           validation.SanitizeString(req.Name, 200),
		Slug:           req.Slug,
		PublicEmbedKey: NewEmbedKey(),
		AllowedDomains: domains,
		Email:          req.Email,
		BillingStatus:  BillingIncomplete,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := h.store.Create(c.Request.Context(), b); err != nil {
		if errors.Is(err, ErrSlugTaken) {
			c.JSON(http.StatusConflict, gin.H{"error": "slug_taken", "message": "slug already in use"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "failed to create business"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"business": b})
}

// ---------- Tenant endpoints ----------

// GetBusiness handles GET /v1/businesses/:id
func (h *Handler) GetBusiness(c *gin.Context) {
	b, ok := h.loadOwned(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"business": b})
}

// UpdateBusiness handles PATCH /v1/businesses/:id (name, allowed domains).
func (h *Handler) UpdateBusiness(c *gin.Context) {
	b, ok := h.loadOwned(c)
	if !ok {
		return
	}

	var req struct {
		Name           *string   `json:"name"`
		AllowedDomains *[]string `json:"allowedDomains"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "invalid body"})
		return
	}

	if req.Name != nil {
		b.Name = validation.SanitizeString(*req.Name, 200)
	}
	if req.AllowedDomains != nil {
		domains, ok := normalizeDomains(c, *req.AllowedDomains)
		if !ok {
			return
		}
		tier := plan.Effective(b.BillingPlan, plan.BillingStatus(b.BillingStatus), b.TrialEnd)
		if limit := plan.DomainLimit(tier); limit != plan.Unbounded && len(domains) > limit {
			c.JSON(http.StatusForbidden, gin.H{
				"error":   "domain_limit",
				"message": "plan allows fewer domains",
				"limit":   limit,
			})
			return
		}
		b.AllowedDomains = domains
	}
	b.UpdatedAt = time.Now()

	if err := h.store.Update(c.Request.Context(), b); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "failed to update business"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"business": b})
}

// RotateKey handles POST /v1/businesses/:id/rotate-key. The old public embed
// key stops resolving immediately; embed tokens already issued stay valid.
func (h *Handler) RotateKey(c *gin.Context) {
	b, ok := h.loadOwned(c)
	if !ok {
		return
	}

	b.PublicEmbedKey = NewEmbedKey()
	b.UpdatedAt = time.Now()

	if err := h.store.Update(c.Request.Context(), b); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "failed to rotate key"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"publicEmbedKey": b.PublicEmbedKey})
}

// loadOwned fetches the :id business and enforces that the caller owns it
// (admin-secret requests may act on any business).
func (h *Handler) loadOwned(c *gin.Context) (*Business, bool) {
	b, err := h.store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "business not found"})
			return nil, false
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "lookup failed"})
		return nil, false
	}

	if !auth.IsAdmin(c) && auth.GetBusinessID(c) != b.ID {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden", "message": "not your business"})
		return nil, false
	}
	return b, true
}

// normalizeDomains validates and normalizes an allowlist. Entries are stored
// bare (no scheme, port, or leading www.) so the strict matcher compares like
// with like.
func normalizeDomains(c *gin.Context, raw []string) ([]string, bool) {
	domains := make([]string, 0, len(raw))
	seen := make(map[string]bool)
	for _, d := range raw {
		n := hostmatch.Normalize(d)
		if n == "" || !validation.IsValidDomain(n) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_domain",
				"message": "not a valid domain: " + validation.SanitizeString(d, 100),
			})
			return nil, false
		}
		if !seen[n] {
			seen[n] = true
			domains = append(domains, n)
		}
	}
	return domains, true
}
