package embed

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/willowchat/willow/internal/auth"
	"github.com/willowchat/willow/internal/business"
	"github.com/willowchat/willow/internal/hostmatch"
)

// Handler provides the public widget bootstrap endpoint and the dashboard
// install-status endpoint.
type Handler struct {
	service    *Service
	businesses business.Store
}

// NewHandler creates a new embed handler.
func NewHandler(service *Service, businesses business.Store) *Handler {
	return &Handler{service: service, businesses: businesses}
}

// RegisterPublicRoutes sets up the unauthenticated widget route.
func (h *Handler) RegisterPublicRoutes(r *gin.RouterGroup) {
	r.GET("/embed/session", h.GetSession)
}

// RegisterProtectedRoutes sets up routes that require a session token.
func (h *Handler) RegisterProtectedRoutes(r *gin.RouterGroup) {
	r.GET("/widget/status", h.GetStatus)
}

// GetSession handles GET /v1/embed/session?key=&slug=
//
// The error bodies deliberately echo request details (raw headers on 400,
// extracted host and allowlist on 403) so third-party integrators can
// self-diagnose a misconfigured install. Secrets are never echoed.
func (h *Handler) GetSession(c *gin.Context) {
	headerDebug := gin.H{
		"origin":  c.GetHeader("Origin"),
		"referer": c.GetHeader("Referer"),
		"host":    c.Request.Host,
	}

	key := c.Query("key")
	if key == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "missing_key",
			"message": "query parameter 'key' is required",
			"debug":   headerDebug,
		})
		return
	}

	host, err := hostmatch.ResolveHost(c.Request)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "missing_host",
			"message": "could not determine the requesting host",
			"debug":   headerDebug,
		})
		return
	}

	tok, err := h.service.GetOrCreateToken(c.Request.Context(), key, host)
	if err != nil {
		var domainErr *DomainError
		switch {
		case errors.Is(err, ErrInvalidKey):
			c.JSON(http.StatusForbidden, gin.H{"error": "invalid_key", "message": "unknown embed key"})
		case errors.As(err, &domainErr):
			c.JSON(http.StatusForbidden, gin.H{
				"error":   "domain_not_allowed",
				"message": "this domain is not on the allowlist",
				"debug": gin.H{
					"extractedHost":  domainErr.Host,
					"allowedDomains": domainErr.AllowedDomains,
					"businessId":     domainErr.BusinessID,
				},
			})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "failed to issue token"})
		}
		return
	}

	h.service.RecordSession(c.Request.Context(), tok.BusinessID, host, c.Query("preview") == "1")

	c.JSON(http.StatusOK, gin.H{"token": tok.Token})
}

// GetStatus handles GET /v1/widget/status
func (h *Handler) GetStatus(c *gin.Context) {
	b, err := h.businesses.Get(c.Request.Context(), auth.GetBusinessID(c))
	if err != nil {
		if errors.Is(err, business.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "business not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "lookup failed"})
		return
	}

	st, err := h.service.Status(c.Request.Context(), b, time.Now())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "failed to read activity"})
		return
	}
	c.JSON(http.StatusOK, st)
}
