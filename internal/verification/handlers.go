package verification

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"

	"github.com/willowchat/willow/internal/auth"
	"github.com/willowchat/willow/internal/logging"
	"github.com/willowchat/willow/internal/mailer"
	"github.com/willowchat/willow/internal/metrics"
	"github.com/willowchat/willow/internal/user"
	"github.com/willowchat/willow/internal/validation"
)

// Handler provides the verification send/confirm endpoints.
type Handler struct {
	service    *Service
	users      user.Store
	sender     mailer.Sender
	appBaseURL string
}

// NewHandler creates a new verification handler.
func NewHandler(service *Service, users user.Store, sender mailer.Sender, appBaseURL string) *Handler {
	return &Handler{service: service, users: users, sender: sender, appBaseURL: appBaseURL}
}

// RegisterPublicRoutes sets up the confirm route (the token is the credential).
func (h *Handler) RegisterPublicRoutes(r *gin.RouterGroup) {
	r.POST("/verification/confirm", h.Confirm)
}

// RegisterProtectedRoutes sets up routes that require a session token.
func (h *Handler) RegisterProtectedRoutes(r *gin.RouterGroup) {
	r.POST("/verification/send", h.Send)
}

// Send handles POST /v1/verification/send
func (h *Handler) Send(c *gin.Context) {
	var req struct {
		Email   string `json:"email"`
		Locale  string `json:"locale"`
		Purpose string `json:"purpose"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "invalid body"})
		return
	}

	if req.Purpose == "" {
		req.Purpose = PurposeSignup
	}
	if !ValidPurpose(req.Purpose) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_purpose", "message": "purpose must be signup or email_change"})
		return
	}
	if req.Locale == "" {
		req.Locale = "en"
	}

	u, err := h.users.Get(c.Request.Context(), auth.GetUserID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "account lookup failed"})
		return
	}

	email := u.Email
	if req.Purpose == PurposeEmailChange {
		email = validation.NormalizeEmail(req.Email)
		if !validation.IsValidEmail(email) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_email", "message": "a valid new email address is required"})
			return
		}
	}

	raw, err := h.service.Issue(c.Request.Context(), u.ID, req.Purpose, email)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "failed to issue token"})
		return
	}

	verifyURL := fmt.Sprintf("%s/%s/verify-email?token=%s",
		h.appBaseURL, url.PathEscape(req.Locale), url.QueryEscape(raw))

	subject := "Verify your email for Willow Chat"
	html := fmt.Sprintf(`<p>Please confirm your email address for Willow Chat.</p>
<p><a href="%s">Verify email</a></p>
<p>Or open this link: %s</p>
<p>This link expires in 72 hours. If you did not request it, ignore this email.</p>`, verifyURL, verifyURL)
	text := fmt.Sprintf("Confirm your email address for Willow Chat:\n\n%s\n\nThis link expires in 72 hours.", verifyURL)

	if err := h.sender.Send(c.Request.Context(), email, subject, html, text); err != nil {
		metrics.VerificationEmailsTotal.WithLabelValues("failed").Inc()
		logging.L(c.Request.Context()).Error("verification email failed", "user_id", u.ID, "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "email_failed", "message": "could not send verification email"})
		return
	}
	metrics.VerificationEmailsTotal.WithLabelValues("sent").Inc()

	c.JSON(http.StatusOK, gin.H{"ok": true, "email": email})
}

// Confirm handles POST /v1/verification/confirm
func (h *Handler) Confirm(c *gin.Context) {
	var req struct {
		Token string `json:"token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "missing_token"})
		return
	}

	red, err := h.service.Redeem(c.Request.Context(), req.Token)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidToken):
			c.JSON(http.StatusNotFound, gin.H{"ok": false, "error": "invalid_token"})
		case errors.Is(err, ErrAlreadyUsed):
			c.JSON(http.StatusConflict, gin.H{"ok": false, "error": "already_used"})
		case errors.Is(err, ErrExpired):
			c.JSON(http.StatusGone, gin.H{"ok": false, "error": "expired"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "internal_error"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "purpose": red.Purpose, "email": red.Email})
}
