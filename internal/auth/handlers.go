package auth

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/willowchat/willow/internal/user"
	"github.com/willowchat/willow/internal/validation"
)

// Handler provides the login endpoint for dashboard users.
type Handler struct {
	manager *Manager
	users   user.Store
}

// NewHandler creates a new auth handler.
func NewHandler(manager *Manager, users user.Store) *Handler {
	return &Handler{manager: manager, users: users}
}

// RegisterRoutes sets up the public auth routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/auth/login", h.Login)
}

// Login handles POST /v1/auth/login
func (h *Handler) Login(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "email and password required"})
		return
	}

	u, err := h.users.GetByEmail(c.Request.Context(), validation.NormalizeEmail(req.Email))
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			// Same response as a wrong password so the endpoint does not
			// reveal which emails have accounts.
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_credentials", "message": "wrong email or password"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "login failed"})
		return
	}

	if u.DisabledAt != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "account_disabled", "message": "account has been deactivated"})
		return
	}

	if !CheckPassword(u.PasswordHash, req.Password) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_credentials", "message": "wrong email or password"})
		return
	}

	token, err := h.manager.Generate(u.ID, u.BusinessID, u.Email)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "failed to issue token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"userId":     u.ID,
		"businessId": u.BusinessID,
	})
}
