// Package user provides dashboard user accounts. Each user belongs to one
// business and signs in with email + password.
package user

import (
	"errors"
	"time"

	"github.com/willowchat/willow/internal/idgen"
)

// Errors
var (
	ErrNotFound   = errors.New("user: not found")
	ErrEmailTaken = errors.New("user: email already taken")
)

// User represents a dashboard account.
type User struct {
	ID           string `json:"id"`
	BusinessID   string `json:"businessId"`
	Email        string `json:"email"`
	PasswordHash string `json:"-"`
	Locale       string `json:"locale"`

	// EmailConfirmedAt is set when a verification token is redeemed.
	EmailConfirmedAt *time.Time `json:"emailConfirmedAt,omitempty"`
	// EmailVerificationDeadline is set on first signup-token issuance. An
	// account past this deadline without confirmation is deactivated by the
	// sweep process, never by the verification service itself.
	EmailVerificationDeadline *time.Time `json:"emailVerificationDeadline,omitempty"`
	DisabledAt                *time.Time `json:"disabledAt,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewID mints a user ID.
func NewID() string {
	return idgen.WithPrefix("usr_")
}
