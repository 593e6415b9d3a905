// Package verification implements single-use email verification tokens. The
// plaintext secret is mailed to the user and never persisted; only its
// SHA-256 hash is stored.
package verification

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/willowchat/willow/internal/idgen"
)

// Errors, checked in this order during redemption.
var (
	ErrInvalidToken = errors.New("verification: invalid token")
	ErrAlreadyUsed  = errors.New("verification: token already used")
	ErrExpired      = errors.New("verification: token expired")
	ErrBadPurpose   = errors.New("verification: unknown purpose")
)

// Token purposes.
const (
	PurposeSignup      = "signup"
	PurposeEmailChange = "email_change"
)

// TokenTTL is fixed in code, not configuration.
const TokenTTL = 72 * time.Hour

// Token is a persisted verification token. At most one active (unused,
// unexpired) token exists per (user, purpose); issuing a new one supersedes
// prior active ones.
type Token struct {
	ID        string            `json:"id"`
	UserID    string            `json:"userId"`
	Purpose   string            `json:"purpose"`
	Email     string            `json:"email"`
	TokenHash string            `json:"-"`
	Meta      map[string]string `json:"meta,omitempty"`
	ExpiresAt time.Time         `json:"expiresAt"`
	UsedAt    *time.Time        `json:"usedAt,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
}

// HashToken maps a plaintext secret to its stored form. Deterministic, so
// lookup by hash works without ever persisting the plaintext.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// NewSecret mints a plaintext token secret.
func NewSecret() string {
	return idgen.Secret(32)
}

// ValidPurpose reports whether p is a known token purpose.
func ValidPurpose(p string) bool {
	return p == PurposeSignup || p == PurposeEmailChange
}
