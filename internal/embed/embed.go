// Package embed issues widget embed tokens to allowlisted customer sites and
// records the session activity used to answer "is the widget installed".
package embed

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/willowchat/willow/internal/idgen"
)

// Errors
var (
	ErrMissingKey    = errors.New("embed: missing public key")
	ErrInvalidKey    = errors.New("embed: invalid public key")
	ErrTokenNotFound = errors.New("embed: token not found")
)

// DomainError reports a strict allowlist rejection. The fields are echoed to
// the integrator in the 403 body so a misconfigured domain list can be
// self-diagnosed without a support ticket.
type DomainError struct {
	Host           string
	AllowedDomains []string
	BusinessID     string
}

func (e *DomainError) Error() string {
	return fmt.Sprintf("embed: host %q not in allowlist [%s]", e.Host, strings.Join(e.AllowedDomains, ", "))
}

// Token is the opaque credential returned to an allowed embedding site. More
// than one may exist per business (historical double-insert races); issuance
// always prefers the newest.
type Token struct {
	ID         string    `json:"id"`
	BusinessID string    `json:"businessId"`
	Token      string    `json:"token"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Session is one observed widget load. Append-mostly activity log, read only
// by the install-status endpoint and pruned by the sweep process.
type Session struct {
	ID         string    `json:"id"`
	BusinessID string    `json:"businessId"`
	Host       string    `json:"host"`
	IsPreview  bool      `json:"isPreview"`
	ExpiresAt  time.Time `json:"expiresAt"`
	CreatedAt  time.Time `json:"createdAt"`
}

// SessionTTL is how long a recorded widget session counts as live activity.
const SessionTTL = 24 * time.Hour

// NewTokenValue mints an unguessable embed token value.
func NewTokenValue() string {
	return "wt_" + idgen.Secret(32)
}
