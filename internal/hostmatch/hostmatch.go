// Package hostmatch decides whether an embedding page's host is trusted by a
// business. It is the single place host normalization and allowlist matching
// live; call sites must not re-derive their own string logic.
//
// Two policies exist on purpose and must stay separate:
//   - IsAllowed: strict equality modulo a leading "www.". This guards embed
//     token issuance and is security-relevant.
//   - MatchesSuffix: also accepts subdomains of an allowlist entry. This is
//     only for the non-authoritative "is the widget installed" telemetry.
package hostmatch

import (
	"errors"
	"net/http"
	"net/url"
	"strings"
)

// ErrMissingHost is returned when no usable host can be extracted from a
// request. An absent host is an error state, never treated as allowed.
var ErrMissingHost = errors.New("hostmatch: missing host")

// ResolveHost extracts the embedding page's hostname from a request.
// It prefers the Origin header, falls back to Referer, and finally to the
// Host header (same-origin requests often carry neither Origin nor Referer).
// The result is a lower-cased bare hostname with scheme, path, and port
// stripped.
func ResolveHost(r *http.Request) (string, error) {
	for _, raw := range []string{r.Header.Get("Origin"), r.Header.Get("Referer")} {
		if raw == "" {
			continue
		}
		if u, err := url.Parse(raw); err == nil && u.Hostname() != "" {
			return strings.ToLower(u.Hostname()), nil
		}
	}

	if host := r.Host; host != "" {
		return stripPort(strings.ToLower(host)), nil
	}

	return "", ErrMissingHost
}

// Normalize reduces an allowlist entry or hostname to canonical form:
// lower-cased, scheme and path stripped, port stripped, leading "www."
// removed. Normalize("https://www.Example.com:443/x") == "example.com".
func Normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ""
	}

	// Entries are sometimes pasted with a scheme; strip it.
	if i := strings.Index(s, "://"); i >= 0 {
		s = s[i+3:]
	}
	if i := strings.IndexAny(s, "/?#"); i >= 0 {
		s = s[:i]
	}
	s = stripPort(s)
	s = strings.TrimPrefix(s, "www.")
	return s
}

// IsAllowed reports whether host matches one of the allowlist entries under
// the strict policy: exact equality after Normalize, which makes
// "example.com" and "www.example.com" interchangeable in either direction.
// Arbitrary subdomains do NOT match; use MatchesSuffix for telemetry only.
func IsAllowed(host string, allowed []string) bool {
	h := Normalize(host)
	if h == "" {
		return false
	}
	for _, entry := range allowed {
		if e := Normalize(entry); e != "" && e == h {
			return true
		}
	}
	return false
}

// MatchesSuffix reports whether host matches an allowlist entry exactly or is
// a subdomain of one ("shop.example.com" matches entry "example.com").
// Looser than IsAllowed; used only to answer "does recent widget activity
// look like one of the configured domains", never for authorization.
func MatchesSuffix(host string, allowed []string) bool {
	h := Normalize(host)
	if h == "" {
		return false
	}
	for _, entry := range allowed {
		e := Normalize(entry)
		if e == "" {
			continue
		}
		if h == e || strings.HasSuffix(h, "."+e) {
			return true
		}
	}
	return false
}

func stripPort(host string) string {
	if i := strings.LastIndex(host, ":"); i >= 0 {
		// Guard against bare IPv6 literals, which contain colons but no port
		// when unbracketed.
		if !strings.Contains(host[i:], "]") && strings.Count(host, ":") == 1 {
			return host[:i]
		}
		if strings.HasPrefix(host, "[") {
			if j := strings.Index(host, "]"); j >= 0 {
				return host[:j+1]
			}
		}
	}
	return host
}
