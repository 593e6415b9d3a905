package hostmatch

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveHost_PrefersOrigin(t *testing.T) {
	r := httptest.NewRequest("GET", "http://api.willow.test/v1/embed/session", nil)
	r.Header.Set("Origin", "https://Shop.Example.com")
	r.Header.Set("Referer", "https://other.example.org/page")

	host, err := ResolveHost(r)
	require.NoError(t, err)
	assert.Equal(t, "shop.example.com", host)
}

func TestResolveHost_FallsBackToReferer(t *testing.T) {
	r := httptest.NewRequest("GET", "http://api.willow.test/", nil)
	r.Header.Set("Referer", "https://blog.example.org:8443/posts/1?x=y")

	host, err := ResolveHost(r)
	require.NoError(t, err)
	assert.Equal(t, "blog.example.org", host)
}

func TestResolveHost_FallsBackToHostHeader(t *testing.T) {
	r := httptest.NewRequest("GET", "http://api.willow.test/", nil)
	r.Host = "Widget.Example.com:3000"

	host, err := ResolveHost(r)
	require.NoError(t, err)
	assert.Equal(t, "widget.example.com", host)
}

func TestResolveHost_Missing(t *testing.T) {
	r := httptest.NewRequest("GET", "http://placeholder/", nil)
	r.Host = ""

	_, err := ResolveHost(r)
	assert.ErrorIs(t, err, ErrMissingHost)
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"example.com", "example.com"},
		{"WWW.Example.COM", "example.com"},
		{"https://www.example.com:443/path?q=1", "example.com"},
		{"http://example.com/", "example.com"},
		{"example.com:8080", "example.com"},
		{"  example.com  ", "example.com"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Normalize(tt.in), "Normalize(%q)", tt.in)
	}
}

func TestIsAllowed_WWWEquivalence(t *testing.T) {
	allowed := []string{"shop.example.com"}

	// www-equivalence in either direction.
	assert.True(t, IsAllowed("www.shop.example.com", allowed))
	assert.True(t, IsAllowed("shop.example.com", []string{"www.shop.example.com"}))

	// Different registrable domain is rejected.
	assert.False(t, IsAllowed("shop.example.org", allowed))
}

func TestIsAllowed_NoSubdomainMatching(t *testing.T) {
	// Strict policy must not accept arbitrary subdomains.
	assert.False(t, IsAllowed("evil.example.com", []string{"example.com"}))
	assert.False(t, IsAllowed("example.com.evil.net", []string{"example.com"}))
}

func TestIsAllowed_NormalizesEntries(t *testing.T) {
	assert.True(t, IsAllowed("example.com", []string{"https://www.example.com/"}))
	assert.True(t, IsAllowed("example.com:9999", []string{"example.com"}))
	assert.False(t, IsAllowed("", []string{"example.com"}))
	assert.False(t, IsAllowed("example.com", nil))
}

func TestMatchesSuffix(t *testing.T) {
	allowed := []string{"example.com"}

	assert.True(t, MatchesSuffix("example.com", allowed))
	assert.True(t, MatchesSuffix("shop.example.com", allowed))
	assert.True(t, MatchesSuffix("a.b.example.com", allowed))

	// Suffix matching is on label boundaries only.
	assert.False(t, MatchesSuffix("notexample.com", allowed))
	assert.False(t, MatchesSuffix("example.com.evil.net", allowed))
}

func TestPolicies_StayDistinct(t *testing.T) {
	// The telemetry matcher accepts what the authorization matcher must not.
	host := "app.example.com"
	allowed := []string{"example.com"}

	assert.False(t, IsAllowed(host, allowed))
	assert.True(t, MatchesSuffix(host, allowed))
}
