package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/willowchat/willow/internal/config"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// testConfig returns a minimal config for testing (in-memory storage).
func testConfig() *config.Config {
	return &config.Config{
		Port:        "0",
		Env:         "development",
		LogLevel:    "error",
		JWTSecret:   "test-secret-test-secret-test-secret!",
		AdminSecret: "test-admin-secret",
		AppBaseURL:  "http://localhost:3000",
		Usage: config.UsageLimits{
			Trial:      200,
			Basic:      50,
			Growth:     500,
			Pro:        2000,
			Custom:     -1,
			PeriodDays: 30,
		},
	}
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	s, err := New(testConfig())
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}
	return s
}

// ---------------------------------------------------------------------------
// Health endpoint tests
// ---------------------------------------------------------------------------

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/health", nil)
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}

	var resp map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}

	if resp["status"] != "healthy" {
		t.Errorf("Expected status 'healthy', got %v", resp["status"])
	}
}

func TestLivenessEndpoint(t *testing.T) {
	s := newTestServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/health/live", nil)
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}
}

func TestReadinessEndpoint(t *testing.T) {
	s := newTestServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/health/ready", nil)
	s.router.ServeHTTP(w, req)

	// Server hasn't called Run() so ready is false
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 (not ready), got %d", w.Code)
	}
}

// ---------------------------------------------------------------------------
// Route registration tests
// ---------------------------------------------------------------------------

func TestCoreRoutesRegistered(t *testing.T) {
	s := newTestServer(t)

	routes := s.router.Routes()
	expected := []string{
		"GET:/health",
		"GET:/health/live",
		"GET:/health/ready",
		"GET:/metrics",
		"POST:/v1/auth/login",
		"GET:/v1/embed/session",
		"GET:/v1/widget/status",
		"GET:/v1/businesses/:id",
		"PATCH:/v1/businesses/:id",
		"POST:/v1/businesses/:id/rotate-key",
		"POST:/v1/verification/send",
		"POST:/v1/verification/confirm",
		"GET:/v1/billing/usage",
		"POST:/v1/billing/webhook",
		"POST:/v1/admin/businesses",
	}

	routeSet := make(map[string]bool)
	for _, route := range routes {
		routeSet[route.Method+":"+route.Path] = true
	}

	for _, e := range expected {
		if !routeSet[e] {
			t.Errorf("Core route %s not registered", e)
		}
	}
}

// ---------------------------------------------------------------------------
// Widget flow test (admin creates a business, widget asks for a session)
// ---------------------------------------------------------------------------

func TestEmbedSessionFlow(t *testing.T) {
	s := newTestServer(t)

	// Create a business via the admin endpoint.
	body := `{"name":"Acme","slug":"acme","email":"owner@acme.test","allowedDomains":["acme.example"]}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/v1/admin/businesses", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Admin-Secret", "test-admin-secret")
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
	}

	var created struct {
		Business struct {
			PublicEmbedKey string `json:"publicEmbedKey"`
		} `json:"business"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if created.Business.PublicEmbedKey == "" {
		t.Fatal("Expected publicEmbedKey in creation response")
	}

	// Widget on the allowlisted domain gets a token.
	w = httptest.NewRecorder()
	req = httptest.NewRequest("GET", "/v1/embed/session?key="+created.Business.PublicEmbedKey, nil)
	req.Header.Set("Origin", "https://acme.example")
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var sess struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &sess); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if !strings.HasPrefix(sess.Token, "wt_") {
		t.Errorf("Expected wt_ token, got %q", sess.Token)
	}

	// Widget on a stranger's domain is refused with debug info.
	w = httptest.NewRecorder()
	req = httptest.NewRequest("GET", "/v1/embed/session?key="+created.Business.PublicEmbedKey, nil)
	req.Header.Set("Origin", "https://evil.example")
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Errorf("Expected 403, got %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "domain_not_allowed") {
		t.Errorf("Expected domain_not_allowed, got %s", w.Body.String())
	}
}

func TestAdminRouteRejectsBadSecret(t *testing.T) {
	s := newTestServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/v1/admin/businesses", strings.NewReader(`{}`))
	req.Header.Set("X-Admin-Secret", "wrong")
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401, got %d", w.Code)
	}
}

func TestProtectedRouteRequiresToken(t *testing.T) {
	s := newTestServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/v1/billing/usage", nil)
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401, got %d", w.Code)
	}
}

// ---------------------------------------------------------------------------
// 404 test
// ---------------------------------------------------------------------------

func TestNotFoundRoute(t *testing.T) {
	s := newTestServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/v1/nonexistent", nil)
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", w.Code)
	}
}
