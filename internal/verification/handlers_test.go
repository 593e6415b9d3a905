package verification

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/willowchat/willow/internal/auth"
)

// captureSender records the last email instead of delivering it.
type captureSender struct {
	to      string
	subject string
	text    string
	fail    bool
}

func (s *captureSender) Send(_ context.Context, to, subject, _ string, text string) error {
	if s.fail {
		return assert.AnError
	}
	s.to, s.subject, s.text = to, subject, text
	return nil
}

func setupRouter(f *fixture, sender *captureSender) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewHandler(f.service, f.users, sender, "https://app.willowchat.io")

	public := r.Group("/v1")
	h.RegisterPublicRoutes(public)

	protected := r.Group("/v1", func(c *gin.Context) {
		if id := c.GetHeader("X-Test-User"); id != "" {
			c.Set(auth.ContextKeyUserID, id)
		}
		c.Next()
	})
	h.RegisterProtectedRoutes(protected)
	return r
}

func TestSendConfirm_EndToEnd(t *testing.T) {
	f := newFixture(t)
	sender := &captureSender{}
	r := setupRouter(f, sender)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/verification/send",
		strings.NewReader(`{"locale":"de"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Test-User", f.user.ID)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, f.user.Email, sender.to)
	require.Contains(t, sender.text, "https://app.willowchat.io/de/verify-email?token=")

	// Pull the plaintext token out of the mailed URL and confirm with it.
	idx := strings.Index(sender.text, "token=")
	token := strings.Fields(sender.text[idx+len("token="):])[0]

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/v1/verification/confirm",
		strings.NewReader(`{"token":"`+token+`"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		OK      bool   `json:"ok"`
		Purpose string `json:"purpose"`
		Email   string `json:"email"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.OK)
	assert.Equal(t, PurposeSignup, resp.Purpose)
	assert.Equal(t, f.user.Email, resp.Email)

	// Second confirm with the same token.
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/v1/verification/confirm",
		strings.NewReader(`{"token":"`+token+`"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "already_used")
}

func TestSend_EmailChangeRequiresValidEmail(t *testing.T) {
	f := newFixture(t)
	r := setupRouter(f, &captureSender{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/verification/send",
		strings.NewReader(`{"purpose":"email_change","email":"not-an-email","locale":"en"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Test-User", f.user.ID)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid_email")
}

func TestSend_MailerFailure(t *testing.T) {
	f := newFixture(t)
	r := setupRouter(f, &captureSender{fail: true})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/verification/send",
		strings.NewReader(`{"locale":"en"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Test-User", f.user.ID)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Body.String(), "email_failed")
}

func TestConfirm_UnknownToken(t *testing.T) {
	f := newFixture(t)
	r := setupRouter(f, &captureSender{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/verification/confirm",
		strings.NewReader(`{"token":"bogus"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "invalid_token")
}

func TestConfirm_MissingToken(t *testing.T) {
	f := newFixture(t)
	r := setupRouter(f, &captureSender{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/verification/confirm", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
