package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestLimiter_AllowWithinBurst(t *testing.T) {
	l := NewLimiter(60, 5)
	defer l.Stop()

	for i := 0; i < 5; i++ {
		assert.True(t, l.Allow("1.2.3.4"), "request %d should be allowed", i)
	}
	assert.False(t, l.Allow("1.2.3.4"), "burst exhausted")
}

func TestLimiter_KeysAreIndependent(t *testing.T) {
	l := NewLimiter(60, 1)
	defer l.Stop()

	assert.True(t, l.Allow("1.1.1.1"))
	assert.False(t, l.Allow("1.1.1.1"))
	assert.True(t, l.Allow("2.2.2.2"))
}

func TestLimiter_Middleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	l := NewLimiter(60, 2)
	defer l.Stop()

	r := gin.New()
	r.Use(l.Middleware())
	r.GET("/test", func(c *gin.Context) {
		c.JSON(200, gin.H{"ok": true})
	})

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.RemoteAddr = "9.9.9.9:1234"
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.RemoteAddr = "9.9.9.9:1234"
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))
}

func TestLimiter_Cleanup(t *testing.T) {
	l := NewLimiter(60, 1)
	defer l.Stop()

	l.Allow("stale")
	l.mu.Lock()
	l.buckets["stale"].lastRefill = l.buckets["stale"].lastRefill.Add(-time.Hour)
	l.mu.Unlock()

	l.cleanup()

	l.mu.Lock()
	_, ok := l.buckets["stale"]
	l.mu.Unlock()
	assert.False(t, ok)
}
