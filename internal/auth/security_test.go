package auth

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func newTestRateLimiter(now *time.Time) *RateLimiter {
	rl := NewRateLimiter(RateLimitConfig{
		MaxAttempts:     3,
		WindowDuration:  time.Minute,
		LockoutDuration: 5 * time.Minute,
	})
	rl.now = func() time.Time { return *now }
	return rl
}

func TestRateLimiter_LocksAfterMaxAttempts(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rl := newTestRateLimiter(&now)

	for i := 0; i < 2; i++ {
		allowed, _ := rl.Allow("10.0.0.1", "reader")
		assert.True(t, allowed, "attempt %d", i+1)
		locked, _ := rl.RecordFailure("10.0.0.1", "reader")
		assert.False(t, locked)
	}

	locked, retryAfter := rl.RecordFailure("10.0.0.1", "reader")
	assert.True(t, locked)
	assert.Equal(t, 5*time.Minute, retryAfter)

	allowed, retryAfter := rl.Allow("10.0.0.1", "reader")
	assert.False(t, allowed)
	assert.Equal(t, 5*time.Minute, retryAfter)

	now = now.Add(5*time.Minute + time.Second)
	allowed, _ = rl.Allow("10.0.0.1", "reader")
	assert.True(t, allowed)
}

func TestRateLimiter_WindowResets(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rl := newTestRateLimiter(&now)

	rl.RecordFailure("10.0.0.1", "reader")
	rl.RecordFailure("10.0.0.1", "reader")

	now = now.Add(2 * time.Minute)
	locked, _ := rl.RecordFailure("10.0.0.1", "reader")
	assert.False(t, locked, "failures outside the window start a new count")
}

func TestRateLimiter_SuccessResetsCounter(t *testing.T) {
	now := time.Now()
	rl := newTestRateLimiter(&now)

	rl.RecordFailure("10.0.0.1", "reader")
	rl.RecordFailure("10.0.0.1", "reader")
	assert.Equal(t, 1, rl.Tracked())

	rl.RecordSuccess("10.0.0.1", "reader")
	assert.Equal(t, 0, rl.Tracked())
}

func TestRateLimiter_DifferentUsersAreIndependent(t *testing.T) {
	now := time.Now()
	rl := newTestRateLimiter(&now)

	for i := 0; i < 3; i++ {
		rl.RecordFailure("10.0.0.1", "reader")
	}

	allowed, _ := rl.Allow("10.0.0.1", "reader")
	assert.False(t, allowed)
	allowed, _ = rl.Allow("10.0.0.1", "volunteer")
	assert.True(t, allowed)
	allowed, _ = rl.Allow("10.0.0.2", "reader")
	assert.True(t, allowed)
}

func TestRateLimitMiddleware(t *testing.T) {
	now := time.Now()
	rl := newTestRateLimiter(&now)
	for i := 0; i < 3; i++ {
		rl.RecordFailure("192.0.2.1", "reader")
	}

	var bodySeen string
	router := gin.New()
	router.POST("/api/auth/login", rl.RateLimitMiddleware(), func(c *gin.Context) {
		var req loginRequest
		_ = c.ShouldBindJSON(&req)
		bodySeen = req.Username
		c.Status(http.StatusOK)
	})

	post := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.RemoteAddr = "192.0.2.1:1234"
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	w := post(`{"username":"reader","password":"x"}`)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "300", w.Header().Get("Retry-After"))

	w = post(`{"username":"volunteer","password":"x"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "volunteer", bodySeen, "body must still be readable by the handler")
}

func TestSecurityHeaders(t *testing.T) {
	router := gin.New()
	router.Use(SecurityHeadersMiddleware())
	router.GET("/api/test", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/test", nil))

	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "no-referrer", w.Header().Get("Referrer-Policy"))
	assert.Contains(t, w.Header().Get("Content-Security-Policy"), "default-src 'none'")
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
}

func TestHSTSHeader(t *testing.T) {
	router := gin.New()
	router.Use(StrictTransportSecurityMiddleware())
	router.GET("/api/test", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/test", nil))
	assert.Empty(t, w.Header().Get("Strict-Transport-Security"))

	req := httptest.NewRequest(http.MethodGet, "/api/test", nil)
	req.TLS = &tls.ConnectionState{}
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Contains(t, w.Header().Get("Strict-Transport-Security"), "max-age=31536000")

	req = httptest.NewRequest(http.MethodGet, "/api/test", nil)
	req.Header.Set("X-Forwarded-Proto", "https")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.NotEmpty(t, w.Header().Get("Strict-Transport-Security"))
}

func TestUsernameAndEmailPatterns(t *testing.T) {
	for _, name := range []string{"abc", "reader_1", "hall-volunteer"} {
		assert.True(t, usernamePattern.MatchString(name), name)
	}
	for _, name := range []string{"ab", "with space", "semi;colon", strings.Repeat("a", 65)} {
		assert.False(t, usernamePattern.MatchString(name), name)
	}

	assert.True(t, emailPattern.MatchString("reader@example.com"))
	assert.False(t, emailPattern.MatchString("reader@"))
	assert.False(t, emailPattern.MatchString("reader.example.com"))
}
