package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// limitedRouter mounts rl behind a stand-in for AuthRequired that trusts the
// X-Test-User header.
func limitedRouter(rl *RateLimiter) *gin.Engine {
	router := gin.New()
	router.Use(func(c *gin.Context) {
		if id := c.GetHeader("X-Test-User"); id == "1" {
			c.Set(ContextUserID, uint(1))
		} else if id == "2" {
			c.Set(ContextUserID, uint(2))
		}
		c.Next()
	})
	router.Use(rl.Middleware())
	router.POST("/api/reviews/:id/process", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	return router
}

func hit(router http.Handler, remoteAddr, user string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/api/reviews/1/process", nil)
	req.RemoteAddr = remoteAddr
	if user != "" {
		req.Header.Set("X-Test-User", user)
	}
	router.ServeHTTP(w, req)
	return w
}

func TestRateLimit_BlocksAfterBurst(t *testing.T) {
	rl := NewRateLimiter(1, 2, ClientIP)
	t.Cleanup(rl.Stop)
	router := limitedRouter(rl)

	assert.Equal(t, http.StatusOK, hit(router, "10.0.0.1:1", "").Code)
	assert.Equal(t, http.StatusOK, hit(router, "10.0.0.1:2", "").Code)

	w := hit(router, "10.0.0.1:3", "")
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"code":429,"message":"too many requests, please try again later"}`, w.Body.String())
}

func TestRateLimit_IndependentPerIP(t *testing.T) {
	rl := NewRateLimiter(1, 1, nil)
	t.Cleanup(rl.Stop)
	router := limitedRouter(rl)

	assert.Equal(t, http.StatusOK, hit(router, "10.0.0.1:1", "").Code)
	assert.Equal(t, http.StatusTooManyRequests, hit(router, "10.0.0.1:1", "").Code)
	assert.Equal(t, http.StatusOK, hit(router, "10.0.0.2:1", "").Code)
}

func TestRateLimit_UserOrIPChargesOperatorsSeparately(t *testing.T) {
	rl := NewRateLimiter(1, 1, UserOrIP)
	t.Cleanup(rl.Stop)
	router := limitedRouter(rl)

	// Two operators behind the same office address.
	assert.Equal(t, http.StatusOK, hit(router, "203.0.113.7:1", "1").Code)
	assert.Equal(t, http.StatusOK, hit(router, "203.0.113.7:2", "2").Code)
	assert.Equal(t, http.StatusTooManyRequests, hit(router, "203.0.113.7:3", "1").Code)

	// The same operator is still limited after moving to another address.
	assert.Equal(t, http.StatusTooManyRequests, hit(router, "198.51.100.9:1", "1").Code)

	// Anonymous callers fall back to their IP bucket.
	assert.Equal(t, http.StatusOK, hit(router, "203.0.113.7:4", "").Code)
	assert.Equal(t, http.StatusTooManyRequests, hit(router, "203.0.113.7:5", "").Code)
}

func TestRateLimit_SweepDropsIdleBuckets(t *testing.T) {
	rl := NewRateLimiter(1, 1, ClientIP)
	t.Cleanup(rl.Stop)
	now := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	rl.get("ip:10.0.0.1")
	now = now.Add(2 * time.Minute)
	rl.get("ip:10.0.0.2")
	now = now.Add(4 * time.Minute)
	rl.sweep()

	rl.mu.Lock()
	defer rl.mu.Unlock()
	assert.NotContains(t, rl.buckets, "ip:10.0.0.1")
	assert.Contains(t, rl.buckets, "ip:10.0.0.2")
}

func TestRateLimiter_StopIsIdempotent(t *testing.T) {
	rl := NewRateLimiter(1, 1, nil)
	rl.Stop()
	assert.NotPanics(t, rl.Stop)
}
