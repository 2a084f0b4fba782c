package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestRateLimiter_Allow(t *testing.T) {
	rl := NewRateLimiter(3, time.Minute)
	defer rl.Stop()

	for i := 0; i < 3; i++ {
		assert.True(t, rl.Allow("a"), "request %d", i)
	}
	assert.False(t, rl.Allow("a"))
	assert.True(t, rl.Allow("b"))
}

func TestRateLimiter_Refills(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	defer rl.Stop()
	now := time.Now()
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("a"))
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))

	now = now.Add(30 * time.Second)
	assert.True(t, rl.Allow("a"))
}

func TestRateLimiter_StopIsIdempotent(t *testing.T) {
	rl := NewRateLimiter(1, time.Second)
	rl.Stop()
	rl.Stop()
}

func TestRateLimit_Middleware(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)
	defer rl.Stop()

	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(JWTTenantIDKey, c.GetHeader("X-Test-Tenant"))
		c.Next()
	})
	r.Use(RateLimit(rl))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	send := func(tenant string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		req.Header.Set("X-Test-Tenant", tenant)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	first := send("t1")
	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "1", first.Header().Get("X-RateLimit-Limit"))

	limited := send("t1")
	assert.Equal(t, http.StatusTooManyRequests, limited.Code)
	assert.Contains(t, limited.Body.String(), "RATE_LIMIT_EXCEEDED")

	assert.Equal(t, http.StatusOK, send("t2").Code)
}
