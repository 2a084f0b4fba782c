package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/costgov/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimiter keeps one token bucket per client key
type RateLimiter struct {
	mu      sync.Mutex
	clients map[string]*rateClient
	limit   rate.Limit
	burst   int
	idle    time.Duration
	stop    chan struct{}
	once    sync.Once
	now     func() time.Time
}

type rateClient struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter allows requests per window for each key, with bursts up to
// requests. Idle keys are dropped after two windows.
func NewRateLimiter(requests int, window time.Duration) *RateLimiter {
	if requests <= 0 {
		requests = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	rl := &RateLimiter{
		clients: make(map[string]*rateClient),
		limit:   rate.Limit(float64(requests) / window.Seconds()),
		burst:   requests,
		idle:    2 * window,
		stop:    make(chan struct{}),
		now:     time.Now,
	}
	go rl.cleanup()
	return rl
}

func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(rl.idle)
	defer ticker.Stop()
	for {
		select {
		case <-rl.stop:
			return
		case <-ticker.C:
			rl.mu.Lock()
			cutoff := rl.now().Add(-rl.idle)
			for key, c := range rl.clients {
				if c.lastSeen.Before(cutoff) {
					delete(rl.clients, key)
				}
			}
			rl.mu.Unlock()
		}
	}
}

// Stop ends the cleanup goroutine
func (rl *RateLimiter) Stop() {
	rl.once.Do(func() { close(rl.stop) })
}

// Allow reports whether a request for key may proceed now
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	c, ok := rl.clients[key]
	if !ok {
		c = &rateClient{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.clients[key] = c
	}
	now := rl.now()
	c.lastSeen = now
	rl.mu.Unlock()
	return c.limiter.AllowN(now, 1)
}

// Burst returns the per key burst size
func (rl *RateLimiter) Burst() int {
	return rl.burst
}

// RateLimit limits requests per tenant and client IP
func RateLimit(limiter *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.ClientIP()
		if tenantID := GetJWTTenantID(c); tenantID != "" {
			key = tenantID + ":" + key
		}
		c.Header("X-RateLimit-Limit", strconv.Itoa(limiter.Burst()))
		if !limiter.Allow(key) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, dto.NewErrorResponse(
				dto.ErrCodeRateLimited, "Too many requests. Please try again later.", GetRequestID(c)))
			return
		}
		c.Next()
	}
}
