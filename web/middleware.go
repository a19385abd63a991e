package web

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const (
	limiterSweepInterval = 5 * time.Minute
	limiterMaxIdle       = 10 * time.Minute
)

// client is one IP's token bucket plus the last time it was seen.
// lastSeen is atomic so the read-locked fast path can refresh it.
type client struct {
	limiter  *rate.Limiter
	lastSeen atomic.Int64
}

func (c *client) touch() {
	c.lastSeen.Store(time.Now().Unix())
}

// RateLimiter holds per-IP token buckets.
type RateLimiter struct {
	clients map[string]*client
	mu      sync.RWMutex
	rate    rate.Limit
	burst   int
}

// NewRateLimiter creates a rate limiter allowing r requests per second
// with the given burst per client IP.
func NewRateLimiter(r rate.Limit, b int) *RateLimiter {
	return &RateLimiter{
		clients: make(map[string]*client),
		rate:    r,
		burst:   b,
	}
}

func (rl *RateLimiter) getLimiter(ip string) *rate.Limiter {
	rl.mu.RLock()
	c, ok := rl.clients[ip]
	rl.mu.RUnlock()
	if ok {
		c.touch()
		return c.limiter
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if c, ok := rl.clients[ip]; ok {
		c.touch()
		return c.limiter
	}
	c = &client{limiter: rate.NewLimiter(rl.rate, rl.burst)}
	c.touch()
	rl.clients[ip] = c
	return c.limiter
}

// evictIdle drops clients not seen within maxIdle.
func (rl *RateLimiter) evictIdle(maxIdle time.Duration) {
	cutoff := time.Now().Add(-maxIdle).Unix()
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for ip, c := range rl.clients {
		if c.lastSeen.Load() < cutoff {
			delete(rl.clients, ip)
		}
	}
}

func (rl *RateLimiter) sweep() {
	ticker := time.NewTicker(limiterSweepInterval)
	defer ticker.Stop()

	for range ticker.C {
		rl.evictIdle(limiterMaxIdle)
	}
}

// RateLimitMiddleware rejects requests over the per-IP limit with a 429.
func RateLimitMiddleware(rl *RateLimiter) gin.HandlerFunc {
	go rl.sweep()

	return func(c *gin.Context) {
		if !rl.getLimiter(c.ClientIP()).Allow() {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error": "Rate limit exceeded. Please try again later.",
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

// MaxBytesMiddleware caps the request body size.
func MaxBytesMiddleware(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxBytes {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{
				"error": "Request body too large",
			})
			c.Abort()
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}
