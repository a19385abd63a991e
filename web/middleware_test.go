package web

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

func TestRateLimiterAllowsBurst(t *testing.T) {
	rl := NewRateLimiter(rate.Limit(1), 5)

	limiter := rl.getLimiter("10.0.0.1")
	allowed := 0
	for i := 0; i < 10; i++ {
		if limiter.Allow() {
			allowed++
		}
	}
	if allowed != 5 {
		t.Errorf("Expected burst of 5, got %d allowed", allowed)
	}
}

func TestRateLimiterPerIP(t *testing.T) {
	rl := NewRateLimiter(rate.Limit(1), 1)

	if !rl.getLimiter("10.0.0.1").Allow() {
		t.Error("First request from first IP should be allowed")
	}
	if rl.getLimiter("10.0.0.1").Allow() {
		t.Error("Second request from first IP should be limited")
	}
	if !rl.getLimiter("10.0.0.2").Allow() {
		t.Error("First request from second IP should be allowed")
	}
}

func TestRateLimiterEvictsIdleClients(t *testing.T) {
	rl := NewRateLimiter(rate.Limit(1), 1)
	rl.getLimiter("10.0.0.1")
	rl.getLimiter("10.0.0.2")

	rl.clients["10.0.0.1"].lastSeen.Store(time.Now().Add(-time.Hour).Unix())
	rl.evictIdle(10 * time.Minute)

	if _, ok := rl.clients["10.0.0.1"]; ok {
		t.Error("Expected the idle client to be evicted")
	}
	if _, ok := rl.clients["10.0.0.2"]; !ok {
		t.Error("Expected the active client to survive the sweep")
	}
}

func TestRateLimitMiddlewareRejects(t *testing.T) {
	g := gin.New()
	g.Use(RateLimitMiddleware(NewRateLimiter(rate.Limit(1), 2)))
	g.GET("/", func(c *gin.Context) { c.Status(200) })

	codes := make([]int, 0, 4)
	for i := 0; i < 4; i++ {
		w := httptest.NewRecorder()
		g.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		codes = append(codes, w.Code)
	}

	if codes[0] != 200 || codes[1] != 200 {
		t.Errorf("Expected the burst to pass, got %v", codes)
	}
	if codes[3] != http.StatusTooManyRequests {
		t.Errorf("Expected 429 after the burst, got %v", codes)
	}
}

func TestMaxBytesMiddleware(t *testing.T) {
	g := gin.New()
	g.Use(MaxBytesMiddleware(10))
	g.POST("/", func(c *gin.Context) {
		if _, err := c.GetRawData(); err != nil {
			c.Status(http.StatusRequestEntityTooLarge)
			return
		}
		c.Status(200)
	})

	w := httptest.NewRecorder()
	g.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("tiny")))
	if w.Code != 200 {
		t.Errorf("Expected 200 for a small body, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	g.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(strings.Repeat("x", 100))))
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("Expected 413 for an oversized body, got %d", w.Code)
	}
}
