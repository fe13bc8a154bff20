package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/ElieObadia/backend-proxy/internal/observability"
)

// Rate limiter housekeeping constants.
const (
	// clientTTL is how long an idle client's bucket is retained.
	clientTTL = 10 * time.Minute

	// cleanupInterval is how often idle buckets are swept.
	cleanupInterval = time.Minute
)

// clientEntry holds a client's bucket and its last access time.
type clientEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// RateLimiter applies a per-client token bucket. The gateway constructs one
// only when rate limiting is enabled in configuration.
type RateLimiter struct {
	rps    int
	burst  int
	logger observability.Logger

	mu      sync.Mutex
	clients map[string]*clientEntry

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewRateLimiter creates a rate limiter and starts its cleanup loop.
func NewRateLimiter(rps, burst int, logger observability.Logger) *RateLimiter {
	if logger == nil {
		logger = observability.NopLogger()
	}
	if burst < rps {
		burst = rps
	}

	rl := &RateLimiter{
		rps:     rps,
		burst:   burst,
		logger:  logger,
		clients: make(map[string]*clientEntry),
		stopCh:  make(chan struct{}),
	}

	go rl.cleanupLoop()
	return rl
}

// Allow checks whether the client may proceed.
func (rl *RateLimiter) Allow(clientIP string) bool {
	now := time.Now()

	rl.mu.Lock()
	entry, exists := rl.clients[clientIP]
	if !exists {
		entry = &clientEntry{
			limiter: rate.NewLimiter(rate.Limit(rl.rps), rl.burst),
		}
		rl.clients[clientIP] = entry
	}
	entry.lastAccess = now
	limiter := entry.limiter
	rl.mu.Unlock()

	return limiter.Allow()
}

// Stop terminates the cleanup loop.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() {
		close(rl.stopCh)
	})
}

// cleanupLoop evicts buckets that have been idle longer than clientTTL.
func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stopCh:
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-clientTTL)

			rl.mu.Lock()
			for ip, entry := range rl.clients {
				if entry.lastAccess.Before(cutoff) {
					delete(rl.clients, ip)
				}
			}
			rl.mu.Unlock()
		}
	}
}

// RateLimit returns a middleware enforcing the limiter per client IP.
func RateLimit(rl *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		clientIP := c.ClientIP()

		if !rl.Allow(clientIP) {
			rl.logger.Warn("rate limit exceeded",
				observability.String("clientIP", clientIP),
				observability.String("path", c.Request.URL.Path),
			)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":   "Too Many Requests",
				"message": "Rate limit exceeded",
			})
			return
		}

		c.Next()
	}
}
