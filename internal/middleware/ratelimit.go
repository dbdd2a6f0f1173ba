// ratelimit.go provides Gin middleware that enforces per-client token-bucket
// rate limits, returning 429 responses when the configured requests-per-minute
// threshold is exceeded. Two implementations exist behind the Limiter
// interface: an in-memory bucket map for single-process deployments and a
// Redis-backed limiter (GCRA via redis_rate) that shares state across
// replicas.
package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis_rate/v10"
	"github.com/redis/go-redis/v9"
)

// RateLimitConfig holds configuration for rate limiting
type RateLimitConfig struct {
	// RequestsPerMinute is the maximum number of requests allowed per minute
	RequestsPerMinute int
	// BurstSize is the maximum burst of requests allowed
	BurstSize int
	// CleanupInterval is how often the in-memory limiter evicts idle entries
	CleanupInterval time.Duration
}

// DefaultRateLimitConfig returns sensible defaults for authenticated API usage.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerMinute: 120,
		BurstSize:         30,
		CleanupInterval:   5 * time.Minute,
	}
}

// ProposeRateLimitConfig returns stricter limits for the registration
// endpoint, which writes rows and derives secrets.
func ProposeRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerMinute: 10,
		BurstSize:         5,
		CleanupInterval:   5 * time.Minute,
	}
}

// Limiter is the decision interface both limiter implementations satisfy.
type Limiter interface {
	Allow(c *gin.Context, key string) (allowed bool, remaining int)
}

// rateLimitEntry tracks the token bucket for a single client
type rateLimitEntry struct {
	tokens     float64
	lastUpdate time.Time
}

// RateLimiter implements an in-memory token bucket rate limiter
type RateLimiter struct {
	config  RateLimitConfig
	entries map[string]*rateLimitEntry
	mu      sync.Mutex
	stopCh  chan struct{}
}

// NewRateLimiter creates a new in-memory rate limiter with the given config
func NewRateLimiter(config RateLimitConfig) *RateLimiter {
	rl := &RateLimiter{
		config:  config,
		entries: make(map[string]*rateLimitEntry),
		stopCh:  make(chan struct{}),
	}

	go rl.cleanup()

	return rl
}

// cleanup periodically removes idle entries
func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.mu.Lock()
			now := time.Now()
			for key, entry := range rl.entries {
				if now.Sub(entry.lastUpdate) > 10*time.Minute {
					delete(rl.entries, key)
				}
			}
			rl.mu.Unlock()
		case <-rl.stopCh:
			return
		}
	}
}

// Stop stops the cleanup goroutine
func (rl *RateLimiter) Stop() {
	close(rl.stopCh)
}

// Allow checks if a request from the given key should be allowed
func (rl *RateLimiter) Allow(_ *gin.Context, key string) (bool, int) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	entry, exists := rl.entries[key]

	if !exists {
		rl.entries[key] = &rateLimitEntry{
			tokens:     float64(rl.config.BurstSize) - 1,
			lastUpdate: now,
		}
		return true, rl.config.BurstSize - 1
	}

	// Refill based on time elapsed, capped at the burst size.
	elapsed := now.Sub(entry.lastUpdate)
	tokensPerSecond := float64(rl.config.RequestsPerMinute) / 60.0
	entry.tokens = minFloat(float64(rl.config.BurstSize), entry.tokens+elapsed.Seconds()*tokensPerSecond)
	entry.lastUpdate = now

	if entry.tokens >= 1 {
		entry.tokens--
		return true, int(entry.tokens)
	}

	return false, 0
}

// RedisRateLimiter shares limit state across registry replicas through Redis.
type RedisRateLimiter struct {
	limiter *redis_rate.Limiter
	config  RateLimitConfig
}

// NewRedisRateLimiter creates a Redis-backed limiter on the given client.
func NewRedisRateLimiter(client *redis.Client, config RateLimitConfig) *RedisRateLimiter {
	return &RedisRateLimiter{
		limiter: redis_rate.NewLimiter(client),
		config:  config,
	}
}

// Allow consults Redis for the shared bucket state. Redis outages fail open:
// an unreachable limiter must not take the registry down with it.
func (rl *RedisRateLimiter) Allow(c *gin.Context, key string) (bool, int) {
	res, err := rl.limiter.Allow(c.Request.Context(), key, redis_rate.Limit{
		Rate:   rl.config.RequestsPerMinute,
		Burst:  rl.config.BurstSize,
		Period: time.Minute,
	})
	if err != nil {
		return true, rl.config.BurstSize
	}
	return res.Allowed > 0, res.Remaining
}

// RateLimitMiddleware creates a Gin middleware that rate limits requests
func RateLimitMiddleware(limiter Limiter, config RateLimitConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := getRateLimitKey(c)

		allowed, remaining := limiter.Allow(c, key)
		if !allowed {
			c.Header("X-RateLimit-Remaining", "0")
			c.Header("Retry-After", "60")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "Rate limit exceeded",
				"retry_after": 60,
			})
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(config.RequestsPerMinute))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))

		c.Next()
	}
}

// getRateLimitKey determines the key to use for rate limiting.
// Priority: authenticated central id > IP address.
func getRateLimitKey(c *gin.Context) string {
	if actor := ActorFromContext(c); actor != nil {
		return "user:" + strconv.FormatInt(actor.CentralID, 10)
	}

	ip := c.ClientIP()
	if ip == "" {
		ip = c.Request.RemoteAddr
	}
	return "ip:" + ip
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
