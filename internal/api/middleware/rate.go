package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// DefaultIdleTTL is how long an unseen client keeps its limiter.
const DefaultIdleTTL = 10 * time.Minute

// RateLimitConfig defines rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int
	Burst             int
	IdleTTL           time.Duration // zero means DefaultIdleTTL
}

// DefaultRateLimitConfig returns the standard HTTP limits.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 100,
		Burst:             200,
		IdleTTL:           DefaultIdleTTL,
	}
}

// RateLimit creates a per-IP rate limiting middleware. Limiters of clients
// idle for longer than IdleTTL are evicted.
func RateLimit(cfg RateLimitConfig) gin.HandlerFunc {
	return newIPLimiter(cfg, time.Now).handle
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type ipLimiter struct {
	cfg RateLimitConfig
	now func() time.Time

	mu        sync.Mutex
	visitors  map[string]*visitor
	lastSweep time.Time
}

func newIPLimiter(cfg RateLimitConfig, now func() time.Time) *ipLimiter {
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = DefaultIdleTTL
	}
	return &ipLimiter{
		cfg:       cfg,
		now:       now,
		visitors:  make(map[string]*visitor),
		lastSweep: now(),
	}
}

func (l *ipLimiter) handle(c *gin.Context) {
	if !l.limiter(c.ClientIP()).Allow() {
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error": "rate limit exceeded",
		})
		return
	}
	c.Next()
}

// limiter returns the limiter for ip, sweeping idle entries at most once per IdleTTL
func (l *ipLimiter) limiter(ip string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) >= l.cfg.IdleTTL {
		for key, v := range l.visitors {
			if now.Sub(v.lastSeen) >= l.cfg.IdleTTL {
				delete(l.visitors, key)
			}
		}
		l.lastSweep = now
	}

	v, ok := l.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rate.Limit(l.cfg.RequestsPerSecond), l.cfg.Burst)}
		l.visitors[ip] = v
	}
	v.lastSeen = now
	return v.limiter
}

func (l *ipLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.visitors)
}
