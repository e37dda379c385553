package middleware

import (
	"math"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nulzo/model-curator/pkg/api"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// idleAfter is how long a client bucket survives without requests.
const idleAfter = 10 * time.Minute

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per client IP. A non-positive rate
// disables it.
type RateLimiter struct {
	limit  rate.Limit
	burst  int
	logger *zap.Logger
	now    func() time.Time

	mu        sync.Mutex
	buckets   map[string]*bucket
	lastSweep time.Time
}

func NewRateLimiter(rps float64, burst int, logger *zap.Logger) *RateLimiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		limit:   rate.Limit(rps),
		burst:   burst,
		logger:  logger,
		now:     time.Now,
		buckets: make(map[string]*bucket),
	}
}

// allow takes a token from ip's bucket, dropping idle buckets on the way.
func (rl *RateLimiter) allow(ip string) bool {
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if now.Sub(rl.lastSweep) > idleAfter {
		for k, b := range rl.buckets {
			if now.Sub(b.lastSeen) > idleAfter {
				delete(rl.buckets, k)
			}
		}
		rl.lastSweep = now
	}

	b, ok := rl.buckets[ip]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.buckets[ip] = b
	}
	b.lastSeen = now
	return b.limiter.AllowN(now, 1)
}

// Middleware answers over-budget requests with a 429 problem carrying the
// seconds until the next token.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	retryAfter := 1
	if rl.limit > 0 {
		retryAfter = int(math.Ceil(1 / float64(rl.limit)))
	}

	return func(c *gin.Context) {
		if rl.limit <= 0 || rl.allow(c.ClientIP()) {
			c.Next()
			return
		}
		rl.logger.Warn("rate limit exceeded",
			zap.String("ip", c.ClientIP()),
			zap.String("path", c.Request.URL.Path),
		)
		_ = c.Error(api.RateLimitError("Too many requests from this client",
			api.WithExtension(RetryAfterExtension, retryAfter),
		))
		c.Abort()
	}
}
