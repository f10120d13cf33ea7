package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/Suhaibinator/SLayer/pkg/common"
	"github.com/Suhaibinator/SLayer/pkg/httpctx"
	"github.com/Suhaibinator/SLayer/pkg/httperr"
	"go.uber.org/ratelimit"
	"go.uber.org/zap"
)

// Rate limit strategies for identifying clients.
const (
	StrategyIP     = "ip"
	StrategyUser   = "user"
	StrategyCustom = "custom"
)

// RateLimitConfig defines configuration for rate limiting
type RateLimitConfig struct {
	// Unique identifier for this rate limit bucket.
	// Middlewares sharing a BucketName and limiter share the same limits.
	BucketName string

	// Maximum number of requests allowed in the time window
	Limit int

	// Time window for the rate limit (e.g., 1 minute, 1 hour)
	Window time.Duration

	// Strategy for identifying clients:
	//   - "ip": client IP address
	//   - "user": UserIDKey set by authentication, falling back to the IP
	//   - "custom": KeyExtractor
	Strategy string

	// Custom key extractor function (used when Strategy is "custom")
	KeyExtractor func(c *httpctx.Context) (string, error)

	// Pace smooths admitted requests so they are spread evenly over the
	// window instead of arriving as a burst.
	Pace bool

	// ExceededHandler handles rejected requests. Its return value becomes the
	// middleware's result. If nil, a 429 Too Many Requests error is returned.
	ExceededHandler func(c *httpctx.Context) error
}

// RateLimiter defines the interface for rate limiting algorithms
type RateLimiter interface {
	// Allow checks if a request is allowed based on the key and rate limit config.
	// It returns whether the request is allowed, the number of remaining
	// requests and the time until the window resets.
	Allow(key string, limit int, window time.Duration) (bool, int, time.Duration)
}

// window tracks requests for one key in a fixed window.
type window struct {
	start time.Time
	span  time.Duration
	count int
}

// paced is the leaky bucket of one key and the last time it was used.
type paced struct {
	limiter  ratelimit.Limiter
	span     time.Duration
	lastUsed time.Time
}

// sweepInterval is the minimum time between removals of idle keys.
const sweepInterval = time.Minute

// UberRateLimiter counts requests per key in fixed windows and paces admitted
// requests with Uber's leaky bucket limiter. Expired windows and idle buckets
// are swept at most once per sweepInterval.
type UberRateLimiter struct {
	mu        sync.Mutex
	windows   map[string]*window
	limiters  map[string]*paced
	lastSweep time.Time
	now       func() time.Time
}

// NewUberRateLimiter creates a new rate limiter using Uber's ratelimit library
func NewUberRateLimiter() *UberRateLimiter {
	return &UberRateLimiter{
		windows:  make(map[string]*window),
		limiters: make(map[string]*paced),
		now:      time.Now,
	}
}

// Allow checks if a request is allowed based on the key and rate limit config.
// A non-positive limit is treated as 1 and a non-positive window as one second.
func (u *UberRateLimiter) Allow(key string, limit int, win time.Duration) (bool, int, time.Duration) {
	limit, win = normalizeLimit(limit, win)

	u.mu.Lock()
	defer u.mu.Unlock()

	now := u.now()
	u.sweep(now)

	w, ok := u.windows[key]
	if !ok || now.Sub(w.start) >= win {
		w = &window{start: now, span: win}
		u.windows[key] = w
	}
	reset := win - now.Sub(w.start)

	if w.count >= limit {
		return false, 0, reset
	}
	w.count++
	return true, limit - w.count, reset
}

// Pace blocks until the key's leaky bucket admits another request, spreading
// limit requests evenly over win.
func (u *UberRateLimiter) Pace(key string, limit int, win time.Duration) {
	limit, win = normalizeLimit(limit, win)

	u.mu.Lock()
	now := u.now()
	u.sweep(now)
	p, ok := u.limiters[key]
	if !ok {
		p = &paced{limiter: ratelimit.New(limit, ratelimit.Per(win)), span: win}
		u.limiters[key] = p
	}
	p.lastUsed = now
	u.mu.Unlock()

	p.limiter.Take()
}

// sweep removes expired windows and buckets idle for longer than their
// window. The caller must hold u.mu.
func (u *UberRateLimiter) sweep(now time.Time) {
	if now.Sub(u.lastSweep) < sweepInterval {
		return
	}
	u.lastSweep = now
	for key, w := range u.windows {
		if now.Sub(w.start) >= w.span {
			delete(u.windows, key)
		}
	}
	for key, p := range u.limiters {
		if now.Sub(p.lastUsed) >= p.span {
			delete(u.limiters, key)
		}
	}
}

func normalizeLimit(limit int, win time.Duration) (int, time.Duration) {
	if limit <= 0 {
		limit = 1
	}
	if win <= 0 {
		win = time.Second
	}
	return limit, win
}

// pacer is implemented by limiters able to smooth admitted requests.
type pacer interface {
	Pace(key string, limit int, win time.Duration)
}

// rateLimitKey identifies the client according to the configured strategy.
func rateLimitKey(c *httpctx.Context, config *RateLimitConfig) (string, error) {
	switch config.Strategy {
	case StrategyUser:
		if id := httpctx.MustState(c, UserIDKey); id != "" {
			return id, nil
		}
	case StrategyCustom:
		if config.KeyExtractor != nil {
			return config.KeyExtractor(c)
		}
	}
	return c.IP(), nil
}

// RateLimit creates a middleware that enforces rate limits
func RateLimit(config *RateLimitConfig, limiter RateLimiter, logger *zap.Logger) Middleware {
	return func(c *httpctx.Context, next common.Next) error {
		if config == nil {
			return next()
		}

		key, err := rateLimitKey(c, config)
		if err != nil {
			logger.Error("Failed to extract rate limit key",
				zap.Error(err),
				zap.String("method", c.Method()),
				zap.String("path", c.Path()),
			)
			return httperr.Wrap(err, http.StatusInternalServerError, "")
		}

		// Combine bucket name and key to create a unique identifier
		bucketKey := config.BucketName + ":" + key

		allowed, remaining, reset := limiter.Allow(bucketKey, config.Limit, config.Window)

		c.Set("X-RateLimit-Limit", strconv.Itoa(config.Limit))
		c.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(reset).Unix(), 10))

		if !allowed {
			retryAfter := strconv.FormatInt(int64(reset.Round(time.Second).Seconds()), 10)
			logger.Warn("Rate limit exceeded",
				zap.String("method", c.Method()),
				zap.String("path", c.Path()),
				zap.String("key", key),
				zap.Int("limit", config.Limit),
			)

			if config.ExceededHandler != nil {
				c.Set("Retry-After", retryAfter)
				return config.ExceededHandler(c)
			}
			return httperr.New(http.StatusTooManyRequests, "", httperr.WithHeader("Retry-After", retryAfter))
		}

		if p, ok := limiter.(pacer); ok && config.Pace {
			p.Pace(bucketKey, config.Limit, config.Window)
		}
		return next()
	}
}
