package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/poltergeist-framework/hookable"
	"github.com/poltergeist-framework/hookable/poltergeist"
)

// RateLimitConfig holds rate limiter configuration
type RateLimitConfig struct {
	// Requests per second
	RPS float64
	// Burst size (max requests in a burst)
	Burst int
	// Key function to identify clients (default: IP-based)
	KeyFunc func(c *poltergeist.Context) string
	// Skip function to bypass rate limiting
	SkipFunc func(c *poltergeist.Context) bool
	// Custom response when rate limited
	LimitHandler func(c *poltergeist.Context) error
	// Cleanup interval for expired limiters
	CleanupInterval time.Duration
	// Expiration time for unused limiters
	ExpirationTime time.Duration
}

// DefaultRateLimitConfig returns default rate limit configuration
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		RPS:   10,
		Burst: 20,
		KeyFunc: func(c *poltergeist.Context) string {
			return c.ClientIP()
		},
		LimitHandler: func(c *poltergeist.Context) error {
			return c.Error(http.StatusTooManyRequests, "Too Many Requests")
		},
		CleanupInterval: time.Minute,
		ExpirationTime:  5 * time.Minute,
	}
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// limiterStore keeps one token bucket per key
type limiterStore struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	config   *RateLimitConfig
}

func newLimiterStore(config *RateLimitConfig) *limiterStore {
	return &limiterStore{
		visitors: make(map[string]*visitor),
		config:   config,
	}
}

func (s *limiterStore) get(key string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rate.Limit(s.config.RPS), s.config.Burst)}
		s.visitors[key] = v
	}
	v.lastSeen = time.Now()
	return v.limiter
}

func (s *limiterStore) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.visitors)
}

// sweep drops limiters unused for longer than the expiration time.
func (s *limiterStore) sweep(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, v := range s.visitors {
		if now.Sub(v.lastSeen) > s.config.ExpirationTime {
			delete(s.visitors, key)
		}
	}
}

func (s *limiterStore) run(ctx context.Context) {
	ticker := time.NewTicker(s.config.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case now := <-ticker.C:
			s.sweep(now)
		case <-ctx.Done():
			return
		}
	}
}

// RateLimit returns a rate limiting middleware with default config
func RateLimit() poltergeist.MiddlewareFunc {
	return RateLimitWithConfig(DefaultRateLimitConfig())
}

// RateLimitWithConfig returns a rate limiting middleware with custom config.
// Its cleanup goroutine runs for the life of the process; use
// RateLimitWithContext to bind it to a server.
func RateLimitWithConfig(config *RateLimitConfig) poltergeist.MiddlewareFunc {
	return RateLimitWithContext(context.Background(), config)
}

// RateLimitWithContext is RateLimitWithConfig with a cleanup goroutine that
// stops when ctx is done. Rejected requests are dispatched to the
// ratelimit:exceeded hook with the context and the client key.
func RateLimitWithContext(ctx context.Context, config *RateLimitConfig) poltergeist.MiddlewareFunc {
	defaults := DefaultRateLimitConfig()
	if config == nil {
		config = defaults
	}
	if config.KeyFunc == nil {
		config.KeyFunc = defaults.KeyFunc
	}
	if config.LimitHandler == nil {
		config.LimitHandler = defaults.LimitHandler
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = defaults.CleanupInterval
	}
	if config.ExpirationTime <= 0 {
		config.ExpirationTime = defaults.ExpirationTime
	}

	store := newLimiterStore(config)
	go store.run(ctx)

	return func(next poltergeist.HandlerFunc) poltergeist.HandlerFunc {
		return func(c *poltergeist.Context) error {
			if config.SkipFunc != nil && config.SkipFunc(c) {
				return next(c)
			}

			key := config.KeyFunc(c)
			if store.get(key).Allow() {
				return next(c)
			}

			if reg := hookable.FromContext(c); reg != nil {
				if _, err := reg.Call(c.Context(), HookRateLimitExceeded, c, key); err != nil {
					c.Logger().Warn("ratelimit:exceeded hook failed", "key", key, "error", err)
				}
			}
			return config.LimitHandler(c)
		}
	}
}
