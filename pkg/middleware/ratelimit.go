package middleware

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"
)

// RateLimitConfig sizes a rate limit window.
type RateLimitConfig struct {
	// RequestsPerWindow is the sustained budget per WindowDuration.
	RequestsPerWindow int
	// WindowDuration is the refill period.
	WindowDuration time.Duration
	// BurstSize is extra headroom above the sustained budget.
	BurstSize int
}

// DefaultRateLimitConfig sizes the management-endpoint budget.
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		RequestsPerWindow: 100,
		WindowDuration:    time.Minute,
		BurstSize:         10,
	}
}

// LoginRateLimitConfig sizes the budget for login initiation and protocol
// callbacks. Tighter than management limits since each request costs an
// IdP round trip and a state row.
func LoginRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		RequestsPerWindow: 20,
		WindowDuration:    time.Minute,
		BurstSize:         5,
	}
}

func (c *RateLimitConfig) capacity() float64 {
	return float64(c.RequestsPerWindow + c.BurstSize)
}

// RateLimiter is a token-bucket limiter keyed by caller. In-memory and
// single-instance only; fleets use the Redis-backed
// DistributedRateLimiter instead.
type RateLimiter struct {
	config  *RateLimitConfig
	mu      sync.Mutex
	buckets map[string]*bucket
}

type bucket struct {
	tokens   float64
	refilled time.Time
}

func NewRateLimiter(config *RateLimitConfig) *RateLimiter {
	if config == nil {
		config = DefaultRateLimitConfig()
	}
	return &RateLimiter{config: config, buckets: make(map[string]*bucket)}
}

// Allow spends one token from key's bucket, refilling it first according
// to the time elapsed since the last call.
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{tokens: rl.config.capacity(), refilled: now}
		rl.buckets[key] = b
	}

	refillRate := float64(rl.config.RequestsPerWindow) / rl.config.WindowDuration.Seconds()
	b.tokens += now.Sub(b.refilled).Seconds() * refillRate
	if limit := rl.config.capacity(); b.tokens > limit {
		b.tokens = limit
	}
	b.refilled = now

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// Remaining reports the whole tokens left in key's bucket.
func (rl *RateLimiter) Remaining(key string) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.buckets[key]
	if !ok {
		return rl.config.RequestsPerWindow + rl.config.BurstSize
	}
	return int(b.tokens)
}

// Cleanup drops buckets idle for two full windows.
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := time.Now().Add(-2 * rl.config.WindowDuration)
	for key, b := range rl.buckets {
		if b.refilled.Before(cutoff) {
			delete(rl.buckets, key)
		}
	}
}

// StartCleanup sweeps idle buckets once per window until ctx is done.
func (rl *RateLimiter) StartCleanup(ctx context.Context) {
	ticker := time.NewTicker(rl.config.WindowDuration)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				rl.Cleanup()
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Limiter is the rate limit check shared by the in-memory and Redis
// implementations.
type Limiter interface {
	AllowRequest(ctx context.Context, key string) (bool, error)
}

// AllowRequest implements Limiter.
func (rl *RateLimiter) AllowRequest(_ context.Context, key string) (bool, error) {
	return rl.Allow(key), nil
}

// loginPaths get the tighter login budget. Everything else under the
// limiter gets the management budget.
var loginPaths = []string{"/sso/login/", "/sso/saml/acs/", "/sso/oidc/callback"}

// RateLimitMiddleware applies per-IP rate limits, with a tighter budget on
// login initiation and protocol callbacks.
type RateLimitMiddleware struct {
	loginLimiter      Limiter
	managementLimiter Limiter
}

// NewRateLimitMiddleware builds the middleware on in-memory limiters.
func NewRateLimitMiddleware() *RateLimitMiddleware {
	return &RateLimitMiddleware{
		loginLimiter:      NewRateLimiter(LoginRateLimitConfig()),
		managementLimiter: NewRateLimiter(DefaultRateLimitConfig()),
	}
}

// NewRateLimitMiddlewareWithLimiters builds the middleware on
// caller-supplied limiters, typically Redis-backed ones.
func NewRateLimitMiddlewareWithLimiters(login, management Limiter) *RateLimitMiddleware {
	return &RateLimitMiddleware{
		loginLimiter:      login,
		managementLimiter: management,
	}
}

// Handler enforces the per-IP budget for the request's path class.
func (m *RateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		limiter := m.managementLimiter
		for _, p := range loginPaths {
			if strings.HasPrefix(r.URL.Path, p) {
				limiter = m.loginLimiter
				break
			}
		}

		key := "ip:" + ClientIP(r)
		allowed, err := limiter.AllowRequest(r.Context(), key)
		if err != nil {
			// Fail open so a limiter outage does not take logins down
			// with it.
			allowed = true
		}
		if !allowed {
			w.Header().Set("Retry-After", "60")
			http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}
