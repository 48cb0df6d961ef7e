package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"

	"github.com/platinummonkey/mediahub/pkg/httputil"
	"github.com/platinummonkey/mediahub/pkg/observability"
)

// Limiter decides whether one more request for key is allowed. Implementations that
// depend on a remote store report (true, err) when the store is unavailable.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// RateLimitConfig defines a per-key allowance
type RateLimitConfig struct {
	RequestsPerWindow int
	WindowDuration    time.Duration
	BurstSize         int
}

// SignInRateLimitConfig throttles magic-link requests per client IP
func SignInRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{RequestsPerWindow: 10, WindowDuration: 15 * time.Minute, BurstSize: 5}
}

// WebhookRateLimitConfig is generous; Stripe bursts during retries
func WebhookRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{RequestsPerWindow: 600, WindowDuration: time.Minute, BurstSize: 100}
}

// DefaultRateLimitConfig applies to the remaining API routes
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{RequestsPerWindow: 300, WindowDuration: time.Minute, BurstSize: 50}
}

const maxTrackedKeys = 10000

// LocalLimiter keeps one token bucket per key in process. The least recently used
// keys are evicted once maxTrackedKeys is reached.
type LocalLimiter struct {
	limit   rate.Limit
	burst   int
	buckets *lru.Cache[string, *rate.Limiter]
}

// NewLocalLimiter refills RequestsPerWindow tokens per window, up to BurstSize at once
func NewLocalLimiter(config RateLimitConfig) *LocalLimiter {
	buckets, _ := lru.New[string, *rate.Limiter](maxTrackedKeys)
	burst := config.BurstSize
	if burst <= 0 {
		burst = 1
	}
	return &LocalLimiter{
		limit:   rate.Limit(float64(config.RequestsPerWindow) / config.WindowDuration.Seconds()),
		burst:   burst,
		buckets: buckets,
	}
}

func (l *LocalLimiter) Allow(_ context.Context, key string) (bool, error) {
	limiter, ok := l.buckets.Get(key)
	if !ok {
		limiter = rate.NewLimiter(l.limit, l.burst)
		if prev, found, _ := l.buckets.PeekOrAdd(key, limiter); found {
			limiter = prev
		}
	}
	return limiter.Allow(), nil
}

// FallbackLimiter asks primary and falls back to the in-process limiter when
// primary reports an error
type FallbackLimiter struct {
	primary  Limiter
	fallback Limiter
	logger   *observability.Logger
}

// NewFallbackLimiter combines a shared limiter with a local one. primary may be nil.
func NewFallbackLimiter(primary, fallback Limiter, logger *observability.Logger) *FallbackLimiter {
	return &FallbackLimiter{primary: primary, fallback: fallback, logger: logger}
}

func (l *FallbackLimiter) Allow(ctx context.Context, key string) (bool, error) {
	if l.primary == nil {
		return l.fallback.Allow(ctx, key)
	}
	allowed, err := l.primary.Allow(ctx, key)
	if err == nil {
		return allowed, nil
	}
	if l.logger != nil {
		l.logger.WithError(err).Warn("Shared rate limiter unavailable, using local limiter")
	}
	return l.fallback.Allow(ctx, key)
}

// RateLimitMiddleware limits requests per client IP
type RateLimitMiddleware struct {
	limiter Limiter
	name    string
	config  RateLimitConfig
}

// NewRateLimitMiddleware creates a middleware; name namespaces the keys
func NewRateLimitMiddleware(limiter Limiter, name string, config RateLimitConfig) *RateLimitMiddleware {
	return &RateLimitMiddleware{limiter: limiter, name: name, config: config}
}

// Handler wraps next with rate limiting. Limiter errors fail open.
func (m *RateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := fmt.Sprintf("%s:ip:%s", m.name, httputil.ClientIP(r))

		allowed, err := m.limiter.Allow(r.Context(), key)
		if err != nil {
			observability.FromContext(r.Context()).WithError(err).Warn("Rate limiter error, allowing request")
			next.ServeHTTP(w, r)
			return
		}
		if !allowed {
			w.Header().Set("Retry-After", strconv.Itoa(int(m.config.WindowDuration.Seconds())))
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(m.config.RequestsPerWindow))
			httputil.WriteTooManyRequests(w, "Too many requests.")
			return
		}
		next.ServeHTTP(w, r)
	})
}
