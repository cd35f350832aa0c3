package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"claimreg/internal/ratelimit/metrics"
	"claimreg/internal/ratelimit/models"
	"claimreg/pkg/platform/circuit"
	"claimreg/pkg/platform/httputil"
	"claimreg/pkg/requestcontext"
)

// StatusHeader is set to "degraded" when the fallback store answered.
const StatusHeader = "X-RateLimit-Status"

// BucketStore is a sliding-window counter.
type BucketStore interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (*models.RateLimitResult, error)
}

// Middleware limits claim mutations per authenticated account. A primary
// store failure counts against the circuit breaker and the request is answered
// by the fallback store; once the circuit opens, the fallback stays
// authoritative until the primary succeeds successThreshold times in a row.
type Middleware struct {
	primary  BucketStore
	fallback BucketStore
	breaker  *circuit.Breaker
	limit    models.Limit
	logger   *slog.Logger
	metrics  *metrics.Metrics
	disabled bool
}

type Option func(*Middleware)

// WithFallback sets the store used while the primary is unhealthy.
func WithFallback(store BucketStore, breaker *circuit.Breaker) Option {
	return func(m *Middleware) {
		m.fallback = store
		m.breaker = breaker
	}
}

func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Middleware) {
		m.metrics = mt
	}
}

// WithDisabled turns the middleware into a pass-through.
func WithDisabled(disabled bool) Option {
	return func(m *Middleware) {
		m.disabled = disabled
	}
}

func New(primary BucketStore, limit models.Limit, logger *slog.Logger, opts ...Option) *Middleware {
	m := &Middleware{
		primary: primary,
		limit:   limit,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	if !limit.Enabled() {
		m.disabled = true
	}
	if m.disabled {
		logger.Info("claim mutation rate limiting disabled")
	}
	return m
}

// LimitMutations must run after authentication; requests without an account
// in context pass through untouched.
func (m *Middleware) LimitMutations(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.disabled {
			next.ServeHTTP(w, r)
			return
		}

		ctx := r.Context()
		account := requestcontext.AccountID(ctx)
		if account.IsNil() {
			next.ServeHTTP(w, r)
			return
		}

		result, degraded, err := m.check(ctx, models.MutationKey(account))
		if err != nil {
			m.logger.ErrorContext(ctx, "rate limit check failed, allowing request",
				"error", err,
				"account_id", account.String(),
				"request_id", requestcontext.RequestID(ctx),
			)
			next.ServeHTTP(w, r)
			return
		}

		addRateLimitHeaders(w, result)
		if degraded {
			w.Header().Set(StatusHeader, "degraded")
		}
		m.metrics.ObserveDecision(result.Allowed)

		if !result.Allowed {
			m.logger.InfoContext(ctx, "claim mutation rate limited",
				"account_id", account.String(),
				"retry_after", result.RetryAfter,
				"request_id", requestcontext.RequestID(ctx),
			)
			writeRateLimitExceeded(w, result)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (m *Middleware) check(ctx context.Context, key string) (*models.RateLimitResult, bool, error) {
	result, err := m.primary.Allow(ctx, key, m.limit.RequestsPerWindow, m.limit.Window)
	if m.fallback == nil || m.breaker == nil {
		return result, false, err
	}

	if err != nil {
		_, change := m.breaker.RecordFailure()
		if change.Opened {
			m.logger.WarnContext(ctx, "rate limit circuit opened, using in-memory fallback",
				"breaker", m.breaker.Name(),
				"error", err,
			)
			m.metrics.SetCircuitOpen(true)
		}
		return m.checkFallback(ctx, key)
	}

	usePrimary, change := m.breaker.RecordSuccess()
	if change.Closed {
		m.logger.InfoContext(ctx, "rate limit circuit closed", "breaker", m.breaker.Name())
		m.metrics.SetCircuitOpen(false)
	}
	if !usePrimary {
		return m.checkFallback(ctx, key)
	}
	return result, false, nil
}

func (m *Middleware) checkFallback(ctx context.Context, key string) (*models.RateLimitResult, bool, error) {
	m.metrics.IncrementFallback()
	result, err := m.fallback.Allow(ctx, key, m.limit.RequestsPerWindow, m.limit.Window)
	return result, true, err
}

func addRateLimitHeaders(w http.ResponseWriter, result *models.RateLimitResult) {
	if result == nil {
		return
	}
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
}

func writeRateLimitExceeded(w http.ResponseWriter, result *models.RateLimitResult) {
	w.Header().Set("Retry-After", strconv.Itoa(result.RetryAfter))
	httputil.WriteJSON(w, http.StatusTooManyRequests, &models.RateLimitExceededResponse{
		Error:            "rate_limit_exceeded",
		ErrorDescription: "Too many claim mutations for this account. Please try again later.",
		RetryAfter:       result.RetryAfter,
	})
}
