// Package middleware enforces per-client request budgets on the HTTP surface.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"aidchain/internal/ratelimit/metrics"
	"aidchain/internal/ratelimit/models"
	"aidchain/pkg/platform/httputil"
	"aidchain/pkg/platform/middleware/metadata"
	"aidchain/pkg/requestcontext"
)

// HeaderStatus is set to "degraded" while the fallback store answers.
const HeaderStatus = "X-RateLimit-Status"

// Store records a request against a bucket.
type Store interface {
	Allow(ctx context.Context, key string, limit models.Limit) (*models.Result, error)
}

// Limiter checks requests against per-class limits. The primary store may be
// shared (Redis); when it keeps failing the limiter switches to fallback.
type Limiter struct {
	primary  Store
	fallback Store
	limits   map[models.Class]models.Limit
	breaker  *circuitBreaker
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

type Option func(*Limiter)

// WithFallback sets the store used while the primary is unavailable.
func WithFallback(s Store) Option {
	return func(l *Limiter) { l.fallback = s }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Limiter) { l.metrics = m }
}

func New(primary Store, limits map[models.Class]models.Limit, logger *slog.Logger, opts ...Option) *Limiter {
	l := &Limiter{
		primary: primary,
		limits:  limits,
		breaker: newCircuitBreaker(),
		logger:  logger,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Handler rejects requests over budget with 429. Buckets are per client IP.
func (l *Limiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		class := models.ClassOf(r.Method)
		limit, ok := l.limits[class]
		if !ok || !limit.Enabled() {
			next.ServeHTTP(w, r)
			return
		}

		ctx := r.Context()
		result, degraded, err := l.check(ctx, models.Key(class, clientKey(r)), limit)
		if err != nil {
			// fail open
			l.logger.ErrorContext(ctx, "rate limit check failed",
				"error", err,
				"request_id", requestcontext.RequestID(ctx),
			)
			next.ServeHTTP(w, r)
			return
		}

		setHeaders(w, result)
		if degraded {
			w.Header().Set(HeaderStatus, "degraded")
		}
		if !result.Allowed {
			if l.metrics != nil {
				l.metrics.IncRejected(string(class))
			}
			l.logger.WarnContext(ctx, "rate limit exceeded",
				"class", class,
				"request_id", requestcontext.RequestID(ctx),
			)
			w.Header().Set("Retry-After", strconv.Itoa(result.RetryAfter))
			httputil.WriteJSON(w, http.StatusTooManyRequests, models.ExceededResponse{
				Error:      "rate_limit_exceeded",
				Message:    "too many requests, try again later",
				RetryAfter: result.RetryAfter,
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (l *Limiter) check(ctx context.Context, key string, limit models.Limit) (*models.Result, bool, error) {
	if l.fallback == nil {
		res, err := l.primary.Allow(ctx, key, limit)
		return res, false, err
	}

	if !l.breaker.IsOpen() {
		res, err := l.primary.Allow(ctx, key, limit)
		if err == nil {
			l.breaker.RecordSuccess()
			return res, false, nil
		}
		l.recordFailure(ctx, err)
		res, err = l.fallback.Allow(ctx, key, limit)
		return res, true, err
	}

	// Open: probe the primary so the circuit can close again, but answer from the fallback.
	if _, err := l.primary.Allow(ctx, key, limit); err != nil {
		l.recordFailure(ctx, err)
	} else if l.breaker.RecordSuccess() {
		l.logger.InfoContext(ctx, "rate limit store recovered")
		l.setDegraded(false)
	}
	res, err := l.fallback.Allow(ctx, key, limit)
	return res, true, err
}

func (l *Limiter) recordFailure(ctx context.Context, err error) {
	if l.metrics != nil {
		l.metrics.IncStoreError()
	}
	wasOpen := l.breaker.IsOpen()
	if l.breaker.RecordFailure() && !wasOpen {
		l.logger.WarnContext(ctx, "rate limit store unavailable, using in-memory fallback", "error", err)
		l.setDegraded(true)
	}
}

func (l *Limiter) setDegraded(on bool) {
	if l.metrics != nil {
		l.metrics.SetDegraded(on)
	}
}

func clientKey(r *http.Request) string {
	ip := metadata.GetClientIP(r.Context())
	if ip == "" {
		ip = metadata.ClientIPFromRequest(r)
	}
	return "ip:" + ip
}

func setHeaders(w http.ResponseWriter, result *models.Result) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
}
