package middleware

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aidchain/internal/ratelimit/metrics"
	"aidchain/internal/ratelimit/models"
	"aidchain/internal/ratelimit/store/bucket"
)

type failingStore struct{ calls int }

func (f *failingStore) Allow(context.Context, string, models.Limit) (*models.Result, error) {
	f.calls++
	return nil, errors.New("connection refused")
}

var limits = map[models.Class]models.Limit{
	models.ClassRead:  {Requests: 100, Window: time.Minute},
	models.ClassWrite: {Requests: 2, Window: time.Minute},
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func serve(h http.Handler, method, remote string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, "/contributions", nil)
	req.RemoteAddr = remote
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })

func TestWritesOverBudgetAreRejected(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	h := New(bucket.NewInMemoryStore(), limits, discard(), WithMetrics(m)).Handler(okHandler)

	for range 2 {
		rr := serve(h, http.MethodPost, "192.0.2.1:1000")
		require.Equal(t, http.StatusNoContent, rr.Code)
	}
	rr := serve(h, http.MethodPost, "192.0.2.1:1000")
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "0", rr.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, rr.Header().Get("Retry-After"))
	assert.Contains(t, rr.Body.String(), "rate_limit_exceeded")
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Rejected.WithLabelValues("write")))

	// reads have their own budget, other clients their own bucket
	assert.Equal(t, http.StatusNoContent, serve(h, http.MethodGet, "192.0.2.1:1000").Code)
	assert.Equal(t, http.StatusNoContent, serve(h, http.MethodPost, "192.0.2.2:1000").Code)
}

func TestUnconfiguredClassPassesThrough(t *testing.T) {
	h := New(&failingStore{}, map[models.Class]models.Limit{}, discard()).Handler(okHandler)
	assert.Equal(t, http.StatusNoContent, serve(h, http.MethodPost, "192.0.2.1:1").Code)
}

func TestPrimaryErrorFailsOpenWithoutFallback(t *testing.T) {
	h := New(&failingStore{}, limits, discard()).Handler(okHandler)
	for range 5 {
		assert.Equal(t, http.StatusNoContent, serve(h, http.MethodPost, "192.0.2.1:1").Code)
	}
}

// TestFallbackEnforcesWhilePrimaryIsDown verifies that limits keep applying from memory
// when the shared store fails, and the response is marked degraded.
func TestFallbackEnforcesWhilePrimaryIsDown(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	primary := &failingStore{}
	l := New(primary, limits, discard(), WithFallback(bucket.NewInMemoryStore()), WithMetrics(m))
	h := l.Handler(okHandler)

	rr := serve(h, http.MethodPost, "192.0.2.1:1")
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "degraded", rr.Header().Get(HeaderStatus))
	serve(h, http.MethodPost, "192.0.2.1:1")
	assert.Equal(t, http.StatusTooManyRequests, serve(h, http.MethodPost, "192.0.2.1:1").Code)

	for range 5 {
		serve(h, http.MethodGet, "192.0.2.1:1")
	}
	assert.True(t, l.breaker.IsOpen())
	assert.Equal(t, float64(1), testutil.ToFloat64(m.DegradedMode))
	assert.Equal(t, float64(primary.calls), testutil.ToFloat64(m.StoreErrors))
}

func TestCircuitBreakerCloses(t *testing.T) {
	cb := newCircuitBreaker()
	for range 4 {
		assert.False(t, cb.RecordFailure())
	}
	assert.True(t, cb.RecordFailure())
	assert.False(t, cb.RecordSuccess())
	assert.False(t, cb.RecordSuccess())
	assert.True(t, cb.RecordSuccess())
	assert.False(t, cb.IsOpen())
}
