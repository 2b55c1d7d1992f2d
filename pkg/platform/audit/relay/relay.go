package relay

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	audit "aidchain/pkg/platform/audit"
)

// Sink receives outbox events in sequence order.
type Sink interface {
	Publish(ctx context.Context, event audit.Event) error
}

// ErrCircuitOpen is returned by Drain while the sink is considered unavailable.
var ErrCircuitOpen = errors.New("relay circuit open")

// Relay polls the outbox and forwards pending events to a Sink. It stops a
// batch at the first failure so downstream order matches Seq order.
type Relay struct {
	store     audit.Store
	sink      Sink
	interval  time.Duration
	batchSize int
	breaker   *CircuitBreaker
	metrics   *Metrics
	logger    *slog.Logger
	now       func() time.Time
}

// Option configures the Relay.
type Option func(*Relay)

func WithInterval(d time.Duration) Option {
	return func(r *Relay) {
		if d > 0 {
			r.interval = d
		}
	}
}

func WithBatchSize(n int) Option {
	return func(r *Relay) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

func WithCircuitBreaker(cb *CircuitBreaker) Option {
	return func(r *Relay) {
		r.breaker = cb
	}
}

func WithMetrics(m *Metrics) Option {
	return func(r *Relay) {
		r.metrics = m
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Relay) {
		r.logger = logger
	}
}

// New creates a relay with a one second poll interval and batches of 100.
func New(store audit.Store, sink Sink, opts ...Option) *Relay {
	r := &Relay{
		store:     store,
		sink:      sink,
		interval:  time.Second,
		batchSize: 100,
		breaker:   NewCircuitBreaker(5, 30*time.Second),
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run drains the outbox on every tick until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := r.Drain(ctx); err != nil && !errors.Is(err, ErrCircuitOpen) && ctx.Err() == nil {
				r.logger.WarnContext(ctx, "outbox relay pass failed", "error", err)
			}
		}
	}
}

// Drain publishes one batch of pending events and returns how many were delivered.
func (r *Relay) Drain(ctx context.Context) (int, error) {
	if !r.breaker.Allow() {
		return 0, ErrCircuitOpen
	}

	pending, err := r.store.ListPending(ctx, r.batchSize)
	if err != nil {
		return 0, err
	}
	if r.metrics != nil {
		r.metrics.Pending.Set(float64(len(pending)))
	}

	var published []uuid.UUID
	var publishErr error
	for _, event := range pending {
		if err := r.sink.Publish(ctx, event); err != nil {
			publishErr = err
			break
		}
		published = append(published, event.ID)
	}

	if len(published) > 0 {
		if err := r.store.MarkPublished(ctx, published, r.now()); err != nil {
			return 0, err
		}
		if r.metrics != nil {
			r.metrics.Published.Add(float64(len(published)))
		}
	}

	if publishErr != nil {
		r.breaker.RecordFailure()
		if r.metrics != nil {
			r.metrics.PublishFailures.Inc()
			r.metrics.setCircuitState(r.breaker.IsOpen())
		}
		return len(published), publishErr
	}

	r.breaker.RecordSuccess()
	if r.metrics != nil {
		r.metrics.setCircuitState(false)
	}
	return len(published), nil
}
