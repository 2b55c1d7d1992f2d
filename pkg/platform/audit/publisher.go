package audit

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"aidchain/pkg/domain"
	"aidchain/pkg/requestcontext"
)

// Publisher writes events to the outbox with fail-closed semantics: when the
// write fails the caller's transaction must fail too.
type Publisher struct {
	store  Store
	logger *slog.Logger
}

// PublisherOption configures the Publisher.
type PublisherOption func(*Publisher)

// WithPublisherLogger sets a logger for persistence failures.
func WithPublisherLogger(logger *slog.Logger) PublisherOption {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// NewPublisher creates an outbox publisher.
func NewPublisher(store Store, opts ...PublisherOption) *Publisher {
	p := &Publisher{store: store}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Emit fills ID, timestamp and request id when absent and appends the event.
func (p *Publisher) Emit(ctx context.Context, event Event) error {
	if !event.Kind.Valid() {
		return fmt.Errorf("audit event has unknown kind %q", event.Kind)
	}
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = requestcontext.Now(ctx)
	}
	if event.RequestID == "" {
		event.RequestID = requestcontext.RequestID(ctx)
	}

	if err := p.store.Append(ctx, event); err != nil {
		if p.logger != nil {
			p.logger.ErrorContext(ctx, "audit outbox write failed",
				"kind", event.Kind,
				"subject", event.Subject,
				"error", err,
			)
		}
		return fmt.Errorf("audit outbox write failed: %w", err)
	}
	return nil
}

// ListByUnit exposes the unit's history for the audit endpoint.
func (p *Publisher) ListByUnit(ctx context.Context, unitID domain.UnitID) ([]Event, error) {
	return p.store.ListByUnit(ctx, unitID)
}

// ListRecent returns the latest events, oldest first.
func (p *Publisher) ListRecent(ctx context.Context, limit int) ([]Event, error) {
	return p.store.ListRecent(ctx, limit)
}
