package relay

import (
	"context"
	"log/slog"

	audit "aidchain/pkg/platform/audit"
)

// LogSink writes events to a logger. Used when no broker is configured.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Publish(ctx context.Context, event audit.Event) error {
	attrs := []any{
		"seq", event.Seq,
		"event_id", event.ID.String(),
		"kind", string(event.Kind),
		"category", string(event.Kind.Category()),
		"actor", event.Actor,
		"subject", event.Subject,
	}
	if event.UnitID != nil {
		attrs = append(attrs, "unit_id", uint64(*event.UnitID))
	}
	for k, v := range event.Attributes {
		attrs = append(attrs, k, v)
	}
	s.logger.InfoContext(ctx, "outbox event", attrs...)
	return nil
}
