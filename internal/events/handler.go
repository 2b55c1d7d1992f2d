// Package events serves the read side of the event outbox.
package events

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"aidchain/pkg/domain"
	dErrors "aidchain/pkg/domain-errors"
	audit "aidchain/pkg/platform/audit"
	"aidchain/pkg/platform/httputil"
	"aidchain/pkg/requestcontext"
)

const (
	defaultLimit = 50
	maxLimit     = 500
)

// Reader lists recorded events.
type Reader interface {
	ListByUnit(ctx context.Context, unitID domain.UnitID) ([]audit.Event, error)
	ListRecent(ctx context.Context, limit int) ([]audit.Event, error)
}

type Handler struct {
	reader Reader
	logger *slog.Logger
}

func New(reader Reader, logger *slog.Logger) *Handler {
	return &Handler{reader: reader, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/events", h.handleList)
}

type eventResponse struct {
	ID          string            `json:"id"`
	Seq         int64             `json:"seq"`
	Kind        string            `json:"kind"`
	Category    string            `json:"category"`
	UnitID      *uint64           `json:"unit_id,omitempty"`
	Actor       string            `json:"actor"`
	Subject     string            `json:"subject,omitempty"`
	Attributes  map[string]string `json:"attributes,omitempty"`
	RequestID   string            `json:"request_id,omitempty"`
	Timestamp   time.Time         `json:"timestamp"`
	PublishedAt *time.Time        `json:"published_at,omitempty"`
}

type listResponse struct {
	Events []eventResponse `json:"events"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	limit := defaultLimit
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxLimit {
			httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "limit must be between 1 and 500"))
			return
		}
		limit = n
	}

	var (
		events []audit.Event
		err    error
	)
	if v := q.Get("unit_id"); v != "" {
		id, perr := domain.ParseUnitID(v)
		if perr != nil {
			httputil.WriteError(w, perr)
			return
		}
		events, err = h.reader.ListByUnit(ctx, id)
		if len(events) > limit {
			events = events[len(events)-limit:]
		}
	} else {
		events, err = h.reader.ListRecent(ctx, limit)
	}
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list events",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list events"))
		return
	}

	resp := listResponse{Events: make([]eventResponse, 0, len(events))}
	for _, e := range events {
		item := eventResponse{
			ID:          e.ID.String(),
			Seq:         e.Seq,
			Kind:        string(e.Kind),
			Category:    string(e.Kind.Category()),
			Actor:       e.Actor,
			Subject:     e.Subject,
			Attributes:  e.Attributes,
			RequestID:   e.RequestID,
			Timestamp:   e.Timestamp.UTC(),
			PublishedAt: e.PublishedAt,
		}
		if e.UnitID != nil {
			id := uint64(*e.UnitID)
			item.UnitID = &id
		}
		resp.Events = append(resp.Events, item)
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}
