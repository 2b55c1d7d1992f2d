package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"

	"aidchain/internal/custody/models"
	"aidchain/pkg/domain"
	dErrors "aidchain/pkg/domain-errors"
	"aidchain/pkg/platform/httputil"
	"aidchain/pkg/requestcontext"
)

// Service defines the custody operations exposed over HTTP.
type Service interface {
	Initialize(ctx context.Context, actor common.Address, id domain.UnitID) (*models.Record, error)
	AdvanceTransport(ctx context.Context, actor common.Address, id domain.UnitID) (*models.Record, error)
	AdvanceDelivery(ctx context.Context, actor common.Address, id domain.UnitID) (*models.Record, error)
	AdvanceClaim(ctx context.Context, actor common.Address, id domain.UnitID) (*models.Record, error)
	GetStatuses(ctx context.Context, ids []domain.UnitID) ([]string, error)
	Journey(ctx context.Context, caller common.Address, id domain.UnitID, ensureInit bool) (*models.Journey, error)
}

type Handler struct {
	service      Service
	logger       *slog.Logger
	requireAuth  func(http.Handler) http.Handler
	optionalAuth func(http.Handler) http.Handler
}

// New creates a custody Handler. Transitions need requireAuth; initialization
// and the journey view accept anonymous callers through optionalAuth.
func New(service Service, logger *slog.Logger, requireAuth, optionalAuth func(http.Handler) http.Handler) *Handler {
	return &Handler{service: service, logger: logger, requireAuth: requireAuth, optionalAuth: optionalAuth}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/custody/statuses", h.handleStatuses)

	r.Group(func(r chi.Router) {
		if h.optionalAuth != nil {
			r.Use(h.optionalAuth)
		}
		r.Post("/units/{id}/custody", h.handleInitialize)
		r.Get("/units/{id}/journey", h.handleJourney)
	})

	r.Group(func(r chi.Router) {
		if h.requireAuth != nil {
			r.Use(h.requireAuth)
		}
		r.Post("/units/{id}/custody/transport", h.advance(h.service.AdvanceTransport))
		r.Post("/units/{id}/custody/delivery", h.advance(h.service.AdvanceDelivery))
		r.Post("/units/{id}/custody/claim", h.advance(h.service.AdvanceClaim))
	})
}

type recordResponse struct {
	UnitID    uint64    `json:"unit_id"`
	Status    string    `json:"status"`
	UpdatedBy string    `json:"updated_by"`
	UpdatedAt time.Time `json:"updated_at"`
}

type journeyResponse struct {
	UnitID       uint64   `json:"unit_id"`
	Status       string   `json:"status"`
	TransferTeam string   `json:"transfer_team,omitempty"`
	GroundRelief string   `json:"ground_relief,omitempty"`
	Recipient    string   `json:"recipient,omitempty"`
	Location     string   `json:"location,omitempty"`
	Allowed      []string `json:"allowed"`
}

type statusEntry struct {
	UnitID uint64 `json:"unit_id"`
	Status string `json:"status"`
}

type statusesResponse struct {
	Statuses []statusEntry `json:"statuses"`
}

func toRecordResponse(rec *models.Record) recordResponse {
	return recordResponse{
		UnitID:    uint64(rec.UnitID),
		Status:    string(rec.Status),
		UpdatedBy: rec.UpdatedBy.Hex(),
		UpdatedAt: rec.UpdatedAt.UTC(),
	}
}

func (h *Handler) handleInitialize(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := domain.ParseUnitID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	actor, _ := requestcontext.Caller(ctx)
	rec, err := h.service.Initialize(ctx, actor, id)
	if err != nil {
		h.writeServiceError(ctx, w, "custody initialization rejected", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toRecordResponse(rec))
}

type advanceFunc func(ctx context.Context, actor common.Address, id domain.UnitID) (*models.Record, error)

func (h *Handler) advance(fn advanceFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		actor, ok := requestcontext.Caller(ctx)
		if !ok {
			h.logger.ErrorContext(ctx, "caller missing from context despite auth middleware",
				"request_id", requestcontext.RequestID(ctx),
			)
			httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "authentication context error"))
			return
		}
		id, err := domain.ParseUnitID(chi.URLParam(r, "id"))
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		rec, err := fn(ctx, actor, id)
		if err != nil {
			h.writeServiceError(ctx, w, "custody transition rejected", err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, toRecordResponse(rec))
	}
}

func (h *Handler) handleJourney(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := domain.ParseUnitID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	caller, _ := requestcontext.Caller(ctx)
	ensureInit := r.URL.Query().Get("init") == "true"

	j, err := h.service.Journey(ctx, caller, id, ensureInit)
	if err != nil {
		h.writeServiceError(ctx, w, "failed to load journey", err)
		return
	}
	resp := journeyResponse{
		UnitID:   uint64(j.UnitID),
		Status:   j.Status,
		Location: j.Location,
		Allowed:  make([]string, 0, len(j.Allowed)),
	}
	if j.Custodians.TransferTeam != (common.Address{}) {
		resp.TransferTeam = j.Custodians.TransferTeam.Hex()
		resp.GroundRelief = j.Custodians.GroundRelief.Hex()
		resp.Recipient = j.Custodians.Recipient.Hex()
	}
	for _, a := range j.Allowed {
		resp.Allowed = append(resp.Allowed, string(a))
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleStatuses(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ids, err := domain.ParseUnitIDs(r.URL.Query().Get("ids"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	labels, err := h.service.GetStatuses(ctx, ids)
	if err != nil {
		h.writeServiceError(ctx, w, "failed to load custody statuses", err)
		return
	}
	resp := statusesResponse{Statuses: make([]statusEntry, len(ids))}
	for i, id := range ids {
		resp.Statuses[i] = statusEntry{UnitID: uint64(id), Status: labels[i]}
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) writeServiceError(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	level := slog.LevelWarn
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		level = slog.LevelError
	}
	h.logger.Log(ctx, level, msg,
		"request_id", requestcontext.RequestID(ctx),
		"error", err,
	)
	httputil.WriteError(w, err)
}
