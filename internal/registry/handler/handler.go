package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"

	"aidchain/internal/registry/models"
	"aidchain/pkg/domain"
	dErrors "aidchain/pkg/domain-errors"
	"aidchain/pkg/platform/httputil"
	"aidchain/pkg/requestcontext"
)

// Service defines the registry operations exposed over HTTP.
type Service interface {
	RegisterParticipant(ctx context.Context, actor, target common.Address, role models.Role, location string) (*models.Participant, error)
	TransferAuthority(ctx context.Context, actor, next common.Address) error
	Authority(ctx context.Context) (common.Address, error)
	Describe(ctx context.Context, addr common.Address) (*models.Participant, error)
	ListByRole(ctx context.Context, role models.Role) ([]common.Address, error)
}

// Handler serves the identity registry endpoints.
type Handler struct {
	service     Service
	logger      *slog.Logger
	requireAuth func(http.Handler) http.Handler
}

// New creates a registry Handler. requireAuth guards the write routes.
func New(service Service, logger *slog.Logger, requireAuth func(http.Handler) http.Handler) *Handler {
	return &Handler{service: service, logger: logger, requireAuth: requireAuth}
}

// Register mounts the registry routes on r.
func (h *Handler) Register(r chi.Router) {
	r.Get("/authority", h.handleGetAuthority)
	r.Get("/participants", h.handleListParticipants)
	r.Get("/participants/{address}", h.handleGetParticipant)

	r.Group(func(r chi.Router) {
		if h.requireAuth != nil {
			r.Use(h.requireAuth)
		}
		r.Post("/participants", h.handleRegisterParticipant)
		r.Post("/authority", h.handleTransferAuthority)
	})
}

type registerRequest struct {
	Address  string `json:"address"`
	Role     string `json:"role"`
	Location string `json:"location"`
}

type transferRequest struct {
	Address string `json:"address"`
}

type participantResponse struct {
	Address      string     `json:"address"`
	DisplayID    string     `json:"display_id"`
	Role         string     `json:"role"`
	Location     string     `json:"location"`
	RegisteredAt *time.Time `json:"registered_at,omitempty"`
}

type authorityResponse struct {
	Address   string `json:"address"`
	DisplayID string `json:"display_id"`
}

type listResponse struct {
	Role      string   `json:"role"`
	Addresses []string `json:"addresses"`
}

func toParticipantResponse(p *models.Participant) participantResponse {
	resp := participantResponse{
		Address:   p.Address.Hex(),
		DisplayID: p.DisplayID(),
		Role:      string(p.Role),
		Location:  p.Location,
	}
	if !p.RegisteredAt.IsZero() {
		at := p.RegisteredAt.UTC()
		resp.RegisteredAt = &at
	}
	return resp
}

func (h *Handler) handleRegisterParticipant(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, ok := h.caller(ctx, w)
	if !ok {
		return
	}

	var req registerRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.logger.WarnContext(ctx, "invalid register participant request",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	target, err := domain.ParseAddress(req.Address)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	// Role validity is the service's call so an unauthorized caller learns nothing about its input.
	p, err := h.service.RegisterParticipant(ctx, caller, target, models.NormalizeRole(req.Role), req.Location)
	if err != nil {
		h.writeServiceError(ctx, w, "failed to register participant", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toParticipantResponse(p))
}

func (h *Handler) handleTransferAuthority(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, ok := h.caller(ctx, w)
	if !ok {
		return
	}

	var req transferRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	next, err := domain.ParseAddress(req.Address)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.service.TransferAuthority(ctx, caller, next); err != nil {
		h.writeServiceError(ctx, w, "failed to transfer authority", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, authorityResponse{
		Address:   next.Hex(),
		DisplayID: models.DisplayID(next),
	})
}

func (h *Handler) handleGetAuthority(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	addr, err := h.service.Authority(ctx)
	if err != nil {
		h.writeServiceError(ctx, w, "failed to load authority", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, authorityResponse{
		Address:   addr.Hex(),
		DisplayID: models.DisplayID(addr),
	})
}

func (h *Handler) handleGetParticipant(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	addr, err := domain.ParseAddress(chi.URLParam(r, "address"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	p, err := h.service.Describe(ctx, addr)
	if err != nil {
		h.writeServiceError(ctx, w, "failed to load participant", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toParticipantResponse(p))
}

func (h *Handler) handleListParticipants(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	role, err := models.ParseRole(r.URL.Query().Get("role"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	addrs, err := h.service.ListByRole(ctx, role)
	if err != nil {
		h.writeServiceError(ctx, w, "failed to list participants", err)
		return
	}
	resp := listResponse{Role: string(role), Addresses: make([]string, 0, len(addrs))}
	for _, a := range addrs {
		resp.Addresses = append(resp.Addresses, a.Hex())
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) caller(ctx context.Context, w http.ResponseWriter) (common.Address, bool) {
	caller, ok := requestcontext.Caller(ctx)
	if !ok {
		// RequireAuth is missing from the route group.
		h.logger.ErrorContext(ctx, "caller missing from context despite auth middleware",
			"request_id", requestcontext.RequestID(ctx),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "authentication context error"))
		return common.Address{}, false
	}
	return caller, true
}

func (h *Handler) writeServiceError(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, msg,
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
	} else {
		h.logger.WarnContext(ctx, msg,
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
	}
	httputil.WriteError(w, err)
}
