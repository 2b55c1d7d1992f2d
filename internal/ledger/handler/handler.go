package handler

import (
	"context"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"

	"aidchain/internal/ledger/models"
	"aidchain/pkg/domain"
	dErrors "aidchain/pkg/domain-errors"
	"aidchain/pkg/platform/httputil"
	"aidchain/pkg/requestcontext"
)

// Service defines the ledger operations exposed over HTTP.
type Service interface {
	Contribute(ctx context.Context, donor common.Address, amount *big.Int) (*models.Contribution, error)
	Assign(ctx context.Context, actor common.Address, id domain.UnitID, c models.Custodians, location string) (*models.Unit, error)
	GetUnit(ctx context.Context, id domain.UnitID) (*models.Unit, error)
	GetDonorBalance(ctx context.Context, donor common.Address) (*big.Int, error)
	Overview(ctx context.Context) (*models.Overview, error)
	ListUnits(ctx context.Context, unassignedOnly bool) ([]*models.Unit, error)
}

// Handler serves contributions, ledger reads and unit assignment.
type Handler struct {
	service     Service
	logger      *slog.Logger
	requireAuth func(http.Handler) http.Handler
	idempotent  func(http.Handler) http.Handler
}

// New creates a ledger Handler. idempotent wraps POST /contributions and may be nil.
func New(service Service, logger *slog.Logger, requireAuth, idempotent func(http.Handler) http.Handler) *Handler {
	return &Handler{service: service, logger: logger, requireAuth: requireAuth, idempotent: idempotent}
}

// Register mounts the ledger routes on r.
func (h *Handler) Register(r chi.Router) {
	r.Get("/ledger", h.handleOverview)
	r.Get("/donors/{address}/balance", h.handleBalance)
	r.Get("/units", h.handleListUnits)
	r.Get("/units/{id}", h.handleGetUnit)

	r.Group(func(r chi.Router) {
		if h.requireAuth != nil {
			r.Use(h.requireAuth)
		}
		r.Post("/units/{id}/assignment", h.handleAssign)
		r.Group(func(r chi.Router) {
			if h.idempotent != nil {
				r.Use(h.idempotent)
			}
			r.Post("/contributions", h.handleContribute)
		})
	})
}

type contributeRequest struct {
	AmountWei string `json:"amount_wei"`
}

type contributeResponse struct {
	Donor       string   `json:"donor"`
	AmountWei   string   `json:"amount_wei"`
	BalanceWei  string   `json:"balance_wei"`
	Minted      []uint64 `json:"minted"`
	FirstUnitID uint64   `json:"first_unit_id"`
	PoolWei     string   `json:"pool_wei"`
}

type assignRequest struct {
	TransferTeam string `json:"transfer_team"`
	GroundRelief string `json:"ground_relief"`
	Recipient    string `json:"recipient"`
	Location     string `json:"location"`
}

type balanceResponse struct {
	Address    string `json:"address"`
	BalanceWei string `json:"balance_wei"`
	BalanceEth string `json:"balance_eth"`
}

type overviewResponse struct {
	ThresholdWei       string `json:"threshold_wei"`
	MinDonationWei     string `json:"min_donation_wei"`
	MaxUnitsPerCall    int    `json:"max_units_per_call"`
	MaxContributionWei string `json:"max_contribution_wei"`
	PoolWei            string `json:"pool_wei"`
	UnitCount          uint64 `json:"unit_count"`
}

// UnitResponse is the JSON form of a unit.
type UnitResponse struct {
	ID           uint64     `json:"id"`
	Donors       []string   `json:"donors"`
	Assigned     bool       `json:"assigned"`
	TransferTeam string     `json:"transfer_team,omitempty"`
	GroundRelief string     `json:"ground_relief,omitempty"`
	Recipient    string     `json:"recipient,omitempty"`
	Location     string     `json:"location,omitempty"`
	IssuedAt     time.Time  `json:"issued_at"`
	AssignedAt   *time.Time `json:"assigned_at,omitempty"`
}

type unitsResponse struct {
	Units []UnitResponse `json:"units"`
}

// ToUnitResponse renders u for clients.
func ToUnitResponse(u *models.Unit) UnitResponse {
	resp := UnitResponse{
		ID:       uint64(u.ID),
		Donors:   make([]string, 0, len(u.Donors)),
		Assigned: u.IsAssigned(),
		IssuedAt: u.IssuedAt.UTC(),
	}
	for _, d := range u.Donors {
		resp.Donors = append(resp.Donors, d.Hex())
	}
	if u.IsAssigned() {
		resp.TransferTeam = u.Custodians.TransferTeam.Hex()
		resp.GroundRelief = u.Custodians.GroundRelief.Hex()
		resp.Recipient = u.Custodians.Recipient.Hex()
		resp.Location = u.Location
	}
	if u.AssignedAt != nil {
		at := u.AssignedAt.UTC()
		resp.AssignedAt = &at
	}
	return resp
}

func (h *Handler) handleContribute(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	donor, ok := h.caller(ctx, w)
	if !ok {
		return
	}

	var req contributeRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	amount, err := domain.ParseWei(req.AmountWei)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	c, err := h.service.Contribute(ctx, donor, amount)
	if err != nil {
		h.writeServiceError(ctx, w, "contribution rejected", err)
		return
	}
	resp := contributeResponse{
		Donor:       c.Donor.Hex(),
		AmountWei:   c.Amount.String(),
		BalanceWei:  c.Balance.String(),
		Minted:      make([]uint64, 0, len(c.Minted)),
		FirstUnitID: uint64(c.FirstUnitID),
		PoolWei:     c.Pool.String(),
	}
	for _, id := range c.Minted {
		resp.Minted = append(resp.Minted, uint64(id))
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleAssign(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := h.caller(ctx, w)
	if !ok {
		return
	}
	id, err := domain.ParseUnitID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	var req assignRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	// Malformed custodian addresses become the zero address so the service
	// reports them in its documented check order.
	custodians := models.Custodians{
		TransferTeam: lenientAddress(req.TransferTeam),
		GroundRelief: lenientAddress(req.GroundRelief),
		Recipient:    lenientAddress(req.Recipient),
	}

	u, err := h.service.Assign(ctx, actor, id, custodians, req.Location)
	if err != nil {
		h.writeServiceError(ctx, w, "assignment rejected", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ToUnitResponse(u))
}

func (h *Handler) handleBalance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	addr, err := domain.ParseAddress(chi.URLParam(r, "address"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	b, err := h.service.GetDonorBalance(ctx, addr)
	if err != nil {
		h.writeServiceError(ctx, w, "failed to load donor balance", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, balanceResponse{
		Address:    addr.Hex(),
		BalanceWei: b.String(),
		BalanceEth: domain.FormatEther(b),
	})
}

func (h *Handler) handleOverview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	o, err := h.service.Overview(ctx)
	if err != nil {
		h.writeServiceError(ctx, w, "failed to load ledger overview", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, overviewResponse{
		ThresholdWei:       o.Params.Threshold.String(),
		MinDonationWei:     o.Params.MinDonation.String(),
		MaxUnitsPerCall:    o.Params.MaxUnitsPerCall,
		MaxContributionWei: o.MaxContribution.String(),
		PoolWei:            o.Pool.String(),
		UnitCount:          o.UnitCount,
	})
}

func (h *Handler) handleListUnits(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	unassigned := false
	if v := r.URL.Query().Get("unassigned"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "unassigned must be a boolean"))
			return
		}
		unassigned = b
	}
	units, err := h.service.ListUnits(ctx, unassigned)
	if err != nil {
		h.writeServiceError(ctx, w, "failed to list units", err)
		return
	}
	resp := unitsResponse{Units: make([]UnitResponse, 0, len(units))}
	for _, u := range units {
		resp.Units = append(resp.Units, ToUnitResponse(u))
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleGetUnit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := domain.ParseUnitID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	u, err := h.service.GetUnit(ctx, id)
	if err != nil {
		h.writeServiceError(ctx, w, "failed to load unit", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ToUnitResponse(u))
}

func lenientAddress(s string) common.Address {
	addr, err := domain.ParseAddress(s)
	if err != nil {
		return common.Address{}
	}
	return addr
}

func (h *Handler) caller(ctx context.Context, w http.ResponseWriter) (common.Address, bool) {
	caller, ok := requestcontext.Caller(ctx)
	if !ok {
		h.logger.ErrorContext(ctx, "caller missing from context despite auth middleware",
			"request_id", requestcontext.RequestID(ctx),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "authentication context error"))
		return common.Address{}, false
	}
	return caller, true
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
