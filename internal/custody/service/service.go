// Package service implements the custody tracker: the forward-only
// Issued → InTransit → Delivered → Claimed state machine of an assigned unit.
package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"aidchain/internal/custody/metrics"
	"aidchain/internal/custody/models"
	"aidchain/internal/custody/store"
	ledgermodels "aidchain/internal/ledger/models"
	"aidchain/internal/policy"
	"aidchain/internal/storage"
	"aidchain/pkg/domain"
	dErrors "aidchain/pkg/domain-errors"
	audit "aidchain/pkg/platform/audit"
	"aidchain/pkg/requestcontext"
)

var tracer = otel.Tracer("aidchain/custody")

type Store interface {
	Get(ctx context.Context, id domain.UnitID) (*models.Record, error)
	GetMany(ctx context.Context, ids []domain.UnitID) (map[domain.UnitID]models.Record, error)
	Create(ctx context.Context, rec *models.Record) error
	Update(ctx context.Context, from models.Status, rec *models.Record) error
}

// Ledger resolves units and their custodians.
type Ledger interface {
	GetUnit(ctx context.Context, id domain.UnitID) (*ledgermodels.Unit, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

type Service struct {
	store          Store
	ledger         Ledger
	tx             storage.Tx
	logger         *slog.Logger
	auditPublisher AuditPublisher
	metrics        *metrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func New(st Store, ledger Ledger, tx storage.Tx, opts ...Option) (*Service, error) {
	if st == nil {
		return nil, errors.New("custody store is required")
	}
	if ledger == nil {
		return nil, errors.New("ledger is required")
	}
	if tx == nil {
		return nil, errors.New("transaction runner is required")
	}
	s := &Service{store: st, ledger: ledger, tx: tx, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Initialize starts custody of an assigned unit in the Issued state. Anyone may call it.
func (s *Service) Initialize(ctx context.Context, actor common.Address, id domain.UnitID) (*models.Record, error) {
	rec, err := s.initialize(ctx, actor, id)
	if err != nil {
		return nil, s.reject("initialize", err)
	}
	return rec, nil
}

func (s *Service) initialize(ctx context.Context, actor common.Address, id domain.UnitID) (*models.Record, error) {
	ctx, span := tracer.Start(ctx, "custody.Initialize")
	defer span.End()
	span.SetAttributes(attribute.String("unit_id", id.String()))

	var rec *models.Record
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		unit, status, err := s.load(ctx, id)
		if err != nil {
			return err
		}
		if err := policy.Authorize(policy.OpInitialize, policy.Subject{Caller: actor, Custodians: unit.Custodians, Status: status}); err != nil {
			return err
		}
		r := &models.Record{UnitID: id, Status: models.StatusIssued, UpdatedBy: actor, UpdatedAt: requestcontext.Now(ctx)}
		if err := s.store.Create(ctx, r); err != nil {
			if errors.Is(err, store.ErrConflict) {
				return dErrors.New(dErrors.CodeAlreadyInitialized, "custody already initialized")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save custody status")
		}
		if err := s.emit(ctx, audit.Event{
			Kind:       audit.KindCustodyInitialized,
			UnitID:     &id,
			Actor:      actor.Hex(),
			Subject:    unit.Custodians.Recipient.Hex(),
			Attributes: map[string]string{"status": string(models.StatusIssued)},
		}); err != nil {
			return err
		}
		rec = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "custody initialized",
		"unit_id", id.String(),
		"actor", actor.Hex(),
		"request_id", requestcontext.RequestID(ctx),
	)
	if s.metrics != nil {
		s.metrics.IncTransition(string(models.StatusIssued))
	}
	return rec, nil
}

// EnsureInitialized initializes custody when it has not started yet and
// returns the current record either way. Finding custody already started is
// not counted as a rejection.
func (s *Service) EnsureInitialized(ctx context.Context, actor common.Address, id domain.UnitID) (*models.Record, error) {
	rec, err := s.getRecord(ctx, id)
	if err == nil || !dErrors.HasCode(err, dErrors.CodeNotFound) {
		return rec, err
	}
	rec, err = s.initialize(ctx, actor, id)
	if dErrors.HasCode(err, dErrors.CodeAlreadyInitialized) {
		return s.getRecord(ctx, id)
	}
	if err != nil {
		return nil, s.reject("initialize", err)
	}
	return rec, nil
}

// AdvanceTransport moves an Issued unit to InTransit. Only the transfer team may call it.
func (s *Service) AdvanceTransport(ctx context.Context, actor common.Address, id domain.UnitID) (*models.Record, error) {
	return s.advance(ctx, policy.OpAdvanceTransport, actor, id)
}

// AdvanceDelivery moves an InTransit unit to Delivered. Only the ground relief team may call it.
func (s *Service) AdvanceDelivery(ctx context.Context, actor common.Address, id domain.UnitID) (*models.Record, error) {
	return s.advance(ctx, policy.OpAdvanceDelivery, actor, id)
}

// AdvanceClaim moves a Delivered unit to Claimed. Only the recipient may call it.
// Claiming twice returns models.ErrAlreadyClaimed.
func (s *Service) AdvanceClaim(ctx context.Context, actor common.Address, id domain.UnitID) (*models.Record, error) {
	return s.advance(ctx, policy.OpAdvanceClaim, actor, id)
}

func (s *Service) advance(ctx context.Context, op policy.Operation, actor common.Address, id domain.UnitID) (*models.Record, error) {
	ctx, span := tracer.Start(ctx, "custody."+string(op))
	defer span.End()
	span.SetAttributes(attribute.String("unit_id", id.String()))

	next, ok := policy.Next(op)
	if !ok {
		return nil, dErrors.New(dErrors.CodeInternal, "unknown custody operation")
	}

	var (
		rec  *models.Record
		from models.Status
	)
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		unit, status, err := s.load(ctx, id)
		if err != nil {
			return err
		}
		if err := policy.Authorize(op, policy.Subject{Caller: actor, Custodians: unit.Custodians, Status: status}); err != nil {
			return err
		}
		from = *status
		r := &models.Record{UnitID: id, Status: next, UpdatedBy: actor, UpdatedAt: requestcontext.Now(ctx)}
		if err := s.store.Update(ctx, from, r); err != nil {
			if errors.Is(err, store.ErrConflict) {
				return dErrors.New(dErrors.CodeWrongState, "custody status changed concurrently")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save custody status")
		}
		if err := s.emit(ctx, audit.Event{
			Kind:    audit.KindCustodyChanged,
			UnitID:  &id,
			Actor:   actor.Hex(),
			Subject: actor.Hex(),
			Attributes: map[string]string{
				"from":   string(from),
				"status": string(next),
			},
		}); err != nil {
			return err
		}
		rec = r
		return nil
	})
	if err != nil {
		return nil, s.reject(string(op), err)
	}

	s.logger.InfoContext(ctx, "custody changed",
		"unit_id", id.String(),
		"actor", actor.Hex(),
		"from", string(from),
		"status", string(next),
		"request_id", requestcontext.RequestID(ctx),
	)
	if s.metrics != nil {
		s.metrics.IncTransition(string(next))
	}
	return rec, nil
}

// GetStatus returns the status label of one unit, "uninitialized" without a record.
func (s *Service) GetStatus(ctx context.Context, id domain.UnitID) (string, error) {
	labels, err := s.GetStatuses(ctx, []domain.UnitID{id})
	if err != nil {
		return "", err
	}
	return labels[0], nil
}

// GetStatuses returns one label per id, in order.
func (s *Service) GetStatuses(ctx context.Context, ids []domain.UnitID) ([]string, error) {
	records, err := s.store.GetMany(ctx, ids)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load custody statuses")
	}
	out := make([]string, len(ids))
	for i, id := range ids {
		if rec, ok := records[id]; ok {
			out[i] = string(rec.Status)
		} else {
			out[i] = models.Uninitialized
		}
	}
	return out, nil
}

// Journey renders a unit for caller, including the actions caller may take
// next. With ensureInit an assigned unit without a record is initialized first.
func (s *Service) Journey(ctx context.Context, caller common.Address, id domain.UnitID, ensureInit bool) (*models.Journey, error) {
	unit, err := s.ledger.GetUnit(ctx, id)
	if err != nil {
		return nil, err
	}

	var rec *models.Record
	if ensureInit && unit.IsAssigned() {
		rec, err = s.EnsureInitialized(ctx, caller, id)
		if err != nil {
			return nil, err
		}
	} else {
		rec, err = s.getRecord(ctx, id)
		if err != nil && !dErrors.HasCode(err, dErrors.CodeNotFound) {
			return nil, err
		}
	}

	j := &models.Journey{
		UnitID: id,
		Status: models.Uninitialized,
		Custodians: models.JourneyCustodians{
			TransferTeam: unit.Custodians.TransferTeam,
			GroundRelief: unit.Custodians.GroundRelief,
			Recipient:    unit.Custodians.Recipient,
		},
		Location: unit.Location,
	}
	var status *models.Status
	if rec != nil {
		j.Status = string(rec.Status)
		status = &rec.Status
	}
	j.Allowed = policy.AllowedActions(policy.Subject{Caller: caller, Custodians: unit.Custodians, Status: status})
	if j.Allowed == nil {
		j.Allowed = []models.Action{}
	}
	return j, nil
}

// load returns the unit and its status, nil when custody has not started.
func (s *Service) load(ctx context.Context, id domain.UnitID) (*ledgermodels.Unit, *models.Status, error) {
	unit, err := s.ledger.GetUnit(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	rec, err := s.store.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return unit, nil, nil
	}
	if err != nil {
		return nil, nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load custody status")
	}
	return unit, &rec.Status, nil
}

func (s *Service) getRecord(ctx context.Context, id domain.UnitID) (*models.Record, error) {
	rec, err := s.store.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "custody not initialized")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load custody status")
	}
	return rec, nil
}

func (s *Service) reject(operation string, err error) error {
	if s.metrics != nil {
		s.metrics.IncRejected(operation, string(dErrors.CodeOf(err)))
	}
	return err
}

func (s *Service) emit(ctx context.Context, event audit.Event) error {
	if s.auditPublisher == nil {
		return nil
	}
	if err := s.auditPublisher.Emit(ctx, event); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record event")
	}
	return nil
}
