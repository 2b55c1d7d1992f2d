// Package service implements the aid ledger: threshold-funded minting of aid
// units and their one-shot assignment to custodians.
package service

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"aidchain/internal/ledger/metrics"
	"aidchain/internal/ledger/models"
	"aidchain/internal/ledger/store"
	"aidchain/internal/policy"
	registrymodels "aidchain/internal/registry/models"
	"aidchain/internal/storage"
	"aidchain/pkg/domain"
	dErrors "aidchain/pkg/domain-errors"
	audit "aidchain/pkg/platform/audit"
	"aidchain/pkg/requestcontext"
)

var tracer = otel.Tracer("aidchain/ledger")

type Store interface {
	State(ctx context.Context) (*models.State, error)
	SaveState(ctx context.Context, st *models.State) error
	Balance(ctx context.Context, donor common.Address) (*big.Int, error)
	SaveBalance(ctx context.Context, donor common.Address, balance *big.Int) error
	CreateUnit(ctx context.Context, u *models.Unit) error
	FindUnit(ctx context.Context, id domain.UnitID) (*models.Unit, error)
	Assign(ctx context.Context, id domain.UnitID, c models.Custodians, location string, at time.Time) error
	ListUnits(ctx context.Context, unassignedOnly bool) ([]*models.Unit, error)
}

// Registry is the read side of the identity registry the ledger depends on.
type Registry interface {
	Authority(ctx context.Context) (common.Address, error)
	Describe(ctx context.Context, addr common.Address) (*registrymodels.Participant, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service is the aid ledger.
type Service struct {
	store          Store
	registry       Registry
	tx             storage.Tx
	params         models.Params
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

// New constructs a ledger Service with fixed funding params.
func New(st Store, registry Registry, tx storage.Tx, params models.Params, opts ...Option) (*Service, error) {
	if st == nil {
		return nil, errors.New("ledger store is required")
	}
	if registry == nil {
		return nil, errors.New("registry is required")
	}
	if tx == nil {
		return nil, errors.New("transaction runner is required")
	}
	if params.Threshold == nil || params.Threshold.Sign() <= 0 {
		return nil, errors.New("threshold must be positive")
	}
	if params.MinDonation == nil || params.MinDonation.Sign() < 0 {
		return nil, errors.New("minimum donation must not be negative")
	}
	if params.MaxUnitsPerCall < 1 {
		return nil, errors.New("max units per call must be at least 1")
	}
	s := &Service{store: st, registry: registry, tx: tx, params: params, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Params returns the funding rules.
func (s *Service) Params() models.Params {
	return s.params
}

// Contribute adds amount to the donor's balance and the pool, minting one
// unit per whole threshold. A call that would mint more than MaxUnitsPerCall
// is rejected without applying anything.
func (s *Service) Contribute(ctx context.Context, donor common.Address, amount *big.Int) (*models.Contribution, error) {
	ctx, span := tracer.Start(ctx, "ledger.Contribute")
	defer span.End()
	if s.metrics != nil {
		defer s.metrics.ObserveContribute(time.Now())
	}

	if donor == (common.Address{}) {
		return nil, s.reject("contribute", dErrors.New(dErrors.CodeInvalidInput, "donor address is required"))
	}
	if amount == nil || amount.Sign() <= 0 || amount.Cmp(s.params.MinDonation) < 0 {
		return nil, s.reject("contribute", dErrors.New(dErrors.CodeInvalidInput,
			"donation is below the minimum of "+domain.FormatEther(s.params.MinDonation)+" ETH"))
	}

	var result *models.Contribution
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		state, err := s.store.State(ctx)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load ledger state")
		}
		minted, remainder := s.params.Mint(state.Pool, amount)
		if minted > int64(s.params.MaxUnitsPerCall) {
			return dErrors.New(dErrors.CodeLimitExceeded,
				"contribution would mint more than the per-call limit; send at most "+
					domain.FormatEther(s.params.MaxContribution(state.Pool))+" ETH")
		}

		balance, err := s.store.Balance(ctx, donor)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load donor balance")
		}
		balance.Add(balance, amount)
		if err := s.store.SaveBalance(ctx, donor, balance); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save donor balance")
		}

		now := requestcontext.Now(ctx)
		first := state.NextUnitID
		ids := make([]domain.UnitID, 0, minted)
		for i := int64(0); i < minted; i++ {
			id := first + domain.UnitID(i)
			unit := &models.Unit{ID: id, Donors: []common.Address{donor}, IssuedAt: now}
			if err := s.store.CreateUnit(ctx, unit); err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to issue unit")
			}
			if err := s.emit(ctx, audit.Event{
				Kind:       audit.KindUnitIssued,
				UnitID:     &id,
				Actor:      donor.Hex(),
				Subject:    donor.Hex(),
				Attributes: map[string]string{"donors": donor.Hex()},
			}); err != nil {
				return err
			}
			ids = append(ids, id)
		}

		state.Pool = remainder
		state.NextUnitID = first + domain.UnitID(minted)
		if err := s.store.SaveState(ctx, state); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save ledger state")
		}
		if err := s.emit(ctx, audit.Event{
			Kind:    audit.KindContribution,
			Actor:   donor.Hex(),
			Subject: donor.Hex(),
			Attributes: map[string]string{
				"amount_wei":    amount.String(),
				"first_unit_id": first.String(),
				"minted":        big.NewInt(minted).String(),
			},
		}); err != nil {
			return err
		}

		result = &models.Contribution{
			Donor:       donor,
			Amount:      new(big.Int).Set(amount),
			Balance:     balance,
			Minted:      ids,
			FirstUnitID: first,
			Pool:        new(big.Int).Set(remainder),
		}
		return nil
	})
	if err != nil {
		return nil, s.reject("contribute", err)
	}

	span.SetAttributes(attribute.Int("units_minted", len(result.Minted)))
	s.logger.InfoContext(ctx, "contribution accepted",
		"donor", donor.Hex(),
		"amount_wei", amount.String(),
		"units_minted", len(result.Minted),
		"first_unit_id", result.FirstUnitID.String(),
		"request_id", requestcontext.RequestID(ctx),
	)
	if s.metrics != nil {
		s.metrics.RecordContribution(amount, result.Pool, len(result.Minted))
	}
	return result, nil
}

// Assign binds the three custodians and the delivery location to a unit.
// Checks run in a fixed order so callers see the first failing rule.
func (s *Service) Assign(ctx context.Context, actor common.Address, id domain.UnitID, c models.Custodians, location string) (*models.Unit, error) {
	ctx, span := tracer.Start(ctx, "ledger.Assign")
	defer span.End()
	span.SetAttributes(attribute.String("unit_id", id.String()))

	location = strings.TrimSpace(location)
	var unit *models.Unit
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		authority, err := s.registry.Authority(ctx)
		if err != nil {
			return err
		}
		if err := policy.Authorize(policy.OpAssign, policy.Subject{Caller: actor, Authority: authority}); err != nil {
			return err
		}

		u, err := s.store.FindUnit(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "unit "+id.String()+" does not exist")
		}
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load unit")
		}
		if u.IsAssigned() {
			return dErrors.New(dErrors.CodeAlreadyAssigned, "unit "+id.String()+" is already assigned")
		}

		recipient, err := s.checkRoles(ctx, c)
		if err != nil {
			return err
		}
		if recipient.Location != location {
			return dErrors.New(dErrors.CodeLocationMismatch,
				"recipient is registered in "+recipient.Location+", not "+location)
		}

		now := requestcontext.Now(ctx)
		if err := s.store.Assign(ctx, id, c, location, now); err != nil {
			if errors.Is(err, store.ErrConflict) {
				return dErrors.New(dErrors.CodeAlreadyAssigned, "unit "+id.String()+" is already assigned")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to assign unit")
		}
		if err := s.emit(ctx, audit.Event{
			Kind:    audit.KindUnitAssigned,
			UnitID:  &id,
			Actor:   actor.Hex(),
			Subject: c.Recipient.Hex(),
			Attributes: map[string]string{
				"transfer_team": c.TransferTeam.Hex(),
				"ground_relief": c.GroundRelief.Hex(),
				"recipient":     c.Recipient.Hex(),
				"location":      location,
			},
		}); err != nil {
			return err
		}

		u.Custodians = c
		u.Location = location
		u.AssignedAt = &now
		unit = u
		return nil
	})
	if err != nil {
		return nil, s.reject("assign", err)
	}

	s.logger.InfoContext(ctx, "unit assigned",
		"unit_id", id.String(),
		"transfer_team", c.TransferTeam.Hex(),
		"ground_relief", c.GroundRelief.Hex(),
		"recipient", c.Recipient.Hex(),
		"location", location,
		"request_id", requestcontext.RequestID(ctx),
	)
	if s.metrics != nil {
		s.metrics.IncAssigned()
	}
	return unit, nil
}

// checkRoles verifies each custodian holds the matching role and returns the recipient's record.
func (s *Service) checkRoles(ctx context.Context, c models.Custodians) (*registrymodels.Participant, error) {
	checks := []struct {
		addr common.Address
		role registrymodels.Role
		msg  string
	}{
		{c.TransferTeam, registrymodels.RoleTransporter, "transfer team must be a registered transporter"},
		{c.GroundRelief, registrymodels.RoleGroundHandler, "ground relief must be a registered ground handler"},
		{c.Recipient, registrymodels.RoleRecipient, "recipient must be a registered recipient"},
	}
	var last *registrymodels.Participant
	for _, check := range checks {
		p, err := s.registry.Describe(ctx, check.addr)
		if err != nil {
			return nil, err
		}
		if check.addr == (common.Address{}) || p.Role != check.role {
			return nil, dErrors.New(dErrors.CodeInvalidRole, check.msg)
		}
		last = p
	}
	return last, nil
}

// IsIssued reports whether a unit with id has been minted.
func (s *Service) IsIssued(ctx context.Context, id domain.UnitID) (bool, error) {
	state, err := s.store.State(ctx)
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load ledger state")
	}
	return id < state.NextUnitID, nil
}

// GetUnit returns the unit with id.
func (s *Service) GetUnit(ctx context.Context, id domain.UnitID) (*models.Unit, error) {
	u, err := s.store.FindUnit(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "unit "+id.String()+" does not exist")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load unit")
	}
	return u, nil
}

// GetCustodians returns the unit's custodians, all zero when unassigned.
func (s *Service) GetCustodians(ctx context.Context, id domain.UnitID) (models.Custodians, error) {
	u, err := s.GetUnit(ctx, id)
	if err != nil {
		return models.Custodians{}, err
	}
	return u.Custodians, nil
}

// GetDonorBalance returns the cumulative wei contributed by donor.
func (s *Service) GetDonorBalance(ctx context.Context, donor common.Address) (*big.Int, error) {
	b, err := s.store.Balance(ctx, donor)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load donor balance")
	}
	return b, nil
}

// GetUnitCount returns the number of units minted so far.
func (s *Service) GetUnitCount(ctx context.Context) (uint64, error) {
	state, err := s.store.State(ctx)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load ledger state")
	}
	return uint64(state.NextUnitID), nil
}

// Overview summarizes the ledger for donors.
func (s *Service) Overview(ctx context.Context) (*models.Overview, error) {
	state, err := s.store.State(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load ledger state")
	}
	return &models.Overview{
		Params:          s.params,
		Pool:            state.Pool,
		UnitCount:       uint64(state.NextUnitID),
		MaxContribution: s.params.MaxContribution(state.Pool),
	}, nil
}

// ListUnits returns units in id order, optionally only those awaiting assignment.
func (s *Service) ListUnits(ctx context.Context, unassignedOnly bool) ([]*models.Unit, error) {
	units, err := s.store.ListUnits(ctx, unassignedOnly)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list units")
	}
	return units, nil
}

// ListUnassigned returns units pending assignment.
func (s *Service) ListUnassigned(ctx context.Context) ([]*models.Unit, error) {
	return s.ListUnits(ctx, true)
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
