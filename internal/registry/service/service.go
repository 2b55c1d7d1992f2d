package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"aidchain/internal/policy"
	"aidchain/internal/registry/metrics"
	"aidchain/internal/registry/models"
	"aidchain/internal/registry/store"
	"aidchain/internal/storage"
	dErrors "aidchain/pkg/domain-errors"
	audit "aidchain/pkg/platform/audit"
	"aidchain/pkg/requestcontext"
)

var tracer = otel.Tracer("aidchain/registry")

type Store interface {
	Authority(ctx context.Context) (common.Address, error)
	SetAuthority(ctx context.Context, addr common.Address, at time.Time) error
	Save(ctx context.Context, p *models.Participant) error
	Find(ctx context.Context, addr common.Address) (*models.Participant, error)
	ListByRole(ctx context.Context, role models.Role) ([]common.Address, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service is the identity registry. The authority is its only writer.
type Service struct {
	store          Store
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

// New constructs a registry Service.
func New(st Store, tx storage.Tx, opts ...Option) (*Service, error) {
	if st == nil {
		return nil, errors.New("registry store is required")
	}
	if tx == nil {
		return nil, errors.New("transaction runner is required")
	}
	s := &Service{store: st, tx: tx, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// EnsureAuthority records addr as the authority when none is stored yet.
// A stored authority wins over the configured one, since transfers persist.
func (s *Service) EnsureAuthority(ctx context.Context, addr common.Address) (common.Address, error) {
	var current common.Address
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		stored, err := s.store.Authority(ctx)
		switch {
		case err == nil:
			current = stored
			return nil
		case !errors.Is(err, store.ErrNotFound):
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load authority")
		}
		if addr == (common.Address{}) {
			return dErrors.New(dErrors.CodeInvalidInput, "initial authority address is required")
		}
		if err := s.store.SetAuthority(ctx, addr, requestcontext.Now(ctx)); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save authority")
		}
		current = addr
		return nil
	})
	if err != nil {
		return common.Address{}, err
	}
	if current != addr {
		s.logger.WarnContext(ctx, "stored authority differs from configured authority",
			"stored", current.Hex(),
			"configured", addr.Hex(),
		)
	}
	return current, nil
}

// Authority returns the current authority address.
func (s *Service) Authority(ctx context.Context) (common.Address, error) {
	addr, err := s.store.Authority(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return common.Address{}, nil
	}
	if err != nil {
		return common.Address{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load authority")
	}
	return addr, nil
}

// RegisterParticipant records target with role and location, overwriting any previous record.
func (s *Service) RegisterParticipant(ctx context.Context, actor, target common.Address, role models.Role, location string) (*models.Participant, error) {
	ctx, span := tracer.Start(ctx, "registry.RegisterParticipant")
	defer span.End()
	if s.metrics != nil {
		defer s.metrics.ObserveRegister(time.Now())
	}

	var participant *models.Participant
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		authority, err := s.Authority(ctx)
		if err != nil {
			return err
		}
		if err := policy.Authorize(policy.OpRegisterParticipant, policy.Subject{Caller: actor, Authority: authority}); err != nil {
			return err
		}

		p, err := models.NewParticipant(target, role, location, requestcontext.Now(ctx))
		if err != nil {
			return err
		}
		if err := s.store.Save(ctx, p); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save participant")
		}
		if err := s.emit(ctx, audit.Event{
			Kind:    audit.KindRoleRegistered,
			Actor:   actor.Hex(),
			Subject: p.Address.Hex(),
			Attributes: map[string]string{
				"role":       string(p.Role),
				"location":   p.Location,
				"display_id": p.DisplayID(),
			},
		}); err != nil {
			return err
		}
		participant = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.String("role", string(participant.Role)))
	s.logger.InfoContext(ctx, "participant registered",
		"address", participant.Address.Hex(),
		"role", string(participant.Role),
		"location", participant.Location,
		"request_id", requestcontext.RequestID(ctx),
	)
	if s.metrics != nil {
		s.metrics.IncParticipantRegistered(string(participant.Role))
	}
	return participant, nil
}

// TransferAuthority hands the authority to next. Effective for the next call.
func (s *Service) TransferAuthority(ctx context.Context, actor, next common.Address) error {
	ctx, span := tracer.Start(ctx, "registry.TransferAuthority")
	defer span.End()

	var previous common.Address
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		authority, err := s.Authority(ctx)
		if err != nil {
			return err
		}
		if err := policy.Authorize(policy.OpTransferAuthority, policy.Subject{Caller: actor, Authority: authority}); err != nil {
			return err
		}
		if next == (common.Address{}) {
			return dErrors.New(dErrors.CodeInvalidInput, "new authority address is required")
		}
		if err := s.store.SetAuthority(ctx, next, requestcontext.Now(ctx)); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save authority")
		}
		previous = authority
		return s.emit(ctx, audit.Event{
			Kind:    audit.KindAuthorityTransferred,
			Actor:   actor.Hex(),
			Subject: next.Hex(),
			Attributes: map[string]string{
				"previous": authority.Hex(),
				"next":     next.Hex(),
			},
		})
	})
	if err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "authority transferred",
		"previous", previous.Hex(),
		"next", next.Hex(),
		"request_id", requestcontext.RequestID(ctx),
	)
	if s.metrics != nil {
		s.metrics.IncAuthorityTransfer()
	}
	return nil
}

// Describe returns the record for addr. Unknown addresses get RoleNone and an empty location.
func (s *Service) Describe(ctx context.Context, addr common.Address) (*models.Participant, error) {
	p, err := s.store.Find(ctx, addr)
	if errors.Is(err, store.ErrNotFound) {
		return &models.Participant{Address: addr, Role: models.RoleNone}, nil
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load participant")
	}
	return p, nil
}

// GetRole returns the role of addr, RoleNone when unknown.
func (s *Service) GetRole(ctx context.Context, addr common.Address) (models.Role, error) {
	p, err := s.Describe(ctx, addr)
	if err != nil {
		return models.RoleNone, err
	}
	return p.Role, nil
}

// GetLocation returns the registered location of addr, empty when unknown.
func (s *Service) GetLocation(ctx context.Context, addr common.Address) (string, error) {
	p, err := s.Describe(ctx, addr)
	if err != nil {
		return "", err
	}
	return p.Location, nil
}

// ListByRole returns holders of role in registration order.
func (s *Service) ListByRole(ctx context.Context, role models.Role) ([]common.Address, error) {
	addrs, err := s.store.ListByRole(ctx, role)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list participants")
	}
	return addrs, nil
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
