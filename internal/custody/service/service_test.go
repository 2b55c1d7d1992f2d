package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	"aidchain/internal/custody/metrics"
	"aidchain/internal/custody/models"
	"aidchain/internal/custody/store"
	ledgermodels "aidchain/internal/ledger/models"
	ledgerservice "aidchain/internal/ledger/service"
	ledgerstore "aidchain/internal/ledger/store"
	registrymodels "aidchain/internal/registry/models"
	registryservice "aidchain/internal/registry/service"
	registrystore "aidchain/internal/registry/store"
	"aidchain/internal/storage"
	"aidchain/pkg/domain"
	dErrors "aidchain/pkg/domain-errors"
	audit "aidchain/pkg/platform/audit"
	auditmemory "aidchain/pkg/platform/audit/store/memory"
)

// =============================================================================
// Custody Service Test Suite
// =============================================================================
// Exercises the delivery state machine end to end on the memory backend with
// real registry and ledger services behind it.

var (
	authority = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	donor     = common.HexToAddress("0x00000000000000000000000000000000000000d1")
	team      = common.HexToAddress("0x0000000000000000000000000000000000000071")
	ground    = common.HexToAddress("0x0000000000000000000000000000000000000072")
	recipient = common.HexToAddress("0x0000000000000000000000000000000000000073")
	stranger  = common.HexToAddress("0x00000000000000000000000000000000000000c1")
)

type CustodySuite struct {
	suite.Suite
	ledger  *ledgerservice.Service
	events  *auditmemory.InMemoryStore
	metrics *metrics.Metrics
	service *Service
}

func TestCustodySuite(t *testing.T) {
	suite.Run(t, new(CustodySuite))
}

func (s *CustodySuite) SetupTest() {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tx := storage.NewMemoryTx()
	s.events = auditmemory.NewInMemoryStore()
	publisher := audit.NewPublisher(s.events)

	reg, err := registryservice.New(registrystore.NewInMemoryStore(), tx, registryservice.WithLogger(logger))
	s.Require().NoError(err)
	_, err = reg.EnsureAuthority(ctx, authority)
	s.Require().NoError(err)
	for _, p := range []struct {
		addr common.Address
		role registrymodels.Role
	}{
		{team, registrymodels.RoleTransporter},
		{ground, registrymodels.RoleGroundHandler},
		{recipient, registrymodels.RoleRecipient},
	} {
		_, err := reg.RegisterParticipant(ctx, authority, p.addr, p.role, "FIJI")
		s.Require().NoError(err)
	}

	s.ledger, err = ledgerservice.New(ledgerstore.NewInMemoryStore(), reg, tx, ledgermodels.Params{
		Threshold:       domain.MilliEther(320),
		MinDonation:     domain.MilliEther(5),
		MaxUnitsPerCall: 5,
	}, ledgerservice.WithLogger(logger))
	s.Require().NoError(err)
	// Units 0 through 3.
	_, err = s.ledger.Contribute(ctx, donor, domain.MilliEther(1280))
	s.Require().NoError(err)
	_, err = s.ledger.Assign(ctx, authority, 0, ledgermodels.Custodians{TransferTeam: team, GroundRelief: ground, Recipient: recipient}, "FIJI")
	s.Require().NoError(err)
	_, err = s.ledger.Assign(ctx, authority, 1, ledgermodels.Custodians{TransferTeam: team, GroundRelief: ground, Recipient: recipient}, "FIJI")
	s.Require().NoError(err)

	s.metrics = metrics.New(prometheus.NewRegistry())
	s.service, err = New(store.NewInMemoryStore(), s.ledger, tx,
		WithLogger(logger),
		WithAuditPublisher(publisher),
		WithMetrics(s.metrics),
	)
	s.Require().NoError(err)
}

// TestFullJourney runs a unit through every state and claims it twice.
func (s *CustodySuite) TestFullJourney() {
	ctx := context.Background()

	rec, err := s.service.Initialize(ctx, stranger, 0)
	s.Require().NoError(err)
	s.Equal(models.StatusIssued, rec.Status)

	rec, err = s.service.AdvanceTransport(ctx, team, 0)
	s.Require().NoError(err)
	s.Equal(models.StatusInTransit, rec.Status)

	rec, err = s.service.AdvanceDelivery(ctx, ground, 0)
	s.Require().NoError(err)
	s.Equal(models.StatusDelivered, rec.Status)

	rec, err = s.service.AdvanceClaim(ctx, recipient, 0)
	s.Require().NoError(err)
	s.Equal(models.StatusClaimed, rec.Status)

	_, err = s.service.AdvanceClaim(ctx, recipient, 0)
	s.True(errors.Is(err, models.ErrAlreadyClaimed))
	s.True(dErrors.HasCode(err, dErrors.CodeWrongState))

	events, err := s.events.ListByUnit(ctx, 0)
	s.Require().NoError(err)
	kinds := make([]audit.Kind, 0, len(events))
	for _, e := range events {
		kinds = append(kinds, e.Kind)
	}
	s.Equal([]audit.Kind{
		audit.KindCustodyInitialized,
		audit.KindCustodyChanged,
		audit.KindCustodyChanged,
		audit.KindCustodyChanged,
	}, kinds)
	s.Equal("Claimed", events[3].Attributes["status"])
	s.Equal(recipient.Hex(), events[3].Actor)
	s.Equal(float64(1), testutil.ToFloat64(s.metrics.Transitions.WithLabelValues("Claimed")))
}

func (s *CustodySuite) TestInitializeRules() {
	ctx := context.Background()

	_, err := s.service.Initialize(ctx, stranger, 42)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	_, err = s.service.Initialize(ctx, stranger, 2)
	s.True(dErrors.HasCode(err, dErrors.CodeWrongState), "unassigned units cannot start custody")

	_, err = s.service.Initialize(ctx, stranger, 0)
	s.Require().NoError(err)
	_, err = s.service.Initialize(ctx, stranger, 0)
	s.True(dErrors.HasCode(err, dErrors.CodeAlreadyInitialized))

	rec, err := s.service.EnsureInitialized(ctx, stranger, 0)
	s.Require().NoError(err)
	s.Equal(models.StatusIssued, rec.Status)
}

func (s *CustodySuite) TestAdvanceRules() {
	ctx := context.Background()

	_, err := s.service.AdvanceTransport(ctx, team, 42)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	_, err = s.service.AdvanceTransport(ctx, team, 0)
	s.True(dErrors.HasCode(err, dErrors.CodeWrongState), "uninitialized counts as wrong state")

	_, err = s.service.Initialize(ctx, stranger, 0)
	s.Require().NoError(err)

	_, err = s.service.AdvanceTransport(ctx, authority, 0)
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized), "authority is not a custodian")

	_, err = s.service.AdvanceDelivery(ctx, team, 0)
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized), "identity is checked before state")

	_, err = s.service.AdvanceDelivery(ctx, ground, 0)
	s.True(dErrors.HasCode(err, dErrors.CodeWrongState), "no skipping ahead")

	_, err = s.service.AdvanceTransport(ctx, team, 2)
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized), "unassigned unit has no custodians")
}

// TestBatchStatuses checks labels come back in request order with "uninitialized" gaps.
func (s *CustodySuite) TestBatchStatuses() {
	ctx := context.Background()
	_, err := s.service.Initialize(ctx, stranger, 0)
	s.Require().NoError(err)
	_, err = s.service.Initialize(ctx, stranger, 1)
	s.Require().NoError(err)
	_, err = s.service.AdvanceTransport(ctx, team, 1)
	s.Require().NoError(err)

	labels, err := s.service.GetStatuses(ctx, []domain.UnitID{1, 0, 2, 1})
	s.Require().NoError(err)
	s.Equal([]string{"InTransit", "Issued", "uninitialized", "InTransit"}, labels)

	label, err := s.service.GetStatus(ctx, 3)
	s.Require().NoError(err)
	s.Equal(models.Uninitialized, label)
}

func (s *CustodySuite) TestJourney() {
	ctx := context.Background()

	j, err := s.service.Journey(ctx, team, 0, false)
	s.Require().NoError(err)
	s.Equal(models.Uninitialized, j.Status)
	s.Equal([]models.Action{models.ActionInitialize}, j.Allowed)

	j, err = s.service.Journey(ctx, team, 0, true)
	s.Require().NoError(err)
	s.Equal("Issued", j.Status)
	s.Equal([]models.Action{models.ActionTransport}, j.Allowed)
	s.Equal("FIJI", j.Location)

	j, err = s.service.Journey(ctx, recipient, 0, false)
	s.Require().NoError(err)
	s.Empty(j.Allowed)
	s.NotNil(j.Allowed)

	j, err = s.service.Journey(ctx, team, 2, true)
	s.Require().NoError(err)
	s.Equal(models.Uninitialized, j.Status, "unassigned units are never auto-initialized")
	s.Empty(j.Allowed)

	_, err = s.service.Journey(ctx, team, 42, false)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

// TestRepeatedJourneyInitIsNotARejection reads an initialized journey with init
// requested again and again.
func (s *CustodySuite) TestRepeatedJourneyInitIsNotARejection() {
	ctx := context.Background()
	for range 3 {
		j, err := s.service.Journey(ctx, team, 0, true)
		s.Require().NoError(err)
		s.Equal("Issued", j.Status)
	}

	s.Equal(float64(0), testutil.ToFloat64(s.metrics.Rejections.WithLabelValues("initialize", string(dErrors.CodeAlreadyInitialized))))
	s.Equal(float64(1), testutil.ToFloat64(s.metrics.Transitions.WithLabelValues("Issued")))
	events, err := s.events.ListByUnit(ctx, 0)
	s.Require().NoError(err)
	initialized := 0
	for _, e := range events {
		if e.Kind == audit.KindCustodyInitialized {
			initialized++
		}
	}
	s.Equal(1, initialized)

	_, err = s.service.Initialize(ctx, team, 0)
	s.True(dErrors.HasCode(err, dErrors.CodeAlreadyInitialized))
	s.Equal(float64(1), testutil.ToFloat64(s.metrics.Rejections.WithLabelValues("initialize", string(dErrors.CodeAlreadyInitialized))))
}

// TestConcurrentAdvanceHasOneWinner races the transfer team against itself.
func (s *CustodySuite) TestConcurrentAdvanceHasOneWinner() {
	ctx := context.Background()
	_, err := s.service.Initialize(ctx, stranger, 0)
	s.Require().NoError(err)

	const workers = 16
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		wins  int
		wrong int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.service.AdvanceTransport(ctx, team, 0)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				wins++
			} else if dErrors.HasCode(err, dErrors.CodeWrongState) {
				wrong++
			}
		}()
	}
	wg.Wait()

	s.Equal(1, wins)
	s.Equal(workers-1, wrong)
}
