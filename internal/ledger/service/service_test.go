package service

import (
	"context"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	"aidchain/internal/ledger/metrics"
	"aidchain/internal/ledger/models"
	"aidchain/internal/ledger/store"
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
// Ledger Service Test Suite
// =============================================================================
// Covers threshold minting, the per-call cap, donor balances and the ordered
// checks of unit assignment.

var (
	authority = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	donor1    = common.HexToAddress("0x00000000000000000000000000000000000000d1")
	donor2    = common.HexToAddress("0x00000000000000000000000000000000000000d2")
	team      = common.HexToAddress("0x0000000000000000000000000000000000000071")
	ground    = common.HexToAddress("0x0000000000000000000000000000000000000072")
	recipient = common.HexToAddress("0x0000000000000000000000000000000000000073")
	stranger  = common.HexToAddress("0x00000000000000000000000000000000000000c1")
)

func testParams() models.Params {
	return models.Params{
		Threshold:       domain.MilliEther(320),
		MinDonation:     domain.MilliEther(5),
		MaxUnitsPerCall: 5,
	}
}

type LedgerServiceSuite struct {
	suite.Suite
	tx       *storage.MemoryTx
	registry *registryservice.Service
	events   *auditmemory.InMemoryStore
	metrics  *metrics.Metrics
	service  *Service
}

func TestLedgerServiceSuite(t *testing.T) {
	suite.Run(t, new(LedgerServiceSuite))
}

func (s *LedgerServiceSuite) SetupTest() {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.tx = storage.NewMemoryTx()
	s.events = auditmemory.NewInMemoryStore()
	publisher := audit.NewPublisher(s.events)

	reg, err := registryservice.New(registrystore.NewInMemoryStore(), s.tx, registryservice.WithLogger(logger))
	s.Require().NoError(err)
	_, err = reg.EnsureAuthority(ctx, authority)
	s.Require().NoError(err)
	s.registry = reg

	s.metrics = metrics.New(prometheus.NewRegistry())
	svc, err := New(store.NewInMemoryStore(), reg, s.tx, testParams(),
		WithLogger(logger),
		WithAuditPublisher(publisher),
		WithMetrics(s.metrics),
	)
	s.Require().NoError(err)
	s.service = svc
}

func (s *LedgerServiceSuite) register(addr common.Address, role registrymodels.Role, location string) {
	_, err := s.registry.RegisterParticipant(context.Background(), authority, addr, role, location)
	s.Require().NoError(err)
}

func (s *LedgerServiceSuite) contribute(who common.Address, milli int64) *models.Contribution {
	c, err := s.service.Contribute(context.Background(), who, domain.MilliEther(milli))
	s.Require().NoError(err)
	return c
}

func (s *LedgerServiceSuite) TestNewValidatesParams() {
	p := testParams()
	p.Threshold = big.NewInt(0)
	_, err := New(store.NewInMemoryStore(), s.registry, s.tx, p)
	s.ErrorContains(err, "threshold must be positive")

	p = testParams()
	p.MaxUnitsPerCall = 0
	_, err = New(store.NewInMemoryStore(), s.registry, s.tx, p)
	s.ErrorContains(err, "max units per call")
}

// TestContributeMintsOneUnit checks 0.4 ETH mints unit 0 and leaves 0.08 ETH in the pool.
func (s *LedgerServiceSuite) TestContributeMintsOneUnit() {
	ctx := context.Background()
	c := s.contribute(donor1, 400)

	s.Equal([]domain.UnitID{0}, c.Minted)
	s.Equal(domain.UnitID(0), c.FirstUnitID)
	s.Equal(0, c.Pool.Cmp(domain.MilliEther(80)))

	issued, err := s.service.IsIssued(ctx, 0)
	s.Require().NoError(err)
	s.True(issued)
	issued, err = s.service.IsIssued(ctx, 1)
	s.Require().NoError(err)
	s.False(issued)

	count, err := s.service.GetUnitCount(ctx)
	s.Require().NoError(err)
	s.Equal(uint64(1), count)

	unit, err := s.service.GetUnit(ctx, 0)
	s.Require().NoError(err)
	s.Equal([]common.Address{donor1}, unit.Donors)
	s.False(unit.IsAssigned())
	s.Equal(float64(1), testutil.ToFloat64(s.metrics.UnitsIssued))
}

func (s *LedgerServiceSuite) TestPoolCarriesAcrossDonors() {
	ctx := context.Background()
	first := s.contribute(donor1, 300)
	s.Empty(first.Minted)
	s.Equal(domain.UnitID(0), first.FirstUnitID, "no mint reports the next id")

	second := s.contribute(donor2, 700)
	s.Equal([]domain.UnitID{0, 1, 2}, second.Minted)
	s.Equal(0, second.Pool.Cmp(domain.MilliEther(40)))

	unit, err := s.service.GetUnit(ctx, 2)
	s.Require().NoError(err)
	s.Equal([]common.Address{donor2}, unit.Donors, "units are attributed to the triggering donor")

	third := s.contribute(donor1, 5)
	s.Equal(domain.UnitID(3), third.FirstUnitID)

	b1, err := s.service.GetDonorBalance(ctx, donor1)
	s.Require().NoError(err)
	s.Equal(0, b1.Cmp(domain.MilliEther(305)))
	b2, err := s.service.GetDonorBalance(ctx, donor2)
	s.Require().NoError(err)
	s.Equal(0, b2.Cmp(domain.MilliEther(700)))

	unknown, err := s.service.GetDonorBalance(ctx, stranger)
	s.Require().NoError(err)
	s.Equal(0, unknown.Sign())
}

func (s *LedgerServiceSuite) TestContributeRejections() {
	ctx := context.Background()

	s.Run("below minimum", func() {
		_, err := s.service.Contribute(ctx, donor1, domain.MilliEther(4))
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("over the per-call cap applies nothing", func() {
		s.contribute(donor1, 100)
		// 100 + 1820 = 1920 = 6 thresholds.
		_, err := s.service.Contribute(ctx, donor2, domain.MilliEther(1820))
		s.True(dErrors.HasCode(err, dErrors.CodeLimitExceeded))

		overview, err := s.service.Overview(ctx)
		s.Require().NoError(err)
		s.Equal(0, overview.Pool.Cmp(domain.MilliEther(100)))
		s.Equal(uint64(0), overview.UnitCount)

		b, err := s.service.GetDonorBalance(ctx, donor2)
		s.Require().NoError(err)
		s.Equal(0, b.Sign())
	})

	s.Run("exactly the maximum contribution is accepted", func() {
		overview, err := s.service.Overview(ctx)
		s.Require().NoError(err)
		c, err := s.service.Contribute(ctx, donor2, overview.MaxContribution)
		s.Require().NoError(err)
		s.Len(c.Minted, 5)
		s.Equal(0, c.Pool.Cmp(new(big.Int).Sub(domain.MilliEther(320), big.NewInt(1))))
	})
}

func (s *LedgerServiceSuite) TestContributeEmitsEvents() {
	s.contribute(donor1, 700)

	events, err := s.events.ListRecent(context.Background(), 10)
	s.Require().NoError(err)
	s.Require().Len(events, 3)
	s.Equal(audit.KindUnitIssued, events[0].Kind)
	s.Equal(domain.UnitID(0), *events[0].UnitID)
	s.Equal(audit.KindUnitIssued, events[1].Kind)
	s.Equal(domain.UnitID(1), *events[1].UnitID)
	s.Equal(audit.KindContribution, events[2].Kind)
	s.Equal("0", events[2].Attributes["first_unit_id"])
	s.Equal(domain.MilliEther(700).String(), events[2].Attributes["amount_wei"])
}

func (s *LedgerServiceSuite) setupAssignable() {
	s.register(team, registrymodels.RoleTransporter, "FIJI")
	s.register(ground, registrymodels.RoleGroundHandler, "FIJI")
	s.register(recipient, registrymodels.RoleRecipient, "FIJI")
	s.contribute(donor1, 400)
}

func (s *LedgerServiceSuite) TestAssign() {
	s.setupAssignable()
	ctx := context.Background()
	custodians := models.Custodians{TransferTeam: team, GroundRelief: ground, Recipient: recipient}

	unit, err := s.service.Assign(ctx, authority, 0, custodians, " FIJI ")
	s.Require().NoError(err)
	s.Equal(custodians, unit.Custodians)
	s.Equal("FIJI", unit.Location)

	got, err := s.service.GetCustodians(ctx, 0)
	s.Require().NoError(err)
	s.Equal(custodians, got)

	unassigned, err := s.service.ListUnassigned(ctx)
	s.Require().NoError(err)
	s.Empty(unassigned)

	_, err = s.service.Assign(ctx, authority, 0, custodians, "FIJI")
	s.True(dErrors.HasCode(err, dErrors.CodeAlreadyAssigned))

	events, err := s.events.ListByUnit(ctx, 0)
	s.Require().NoError(err)
	s.Equal(audit.KindUnitAssigned, events[len(events)-1].Kind)
}

// TestAssignCheckOrder walks the assignment rules in the order they are evaluated.
func (s *LedgerServiceSuite) TestAssignCheckOrder() {
	s.setupAssignable()
	ctx := context.Background()
	good := models.Custodians{TransferTeam: team, GroundRelief: ground, Recipient: recipient}

	cases := []struct {
		name       string
		actor      common.Address
		unit       domain.UnitID
		custodians models.Custodians
		location   string
		code       dErrors.Code
		message    string
	}{
		{"non-authority", stranger, 99, models.Custodians{}, "", dErrors.CodeUnauthorized, ""},
		{"missing unit", authority, 99, models.Custodians{}, "", dErrors.CodeNotFound, ""},
		{"transporter role", authority, 0, models.Custodians{TransferTeam: ground, GroundRelief: ground, Recipient: recipient}, "FIJI", dErrors.CodeInvalidRole, "transfer team"},
		{"ground handler role", authority, 0, models.Custodians{TransferTeam: team, GroundRelief: team, Recipient: recipient}, "FIJI", dErrors.CodeInvalidRole, "ground relief"},
		{"recipient role", authority, 0, models.Custodians{TransferTeam: team, GroundRelief: ground, Recipient: stranger}, "FIJI", dErrors.CodeInvalidRole, "recipient"},
		{"location mismatch", authority, 0, good, "SAMOA", dErrors.CodeLocationMismatch, ""},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			_, err := s.service.Assign(ctx, tc.actor, tc.unit, tc.custodians, tc.location)
			s.Require().Error(err)
			s.Equal(tc.code, dErrors.CodeOf(err))
			if tc.message != "" {
				s.Contains(dErrors.MessageOf(err), tc.message)
			}
		})
	}

	unit, err := s.service.GetUnit(ctx, 0)
	s.Require().NoError(err)
	s.False(unit.IsAssigned(), "failed assignments leave the unit untouched")
}

// TestConcurrentAssignHasOneWinner races assignments of the same unit.
func (s *LedgerServiceSuite) TestConcurrentAssignHasOneWinner() {
	s.setupAssignable()
	custodians := models.Custodians{TransferTeam: team, GroundRelief: ground, Recipient: recipient}

	const workers = 16
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		wins     int
		assigned int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.service.Assign(context.Background(), authority, 0, custodians, "FIJI")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case dErrors.HasCode(err, dErrors.CodeAlreadyAssigned):
				assigned++
			}
		}()
	}
	wg.Wait()

	s.Equal(1, wins)
	s.Equal(workers-1, assigned)
}

func (s *LedgerServiceSuite) TestOverview() {
	s.contribute(donor1, 400)
	overview, err := s.service.Overview(context.Background())
	s.Require().NoError(err)
	s.Equal(uint64(1), overview.UnitCount)
	s.Equal(0, overview.Pool.Cmp(domain.MilliEther(80)))
	// 6 * 0.32 - 1 wei - 0.08
	want := new(big.Int).Sub(domain.MilliEther(1840), big.NewInt(1))
	s.Equal(0, overview.MaxContribution.Cmp(want))
}
