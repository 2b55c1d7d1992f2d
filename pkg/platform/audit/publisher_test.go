package audit_test

//go:generate mockgen -source=models.go -destination=mocks/mocks.go -package=mocks Store

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	audit "aidchain/pkg/platform/audit"
	"aidchain/pkg/platform/audit/mocks"
	"aidchain/pkg/requestcontext"
)

type PublisherSuite struct {
	suite.Suite
	ctrl      *gomock.Controller
	store     *mocks.MockStore
	publisher *audit.Publisher
}

func TestPublisherSuite(t *testing.T) {
	suite.Run(t, new(PublisherSuite))
}

func (s *PublisherSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.store = mocks.NewMockStore(s.ctrl)
	s.publisher = audit.NewPublisher(s.store,
		audit.WithPublisherLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
}

// TestEmitFillsDefaults verifies ID, timestamp and request id are taken from context when unset.
func (s *PublisherSuite) TestEmitFillsDefaults() {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	ctx := requestcontext.WithTime(context.Background(), now)
	ctx = requestcontext.WithRequestID(ctx, "req-1")

	s.store.EXPECT().Append(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, e audit.Event) error {
			s.NotEqual(uuid.Nil, e.ID)
			s.Equal(now, e.Timestamp)
			s.Equal("req-1", e.RequestID)
			s.Equal(audit.KindContribution, e.Kind)
			return nil
		})

	err := s.publisher.Emit(ctx, audit.Event{Kind: audit.KindContribution, Subject: "0xabc"})
	s.Require().NoError(err)
}

// TestEmitFailsClosed verifies a store failure is surfaced to the caller.
func (s *PublisherSuite) TestEmitFailsClosed() {
	storeErr := errors.New("disk full")
	s.store.EXPECT().Append(gomock.Any(), gomock.Any()).Return(storeErr)

	err := s.publisher.Emit(context.Background(), audit.Event{Kind: audit.KindUnitIssued})
	s.Require().ErrorIs(err, storeErr)
}

func (s *PublisherSuite) TestEmitRejectsUnknownKind() {
	err := s.publisher.Emit(context.Background(), audit.Event{Kind: "bogus"})
	s.Require().Error(err)
	s.Contains(err.Error(), "unknown kind")
}

func (s *PublisherSuite) TestKindCategories() {
	s.Equal(audit.CategoryGovernance, audit.KindRoleRegistered.Category())
	s.Equal(audit.CategoryGovernance, audit.KindUnitAssigned.Category())
	s.Equal(audit.CategoryFunding, audit.KindContribution.Category())
	s.Equal(audit.CategoryCustody, audit.KindCustodyChanged.Category())
}
