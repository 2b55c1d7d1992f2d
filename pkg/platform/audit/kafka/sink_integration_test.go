//go:build integration

package kafka_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	"aidchain/pkg/domain"
	audit "aidchain/pkg/platform/audit"
	"aidchain/pkg/platform/audit/kafka"
	"aidchain/pkg/testutil/containers"
)

type SinkSuite struct {
	suite.Suite
	redpanda *containers.RedpandaContainer
}

func TestSinkSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(SinkSuite))
}

func (s *SinkSuite) SetupSuite() {
	s.redpanda = containers.GetManager().GetRedpanda(s.T())
}

// TestPublishKeysByUnit verifies events are produced as JSON envelopes keyed by unit id.
func (s *SinkSuite) TestPublishKeysByUnit() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	topic := "aid-events-" + uuid.NewString()

	sink, err := kafka.NewSink(s.redpanda.Brokers, topic)
	s.Require().NoError(err)
	defer sink.Close()
	s.Require().NoError(sink.EnsureTopic(ctx, 1, 1))
	s.Require().NoError(sink.EnsureTopic(ctx, 1, 1), "second create is a no-op")

	unit := domain.UnitID(7)
	event := audit.Event{
		ID:         uuid.New(),
		Seq:        1,
		Kind:       audit.KindCustodyChanged,
		UnitID:     &unit,
		Subject:    "7",
		Attributes: map[string]string{"status": "Delivered"},
		Timestamp:  time.Now(),
	}
	s.Require().NoError(sink.Publish(ctx, event))

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(s.redpanda.Brokers...),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	s.Require().NoError(err)
	defer consumer.Close()

	fetches := consumer.PollFetches(ctx)
	s.Require().Empty(fetches.Errors())
	records := fetches.Records()
	s.Require().Len(records, 1)
	s.Equal("7", string(records[0].Key))

	var env kafka.Envelope
	s.Require().NoError(json.Unmarshal(records[0].Value, &env))
	s.Equal(event.ID.String(), env.ID)
	s.Equal("custody_changed", env.Kind)
	s.Equal("custody", env.Category)
	s.Equal("Delivered", env.Attributes["status"])
}
