package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	audit "aidchain/pkg/platform/audit"
)

// Envelope is the JSON record written to the topic.
type Envelope struct {
	ID         string            `json:"id"`
	Seq        int64             `json:"seq"`
	Kind       string            `json:"kind"`
	Category   string            `json:"category"`
	UnitID     *uint64           `json:"unit_id,omitempty"`
	Actor      string            `json:"actor,omitempty"`
	Subject    string            `json:"subject"`
	Attributes map[string]string `json:"attributes,omitempty"`
	RequestID  string            `json:"request_id,omitempty"`
	Timestamp  string            `json:"timestamp"`
}

// NewEnvelope converts an outbox event to its wire form.
func NewEnvelope(event audit.Event) Envelope {
	env := Envelope{
		ID:         event.ID.String(),
		Seq:        event.Seq,
		Kind:       string(event.Kind),
		Category:   string(event.Kind.Category()),
		Actor:      event.Actor,
		Subject:    event.Subject,
		Attributes: event.Attributes,
		RequestID:  event.RequestID,
		Timestamp:  event.Timestamp.UTC().Format(time.RFC3339Nano),
	}
	if event.UnitID != nil {
		u := uint64(*event.UnitID)
		env.UnitID = &u
	}
	return env
}

// Sink publishes outbox events to a Kafka topic.
type Sink struct {
	client *kgo.Client
	topic  string
}

// NewSink connects to the brokers. Records are keyed by unit id so a unit's
// history lands on a single partition.
func NewSink(brokers []string, topic string) (*Sink, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka sink requires at least one broker")
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return &Sink{client: client, topic: topic}, nil
}

// EnsureTopic creates the topic if it does not exist.
func (s *Sink) EnsureTopic(ctx context.Context, partitions int32, replication int16) error {
	adm := kadm.NewClient(s.client)
	resp, err := adm.CreateTopics(ctx, partitions, replication, nil, s.topic)
	if err != nil {
		return fmt.Errorf("create topic: %w", err)
	}
	for _, t := range resp {
		if t.Err != nil && !errors.Is(t.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("create topic %s: %w", t.Topic, t.Err)
		}
	}
	return nil
}

// Publish writes one event and waits for the broker acknowledgement.
func (s *Sink) Publish(ctx context.Context, event audit.Event) error {
	payload, err := json.Marshal(NewEnvelope(event))
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	key := string(event.Kind)
	if event.UnitID != nil {
		key = strconv.FormatUint(uint64(*event.UnitID), 10)
	}
	record := &kgo.Record{
		Key:   []byte(key),
		Value: payload,
		Headers: []kgo.RecordHeader{
			{Key: "kind", Value: []byte(event.Kind)},
		},
	}
	if err := s.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce event %s: %w", event.ID, err)
	}
	return nil
}

// Close flushes and closes the client.
func (s *Sink) Close() {
	s.client.Close()
}
