package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"issuance/pkg/platform/events"
)

// Producer is the subset of *kgo.Client the sink uses.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// Sink publishes events to "<prefix>.<category>", keyed by the event's
// primary key so events for one aggregate stay ordered within a partition.
type Sink struct {
	producer Producer
	prefix   string
}

func NewSink(producer Producer, topicPrefix string) *Sink {
	return &Sink{producer: producer, prefix: topicPrefix}
}

// Topic returns the topic events of category are published to.
func (s *Sink) Topic(category events.Category) string {
	return s.prefix + "." + string(category)
}

// Topics lists every category topic, for EnsureTopics.
func (s *Sink) Topics() []string {
	return []string{
		s.Topic(events.CategoryCompliance),
		s.Topic(events.CategorySettlement),
		s.Topic(events.CategoryOperations),
	}
}

type message struct {
	ID        string         `json:"id"`
	Kind      string         `json:"kind"`
	Category  string         `json:"category"`
	Key       string         `json:"key"`
	Payload   map[string]any `json:"payload,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	RequestID string         `json:"request_id,omitempty"`
	Principal string         `json:"principal,omitempty"`
}

func (s *Sink) Write(ctx context.Context, batch []events.Event) error {
	records := make([]*kgo.Record, 0, len(batch))
	for _, e := range batch {
		value, err := json.Marshal(message{
			ID:        e.ID.String(),
			Kind:      string(e.Kind),
			Category:  string(e.Category()),
			Key:       e.Key,
			Payload:   e.Payload,
			Timestamp: e.Timestamp,
			RequestID: e.RequestID,
			Principal: e.Principal,
		})
		if err != nil {
			return fmt.Errorf("encode event %s: %w", e.ID, err)
		}
		records = append(records, &kgo.Record{
			Topic:     s.Topic(e.Category()),
			Key:       []byte(e.Key),
			Value:     value,
			Timestamp: e.Timestamp,
			Headers: []kgo.RecordHeader{
				{Key: "kind", Value: []byte(e.Kind)},
			},
		})
	}
	if err := s.producer.ProduceSync(ctx, records...).FirstErr(); err != nil {
		return fmt.Errorf("produce events: %w", err)
	}
	return nil
}
