// Package kafka publishes mutation events to a Kafka topic via kafka-go.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"github.com/loambase/loam/pkg/eventstream"
)

// DefaultTopic is the topic mutation events are published to.
const DefaultTopic = "loam.memory.mutations"

// Config holds the Kafka publisher settings.
type Config struct {
	// Brokers is the list of bootstrap broker addresses.
	Brokers []string

	// Topic overrides DefaultTopic when set.
	Topic string
}

// Publisher writes mutation events to Kafka, keyed by memory id so all
// events for one item land in the same partition in order.
type Publisher struct {
	writer *kafka.Writer
}

// NewPublisher creates a Kafka-backed mutation event publisher.
func NewPublisher(cfg Config) (*Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka publisher requires at least one broker")
	}

	topic := cfg.Topic
	if topic == "" {
		topic = DefaultTopic
	}

	return &Publisher{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(cfg.Brokers...),
			Topic:    topic,
			Balancer: &kafka.Hash{},
		},
	}, nil
}

// PublishMutation serializes the event to JSON and writes it to the topic.
func (p *Publisher) PublishMutation(ctx context.Context, event *eventstream.MutationEvent) error {
	if event == nil {
		return eventstream.ErrNilMutationEvent
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling mutation event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(event.MemoryID),
		Value: payload,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("writing mutation event: %w", err)
	}

	return nil
}

// Close flushes and closes the underlying writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}

var _ eventstream.Publisher = (*Publisher)(nil)
