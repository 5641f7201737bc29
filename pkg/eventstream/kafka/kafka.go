// Package kafka provides a Kafka-backed eventstream publisher using
// segmentio's kafka-go writer.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/anatolykoptev/MemOS/pkg/eventstream"
)

// DefaultTopic is the topic node events are written to when none is set.
const DefaultTopic = "memos.node-events"

// Config holds configuration for the Kafka publisher.
type Config struct {
	// Brokers is the list of bootstrap broker addresses (host:port).
	Brokers []string

	// Topic is the topic node events are written to. Defaults to
	// DefaultTopic.
	Topic string
}

// Publisher implements eventstream.Publisher on top of a kafka.Writer.
type Publisher struct {
	writer *kafkago.Writer
	logger *zap.Logger
}

// NewPublisher creates a Kafka publisher. The writer is lazy; no
// connection is made until the first publish.
func NewPublisher(cfg Config, logger *zap.Logger) (*Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("at least one broker is required")
	}

	topic := cfg.Topic
	if topic == "" {
		topic = DefaultTopic
	}

	writer := &kafkago.Writer{
		Addr:     kafkago.TCP(cfg.Brokers...),
		Topic:    topic,
		Balancer: &kafkago.LeastBytes{},
	}

	return &Publisher{
		writer: writer,
		logger: logger,
	}, nil
}

// PublishNodeEvent serializes the event to JSON and writes it keyed by
// node id so events for one node land on one partition in order.
func (p *Publisher) PublishNodeEvent(ctx context.Context, event *eventstream.NodeEventV1) error {
	if event == nil {
		return eventstream.ErrNilNodeEvent
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling node event: %w", err)
	}

	msg := kafkago.Message{
		Key:   []byte(event.NodeID),
		Value: payload,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("writing node event: %w", err)
	}

	p.logger.Debug("published node event",
		zap.String("event_type", event.EventType),
		zap.String("node_id", event.NodeID))

	return nil
}

// Close flushes and closes the underlying writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
