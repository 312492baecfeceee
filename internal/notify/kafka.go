package notify

import (
	"context"
	"fmt"

	"github.com/segmentio/kafka-go"
)

// MessageWriter is the part of *kafka.Writer the publisher uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes notifications to one topic, keyed by module/id so
// that every entity's notifications land on one partition.
type KafkaPublisher struct {
	writer MessageWriter
	topic  string
}

// NewKafkaPublisher returns a publisher writing to topic on brokers.
func NewKafkaPublisher(brokers []string, topic string) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka publisher requires at least one broker")
	}
	if topic == "" {
		return nil, fmt.Errorf("kafka publisher requires a topic")
	}
	return NewKafkaPublisherWithWriter(&kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		RequiredAcks:           kafka.RequireAll,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}, topic), nil
}

// NewKafkaPublisherWithWriter wraps an existing writer.
func NewKafkaPublisherWithWriter(w MessageWriter, topic string) *KafkaPublisher {
	return &KafkaPublisher{writer: w, topic: topic}
}

// Publish implements Publisher.
func (p *KafkaPublisher) Publish(ctx context.Context, n Notification) error {
	payload, err := Encode(n)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	msg := kafka.Message{
		Topic: p.topic,
		Key:   []byte(n.Key()),
		Value: payload,
		Time:  n.OccurredAt.UTC(),
		Headers: []kafka.Header{
			{Key: "kind", Value: []byte(n.Kind)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish %s for %s: %w", n.Kind, n.Key(), err)
	}
	return nil
}

// Close flushes and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
