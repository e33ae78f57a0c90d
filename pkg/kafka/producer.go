package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/POI-Search-Evaluation-Engine/pkg/config"
	"github.com/segmentio/kafka-go"
)

// Message headers set on every published event.
const (
	HeaderEventType   = "event-type"
	HeaderContentType = "content-type"
)

// Event is the unit of data published to Kafka. Key is used for partition
// hashing, Type travels as the event-type header so consumers can route
// without decoding, and Value is JSON-serialised.
type Event struct {
	Key   string
	Type  string
	Value any
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes JSON-encoded events to a Kafka topic.
type Producer struct {
	writer messageWriter
	topic  string
	logger *slog.Logger
}

// NewProducer creates a Producer for the given topic.
func NewProducer(cfg config.KafkaConfig, topic string) *Producer {
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		MaxAttempts:  3,
		RequiredAcks: kafka.RequireAll,

		AllowAutoTopicCreation: true,
	}
	return newProducer(w, topic)
}

func newProducer(w messageWriter, topic string) *Producer {
	return &Producer{
		writer: w,
		topic:  topic,
		logger: slog.Default().With("component", "kafka-producer", "topic", topic),
	}
}

func encode(event Event) (kafka.Message, error) {
	value, err := json.Marshal(event.Value)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshaling %s event: %w", event.Type, err)
	}
	msg := kafka.Message{
		Key:     []byte(event.Key),
		Value:   value,
		Headers: []kafka.Header{{Key: HeaderContentType, Value: []byte("application/json")}},
	}
	if event.Type != "" {
		msg.Headers = append(msg.Headers, kafka.Header{Key: HeaderEventType, Value: []byte(event.Type)})
	}
	return msg, nil
}

// Publish writes a single event synchronously.
func (p *Producer) Publish(ctx context.Context, event Event) error {
	msg, err := encode(event)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("failed to publish event", "key", event.Key, "type", event.Type, "error", err)
		return fmt.Errorf("publishing %s event to %s: %w", event.Type, p.topic, err)
	}
	p.logger.Debug("event published", "key", event.Key, "type", event.Type, "value_size", len(msg.Value))
	return nil
}

// PublishBatch writes events in a single call. An event that cannot be
// encoded fails the whole batch before anything is written.
func (p *Producer) PublishBatch(ctx context.Context, events []Event) error {
	if len(events) == 0 {
		return nil
	}
	messages := make([]kafka.Message, 0, len(events))
	for _, event := range events {
		msg, err := encode(event)
		if err != nil {
			return err
		}
		messages = append(messages, msg)
	}
	if err := p.writer.WriteMessages(ctx, messages...); err != nil {
		p.logger.Error("failed to publish batch", "count", len(messages), "error", err)
		return fmt.Errorf("publishing batch of %d to %s: %w", len(messages), p.topic, err)
	}
	p.logger.Debug("batch published", "count", len(messages))
	return nil
}

// Close flushes pending writes and closes the underlying Kafka writer.
func (p *Producer) Close() error {
	return p.writer.Close()
}
