package notification

import (
	"context"
	"encoding/json"

	"github.com/pinksky/orderflow/internal/notification/domain"
	"github.com/pinksky/orderflow/internal/providers/email"
	"github.com/segmentio/kafka-go"
)

// EmailSink renders the template named after the event type.
type EmailSink struct {
	provider email.Provider
}

func NewEmailSink(provider email.Provider) *EmailSink {
	return &EmailSink{provider: provider}
}

func (s *EmailSink) Name() string { return "email" }

func (s *EmailSink) Deliver(ctx context.Context, event domain.Event) error {
	data := make(map[string]any, len(event.Payload)+1)
	for k, v := range event.Payload {
		data[k] = v
	}
	if event.Recipient.Name != "" {
		data["recipient_name"] = event.Recipient.Name
	}
	return s.provider.SendTemplate(ctx, []string{event.Recipient.Email}, string(event.Type), data)
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes the event envelope keyed by recipient email.
type KafkaSink struct {
	writer messageWriter
}

func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
	}
}

func NewKafkaSink(writer messageWriter) *KafkaSink {
	return &KafkaSink{writer: writer}
}

func (s *KafkaSink) Name() string { return "kafka" }

func (s *KafkaSink) Deliver(ctx context.Context, event domain.Event) error {
	value, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return s.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.Recipient.Email),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type)},
		},
	})
}

func (s *KafkaSink) Close() error {
	return s.writer.Close()
}
