// Package stream publishes lifecycle events to downstream consumers.
package stream

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"

	authgrid "github.com/authgrid/authgrid"
)

// TopicSignup carries account provisioning events, keyed by user id so
// per-user ordering is preserved across partitions.
const TopicSignup = "auth.user.signup"

// KafkaPublisher implements authgrid.EventPublisher over a kafka-go
// writer.
type KafkaPublisher struct {
	writer *kafka.Writer
}

// NewKafkaPublisher builds a publisher for the signup topic.
func NewKafkaPublisher(brokers []string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        TopicSignup,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
		},
	}
}

// PublishSignup encodes the event as JSON and writes it keyed by user
// id.
func (p *KafkaPublisher) PublishSignup(ctx context.Context, ev authgrid.SignupEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.UserID),
		Value: payload,
	})
}

// Close flushes and closes the underlying writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// NoOpPublisher discards events; used in tests and single-service
// deployments.
type NoOpPublisher struct{}

func (NoOpPublisher) PublishSignup(context.Context, authgrid.SignupEvent) error { return nil }
