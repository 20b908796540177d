//go:generate mockgen -source ./events.go -destination=./mocks/events.go -package=mock_events
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/rotacerta/ekspedisi/internal/logger"
)

const TypeStatusChanged = "shipment.status_changed"

// StatusChanged is published after a shipment status change commits.
type StatusChanged struct {
	EventID      string    `json:"event_id"`
	Type         string    `json:"type"`
	ShipmentID   uint      `json:"shipment_id"`
	TrackingCode string    `json:"tracking_code"`
	From         string    `json:"from"`
	To           string    `json:"to"`
	Location     string    `json:"location,omitempty"`
	Description  string    `json:"description,omitempty"`
	ChangedBy    uint      `json:"changed_by"`
	OccurredAt   time.Time `json:"occurred_at"`
}

type Publisher interface {
	PublishStatusChanged(ctx context.Context, evt StatusChanged) error
	Close() error
}

type KafkaPublisher struct {
	log    *logger.Logger
	writer *kafka.Writer
}

// NewPublisher returns a kafka backed publisher, or a no-op one when no
// brokers are configured.
func NewPublisher(log *logger.Logger, brokers []string, topic string) Publisher {
	if len(brokers) == 0 {
		log.Info("Kafka brokers not configured, shipment events disabled")
		return Nop{}
	}
	return &KafkaPublisher{
		log: log.With("service", "KafkaPublisher", "topic", topic),
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			BatchTimeout: 10 * time.Millisecond,
			WriteTimeout: 5 * time.Second,
		},
	}
}

func (p *KafkaPublisher) PublishStatusChanged(ctx context.Context, evt StatusChanged) error {
	msg, err := Message(evt)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish %s for %s: %w", evt.Type, evt.TrackingCode, err)
	}
	p.log.Debug("Published shipment event", "tracking_code", evt.TrackingCode, "to", evt.To)
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// Message encodes evt keyed by tracking code, so every event of a shipment
// lands on the same partition in order.
func Message(evt StatusChanged) (kafka.Message, error) {
	if evt.EventID == "" {
		evt.EventID = uuid.NewString()
	}
	if evt.Type == "" {
		evt.Type = TypeStatusChanged
	}
	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = time.Now().UTC()
	}
	value, err := json.Marshal(evt)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("encode event: %w", err)
	}
	return kafka.Message{
		Key:   []byte(evt.TrackingCode),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(evt.Type)},
			{Key: "event_id", Value: []byte(evt.EventID)},
		},
		Time: evt.OccurredAt,
	}, nil
}

type Nop struct{}

func (Nop) PublishStatusChanged(context.Context, StatusChanged) error { return nil }
func (Nop) Close() error                                          { return nil }
