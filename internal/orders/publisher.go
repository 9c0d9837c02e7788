package orders

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ar363/restaurant-live-ordering/internal/domain"
	"github.com/segmentio/kafka-go"
)

// PlacedEvent announces a committed order to downstream consumers, such as
// the kitchen display feed. Publishing is best-effort; the order itself is
// already persisted by the order service.
type PlacedEvent struct {
	OrderID             string               `json:"order_id"`
	AccountID           string               `json:"account_id"`
	TableNumber         int                  `json:"table_number"`
	Lines               []Line               `json:"lines"`
	TotalAmount         float64              `json:"total_amount"`
	PaymentMethod       domain.PaymentMethod `json:"payment_method"`
	SpecialInstructions string               `json:"special_instructions"`
	PlacedAt            time.Time            `json:"placed_at"`
}

// EventPublisher pushes order-placed events to a message broker.
type EventPublisher interface {
	PublishOrderPlaced(ctx context.Context, event *PlacedEvent) error
}

type KafkaPublisher struct {
	writer *kafka.Writer
}

func NewKafkaPublisher(brokers ...string) *KafkaPublisher {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  "orders-placed",
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
	}
	return &KafkaPublisher{writer: w}
}

func (p *KafkaPublisher) PublishOrderPlaced(ctx context.Context, event *PlacedEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal order event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(event.AccountID), // per-account ordering
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte("order_placed")},
		},
	}

	return p.writer.WriteMessages(ctx, msg)
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
