package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// BookingEvent is published on hold, confirm, cancel and expiry.
type BookingEvent struct {
	Type        string    `json:"type"`
	BookingID   int64     `json:"booking_id,omitempty"`
	UserID      int64     `json:"user_id,omitempty"`
	StaffID     int64     `json:"staff_id"`
	LocationID  int64     `json:"location_id,omitempty"`
	Category    string    `json:"category,omitempty"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	Status      string    `json:"status,omitempty"`
	CancelledBy string    `json:"cancelled_by,omitempty"`
}

// PaymentEvent is published on payment creation and every applied status
// transition. Keyed by payment id so downstream consumers deduplicate.
type PaymentEvent struct {
	Type      string `json:"type"`
	PaymentID int64  `json:"payment_id"`
	BookingID int64  `json:"booking_id,omitempty"`
	UserID    int64  `json:"user_id"`
	Amount    string `json:"amount"`
	Status    string `json:"status"`
}

type Producer struct {
	writer *kafka.Writer
}

func NewProducer(brokers []string) *Producer {
	return &Producer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Balancer:     &kafka.LeastBytes{},
			BatchTimeout: 50 * time.Millisecond,
			RequiredAcks: kafka.RequireOne,
		},
	}
}

func (p *Producer) Publish(ctx context.Context, topic, key string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	return p.writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: data,
		Time:  time.Now(),
	})
}

func (p *Producer) Close() error {
	if p.writer != nil {
		return p.writer.Close()
	}
	return nil
}
