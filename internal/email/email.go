package email

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/avdeev-dev/slotbook/internal/kafka"
)

// Sender turns booking and payment events into customer notifications.
// Delivery is a stub: the real mail provider sits behind this type.
type Sender struct{}

func NewSender() *Sender {
	return &Sender{}
}

func (s *Sender) SendBookingEvent(ctx context.Context, event kafka.BookingEvent) error {
	fmt.Printf("notify user %d: %s for booking %d with staff %d (%s)\n",
		event.UserID, event.Type, event.BookingID, event.StaffID, event.Status)
	return nil
}

func (s *Sender) SendPaymentEvent(ctx context.Context, event kafka.PaymentEvent) error {
	fmt.Printf("notify user %d: %s for payment %d amount %s (%s)\n",
		event.UserID, event.Type, event.PaymentID, event.Amount, event.Status)
	return nil
}

// HandleMessage decodes one raw consumed event. Booking events carry a
// booking_id, payment events a payment_id; anything else is dropped with
// a warning.
func (s *Sender) HandleMessage(ctx context.Context, value []byte) error {
	var head struct {
		BookingID int64 `json:"booking_id"`
		PaymentID int64 `json:"payment_id"`
	}
	if err := json.Unmarshal(value, &head); err != nil {
		slog.Warn("undecodable notification event", "error", err)
		return nil
	}

	if head.PaymentID != 0 {
		var event kafka.PaymentEvent
		if err := json.Unmarshal(value, &event); err != nil {
			return err
		}
		return s.SendPaymentEvent(ctx, event)
	}

	var event kafka.BookingEvent
	if err := json.Unmarshal(value, &event); err != nil {
		return err
	}
	return s.SendBookingEvent(ctx, event)
}
