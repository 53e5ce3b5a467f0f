package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "PENDING"
	PaymentStatusAuthorized PaymentStatus = "AUTHORIZED"
	PaymentStatusProcessing PaymentStatus = "PROCESSING"
	PaymentStatusCompleted  PaymentStatus = "COMPLETED"
	PaymentStatusFailed     PaymentStatus = "FAILED"
	PaymentStatusCancelled  PaymentStatus = "CANCELLED"
	PaymentStatusRefunded   PaymentStatus = "REFUNDED"
)

// statusPriority orders payment statuses for webhook reconciliation. An
// incoming notification may only move a payment to a status of equal or
// higher priority, which makes redelivered and out-of-order notifications
// safe to apply: a stale PENDING can never downgrade a COMPLETED record.
var statusPriority = map[PaymentStatus]int{
	// Refunded outranks everything: no notification may reopen it.
	PaymentStatusRefunded:   6,
	PaymentStatusCompleted:  5,
	PaymentStatusAuthorized: 4,
	PaymentStatusProcessing: 3,
	PaymentStatusPending:    1,
	PaymentStatusFailed:     0,
	PaymentStatusCancelled:  0,
}

// Priority returns the reconciliation rank of a status. Unknown statuses
// rank lowest so they can never overwrite anything.
func (s PaymentStatus) Priority() int {
	p, ok := statusPriority[s]
	if !ok {
		return -1
	}
	return p
}

// Settled reports whether money has actually moved for this status.
func (s PaymentStatus) Settled() bool {
	return s == PaymentStatusCompleted || s == PaymentStatusRefunded
}

// Resolved reports whether the payment reached a terminal local state.
func (s PaymentStatus) Resolved() bool {
	switch s {
	case PaymentStatusCompleted, PaymentStatusFailed, PaymentStatusCancelled, PaymentStatusRefunded:
		return true
	}
	return false
}

// PaymentItem is a purchased line item carried on a payment. Items flagged
// non-refundable are excluded from cancellation refunds.
type PaymentItem struct {
	Name       string          `json:"name"`
	Amount     decimal.Decimal `json:"amount"`
	Refundable bool            `json:"refundable"`
}

type Payment struct {
	ID     int64
	UserID int64
	// BookingID is nil for standalone purchases.
	BookingID       *int64
	LessonPrice     decimal.Decimal
	AdminFee        decimal.Decimal
	ProductsPrice   decimal.Decimal
	DiscountAmount  decimal.Decimal
	VoucherDiscount decimal.Decimal
	CreditUsed      decimal.Decimal
	// CreditProvisional marks credit consumed before the gateway leg
	// resolved. Provisional credit is returned on cancellation.
	CreditProvisional bool
	TotalAmount       decimal.Decimal
	Status            PaymentStatus
	ExternalTxID      string
	Items             []PaymentItem
	// Superseded payments are kept for history; at most one active payment
	// exists per booking.
	Superseded bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// ComputeTotal returns lesson + fee + products − discount − voucher.
func (p *Payment) ComputeTotal() decimal.Decimal {
	return p.LessonPrice.
		Add(p.AdminFee).
		Add(p.ProductsPrice).
		Sub(p.DiscountAmount).
		Sub(p.VoucherDiscount)
}

// GatewayAmount is the remainder to collect externally after credit.
func (p *Payment) GatewayAmount() decimal.Decimal {
	return p.TotalAmount.Sub(p.CreditUsed)
}

// WebhookNotification is one asynchronous gateway delivery. Deliveries are
// at-least-once and may arrive out of order or duplicated.
type WebhookNotification struct {
	TransactionID string    `json:"transaction_id"`
	State         string    `json:"state"`
	Timestamp     time.Time `json:"timestamp"`
}
