package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/avdeev-dev/slotbook/internal/domain"
	"github.com/avdeev-dev/slotbook/internal/gateway"
	"github.com/avdeev-dev/slotbook/internal/kafka"
	"github.com/avdeev-dev/slotbook/internal/repository"
	"github.com/avdeev-dev/slotbook/monitoring"
	"github.com/shopspring/decimal"
)

type PaymentUseCase interface {
	Create(ctx context.Context, input CreateInput) (*CreateResult, error)
	HandleNotification(ctx context.Context, n domain.WebhookNotification) error
	Cancel(ctx context.Context, input CancelInput) (*domain.Payment, error)
	GetByID(ctx context.Context, id int64) (*domain.Payment, error)
}

// PriceResolver supplies lesson price and admin fee for a category,
// duration and start time. Pricing rules live outside this core.
type PriceResolver interface {
	GetPrice(ctx context.Context, category string, durationMinutes int, startTime time.Time) (lessonPrice, adminFee decimal.Decimal, err error)
}

// PolicyResolver computes the cancellation charge percentage. It is
// authoritative: caller-supplied percentages are advisory only.
type PolicyResolver interface {
	GetChargePercentage(ctx context.Context, booking *domain.Booking, actorRole string, timeUntilStart time.Duration) (int, error)
}

// Gateway is the external payment provider.
type Gateway interface {
	CreateTransaction(ctx context.Context, req gateway.CreateTransactionRequest) (*gateway.Transaction, error)
	Capture(ctx context.Context, transactionID string) error
}

// CreditLedger is the per-user balance this service spends from and
// refunds into.
type CreditLedger interface {
	Balance(ctx context.Context, userID int64) (decimal.Decimal, error)
	Adjust(ctx context.Context, userID int64, amount decimal.Decimal, txType domain.CreditTransactionType, refID int64, refType string) (*domain.CreditTransaction, error)
}

type Producer interface {
	Publish(ctx context.Context, topic, key string, value interface{}) error
}

type CreateInput struct {
	UserID    int64
	BookingID *int64
	// CategoryCode, DurationMinutes and StartTime feed the price resolver.
	// When LessonPrice is set explicitly the resolver is skipped.
	CategoryCode    string
	DurationMinutes int
	StartTime       time.Time
	LessonPrice     decimal.Decimal
	AdminFee        decimal.Decimal
	DiscountAmount  decimal.Decimal
	VoucherDiscount decimal.Decimal
	Items           []domain.PaymentItem
}

type CreateResult struct {
	Payment *domain.Payment
	// PaymentURL is empty when credit covered the whole amount and no
	// gateway transaction was needed.
	PaymentURL string
}

type CancelInput struct {
	PaymentID int64
	ActorRole string
	Reason    string
	// RequestedChargePct is what the caller believes the charge should
	// be. It is logged when it disagrees with policy, never trusted.
	RequestedChargePct *int
}

type Service struct {
	payments repository.PaymentRepository
	bookings repository.BookingRepository
	ledger   CreditLedger
	gateway  Gateway
	policy   PolicyResolver
	pricing  PriceResolver
	producer Producer
	topic    string

	currency  string
	returnURL string
	cancelURL string
}

type Option func(*Service)

func WithReturnURLs(returnURL, cancelURL string) Option {
	return func(s *Service) {
		s.returnURL = returnURL
		s.cancelURL = cancelURL
	}
}

func WithProducer(producer Producer, topic string) Option {
	return func(s *Service) {
		s.producer = producer
		s.topic = topic
	}
}

func WithPriceResolver(pricing PriceResolver) Option {
	return func(s *Service) {
		s.pricing = pricing
	}
}

func NewService(payments repository.PaymentRepository, bookings repository.BookingRepository, ledger CreditLedger, gw Gateway, policy PolicyResolver, currency string, opts ...Option) *Service {
	s := &Service{
		payments: payments,
		bookings: bookings,
		ledger:   ledger,
		gateway:  gw,
		policy:   policy,
		currency: currency,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create opens a payment for a booking. Available credit is consumed
// first and recorded in the ledger before any gateway call; only the
// remainder goes to the gateway. If credit covers everything the payment
// completes immediately and the gateway is never involved.
func (s *Service) Create(ctx context.Context, input CreateInput) (*CreateResult, error) {
	if s.pricing != nil && input.LessonPrice.IsZero() && input.CategoryCode != "" {
		lesson, fee, err := s.pricing.GetPrice(ctx, input.CategoryCode, input.DurationMinutes, input.StartTime)
		if err != nil {
			return nil, fmt.Errorf("resolve price for category %s: %w", input.CategoryCode, err)
		}
		input.LessonPrice, input.AdminFee = lesson, fee
	}

	productsPrice := decimal.Zero
	for _, item := range input.Items {
		productsPrice = productsPrice.Add(item.Amount)
	}

	p := &domain.Payment{
		UserID:          input.UserID,
		BookingID:       input.BookingID,
		LessonPrice:     input.LessonPrice,
		AdminFee:        input.AdminFee,
		ProductsPrice:   productsPrice,
		DiscountAmount:  input.DiscountAmount,
		VoucherDiscount: input.VoucherDiscount,
		Items:           input.Items,
		Status:          domain.PaymentStatusPending,
	}
	p.TotalAmount = p.ComputeTotal()
	if p.TotalAmount.IsNegative() {
		return nil, fmt.Errorf("%w: computed payment total %s is negative", domain.ErrInvariantViolation, p.TotalAmount)
	}

	available, err := s.ledger.Balance(ctx, input.UserID)
	if err != nil {
		return nil, err
	}
	p.CreditUsed = decimal.Min(available, p.TotalAmount)
	remainder := p.TotalAmount.Sub(p.CreditUsed)
	// Credit is provisional only while a gateway leg is outstanding.
	p.CreditProvisional = p.CreditUsed.IsPositive() && remainder.IsPositive()

	if err := s.payments.Create(ctx, p); err != nil {
		return nil, err
	}

	if p.CreditUsed.IsPositive() {
		if _, err := s.ledger.Adjust(ctx, input.UserID, p.CreditUsed.Neg(), domain.CreditTxSpend, p.ID, "payment"); err != nil {
			// Ledger failures abort the transition: void the payment so
			// it cannot be collected against. The recorded spend is
			// cleared too, since no credit was actually taken.
			if cerr := s.payments.ClearCreditSpend(ctx, p.ID); cerr != nil {
				slog.Error("clearing credit spend after ledger failure", "payment_id", p.ID, "error", cerr)
			}
			if _, uerr := s.payments.UpdateStatus(ctx, p.ID, domain.PaymentStatusPending, domain.PaymentStatusCancelled); uerr != nil {
				slog.Error("voiding payment after ledger failure", "payment_id", p.ID, "error", uerr)
			}
			return nil, fmt.Errorf("spend credit for payment %d: %w", p.ID, err)
		}
	}

	if remainder.IsZero() {
		completed, err := s.payments.UpdateStatusByPriority(ctx, p.ID, domain.PaymentStatusCompleted, "")
		if err != nil {
			return nil, err
		}
		s.onCompleted(ctx, completed)
		return &CreateResult{Payment: completed}, nil
	}

	tx, err := s.gateway.CreateTransaction(ctx, gateway.CreateTransactionRequest{
		Amount:    remainder,
		Currency:  s.currency,
		Reference: strconv.FormatInt(p.ID, 10),
		LineItems: gatewayLineItems(input.Items, input.LessonPrice, input.AdminFee),
		ReturnURL: s.returnURL,
		CancelURL: s.cancelURL,
	})
	if err != nil {
		// Unknown outcome: the payment stays pending and the consumed
		// credit stays provisional. The caller may retry.
		return nil, err
	}

	if err := s.payments.SetExternalTxID(ctx, p.ID, tx.ID); err != nil {
		return nil, err
	}
	p.ExternalTxID = tx.ID

	s.publish(ctx, "payment_created", p)
	return &CreateResult{Payment: p, PaymentURL: tx.PaymentURL}, nil
}

// HandleNotification reconciles one gateway webhook delivery. Deliveries
// are at-least-once, possibly out of order: the status-priority rule makes
// reapplication and reordering harmless, so this always acknowledges.
func (s *Service) HandleNotification(ctx context.Context, n domain.WebhookNotification) error {
	status, ok := mapGatewayState(n.State)
	if !ok {
		slog.Warn("webhook with unknown state", "state", n.State, "transaction_id", n.TransactionID)
		monitoring.RecordWebhook(n.State, "error")
		return nil
	}

	current, err := s.payments.GetByExternalTxID(ctx, n.TransactionID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			slog.Warn("webhook for unknown transaction", "transaction_id", n.TransactionID, "state", n.State)
			monitoring.RecordWebhook(n.State, "error")
			return nil
		}
		return err
	}

	updated, err := s.payments.UpdateStatusByPriority(ctx, current.ID, status, n.TransactionID)
	if err != nil {
		monitoring.RecordWebhook(n.State, "error")
		return err
	}
	if updated == nil {
		// Stored status outranks the notification: stale or duplicated
		// delivery, silently kept as-is.
		monitoring.RecordWebhook(n.State, "ignored")
		return nil
	}
	monitoring.RecordWebhook(n.State, "applied")
	monitoring.RecordPaymentTransition(string(updated.Status))

	// Side effects are keyed off the payment id and guarded by the
	// previously stored status, so a redelivered notification cannot
	// grant twice.
	switch updated.Status {
	case domain.PaymentStatusCompleted:
		if current.Status != domain.PaymentStatusCompleted {
			s.onCompleted(ctx, updated)
		}
	case domain.PaymentStatusFailed, domain.PaymentStatusCancelled:
		if current.CreditProvisional && current.CreditUsed.IsPositive() {
			if err := s.returnProvisionalCredit(ctx, updated); err != nil {
				return err
			}
		}
		s.publish(ctx, "payment_failed", updated)
	}
	return nil
}

// Cancel resolves the cancellation charge through policy and applies the
// refund rules. For settled payments the ledger credit IS the refund; the
// gateway is never reversed synchronously here.
func (s *Service) Cancel(ctx context.Context, input CancelInput) (*domain.Payment, error) {
	p, err := s.payments.GetByID(ctx, input.PaymentID)
	if err != nil {
		return nil, err
	}

	// Already terminal: report success without side effects.
	switch p.Status {
	case domain.PaymentStatusRefunded, domain.PaymentStatusFailed, domain.PaymentStatusCancelled:
		return p, nil
	}

	charge, err := s.chargePercentage(ctx, p, input)
	if err != nil {
		return nil, err
	}

	if p.Status == domain.PaymentStatusCompleted {
		return s.refundSettled(ctx, p, charge)
	}
	return s.cancelUnsettled(ctx, p, charge)
}

func (s *Service) chargePercentage(ctx context.Context, p *domain.Payment, input CancelInput) (int, error) {
	var booking *domain.Booking
	if p.BookingID != nil {
		b, err := s.bookings.GetByID(ctx, *p.BookingID)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return 0, err
		}
		booking = b
	}

	timeUntilStart := time.Duration(0)
	if booking != nil {
		timeUntilStart = time.Until(booking.StartTime)
	}

	charge, err := s.policy.GetChargePercentage(ctx, booking, input.ActorRole, timeUntilStart)
	if err != nil {
		return 0, fmt.Errorf("resolve cancellation policy for payment %d: %w", p.ID, err)
	}
	if charge < 0 || charge > 100 {
		return 0, fmt.Errorf("%w: charge percentage %d out of range", domain.ErrInvariantViolation, charge)
	}

	if input.RequestedChargePct != nil && *input.RequestedChargePct != charge {
		slog.Warn("caller-supplied charge percentage differs from policy, using policy",
			"payment_id", p.ID, "requested", *input.RequestedChargePct, "policy", charge)
	}
	return charge, nil
}

// cancelUnsettled handles pending/authorized/processing payments. Any
// provisionally consumed credit goes back first; a zero charge cancels
// outright, a positive charge rewrites the total downward and leaves the
// payment open for future collection.
func (s *Service) cancelUnsettled(ctx context.Context, p *domain.Payment, charge int) (*domain.Payment, error) {
	if p.CreditProvisional && p.CreditUsed.IsPositive() {
		if err := s.returnProvisionalCredit(ctx, p); err != nil {
			return nil, err
		}
	}

	if charge == 0 {
		cancelled, err := s.payments.UpdateStatus(ctx, p.ID, p.Status, domain.PaymentStatusCancelled)
		if err != nil {
			if errors.Is(err, domain.ErrPaymentNotPending) {
				// Lost a race with a webhook; surface the current row.
				return s.payments.GetByID(ctx, p.ID)
			}
			return nil, err
		}
		monitoring.RecordPaymentTransition(string(cancelled.Status))
		s.publish(ctx, "payment_cancelled", cancelled)
		return cancelled, nil
	}

	chargeAmount := chargedShare(p.LessonPrice.Add(p.AdminFee), charge)
	if err := s.payments.RewriteTotal(ctx, p.ID, chargeAmount); err != nil {
		return nil, err
	}
	slog.Info("payment total rewritten to cancellation charge",
		"payment_id", p.ID, "charge_pct", charge, "new_total", chargeAmount)
	return s.payments.GetByID(ctx, p.ID)
}

// refundSettled credits the refundable amount to the ledger and marks the
// payment refunded. A ledger failure aborts the whole transition.
func (s *Service) refundSettled(ctx context.Context, p *domain.Payment, charge int) (*domain.Payment, error) {
	refundable := RefundableAmount(p, charge)
	if refundable.IsNegative() {
		return nil, fmt.Errorf("%w: refundable amount %s is negative", domain.ErrInvariantViolation, refundable)
	}

	if refundable.IsPositive() {
		if _, err := s.ledger.Adjust(ctx, p.UserID, refundable, domain.CreditTxRefund, p.ID, "payment"); err != nil {
			return nil, fmt.Errorf("refund payment %d to ledger: %w", p.ID, err)
		}
	}

	refunded, err := s.payments.UpdateStatus(ctx, p.ID, domain.PaymentStatusCompleted, domain.PaymentStatusRefunded)
	if err != nil {
		return nil, err
	}
	monitoring.RecordPaymentTransition(string(refunded.Status))
	s.publish(ctx, "payment_refunded", refunded)
	return refunded, nil
}

// returnProvisionalCredit reverses the payment's ledger spend and zeroes
// the recorded credit, so the row no longer claims credit it returned.
func (s *Service) returnProvisionalCredit(ctx context.Context, p *domain.Payment) error {
	if _, err := s.ledger.Adjust(ctx, p.UserID, p.CreditUsed, domain.CreditTxRefund, p.ID, "payment"); err != nil {
		return fmt.Errorf("return provisional credit for payment %d: %w", p.ID, err)
	}
	return s.payments.ClearCreditSpend(ctx, p.ID)
}

// onCompleted runs the completion side effects: provisional credit becomes
// final, the booking moves to scheduled, downstream consumers are told.
func (s *Service) onCompleted(ctx context.Context, p *domain.Payment) {
	if p == nil {
		return
	}
	if p.CreditProvisional {
		if err := s.payments.ClearProvisionalCredit(ctx, p.ID); err != nil {
			slog.Error("clearing provisional credit", "payment_id", p.ID, "error", err)
		}
	}
	if p.BookingID != nil {
		if _, err := s.bookings.UpdateStatus(ctx, *p.BookingID, domain.BookingStatusScheduled); err != nil {
			slog.Error("marking booking scheduled", "booking_id", *p.BookingID, "error", err)
		}
	}
	monitoring.RecordPaymentTransition(string(domain.PaymentStatusCompleted))
	s.publish(ctx, "payment_completed", p)
}

func (s *Service) GetByID(ctx context.Context, id int64) (*domain.Payment, error) {
	return s.payments.GetByID(ctx, id)
}

func (s *Service) publish(ctx context.Context, eventType string, p *domain.Payment) {
	if s.producer == nil || s.topic == "" {
		return
	}
	event := kafka.PaymentEvent{
		Type:      eventType,
		PaymentID: p.ID,
		UserID:    p.UserID,
		Amount:    p.TotalAmount.String(),
		Status:    string(p.Status),
	}
	if p.BookingID != nil {
		event.BookingID = *p.BookingID
	}
	// Notification failures must never roll back a payment transition.
	if err := s.producer.Publish(ctx, s.topic, strconv.FormatInt(p.ID, 10), event); err != nil {
		slog.Warn("publish payment event failed", "type", eventType, "payment_id", p.ID, "error", err)
	}
}

func gatewayLineItems(items []domain.PaymentItem, lessonPrice, adminFee decimal.Decimal) []gateway.LineItem {
	lines := []gateway.LineItem{{Name: "lesson", Amount: lessonPrice, Quantity: 1}}
	if adminFee.IsPositive() {
		lines = append(lines, gateway.LineItem{Name: "admin fee", Amount: adminFee, Quantity: 1})
	}
	for _, item := range items {
		lines = append(lines, gateway.LineItem{Name: item.Name, Amount: item.Amount, Quantity: 1})
	}
	return lines
}

func mapGatewayState(state string) (domain.PaymentStatus, bool) {
	switch state {
	case "completed", "paid", "success":
		return domain.PaymentStatusCompleted, true
	case "authorized":
		return domain.PaymentStatusAuthorized, true
	case "processing":
		return domain.PaymentStatusProcessing, true
	case "pending", "created", "open":
		return domain.PaymentStatusPending, true
	case "failed", "error":
		return domain.PaymentStatusFailed, true
	case "cancelled", "expired":
		return domain.PaymentStatusCancelled, true
	}
	return "", false
}

var _ PaymentUseCase = (*Service)(nil)
