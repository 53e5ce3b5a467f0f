package payment

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/avdeev-dev/slotbook/internal/domain"
	"github.com/avdeev-dev/slotbook/internal/gateway"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockPaymentRepository struct {
	mock.Mock
}

func (m *MockPaymentRepository) Create(ctx context.Context, p *domain.Payment) error {
	args := m.Called(ctx, p)
	if args.Error(0) == nil {
		p.ID = 1
	}
	return args.Error(0)
}

func (m *MockPaymentRepository) GetByID(ctx context.Context, id int64) (*domain.Payment, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Payment), args.Error(1)
}

func (m *MockPaymentRepository) GetByExternalTxID(ctx context.Context, txID string) (*domain.Payment, error) {
	args := m.Called(ctx, txID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Payment), args.Error(1)
}

func (m *MockPaymentRepository) GetActiveByBookingID(ctx context.Context, bookingID int64) (*domain.Payment, error) {
	args := m.Called(ctx, bookingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Payment), args.Error(1)
}

func (m *MockPaymentRepository) UpdateStatusByPriority(ctx context.Context, id int64, status domain.PaymentStatus, externalTxID string) (*domain.Payment, error) {
	args := m.Called(ctx, id, status, externalTxID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Payment), args.Error(1)
}

func (m *MockPaymentRepository) UpdateStatus(ctx context.Context, id int64, from, to domain.PaymentStatus) (*domain.Payment, error) {
	args := m.Called(ctx, id, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Payment), args.Error(1)
}

func (m *MockPaymentRepository) SetExternalTxID(ctx context.Context, id int64, txID string) error {
	args := m.Called(ctx, id, txID)
	return args.Error(0)
}

func (m *MockPaymentRepository) RewriteTotal(ctx context.Context, id int64, total decimal.Decimal) error {
	args := m.Called(ctx, id, total)
	return args.Error(0)
}

func (m *MockPaymentRepository) ClearProvisionalCredit(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockPaymentRepository) ClearCreditSpend(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

type MockBookingRepository struct {
	mock.Mock
}

func (m *MockBookingRepository) CreateFromHold(ctx context.Context, booking *domain.Booking, sessionID string) error {
	args := m.Called(ctx, booking, sessionID)
	return args.Error(0)
}

func (m *MockBookingRepository) GetByID(ctx context.Context, id int64) (*domain.Booking, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Booking), args.Error(1)
}

func (m *MockBookingRepository) UpdateStatus(ctx context.Context, id int64, status domain.BookingStatus) (*domain.Booking, error) {
	args := m.Called(ctx, id, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Booking), args.Error(1)
}

func (m *MockBookingRepository) Cancel(ctx context.Context, id int64, reason string) (*domain.Booking, error) {
	args := m.Called(ctx, id, reason)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Booking), args.Error(1)
}

type MockLedger struct {
	mock.Mock
}

func (m *MockLedger) Balance(ctx context.Context, userID int64) (decimal.Decimal, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func (m *MockLedger) Adjust(ctx context.Context, userID int64, amount decimal.Decimal, txType domain.CreditTransactionType, refID int64, refType string) (*domain.CreditTransaction, error) {
	args := m.Called(ctx, userID, amount, txType, refID, refType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CreditTransaction), args.Error(1)
}

type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) CreateTransaction(ctx context.Context, req gateway.CreateTransactionRequest) (*gateway.Transaction, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.Transaction), args.Error(1)
}

func (m *MockGateway) Capture(ctx context.Context, transactionID string) error {
	args := m.Called(ctx, transactionID)
	return args.Error(0)
}

type MockPolicy struct {
	mock.Mock
}

func (m *MockPolicy) GetChargePercentage(ctx context.Context, booking *domain.Booking, actorRole string, timeUntilStart time.Duration) (int, error) {
	args := m.Called(ctx, booking, actorRole, timeUntilStart)
	return args.Int(0), args.Error(1)
}

func d(s string) decimal.Decimal {
	v, _ := decimal.NewFromString(s)
	return v
}

func intPtr(v int) *int { return &v }

// decimalEq matches a decimal argument by value, ignoring exponent
// representation differences that division introduces.
func decimalEq(s string) interface{} {
	want := d(s)
	return mock.MatchedBy(func(got decimal.Decimal) bool {
		return got.Equal(want)
	})
}

func newTestService(payments *MockPaymentRepository, bookings *MockBookingRepository, ledger *MockLedger, gw *MockGateway, policy *MockPolicy, opts ...Option) *Service {
	return NewService(payments, bookings, ledger, gw, policy, "EUR", opts...)
}

func TestCreate_FullCreditCover(t *testing.T) {
	payments := &MockPaymentRepository{}
	ledger := &MockLedger{}
	gw := &MockGateway{}

	ledger.On("Balance", mock.Anything, int64(7)).Return(d("100"), nil)
	payments.On("Create", mock.Anything, mock.AnythingOfType("*domain.Payment")).Return(nil)
	ledger.On("Adjust", mock.Anything, int64(7), d("-45"), domain.CreditTxSpend, int64(1), "payment").
		Return(&domain.CreditTransaction{}, nil)
	payments.On("UpdateStatusByPriority", mock.Anything, int64(1), domain.PaymentStatusCompleted, "").
		Return(&domain.Payment{ID: 1, UserID: 7, Status: domain.PaymentStatusCompleted, TotalAmount: d("45")}, nil)

	svc := newTestService(payments, &MockBookingRepository{}, ledger, gw, &MockPolicy{})
	res, err := svc.Create(context.Background(), CreateInput{
		UserID:      7,
		LessonPrice: d("40"),
		AdminFee:    d("5"),
	})

	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusCompleted, res.Payment.Status)
	assert.Empty(t, res.PaymentURL)
	gw.AssertNotCalled(t, "CreateTransaction", mock.Anything, mock.Anything)
	ledger.AssertExpectations(t)
}

func TestCreate_PartialCredit_GatewayRemainder(t *testing.T) {
	payments := &MockPaymentRepository{}
	ledger := &MockLedger{}
	gw := &MockGateway{}

	ledger.On("Balance", mock.Anything, int64(7)).Return(d("10"), nil)
	payments.On("Create", mock.Anything, mock.AnythingOfType("*domain.Payment")).Return(nil)
	ledger.On("Adjust", mock.Anything, int64(7), d("-10"), domain.CreditTxSpend, int64(1), "payment").
		Return(&domain.CreditTransaction{}, nil)
	gw.On("CreateTransaction", mock.Anything, mock.MatchedBy(func(req gateway.CreateTransactionRequest) bool {
		return req.Amount.Equal(d("35")) && req.Currency == "EUR"
	})).Return(&gateway.Transaction{ID: "tx-1", PaymentURL: "https://pay.example/tx-1"}, nil)
	payments.On("SetExternalTxID", mock.Anything, int64(1), "tx-1").Return(nil)

	svc := newTestService(payments, &MockBookingRepository{}, ledger, gw, &MockPolicy{})
	res, err := svc.Create(context.Background(), CreateInput{
		UserID:      7,
		LessonPrice: d("40"),
		AdminFee:    d("5"),
	})

	require.NoError(t, err)
	assert.Equal(t, "https://pay.example/tx-1", res.PaymentURL)
	assert.True(t, res.Payment.CreditUsed.Equal(d("10")))
	assert.True(t, res.Payment.CreditProvisional)
	assert.Equal(t, domain.PaymentStatusPending, res.Payment.Status)
	gw.AssertExpectations(t)
	ledger.AssertExpectations(t)
}

func TestCreate_NegativeTotalAborts(t *testing.T) {
	payments := &MockPaymentRepository{}

	svc := newTestService(payments, &MockBookingRepository{}, &MockLedger{}, &MockGateway{}, &MockPolicy{})
	_, err := svc.Create(context.Background(), CreateInput{
		UserID:         7,
		LessonPrice:    d("40"),
		DiscountAmount: d("100"),
	})

	assert.ErrorIs(t, err, domain.ErrInvariantViolation)
	payments.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestCreate_GatewayUnavailableKeepsPending(t *testing.T) {
	payments := &MockPaymentRepository{}
	ledger := &MockLedger{}
	gw := &MockGateway{}

	ledger.On("Balance", mock.Anything, int64(7)).Return(decimal.Zero, nil)
	payments.On("Create", mock.Anything, mock.AnythingOfType("*domain.Payment")).Return(nil)
	gw.On("CreateTransaction", mock.Anything, mock.Anything).Return(nil, domain.ErrGatewayUnavailable)

	svc := newTestService(payments, &MockBookingRepository{}, ledger, gw, &MockPolicy{})
	_, err := svc.Create(context.Background(), CreateInput{UserID: 7, LessonPrice: d("40")})

	assert.ErrorIs(t, err, domain.ErrGatewayUnavailable)
	// Unknown outcome: nothing may touch the payment's status.
	payments.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	payments.AssertNotCalled(t, "UpdateStatusByPriority", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCreate_LedgerFailureVoidsPayment(t *testing.T) {
	payments := &MockPaymentRepository{}
	ledger := &MockLedger{}

	ledger.On("Balance", mock.Anything, int64(7)).Return(d("10"), nil)
	payments.On("Create", mock.Anything, mock.AnythingOfType("*domain.Payment")).Return(nil)
	ledger.On("Adjust", mock.Anything, int64(7), mock.Anything, domain.CreditTxSpend, int64(1), "payment").
		Return(nil, errors.New("deadlock"))
	payments.On("ClearCreditSpend", mock.Anything, int64(1)).Return(nil)
	payments.On("UpdateStatus", mock.Anything, int64(1), domain.PaymentStatusPending, domain.PaymentStatusCancelled).
		Return(&domain.Payment{ID: 1, Status: domain.PaymentStatusCancelled}, nil)

	svc := newTestService(payments, &MockBookingRepository{}, ledger, &MockGateway{}, &MockPolicy{})
	_, err := svc.Create(context.Background(), CreateInput{UserID: 7, LessonPrice: d("40")})

	assert.Error(t, err)
	payments.AssertExpectations(t)
}

func TestCreate_UsesPriceResolver(t *testing.T) {
	payments := &MockPaymentRepository{}
	ledger := &MockLedger{}
	gw := &MockGateway{}
	pricing := &mockPricing{lesson: d("60"), fee: d("3")}

	ledger.On("Balance", mock.Anything, int64(7)).Return(decimal.Zero, nil)
	payments.On("Create", mock.Anything, mock.MatchedBy(func(p *domain.Payment) bool {
		return p.TotalAmount.Equal(d("63"))
	})).Return(nil)
	gw.On("CreateTransaction", mock.Anything, mock.Anything).
		Return(&gateway.Transaction{ID: "tx-2", PaymentURL: "u"}, nil)
	payments.On("SetExternalTxID", mock.Anything, int64(1), "tx-2").Return(nil)

	svc := newTestService(payments, &MockBookingRepository{}, ledger, gw, &MockPolicy{}, WithPriceResolver(pricing))
	res, err := svc.Create(context.Background(), CreateInput{
		UserID:          7,
		CategoryCode:    "lesson",
		DurationMinutes: 45,
	})

	require.NoError(t, err)
	assert.True(t, res.Payment.LessonPrice.Equal(d("60")))
	payments.AssertExpectations(t)
}

type mockPricing struct {
	lesson, fee decimal.Decimal
}

func (m *mockPricing) GetPrice(ctx context.Context, category string, durationMinutes int, startTime time.Time) (decimal.Decimal, decimal.Decimal, error) {
	return m.lesson, m.fee, nil
}

// fakePaymentStore reproduces the repository's conditional-write semantics
// in memory so notification ordering properties can be exercised without a
// database.
type fakePaymentStore struct {
	MockPaymentRepository
	mu       sync.Mutex
	payments map[int64]*domain.Payment
	byTx     map[string]int64
}

func newFakePaymentStore(seed ...*domain.Payment) *fakePaymentStore {
	s := &fakePaymentStore{payments: map[int64]*domain.Payment{}, byTx: map[string]int64{}}
	for _, p := range seed {
		s.payments[p.ID] = p
		if p.ExternalTxID != "" {
			s.byTx[p.ExternalTxID] = p.ID
		}
	}
	return s
}

func (s *fakePaymentStore) GetByExternalTxID(_ context.Context, txID string) (*domain.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byTx[txID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *s.payments[id]
	return &cp, nil
}

func (s *fakePaymentStore) UpdateStatusByPriority(_ context.Context, id int64, status domain.PaymentStatus, externalTxID string) (*domain.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[id]
	if !ok || p.Status.Priority() > status.Priority() {
		return nil, nil
	}
	p.Status = status
	if externalTxID != "" {
		p.ExternalTxID = externalTxID
		s.byTx[externalTxID] = id
	}
	cp := *p
	return &cp, nil
}

func (s *fakePaymentStore) ClearProvisionalCredit(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payments[id].CreditProvisional = false
	return nil
}

func (s *fakePaymentStore) ClearCreditSpend(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payments[id].CreditUsed = decimal.Zero
	s.payments[id].CreditProvisional = false
	return nil
}

func permutations(states []string) [][]string {
	if len(states) <= 1 {
		return [][]string{append([]string(nil), states...)}
	}
	var out [][]string
	for i := range states {
		rest := make([]string, 0, len(states)-1)
		rest = append(rest, states[:i]...)
		rest = append(rest, states[i+1:]...)
		for _, perm := range permutations(rest) {
			out = append(out, append([]string{states[i]}, perm...))
		}
	}
	return out
}

func TestHandleNotification_AnyOrderConvergesToCompleted(t *testing.T) {
	for _, perm := range permutations([]string{"pending", "completed", "pending"}) {
		store := newFakePaymentStore(&domain.Payment{
			ID: 1, UserID: 7, Status: domain.PaymentStatusPending, ExternalTxID: "tx-1",
		})
		svc := NewService(store, &MockBookingRepository{}, &MockLedger{}, &MockGateway{}, &MockPolicy{}, "EUR")

		// Deliver the permutation, then redeliver it entirely.
		for _, state := range append(perm, perm...) {
			err := svc.HandleNotification(context.Background(), domain.WebhookNotification{
				TransactionID: "tx-1", State: state, Timestamp: time.Now(),
			})
			require.NoError(t, err)
		}

		final, err := store.GetByExternalTxID(context.Background(), "tx-1")
		require.NoError(t, err)
		assert.Equal(t, domain.PaymentStatusCompleted, final.Status, "order %v", perm)
	}
}

func TestHandleNotification_UnknownTransactionIsAcked(t *testing.T) {
	payments := &MockPaymentRepository{}
	payments.On("GetByExternalTxID", mock.Anything, "tx-missing").Return(nil, domain.ErrNotFound)

	svc := newTestService(payments, &MockBookingRepository{}, &MockLedger{}, &MockGateway{}, &MockPolicy{})
	err := svc.HandleNotification(context.Background(), domain.WebhookNotification{
		TransactionID: "tx-missing", State: "completed",
	})

	assert.NoError(t, err)
}

func TestHandleNotification_UnknownStateIsAcked(t *testing.T) {
	payments := &MockPaymentRepository{}

	svc := newTestService(payments, &MockBookingRepository{}, &MockLedger{}, &MockGateway{}, &MockPolicy{})
	err := svc.HandleNotification(context.Background(), domain.WebhookNotification{
		TransactionID: "tx-1", State: "weird",
	})

	assert.NoError(t, err)
	payments.AssertNotCalled(t, "GetByExternalTxID", mock.Anything, mock.Anything)
}

func TestHandleNotification_CompletedMarksBookingScheduled(t *testing.T) {
	payments := &MockPaymentRepository{}
	bookings := &MockBookingRepository{}
	bookingID := int64(9)

	pending := &domain.Payment{ID: 1, UserID: 7, BookingID: &bookingID, Status: domain.PaymentStatusPending, ExternalTxID: "tx-1"}
	completed := &domain.Payment{ID: 1, UserID: 7, BookingID: &bookingID, Status: domain.PaymentStatusCompleted, ExternalTxID: "tx-1"}

	payments.On("GetByExternalTxID", mock.Anything, "tx-1").Return(pending, nil)
	payments.On("UpdateStatusByPriority", mock.Anything, int64(1), domain.PaymentStatusCompleted, "tx-1").Return(completed, nil)
	bookings.On("UpdateStatus", mock.Anything, bookingID, domain.BookingStatusScheduled).
		Return(&domain.Booking{ID: bookingID, Status: domain.BookingStatusScheduled}, nil)

	svc := newTestService(payments, bookings, &MockLedger{}, &MockGateway{}, &MockPolicy{})
	require.NoError(t, svc.HandleNotification(context.Background(), domain.WebhookNotification{
		TransactionID: "tx-1", State: "completed",
	}))

	bookings.AssertExpectations(t)
}

func TestHandleNotification_FailureCannotDowngradePending(t *testing.T) {
	store := newFakePaymentStore(&domain.Payment{
		ID: 1, UserID: 7, Status: domain.PaymentStatusPending, ExternalTxID: "tx-1",
		CreditUsed: d("10"), CreditProvisional: true,
	})
	ledger := &MockLedger{}

	svc := NewService(store, &MockBookingRepository{}, ledger, &MockGateway{}, &MockPolicy{}, "EUR")
	require.NoError(t, svc.HandleNotification(context.Background(), domain.WebhookNotification{
		TransactionID: "tx-1", State: "failed",
	}))

	// Failure states rank below pending, so the notification is a no-op:
	// the payment stays collectable and the credit stays in place.
	final, err := store.GetByExternalTxID(context.Background(), "tx-1")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusPending, final.Status)
	ledger.AssertNotCalled(t, "Adjust", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleNotification_RedeliveredFailureReturnsStrandedCredit(t *testing.T) {
	payments := &MockPaymentRepository{}
	ledger := &MockLedger{}

	// A payment cancelled locally but with its provisional credit still
	// marked (the cancel crashed midway). The redelivered gateway failure
	// notification sweeps the credit back.
	cancelled := &domain.Payment{ID: 1, UserID: 7, Status: domain.PaymentStatusCancelled, ExternalTxID: "tx-1", CreditUsed: d("10"), CreditProvisional: true}
	failed := &domain.Payment{ID: 1, UserID: 7, Status: domain.PaymentStatusFailed, ExternalTxID: "tx-1", CreditUsed: d("10"), CreditProvisional: true}

	payments.On("GetByExternalTxID", mock.Anything, "tx-1").Return(cancelled, nil)
	payments.On("UpdateStatusByPriority", mock.Anything, int64(1), domain.PaymentStatusFailed, "tx-1").Return(failed, nil)
	ledger.On("Adjust", mock.Anything, int64(7), d("10"), domain.CreditTxRefund, int64(1), "payment").
		Return(&domain.CreditTransaction{}, nil)
	payments.On("ClearCreditSpend", mock.Anything, int64(1)).Return(nil)

	svc := newTestService(payments, &MockBookingRepository{}, ledger, &MockGateway{}, &MockPolicy{})
	require.NoError(t, svc.HandleNotification(context.Background(), domain.WebhookNotification{
		TransactionID: "tx-1", State: "failed",
	}))

	ledger.AssertExpectations(t)
	payments.AssertExpectations(t)
}

func TestCancel_SettledZeroCharge_FullRefundToLedger(t *testing.T) {
	payments := &MockPaymentRepository{}
	ledger := &MockLedger{}
	policy := &MockPolicy{}

	p := &domain.Payment{
		ID: 1, UserID: 7,
		LessonPrice:     d("40"),
		AdminFee:        d("5"),
		VoucherDiscount: d("8"),
		Items: []domain.PaymentItem{
			{Name: "grip tape", Amount: d("6"), Refundable: true},
			{Name: "opened wax", Amount: d("4"), Refundable: false},
		},
		Status: domain.PaymentStatusCompleted,
	}
	// lesson 40 + fee 5 + voucher 8 + refundable 6 = 59
	payments.On("GetByID", mock.Anything, int64(1)).Return(p, nil)
	policy.On("GetChargePercentage", mock.Anything, mock.Anything, "customer", mock.Anything).Return(0, nil)
	ledger.On("Adjust", mock.Anything, int64(7), decimalEq("59"), domain.CreditTxRefund, int64(1), "payment").
		Return(&domain.CreditTransaction{BalanceAfter: d("59")}, nil)
	payments.On("UpdateStatus", mock.Anything, int64(1), domain.PaymentStatusCompleted, domain.PaymentStatusRefunded).
		Return(&domain.Payment{ID: 1, Status: domain.PaymentStatusRefunded}, nil)

	svc := newTestService(payments, &MockBookingRepository{}, ledger, &MockGateway{}, policy)
	refunded, err := svc.Cancel(context.Background(), CancelInput{PaymentID: 1, ActorRole: "customer"})

	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusRefunded, refunded.Status)
	ledger.AssertExpectations(t)
}

func TestCancel_SettledWithCharge_ScaledRefund(t *testing.T) {
	payments := &MockPaymentRepository{}
	ledger := &MockLedger{}
	policy := &MockPolicy{}

	p := &domain.Payment{
		ID: 2, UserID: 7,
		LessonPrice: d("80"),
		AdminFee:    d("20"),
		Status:      domain.PaymentStatusCompleted,
	}
	// (80+20) * 70% = 70
	payments.On("GetByID", mock.Anything, int64(2)).Return(p, nil)
	policy.On("GetChargePercentage", mock.Anything, mock.Anything, "customer", mock.Anything).Return(30, nil)
	ledger.On("Adjust", mock.Anything, int64(7), decimalEq("70"), domain.CreditTxRefund, int64(2), "payment").
		Return(&domain.CreditTransaction{}, nil)
	payments.On("UpdateStatus", mock.Anything, int64(2), domain.PaymentStatusCompleted, domain.PaymentStatusRefunded).
		Return(&domain.Payment{ID: 2, Status: domain.PaymentStatusRefunded}, nil)

	svc := newTestService(payments, &MockBookingRepository{}, ledger, &MockGateway{}, policy)
	_, err := svc.Cancel(context.Background(), CancelInput{PaymentID: 2, ActorRole: "customer"})

	require.NoError(t, err)
	ledger.AssertExpectations(t)
}

func TestCancel_UnsettledZeroCharge_CancelsAndReturnsCredit(t *testing.T) {
	payments := &MockPaymentRepository{}
	ledger := &MockLedger{}
	policy := &MockPolicy{}

	p := &domain.Payment{
		ID: 3, UserID: 7,
		LessonPrice:       d("40"),
		CreditUsed:        d("15"),
		CreditProvisional: true,
		Status:            domain.PaymentStatusPending,
	}
	payments.On("GetByID", mock.Anything, int64(3)).Return(p, nil)
	policy.On("GetChargePercentage", mock.Anything, mock.Anything, "customer", mock.Anything).Return(0, nil)
	ledger.On("Adjust", mock.Anything, int64(7), d("15"), domain.CreditTxRefund, int64(3), "payment").
		Return(&domain.CreditTransaction{}, nil)
	payments.On("ClearCreditSpend", mock.Anything, int64(3)).Return(nil)
	payments.On("UpdateStatus", mock.Anything, int64(3), domain.PaymentStatusPending, domain.PaymentStatusCancelled).
		Return(&domain.Payment{ID: 3, Status: domain.PaymentStatusCancelled}, nil)

	svc := newTestService(payments, &MockBookingRepository{}, ledger, &MockGateway{}, policy)
	cancelled, err := svc.Cancel(context.Background(), CancelInput{PaymentID: 3, ActorRole: "customer"})

	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusCancelled, cancelled.Status)
	ledger.AssertExpectations(t)
	payments.AssertExpectations(t)
}

func TestCancel_UnsettledWithCharge_RewritesTotal(t *testing.T) {
	payments := &MockPaymentRepository{}
	policy := &MockPolicy{}

	p := &domain.Payment{
		ID: 4, UserID: 7,
		LessonPrice: d("40"),
		AdminFee:    d("10"),
		Status:      domain.PaymentStatusPending,
	}
	// (40+10) * 20% = 10 stays collectable; the payment is not
	// force-completed.
	payments.On("GetByID", mock.Anything, int64(4)).Return(p, nil).Once()
	policy.On("GetChargePercentage", mock.Anything, mock.Anything, "customer", mock.Anything).Return(20, nil)
	payments.On("RewriteTotal", mock.Anything, int64(4), decimalEq("10")).Return(nil)
	payments.On("GetByID", mock.Anything, int64(4)).
		Return(&domain.Payment{ID: 4, Status: domain.PaymentStatusPending, TotalAmount: d("10")}, nil)

	svc := newTestService(payments, &MockBookingRepository{}, &MockLedger{}, &MockGateway{}, policy)
	updated, err := svc.Cancel(context.Background(), CancelInput{PaymentID: 4, ActorRole: "customer"})

	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusPending, updated.Status)
	assert.True(t, updated.TotalAmount.Equal(d("10")))
	payments.AssertExpectations(t)
}

func TestCancel_UnsettledWithCharge_ZeroesCreditSpend(t *testing.T) {
	payments := &MockPaymentRepository{}
	ledger := &MockLedger{}
	policy := &MockPolicy{}

	p := &domain.Payment{
		ID: 8, UserID: 7,
		LessonPrice:       d("40"),
		AdminFee:          d("10"),
		CreditUsed:        d("15"),
		CreditProvisional: true,
		Status:            domain.PaymentStatusPending,
	}
	payments.On("GetByID", mock.Anything, int64(8)).Return(p, nil).Once()
	policy.On("GetChargePercentage", mock.Anything, mock.Anything, "customer", mock.Anything).Return(20, nil)
	ledger.On("Adjust", mock.Anything, int64(7), d("15"), domain.CreditTxRefund, int64(8), "payment").
		Return(&domain.CreditTransaction{}, nil)
	// The returned credit must leave the row too, or the payment keeps
	// claiming a spend that no longer exists in the ledger.
	payments.On("ClearCreditSpend", mock.Anything, int64(8)).Return(nil)
	payments.On("RewriteTotal", mock.Anything, int64(8), decimalEq("10")).Return(nil)
	payments.On("GetByID", mock.Anything, int64(8)).
		Return(&domain.Payment{ID: 8, Status: domain.PaymentStatusPending, TotalAmount: d("10"), CreditUsed: decimal.Zero}, nil)

	svc := newTestService(payments, &MockBookingRepository{}, ledger, &MockGateway{}, policy)
	updated, err := svc.Cancel(context.Background(), CancelInput{PaymentID: 8, ActorRole: "customer"})

	require.NoError(t, err)
	assert.True(t, updated.CreditUsed.IsZero())
	payments.AssertExpectations(t)
	ledger.AssertExpectations(t)
}

func TestCancel_AlreadyRefundedIsNoOp(t *testing.T) {
	payments := &MockPaymentRepository{}
	policy := &MockPolicy{}

	payments.On("GetByID", mock.Anything, int64(5)).
		Return(&domain.Payment{ID: 5, Status: domain.PaymentStatusRefunded}, nil)

	svc := newTestService(payments, &MockBookingRepository{}, &MockLedger{}, &MockGateway{}, policy)
	p, err := svc.Cancel(context.Background(), CancelInput{PaymentID: 5, ActorRole: "customer"})

	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusRefunded, p.Status)
	policy.AssertNotCalled(t, "GetChargePercentage", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCancel_PolicyOverridesCallerCharge(t *testing.T) {
	payments := &MockPaymentRepository{}
	ledger := &MockLedger{}
	policy := &MockPolicy{}

	p := &domain.Payment{ID: 6, UserID: 7, LessonPrice: d("100"), Status: domain.PaymentStatusCompleted}
	payments.On("GetByID", mock.Anything, int64(6)).Return(p, nil)
	// Caller claims 0%, policy says 50%: policy wins.
	policy.On("GetChargePercentage", mock.Anything, mock.Anything, "customer", mock.Anything).Return(50, nil)
	ledger.On("Adjust", mock.Anything, int64(7), decimalEq("50"), domain.CreditTxRefund, int64(6), "payment").
		Return(&domain.CreditTransaction{}, nil)
	payments.On("UpdateStatus", mock.Anything, int64(6), domain.PaymentStatusCompleted, domain.PaymentStatusRefunded).
		Return(&domain.Payment{ID: 6, Status: domain.PaymentStatusRefunded}, nil)

	svc := newTestService(payments, &MockBookingRepository{}, ledger, &MockGateway{}, policy)
	_, err := svc.Cancel(context.Background(), CancelInput{PaymentID: 6, ActorRole: "customer", RequestedChargePct: intPtr(0)})

	require.NoError(t, err)
	ledger.AssertExpectations(t)
}
