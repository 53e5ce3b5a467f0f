package repository

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/avdeev-dev/slotbook/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type PaymentRepository interface {
	Create(ctx context.Context, p *domain.Payment) error
	GetByID(ctx context.Context, id int64) (*domain.Payment, error)
	GetByExternalTxID(ctx context.Context, txID string) (*domain.Payment, error)
	GetActiveByBookingID(ctx context.Context, bookingID int64) (*domain.Payment, error)
	// UpdateStatusByPriority applies the reconciliation rule as a single
	// conditional write. It returns the updated payment, or (nil, nil)
	// when the stored status outranks the incoming one and the update is a
	// no-op.
	UpdateStatusByPriority(ctx context.Context, id int64, status domain.PaymentStatus, externalTxID string) (*domain.Payment, error)
	UpdateStatus(ctx context.Context, id int64, from, to domain.PaymentStatus) (*domain.Payment, error)
	SetExternalTxID(ctx context.Context, id int64, txID string) error
	RewriteTotal(ctx context.Context, id int64, total decimal.Decimal) error
	ClearProvisionalCredit(ctx context.Context, id int64) error
	ClearCreditSpend(ctx context.Context, id int64) error
}

type PGPaymentRepository struct {
	db *pgxpool.Pool
}

func NewPaymentRepository(db *pgxpool.Pool) PaymentRepository {
	return &PGPaymentRepository{db: db}
}

const paymentColumns = `id, user_id, booking_id, lesson_price, admin_fee, products_price, discount_amount, voucher_discount, credit_used, credit_provisional, total_amount, status, COALESCE(external_tx_id, ''), items, superseded, created_at, updated_at`

// statusPriorityCase ranks the stored status inside the database so the
// priority comparison and the write are one atomic statement.
const statusPriorityCase = `(CASE status
	WHEN 'REFUNDED' THEN 6
	WHEN 'COMPLETED' THEN 5
	WHEN 'AUTHORIZED' THEN 4
	WHEN 'PROCESSING' THEN 3
	WHEN 'PENDING' THEN 1
	ELSE 0 END)`

// Create inserts the payment and supersedes any previous active payment
// for the same booking. History is kept, never deleted.
func (r *PGPaymentRepository) Create(ctx context.Context, p *domain.Payment) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if p.BookingID != nil {
		if _, err := tx.Exec(ctx, `UPDATE payments SET superseded=true, updated_at=now() WHERE booking_id=$1 AND NOT superseded`, *p.BookingID); err != nil {
			return err
		}
	}

	items, err := json.Marshal(p.Items)
	if err != nil {
		return err
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO payments (user_id, booking_id, lesson_price, admin_fee, products_price, discount_amount, voucher_discount, credit_used, credit_provisional, total_amount, status, items)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id, created_at, updated_at`,
		p.UserID, p.BookingID, p.LessonPrice, p.AdminFee, p.ProductsPrice,
		p.DiscountAmount, p.VoucherDiscount, p.CreditUsed, p.CreditProvisional,
		p.TotalAmount, p.Status, items).
		Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (r *PGPaymentRepository) GetByID(ctx context.Context, id int64) (*domain.Payment, error) {
	row := r.db.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id=$1`, id)
	return scanPayment(row)
}

func (r *PGPaymentRepository) GetByExternalTxID(ctx context.Context, txID string) (*domain.Payment, error) {
	row := r.db.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE external_tx_id=$1 AND NOT superseded`, txID)
	return scanPayment(row)
}

func (r *PGPaymentRepository) GetActiveByBookingID(ctx context.Context, bookingID int64) (*domain.Payment, error) {
	row := r.db.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE booking_id=$1 AND NOT superseded`, bookingID)
	return scanPayment(row)
}

func (r *PGPaymentRepository) UpdateStatusByPriority(ctx context.Context, id int64, status domain.PaymentStatus, externalTxID string) (*domain.Payment, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE payments
		SET status=$1,
		    external_tx_id=COALESCE(NULLIF($2, ''), external_tx_id),
		    updated_at=now()
		WHERE id=$3 AND `+statusPriorityCase+` <= $4
		RETURNING `+paymentColumns, status, externalTxID, id, status.Priority())

	p, err := scanPayment(row)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// Either the payment does not exist or its stored status
			// outranks the notification. Both are no-ops for callers.
			return nil, nil
		}
		return nil, err
	}
	return p, nil
}

// UpdateStatus moves a payment between two exact states. Used by the local
// cancel/refund path where the transition set is fixed, not priority-driven.
func (r *PGPaymentRepository) UpdateStatus(ctx context.Context, id int64, from, to domain.PaymentStatus) (*domain.Payment, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE payments SET status=$1, updated_at=now()
		WHERE id=$2 AND status=$3
		RETURNING `+paymentColumns, to, id, from)
	p, err := scanPayment(row)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrPaymentNotPending
		}
		return nil, err
	}
	return p, nil
}

func (r *PGPaymentRepository) SetExternalTxID(ctx context.Context, id int64, txID string) error {
	_, err := r.db.Exec(ctx, `UPDATE payments SET external_tx_id=$1, updated_at=now() WHERE id=$2`, txID, id)
	return err
}

func (r *PGPaymentRepository) RewriteTotal(ctx context.Context, id int64, total decimal.Decimal) error {
	_, err := r.db.Exec(ctx, `UPDATE payments SET total_amount=$1, updated_at=now() WHERE id=$2`, total, id)
	return err
}

func (r *PGPaymentRepository) ClearProvisionalCredit(ctx context.Context, id int64) error {
	_, err := r.db.Exec(ctx, `UPDATE payments SET credit_provisional=false, updated_at=now() WHERE id=$1`, id)
	return err
}

// ClearCreditSpend records that the payment's ledger spend was reversed:
// the row must not keep claiming credit it no longer holds.
func (r *PGPaymentRepository) ClearCreditSpend(ctx context.Context, id int64) error {
	_, err := r.db.Exec(ctx, `UPDATE payments SET credit_used=0, credit_provisional=false, updated_at=now() WHERE id=$1`, id)
	return err
}

func scanPayment(row pgx.Row) (*domain.Payment, error) {
	var p domain.Payment
	var items []byte
	err := row.Scan(&p.ID, &p.UserID, &p.BookingID, &p.LessonPrice, &p.AdminFee,
		&p.ProductsPrice, &p.DiscountAmount, &p.VoucherDiscount, &p.CreditUsed,
		&p.CreditProvisional, &p.TotalAmount, &p.Status, &p.ExternalTxID,
		&items, &p.Superseded, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	if len(items) > 0 {
		if err := json.Unmarshal(items, &p.Items); err != nil {
			return nil, err
		}
	}
	return &p, nil
}

var _ PaymentRepository = (*PGPaymentRepository)(nil)
