package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/avdeev-dev/slotbook/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type CreditRepository interface {
	// Adjust applies a signed amount to the user's balance and writes the
	// paired transaction row atomically. Concurrent adjustments for one
	// user serialize on the account row lock.
	Adjust(ctx context.Context, userID int64, amount decimal.Decimal, txType domain.CreditTransactionType, refID int64, refType string) (*domain.CreditTransaction, error)
	GetBalance(ctx context.Context, userID int64) (decimal.Decimal, error)
	ListTransactions(ctx context.Context, userID int64) ([]domain.CreditTransaction, error)
}

type PGCreditRepository struct {
	db *pgxpool.Pool
}

func NewCreditRepository(db *pgxpool.Pool) CreditRepository {
	return &PGCreditRepository{db: db}
}

func (r *PGCreditRepository) Adjust(ctx context.Context, userID int64, amount decimal.Decimal, txType domain.CreditTransactionType, refID int64, refType string) (*domain.CreditTransaction, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var before decimal.Decimal
	err = tx.QueryRow(ctx, `SELECT balance FROM credit_accounts WHERE user_id=$1 FOR UPDATE`, userID).Scan(&before)
	if errors.Is(err, pgx.ErrNoRows) {
		// A missing account row reads as a zero balance, not an error.
		before = decimal.Zero
		if _, err := tx.Exec(ctx, `INSERT INTO credit_accounts (user_id, balance) VALUES ($1, 0)`, userID); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}

	after := before.Add(amount)
	if after.IsNegative() {
		return nil, fmt.Errorf("%w: credit balance for user %d would go negative (%s)", domain.ErrInvariantViolation, userID, after)
	}

	if _, err := tx.Exec(ctx, `UPDATE credit_accounts SET balance=$1, updated_at=now() WHERE user_id=$2`, after, userID); err != nil {
		return nil, err
	}

	ctr := &domain.CreditTransaction{
		UserID:        userID,
		Type:          txType,
		Amount:        amount,
		BalanceBefore: before,
		BalanceAfter:  after,
		ReferenceID:   refID,
		ReferenceType: refType,
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO credit_transactions (user_id, type, amount, balance_before, balance_after, reference_id, reference_type)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`,
		ctr.UserID, ctr.Type, ctr.Amount, ctr.BalanceBefore, ctr.BalanceAfter, ctr.ReferenceID, ctr.ReferenceType).
		Scan(&ctr.ID, &ctr.CreatedAt)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return ctr, nil
}

func (r *PGCreditRepository) GetBalance(ctx context.Context, userID int64) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := r.db.QueryRow(ctx, `SELECT balance FROM credit_accounts WHERE user_id=$1`, userID).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, err
	}
	return balance, nil
}

func (r *PGCreditRepository) ListTransactions(ctx context.Context, userID int64) ([]domain.CreditTransaction, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, user_id, type, amount, balance_before, balance_after, reference_id, COALESCE(reference_type, ''), created_at
		FROM credit_transactions WHERE user_id=$1 ORDER BY id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txs []domain.CreditTransaction
	for rows.Next() {
		var t domain.CreditTransaction
		if err := rows.Scan(&t.ID, &t.UserID, &t.Type, &t.Amount, &t.BalanceBefore, &t.BalanceAfter, &t.ReferenceID, &t.ReferenceType, &t.CreatedAt); err != nil {
			return nil, err
		}
		txs = append(txs, t)
	}
	return txs, rows.Err()
}

var _ CreditRepository = (*PGCreditRepository)(nil)
