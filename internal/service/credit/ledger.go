package credit

import (
	"context"
	"fmt"

	"github.com/avdeev-dev/slotbook/internal/domain"
	"github.com/avdeev-dev/slotbook/internal/repository"
	"github.com/shopspring/decimal"
)

type LedgerUseCase interface {
	Balance(ctx context.Context, userID int64) (decimal.Decimal, error)
	Adjust(ctx context.Context, userID int64, amount decimal.Decimal, txType domain.CreditTransactionType, refID int64, refType string) (*domain.CreditTransaction, error)
	Transactions(ctx context.Context, userID int64) ([]domain.CreditTransaction, error)
}

// Ledger wraps the credit repository. Serialization of concurrent
// adjustments and the balance/transaction pairing both live in the
// repository's row-locked transaction; the service adds validation.
type Ledger struct {
	repo repository.CreditRepository
}

func NewLedger(repo repository.CreditRepository) *Ledger {
	return &Ledger{repo: repo}
}

// Balance reads the current balance. A user without an account row has a
// zero balance; that is not an error.
func (l *Ledger) Balance(ctx context.Context, userID int64) (decimal.Decimal, error) {
	return l.repo.GetBalance(ctx, userID)
}

func (l *Ledger) Adjust(ctx context.Context, userID int64, amount decimal.Decimal, txType domain.CreditTransactionType, refID int64, refType string) (*domain.CreditTransaction, error) {
	if amount.IsZero() {
		return nil, fmt.Errorf("credit adjustment must be non-zero")
	}
	return l.repo.Adjust(ctx, userID, amount, txType, refID, refType)
}

func (l *Ledger) Transactions(ctx context.Context, userID int64) ([]domain.CreditTransaction, error) {
	return l.repo.ListTransactions(ctx, userID)
}

// Replay sums a user's transactions and compares the result against the
// stored balance. Used by reconciliation tooling to detect drift.
func (l *Ledger) Replay(ctx context.Context, userID int64) (decimal.Decimal, error) {
	txs, err := l.repo.ListTransactions(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}

	sum := decimal.Zero
	for _, tx := range txs {
		if !tx.BalanceAfter.Equal(tx.BalanceBefore.Add(tx.Amount)) {
			return decimal.Zero, fmt.Errorf("%w: transaction %d breaks the ledger chain", domain.ErrInvariantViolation, tx.ID)
		}
		sum = sum.Add(tx.Amount)
	}

	balance, err := l.repo.GetBalance(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}
	if !sum.Equal(balance) {
		return decimal.Zero, fmt.Errorf("%w: replayed sum %s != balance %s for user %d", domain.ErrInvariantViolation, sum, balance, userID)
	}
	return sum, nil
}

var _ LedgerUseCase = (*Ledger)(nil)
