package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type CreditTransactionType string

const (
	CreditTxSpend      CreditTransactionType = "SPEND"
	CreditTxRefund     CreditTransactionType = "REFUND"
	CreditTxGrant      CreditTransactionType = "GRANT"
	CreditTxCorrection CreditTransactionType = "CORRECTION"
)

type CreditAccount struct {
	UserID    int64
	Balance   decimal.Decimal
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CreditTransaction is an immutable ledger row. For any user the sum of
// transaction amounts reconstructs the account balance.
type CreditTransaction struct {
	ID            int64
	UserID        int64
	Type          CreditTransactionType
	Amount        decimal.Decimal
	BalanceBefore decimal.Decimal
	BalanceAfter  decimal.Decimal
	ReferenceID   int64
	ReferenceType string
	CreatedAt     time.Time
}
