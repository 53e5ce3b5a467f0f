package payment

import (
	"github.com/avdeev-dev/slotbook/internal/domain"
	"github.com/shopspring/decimal"
)

// RefundableAmount computes the ledger credit owed when a settled payment
// is cancelled with the given charge percentage.
//
// Lesson price and admin fee are scaled by (100 − charge)/100. A voucher
// discount was a liability to the business and comes back in full. Line
// items flagged refundable come back in full; items flagged non-refundable
// do not. A staff-granted discount carries no refund obligation and is
// ignored.
func RefundableAmount(p *domain.Payment, chargePercentage int) decimal.Decimal {
	refundable := refundedShare(p.LessonPrice.Add(p.AdminFee), chargePercentage)
	refundable = refundable.Add(p.VoucherDiscount)
	for _, item := range p.Items {
		if item.Refundable {
			refundable = refundable.Add(item.Amount)
		}
	}
	return refundable
}

// refundedShare is the part of amount given back: amount × (100−pct)/100.
func refundedShare(amount decimal.Decimal, pct int) decimal.Decimal {
	return amount.Mul(decimal.NewFromInt(int64(100 - pct))).Div(decimal.NewFromInt(100))
}

// chargedShare is the part of amount kept as the cancellation charge.
func chargedShare(amount decimal.Decimal, pct int) decimal.Decimal {
	return amount.Mul(decimal.NewFromInt(int64(pct))).Div(decimal.NewFromInt(100))
}
