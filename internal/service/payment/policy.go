package payment

import (
	"context"
	"time"

	"github.com/avdeev-dev/slotbook/internal/domain"
)

// TimeBasedPolicy charges by how close to the start the cancellation
// lands. Staff-initiated cancellations are always free.
type TimeBasedPolicy struct {
	FreeCancelWindow time.Duration
	LateWindow       time.Duration
	LateChargePct    int
}

func NewDefaultPolicy() *TimeBasedPolicy {
	return &TimeBasedPolicy{
		FreeCancelWindow: 24 * time.Hour,
		LateWindow:       2 * time.Hour,
		LateChargePct:    50,
	}
}

func (p *TimeBasedPolicy) GetChargePercentage(ctx context.Context, booking *domain.Booking, actorRole string, timeUntilStart time.Duration) (int, error) {
	if actorRole == "staff" || actorRole == "admin" {
		return 0, nil
	}
	// Without a booking there is nothing to anchor the windows on.
	if booking == nil {
		return 0, nil
	}
	switch {
	case timeUntilStart >= p.FreeCancelWindow:
		return 0, nil
	case timeUntilStart >= p.LateWindow:
		return p.LateChargePct, nil
	default:
		return 100, nil
	}
}

var _ PolicyResolver = (*TimeBasedPolicy)(nil)
