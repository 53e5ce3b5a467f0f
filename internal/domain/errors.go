package domain

import "errors"

var (
	// ErrSlotConflict means a hold or confirm lost a race for a time range.
	// Retryable by re-querying availability.
	ErrSlotConflict = errors.New("slot conflict")

	// ErrReservationExpired means the session's hold lapsed before confirm;
	// the caller must restart slot selection.
	ErrReservationExpired = errors.New("reservation expired")

	// ErrPaymentNotPending means an already-resolved payment was asked to
	// transition. Callers treat it as a no-op success to stay idempotent.
	ErrPaymentNotPending = errors.New("payment not pending")

	// ErrGatewayUnavailable means the external gateway call failed or timed
	// out with an unknown outcome. Payment state must not be mutated.
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")

	// ErrInvariantViolation marks a computed state that must never be
	// persisted, such as a negative payment total.
	ErrInvariantViolation = errors.New("invariant violation")

	ErrNotFound = errors.New("not found")
)
