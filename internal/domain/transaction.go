package domain

import (
	"fmt"
	"math"
	"time"
)

type TransactionStatus string

const (
	TransactionHeld      TransactionStatus = "HELD"
	TransactionReleasing TransactionStatus = "RELEASING"
	TransactionReleased  TransactionStatus = "RELEASED"
	TransactionRefunding TransactionStatus = "REFUNDING"
	TransactionRefunded  TransactionStatus = "REFUNDED"
)

// Transaction is the escrow record for one shipment. RELEASING and
// REFUNDING are intermediate states persisted before the processor call so
// a crash between "processor confirmed" and "local commit" is recoverable:
// the reconciler replays the processor's confirmed outcome.
// RELEASED and REFUNDED are terminal.
type Transaction struct {
	ID           string
	ShipmentID   string
	PayerID      string
	PayeeID      string
	Amount       int64 // held from payer, minor units
	FeeAmount    int64 // platform fee, computed server-side at hold time
	PayoutAmount int64 // Amount - FeeAmount, owed to payee on release
	Currency     string
	Status       TransactionStatus
	HoldRef      string // processor reference for capture/void
	Receipt      string // processor receipt once settled
	PendingKey   string // idempotency key of the in-flight settle call
	Version      int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Terminal reports whether the escrow reached a final outcome.
func (t Transaction) Terminal() bool {
	return t.Status == TransactionReleased || t.Status == TransactionRefunded
}

// Settling reports whether a processor call is in flight (or was interrupted).
func (t Transaction) Settling() bool {
	return t.Status == TransactionReleasing || t.Status == TransactionRefunding
}

// BeginRelease marks the capture attempt before the processor is called.
// Re-marking an already RELEASING transaction is a no-op so interrupted
// calls can be retried with the same idempotency key.
func (t Transaction) BeginRelease(idempotencyKey string, at time.Time) (Transaction, error) {
	if t.Terminal() {
		return t, fmt.Errorf("begin release transaction %s status=%s: %w", t.ID, t.Status, ErrAlreadyTerminal)
	}
	if t.Status == TransactionReleasing {
		return t, nil
	}
	if t.Status != TransactionHeld {
		return t, fmt.Errorf("begin release transaction %s status=%s: %w", t.ID, t.Status, ErrWrongState)
	}

	t.Status = TransactionReleasing
	t.PendingKey = idempotencyKey
	t.UpdatedAt = at
	return t, nil
}

// CompleteRelease records the processor's capture receipt: RELEASING -> RELEASED.
func (t Transaction) CompleteRelease(receipt string, at time.Time) (Transaction, error) {
	if t.Terminal() {
		return t, fmt.Errorf("complete release transaction %s status=%s: %w", t.ID, t.Status, ErrAlreadyTerminal)
	}
	if t.Status != TransactionReleasing {
		return t, fmt.Errorf("complete release transaction %s status=%s: %w", t.ID, t.Status, ErrWrongState)
	}

	t.Status = TransactionReleased
	t.Receipt = receipt
	t.PendingKey = ""
	t.UpdatedAt = at
	return t, nil
}

// BeginRefund marks the void attempt before the processor is called.
func (t Transaction) BeginRefund(idempotencyKey string, at time.Time) (Transaction, error) {
	if t.Terminal() {
		return t, fmt.Errorf("begin refund transaction %s status=%s: %w", t.ID, t.Status, ErrAlreadyTerminal)
	}
	if t.Status == TransactionRefunding {
		return t, nil
	}
	if t.Status != TransactionHeld {
		return t, fmt.Errorf("begin refund transaction %s status=%s: %w", t.ID, t.Status, ErrWrongState)
	}

	t.Status = TransactionRefunding
	t.PendingKey = idempotencyKey
	t.UpdatedAt = at
	return t, nil
}

// CompleteRefund records the processor's void receipt: REFUNDING -> REFUNDED.
func (t Transaction) CompleteRefund(receipt string, at time.Time) (Transaction, error) {
	if t.Terminal() {
		return t, fmt.Errorf("complete refund transaction %s status=%s: %w", t.ID, t.Status, ErrAlreadyTerminal)
	}
	if t.Status != TransactionRefunding {
		return t, fmt.Errorf("complete refund transaction %s status=%s: %w", t.ID, t.Status, ErrWrongState)
	}

	t.Status = TransactionRefunded
	t.Receipt = receipt
	t.PendingKey = ""
	t.UpdatedAt = at
	return t, nil
}

// PlatformFee computes the platform's cut of an escrowed amount, rounded to
// the nearest minor unit. The shipment's stored price is the only input
// that may feed this; client-supplied amounts are never trusted for money
// movement.
func PlatformFee(amount int64, percent float64) int64 {
	if amount <= 0 || percent <= 0 {
		return 0
	}
	return int64(math.Round(float64(amount) * percent / 100))
}
