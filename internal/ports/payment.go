package ports

import "context"

// HoldRequest asks the processor to reserve funds from the payer without
// transferring them yet. The idempotency key makes retries converge on a
// single processor-side effect.
type HoldRequest struct {
	PayerID        string
	PayeeID        string
	Amount         int64 // minor currency units
	Currency       string
	IdempotencyKey string
	Description    string
	Metadata       map[string]string
}

// HoldState is the processor-side view of a hold, used by the
// reconciliation pass to trust the processor's confirmed result over
// local uncertainty.
type HoldState string

const (
	HoldStateHeld     HoldState = "held"
	HoldStateCaptured HoldState = "captured"
	HoldStateVoided   HoldState = "voided"
	HoldStateUnknown  HoldState = "unknown"
)

// Contract for the external payment processor. All three calls must accept
// idempotency keys and return a stable reference/receipt.
type PaymentProcessor interface {
	// Hold reserves funds and returns a reference usable for later
	// capture or void.
	Hold(ctx context.Context, req HoldRequest) (holdRef string, err error)
	// Capture transfers previously held funds to the payee.
	Capture(ctx context.Context, holdRef, idempotencyKey string) (receipt string, err error)
	// Void releases previously held funds back to the payer.
	Void(ctx context.Context, holdRef, idempotencyKey string) (receipt string, err error)
}

// Optional extension of PaymentProcessor implemented by processors that can
// report the settled state of an existing hold.
type ProcessorStatusChecker interface {
	PaymentProcessor
	// LookupHold returns the processor's view of the hold and, when
	// settled, the receipt of the settling operation.
	LookupHold(ctx context.Context, holdRef string) (HoldState, string, error)
}

// Port: resolves a platform user to the stored payment credentials held by
// the external card vault. Card capture and tokenization are outside this
// engine.
type CardVault interface {
	PaymentProfile(ctx context.Context, userID string) (customerID, paymentMethodID string, err error)
}
