package services

import (
	"context"
	"delivery-match-service/internal/domain"
	"delivery-match-service/internal/platform/obs"
	"delivery-match-service/internal/ports"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// SettlementService orchestrates the escrow lifecycle against the external
// payment processor: hold on match, capture on delivery confirmation, void
// on cancellation.
//
// Every operation is idempotent per (shipment, operation kind): the
// processor idempotency key is derived from the shipment id, so a retry
// after a crash or timeout converges on a single processor-side effect.
// Concurrent identical calls in one process are additionally collapsed by
// singleflight before they reach storage or the processor.
type SettlementService struct {
	ledger     ports.Ledger
	processor  ports.PaymentProcessor
	currencies ports.CurrencyDirectory
	notifier   ports.Notifier
	feePercent float64

	now   func() time.Time
	newID func() string
	sf    singleflight.Group
}

func NewSettlementService(
	ledger ports.Ledger,
	processor ports.PaymentProcessor,
	currencies ports.CurrencyDirectory,
	notifier ports.Notifier,
	feePercent float64,
) *SettlementService {
	return &SettlementService{
		ledger:     ledger,
		processor:  processor,
		currencies: currencies,
		notifier:   notifier,
		feePercent: feePercent,
		now:        time.Now,
		newID:      uuid.NewString,
	}
}

// Keys for the processor's idempotency guarantee. One shipment has exactly
// one hold, one capture and one void key for its whole lifetime.
func holdKey(shipmentID string) string    { return shipmentID + ":hold" }
func captureKey(shipmentID string) string { return shipmentID + ":capture" }
func voidKey(shipmentID string) string    { return shipmentID + ":void" }

// Hold places the escrow hold for a freshly matched shipment. The amount
// is read from the shipment row, never from the caller, and the platform
// fee split is computed and recorded here.
//
// Fail-closed: the transaction row is persisted only after the processor
// confirms. If the local commit then fails, a retried Hold reuses the same
// idempotency key, so the processor returns the same hold rather than
// reserving funds twice.
func (s *SettlementService) Hold(ctx context.Context, shipmentID, payerID, payeeID string) (*domain.Transaction, error) {
	v, err, _ := s.sf.Do("hold_"+shipmentID, func() (any, error) {
		return s.hold(ctx, shipmentID, payerID, payeeID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.Transaction), nil
}

func (s *SettlementService) hold(ctx context.Context, shipmentID, payerID, payeeID string) (_ *domain.Transaction, err error) {
	defer obs.Time(ctx, "settlement.Hold")(&err)

	existing, err := s.ledger.FindTransactionByShipment(ctx, shipmentID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("hold: %w", err)
	}
	if existing != nil {
		if existing.Status == domain.TransactionHeld {
			// Retry of an already-settled hold; nothing to do.
			return existing, nil
		}
		if existing.Terminal() {
			return nil, fmt.Errorf("hold shipment %s: %w", shipmentID, domain.ErrAlreadyTerminal)
		}
		return nil, fmt.Errorf("hold shipment %s transaction status=%s: %w", shipmentID, existing.Status, domain.ErrWrongState)
	}

	shipment, err := s.ledger.GetShipment(ctx, shipmentID)
	if err != nil {
		return nil, fmt.Errorf("hold: %w", err)
	}

	if _, err := s.currencies.MinorUnits(ctx, shipment.Currency); err != nil {
		return nil, fmt.Errorf("hold shipment %s currency=%s: %w", shipmentID, shipment.Currency, err)
	}

	amount := shipment.PriceAmount
	fee := domain.PlatformFee(amount, s.feePercent)

	holdRef, err := s.processor.Hold(ctx, ports.HoldRequest{
		PayerID:        payerID,
		PayeeID:        payeeID,
		Amount:         amount,
		Currency:       shipment.Currency,
		IdempotencyKey: holdKey(shipmentID),
		Description:    fmt.Sprintf("Escrow for shipment %s", shipmentID),
		Metadata: map[string]string{
			"shipment_id": shipmentID,
			"payer_id":    payerID,
			"payee_id":    payeeID,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("hold shipment %s: %w: %v", shipmentID, domain.ErrPaymentHoldFailed, err)
	}

	now := s.now()
	tx := &domain.Transaction{
		ID:           s.newID(),
		ShipmentID:   shipmentID,
		PayerID:      payerID,
		PayeeID:      payeeID,
		Amount:       amount,
		FeeAmount:    fee,
		PayoutAmount: amount - fee,
		Currency:     shipment.Currency,
		Status:       domain.TransactionHeld,
		HoldRef:      holdRef,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	cs := &ports.ChangeSet{NewTransactions: []*domain.Transaction{tx}}
	if err := s.ledger.Commit(ctx, cs); err != nil {
		return nil, fmt.Errorf("hold shipment %s: persist transaction: %w", shipmentID, err)
	}

	return tx, nil
}

// Release captures the held funds for the payee and marks the shipment
// DELIVERED in the same commit. Only the sender may confirm delivery.
func (s *SettlementService) Release(ctx context.Context, shipmentID, actorID string) (*domain.Transaction, error) {
	v, err, _ := s.sf.Do("release_"+shipmentID, func() (any, error) {
		return s.release(ctx, shipmentID, actorID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.Transaction), nil
}

func (s *SettlementService) release(ctx context.Context, shipmentID, actorID string) (_ *domain.Transaction, err error) {
	defer obs.Time(ctx, "settlement.Release")(&err)

	shipment, err := s.ledger.GetShipment(ctx, shipmentID)
	if err != nil {
		return nil, fmt.Errorf("release: %w", err)
	}
	if actorID != shipment.SenderID {
		return nil, fmt.Errorf("release shipment %s actor=%s: %w", shipmentID, actorID, domain.ErrUnauthorized)
	}
	if shipment.Status != domain.ShipmentMatched && shipment.Status != domain.ShipmentInTransit {
		if shipment.Terminal() {
			return nil, fmt.Errorf("release shipment %s status=%s: %w", shipmentID, shipment.Status, domain.ErrAlreadyTerminal)
		}
		return nil, fmt.Errorf("release shipment %s status=%s: %w", shipmentID, shipment.Status, domain.ErrWrongState)
	}

	tx, err := s.ledger.FindTransactionByShipment(ctx, shipmentID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("release shipment %s: no escrow transaction: %w", shipmentID, domain.ErrWrongState)
		}
		return nil, fmt.Errorf("release: %w", err)
	}
	if tx.Terminal() {
		return nil, fmt.Errorf("release shipment %s transaction status=%s: %w", shipmentID, tx.Status, domain.ErrAlreadyTerminal)
	}
	if tx.Status == domain.TransactionRefunding {
		return nil, fmt.Errorf("release shipment %s: refund in flight: %w", shipmentID, domain.ErrWrongState)
	}

	// Mark the attempt before touching the processor so an interruption
	// leaves a RELEASING row the reconciler can resolve.
	if tx.Status == domain.TransactionHeld {
		pending, err := tx.BeginRelease(captureKey(shipmentID), s.now())
		if err != nil {
			return nil, fmt.Errorf("release: %w", err)
		}
		cs := &ports.ChangeSet{Transactions: []*domain.Transaction{&pending}}
		if err := s.ledger.Commit(ctx, cs); err != nil {
			return nil, fmt.Errorf("release shipment %s: mark releasing: %w", shipmentID, err)
		}
		pending.Version++
		tx = &pending
	}

	receipt, err := s.processor.Capture(ctx, tx.HoldRef, captureKey(shipmentID))
	if err != nil {
		return nil, fmt.Errorf("release shipment %s: %w: %v", shipmentID, domain.ErrPaymentCaptureFailed, err)
	}

	released, err := tx.CompleteRelease(receipt, s.now())
	if err != nil {
		return nil, fmt.Errorf("release: %w", err)
	}
	delivered, err := shipment.Deliver(actorID)
	if err != nil {
		return nil, fmt.Errorf("release: %w", err)
	}

	cs := &ports.ChangeSet{
		Transactions: []*domain.Transaction{&released},
		Shipments:    []*domain.Shipment{&delivered},
	}
	if err := s.ledger.Commit(ctx, cs); err != nil {
		// Processor already captured; the RELEASING row plus the stored
		// capture key lets the reconciler replay this outcome.
		return nil, fmt.Errorf("release shipment %s: persist settlement: %w", shipmentID, err)
	}

	s.notify(ctx, tx.PayeeID, ports.EventDeliveryConfirmed, map[string]string{
		"shipment_id":    shipmentID,
		"transaction_id": tx.ID,
	})

	return &released, nil
}

// Refund voids the hold back to the payer and marks the shipment CANCELLED
// in the same commit. The sender or an administrative actor may refund.
func (s *SettlementService) Refund(ctx context.Context, shipmentID, actorID string, admin bool) (*domain.Transaction, error) {
	v, err, _ := s.sf.Do("refund_"+shipmentID, func() (any, error) {
		return s.refund(ctx, shipmentID, actorID, admin)
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.Transaction), nil
}

func (s *SettlementService) refund(ctx context.Context, shipmentID, actorID string, admin bool) (_ *domain.Transaction, err error) {
	defer obs.Time(ctx, "settlement.Refund")(&err)

	shipment, err := s.ledger.GetShipment(ctx, shipmentID)
	if err != nil {
		return nil, fmt.Errorf("refund: %w", err)
	}
	if actorID != shipment.SenderID && !admin {
		return nil, fmt.Errorf("refund shipment %s actor=%s: %w", shipmentID, actorID, domain.ErrUnauthorized)
	}

	tx, err := s.ledger.FindTransactionByShipment(ctx, shipmentID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// Cancelling an un-matched shipment is the withdraw path, not
			// a refund.
			return nil, fmt.Errorf("refund shipment %s: no escrow transaction: %w", shipmentID, domain.ErrWrongState)
		}
		return nil, fmt.Errorf("refund: %w", err)
	}
	if tx.Terminal() {
		return nil, fmt.Errorf("refund shipment %s transaction status=%s: %w", shipmentID, tx.Status, domain.ErrAlreadyTerminal)
	}
	if tx.Status == domain.TransactionReleasing {
		return nil, fmt.Errorf("refund shipment %s: release in flight: %w", shipmentID, domain.ErrWrongState)
	}

	if tx.Status == domain.TransactionHeld {
		pending, err := tx.BeginRefund(voidKey(shipmentID), s.now())
		if err != nil {
			return nil, fmt.Errorf("refund: %w", err)
		}
		cs := &ports.ChangeSet{Transactions: []*domain.Transaction{&pending}}
		if err := s.ledger.Commit(ctx, cs); err != nil {
			return nil, fmt.Errorf("refund shipment %s: mark refunding: %w", shipmentID, err)
		}
		pending.Version++
		tx = &pending
	}

	receipt, err := s.processor.Void(ctx, tx.HoldRef, voidKey(shipmentID))
	if err != nil {
		return nil, fmt.Errorf("refund shipment %s: %w: %v", shipmentID, domain.ErrPaymentVoidFailed, err)
	}

	refunded, err := tx.CompleteRefund(receipt, s.now())
	if err != nil {
		return nil, fmt.Errorf("refund: %w", err)
	}
	cancelled, err := shipment.Cancel()
	if err != nil {
		return nil, fmt.Errorf("refund: %w", err)
	}

	cs := &ports.ChangeSet{
		Transactions: []*domain.Transaction{&refunded},
		Shipments:    []*domain.Shipment{&cancelled},
	}
	if err := s.ledger.Commit(ctx, cs); err != nil {
		return nil, fmt.Errorf("refund shipment %s: persist settlement: %w", shipmentID, err)
	}

	s.notify(ctx, tx.PayeeID, ports.EventShipmentCancelled, map[string]string{
		"shipment_id":    shipmentID,
		"transaction_id": tx.ID,
	})

	return &refunded, nil
}

func (s *SettlementService) notify(ctx context.Context, userID, kind string, payload map[string]string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, userID, kind, payload); err != nil {
		log.Printf("op=notify user_id=%s kind=%s err=%v", userID, kind, err)
	}
}
