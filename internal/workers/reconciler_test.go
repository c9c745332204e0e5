package workers

import (
	"context"
	"delivery-match-service/internal/adapters/currency"
	"delivery-match-service/internal/adapters/payment"
	"delivery-match-service/internal/adapters/repositories"
	"delivery-match-service/internal/domain"
	"delivery-match-service/internal/ports"
	"delivery-match-service/internal/services"
	"errors"
	"testing"
	"time"
)

type reconcilerFixture struct {
	ledger     *repositories.MemoryLedger
	processor  *payment.MockProcessor
	reconciler *Reconciler
	shipmentID string
}

// stuckTransaction stages the crash window: the settlement call was marked
// locally but its confirmation never landed, leaving the transaction in the
// given pending status.
func stuckTransaction(t *testing.T, pending domain.TransactionStatus) *reconcilerFixture {
	t.Helper()
	ctx := context.Background()

	ledger := repositories.NewMemoryLedger()
	processor := payment.NewMockProcessor()
	settlement := services.NewSettlementService(ledger, processor, currency.NewStaticDirectory(), nil, 15)
	match := services.NewMatchService(ledger, settlement, nil)

	shipment, err := match.CreateShipment(ctx, services.CreateShipmentRequest{
		SenderID:    "sender-1",
		Origin:      "Berlin",
		Destination: "Hamburg",
		PriceAmount: 10000,
		Currency:    "EUR",
	})
	if err != nil {
		t.Fatalf("create shipment: %v", err)
	}
	offer, err := match.CreateOffer(ctx, services.CreateOfferRequest{
		ShipmentID: shipment.ID, CourierID: "courier-1", PriceAmount: 9000,
	})
	if err != nil {
		t.Fatalf("create offer: %v", err)
	}
	if _, err := match.AcceptMatch(ctx, shipment.ID, offer.ID, "sender-1"); err != nil {
		t.Fatalf("accept match: %v", err)
	}

	switch pending {
	case domain.TransactionReleasing:
		processor.CaptureErr = errors.New("confirmation lost")
		if _, err := settlement.Release(ctx, shipment.ID, "sender-1"); err == nil {
			t.Fatal("release should have failed")
		}
		processor.CaptureErr = nil
	case domain.TransactionRefunding:
		processor.VoidErr = errors.New("confirmation lost")
		if _, err := settlement.Refund(ctx, shipment.ID, "sender-1", false); err == nil {
			t.Fatal("refund should have failed")
		}
		processor.VoidErr = nil
	default:
		t.Fatalf("unsupported pending status %s", pending)
	}

	r := NewReconciler(ledger, processor)
	r.PendingAge = 0

	return &reconcilerFixture{
		ledger:     ledger,
		processor:  processor,
		reconciler: r,
		shipmentID: shipment.ID,
	}
}

func TestReconcilerReplaysConfirmedCapture(t *testing.T) {
	ctx := context.Background()
	f := stuckTransaction(t, domain.TransactionReleasing)

	tx, err := f.ledger.FindTransactionByShipment(ctx, f.shipmentID)
	if err != nil {
		t.Fatalf("find transaction: %v", err)
	}
	f.processor.SettleExternally(tx.HoldRef, ports.HoldStateCaptured, "receipt_late")
	captures := f.processor.CaptureCalls

	resolved, err := f.reconciler.ReconcileOnce(ctx)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if resolved != 1 {
		t.Fatalf("resolved = %d, want 1", resolved)
	}

	// The outcome is copied, never re-captured.
	if f.processor.CaptureCalls != captures {
		t.Fatalf("reconciler called Capture (%d -> %d)", captures, f.processor.CaptureCalls)
	}

	final, err := f.ledger.FindTransactionByShipment(ctx, f.shipmentID)
	if err != nil {
		t.Fatalf("find transaction: %v", err)
	}
	if final.Status != domain.TransactionReleased || final.Receipt != "receipt_late" {
		t.Fatalf("transaction = %s/%q, want RELEASED/receipt_late", final.Status, final.Receipt)
	}

	shipment, err := f.ledger.GetShipment(ctx, f.shipmentID)
	if err != nil {
		t.Fatalf("get shipment: %v", err)
	}
	if shipment.Status != domain.ShipmentDelivered {
		t.Fatalf("shipment status = %s, want DELIVERED", shipment.Status)
	}
}

func TestReconcilerReplaysConfirmedVoid(t *testing.T) {
	ctx := context.Background()
	f := stuckTransaction(t, domain.TransactionRefunding)

	tx, err := f.ledger.FindTransactionByShipment(ctx, f.shipmentID)
	if err != nil {
		t.Fatalf("find transaction: %v", err)
	}
	f.processor.SettleExternally(tx.HoldRef, ports.HoldStateVoided, "receipt_void_late")

	resolved, err := f.reconciler.ReconcileOnce(ctx)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if resolved != 1 {
		t.Fatalf("resolved = %d, want 1", resolved)
	}

	final, err := f.ledger.FindTransactionByShipment(ctx, f.shipmentID)
	if err != nil {
		t.Fatalf("find transaction: %v", err)
	}
	if final.Status != domain.TransactionRefunded {
		t.Fatalf("transaction status = %s, want REFUNDED", final.Status)
	}

	shipment, err := f.ledger.GetShipment(ctx, f.shipmentID)
	if err != nil {
		t.Fatalf("get shipment: %v", err)
	}
	if shipment.Status != domain.ShipmentCancelled {
		t.Fatalf("shipment status = %s, want CANCELLED", shipment.Status)
	}
}

func TestReconcilerLeavesUnsettledHoldAlone(t *testing.T) {
	// The capture never reached the processor: the hold is still live and
	// only a client retry may settle it.
	ctx := context.Background()
	f := stuckTransaction(t, domain.TransactionReleasing)

	if _, err := f.reconciler.ReconcileOnce(ctx); err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	tx, err := f.ledger.FindTransactionByShipment(ctx, f.shipmentID)
	if err != nil {
		t.Fatalf("find transaction: %v", err)
	}
	if tx.Status != domain.TransactionReleasing {
		t.Fatalf("transaction status = %s, want RELEASING untouched", tx.Status)
	}
	if f.processor.CaptureCalls != 1 {
		t.Fatalf("capture calls = %d, want 1 (the original failed attempt)", f.processor.CaptureCalls)
	}

	shipment, err := f.ledger.GetShipment(ctx, f.shipmentID)
	if err != nil {
		t.Fatalf("get shipment: %v", err)
	}
	if shipment.Status != domain.ShipmentMatched {
		t.Fatalf("shipment status = %s, want MATCHED", shipment.Status)
	}
}

func TestReconcilerSkipsFreshRows(t *testing.T) {
	ctx := context.Background()
	f := stuckTransaction(t, domain.TransactionReleasing)
	f.reconciler.PendingAge = 5 * time.Minute

	resolved, err := f.reconciler.ReconcileOnce(ctx)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if resolved != 0 {
		t.Fatalf("resolved = %d, want 0 for a row younger than PendingAge", resolved)
	}
}
