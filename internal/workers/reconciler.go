package workers

import (
	"context"
	"delivery-match-service/internal/domain"
	"delivery-match-service/internal/ports"
	"fmt"
	"log"
	"time"
)

// Reconciler resolves transactions stuck between "processor confirmed" and
// "local commit": rows left RELEASING or REFUNDING by a crash or timeout.
// It asks the processor what really happened and replays the confirmed
// outcome into the ledger. It never initiates a new capture or void — the
// processor's recorded result is the truth being copied, not recomputed.
type Reconciler struct {
	Ledger    ports.Ledger
	Processor ports.ProcessorStatusChecker

	// Rows younger than PendingAge are skipped; their settlement call is
	// likely still in flight.
	PendingAge time.Duration
	Interval   time.Duration

	now func() time.Time
}

func NewReconciler(ledger ports.Ledger, processor ports.ProcessorStatusChecker) *Reconciler {
	return &Reconciler{
		Ledger:     ledger,
		Processor:  processor,
		PendingAge: 5 * time.Minute,
		Interval:   time.Minute,
		now:        time.Now,
	}
}

// Run loops until the context is cancelled.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			resolved, err := r.ReconcileOnce(ctx)
			if err != nil {
				log.Printf("op=reconcile err=%v", err)
				continue
			}
			if resolved > 0 {
				log.Printf("op=reconcile resolved=%d", resolved)
			}
		}
	}
}

// ReconcileOnce processes one batch of stuck transactions and returns how
// many it resolved.
func (r *Reconciler) ReconcileOnce(ctx context.Context) (int, error) {
	cutoff := r.now().Add(-r.PendingAge)
	stuck, err := r.Ledger.ListSettlingTransactions(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("reconcile: %w", err)
	}

	resolved := 0
	for _, tx := range stuck {
		if err := r.resolve(ctx, tx); err != nil {
			log.Printf("op=reconcile transaction_id=%s shipment_id=%s err=%v", tx.ID, tx.ShipmentID, err)
			continue
		}
		resolved++
	}

	return resolved, nil
}

func (r *Reconciler) resolve(ctx context.Context, tx *domain.Transaction) error {
	state, receipt, err := r.Processor.LookupHold(ctx, tx.HoldRef)
	if err != nil {
		return fmt.Errorf("resolve transaction %s: %w", tx.ID, err)
	}

	switch state {
	case ports.HoldStateCaptured:
		return r.finishRelease(ctx, tx, receipt)
	case ports.HoldStateVoided:
		return r.finishRefund(ctx, tx, receipt)
	case ports.HoldStateHeld:
		// The settlement call never reached the processor. The row keeps
		// its pending status and idempotency key; a client retry of the
		// original operation completes it.
		return nil
	}
	return fmt.Errorf("resolve transaction %s: processor state unknown for hold %s", tx.ID, tx.HoldRef)
}

func (r *Reconciler) finishRelease(ctx context.Context, tx *domain.Transaction, receipt string) error {
	if tx.Status != domain.TransactionReleasing {
		return fmt.Errorf("finish release transaction %s status=%s: %w", tx.ID, tx.Status, domain.ErrWrongState)
	}

	released, err := tx.CompleteRelease(receipt, r.now())
	if err != nil {
		return fmt.Errorf("finish release: %w", err)
	}

	shipment, err := r.Ledger.GetShipment(ctx, tx.ShipmentID)
	if err != nil {
		return fmt.Errorf("finish release: %w", err)
	}
	delivered, err := shipment.Deliver(shipment.SenderID)
	if err != nil {
		return fmt.Errorf("finish release: %w", err)
	}

	cs := &ports.ChangeSet{
		Transactions: []*domain.Transaction{&released},
		Shipments:    []*domain.Shipment{&delivered},
	}
	if err := r.Ledger.Commit(ctx, cs); err != nil {
		return fmt.Errorf("finish release: %w", err)
	}

	return nil
}

func (r *Reconciler) finishRefund(ctx context.Context, tx *domain.Transaction, receipt string) error {
	if tx.Status != domain.TransactionRefunding {
		return fmt.Errorf("finish refund transaction %s status=%s: %w", tx.ID, tx.Status, domain.ErrWrongState)
	}

	refunded, err := tx.CompleteRefund(receipt, r.now())
	if err != nil {
		return fmt.Errorf("finish refund: %w", err)
	}

	shipment, err := r.Ledger.GetShipment(ctx, tx.ShipmentID)
	if err != nil {
		return fmt.Errorf("finish refund: %w", err)
	}
	cancelled, err := shipment.Cancel()
	if err != nil {
		return fmt.Errorf("finish refund: %w", err)
	}

	cs := &ports.ChangeSet{
		Transactions: []*domain.Transaction{&refunded},
		Shipments:    []*domain.Shipment{&cancelled},
	}
	if err := r.Ledger.Commit(ctx, cs); err != nil {
		return fmt.Errorf("finish refund: %w", err)
	}

	return nil
}
