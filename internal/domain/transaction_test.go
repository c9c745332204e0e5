package domain

import (
	"errors"
	"testing"
	"time"
)

func TestTransactionReleasePath(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tx := Transaction{ID: "tx-1", Status: TransactionHeld, HoldRef: "hold_1"}

	pending, err := tx.BeginRelease("shp-1:capture", now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pending.Status != TransactionReleasing {
		t.Fatalf("status = %s, want RELEASING", pending.Status)
	}
	if pending.PendingKey != "shp-1:capture" {
		t.Fatalf("pending key = %q", pending.PendingKey)
	}
	if !pending.Settling() {
		t.Fatal("RELEASING should report Settling")
	}

	// Re-marking an interrupted release is a no-op.
	again, err := pending.BeginRelease("shp-1:capture", now.Add(time.Minute))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if again.Status != TransactionReleasing || !again.UpdatedAt.Equal(pending.UpdatedAt) {
		t.Fatalf("re-marking mutated the transaction: %+v", again)
	}

	released, err := pending.CompleteRelease("receipt_1", now.Add(time.Minute))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if released.Status != TransactionReleased {
		t.Fatalf("status = %s, want RELEASED", released.Status)
	}
	if released.Receipt != "receipt_1" {
		t.Fatalf("receipt = %q", released.Receipt)
	}
	if released.PendingKey != "" {
		t.Fatalf("pending key not cleared: %q", released.PendingKey)
	}
	if !released.Terminal() {
		t.Fatal("RELEASED should be terminal")
	}
}

func TestTransactionRefundPath(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tx := Transaction{ID: "tx-1", Status: TransactionHeld, HoldRef: "hold_1"}

	pending, err := tx.BeginRefund("shp-1:void", now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pending.Status != TransactionRefunding {
		t.Fatalf("status = %s, want REFUNDING", pending.Status)
	}

	refunded, err := pending.CompleteRefund("receipt_2", now.Add(time.Minute))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if refunded.Status != TransactionRefunded || !refunded.Terminal() {
		t.Fatalf("status = %s, want terminal REFUNDED", refunded.Status)
	}
}

func TestTransactionCrossStateGuards(t *testing.T) {
	now := time.Now()

	releasing := Transaction{ID: "tx-1", Status: TransactionReleasing}
	if _, err := releasing.BeginRefund("k", now); !errors.Is(err, ErrWrongState) {
		t.Errorf("BeginRefund on RELEASING: err = %v, want ErrWrongState", err)
	}
	if _, err := releasing.CompleteRefund("r", now); !errors.Is(err, ErrWrongState) {
		t.Errorf("CompleteRefund on RELEASING: err = %v, want ErrWrongState", err)
	}

	released := Transaction{ID: "tx-1", Status: TransactionReleased}
	if _, err := released.BeginRelease("k", now); !errors.Is(err, ErrAlreadyTerminal) {
		t.Errorf("BeginRelease on RELEASED: err = %v, want ErrAlreadyTerminal", err)
	}
	if _, err := released.BeginRefund("k", now); !errors.Is(err, ErrAlreadyTerminal) {
		t.Errorf("BeginRefund on RELEASED: err = %v, want ErrAlreadyTerminal", err)
	}

	held := Transaction{ID: "tx-1", Status: TransactionHeld}
	if _, err := held.CompleteRelease("r", now); !errors.Is(err, ErrWrongState) {
		t.Errorf("CompleteRelease on HELD: err = %v, want ErrWrongState", err)
	}
}

func TestPlatformFee(t *testing.T) {
	cases := []struct {
		amount  int64
		percent float64
		want    int64
	}{
		{10000, 15, 1500},
		{999, 15, 150}, // 149.85 rounds up
		{1, 15, 0},     // 0.15 rounds down
		{10000, 0, 0},
		{0, 15, 0},
		{-500, 15, 0},
		{10000, 12.5, 1250},
	}

	for _, c := range cases {
		if got := PlatformFee(c.amount, c.percent); got != c.want {
			t.Errorf("PlatformFee(%d, %v) = %d, want %d", c.amount, c.percent, got, c.want)
		}
	}
}
