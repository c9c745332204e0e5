package domain

import (
	"errors"
	"testing"
)

func TestMessageAdvanceMonotonic(t *testing.T) {
	m := Message{ID: "msg-1", Status: MessageSent}

	delivered, err := m.Advance(MessageDelivered)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if delivered.Status != MessageDelivered {
		t.Fatalf("status = %s, want DELIVERED", delivered.Status)
	}

	read, err := delivered.Advance(MessageRead)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if read.Status != MessageRead {
		t.Fatalf("status = %s, want READ", read.Status)
	}

	// Replaying a receipt is a no-op, never an error.
	same, err := read.Advance(MessageRead)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if same.Status != MessageRead {
		t.Fatalf("status = %s, want READ", same.Status)
	}

	if _, err := read.Advance(MessageSent); !errors.Is(err, ErrWrongState) {
		t.Fatalf("backward advance: err = %v, want ErrWrongState", err)
	}
	if _, err := read.Advance(MessageDelivered); !errors.Is(err, ErrWrongState) {
		t.Fatalf("READ -> DELIVERED: err = %v, want ErrWrongState", err)
	}
}

func TestMessageAdvanceSkipsDelivered(t *testing.T) {
	// A read receipt may arrive before any delivery receipt.
	m := Message{ID: "msg-1", Status: MessageSent}

	read, err := m.Advance(MessageRead)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if read.Status != MessageRead {
		t.Fatalf("status = %s, want READ", read.Status)
	}
}
