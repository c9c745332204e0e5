package domain

import (
	"errors"
	"testing"
)

func TestOfferTransitions(t *testing.T) {
	o := Offer{ID: "off-1", Status: OfferPending}

	accepted, err := o.Accept()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if accepted.Status != OfferAccepted || !accepted.Terminal() {
		t.Fatalf("status = %s, want terminal ACCEPTED", accepted.Status)
	}

	if _, err := accepted.Reject(); !errors.Is(err, ErrAlreadyTerminal) {
		t.Fatalf("Reject of ACCEPTED offer: err = %v, want ErrAlreadyTerminal", err)
	}

	reopened, err := accepted.Reopen()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reopened.Status != OfferPending {
		t.Fatalf("status = %s, want PENDING", reopened.Status)
	}
}

func TestOfferOpen(t *testing.T) {
	if !(Offer{Status: OfferPending}).Open() {
		t.Error("PENDING offer should be open")
	}
	if !(Offer{Status: OfferAccepted}).Open() {
		t.Error("ACCEPTED offer should be open")
	}
	if (Offer{Status: OfferRejected}).Open() {
		t.Error("REJECTED offer should not be open")
	}
}
