package domain

import (
	"fmt"
	"time"
)

type OfferStatus string

const (
	OfferPending  OfferStatus = "PENDING"
	OfferAccepted OfferStatus = "ACCEPTED"
	OfferRejected OfferStatus = "REJECTED"
)

// Offer is a courier's bid on an open shipment.
// At most one offer per (shipment, courier) may be PENDING or ACCEPTED at a
// time, and at most one offer per shipment ever reaches ACCEPTED; both
// invariants are enforced by the matching service under the shipment's
// version guard.
type Offer struct {
	ID          string
	ShipmentID  string
	CourierID   string
	PriceAmount int64 // minor currency units
	Currency    string
	Status      OfferStatus
	Version     int64
	CreatedAt   time.Time
}

// Terminal reports whether the offer reached a final status.
func (o Offer) Terminal() bool {
	return o.Status == OfferAccepted || o.Status == OfferRejected
}

// Open reports whether the offer still counts against the one-open-offer-per
// -courier invariant.
func (o Offer) Open() bool {
	return o.Status == OfferPending || o.Status == OfferAccepted
}

// Accept transitions PENDING -> ACCEPTED.
func (o Offer) Accept() (Offer, error) {
	if o.Terminal() {
		return o, fmt.Errorf("accept offer %s status=%s: %w", o.ID, o.Status, ErrAlreadyTerminal)
	}

	o.Status = OfferAccepted
	return o, nil
}

// Reject transitions PENDING -> REJECTED, used both for explicit declines
// and for siblings of an accepted offer.
func (o Offer) Reject() (Offer, error) {
	if o.Terminal() {
		return o, fmt.Errorf("reject offer %s status=%s: %w", o.ID, o.Status, ErrAlreadyTerminal)
	}

	o.Status = OfferRejected
	return o, nil
}

// Reopen reverts a terminal status back to PENDING. Compensation only,
// when a payment hold fails after the match was committed.
func (o Offer) Reopen() (Offer, error) {
	if o.Status == OfferPending {
		return o, nil
	}

	o.Status = OfferPending
	return o, nil
}
