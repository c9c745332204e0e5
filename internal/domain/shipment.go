package domain

import (
	"fmt"
	"time"
)

type ShipmentStatus string

const (
	ShipmentOpen      ShipmentStatus = "OPEN"
	ShipmentMatched   ShipmentStatus = "MATCHED"
	ShipmentInTransit ShipmentStatus = "IN_TRANSIT"
	ShipmentDelivered ShipmentStatus = "DELIVERED"
	ShipmentCancelled ShipmentStatus = "CANCELLED"
)

// Route describes where a shipment travels from and to.
type Route struct {
	Origin      string
	Destination string
}

// DeliveryWindow bounds when the sender wants the package moved.
type DeliveryWindow struct {
	Start time.Time
	End   time.Time
}

// Shipment is the aggregate root for one delivery request.
// Its version counter gates every dependent Offer/Conversation/Transaction
// write, so all transition methods are pure: they return the next state and
// leave the receiver untouched. Persisting the result is the caller's job.
type Shipment struct {
	ID                string
	SenderID          string
	CourierID         string // set on match, empty while OPEN
	Route             Route
	PriceAmount       int64 // minor currency units
	Currency          string
	PackageDescriptor string
	Window            DeliveryWindow
	Status            ShipmentStatus
	Version           int64
	CreatedAt         time.Time
}

// Terminal reports whether no further transitions are legal.
func (s Shipment) Terminal() bool {
	return s.Status == ShipmentDelivered || s.Status == ShipmentCancelled
}

func (s Shipment) guardNotTerminal() error {
	if s.Terminal() {
		return fmt.Errorf("shipment %s status=%s: %w", s.ID, s.Status, ErrAlreadyTerminal)
	}
	return nil
}

// Match transitions OPEN -> MATCHED and records the winning courier.
func (s Shipment) Match(courierID string) (Shipment, error) {
	if err := s.guardNotTerminal(); err != nil {
		return s, err
	}
	if s.Status != ShipmentOpen {
		return s, fmt.Errorf("match shipment %s status=%s: %w", s.ID, s.Status, ErrWrongState)
	}
	if courierID == "" {
		return s, fmt.Errorf("match shipment %s: courier id must not be empty", s.ID)
	}

	s.Status = ShipmentMatched
	s.CourierID = courierID
	return s, nil
}

// Unmatch reverts MATCHED|IN_TRANSIT -> OPEN. It exists for hold-failure
// compensation only: a matched shipment must never outlive a failed hold,
// even when the courier reported pickup in the window before the failure
// surfaced.
func (s Shipment) Unmatch() (Shipment, error) {
	if s.Status != ShipmentMatched && s.Status != ShipmentInTransit {
		return s, fmt.Errorf("unmatch shipment %s status=%s: %w", s.ID, s.Status, ErrWrongState)
	}

	s.Status = ShipmentOpen
	s.CourierID = ""
	return s, nil
}

// MarkInTransit transitions MATCHED -> IN_TRANSIT. Only the matched courier
// may report pickup.
func (s Shipment) MarkInTransit(actorID string) (Shipment, error) {
	if err := s.guardNotTerminal(); err != nil {
		return s, err
	}
	if actorID != s.CourierID || s.CourierID == "" {
		return s, fmt.Errorf("mark in transit shipment %s actor=%s: %w", s.ID, actorID, ErrUnauthorized)
	}
	if s.Status != ShipmentMatched {
		return s, fmt.Errorf("mark in transit shipment %s status=%s: %w", s.ID, s.Status, ErrWrongState)
	}

	s.Status = ShipmentInTransit
	return s, nil
}

// Deliver transitions MATCHED|IN_TRANSIT -> DELIVERED. Only the sender
// confirms delivery, because confirmation releases escrowed funds.
func (s Shipment) Deliver(actorID string) (Shipment, error) {
	if err := s.guardNotTerminal(); err != nil {
		return s, err
	}
	if actorID != s.SenderID {
		return s, fmt.Errorf("deliver shipment %s actor=%s: %w", s.ID, actorID, ErrUnauthorized)
	}
	if s.Status != ShipmentMatched && s.Status != ShipmentInTransit {
		return s, fmt.Errorf("deliver shipment %s status=%s: %w", s.ID, s.Status, ErrWrongState)
	}

	s.Status = ShipmentDelivered
	return s, nil
}

// Cancel transitions OPEN|MATCHED|IN_TRANSIT -> CANCELLED.
// Authorization and the refund side effect are decided by the caller:
// the withdraw path cancels an un-matched shipment directly, while the
// refund path cancels together with the transaction flip.
func (s Shipment) Cancel() (Shipment, error) {
	if err := s.guardNotTerminal(); err != nil {
		return s, err
	}

	s.Status = ShipmentCancelled
	return s, nil
}
