package ports

import "context"

// Event kinds pushed to users after durable commits.
const (
	EventOfferCreated      = "offer_created"
	EventOfferDeclined     = "offer_declined"
	EventMatchAccepted     = "match_accepted"
	EventOfferLost         = "offer_lost"
	EventShipmentInTransit = "shipment_in_transit"
	EventDeliveryConfirmed = "delivery_confirmed"
	EventShipmentCancelled = "shipment_cancelled"
	EventShipmentWithdrawn = "shipment_withdrawn"
	EventMessageReceived   = "message_received"
)

// Port: fire-and-forget notification delivery. Implementations must never
// block a state transition; failures are logged, not retried, by this
// engine.
type Notifier interface {
	Notify(ctx context.Context, userID, eventKind string, payload map[string]string) error
}
