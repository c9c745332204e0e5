package ports

import (
	"context"
	"delivery-match-service/internal/domain"
	"time"
)

// ChangeSet collects every row touched by one command so the store can
// apply them in a single atomic commit. New* slices are inserts; the
// remaining slices are conditional updates guarded by each aggregate's
// loaded version. Any stale version fails the whole commit with
// domain.ErrVersionConflict and nothing is applied.
type ChangeSet struct {
	NewShipments     []*domain.Shipment
	NewOffers        []*domain.Offer
	NewConversations []*domain.Conversation
	NewMessages      []*domain.Message
	NewTransactions  []*domain.Transaction

	Shipments     []*domain.Shipment
	Offers        []*domain.Offer
	Conversations []*domain.Conversation
	Messages      []*domain.Message
	Transactions  []*domain.Transaction
}

// Empty reports whether the changeset carries no writes.
func (cs *ChangeSet) Empty() bool {
	return len(cs.NewShipments)+len(cs.NewOffers)+len(cs.NewConversations)+
		len(cs.NewMessages)+len(cs.NewTransactions)+
		len(cs.Shipments)+len(cs.Offers)+len(cs.Conversations)+
		len(cs.Messages)+len(cs.Transactions) == 0
}

// Port: durable keyed storage for the five aggregate types with
// per-aggregate optimistic version numbers.
//
// Get/Find methods return domain.ErrNotFound (wrapped) for missing rows.
// Commit increments the version of every written aggregate; callers keep
// the version they loaded and never bump it themselves.
type Ledger interface {
	GetShipment(ctx context.Context, id string) (*domain.Shipment, error)

	GetOffer(ctx context.Context, id string) (*domain.Offer, error)
	ListOffersByShipment(ctx context.Context, shipmentID string) ([]*domain.Offer, error)
	// FindOpenOffer returns the courier's PENDING or ACCEPTED offer on the
	// shipment, if any.
	FindOpenOffer(ctx context.Context, shipmentID, courierID string) (*domain.Offer, error)

	GetConversation(ctx context.Context, id string) (*domain.Conversation, error)
	FindConversationByShipment(ctx context.Context, shipmentID, counterpartID string) (*domain.Conversation, error)

	ListMessages(ctx context.Context, conversationID string) ([]*domain.Message, error)

	// FindTransactionByShipment returns the shipment's transaction
	// regardless of status; at most one exists per shipment.
	FindTransactionByShipment(ctx context.Context, shipmentID string) (*domain.Transaction, error)
	// ListSettlingTransactions returns RELEASING/REFUNDING rows last
	// touched before the cutoff, for the reconciliation pass.
	ListSettlingTransactions(ctx context.Context, updatedBefore time.Time) ([]*domain.Transaction, error)

	Commit(ctx context.Context, cs *ChangeSet) error
}
