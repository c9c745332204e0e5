package repositories

import (
	"context"
	"delivery-match-service/internal/domain"
	"delivery-match-service/internal/ports"
	"fmt"
	"slices"
	"sync"
	"time"
)

// In-memory implementation of the Ledger port. A single mutex stands in
// for the storage transaction: version checks and writes happen under one
// critical section, so commits are atomic and optimistic conflicts surface
// exactly as they would against the SQL store. Used by tests and local
// runs without a database.
type MemoryLedger struct {
	mu            sync.Mutex
	shipments     map[string]domain.Shipment
	offers        map[string]domain.Offer
	conversations map[string]domain.Conversation
	messages      map[string]domain.Message
	transactions  map[string]domain.Transaction
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		shipments:     map[string]domain.Shipment{},
		offers:        map[string]domain.Offer{},
		conversations: map[string]domain.Conversation{},
		messages:      map[string]domain.Message{},
		transactions:  map[string]domain.Transaction{},
	}
}

func (m *MemoryLedger) GetShipment(ctx context.Context, id string) (*domain.Shipment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.shipments[id]
	if !ok {
		return nil, fmt.Errorf("get shipment %s: %w", id, domain.ErrNotFound)
	}
	return &s, nil
}

func (m *MemoryLedger) GetOffer(ctx context.Context, id string) (*domain.Offer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.offers[id]
	if !ok {
		return nil, fmt.Errorf("get offer %s: %w", id, domain.ErrNotFound)
	}
	return &o, nil
}

func (m *MemoryLedger) ListOffersByShipment(ctx context.Context, shipmentID string) ([]*domain.Offer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*domain.Offer, 0, 4)
	for _, o := range m.offers {
		if o.ShipmentID == shipmentID {
			cp := o
			out = append(out, &cp)
		}
	}
	slices.SortFunc(out, func(a, b *domain.Offer) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(a.ID, b.ID)
		}
		if a.CreatedAt.Before(b.CreatedAt) {
			return -1
		}
		return 1
	})
	return out, nil
}

func (m *MemoryLedger) FindOpenOffer(ctx context.Context, shipmentID, courierID string) (*domain.Offer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, o := range m.offers {
		if o.ShipmentID == shipmentID && o.CourierID == courierID && o.Open() {
			cp := o
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("find open offer shipment=%s courier=%s: %w", shipmentID, courierID, domain.ErrNotFound)
}

func (m *MemoryLedger) GetConversation(ctx context.Context, id string) (*domain.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.conversations[id]
	if !ok {
		return nil, fmt.Errorf("get conversation %s: %w", id, domain.ErrNotFound)
	}
	return &c, nil
}

func (m *MemoryLedger) FindConversationByShipment(ctx context.Context, shipmentID, counterpartID string) (*domain.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, c := range m.conversations {
		if c.ShipmentID == shipmentID && c.User2ID == counterpartID {
			cp := c
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("find conversation shipment=%s counterpart=%s: %w", shipmentID, counterpartID, domain.ErrNotFound)
}

func (m *MemoryLedger) ListMessages(ctx context.Context, conversationID string) ([]*domain.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*domain.Message, 0, 16)
	for _, msg := range m.messages {
		if msg.ConversationID == conversationID {
			cp := msg
			out = append(out, &cp)
		}
	}
	slices.SortFunc(out, func(a, b *domain.Message) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(a.ID, b.ID)
		}
		if a.CreatedAt.Before(b.CreatedAt) {
			return -1
		}
		return 1
	})
	return out, nil
}

func (m *MemoryLedger) FindTransactionByShipment(ctx context.Context, shipmentID string) (*domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, t := range m.transactions {
		if t.ShipmentID == shipmentID {
			cp := t
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("find transaction shipment=%s: %w", shipmentID, domain.ErrNotFound)
}

func (m *MemoryLedger) ListSettlingTransactions(ctx context.Context, updatedBefore time.Time) ([]*domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*domain.Transaction, 0, 4)
	for _, t := range m.transactions {
		if t.Settling() && t.UpdatedAt.Before(updatedBefore) {
			cp := t
			out = append(out, &cp)
		}
	}
	slices.SortFunc(out, func(a, b *domain.Transaction) int { return cmpString(a.ID, b.ID) })
	return out, nil
}

// Commit applies the changeset atomically: every version precondition is
// checked before the first write, so a conflict leaves the ledger
// untouched.
func (m *MemoryLedger) Commit(ctx context.Context, cs *ports.ChangeSet) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, s := range cs.NewShipments {
		if _, ok := m.shipments[s.ID]; ok {
			return fmt.Errorf("commit: shipment %s already exists: %w", s.ID, domain.ErrVersionConflict)
		}
	}
	for _, o := range cs.NewOffers {
		if _, ok := m.offers[o.ID]; ok {
			return fmt.Errorf("commit: offer %s already exists: %w", o.ID, domain.ErrVersionConflict)
		}
	}
	for _, c := range cs.NewConversations {
		if _, ok := m.conversations[c.ID]; ok {
			return fmt.Errorf("commit: conversation %s already exists: %w", c.ID, domain.ErrVersionConflict)
		}
	}
	for _, msg := range cs.NewMessages {
		if _, ok := m.messages[msg.ID]; ok {
			return fmt.Errorf("commit: message %s already exists: %w", msg.ID, domain.ErrVersionConflict)
		}
	}
	for _, t := range cs.NewTransactions {
		if _, ok := m.transactions[t.ID]; ok {
			return fmt.Errorf("commit: transaction %s already exists: %w", t.ID, domain.ErrVersionConflict)
		}
	}

	for _, s := range cs.Shipments {
		cur, ok := m.shipments[s.ID]
		if !ok {
			return fmt.Errorf("commit: shipment %s: %w", s.ID, domain.ErrNotFound)
		}
		if cur.Version != s.Version {
			return fmt.Errorf("commit: shipment %s version %d != %d: %w", s.ID, s.Version, cur.Version, domain.ErrVersionConflict)
		}
	}
	for _, o := range cs.Offers {
		cur, ok := m.offers[o.ID]
		if !ok {
			return fmt.Errorf("commit: offer %s: %w", o.ID, domain.ErrNotFound)
		}
		if cur.Version != o.Version {
			return fmt.Errorf("commit: offer %s version %d != %d: %w", o.ID, o.Version, cur.Version, domain.ErrVersionConflict)
		}
	}
	for _, c := range cs.Conversations {
		cur, ok := m.conversations[c.ID]
		if !ok {
			return fmt.Errorf("commit: conversation %s: %w", c.ID, domain.ErrNotFound)
		}
		if cur.Version != c.Version {
			return fmt.Errorf("commit: conversation %s version %d != %d: %w", c.ID, c.Version, cur.Version, domain.ErrVersionConflict)
		}
	}
	for _, msg := range cs.Messages {
		cur, ok := m.messages[msg.ID]
		if !ok {
			return fmt.Errorf("commit: message %s: %w", msg.ID, domain.ErrNotFound)
		}
		if cur.Version != msg.Version {
			return fmt.Errorf("commit: message %s version %d != %d: %w", msg.ID, msg.Version, cur.Version, domain.ErrVersionConflict)
		}
	}
	for _, t := range cs.Transactions {
		cur, ok := m.transactions[t.ID]
		if !ok {
			return fmt.Errorf("commit: transaction %s: %w", t.ID, domain.ErrNotFound)
		}
		if cur.Version != t.Version {
			return fmt.Errorf("commit: transaction %s version %d != %d: %w", t.ID, t.Version, cur.Version, domain.ErrVersionConflict)
		}
	}

	for _, s := range cs.NewShipments {
		cp := *s
		cp.Version = 1
		m.shipments[cp.ID] = cp
	}
	for _, o := range cs.NewOffers {
		cp := *o
		cp.Version = 1
		m.offers[cp.ID] = cp
	}
	for _, c := range cs.NewConversations {
		cp := *c
		cp.Version = 1
		m.conversations[cp.ID] = cp
	}
	for _, msg := range cs.NewMessages {
		cp := *msg
		cp.Version = 1
		m.messages[cp.ID] = cp
	}
	for _, t := range cs.NewTransactions {
		cp := *t
		cp.Version = 1
		m.transactions[cp.ID] = cp
	}

	for _, s := range cs.Shipments {
		cp := *s
		cp.Version++
		m.shipments[cp.ID] = cp
	}
	for _, o := range cs.Offers {
		cp := *o
		cp.Version++
		m.offers[cp.ID] = cp
	}
	for _, c := range cs.Conversations {
		cp := *c
		cp.Version++
		m.conversations[cp.ID] = cp
	}
	for _, msg := range cs.Messages {
		cp := *msg
		cp.Version++
		m.messages[cp.ID] = cp
	}
	for _, t := range cs.Transactions {
		cp := *t
		cp.Version++
		m.transactions[cp.ID] = cp
	}

	return nil
}

func cmpString(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
