package domain

import (
	"fmt"
	"time"
)

type MessageType string

const (
	MessageText          MessageType = "TEXT"
	MessageSystem        MessageType = "SYSTEM"
	MessageOffer         MessageType = "OFFER"
	MessageMatchAccepted MessageType = "MATCH_ACCEPTED"
)

type MessageStatus string

const (
	MessageSent      MessageStatus = "SENT"
	MessageDelivered MessageStatus = "DELIVERED"
	MessageRead      MessageStatus = "READ"
)

// messageStatusRank orders delivery statuses so transitions can be checked
// for monotonicity: SENT -> DELIVERED -> READ, never backward.
var messageStatusRank = map[MessageStatus]int{
	MessageSent:      0,
	MessageDelivered: 1,
	MessageRead:      2,
}

// Message belongs to one conversation. Its delivery status only ever moves
// forward; a READ message can never regress to SENT.
type Message struct {
	ID             string
	ConversationID string
	SenderID       string
	Content        string
	Type           MessageType
	Status         MessageStatus
	Version        int64
	CreatedAt      time.Time
}

// Advance moves the delivery status forward. Advancing to the current
// status is a no-op so read receipts can be replayed safely; moving
// backward is rejected.
func (m Message) Advance(to MessageStatus) (Message, error) {
	fromRank, ok := messageStatusRank[m.Status]
	if !ok {
		return m, fmt.Errorf("advance message %s: unknown status %q", m.ID, m.Status)
	}
	toRank, ok := messageStatusRank[to]
	if !ok {
		return m, fmt.Errorf("advance message %s: unknown target status %q", m.ID, to)
	}

	if toRank < fromRank {
		return m, fmt.Errorf("advance message %s %s->%s: %w", m.ID, m.Status, to, ErrWrongState)
	}

	m.Status = to
	return m, nil
}
