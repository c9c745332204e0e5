package domain

import "fmt"

type ConversationStatus string

const (
	ConversationPending ConversationStatus = "PENDING"
	ConversationActive  ConversationStatus = "ACTIVE"
	ConversationMatched ConversationStatus = "MATCHED"
)

// Conversation pairs the shipment owner (User1) with one counterpart
// courier (User2). It is created lazily on the courier's first offer or
// message and follows its shipment into MATCHED.
type Conversation struct {
	ID         string
	ShipmentID string
	User1ID    string // shipment owner
	User2ID    string // courier counterpart
	Status     ConversationStatus
	Unread1    int // unread count for User1
	Unread2    int // unread count for User2
	Version    int64
}

// HasParticipant reports whether the user belongs to this conversation.
func (c Conversation) HasParticipant(userID string) bool {
	return userID == c.User1ID || userID == c.User2ID
}

// Counterpart returns the other participant's id.
func (c Conversation) Counterpart(userID string) (string, error) {
	switch userID {
	case c.User1ID:
		return c.User2ID, nil
	case c.User2ID:
		return c.User1ID, nil
	}
	return "", fmt.Errorf("conversation %s user=%s: %w", c.ID, userID, ErrUnauthorized)
}

// UnreadFor returns the unread counter for one participant.
func (c Conversation) UnreadFor(userID string) int {
	if userID == c.User1ID {
		return c.Unread1
	}
	return c.Unread2
}

// Activate transitions PENDING -> ACTIVE on the counterpart's first reply.
// Other statuses are left unchanged.
func (c Conversation) Activate() Conversation {
	if c.Status == ConversationPending {
		c.Status = ConversationActive
	}
	return c
}

// MarkMatched follows the shipment's OPEN -> MATCHED transition.
func (c Conversation) MarkMatched() Conversation {
	c.Status = ConversationMatched
	return c
}

// RevertMatch restores the pre-match status during hold-failure
// compensation.
func (c Conversation) RevertMatch(prior ConversationStatus) Conversation {
	c.Status = prior
	return c
}

// BumpUnread increments the recipient's unread counter.
func (c Conversation) BumpUnread(recipientID string) Conversation {
	if recipientID == c.User1ID {
		c.Unread1++
	} else if recipientID == c.User2ID {
		c.Unread2++
	}
	return c
}

// ClearUnread zeroes the reader's unread counter. Safe to call redundantly.
func (c Conversation) ClearUnread(readerID string) Conversation {
	if readerID == c.User1ID {
		c.Unread1 = 0
	} else if readerID == c.User2ID {
		c.Unread2 = 0
	}
	return c
}
