package services

import (
	"context"
	"delivery-match-service/internal/domain"
	"delivery-match-service/internal/platform/obs"
	"delivery-match-service/internal/ports"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MessageService maps chat commands onto conversation state and message
// delivery-status tracking. System messages (offer, match accepted) are
// injected by the matching coordinator, never through this surface.
type MessageService struct {
	ledger   ports.Ledger
	notifier ports.Notifier

	now   func() time.Time
	newID func() string
}

func NewMessageService(ledger ports.Ledger, notifier ports.Notifier) *MessageService {
	return &MessageService{
		ledger:   ledger,
		notifier: notifier,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

type SendMessageRequest struct {
	ConversationID string
	SenderID       string
	Content        string
}

// SendMessage appends a TEXT message. Chat stays open after delivery for
// post-delivery discussion but closes once the shipment is cancelled.
func (s *MessageService) SendMessage(ctx context.Context, req SendMessageRequest) (_ *domain.Message, err error) {
	defer obs.Time(ctx, "messages.SendMessage")(&err)

	if strings.TrimSpace(req.Content) == "" {
		return nil, errors.New("send message: content must not be empty")
	}

	conv, err := s.ledger.GetConversation(ctx, req.ConversationID)
	if err != nil {
		return nil, fmt.Errorf("send message: %w", err)
	}
	recipient, err := conv.Counterpart(req.SenderID)
	if err != nil {
		return nil, fmt.Errorf("send message: %w", err)
	}

	shipment, err := s.ledger.GetShipment(ctx, conv.ShipmentID)
	if err != nil {
		return nil, fmt.Errorf("send message: %w", err)
	}
	if shipment.Status == domain.ShipmentCancelled {
		return nil, fmt.Errorf("send message: shipment %s is cancelled: %w", shipment.ID, domain.ErrWrongState)
	}

	msg := &domain.Message{
		ID:             s.newID(),
		ConversationID: conv.ID,
		SenderID:       req.SenderID,
		Content:        req.Content,
		Type:           domain.MessageText,
		Status:         domain.MessageSent,
		CreatedAt:      s.now(),
	}

	next := conv.BumpUnread(recipient)
	// First reply from the courier counterpart activates a pending
	// conversation.
	if req.SenderID == conv.User2ID {
		next = next.Activate()
	}

	cs := &ports.ChangeSet{
		NewMessages:   []*domain.Message{msg},
		Conversations: []*domain.Conversation{&next},
	}
	if err := s.ledger.Commit(ctx, cs); err != nil {
		return nil, fmt.Errorf("send message: %w", err)
	}

	s.notify(ctx, recipient, ports.EventMessageReceived, map[string]string{
		"conversation_id": conv.ID,
		"message_id":      msg.ID,
	})

	return msg, nil
}

// MarkRead advances every message addressed to the reader to READ and
// zeroes the reader's unread counter. Redundant calls are no-ops.
func (s *MessageService) MarkRead(ctx context.Context, conversationID, readerID string) (err error) {
	defer obs.Time(ctx, "messages.MarkRead")(&err)

	conv, err := s.ledger.GetConversation(ctx, conversationID)
	if err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	if !conv.HasParticipant(readerID) {
		return fmt.Errorf("mark read conversation %s user=%s: %w", conversationID, readerID, domain.ErrUnauthorized)
	}

	msgs, err := s.ledger.ListMessages(ctx, conversationID)
	if err != nil {
		return fmt.Errorf("mark read: %w", err)
	}

	cs := &ports.ChangeSet{}
	for _, m := range msgs {
		if m.SenderID == readerID || m.Status == domain.MessageRead {
			continue
		}
		read, err := m.Advance(domain.MessageRead)
		if err != nil {
			return fmt.Errorf("mark read: %w", err)
		}
		cs.Messages = append(cs.Messages, &read)
	}

	if conv.UnreadFor(readerID) != 0 {
		cleared := conv.ClearUnread(readerID)
		cs.Conversations = []*domain.Conversation{&cleared}
	}

	if cs.Empty() {
		return nil
	}
	if err := s.ledger.Commit(ctx, cs); err != nil {
		return fmt.Errorf("mark read: %w", err)
	}

	return nil
}

// ListMessages returns a conversation's messages for one participant and
// advances inbound SENT messages to DELIVERED as a side effect of the
// fetch.
func (s *MessageService) ListMessages(ctx context.Context, conversationID, actorID string) (_ []*domain.Message, err error) {
	defer obs.Time(ctx, "messages.ListMessages")(&err)

	conv, err := s.ledger.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	if !conv.HasParticipant(actorID) {
		return nil, fmt.Errorf("list messages conversation %s user=%s: %w", conversationID, actorID, domain.ErrUnauthorized)
	}

	msgs, err := s.ledger.ListMessages(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	cs := &ports.ChangeSet{}
	out := make([]*domain.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.SenderID != actorID && m.Status == domain.MessageSent {
			delivered, err := m.Advance(domain.MessageDelivered)
			if err != nil {
				return nil, fmt.Errorf("list messages: %w", err)
			}
			cs.Messages = append(cs.Messages, &delivered)
			shown := delivered
			out = append(out, &shown)
			continue
		}
		out = append(out, m)
	}

	if !cs.Empty() {
		if err := s.ledger.Commit(ctx, cs); err != nil {
			// Delivery receipts are best effort on fetch; the read itself
			// still succeeds.
			log.Printf("op=messages.ListMessages conversation_id=%s deliver_receipts err=%v", conversationID, err)
		}
	}

	return out, nil
}

func (s *MessageService) notify(ctx context.Context, userID, kind string, payload map[string]string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, userID, kind, payload); err != nil {
		log.Printf("op=notify user_id=%s kind=%s err=%v", userID, kind, err)
	}
}
