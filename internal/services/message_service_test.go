package services

import (
	"context"
	"delivery-match-service/internal/domain"
	"errors"
	"testing"
)

// offerConversation sets up a shipment with one offer and returns the
// lazily created sender/courier conversation.
func offerConversation(t *testing.T, ts *testStack) (*domain.Shipment, *domain.Conversation) {
	t.Helper()
	shipment := ts.openShipment(t, "sender-1", 10000)
	ts.pendingOffer(t, shipment.ID, "courier-1", 9000)

	conv, err := ts.ledger.FindConversationByShipment(context.Background(), shipment.ID, "courier-1")
	if err != nil {
		t.Fatalf("conversation: %v", err)
	}
	return shipment, conv
}

func TestSendMessageBumpsRecipientUnread(t *testing.T) {
	ts := newTestStack()
	ctx := context.Background()
	_, conv := offerConversation(t, ts)

	msg, err := ts.messages.SendMessage(ctx, SendMessageRequest{
		ConversationID: conv.ID,
		SenderID:       "sender-1",
		Content:        "When can you pick it up?",
	})
	if err != nil {
		t.Fatalf("send message: %v", err)
	}
	if msg.Type != domain.MessageText || msg.Status != domain.MessageSent {
		t.Fatalf("message = %s/%s, want TEXT/SENT", msg.Type, msg.Status)
	}

	updated, err := ts.ledger.GetConversation(ctx, conv.ID)
	if err != nil {
		t.Fatalf("get conversation: %v", err)
	}
	if updated.Unread2 != 1 {
		t.Fatalf("courier unread = %d, want 1", updated.Unread2)
	}
}

func TestSendMessageActivatesPendingConversation(t *testing.T) {
	ts := newTestStack()
	ctx := context.Background()
	_, conv := offerConversation(t, ts)

	if conv.Status != domain.ConversationPending {
		t.Fatalf("precondition: conversation status = %s", conv.Status)
	}

	// The courier's reply flips PENDING to ACTIVE.
	if _, err := ts.messages.SendMessage(ctx, SendMessageRequest{
		ConversationID: conv.ID,
		SenderID:       "courier-1",
		Content:        "Tomorrow morning works.",
	}); err != nil {
		t.Fatalf("send message: %v", err)
	}

	updated, err := ts.ledger.GetConversation(ctx, conv.ID)
	if err != nil {
		t.Fatalf("get conversation: %v", err)
	}
	if updated.Status != domain.ConversationActive {
		t.Fatalf("conversation status = %s, want ACTIVE", updated.Status)
	}
}

func TestSendMessageRejectsOutsiders(t *testing.T) {
	ts := newTestStack()
	_, conv := offerConversation(t, ts)

	_, err := ts.messages.SendMessage(context.Background(), SendMessageRequest{
		ConversationID: conv.ID,
		SenderID:       "stranger",
		Content:        "hello",
	})
	if !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
}

func TestSendMessageClosedAfterCancellation(t *testing.T) {
	ts := newTestStack()
	ctx := context.Background()
	shipment, conv := offerConversation(t, ts)

	if _, err := ts.match.WithdrawShipment(ctx, shipment.ID, "sender-1"); err != nil {
		t.Fatalf("withdraw: %v", err)
	}

	_, err := ts.messages.SendMessage(ctx, SendMessageRequest{
		ConversationID: conv.ID,
		SenderID:       "sender-1",
		Content:        "never mind",
	})
	if !errors.Is(err, domain.ErrWrongState) {
		t.Fatalf("err = %v, want ErrWrongState", err)
	}
}

func TestMarkReadIsIdempotent(t *testing.T) {
	ts := newTestStack()
	ctx := context.Background()
	_, conv := offerConversation(t, ts)

	// The offer already produced one unread message for the sender.
	if err := ts.messages.MarkRead(ctx, conv.ID, "sender-1"); err != nil {
		t.Fatalf("mark read: %v", err)
	}

	updated, err := ts.ledger.GetConversation(ctx, conv.ID)
	if err != nil {
		t.Fatalf("get conversation: %v", err)
	}
	if updated.Unread1 != 0 {
		t.Fatalf("sender unread = %d, want 0", updated.Unread1)
	}

	msgs, err := ts.ledger.ListMessages(ctx, conv.ID)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	for _, m := range msgs {
		if m.SenderID != "sender-1" && m.Status != domain.MessageRead {
			t.Fatalf("message %s status = %s, want READ", m.ID, m.Status)
		}
	}

	// Replays are silent no-ops.
	if err := ts.messages.MarkRead(ctx, conv.ID, "sender-1"); err != nil {
		t.Fatalf("repeat mark read: %v", err)
	}
	if err := ts.messages.MarkRead(ctx, conv.ID, "courier-1"); err != nil {
		t.Fatalf("mark read with nothing unread: %v", err)
	}
}

func TestListMessagesAdvancesInboundToDelivered(t *testing.T) {
	ts := newTestStack()
	ctx := context.Background()
	_, conv := offerConversation(t, ts)

	msgs, err := ts.messages.ListMessages(ctx, conv.ID, "sender-1")
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("messages = %d, want 1", len(msgs))
	}
	if msgs[0].Status != domain.MessageDelivered {
		t.Fatalf("inbound message status = %s, want DELIVERED", msgs[0].Status)
	}

	// The courier sees their own message unchanged.
	own, err := ts.messages.ListMessages(ctx, conv.ID, "courier-1")
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if own[0].Status != domain.MessageDelivered {
		t.Fatalf("persisted status = %s, want DELIVERED", own[0].Status)
	}

	if _, err := ts.messages.ListMessages(ctx, conv.ID, "stranger"); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("list by outsider: err = %v, want ErrUnauthorized", err)
	}
}
