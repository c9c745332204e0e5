package domain

import (
	"errors"
	"testing"
)

func TestConversationParticipants(t *testing.T) {
	c := Conversation{ID: "conv-1", User1ID: "sender-1", User2ID: "courier-1"}

	other, err := c.Counterpart("sender-1")
	if err != nil || other != "courier-1" {
		t.Fatalf("Counterpart(sender-1) = %q, %v", other, err)
	}
	other, err = c.Counterpart("courier-1")
	if err != nil || other != "sender-1" {
		t.Fatalf("Counterpart(courier-1) = %q, %v", other, err)
	}
	if _, err := c.Counterpart("stranger"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("Counterpart(stranger): err = %v, want ErrUnauthorized", err)
	}

	if !c.HasParticipant("sender-1") || c.HasParticipant("stranger") {
		t.Fatal("HasParticipant misreports membership")
	}
}

func TestConversationUnreadCounters(t *testing.T) {
	c := Conversation{ID: "conv-1", User1ID: "sender-1", User2ID: "courier-1"}

	c = c.BumpUnread("sender-1").BumpUnread("sender-1").BumpUnread("courier-1")
	if c.UnreadFor("sender-1") != 2 {
		t.Fatalf("sender unread = %d, want 2", c.UnreadFor("sender-1"))
	}
	if c.UnreadFor("courier-1") != 1 {
		t.Fatalf("courier unread = %d, want 1", c.UnreadFor("courier-1"))
	}

	c = c.ClearUnread("sender-1")
	if c.UnreadFor("sender-1") != 0 {
		t.Fatalf("sender unread after clear = %d", c.UnreadFor("sender-1"))
	}
	if c.UnreadFor("courier-1") != 1 {
		t.Fatalf("clear touched the wrong counter: courier unread = %d", c.UnreadFor("courier-1"))
	}
}

func TestConversationStatusFlow(t *testing.T) {
	c := Conversation{ID: "conv-1", Status: ConversationPending}

	active := c.Activate()
	if active.Status != ConversationActive {
		t.Fatalf("status = %s, want ACTIVE", active.Status)
	}

	// Activate never regresses a matched conversation.
	matched := active.MarkMatched()
	if matched.Activate().Status != ConversationMatched {
		t.Fatal("Activate regressed a MATCHED conversation")
	}

	reverted := matched.RevertMatch(ConversationActive)
	if reverted.Status != ConversationActive {
		t.Fatalf("status = %s, want ACTIVE after revert", reverted.Status)
	}
}
