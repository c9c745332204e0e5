package notify

import (
	"context"
	"log"
)

// LogNotifier is a Notifier that writes events to the process log. The
// real push/email pipeline is an external collaborator; the engine only
// needs a sink that never blocks a state transition.
type LogNotifier struct{}

func NewLogNotifier() *LogNotifier { return &LogNotifier{} }

func (n *LogNotifier) Notify(ctx context.Context, userID, eventKind string, payload map[string]string) error {
	log.Printf("op=notify user_id=%s kind=%s payload=%v", userID, eventKind, payload)
	return nil
}
