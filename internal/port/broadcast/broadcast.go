// Package broadcast defines the port for pushing progress events to
// connected clients in real time.
package broadcast

import "context"

// Broadcaster pushes a typed event to the clients watching one conversation.
// Delivery is best-effort: failures must never affect orchestration state.
type Broadcaster interface {
	BroadcastEvent(ctx context.Context, conversationID, eventType string, payload any)
}
