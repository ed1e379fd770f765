// Package broadcast defines the port for pushing live gateway events —
// guard decisions, approval prompts, registry changes — to subscribed
// clients.
package broadcast

import "context"

// Broadcaster fans a typed event out to every subscribed client.
// Implementations must not block the caller; a slow client is the
// adapter's problem, not the guard's.
type Broadcaster interface {
	BroadcastEvent(ctx context.Context, eventType string, payload any)
}
