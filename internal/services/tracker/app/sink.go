package app

import "context"

// Sink materializes display slots on the chat surface. Handles are opaque
// message identifiers owned by the sink. Edit returns domain.ErrSlotGone
// when the target message no longer exists and a domain.Transient error for
// failures worth retrying next cycle. Slots are recycled by editing, never
// deleted, so the pool needs no delete operation.
type Sink interface {
	Create(ctx context.Context, text string) (string, error)
	Edit(ctx context.Context, handle, text string) error
}

// ConnectionAware is implemented by sinks with a long-lived connection whose
// availability gates slot writes.
type ConnectionAware interface {
	Connected() bool
	WaitConnected(ctx context.Context) error
}

// PresenceUpdater publishes the live session count outside the slot channel.
type PresenceUpdater interface {
	UpdatePresence(ctx context.Context, liveCount int) error
}
