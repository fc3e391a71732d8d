// Package pubsub provides a generic publish/subscribe event system used to
// fan out log lines, descriptor reloads and activity records.
package pubsub

import (
	"context"
	"time"
)

// EventType represents the type of event being published.
type EventType string

const (
	// CreatedEvent is used for plain fan-out such as log lines.
	CreatedEvent EventType = "created"

	// ReloadedEvent is published after a descriptor was reloaded and a new
	// registry context is active.
	ReloadedEvent EventType = "reloaded"
	// ReloadFailedEvent is published when a reload was rejected and the
	// previous registry context stays active.
	ReloadFailedEvent EventType = "reload_failed"
)

// Event represents a published event with a typed payload. Seq starts at
// 1 and increases by one per Publish on the same broker.
type Event[T any] struct {
	Seq       uint64
	Type      EventType
	Payload   T
	Timestamp time.Time
}

// Subscriber provides a subscription channel for events.
type Subscriber[T any] interface {
	Subscribe(ctx context.Context) <-chan Event[T]
}

// Publisher allows publishing events with a typed payload.
type Publisher[T any] interface {
	Publish(eventType EventType, payload T)
}

var (
	_ Subscriber[string] = (*Broker[string])(nil)
	_ Publisher[string]  = (*Broker[string])(nil)
)
