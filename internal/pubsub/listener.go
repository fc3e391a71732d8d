package pubsub

import "context"

// Listener wraps a broker subscription for consumers that pull events one at
// a time or want a callback loop.
type Listener[T any] struct {
	ctx context.Context
	ch  <-chan Event[T]
}

// NewListener subscribes to the broker. The subscription is cleaned up when
// ctx is cancelled.
func NewListener[T any](ctx context.Context, broker *Broker[T]) *Listener[T] {
	return &Listener[T]{
		ctx: ctx,
		ch:  broker.Subscribe(ctx),
	}
}

// Next blocks until the next event arrives. It returns false once the
// context is cancelled or the subscription channel is closed.
func (l *Listener[T]) Next() (Event[T], bool) {
	select {
	case <-l.ctx.Done():
		return Event[T]{}, false
	case event, ok := <-l.ch:
		return event, ok
	}
}

// Run calls fn for each event until the subscription ends or fn returns an
// error, which Run then returns.
func (l *Listener[T]) Run(fn func(Event[T]) error) error {
	for {
		event, ok := l.Next()
		if !ok {
			return nil
		}
		if err := fn(event); err != nil {
			return err
		}
	}
}
