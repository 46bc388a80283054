package core

import "context"

// Publisher is the publish half of the broker contract. Components that only
// emit messages (for example the heartbeat publisher) should depend on this
// rather than on the full Broker.
type Publisher interface {
	Publish(ctx context.Context, topic string, msg Message) error
}

// Broker defines the contract for message broker implementations.
// Each broker plugin must implement this interface.
//
// Delivery is at-least-once: consumers must tolerate duplicate deliveries.
type Broker interface {
	Publisher

	// Subscribe consumes messages from the given topic until the context is
	// cancelled, invoking handler for each delivery in order.
	Subscribe(ctx context.Context, topic string, handler Handler) error

	Close() error
}
