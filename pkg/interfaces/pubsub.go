package interfaces

import "classhub/pkg/types"

// Subscription is a bounded-lifetime push channel scoped to one class.
// Deliveries are at-least-once and not ordered by created_at.
type Subscription interface {
	ClassID() string

	// Ready is signalled whenever new rows are waiting in the mailbox
	Ready() <-chan struct{}

	// Drain removes and returns all waiting rows. It returns nil once Unsubscribe was called.
	Drain() []*types.Message

	// Unsubscribe releases the subscription. No row is handed out by Drain after it returns.
	Unsubscribe()
}

// Subscriber opens class-scoped subscriptions
type Subscriber interface {
	Subscribe(classID string) (Subscription, error)
}

// Publisher fans a persisted message out to subscribers of its class
type Publisher interface {
	Publish(message *types.Message) error
}

// MessageBus is both ends of the push channel
type MessageBus interface {
	Subscriber
	Publisher
}
