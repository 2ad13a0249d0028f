package events

// Subscriber consumes published events.
type Subscriber interface {
	// Send delivers an event. It must not block the broker for long.
	Send(Event) error

	// Close releases the subscriber.
	Close() error
}

// SubscriberFunc adapts a function to a Subscriber with a no-op Close.
type SubscriberFunc func(Event) error

// Send implements Subscriber.
func (f SubscriberFunc) Send(e Event) error { return f(e) }

// Close implements Subscriber.
func (f SubscriberFunc) Close() error { return nil }
