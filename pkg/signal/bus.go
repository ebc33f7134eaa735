package signal

// Subscription is a handle to one topic subscription.
// Unsubscribe may be called any number of times.
type Subscription interface {
	Unsubscribe()
}

// Bus abstracts the pub/sub signaling transport.
// RemoteBus implements it over a websocket broker; LocalBus in-process.
//
// Delivery is at-least-once and in order per publisher within one topic.
// Publishes are delivered to every subscriber of the topic, including the
// publisher itself if subscribed; receivers filter their own messages.
type Bus interface {
	// Publish sends a JSON-serializable payload to a topic. Fire-and-forget:
	// an error means the message was not handed to the transport, and callers
	// are expected to treat that as non-fatal.
	Publish(topic string, payload any) error

	// Subscribe registers a handler for a topic and returns its subscription.
	Subscribe(topic string, fn func(data []byte)) Subscription

	// SetDisconnectHandler sets a callback invoked once when the transport is
	// lost. Not invoked on explicit Close.
	SetDisconnectHandler(fn func())

	// Close shuts the bus down.
	Close()
}
