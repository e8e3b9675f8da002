package messaging

import (
	"context"
)

// Broker defines the interface for message brokers
type Broker interface {
	Publish(ctx context.Context, channel string, message interface{}) error
	// Subscribe returns once the subscription is confirmed. The channel is
	// closed when ctx is done or the broker is closed.
	Subscribe(ctx context.Context, channels ...string) (<-chan Message, error)
	Close() error
}

// Message is one payload received on a channel.
type Message struct {
	Channel string
	Payload []byte
}
