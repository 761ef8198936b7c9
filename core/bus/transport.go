package bus

import (
	"context"
	"time"
)

// Transport is the topic-filtered pub/sub channel an actor session runs on.
// Implementations own the underlying connections; the dispatch loop only
// ever sees frames and errors.
//
// Recv blocks until the next inbound frame matching one of the subscribed
// topics arrives. A Recv error does not mean the transport is unusable:
// ErrConnLost is returned for transient connection failures (including a
// deliberate reconnect tearing the channel down mid-read) and the caller is
// expected to retry. ErrTransportClosed is terminal.
//
// Reconnect must be safe to call while Recv is blocked and must not run
// concurrently with itself; callers serialize it.
type Transport interface {
	// Publish sends a frame under the given routing topic.
	Publish(ctx context.Context, topic Topic, frame []byte) error

	// Subscribe adds a topic filter. Filters survive reconnects.
	Subscribe(topic Topic) error

	// Recv blocks for the next inbound frame.
	Recv(ctx context.Context) ([]byte, error)

	// Reconnect tears down and re-establishes both the publish and the
	// subscribe channels, replaying all topic filters.
	Reconnect(ctx context.Context) error

	// LastReconnect reports when the transport last completed a reconnect.
	// The dispatch loop uses it to tell a self-inflicted channel teardown
	// from a genuine transport error.
	LastReconnect() time.Time

	Close() error
}
