package bus

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/strufkin/pyzbus/core/ds"
)

// MemBus is an in-process topic bus for tests: every MemTransport attached
// to it receives the frames published under topics it subscribed to.
type MemBus struct {
	mu    sync.RWMutex
	log   *slog.Logger
	ports map[*MemTransport]struct{}
}

func NewMemBus() *MemBus {
	return &MemBus{
		log:   slog.New(slog.DiscardHandler),
		ports: make(map[*MemTransport]struct{}),
	}
}

func (b *MemBus) WithLog(log *slog.Logger) *MemBus {
	b.log = log.With(slog.String("transport", "mem"))
	return b
}

// Transport attaches a new port to the bus.
func (b *MemBus) Transport() *MemTransport {
	t := &MemTransport{
		bus:    b,
		topics: ds.NewSet[Topic](),
		frames: make(chan []byte, 1024),
		faults: make(chan error, 16),
		done:   make(chan struct{}),
	}
	t.stats.PubConnects = 1
	t.stats.SubConnects = 1

	b.mu.Lock()
	b.ports[t] = struct{}{}
	b.mu.Unlock()
	return t
}

func (b *MemBus) publish(topic Topic, frame []byte) {
	b.mu.RLock()
	targets := make([]*MemTransport, 0, len(b.ports))
	for t := range b.ports {
		if t.subscribed(topic) {
			targets = append(targets, t)
		}
	}
	b.mu.RUnlock()

	for _, t := range targets {
		t.deliver(frame)
	}
}

func (b *MemBus) detach(t *MemTransport) {
	b.mu.Lock()
	delete(b.ports, t)
	b.mu.Unlock()
}

// MemStats counts connection-cycle events so tests can assert reconnect
// behavior (one reconnect = one disconnect+connect on both channels).
type MemStats struct {
	Reconnects     int
	PubConnects    int
	PubDisconnects int
	SubConnects    int
	SubDisconnects int
}

// MemTransport implements Transport over a MemBus.
type MemTransport struct {
	bus    *MemBus
	frames chan []byte
	faults chan error
	done   chan struct{}

	mu            sync.Mutex
	topics        *ds.Set[Topic]
	stats         MemStats
	lastReconnect time.Time
	closed        bool
}

func (t *MemTransport) Publish(_ context.Context, topic Topic, frame []byte) error {
	if t.isClosed() {
		return ErrTransportClosed
	}
	cp := make([]byte, len(frame))
	copy(cp, frame)
	t.bus.publish(topic, cp)
	return nil
}

func (t *MemTransport) Subscribe(topic Topic) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrTransportClosed
	}
	t.topics.Add(topic)
	return nil
}

func (t *MemTransport) Recv(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-t.done:
		return nil, ErrTransportClosed
	case err := <-t.faults:
		return nil, err
	case frame := <-t.frames:
		return frame, nil
	}
}

// Reconnect simulates tearing down and re-opening both channels. Buffered
// frames are dropped, matching a zero-linger disconnect.
func (t *MemTransport) Reconnect(_ context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrTransportClosed
	}

	for {
		select {
		case <-t.frames:
			continue
		default:
		}
		break
	}

	t.stats.Reconnects++
	t.stats.PubDisconnects++
	t.stats.SubDisconnects++
	t.stats.PubConnects++
	t.stats.SubConnects++
	t.lastReconnect = time.Now()
	return nil
}

func (t *MemTransport) LastReconnect() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastReconnect
}

func (t *MemTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrTransportClosed
	}
	t.closed = true
	t.mu.Unlock()

	t.bus.detach(t)
	close(t.done)
	return nil
}

// FailNextRecv makes the next Recv call return err, simulating a transient
// read failure.
func (t *MemTransport) FailNextRecv(err error) {
	t.faults <- err
}

// Stats returns a snapshot of the connection-cycle counters.
func (t *MemTransport) Stats() MemStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stats
}

func (t *MemTransport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

func (t *MemTransport) subscribed(topic Topic) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.closed && t.topics.Contains(topic)
}

func (t *MemTransport) deliver(frame []byte) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.mu.Unlock()

	select {
	case t.frames <- frame:
	default:
		t.bus.log.Warn("frame dropped, receiver too slow")
	}
}

var _ Transport = (*MemTransport)(nil)
