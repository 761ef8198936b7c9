package actor

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/strufkin/pyzbus/core/bus"
	"github.com/strufkin/pyzbus/core/metrics"
	"github.com/strufkin/pyzbus/core/settings"
)

// recordingMetrics captures the runtime's diagnostics counters for
// assertions.
type recordingMetrics struct {
	mu          sync.Mutex
	sent        int
	received    int
	askTimeouts int
	unknown     []string
	unroutable  int
	panics      int
	reconnects  int
	idle        []float64
}

func (m *recordingMetrics) MessageSent(string) {
	m.mu.Lock()
	m.sent++
	m.mu.Unlock()
}

func (m *recordingMetrics) MessageReceived(string) {
	m.mu.Lock()
	m.received++
	m.mu.Unlock()
}

func (m *recordingMetrics) AskDuration(string) metrics.Timer { return metrics.NopTimer() }

func (m *recordingMetrics) AskTimeout(string) {
	m.mu.Lock()
	m.askTimeouts++
	m.mu.Unlock()
}

func (m *recordingMetrics) UnknownMessage(msgType string) {
	m.mu.Lock()
	m.unknown = append(m.unknown, msgType)
	m.mu.Unlock()
}

func (m *recordingMetrics) UnroutableReply() {
	m.mu.Lock()
	m.unroutable++
	m.mu.Unlock()
}

func (m *recordingMetrics) HandlerPanic() {
	m.mu.Lock()
	m.panics++
	m.mu.Unlock()
}

func (m *recordingMetrics) Reconnect() {
	m.mu.Lock()
	m.reconnects++
	m.mu.Unlock()
}

func (m *recordingMetrics) IdleWarning(total float64) {
	m.mu.Lock()
	m.idle = append(m.idle, total)
	m.mu.Unlock()
}

type metricsSnapshot struct {
	sent        int
	received    int
	askTimeouts int
	unknown     []string
	unroutable  int
	panics      int
	reconnects  int
	idle        []float64
}

func (m *recordingMetrics) snapshot() metricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return metricsSnapshot{
		sent:        m.sent,
		received:    m.received,
		askTimeouts: m.askTimeouts,
		unknown:     append([]string(nil), m.unknown...),
		unroutable:  m.unroutable,
		panics:      m.panics,
		reconnects:  m.reconnects,
		idle:        append([]float64(nil), m.idle...),
	}
}

var _ RuntimeMetrics = (*recordingMetrics)(nil)

type testAgent struct {
	*Agent
	tr      *bus.MemTransport
	metrics *recordingMetrics
}

type testAgentOpt func(*Config)

func withSettings(m map[string]any) testAgentOpt {
	return func(c *Config) {
		s := settings.Defaults()
		for k, v := range m {
			s[k] = v
		}
		c.Settings = settings.New(s)
	}
}

// newTestAgent builds and runs an agent on the shared in-memory bus with
// test-friendly heartbeat timings. It is stopped on test cleanup.
func newTestAgent(t *testing.T, b *bus.MemBus, id string, opts ...testAgentOpt) *testAgent {
	t.Helper()

	tr := b.Transport()
	m := &recordingMetrics{}
	cfg := Config{
		Identity:        id,
		Transport:       tr,
		Log:             slog.New(slog.DiscardHandler),
		Metrics:         m,
		HeartbeatSettle: time.Millisecond,
		SubscriberGrace: time.Millisecond,
		PongWait:        200 * time.Millisecond,
		ReconnectPause:  10 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	a, err := New(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = a.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-a.Done()
	})

	return &testAgent{Agent: a, tr: tr, metrics: m}
}
