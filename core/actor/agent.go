package actor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/strufkin/pyzbus/core/bus"
	"github.com/strufkin/pyzbus/core/settings"
	"github.com/strufkin/pyzbus/core/sf"
)

const (
	// DefaultAskTimeout bounds how long Ask waits for a correlated reply.
	DefaultAskTimeout = 5 * time.Second

	defaultHeartbeatSettle = 10 * time.Second
	defaultSubscriberGrace = 2 * time.Second
	defaultPongWait        = 5 * time.Second
	defaultReconnectPause  = time.Second
	defaultMaxHandlers     = 64
)

type Config struct {
	// Identity is the actor's unique identity on the bus. Required.
	Identity string

	// Transport is the connected bus transport. Required.
	Transport bus.Transport

	// Settings is the live settings mapping. A fresh one backed by the
	// defaults is created when nil.
	Settings *settings.Settings

	// Saver persists settings after an UpdateSettings merge. Optional.
	Saver settings.Saver

	// ApplySettings is invoked after UpdateSettings merged new values.
	// Optional extension point for subclass-like consumers.
	ApplySettings func(changed bus.Fields)

	Log     *slog.Logger
	Metrics RuntimeMetrics

	// MaxConcurrentHandlers caps the dispatched handler goroutines.
	MaxConcurrentHandlers int

	// Heartbeat and watchdog timing. Zero values select the production
	// defaults; tests shorten them.
	HeartbeatSettle time.Duration
	SubscriberGrace time.Duration
	PongWait        time.Duration
	ReconnectPause  time.Duration
}

// Agent is one actor on the bus: it owns the session state, the handler
// registry, the correlation table and the three background tasks (dispatch
// loop, heartbeat monitor, idle watchdog).
type Agent struct {
	id       string
	log      *slog.Logger
	tr       bus.Transport
	settings *settings.Settings
	saver    settings.Saver
	applyFn  func(bus.Fields)
	metrics  RuntimeMetrics

	handlers *Registry
	pending  *pendingTable

	cfg Config

	sent     atomic.Int64
	received atomic.Int64

	idleMu      sync.Mutex
	lastMsgTime time.Time
	idleSum     float64

	pingMu     sync.Mutex
	lastPingID string
	pongCh     chan string

	hbState     atomic.Int32
	reconnects  sf.Singleflight[struct{}]
	reconnCount atomic.Int64

	runOnce sync.Once
	done    chan struct{}
}

// New creates an agent bound to the given transport and subscribes it to
// its identity topic and the broadcast topic. The built-in control message
// handlers (Ping, Pong, UpdateSettings, KeepAlive) are registered here;
// consumers add their own via Handle before Run.
func New(cfg Config) (*Agent, error) {
	if cfg.Identity == "" {
		return nil, errors.New("actor: Config.Identity is required")
	}
	if cfg.Transport == nil {
		return nil, errors.New("actor: Config.Transport is required")
	}
	if cfg.Settings == nil {
		cfg.Settings = settings.New(settings.Defaults())
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = NopRuntimeMetrics()
	}
	if cfg.MaxConcurrentHandlers == 0 {
		cfg.MaxConcurrentHandlers = defaultMaxHandlers
	}
	if cfg.HeartbeatSettle == 0 {
		cfg.HeartbeatSettle = defaultHeartbeatSettle
	}
	if cfg.SubscriberGrace == 0 {
		cfg.SubscriberGrace = defaultSubscriberGrace
	}
	if cfg.PongWait == 0 {
		cfg.PongWait = defaultPongWait
	}
	if cfg.ReconnectPause == 0 {
		cfg.ReconnectPause = defaultReconnectPause
	}

	a := &Agent{
		id:          cfg.Identity,
		log:         cfg.Log.With(slog.String("actor", cfg.Identity)),
		tr:          cfg.Transport,
		settings:    cfg.Settings,
		saver:       cfg.Saver,
		applyFn:     cfg.ApplySettings,
		metrics:     cfg.Metrics,
		handlers:    NewRegistry(),
		pending:     newPendingTable(),
		cfg:         cfg,
		pongCh:      make(chan string, 1),
		lastMsgTime: time.Now(),
		done:        make(chan struct{}),
	}

	if err := a.tr.Subscribe(bus.IdentityTopic(a.id)); err != nil {
		return nil, fmt.Errorf("subscribe identity topic: %w", err)
	}
	if err := a.tr.Subscribe(bus.Broadcast); err != nil {
		return nil, fmt.Errorf("subscribe broadcast topic: %w", err)
	}

	a.registerControlHandlers()
	return a, nil
}

// Identity returns the actor's bus identity.
func (a *Agent) Identity() string { return a.id }

// Settings returns the live settings mapping.
func (a *Agent) Settings() *settings.Settings { return a.settings }

// Sent returns how many envelopes this agent has stamped and published.
func (a *Agent) Sent() int64 { return a.sent.Load() }

// Received returns how many inbound envelopes were decoded.
func (a *Agent) Received() int64 { return a.received.Load() }

// Done is closed when Run has finished shutting the agent down.
func (a *Agent) Done() <-chan struct{} { return a.done }

// SubscribeTopic adds a topic filter at runtime.
func (a *Agent) SubscribeTopic(topic bus.Topic) error {
	if err := a.tr.Subscribe(topic); err != nil {
		return err
	}
	a.log.Debug("subscribed", slog.String("topic", string(topic)))
	return nil
}

// Run starts the dispatch loop, the heartbeat monitor and the idle
// watchdog, then blocks until ctx is cancelled. On shutdown it stops
// spawning handler tasks, waits for the in-flight ones and closes the
// transport. In-flight asks resolve through their timeout path.
func (a *Agent) Run(ctx context.Context) error {
	var err error
	a.runOnce.Do(func() {
		err = a.run(ctx)
	})
	return err
}

func (a *Agent) run(ctx context.Context) error {
	defer close(a.done)

	sched := NewScheduler(ctx, a.cfg.MaxConcurrentHandlers, a.log, func(any) {
		a.metrics.HandlerPanic()
	})

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		a.dispatchLoop(ctx, sched)
	}()
	go func() {
		defer wg.Done()
		a.heartbeat(ctx)
	}()
	go func() {
		defer wg.Done()
		a.watchdog(ctx)
	}()

	a.log.Info("actor started", slog.String("uid", a.id))
	<-ctx.Done()

	a.log.Debug("stopping")
	if err := a.tr.Close(); err != nil && !errors.Is(err, bus.ErrTransportClosed) {
		a.log.Warn("transport close failed", slog.Any("error", err))
	}
	wg.Wait()
	sched.Wait()
	return nil
}

// reconnect cycles both transport channels. Concurrent callers collapse
// into a single reconnect.
func (a *Agent) reconnect(ctx context.Context) error {
	_, err := a.reconnects.Do("reconnect", func() (*struct{}, error) {
		if err := a.tr.Reconnect(ctx); err != nil {
			return nil, err
		}
		a.reconnCount.Add(1)
		a.metrics.Reconnect()
		a.log.Info("transport reconnected")
		return &struct{}{}, nil
	})
	return err
}

// Reconnects returns how many reconnect cycles completed.
func (a *Agent) Reconnects() int64 { return a.reconnCount.Load() }

func (a *Agent) trace() bool {
	return a.settings.Bool("Trace")
}

func (a *Agent) noteInbound() {
	a.idleMu.Lock()
	a.lastMsgTime = time.Now()
	a.idleSum = 0
	a.idleMu.Unlock()
}
