// Package nats adapts the bus transport and the settings cache store to a
// NATS server.
package nats

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	natsgo "github.com/nats-io/nats.go"

	"github.com/strufkin/pyzbus/core/bus"
	"github.com/strufkin/pyzbus/core/ds"
)

type SessionConfig struct {
	// Identity names the connections on the server. Required.
	Identity string

	// Connect dials the publish connection; SubConnect dials the subscribe
	// connection and defaults to Connect. Both default to ConnectDefault()
	// when nil. Keeping the channels on separate connections lets a
	// reconnect cycle each of them independently.
	Connect    Connector
	SubConnect Connector

	// SubjectPrefix namespaces the bus subjects, e.g. "pyzbus" ->
	// pyzbus.t.<identity> and pyzbus.bcast. Defaults to "pyzbus".
	SubjectPrefix string

	Log *slog.Logger

	// Buffer is the inbound frame queue length. Defaults to 1024.
	Buffer int
}

// Session owns the publish and subscribe channels of one actor. It
// implements bus.Transport; frames arriving on any subscribed topic land in
// one queue that survives reconnects, so the dispatch loop never observes a
// channel swap directly.
type Session struct {
	id      string
	prefix  string
	log     *slog.Logger
	connect Connector
	subConn Connector

	frames chan []byte
	faults chan error
	done   chan struct{}

	mu            sync.Mutex
	pub           *natsgo.Conn
	pubClose      closeFunc
	sub           *natsgo.Conn
	subClose      closeFunc
	subs          []*natsgo.Subscription
	topics        *ds.Set[bus.Topic]
	lastReconnect time.Time

	closed atomic.Bool
}

func NewSession(cfg SessionConfig) (*Session, error) {
	if cfg.Identity == "" {
		return nil, fmt.Errorf("nats: SessionConfig.Identity is required")
	}
	if cfg.Connect == nil {
		cfg.Connect = ConnectDefault()
	}
	if cfg.SubConnect == nil {
		cfg.SubConnect = cfg.Connect
	}
	if cfg.SubjectPrefix == "" {
		cfg.SubjectPrefix = "pyzbus"
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = 1024
	}

	s := &Session{
		id:      cfg.Identity,
		prefix:  cfg.SubjectPrefix,
		log:     cfg.Log.With(slog.String("transport", "nats"), slog.String("identity", cfg.Identity)),
		connect: cfg.Connect,
		subConn: cfg.SubConnect,
		frames:  make(chan []byte, cfg.Buffer),
		faults:  make(chan error, 16),
		done:    make(chan struct{}),
		topics:  ds.NewSet[bus.Topic](),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.connectPub(); err != nil {
		return nil, err
	}
	if err := s.connectSub(); err != nil {
		s.disconnectPub()
		return nil, err
	}
	return s, nil
}

// subjectFor maps a bus topic onto a NATS subject.
func (s *Session) subjectFor(t bus.Topic) string {
	id := t.Identity()
	if t.IsBroadcast() {
		return s.prefix + ".bcast"
	}
	return s.prefix + ".t." + escapeSubject(id)
}

// escapeSubject keeps identities valid as subject tokens.
func escapeSubject(id string) string {
	r := strings.NewReplacer(".", "_", " ", "_", "*", "_", ">", "_")
	return r.Replace(id)
}

// connectPub opens the publish channel. Caller holds s.mu.
func (s *Session) connectPub() error {
	nc, closeFn, err := s.connect()
	if err != nil {
		return fmt.Errorf("nats: connect pub: %w", err)
	}
	s.pub = nc
	s.pubClose = closeFn
	return nil
}

// connectSub opens the subscribe channel and replays all topic filters.
// Caller holds s.mu.
func (s *Session) connectSub() error {
	nc, closeFn, err := s.subConn()
	if err != nil {
		return fmt.Errorf("nats: connect sub: %w", err)
	}
	nc.SetClosedHandler(func(*natsgo.Conn) {
		if !s.closed.Load() {
			s.fault(bus.ErrConnLost)
		}
	})

	s.sub = nc
	s.subClose = closeFn
	s.subs = s.subs[:0]
	for _, t := range s.topics.Values() {
		if err := s.subscribeLocked(t); err != nil {
			return err
		}
	}
	return nil
}

// disconnectPub releases the publish channel with zero linger. Caller
// holds s.mu.
func (s *Session) disconnectPub() {
	if s.pubClose != nil {
		s.pubClose()
	}
	s.pub = nil
	s.pubClose = nil
}

// disconnectSub drops all subscriptions and closes the subscribe channel
// without draining. Caller holds s.mu.
func (s *Session) disconnectSub() {
	for _, sub := range s.subs {
		_ = sub.Unsubscribe()
	}
	s.subs = s.subs[:0]
	if s.sub != nil {
		s.sub.SetClosedHandler(nil)
	}
	if s.subClose != nil {
		s.subClose()
	}
	s.sub = nil
	s.subClose = nil
}

func (s *Session) subscribeLocked(t bus.Topic) error {
	sub, err := s.sub.Subscribe(s.subjectFor(t), func(msg *natsgo.Msg) {
		select {
		case s.frames <- msg.Data:
		default:
			s.log.Warn("frame dropped, receiver too slow", slog.String("subject", msg.Subject))
		}
	})
	if err != nil {
		return fmt.Errorf("nats: subscribe %s: %w", t, err)
	}
	s.subs = append(s.subs, sub)
	return nil
}

func (s *Session) fault(err error) {
	select {
	case s.faults <- err:
	default:
	}
}

func (s *Session) Publish(_ context.Context, topic bus.Topic, frame []byte) error {
	if s.closed.Load() {
		return bus.ErrTransportClosed
	}
	s.mu.Lock()
	nc := s.pub
	s.mu.Unlock()
	if nc == nil {
		return bus.ErrConnLost
	}
	if err := nc.Publish(s.subjectFor(topic), frame); err != nil {
		return fmt.Errorf("nats: publish: %w", err)
	}
	return nil
}

func (s *Session) Subscribe(topic bus.Topic) error {
	if s.closed.Load() {
		return bus.ErrTransportClosed
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.topics.Add(topic) {
		return nil
	}
	if s.sub == nil {
		return nil
	}
	return s.subscribeLocked(topic)
}

func (s *Session) Recv(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.done:
		return nil, bus.ErrTransportClosed
	case err := <-s.faults:
		return nil, err
	case frame := <-s.frames:
		return frame, nil
	}
}

// Reconnect cycles both channels: disconnect with zero linger, redial,
// replay the subscription set. The agent serializes calls.
func (s *Session) Reconnect(_ context.Context) error {
	if s.closed.Load() {
		return bus.ErrTransportClosed
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.disconnectSub()
	s.disconnectPub()

	if err := s.connectPub(); err != nil {
		return err
	}
	if err := s.connectSub(); err != nil {
		s.disconnectPub()
		return err
	}
	s.lastReconnect = time.Now()
	s.log.Info("session reconnected")
	return nil
}

func (s *Session) LastReconnect() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastReconnect
}

func (s *Session) Close() error {
	if s.closed.Swap(true) {
		return bus.ErrTransportClosed
	}
	s.mu.Lock()
	s.disconnectSub()
	s.disconnectPub()
	s.mu.Unlock()
	close(s.done)
	return nil
}

var _ bus.Transport = (*Session)(nil)
