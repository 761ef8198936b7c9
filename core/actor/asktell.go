package actor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/strufkin/pyzbus/core/bus"
)

// AskOption configures a single Ask call.
type AskOption func(*askOpts)

type askOpts struct {
	timeout  time.Duration
	attempts int
}

// WithTimeout sets the per-attempt reply wait. Default is DefaultAskTimeout.
func WithTimeout(d time.Duration) AskOption {
	return func(o *askOpts) { o.timeout = d }
}

// WithAttempts makes Ask re-send the envelope (with a fresh Id) up to n
// times before giving up. Default is 1.
func WithAttempts(n int) AskOption {
	return func(o *askOpts) { o.attempts = n }
}

// stamp fills the mandatory headers on an outbound envelope and counts the
// send. Sequence is strictly increasing for the lifetime of the agent.
func (a *Agent) stamp(env *bus.Envelope) error {
	if err := env.Validate(); err != nil {
		return err
	}
	env.ID = gonanoid.Must()
	env.SendTime = bus.Now()
	env.From = a.id
	env.Sequence = a.sent.Add(1)
	return nil
}

func (a *Agent) publish(ctx context.Context, env *bus.Envelope) error {
	frame, err := env.Encode()
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	if err := a.tr.Publish(ctx, bus.TopicFor(env), frame); err != nil {
		return err
	}
	a.metrics.MessageSent(env.Message)
	return nil
}

// Tell broadcasts env without waiting for any reply. The stamped envelope
// is returned so callers can record the Id (the heartbeat monitor keeps the
// ping's Id for pong correlation).
func (a *Agent) Tell(ctx context.Context, env *bus.Envelope) (*bus.Envelope, error) {
	if err := a.stamp(env); err != nil {
		return nil, err
	}
	if a.trace() {
		a.log.Debug("telling",
			slog.String("message", env.Message),
			slog.String("id", env.ID),
			slog.String("to", env.To))
	}
	if err := a.publish(ctx, env); err != nil {
		return nil, err
	}
	return env, nil
}

// Ask publishes env and blocks the calling goroutine until a reply with a
// matching ReplyToId arrives or the timeout elapses. A timeout is not an
// error: Ask returns (nil, nil) and callers must treat nil as "no reply".
func (a *Agent) Ask(ctx context.Context, env *bus.Envelope, opts ...AskOption) (*bus.Envelope, error) {
	o := askOpts{timeout: DefaultAskTimeout, attempts: 1}
	for _, opt := range opts {
		opt(&o)
	}
	if o.attempts < 1 {
		o.attempts = 1
	}

	defer a.metrics.AskDuration(env.Message).ObserveDuration()

	for attempt := 1; ; attempt++ {
		reply, err := a.askOnce(ctx, env, o.timeout)
		if err != nil {
			return nil, err
		}
		if reply != nil {
			return reply, nil
		}

		a.metrics.AskTimeout(env.Message)
		if attempt >= o.attempts {
			a.log.Warn("no reply received",
				slog.String("message", env.Message),
				slog.String("id", env.ID),
				slog.Int("attempts", attempt))
			return nil, nil
		}
		a.log.Debug("no reply, asking again",
			slog.String("message", env.Message),
			slog.Int("attempt", attempt+1))
	}
}

func (a *Agent) askOnce(ctx context.Context, env *bus.Envelope, timeout time.Duration) (*bus.Envelope, error) {
	env.ReplyTo = []string{a.id}
	if err := a.stamp(env); err != nil {
		return nil, err
	}

	waiter := a.pending.add(env.ID)
	if a.trace() {
		a.log.Debug("asking",
			slog.String("message", env.Message),
			slog.String("id", env.ID),
			slog.String("to", env.To))
	}
	if err := a.publish(ctx, env); err != nil {
		a.pending.remove(env.ID)
		return nil, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case reply := <-waiter:
		return reply, nil
	case <-timer.C:
		a.pending.remove(env.ID)
		return nil, nil
	case <-ctx.Done():
		a.pending.remove(env.ID)
		return nil, ctx.Err()
	}
}
