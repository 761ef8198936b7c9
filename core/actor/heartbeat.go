package actor

import (
	"context"
	"log/slog"
	"time"

	"github.com/strufkin/pyzbus/core/bus"
)

// HeartbeatState is the heartbeat monitor's current state, exposed for
// observability and tests.
type HeartbeatState int32

const (
	HeartbeatDisabled HeartbeatState = iota
	HeartbeatWaitingInterval
	HeartbeatAwaitingPong
	HeartbeatReconnecting
)

func (s HeartbeatState) String() string {
	switch s {
	case HeartbeatDisabled:
		return "disabled"
	case HeartbeatWaitingInterval:
		return "waiting_interval"
	case HeartbeatAwaitingPong:
		return "awaiting_pong"
	case HeartbeatReconnecting:
		return "reconnecting"
	}
	return "unknown"
}

// Heartbeat returns the monitor's current state.
func (a *Agent) Heartbeat() HeartbeatState {
	return HeartbeatState(a.hbState.Load())
}

func (a *Agent) setHeartbeat(s HeartbeatState) {
	a.hbState.Store(int32(s))
}

// heartbeat is the liveness probe of the actor's own publish->subscribe
// round trip: every interval it tells a Ping addressed to itself, which
// loops back through the bus and produces a Pong via onPing/onPong. A
// missing or stale pong means the transport path is broken, so both
// channels are reconnected.
func (a *Agent) heartbeat(ctx context.Context) {
	// Settle delay: PingInterval may still arrive via UpdateSettings.
	if !sleepCtx(ctx, a.cfg.HeartbeatSettle) {
		return
	}

	interval := a.settings.Seconds("PingInterval")
	if interval <= 0 {
		a.log.Info("ping disabled")
		a.setHeartbeat(HeartbeatDisabled)
		return
	}
	a.log.Info("starting ping", slog.Duration("interval", interval))

	// Give the subscription time to settle before the first probe.
	if !sleepCtx(ctx, a.cfg.SubscriberGrace) {
		return
	}

	for ctx.Err() == nil {
		env := bus.New(MsgPing, nil)
		env.To = a.id
		sent, err := a.Tell(ctx, env)
		if err != nil {
			a.log.Warn("ping send failed", slog.Any("error", err))
			a.recoverTransport(ctx)
			continue
		}

		a.setLastPing(sent.ID)
		a.setHeartbeat(HeartbeatAwaitingPong)

		pongID, ok := a.waitPong(ctx)
		if !ok {
			if ctx.Err() != nil {
				return
			}
			a.log.Warn("no pong received")
			a.recoverTransport(ctx)
			continue
		}
		if expected := a.lastPing(); pongID != expected {
			a.log.Warn("stale pong",
				slog.String("expected", expected),
				slog.String("got", pongID))
			a.recoverTransport(ctx)
			continue
		}

		a.setHeartbeat(HeartbeatWaitingInterval)
		if !sleepCtx(ctx, interval) {
			return
		}
	}
}

func (a *Agent) setLastPing(id string) {
	a.pingMu.Lock()
	a.lastPingID = id
	a.pingMu.Unlock()
}

// lastPing returns the Id of the most recent outbound heartbeat ping.
func (a *Agent) lastPing() string {
	a.pingMu.Lock()
	defer a.pingMu.Unlock()
	return a.lastPingID
}

func (a *Agent) waitPong(ctx context.Context) (string, bool) {
	timer := time.NewTimer(a.cfg.PongWait)
	defer timer.Stop()
	select {
	case id := <-a.pongCh:
		return id, true
	case <-timer.C:
		return "", false
	case <-ctx.Done():
		return "", false
	}
}

// recoverTransport reconnects both channels and pauses briefly before the
// ping loop resumes.
func (a *Agent) recoverTransport(ctx context.Context) {
	a.setHeartbeat(HeartbeatReconnecting)
	if err := a.reconnect(ctx); err != nil {
		a.log.Error("reconnect failed", slog.Any("error", err))
	}
	drainPong(a.pongCh)
	sleepCtx(ctx, a.cfg.ReconnectPause)
}

func drainPong(ch chan string) {
	select {
	case <-ch:
	default:
	}
}

// sleepCtx sleeps for d, returning false if ctx was cancelled first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
