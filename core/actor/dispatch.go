package actor

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/strufkin/pyzbus/core/bus"
)

// selfReconnectWindow is how recent a reconnect must be for a read error to
// be attributed to it (and logged silently).
const selfReconnectWindow = time.Second

// dispatchLoop is the always-running receive loop. Frames are decoded and
// correlated (or matched to a handler) strictly in arrival order; handler
// execution happens on the scheduler and is unordered.
func (a *Agent) dispatchLoop(ctx context.Context, sched Scheduler) {
	a.log.Debug("receiver started")

	for {
		frame, err := a.tr.Recv(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, bus.ErrTransportClosed) {
				return
			}
			if time.Since(a.tr.LastReconnect()) > selfReconnectWindow {
				a.log.Error("transport read failed", slog.Any("error", err))
			}
			continue
		}

		env, err := bus.Decode(frame)
		if err != nil {
			a.log.Error("undecodable frame discarded", slog.Any("error", err))
			continue
		}

		env.Received = bus.Now()
		a.received.Add(1)
		a.metrics.MessageReceived(env.Message)
		a.noteInbound()

		if a.trace() {
			a.log.Debug("received", slog.String("message", env.Message), slog.Any("envelope", string(frame)))
		}

		if env.IsReply() {
			if !a.pending.fulfill(env.ReplyToID, env) {
				a.metrics.UnroutableReply()
				a.log.Warn("unexpected reply discarded",
					slog.String("reply_to_id", env.ReplyToID),
					slog.String("message", env.Message))
			}
			continue
		}

		h, ok := a.handlers.Lookup(env.Message)
		if !ok {
			a.metrics.UnknownMessage(env.Message)
			a.log.Error("unknown message type",
				slog.String("message", env.Message),
				slog.String("from", env.From))
			continue
		}

		sched.Schedule(func() {
			a.runHandler(ctx, h, env)
		})
	}
}

// runHandler executes one handler task. Handler failures are isolated: they
// are logged and never reach the dispatch loop.
func (a *Agent) runHandler(ctx context.Context, h HandlerFunc, env *bus.Envelope) {
	if _, err := h(ctx, env); err != nil {
		a.log.Error("handler failed",
			slog.String("message", env.Message),
			slog.String("from", env.From),
			slog.Any("error", err))
	}
}
