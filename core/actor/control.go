package actor

import (
	"context"
	"log/slog"

	"github.com/strufkin/pyzbus/core/bus"
)

// Built-in control message types.
const (
	MsgPing           = "Ping"
	MsgPong           = "Pong"
	MsgUpdateSettings = "UpdateSettings"
	MsgKeepAlive      = "KeepAlive"

	// FieldPingID carries the Id of the ping a pong answers.
	FieldPingID = "PingId"
)

func (a *Agent) registerControlHandlers() {
	a.HandleReplying(MsgPing, a.onPing)
	a.Handle(MsgPong, a.onPong)
	a.HandleReplying(MsgUpdateSettings, a.onUpdateSettings)
	a.Handle(MsgKeepAlive, a.onKeepAlive)
}

// onPing answers a tell-style ping with a pong addressed back to the
// sender, carrying the ping's Id. Ask-style pings (ReplyTo set) are covered
// by the auto-reply wrapper instead.
func (a *Agent) onPing(ctx context.Context, env *bus.Envelope) (bus.Fields, error) {
	a.log.Debug("ping received", slog.String("from", env.From))
	if len(env.ReplyTo) > 0 {
		return nil, nil
	}
	pong := bus.New(MsgPong, bus.Fields{FieldPingID: env.ID})
	pong.To = env.From
	_, err := a.Tell(ctx, pong)
	return nil, err
}

// onPong records the answered ping's Id and wakes the heartbeat monitor.
func (a *Agent) onPong(_ context.Context, env *bus.Envelope) (bus.Fields, error) {
	a.log.Debug("pong received", slog.String("from", env.From))
	select {
	case a.pongCh <- env.StringField(FieldPingID):
	default:
	}
	return nil, nil
}

// onUpdateSettings merges the payload (headers already stripped) into the
// live settings, runs the apply extension point and persists the result.
func (a *Agent) onUpdateSettings(ctx context.Context, env *bus.Envelope) (bus.Fields, error) {
	changed := env.Payload()
	if a.trace() {
		a.log.Debug("settings update received", slog.Any("changed", changed))
	} else {
		a.log.Info("settings updated")
	}

	a.settings.Merge(map[string]any(changed))

	if a.applyFn != nil {
		a.applyFn(changed)
	} else {
		a.log.Debug("apply settings not implemented")
	}

	if a.saver != nil {
		if err := a.saver.Save(ctx, a.settings); err != nil {
			a.log.Error("cannot save settings", slog.Any("error", err))
		}
	}
	return nil, nil
}

func (a *Agent) onKeepAlive(context.Context, *bus.Envelope) (bus.Fields, error) {
	a.log.Debug("keepalive received")
	return nil, nil
}
