package actor

import (
	"context"
	"log/slog"
	"time"
)

// watchdog periodically checks the time since the last inbound message.
// Each period spent fully idle adds the timeout to a cumulative counter and
// emits a warning carrying the total; any inbound message resets the total
// to zero (dispatch loop, noteInbound).
func (a *Agent) watchdog(ctx context.Context) {
	timeout := a.settings.Seconds("IdleTimeout")
	if timeout <= 0 {
		a.log.Info("idle timeout watchdog disabled")
		return
	}
	a.log.Info("idle timeout watchdog started", slog.Duration("timeout", timeout))

	for sleepCtx(ctx, timeout) {
		a.idleMu.Lock()
		idleFor := time.Since(a.lastMsgTime)
		if idleFor > timeout {
			a.idleSum += timeout.Seconds()
			total := a.idleSum
			a.idleMu.Unlock()
			a.metrics.IdleWarning(total)
			a.log.Warn("idle timeout, no messages",
				slog.Float64("seconds_idle", total))
			continue
		}
		a.idleMu.Unlock()
	}
}

// IdleSeconds returns the cumulative idle counter.
func (a *Agent) IdleSeconds() float64 {
	a.idleMu.Lock()
	defer a.idleMu.Unlock()
	return a.idleSum
}
