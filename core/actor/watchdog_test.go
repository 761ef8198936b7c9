package actor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/strufkin/pyzbus/core/bus"
)

func TestWatchdogAccumulatesIdleTime(t *testing.T) {
	b := bus.NewMemBus()
	a := newTestAgent(t, b, "node", withSettings(map[string]any{
		"IdleTimeout": 0.05,
	}))

	require.Eventually(t, func() bool {
		return len(a.metrics.snapshot().idle) >= 3
	}, 2*time.Second, 10*time.Millisecond)

	warnings := a.metrics.snapshot().idle
	for i := 1; i < len(warnings); i++ {
		require.Greater(t, warnings[i], warnings[i-1])
	}
	require.InDelta(t, 0.05, warnings[0], 1e-9)
}

func TestWatchdogResetsOnInboundMessage(t *testing.T) {
	b := bus.NewMemBus()
	a := newTestAgent(t, b, "node", withSettings(map[string]any{
		"IdleTimeout": 0.05,
	}))

	require.Eventually(t, func() bool {
		return a.IdleSeconds() > 0
	}, 2*time.Second, 10*time.Millisecond)

	inject(t, b, bus.IdentityTopic("node"), keepAlive("peer"))
	require.Eventually(t, func() bool {
		return a.IdleSeconds() == 0
	}, time.Second, 5*time.Millisecond)
}

func TestWatchdogDisabledWithZeroTimeout(t *testing.T) {
	b := bus.NewMemBus()
	a := newTestAgent(t, b, "node", withSettings(map[string]any{
		"IdleTimeout": 0.0,
	}))

	time.Sleep(100 * time.Millisecond)
	require.Empty(t, a.metrics.snapshot().idle)
	require.Zero(t, a.IdleSeconds())
}
