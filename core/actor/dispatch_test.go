package actor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/strufkin/pyzbus/core/bus"
)

// inject publishes a raw frame onto the bus from an anonymous peer port.
func inject(t *testing.T, b *bus.MemBus, topic bus.Topic, env *bus.Envelope) {
	t.Helper()
	peer := b.Transport()
	defer peer.Close()
	frame, err := env.Encode()
	require.NoError(t, err)
	require.NoError(t, peer.Publish(context.Background(), topic, frame))
}

func TestDispatchSurvivesUnknownMessage(t *testing.T) {
	b := bus.NewMemBus()
	a := newTestAgent(t, b, "node")

	env := bus.New("NoSuchThing", nil)
	env.ID = "x1"
	env.From = "peer"
	inject(t, b, bus.IdentityTopic("node"), env)

	require.Eventually(t, func() bool {
		return len(a.metrics.snapshot().unknown) == 1
	}, time.Second, 10*time.Millisecond)

	// The loop is still alive: a well-formed control message is processed.
	inject(t, b, bus.IdentityTopic("node"), keepAlive("peer"))
	require.Eventually(t, func() bool {
		return a.Received() == 2
	}, time.Second, 10*time.Millisecond)
}

func TestDispatchSurvivesUnroutableReply(t *testing.T) {
	b := bus.NewMemBus()
	a := newTestAgent(t, b, "node")

	env := bus.New("WhateverReply", nil)
	env.ID = "x2"
	env.From = "peer"
	env.ReplyToID = "no-such-pending-id"
	inject(t, b, bus.IdentityTopic("node"), env)

	require.Eventually(t, func() bool {
		return a.metrics.snapshot().unroutable == 1
	}, time.Second, 10*time.Millisecond)

	inject(t, b, bus.IdentityTopic("node"), keepAlive("peer"))
	require.Eventually(t, func() bool {
		return a.Received() == 2
	}, time.Second, 10*time.Millisecond)
}

func TestDispatchSurvivesGarbageFrame(t *testing.T) {
	b := bus.NewMemBus()
	a := newTestAgent(t, b, "node")

	peer := b.Transport()
	defer peer.Close()
	require.NoError(t, peer.Publish(context.Background(), bus.IdentityTopic("node"), []byte("{not json")))

	inject(t, b, bus.IdentityTopic("node"), keepAlive("peer"))
	require.Eventually(t, func() bool {
		return a.Received() == 1
	}, time.Second, 10*time.Millisecond)
}

func TestDispatchSurvivesTransientReadError(t *testing.T) {
	b := bus.NewMemBus()
	a := newTestAgent(t, b, "node")

	a.tr.FailNextRecv(errors.New("socket reset"))

	inject(t, b, bus.IdentityTopic("node"), keepAlive("peer"))
	require.Eventually(t, func() bool {
		return a.Received() == 1
	}, time.Second, 10*time.Millisecond)
}

func TestDispatchIsolatesHandlerPanic(t *testing.T) {
	b := bus.NewMemBus()
	a := newTestAgent(t, b, "node")

	a.Handle("Boom", func(context.Context, *bus.Envelope) (bus.Fields, error) {
		panic("handler bug")
	})

	env := bus.New("Boom", nil)
	env.ID = "x3"
	env.From = "peer"
	inject(t, b, bus.IdentityTopic("node"), env)

	require.Eventually(t, func() bool {
		return a.metrics.snapshot().panics == 1
	}, time.Second, 10*time.Millisecond)

	inject(t, b, bus.IdentityTopic("node"), keepAlive("peer"))
	require.Eventually(t, func() bool {
		return a.Received() == 2
	}, time.Second, 10*time.Millisecond)
}

func TestDispatchDoesNotBlockOnSlowHandler(t *testing.T) {
	b := bus.NewMemBus()
	a := newTestAgent(t, b, "node")

	release := make(chan struct{})
	a.Handle("Stall", func(context.Context, *bus.Envelope) (bus.Fields, error) {
		<-release
		return nil, nil
	})
	defer close(release)

	env := bus.New("Stall", nil)
	env.ID = "x4"
	env.From = "peer"
	inject(t, b, bus.IdentityTopic("node"), env)

	// With the stalled handler still running, the loop keeps reading.
	inject(t, b, bus.IdentityTopic("node"), keepAlive("peer"))
	require.Eventually(t, func() bool {
		return a.Received() == 2
	}, time.Second, 10*time.Millisecond)
}

func keepAlive(from string) *bus.Envelope {
	env := bus.New(MsgKeepAlive, nil)
	env.ID = "ka-" + from
	env.From = from
	return env
}
