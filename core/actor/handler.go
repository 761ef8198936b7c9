package actor

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/strufkin/pyzbus/core/bus"
	"github.com/strufkin/pyzbus/internal/reflector"
)

// HandlerFunc processes one inbound envelope. The returned fields are only
// consumed by the auto-reply wrapper; plain handlers may return nil.
type HandlerFunc func(ctx context.Context, env *bus.Envelope) (bus.Fields, error)

// Registry maps message type names to handlers. Names are the envelope's
// Message values ("Ping", "UpdateSettings", ...); there is no reflection at
// dispatch time.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]HandlerFunc)}
}

// Set registers (or replaces) the handler for a message type.
func (r *Registry) Set(message string, h HandlerFunc) {
	r.mu.Lock()
	r.handlers[message] = h
	r.mu.Unlock()
}

// Lookup returns the handler for a message type.
func (r *Registry) Lookup(message string) (HandlerFunc, bool) {
	r.mu.RLock()
	h, ok := r.handlers[message]
	r.mu.RUnlock()
	return h, ok
}

// Handle registers a handler for the given message type.
func (a *Agent) Handle(message string, h HandlerFunc) {
	a.handlers.Set(message, h)
}

// HandleReplying registers a handler wrapped with the auto-reply behavior:
// when the inbound envelope carries ReplyTo, one reply envelope per listed
// target is told after the handler returns, carrying Message
// "<original>Reply", ReplyToId of the original Id and the handler's result
// fields. Handlers opt into request/reply semantics purely by returning a
// result mapping.
func (a *Agent) HandleReplying(message string, h HandlerFunc) {
	a.handlers.Set(message, a.replying(h))
}

func (a *Agent) replying(h HandlerFunc) HandlerFunc {
	return func(ctx context.Context, env *bus.Envelope) (bus.Fields, error) {
		res, err := h(ctx, env)
		if err != nil {
			return res, err
		}
		if len(env.ReplyTo) == 0 {
			return res, nil
		}
		if res == nil {
			res = bus.Fields{}
		}
		for _, target := range env.ReplyTo {
			reply := bus.New(env.Message+"Reply", res)
			reply.ReplyToID = env.ID
			reply.To = target
			if _, err := a.Tell(ctx, reply); err != nil {
				return res, fmt.Errorf("auto-reply to %s: %w", target, err)
			}
		}
		return res, nil
	}
}

// HandleMsg registers a typed handler. The message type name is derived
// from T's type name and the envelope payload is decoded into T before the
// handler runs.
func HandleMsg[T any](a *Agent, h func(ctx context.Context, msg T, env *bus.Envelope) (bus.Fields, error)) {
	name := reflector.TypeInfoFor[T]().Name
	a.Handle(name, func(ctx context.Context, env *bus.Envelope) (bus.Fields, error) {
		msg, err := decodePayload[T](env)
		if err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", name, err)
		}
		return h(ctx, msg, env)
	})
}

func decodePayload[T any](env *bus.Envelope) (out T, err error) {
	data, err := json.Marshal(env.Payload())
	if err != nil {
		return out, err
	}
	err = json.Unmarshal(data, &out)
	return out, err
}
