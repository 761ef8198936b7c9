// Package settings implements the layered key/value configuration of an
// actor: defaults, a cached snapshot from a prior run, and a local override
// file, each layer overwriting the previous. After startup the mapping
// stays live and mutable; the only writer is the UpdateSettings control
// message.
package settings

import (
	"context"
	"strconv"
	"sync"
	"time"
)

// Recognized option keys.
const (
	KeyUID          = "UID"
	KeySubAddr      = "SubAddr"
	KeyPubAddr      = "PubAddr"
	KeyReqAddr      = "ReqAddr"
	KeyPingInterval = "PingInterval"
	KeyIdleTimeout  = "IdleTimeout"
	KeyTrace        = "Trace"
	KeyDebug        = "Debug"
)

// Defaults returns the built-in settings layer.
func Defaults() map[string]any {
	return map[string]any{
		KeyUID:          "",
		KeySubAddr:      "nats://127.0.0.1:4222",
		KeyPubAddr:      "nats://127.0.0.1:4222",
		KeyReqAddr:      "",
		KeyPingInterval: 0.0,
		KeyIdleTimeout:  200.0,
		KeyTrace:        true,
		KeyDebug:        true,
	}
}

// Saver persists the full settings mapping, typically to the cache layer
// read back on the next start.
type Saver interface {
	Save(ctx context.Context, s *Settings) error
}

// Settings is a mutex-guarded live mapping. Readers may be any task;
// concurrent reads during a Merge observe either the old or the new value
// of a key, never a torn mapping.
type Settings struct {
	mu sync.RWMutex
	m  map[string]any
}

// New creates a Settings from an initial mapping. The mapping is copied.
func New(m map[string]any) *Settings {
	s := &Settings{m: make(map[string]any, len(m))}
	for k, v := range m {
		s.m[k] = v
	}
	return s
}

// Get returns the raw value for key.
func (s *Settings) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.m[key]
	return v, ok
}

// String returns key as a string, or "" when absent or not a string.
func (s *Settings) String(key string) string {
	v, _ := s.Get(key)
	str, _ := v.(string)
	return str
}

// Bool returns key as a bool. Absent keys and non-boolean values are false.
func (s *Settings) Bool(key string) bool {
	v, _ := s.Get(key)
	b, _ := v.(bool)
	return b
}

// Float returns key as a float64, converting the numeric types JSON and
// YAML decoders produce, plus numeric strings.
func (s *Settings) Float(key string) float64 {
	v, _ := s.Get(key)
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err == nil {
			return f
		}
	}
	return 0
}

// Seconds reads key as a float seconds value and returns it as a Duration.
func (s *Settings) Seconds(key string) time.Duration {
	return time.Duration(s.Float(key) * float64(time.Second))
}

// Merge overwrites the mapping with all keys from m.
func (s *Settings) Merge(m map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range m {
		s.m[k] = v
	}
}

// Snapshot returns a copy of the full mapping.
func (s *Settings) Snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]any, len(s.m))
	for k, v := range s.m {
		out[k] = v
	}
	return out
}
