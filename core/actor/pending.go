package actor

import (
	"sync"

	"github.com/strufkin/pyzbus/core/bus"
)

// pendingTable correlates in-flight asks with their replies. Entries are
// created by Ask immediately before publishing, fulfilled at most once by
// the dispatch loop, and removed either on delivery or by Ask's timeout
// path. Both sides race on the same id; the lock makes fulfill-then-remove
// and remove-then-fulfill equally safe.
type pendingTable struct {
	mu      sync.Mutex
	waiters map[string]chan *bus.Envelope
}

func newPendingTable() *pendingTable {
	return &pendingTable{waiters: make(map[string]chan *bus.Envelope)}
}

// add registers a waiter for id and returns the channel the reply will be
// delivered on. The channel is buffered so fulfill never blocks.
func (p *pendingTable) add(id string) <-chan *bus.Envelope {
	ch := make(chan *bus.Envelope, 1)
	p.mu.Lock()
	p.waiters[id] = ch
	p.mu.Unlock()
	return ch
}

// fulfill delivers env to the waiter for id, consuming the entry. Returns
// false when no waiter exists (unexpected reply).
func (p *pendingTable) fulfill(id string, env *bus.Envelope) bool {
	p.mu.Lock()
	ch, ok := p.waiters[id]
	if ok {
		delete(p.waiters, id)
	}
	p.mu.Unlock()
	if !ok {
		return false
	}
	ch <- env
	return true
}

// remove discards the entry for id, if it still exists.
func (p *pendingTable) remove(id string) {
	p.mu.Lock()
	delete(p.waiters, id)
	p.mu.Unlock()
}

func (p *pendingTable) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.waiters)
}
