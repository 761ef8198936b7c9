// Package bus defines the wire-level contract of the message bus: the
// envelope (a flat JSON object with mandatory routing and correlation
// headers), the topic scheme ("|identity|" and the "|*|" broadcast), and
// the Transport interface the actor runtime drives.
//
// Two Transport implementations exist: the in-memory MemBus used by tests,
// and the NATS-backed session in adapters/nats used in production.
package bus
