package bus

import "strings"

// Topic is the routing key of the bus: "|<identity>|" for a single actor,
// "|*|" for broadcast. Every actor subscribes to its own identity topic and
// the broadcast topic at minimum.
type Topic string

// Broadcast is the wildcard topic received by every actor.
const Broadcast Topic = "|*|"

// IdentityTopic returns the topic scoped to a single actor identity.
func IdentityTopic(identity string) Topic {
	return Topic("|" + identity + "|")
}

// TopicFor derives the routing topic from the envelope's To header: empty
// or "*" broadcasts, anything else targets that identity's topic.
func TopicFor(e *Envelope) Topic {
	if e.To == "" || e.To == "*" {
		return Broadcast
	}
	return IdentityTopic(e.To)
}

// Identity extracts the identity between the pipes, or "*" for broadcast.
func (t Topic) Identity() string {
	return strings.Trim(string(t), "|")
}

// IsBroadcast reports whether the topic is the wildcard topic.
func (t Topic) IsBroadcast() bool { return t == Broadcast }
