// Package actor implements the runtime for one actor on the topic-routed
// message bus.
//
// An [Agent] owns the session state and runs three background tasks:
//
//   - the dispatch loop, reading frames from the transport and routing
//     replies to pending asks and everything else to named handlers, each
//     handler on its own goroutine;
//   - the heartbeat monitor, probing the actor's own publish->subscribe
//     round trip with Ping/Pong and reconnecting the transport when the
//     pong is missing or stale;
//   - the idle watchdog, warning when no inbound traffic arrives for the
//     configured timeout.
//
// Outbound messaging is [Agent.Tell] (fire-and-forget broadcast) and
// [Agent.Ask] (publish plus block-until-correlated-reply-or-timeout). An
// Ask timeout is a defined outcome, not an error: the reply is nil.
//
// Handlers are registered by message type name via [Agent.Handle], with
// [Agent.HandleReplying] adding the auto-reply behavior that turns any
// handler's result mapping into "<Message>Reply" envelopes for the senders
// listed in ReplyTo. [HandleMsg] offers typed registration where the name
// is derived from the Go type.
package actor
