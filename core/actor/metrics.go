package actor

import "github.com/strufkin/pyzbus/core/metrics"

// RuntimeMetrics is the instrumentation surface of the actor runtime.
// All methods are thread-safe.
type RuntimeMetrics interface {
	// Traffic
	MessageSent(msgType string)
	MessageReceived(msgType string)

	// Ask path
	AskDuration(msgType string) metrics.Timer
	AskTimeout(msgType string)

	// Dispatch diagnostics
	UnknownMessage(msgType string)
	UnroutableReply()
	HandlerPanic()

	// Transport health
	Reconnect()
	IdleWarning(totalSeconds float64)
}

type nopRuntimeMetrics struct{}

func (nopRuntimeMetrics) MessageSent(string)               {}
func (nopRuntimeMetrics) MessageReceived(string)           {}
func (nopRuntimeMetrics) AskDuration(string) metrics.Timer { return metrics.NopTimer() }
func (nopRuntimeMetrics) AskTimeout(string)                {}
func (nopRuntimeMetrics) UnknownMessage(string)            {}
func (nopRuntimeMetrics) UnroutableReply()                 {}
func (nopRuntimeMetrics) HandlerPanic()                    {}
func (nopRuntimeMetrics) Reconnect()                       {}
func (nopRuntimeMetrics) IdleWarning(float64)              {}

// NopRuntimeMetrics returns a no-op RuntimeMetrics implementation.
func NopRuntimeMetrics() RuntimeMetrics { return nopRuntimeMetrics{} }
