package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/strufkin/pyzbus/core/actor"
	"github.com/strufkin/pyzbus/core/metrics"
)

// runtimeMetrics implements actor.RuntimeMetrics using Prometheus.
type runtimeMetrics struct {
	sentTotal        *prometheus.CounterVec
	receivedTotal    *prometheus.CounterVec
	askDuration      *prometheus.HistogramVec
	askTimeoutsTotal *prometheus.CounterVec
	unknownTotal     *prometheus.CounterVec
	unroutableTotal  prometheus.Counter
	panicsTotal      prometheus.Counter
	reconnectsTotal  prometheus.Counter
	idleSeconds      prometheus.Gauge
}

// NewRuntimeMetrics creates a Prometheus implementation of RuntimeMetrics.
func NewRuntimeMetrics(reg prometheus.Registerer) actor.RuntimeMetrics {
	m := &runtimeMetrics{
		sentTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pyzbus_messages_sent_total",
			Help: "Total number of envelopes published",
		}, []string{"message_type"}),

		receivedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pyzbus_messages_received_total",
			Help: "Total number of inbound envelopes decoded",
		}, []string{"message_type"}),

		askDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pyzbus_ask_duration_seconds",
			Help:    "Time from ask send until reply or timeout",
			Buckets: defaultBuckets,
		}, []string{"message_type"}),

		askTimeoutsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pyzbus_ask_timeouts_total",
			Help: "Total number of asks that got no reply in time",
		}, []string{"message_type"}),

		unknownTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pyzbus_unknown_messages_total",
			Help: "Total number of envelopes with no registered handler",
		}, []string{"message_type"}),

		unroutableTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pyzbus_unroutable_replies_total",
			Help: "Total number of replies with no pending ask entry",
		}),

		panicsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pyzbus_handler_panics_total",
			Help: "Total number of handler task panics",
		}),

		reconnectsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pyzbus_reconnects_total",
			Help: "Total number of transport reconnect cycles",
		}),

		idleSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pyzbus_idle_seconds",
			Help: "Cumulative seconds without inbound traffic",
		}),
	}

	reg.MustRegister(
		m.sentTotal,
		m.receivedTotal,
		m.askDuration,
		m.askTimeoutsTotal,
		m.unknownTotal,
		m.unroutableTotal,
		m.panicsTotal,
		m.reconnectsTotal,
		m.idleSeconds,
	)

	return m
}

func (m *runtimeMetrics) MessageSent(msgType string) {
	m.sentTotal.WithLabelValues(msgType).Inc()
}

func (m *runtimeMetrics) MessageReceived(msgType string) {
	m.receivedTotal.WithLabelValues(msgType).Inc()
	m.idleSeconds.Set(0)
}

func (m *runtimeMetrics) AskDuration(msgType string) metrics.Timer {
	return newTimer(m.askDuration.WithLabelValues(msgType))
}

func (m *runtimeMetrics) AskTimeout(msgType string) {
	m.askTimeoutsTotal.WithLabelValues(msgType).Inc()
}

func (m *runtimeMetrics) UnknownMessage(msgType string) {
	m.unknownTotal.WithLabelValues(msgType).Inc()
}

func (m *runtimeMetrics) UnroutableReply() {
	m.unroutableTotal.Inc()
}

func (m *runtimeMetrics) HandlerPanic() {
	m.panicsTotal.Inc()
}

func (m *runtimeMetrics) Reconnect() {
	m.reconnectsTotal.Inc()
}

func (m *runtimeMetrics) IdleWarning(totalSeconds float64) {
	m.idleSeconds.Set(totalSeconds)
}

var _ actor.RuntimeMetrics = (*runtimeMetrics)(nil)
