package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "preorder"

// OrderMetrics records order lifecycle, webhook, realtime, and refund activity.
// A nil *OrderMetrics is valid and records nothing.
type OrderMetrics struct {
	transitions    *prometheus.CounterVec
	webhookEvents  *prometheus.CounterVec
	realtimeSent   *prometheus.CounterVec
	realtimeDrop   *prometheus.CounterVec
	subscribers    prometheus.Gauge
	refunds        *prometheus.CounterVec
	gatewayLatency *prometheus.HistogramVec
	outboxEvents   *prometheus.CounterVec
}

// NewOrderMetrics registers the order metrics on the provided registerer.
func NewOrderMetrics(reg prometheus.Registerer) *OrderMetrics {
	if reg == nil {
		return &OrderMetrics{}
	}
	m := &OrderMetrics{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_transitions_total",
			Help:      "Persisted order status transitions.",
		}, []string{"from", "to", "trigger"}),
		webhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_events_total",
			Help:      "Payment provider webhook events by outcome.",
		}, []string{"event_type", "outcome"}),
		realtimeSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "realtime_events_delivered_total",
			Help:      "Realtime events delivered to local subscribers.",
		}, []string{"event"}),
		realtimeDrop: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "realtime_events_dropped_total",
			Help:      "Realtime events dropped because a subscriber buffer was full.",
		}, []string{"event"}),
		subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "realtime_subscribers",
			Help:      "Currently connected realtime subscribers.",
		}),
		refunds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refunds_total",
			Help:      "Refund attempts by outcome.",
		}, []string{"outcome"}),
		gatewayLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "payment_gateway_duration_seconds",
			Help:      "Latency of payment gateway calls.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation", "result"}),
		outboxEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_events_total",
			Help:      "Outbox publish attempts by event type and result.",
		}, []string{"event_type", "result"}),
	}
	reg.MustRegister(m.transitions, m.webhookEvents, m.realtimeSent, m.realtimeDrop, m.subscribers, m.refunds, m.gatewayLatency, m.outboxEvents)
	return m
}

func (m *OrderMetrics) IncTransition(from, to, trigger string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(from), normalizeLabel(to), normalizeLabel(trigger)).Inc()
}

func (m *OrderMetrics) IncWebhookEvent(eventType, outcome string) {
	if m == nil || m.webhookEvents == nil {
		return
	}
	m.webhookEvents.WithLabelValues(normalizeLabel(eventType), normalizeLabel(outcome)).Inc()
}

func (m *OrderMetrics) IncRealtimeDelivered(event string) {
	if m == nil || m.realtimeSent == nil {
		return
	}
	m.realtimeSent.WithLabelValues(normalizeLabel(event)).Inc()
}

func (m *OrderMetrics) IncRealtimeDropped(event string) {
	if m == nil || m.realtimeDrop == nil {
		return
	}
	m.realtimeDrop.WithLabelValues(normalizeLabel(event)).Inc()
}

// AddSubscribers adjusts the connected subscriber gauge by delta.
func (m *OrderMetrics) AddSubscribers(delta int) {
	if m == nil || m.subscribers == nil {
		return
	}
	m.subscribers.Add(float64(delta))
}

func (m *OrderMetrics) IncRefund(outcome string) {
	if m == nil || m.refunds == nil {
		return
	}
	m.refunds.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// ObserveGatewayCall records the latency of one payment gateway operation.
func (m *OrderMetrics) ObserveGatewayCall(operation string, err error, duration time.Duration) {
	if m == nil || m.gatewayLatency == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.gatewayLatency.WithLabelValues(normalizeLabel(operation), result).Observe(duration.Seconds())
}

// IncOutboxEvent counts one publish attempt: published, retry, or dead_lettered.
func (m *OrderMetrics) IncOutboxEvent(eventType, result string) {
	if m == nil || m.outboxEvents == nil {
		return
	}
	m.outboxEvents.WithLabelValues(normalizeLabel(eventType), normalizeLabel(result)).Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
