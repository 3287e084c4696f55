// Package metrics exposes the control loop's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "hidrosense"

// Metrics groups the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	readings   prometheus.Counter
	malformed  *prometheus.CounterVec
	decisions  *prometheus.CounterVec
	deliveries *prometheus.CounterVec
	dropped    *prometheus.CounterVec
	humidity   prometheus.Gauge
	threshold  prometheus.Gauge
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		readings: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "readings_total",
			Help:      "Humidity readings stored.",
		}),
		malformed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "malformed_messages_total",
			Help:      "Inbound messages discarded because the payload did not parse.",
		}, []string{"topic"}),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pump_decisions_total",
			Help:      "Pump decisions taken by the control evaluator.",
		}, []string{"decision"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Outbound deliveries by sink and result.",
		}, []string{"sink", "result"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_dropped_total",
			Help:      "Pump alerts discarded because the delivery queue was full.",
		}, []string{"action"}),
		humidity: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "humidity_percent",
			Help:      "Latest humidity reading.",
		}),
		threshold: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "activation_threshold_percent",
			Help:      "Current activation threshold.",
		}),
	}

	reg.MustRegister(m.readings, m.malformed, m.decisions, m.deliveries, m.dropped, m.humidity, m.threshold)
	return m
}

// Reading records a stored reading.
func (m *Metrics) Reading(value int) {
	if m == nil {
		return
	}
	m.readings.Inc()
	m.humidity.Set(float64(value))
}

// Malformed records a discarded inbound message.
func (m *Metrics) Malformed(topic string) {
	if m == nil {
		return
	}
	m.malformed.WithLabelValues(topic).Inc()
}

// Decision records a non-trivial evaluator decision.
func (m *Metrics) Decision(decision string) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(decision).Inc()
}

// Delivery records the outcome of an outbound delivery.
func (m *Metrics) Delivery(sink string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.deliveries.WithLabelValues(sink, result).Inc()
}

// Threshold records the current activation threshold.
func (m *Metrics) Threshold(v int) {
	if m == nil {
		return
	}
	m.threshold.Set(float64(v))
}

// Dropped records an alert discarded before delivery.
func (m *Metrics) Dropped(action string) {
	if m == nil {
		return
	}
	m.dropped.WithLabelValues(action).Inc()
}
