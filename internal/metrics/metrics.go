// Package metrics exposes Prometheus collectors of the realtime core.
// Every method is safe to call on a nil *Metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors of one session
type Metrics struct {
	registry *prometheus.Registry

	connectionState     prometheus.Gauge
	subscriptionsActive prometheus.Gauge
	outboxQueued        prometheus.Gauge
	outboxSent          prometheus.Counter
	outboxRetries       prometheus.Counter
	outboxDeadLetters   prometheus.Counter
	sendLatency         prometheus.Histogram
	alertsShown         *prometheus.CounterVec
	notificationsNew    prometheus.Counter
}

// New creates the collectors and registers them in a fresh registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		connectionState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "realtime_connection_state",
			Help: "1 when the data channel is connected, 0 otherwise",
		}),
		subscriptionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "realtime_subscriptions_active",
			Help: "Number of live subscriptions in the registry",
		}),
		outboxQueued: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "realtime_outbox_queued",
			Help: "Messages waiting in the outbound queue",
		}),
		outboxSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "realtime_outbox_sent_total",
			Help: "Queued messages delivered",
		}),
		outboxRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "realtime_outbox_retries_total",
			Help: "Retries scheduled for queued messages",
		}),
		outboxDeadLetters: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "realtime_outbox_dead_letters_total",
			Help: "Queued messages moved to the dead-letter log",
		}),
		sendLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "realtime_send_latency_seconds",
			Help:    "Latency of message writes",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~16s
		}),
		alertsShown: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "realtime_alerts_shown_total",
			Help: "Local alerts surfaced, by priority",
		}, []string{"priority"}),
		notificationsNew: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "realtime_notifications_new_total",
			Help: "Newly arrived notifications detected on feeds",
		}),
	}

	m.registry.MustRegister(
		m.connectionState,
		m.subscriptionsActive,
		m.outboxQueued,
		m.outboxSent,
		m.outboxRetries,
		m.outboxDeadLetters,
		m.sendLatency,
		m.alertsShown,
		m.notificationsNew,
	)

	return m
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) SetConnected(connected bool) {
	if m == nil {
		return
	}
	if connected {
		m.connectionState.Set(1)
	} else {
		m.connectionState.Set(0)
	}
}

func (m *Metrics) SetSubscriptions(n int) {
	if m == nil {
		return
	}
	m.subscriptionsActive.Set(float64(n))
}

func (m *Metrics) SetQueued(n int) {
	if m == nil {
		return
	}
	m.outboxQueued.Set(float64(n))
}

func (m *Metrics) IncSent() {
	if m == nil {
		return
	}
	m.outboxSent.Inc()
}

func (m *Metrics) IncRetries() {
	if m == nil {
		return
	}
	m.outboxRetries.Inc()
}

func (m *Metrics) IncDeadLetters() {
	if m == nil {
		return
	}
	m.outboxDeadLetters.Inc()
}

func (m *Metrics) ObserveSend(d time.Duration) {
	if m == nil {
		return
	}
	m.sendLatency.Observe(d.Seconds())
}

func (m *Metrics) IncAlerts(priority string) {
	if m == nil {
		return
	}
	m.alertsShown.WithLabelValues(priority).Inc()
}

func (m *Metrics) AddNewNotifications(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.notificationsNew.Add(float64(n))
}
