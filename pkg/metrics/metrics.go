package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all application metrics
type Metrics struct {
	// Emergency lifecycle metrics
	EmergenciesCreated   *prometheus.CounterVec
	NotificationsFanned  *prometheus.CounterVec
	DonorsContacted      prometheus.Counter
	EmergenciesCompleted prometheus.Counter

	// Backend metrics
	BackendWrites  *prometheus.CounterVec
	BackendLatency *prometheus.HistogramVec
	BackendMode    *prometheus.GaugeVec

	// Realtime metrics
	RealtimeEvents *prometheus.CounterVec

	// HTTP metrics
	RequestDuration *prometheus.HistogramVec
	RequestTotal    *prometheus.CounterVec

	// Mail worker metrics
	MailDeliveries *prometheus.CounterVec
	MailLatency    prometheus.Histogram
}

// NewMetrics creates and registers all application metrics on reg.
// A nil reg registers on the default prometheus registry.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		EmergenciesCreated: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "emergencies_created_total",
			Help:      "Total number of emergency requests created",
		}, []string{"urgency"}),
		NotificationsFanned: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_created_total",
			Help:      "Total number of notifications created by trigger",
		}, []string{"trigger"}),
		DonorsContacted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "donors_contacted_total",
			Help:      "Total number of donor contact actions",
		}),
		EmergenciesCompleted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "emergencies_completed_total",
			Help:      "Total number of completed emergency requests",
		}),

		BackendWrites: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_writes_total",
			Help:      "Total number of write-through operations by collection and status",
		}, []string{"collection", "status"}),
		BackendLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backend_write_duration_seconds",
			Help:      "Duration of write-through operations",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"collection"}),
		BackendMode: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "backend_mode",
			Help:      "Backend selected at startup (1 for the active mode)",
		}, []string{"mode"}),

		RealtimeEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "realtime_events_total",
			Help:      "Realtime change events by collection and outcome",
		}, []string{"collection", "outcome"}),

		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		RequestTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),

		MailDeliveries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mail_deliveries_total",
			Help:      "Notification emails by outcome",
		}, []string{"outcome"}),
		MailLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "mail_delivery_duration_seconds",
			Help:      "Time spent resolving and sending one notification email",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

// NewNop registers everything on a private registry; used by tests and tools.
func NewNop() *Metrics {
	return NewMetrics("lifedrop", prometheus.NewRegistry())
}
