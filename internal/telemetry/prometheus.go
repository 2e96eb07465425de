package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusRecorder registers its collectors on a private registry so
// tests can build as many as they like.
type PrometheusRecorder struct {
	registry *prometheus.Registry

	requests     *prometheus.CounterVec
	latency      *prometheus.HistogramVec
	webhooks     *prometheus.CounterVec
	actions      *prometheus.CounterVec
	cacheLookups *prometheus.CounterVec
	maintenance  *prometheus.CounterVec
}

// NewPrometheusRecorder creates the collectors under namespace, together
// with the Go runtime and process collectors.
func NewPrometheusRecorder(namespace string) *PrometheusRecorder {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)

	return &PrometheusRecorder{
		registry: registry,
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route pattern and status.",
		}, []string{"method", "endpoint", "status"}),
		latency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method and route pattern.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		webhooks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_events_total",
			Help:      "CloudPayments notifications by payment status and handling outcome.",
		}, []string{"status", "outcome"}),
		actions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "subscription_actions_total",
			Help:      "Subscription create, cancel, pause and resume actions by result.",
		}, []string{"action", "result"}),
		cacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entitlement_cache_lookups_total",
			Help:      "Entitlement cache lookups by result.",
		}, []string{"result"}),
		maintenance: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "maintenance_rows_total",
			Help:      "Rows touched by maintenance tasks.",
		}, []string{"task"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (p *PrometheusRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{Registry: p.registry})
}

// Registry exposes the underlying registry.
func (p *PrometheusRecorder) Registry() *prometheus.Registry { return p.registry }

func (p *PrometheusRecorder) RecordRequest(method, endpoint, status string, duration time.Duration) {
	p.requests.WithLabelValues(method, endpoint, status).Inc()
	p.latency.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

func (p *PrometheusRecorder) RecordWebhook(status, outcome string) {
	p.webhooks.WithLabelValues(status, outcome).Inc()
}

func (p *PrometheusRecorder) RecordSubscriptionAction(action, result string) {
	p.actions.WithLabelValues(action, result).Inc()
}

func (p *PrometheusRecorder) RecordCacheLookup(hit bool) {
	p.cacheLookups.WithLabelValues(cacheLabel(hit)).Inc()
}

func (p *PrometheusRecorder) RecordMaintenance(task string, rows int) {
	p.maintenance.WithLabelValues(task).Add(float64(rows))
}
