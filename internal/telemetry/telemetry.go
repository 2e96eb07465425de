// Package telemetry records API and billing metrics. The Prometheus
// collector is scraped on /metrics; the CloudWatch emitter buffers datums
// and pushes them with PutMetricData.
package telemetry

import "time"

// Metric names shared by both backends.
const (
	MetricAPIRequest         = "APIRequest"
	MetricAPILatency         = "APILatency"
	MetricWebhookEvent       = "WebhookEvent"
	MetricSubscriptionAction = "SubscriptionAction"
	MetricEntitlementCache   = "EntitlementCache"
	MetricMaintenanceRows    = "MaintenanceRows"

	DimMethod   = "Method"
	DimEndpoint = "Endpoint"
	DimStatus   = "Status"
	DimOutcome  = "Outcome"
	DimAction   = "Action"
	DimResult   = "Result"
	DimTask     = "Task"
)

// Outcome labels.
const (
	OutcomeApplied   = "applied"
	OutcomeDuplicate = "duplicate"
	OutcomeIgnored   = "ignored"
	OutcomeRejected  = "rejected"
	OutcomeError     = "error"

	ResultSuccess = "success"
	ResultFailure = "failure"

	CacheHit  = "hit"
	CacheMiss = "miss"
)

// Recorder is implemented by every backend.
type Recorder interface {
	RecordRequest(method, endpoint, status string, duration time.Duration)
	RecordWebhook(status, outcome string)
	RecordSubscriptionAction(action, result string)
	RecordCacheLookup(hit bool)
	RecordMaintenance(task string, rows int)
}

// Nop discards everything.
type Nop struct{}

func (Nop) RecordRequest(string, string, string, time.Duration) {}
func (Nop) RecordWebhook(string, string)                        {}
func (Nop) RecordSubscriptionAction(string, string)             {}
func (Nop) RecordCacheLookup(bool)                              {}
func (Nop) RecordMaintenance(string, int)                       {}

func cacheLabel(hit bool) string {
	if hit {
		return CacheHit
	}
	return CacheMiss
}

var (
	_ Recorder = Nop{}
	_ Recorder = (*PrometheusRecorder)(nil)
	_ Recorder = (*CloudWatchRecorder)(nil)
)
