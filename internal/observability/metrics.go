package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is a centralized set of Prometheus collectors exposed on /metrics.
//
// It tracks the four components that matter for capacity planning and
// incident response in this execution substrate: tool dispatch, the tiered
// rate limiter, the cache manager, and the task queue.
type Metrics struct {
	// ToolInvocations counts tool calls by tool name and outcome.
	// Labels: tool, status (success|error)
	ToolInvocations *prometheus.CounterVec

	// ToolDuration measures end-to-end tool invocation latency in seconds,
	// from dispatch through the handler's HTTP round trip.
	// Labels: tool
	ToolDuration *prometheus.HistogramVec

	// ErrorsTotal counts errors by component and apperr kind.
	// Labels: component, kind
	ErrorsTotal *prometheus.CounterVec

	// RateLimitTokens is the current token count in a tier's bucket.
	// Labels: tier
	RateLimitTokens *prometheus.GaugeVec

	// RateLimitWaitSeconds measures time spent waiting for a bucket to refill.
	// Labels: tier
	RateLimitWaitSeconds *prometheus.HistogramVec

	// RateLimitRejections counts requests that exceeded MaxWait for a tier.
	// Labels: tier
	RateLimitRejections *prometheus.CounterVec

	// CacheHits and CacheMisses count lookups by category.
	// Labels: category
	CacheHits   *prometheus.CounterVec
	CacheMisses *prometheus.CounterVec

	// CacheEntries is the current entry count per category.
	// Labels: category
	CacheEntries *prometheus.GaugeVec

	// CacheBytes is the current estimated byte size per category.
	// Labels: category
	CacheBytes *prometheus.GaugeVec

	// TaskQueueDepth is the current number of pending+in-flight tasks per queue.
	// Labels: queue
	TaskQueueDepth *prometheus.GaugeVec

	// TaskQueueWaitSeconds measures time between enqueue and a successful pop.
	// Labels: queue
	TaskQueueWaitSeconds *prometheus.HistogramVec

	// TaskQueueProcessed counts completed tasks by queue and outcome.
	// Labels: queue, outcome (success|retry|dead_letter)
	TaskQueueProcessed *prometheus.CounterVec

	// HTTPCoreRequests counts outbound requests made by the shared HTTP client.
	// Labels: host, status_code
	HTTPCoreRequests *prometheus.CounterVec

	// HTTPCoreDuration measures outbound request latency.
	// Labels: host
	HTTPCoreDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all collectors with the default registry.
// Call once at process startup, before serving /metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		ToolInvocations: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "corebridge_tool_invocations_total",
				Help: "Total number of tool invocations by tool name and outcome",
			},
			[]string{"tool", "status"},
		),
		ToolDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "corebridge_tool_duration_seconds",
				Help:    "End-to-end tool invocation latency in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"tool"},
		),
		ErrorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "corebridge_errors_total",
				Help: "Total number of errors by component and apperr kind",
			},
			[]string{"component", "kind"},
		),
		RateLimitTokens: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "corebridge_rate_limit_tokens",
				Help: "Current token count in a tier's bucket",
			},
			[]string{"tier"},
		),
		RateLimitWaitSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "corebridge_rate_limit_wait_seconds",
				Help:    "Time spent waiting for a bucket to refill",
				Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
			},
			[]string{"tier"},
		),
		RateLimitRejections: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "corebridge_rate_limit_rejections_total",
				Help: "Requests rejected after exceeding a tier's max wait",
			},
			[]string{"tier"},
		),
		CacheHits: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "corebridge_cache_hits_total",
				Help: "Cache lookups that found a live entry, by category",
			},
			[]string{"category"},
		),
		CacheMisses: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "corebridge_cache_misses_total",
				Help: "Cache lookups that found no live entry, by category",
			},
			[]string{"category"},
		),
		CacheEntries: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "corebridge_cache_entries",
				Help: "Current entry count per cache category",
			},
			[]string{"category"},
		),
		CacheBytes: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "corebridge_cache_bytes",
				Help: "Current estimated byte size per cache category",
			},
			[]string{"category"},
		),
		TaskQueueDepth: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "corebridge_task_queue_depth",
				Help: "Pending plus in-flight task count per queue",
			},
			[]string{"queue"},
		),
		TaskQueueWaitSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "corebridge_task_queue_wait_seconds",
				Help:    "Time between enqueue and a successful pop",
				Buckets: []float64{0.01, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
			},
			[]string{"queue"},
		),
		TaskQueueProcessed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "corebridge_task_queue_processed_total",
				Help: "Completed tasks by queue and outcome",
			},
			[]string{"queue", "outcome"},
		),
		HTTPCoreRequests: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "corebridge_httpcore_requests_total",
				Help: "Outbound requests made by the shared HTTP client",
			},
			[]string{"host", "status_code"},
		),
		HTTPCoreDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "corebridge_httpcore_duration_seconds",
				Help:    "Outbound request latency in seconds",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
			},
			[]string{"host"},
		),
	}
}

// RecordToolInvocation records the outcome and latency of one tool call.
func (m *Metrics) RecordToolInvocation(tool, status string, durationSeconds float64) {
	m.ToolInvocations.WithLabelValues(tool, status).Inc()
	m.ToolDuration.WithLabelValues(tool).Observe(durationSeconds)
}

// RecordError increments the error counter for a component and apperr kind.
func (m *Metrics) RecordError(component, kind string) {
	m.ErrorsTotal.WithLabelValues(component, kind).Inc()
}

// SetRateLimitTokens reports a tier's current bucket level.
func (m *Metrics) SetRateLimitTokens(tier string, tokens int64) {
	m.RateLimitTokens.WithLabelValues(tier).Set(float64(tokens))
}

// RecordRateLimitWait records time spent waiting for a tier's bucket to refill.
func (m *Metrics) RecordRateLimitWait(tier string, waitSeconds float64) {
	m.RateLimitWaitSeconds.WithLabelValues(tier).Observe(waitSeconds)
}

// RecordRateLimitRejection records a request that exceeded a tier's max wait.
func (m *Metrics) RecordRateLimitRejection(tier string) {
	m.RateLimitRejections.WithLabelValues(tier).Inc()
}

// RecordCacheLookup records a cache hit or miss for a category.
func (m *Metrics) RecordCacheLookup(category string, hit bool) {
	if hit {
		m.CacheHits.WithLabelValues(category).Inc()
		return
	}
	m.CacheMisses.WithLabelValues(category).Inc()
}

// SetCacheSize reports a category's current entry count and byte size.
func (m *Metrics) SetCacheSize(category string, entries int, bytes int64) {
	m.CacheEntries.WithLabelValues(category).Set(float64(entries))
	m.CacheBytes.WithLabelValues(category).Set(float64(bytes))
}

// SetTaskQueueDepth reports a queue's current pending+in-flight count.
func (m *Metrics) SetTaskQueueDepth(queue string, depth int) {
	m.TaskQueueDepth.WithLabelValues(queue).Set(float64(depth))
}

// RecordTaskQueueProcessed records a task's completion and its queue wait time.
func (m *Metrics) RecordTaskQueueProcessed(queue, outcome string, waitSeconds float64) {
	m.TaskQueueProcessed.WithLabelValues(queue, outcome).Inc()
	m.TaskQueueWaitSeconds.WithLabelValues(queue).Observe(waitSeconds)
}

// RecordHTTPCoreRequest records one outbound request made through the shared client.
func (m *Metrics) RecordHTTPCoreRequest(host, statusCode string, durationSeconds float64) {
	m.HTTPCoreRequests.WithLabelValues(host, statusCode).Inc()
	m.HTTPCoreDuration.WithLabelValues(host).Observe(durationSeconds)
}
