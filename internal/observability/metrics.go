package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "broadcast_dispatch"

// Job results recorded per dispatch pass.
const (
	JobResultProcessed = "processed"
	JobResultFailed    = "failed"
	JobResultSkipped   = "skipped"
)

// Metrics stores Prometheus collectors used by the API and dispatch worker.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	dispatchRunsTotal    *prometheus.CounterVec
	dispatchRunDuration  prometheus.Histogram
	jobsTotal            *prometheus.CounterVec
	staleReleasedTotal   prometheus.Counter
	inboxEntriesTotal    prometheus.Counter
	pushResultsTotal     *prometheus.CounterVec
	tokensPrunedTotal    prometheus.Counter
	gatewaySendDuration  *prometheus.HistogramVec
	fanoutInflight       prometheus.Gauge
	triggersPublishTotal *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests processed by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds by method and path.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		dispatchRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dispatch_runs_total",
				Help:      "Total number of dispatch passes grouped by trigger source.",
			},
			[]string{"trigger"},
		),
		dispatchRunDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "dispatch_run_duration_seconds",
				Help:      "Wall time of one dispatch pass.",
				Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
			},
		),
		jobsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "jobs_total",
				Help:      "Scheduled jobs handled by the dispatch worker grouped by result.",
			},
			[]string{"result"},
		),
		staleReleasedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stale_claims_released_total",
				Help:      "Processing claims returned to pending after exceeding the stale threshold.",
			},
		),
		inboxEntriesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "inbox_entries_created_total",
				Help:      "In-app inbox entries written by the dispatch worker.",
			},
		),
		pushResultsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "push_results_total",
				Help:      "Push gateway results grouped by platform and outcome.",
			},
			[]string{"platform", "outcome"},
		),
		tokensPrunedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "device_tokens_pruned_total",
				Help:      "Device tokens deleted after the gateway reported them invalid.",
			},
		),
		gatewaySendDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "push_send_duration_seconds",
				Help:      "Push gateway call duration in seconds grouped by platform.",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
			},
			[]string{"platform"},
		),
		fanoutInflight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "push_inflight",
				Help:      "Current number of in-flight push gateway calls.",
			},
		),
		triggersPublishTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dispatch_triggers_published_total",
				Help:      "Dispatch triggers published to the broker grouped by result.",
			},
			[]string{"result"},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.dispatchRunsTotal,
		m.dispatchRunDuration,
		m.jobsTotal,
		m.staleReleasedTotal,
		m.inboxEntriesTotal,
		m.pushResultsTotal,
		m.tokensPrunedTotal,
		m.gatewaySendDuration,
		m.fanoutInflight,
		m.triggersPublishTotal,
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) HTTPMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		path := routePath(c)
		// Avoid self-scrape noise for request counters.
		if path == "/metrics" {
			return err
		}

		m.recordHTTPRequest(c.Method(), path, statusFromResult(c, err), time.Since(start))
		return err
	}
}

func (m *Metrics) ObserveDispatchRun(trigger string, duration time.Duration) {
	if m == nil {
		return
	}
	m.dispatchRunsTotal.WithLabelValues(normalizeLabel(trigger)).Inc()
	m.dispatchRunDuration.Observe(max(duration.Seconds(), 0))
}

func (m *Metrics) IncJobs(result string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.jobsTotal.WithLabelValues(normalizeLabel(result)).Add(float64(n))
}

func (m *Metrics) AddStaleReleased(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.staleReleasedTotal.Add(float64(n))
}

func (m *Metrics) AddInboxEntries(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.inboxEntriesTotal.Add(float64(n))
}

func (m *Metrics) IncPushResult(platform, outcome string) {
	if m == nil {
		return
	}
	m.pushResultsTotal.WithLabelValues(normalizeLabel(platform), normalizeLabel(outcome)).Inc()
}

func (m *Metrics) AddTokensPruned(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.tokensPrunedTotal.Add(float64(n))
}

func (m *Metrics) ObservePushSendDuration(platform string, duration time.Duration) {
	if m == nil {
		return
	}
	m.gatewaySendDuration.WithLabelValues(normalizeLabel(platform)).Observe(max(duration.Seconds(), 0))
}

func (m *Metrics) IncPushInFlight() {
	if m == nil {
		return
	}
	m.fanoutInflight.Inc()
}

func (m *Metrics) DecPushInFlight() {
	if m == nil {
		return
	}
	m.fanoutInflight.Dec()
}

func (m *Metrics) IncTriggerPublished(result string) {
	if m == nil {
		return
	}
	m.triggersPublishTotal.WithLabelValues(normalizeLabel(result)).Inc()
}

func (m *Metrics) recordHTTPRequest(method string, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}

	methodLabel := strings.ToUpper(strings.TrimSpace(method))
	if methodLabel == "" {
		methodLabel = "UNKNOWN"
	}
	pathLabel := strings.TrimSpace(path)
	if pathLabel == "" {
		pathLabel = "unmatched"
	}

	m.httpRequestsTotal.WithLabelValues(methodLabel, pathLabel, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(methodLabel, pathLabel).Observe(duration.Seconds())
}

func routePath(c *fiber.Ctx) string {
	if c == nil {
		return "unmatched"
	}

	if route := c.Route(); route != nil {
		if path := strings.TrimSpace(route.Path); path != "" {
			return path
		}
	}
	return "unmatched"
}

func statusFromResult(c *fiber.Ctx, err error) int {
	if err != nil {
		if fiberErr, ok := err.(*fiber.Error); ok {
			return fiberErr.Code
		}
		return fiber.StatusInternalServerError
	}

	if c == nil {
		return fiber.StatusOK
	}

	status := c.Response().StatusCode()
	if status == 0 {
		return fiber.StatusOK
	}
	return status
}

func normalizeLabel(value string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}
