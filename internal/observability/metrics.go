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

// Metrics stores Prometheus collectors used by the API and sweep flows.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal     *prometheus.CounterVec
	httpRequestDuration   *prometheus.HistogramVec
	fetchTasksTotal       *prometheus.CounterVec
	providerCallDuration  *prometheus.HistogramVec
	batchesResolvedTotal  *prometheus.CounterVec
	packagesPrunedTotal   prometheus.Counter
	workerInflight        *prometheus.GaugeVec
	retryScheduledTotal   *prometheus.CounterVec
	sweepsExportedTotal   *prometheus.CounterVec
	liveSearchWaitSeconds prometheus.Histogram
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "himatrips",
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests processed by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "himatrips",
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds by method and path.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		fetchTasksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "himatrips",
				Name:      "fetch_tasks_total",
				Help:      "Total fetch task attempts by kind, source, and outcome.",
			},
			[]string{"kind", "source", "outcome"},
		),
		providerCallDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "himatrips",
				Name:      "provider_call_duration_seconds",
				Help:      "Provider search duration in seconds grouped by kind and source.",
				Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
			},
			[]string{"kind", "source"},
		),
		batchesResolvedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "himatrips",
				Name:      "batches_resolved_total",
				Help:      "Total batches that reached a terminal state by category and outcome.",
			},
			[]string{"category", "outcome"},
		),
		packagesPrunedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "himatrips",
				Name:      "packages_pruned_total",
				Help:      "Total competing packages discarded during assembly.",
			},
		),
		workerInflight: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "himatrips",
				Name:      "worker_inflight",
				Help:      "Current number of in-flight fetch workers grouped by kind.",
			},
			[]string{"kind"},
		),
		retryScheduledTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "himatrips",
				Name:      "retry_scheduled_total",
				Help:      "Total fetch tasks scheduled for retry by kind.",
			},
			[]string{"kind"},
		),
		sweepsExportedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "himatrips",
				Name:      "sweeps_exported_total",
				Help:      "Total sweeps handed to the export collaborator by completeness.",
			},
			[]string{"completeness"},
		),
		liveSearchWaitSeconds: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "himatrips",
				Name:      "live_search_wait_seconds",
				Help:      "Time a live search spent waiting on its batch.",
				Buckets:   prometheus.LinearBuckets(0.5, 0.5, 20),
			},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.fetchTasksTotal,
		m.providerCallDuration,
		m.batchesResolvedTotal,
		m.packagesPrunedTotal,
		m.workerInflight,
		m.retryScheduledTotal,
		m.sweepsExportedTotal,
		m.liveSearchWaitSeconds,
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

func (m *Metrics) IncFetchTask(kind, source, outcome string) {
	if m == nil {
		return
	}
	m.fetchTasksTotal.WithLabelValues(normalizeLabel(kind), normalizeLabel(source), normalizeLabel(outcome)).Inc()
}

func (m *Metrics) ObserveProviderCall(kind, source string, duration time.Duration) {
	if m == nil {
		return
	}
	seconds := duration.Seconds()
	if seconds < 0 {
		seconds = 0
	}
	m.providerCallDuration.WithLabelValues(normalizeLabel(kind), normalizeLabel(source)).Observe(seconds)
}

func (m *Metrics) IncBatchResolved(category, outcome string) {
	if m == nil {
		return
	}
	m.batchesResolvedTotal.WithLabelValues(normalizeLabel(category), normalizeLabel(outcome)).Inc()
}

func (m *Metrics) AddPackagesPruned(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.packagesPrunedTotal.Add(float64(count))
}

func (m *Metrics) IncWorkerInFlight(kind string) {
	if m == nil {
		return
	}
	m.workerInflight.WithLabelValues(normalizeLabel(kind)).Inc()
}

func (m *Metrics) DecWorkerInFlight(kind string) {
	if m == nil {
		return
	}
	m.workerInflight.WithLabelValues(normalizeLabel(kind)).Dec()
}

func (m *Metrics) IncRetryScheduled(kind string) {
	if m == nil {
		return
	}
	m.retryScheduledTotal.WithLabelValues(normalizeLabel(kind)).Inc()
}

func (m *Metrics) IncSweepExported(completeness string) {
	if m == nil {
		return
	}
	m.sweepsExportedTotal.WithLabelValues(normalizeLabel(completeness)).Inc()
}

func (m *Metrics) ObserveLiveSearchWait(duration time.Duration) {
	if m == nil {
		return
	}
	seconds := duration.Seconds()
	if seconds < 0 {
		seconds = 0
	}
	m.liveSearchWaitSeconds.Observe(seconds)
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
