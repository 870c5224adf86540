package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "learnquest"

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "route"},
	)

	progressOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "progress",
			Name:      "operations_total",
			Help:      "Progress coordinator operations by outcome.",
		},
		[]string{"op", "result"},
	)

	xpAwarded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "progress",
			Name:      "xp_awarded_total",
			Help:      "Total experience points credited to users.",
		},
	)

	badgesAwarded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "badges",
			Name:      "awarded_total",
			Help:      "Badges newly awarded, by badge id.",
		},
		[]string{"badge"},
	)

	lockWait = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "progress",
			Name:      "lock_wait_seconds",
			Help:      "Time spent acquiring the per-user progress lock.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
	)

	catalogCache = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "catalog",
			Name:      "cache_lookups_total",
			Help:      "Catalog LRU lookups by result.",
		},
		[]string{"result"},
	)

	schedulerRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "task_runs_total",
			Help:      "Scheduled task executions.",
		},
		[]string{"task", "success"},
	)

	schedulerDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "task_run_duration_seconds",
			Help:      "Duration of scheduled task executions.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
		},
		[]string{"task"},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		progressOps,
		xpAwarded,
		badgesAwarded,
		lockWait,
		catalogCache,
		schedulerRuns,
		schedulerDuration,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// Middleware records request count, latency and in-flight gauge per route.
// Routes are labelled by their gin pattern so path parameters do not
// explode label cardinality.
func Middleware(skipPath string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.Path == skipPath {
			c.Next()
			return
		}
		start := time.Now()
		httpInFlight.Inc()
		defer httpInFlight.Dec()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		method := strings.ToUpper(c.Request.Method)
		httpRequests.WithLabelValues(method, route, strconv.Itoa(c.Writer.Status())).Inc()
		httpDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	}
}

// RecordProgressOp counts one coordinator operation. result is "ok" or an
// error class such as "not_found".
func RecordProgressOp(op, result string) {
	progressOps.WithLabelValues(op, result).Inc()
}

// RecordXP adds credited experience to the running total.
func RecordXP(amount int) {
	if amount > 0 {
		xpAwarded.Add(float64(amount))
	}
}

// RecordBadge counts a newly awarded badge.
func RecordBadge(badgeID string) {
	badgesAwarded.WithLabelValues(badgeID).Inc()
}

// ObserveLockWait records how long a caller waited for the progress lock.
func ObserveLockWait(d time.Duration) {
	lockWait.Observe(d.Seconds())
}

// RecordCatalogLookup counts an LRU hit or miss.
func RecordCatalogLookup(hit bool) {
	if hit {
		catalogCache.WithLabelValues("hit").Inc()
		return
	}
	catalogCache.WithLabelValues("miss").Inc()
}

// RecordSchedulerRun records one scheduled task execution.
func RecordSchedulerRun(task string, duration time.Duration, success bool) {
	if task == "" {
		task = "unknown"
	}
	if duration <= 0 {
		duration = time.Millisecond
	}
	schedulerRuns.WithLabelValues(task, strconv.FormatBool(success)).Inc()
	schedulerDuration.WithLabelValues(task).Observe(duration.Seconds())
}
