// Package metrics exposes Prometheus collectors for the crawler service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	crawlPagesTotal            *prometheus.CounterVec
	crawlItemsTotal            *prometheus.CounterVec
	crawlRunsTotal             *prometheus.CounterVec
	dispatchMessagesTotal      *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	activeCrawls               prometheus.Gauge

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		crawlPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawl_pages_total",
				Help: "Total number of list pages fetched, labeled by source and status.",
			},
			[]string{"source", "status"},
		)

		crawlItemsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawl_items_total",
				Help: "Total number of items processed, labeled by source and result.",
			},
			[]string{"source", "result"},
		)

		crawlRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawl_runs_total",
				Help: "Total number of crawl runs, labeled by source, pet type and status.",
			},
			[]string{"source", "pet_type", "status"},
		)

		dispatchMessagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dispatch_messages_total",
				Help: "Total number of queue messages dispatched, labeled by topic and status.",
			},
			[]string{"topic", "status"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)

		activeCrawls = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "crawl_active_runs",
				Help: "Number of crawl runs currently executing.",
			},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObservePage increments the list-page counter for a source.
func ObservePage(source, status string) {
	crawlPagesTotal.WithLabelValues(source, status).Inc()
}

// ObserveItem increments the item counter. Result is one of
// "new", "updated", "skipped" or "error".
func ObserveItem(source, result string) {
	crawlItemsTotal.WithLabelValues(source, result).Inc()
}

// ObserveRun increments the run counter for the given status.
func ObserveRun(source, petType, status string) {
	crawlRunsTotal.WithLabelValues(source, petType, status).Inc()
}

// ObserveDispatch increments the dispatch counter for a topic.
func ObserveDispatch(topic, status string) {
	dispatchMessagesTotal.WithLabelValues(topic, status).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// IncActiveCrawls increments the active runs gauge.
func IncActiveCrawls() {
	activeCrawls.Inc()
}

// DecActiveCrawls decrements the active runs gauge.
func DecActiveCrawls() {
	activeCrawls.Dec()
}
