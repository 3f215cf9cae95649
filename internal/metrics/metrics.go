// Package metrics exposes Prometheus collectors for the hreflang crawler.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Page fetch statuses used as label values.
const (
	StatusSuccess  = "success"
	StatusFailure  = "failure"
	StatusCanceled = "canceled"
)

var (
	crawlerPagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hreflang_pages_total",
			Help: "Total number of pages crawled, labeled by site and status.",
		},
		[]string{"site", "status"},
	)

	crawlerRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hreflang_fetch_retries_total",
			Help: "Total number of retried page requests, labeled by site.",
		},
		[]string{"site"},
	)

	crawlerActiveWorkers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hreflang_active_workers",
			Help: "Number of workers currently processing a URL.",
		},
	)

	crawlerCurrentDelaySeconds = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hreflang_rate_delay_seconds",
			Help: "Current adaptive delay applied before each fetch.",
		},
	)

	crawlerPacingSleepSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hreflang_pacing_sleep_seconds",
			Help:    "Histogram of pacing sleeps (adaptive delay plus jitter).",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
		},
	)

	sitemapLocationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hreflang_sitemap_locations_total",
			Help: "Sitemap <loc> entries seen, labeled by result (accepted or skipped).",
		},
		[]string{"result"},
	)

	crawlerBatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hreflang_batches_total",
			Help: "Total number of crawl batches, labeled by status.",
		},
		[]string{"status"},
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
)

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveFetch counts a completed page task.
func ObserveFetch(pageURL string, status string) {
	crawlerPagesTotal.WithLabelValues(SanitizeSite(pageURL), status).Inc()
}

// ObserveRetry counts a retried page request.
func ObserveRetry(pageURL string) {
	crawlerRetriesTotal.WithLabelValues(SanitizeSite(pageURL)).Inc()
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	crawlerActiveWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	crawlerActiveWorkers.Dec()
}

// SetCurrentDelay publishes the adaptive delay, in seconds.
func SetCurrentDelay(seconds float64) {
	crawlerCurrentDelaySeconds.Set(seconds)
}

// ObservePacingDelay records one pacing sleep.
func ObservePacingDelay(d time.Duration) {
	crawlerPacingSleepSeconds.Observe(d.Seconds())
}

// ObserveSitemapLocations counts accepted and skipped sitemap entries.
func ObserveSitemapLocations(accepted, skipped int) {
	if accepted > 0 {
		sitemapLocationsTotal.WithLabelValues("accepted").Add(float64(accepted))
	}
	if skipped > 0 {
		sitemapLocationsTotal.WithLabelValues("skipped").Add(float64(skipped))
	}
}

// ObserveBatch counts a finished batch.
func ObserveBatch(status string) {
	crawlerBatchesTotal.WithLabelValues(status).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
