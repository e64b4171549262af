// Package metrics exposes Prometheus collectors for archive runs.
package metrics

import (
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	guidelinesTotal        *prometheus.CounterVec
	unitsTotal             *prometheus.CounterVec
	archiveDurationSeconds *prometheus.HistogramVec
	activeWorkers          prometheus.Gauge
	rateLimitDelaysSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init registers the collectors. It is safe to call multiple times.
func Init() {
	once.Do(func() {
		guidelinesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "archiver_guidelines_total",
				Help: "Guidelines seen by the pipeline, labeled by stage (fetched, eligible, skipped, duplicate, dispatched).",
			},
			[]string{"stage"},
		)

		unitsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "archiver_units_total",
				Help: "Completed units of work, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		archiveDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "archiver_archive_duration_seconds",
				Help:    "Time spent capturing one guideline document, labeled by strategy.",
				Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
			},
			[]string{"strategy"},
		)

		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "archiver_active_workers",
				Help: "Number of units currently executing.",
			},
		)

		rateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "archiver_rate_limit_delays_seconds",
				Help:    "Histogram of rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"host"},
		)
	})
}

// SanitizeHost extracts a lowercase hostname, or "unknown".
func SanitizeHost(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler exposing the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveGuidelines adds n guidelines to the given pipeline stage.
func ObserveGuidelines(stage string, n int) {
	Init()
	if n > 0 {
		guidelinesTotal.WithLabelValues(stage).Add(float64(n))
	}
}

// ObserveUnit counts one finished unit of work.
func ObserveUnit(outcome string) {
	Init()
	unitsTotal.WithLabelValues(outcome).Inc()
}

// ObserveArchive records how long a capture took and which strategy it ended in.
func ObserveArchive(strategy string, duration time.Duration) {
	Init()
	archiveDurationSeconds.WithLabelValues(strategy).Observe(duration.Seconds())
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	Init()
	activeWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	Init()
	activeWorkers.Dec()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(host string, duration time.Duration) {
	Init()
	rateLimitDelaysSeconds.WithLabelValues(host).Observe(duration.Seconds())
}
