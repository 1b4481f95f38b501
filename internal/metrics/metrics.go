package metrics

import (
    "net/http"
    "strconv"
    "sync"
    "time"

    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
    httpReqs = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Namespace: "chopdok",
            Name:      "http_requests_total",
            Help:      "Total HTTP requests by route, method and status code",
        },
        []string{"route", "method", "code"},
    )

    httpLatency = prometheus.NewHistogramVec(
        prometheus.HistogramOpts{
            Namespace: "chopdok",
            Name:      "http_request_duration_seconds",
            Help:      "Duration of HTTP requests by route",
            Buckets:   prometheus.DefBuckets,
        },
        []string{"route"},
    )

    partsMaterialized = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Namespace: "chopdok",
            Name:      "parts_materialized_total",
            Help:      "Parts materialized by result (ok, empty, error)",
        },
        []string{"result"},
    )

    materializeLatency = prometheus.NewHistogram(
        prometheus.HistogramOpts{
            Namespace: "chopdok",
            Name:      "materialize_duration_seconds",
            Help:      "Duration of materializing all parts of one document",
            Buckets:   prometheus.DefBuckets,
        },
    )

    archiveBytes = prometheus.NewHistogram(
        prometheus.HistogramOpts{
            Namespace: "chopdok",
            Name:      "archive_bytes",
            Help:      "Size of built zip archives",
            Buckets:   prometheus.ExponentialBuckets(16<<10, 4, 8),
        },
    )

    summarizeReqs = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Namespace: "chopdok",
            Name:      "summarize_requests_total",
            Help:      "Summarization requests by backend and result",
        },
        []string{"backend", "result"},
    )

    summarizeLatency = prometheus.NewHistogramVec(
        prometheus.HistogramOpts{
            Namespace: "chopdok",
            Name:      "summarize_duration_seconds",
            Help:      "Duration of summarization calls by backend",
            Buckets:   []float64{.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
        },
        []string{"backend"},
    )

    breakerEvents = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Namespace: "chopdok",
            Name:      "breaker_events_total",
            Help:      "Circuit breaker state transitions by backend and new state",
        },
        []string{"backend", "state"},
    )

    activeSessions = prometheus.NewGauge(
        prometheus.GaugeOpts{
            Namespace: "chopdok",
            Name:      "split_sessions_active",
            Help:      "Split sessions currently held in memory",
        },
    )

    registerOnce sync.Once
)

// Init registers collectors. Safe to call more than once.
func Init() {
    registerOnce.Do(func() {
        prometheus.MustRegister(httpReqs, httpLatency, partsMaterialized, materializeLatency,
            archiveBytes, summarizeReqs, summarizeLatency, breakerEvents, activeSessions)
    })
}

// Handler returns the http.Handler for /metrics
func Handler() http.Handler { return promhttp.Handler() }

func ObserveHTTP(route, method string, code int, dur time.Duration) {
    httpReqs.WithLabelValues(route, method, strconv.Itoa(code)).Inc()
    httpLatency.WithLabelValues(route).Observe(dur.Seconds())
}

func IncPart(result string)                 { partsMaterialized.WithLabelValues(result).Inc() }
func ObserveMaterialize(dur time.Duration)  { materializeLatency.Observe(dur.Seconds()) }
func ObserveArchive(size int)               { archiveBytes.Observe(float64(size)) }
func SetActiveSessions(n int)               { activeSessions.Set(float64(n)) }
func BreakerChanged(backend, state string)  { breakerEvents.WithLabelValues(backend, state).Inc() }

func ObserveSummarize(backend, result string, dur time.Duration) {
    summarizeReqs.WithLabelValues(backend, result).Inc()
    summarizeLatency.WithLabelValues(backend).Observe(dur.Seconds())
}
