// Package metrics holds the Prometheus collectors shared by both binaries.
// Label values are drawn from small fixed sets to keep cardinality bounded.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Reconciliations counts engine outcomes by source (poll|webhook) and outcome.
	Reconciliations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trackbot_reconciliations_total",
			Help: "Status reconciliations by source and outcome.",
		},
		[]string{"source", "outcome"},
	)

	// Notifications counts dispatcher results (sent|failed|dropped).
	Notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trackbot_notifications_total",
			Help: "Notification deliveries by result.",
		},
		[]string{"result"},
	)

	// ProviderFetches counts adapter calls by provider and result (found|absent).
	ProviderFetches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trackbot_provider_fetches_total",
			Help: "Provider fetches by provider and result.",
		},
		[]string{"provider", "result"},
	)

	PollCycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "trackbot_poll_cycle_duration_seconds",
			Help:    "Duration of one full refresh cycle.",
			Buckets: []float64{.1, .5, 1, 5, 15, 60, 300, 900},
		},
	)

	httpReqs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trackbot_http_requests_total",
			Help: "HTTP requests by method, route and status.",
		},
		[]string{"method", "path", "status"},
	)

	httpLat = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "trackbot_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

func init() {
	prometheus.MustRegister(Reconciliations, Notifications, ProviderFetches, PollCycleDuration, httpReqs, httpLat)
}

// HTTP instruments a chi router. The path label is the matched route pattern.
func HTTP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		path := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if p := rc.RoutePattern(); p != "" {
				path = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		httpReqs.WithLabelValues(r.Method, path, strconv.Itoa(status)).Inc()
		httpLat.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}
