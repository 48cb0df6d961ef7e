package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Auth metrics
	AuthFailuresTotal  *prometheus.CounterVec
	TokensIssuedTotal  *prometheus.CounterVec
	TokensRevokedTotal prometheus.Counter

	// Entitlement metrics
	QuotaDecisionsTotal *prometheus.CounterVec
	WebhookEventsTotal  *prometheus.CounterVec
	RepairsTotal        *prometheus.CounterVec
	RepairDriftBytes    prometheus.Histogram

	// Media metrics
	UploadsCompletedTotal prometheus.Counter
	UploadedBytesTotal    prometheus.Counter
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mediahub_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mediahub_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		AuthFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mediahub_auth_failures_total",
				Help: "Credential resolution failures by reason",
			},
			[]string{"reason"},
		),
		TokensIssuedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mediahub_tokens_issued_total",
				Help: "Invite tokens issued by role",
			},
			[]string{"role"},
		),
		TokensRevokedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "mediahub_tokens_revoked_total",
				Help: "Invite tokens revoked",
			},
		),
		QuotaDecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mediahub_quota_decisions_total",
				Help: "Upload admission decisions by result",
			},
			[]string{"result"},
		),
		WebhookEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mediahub_webhook_events_total",
				Help: "Billing webhook events by type and outcome",
			},
			[]string{"type", "outcome"},
		),
		RepairsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mediahub_storage_repairs_total",
				Help: "Storage usage repair runs by result",
			},
			[]string{"result"},
		),
		RepairDriftBytes: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "mediahub_storage_repair_drift_bytes",
				Help:    "Absolute difference between stored and recomputed used bytes",
				Buckets: prometheus.ExponentialBuckets(1024, 16, 7),
			},
		),
		UploadsCompletedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "mediahub_uploads_completed_total",
				Help: "Uploads confirmed and recorded",
			},
		),
		UploadedBytesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "mediahub_uploaded_bytes_total",
				Help: "Bytes confirmed by completed uploads",
			},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.AuthFailuresTotal,
		m.TokensIssuedTotal,
		m.TokensRevokedTotal,
		m.QuotaDecisionsTotal,
		m.WebhookEventsTotal,
		m.RepairsTotal,
		m.RepairDriftBytes,
		m.UploadsCompletedTotal,
		m.UploadedBytesTotal,
	)

	return m
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics.
// Requests are labelled by mux route template so IDs do not explode cardinality.
func HTTPMetricsMiddleware(metrics *Metrics) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			route := "unmatched"
			if current := mux.CurrentRoute(r); current != nil {
				if tpl, err := current.GetPathTemplate(); err == nil {
					route = tpl
				}
			}

			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rw.statusCode)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}

// MetricsHandler serves the registry in the Prometheus exposition format
func MetricsHandler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
