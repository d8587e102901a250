package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ClientMetrics tracks report API traffic and orchestration outcomes for one
// CLI process.
type ClientMetrics struct {
	registry *prometheus.Registry
	service  string

	apiRequestsTotal   *prometheus.CounterVec
	apiRequestDuration *prometheus.HistogramVec
	uploadsTotal       *prometheus.CounterVec
	uploadBytesTotal   prometheus.Counter
	uploadDuration     *prometheus.HistogramVec
	pollsTotal         *prometheus.CounterVec
	pollDuration       prometheus.Histogram
	retriesTotal       *prometheus.CounterVec
}

func NewClientMetrics(service string) *ClientMetrics {
	registry := prometheus.NewRegistry()
	constLabels := prometheus.Labels{"service": service}

	apiRequestsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   "reports",
			Subsystem:   "api",
			Name:        "requests_total",
			Help:        "Total report API requests by operation and status code.",
			ConstLabels: constLabels,
		},
		[]string{"operation", "status"},
	)
	apiRequestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   "reports",
			Subsystem:   "api",
			Name:        "request_duration_seconds",
			Help:        "Report API request duration in seconds.",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: constLabels,
		},
		[]string{"operation"},
	)
	uploadsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   "reports",
			Subsystem:   "upload",
			Name:        "total",
			Help:        "Upload sequences by final status.",
			ConstLabels: constLabels,
		},
		[]string{"status"},
	)
	uploadBytesTotal := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace:   "reports",
			Subsystem:   "upload",
			Name:        "bytes_total",
			Help:        "Bytes of successfully uploaded source documents.",
			ConstLabels: constLabels,
		},
	)
	uploadDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   "reports",
			Subsystem:   "upload",
			Name:        "duration_seconds",
			Help:        "Upload sequence duration in seconds by status.",
			Buckets:     []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
			ConstLabels: constLabels,
		},
		[]string{"status"},
	)
	pollsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   "reports",
			Subsystem:   "poll",
			Name:        "total",
			Help:        "Snapshot fetches by status.",
			ConstLabels: constLabels,
		},
		[]string{"status"},
	)
	pollDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace:   "reports",
			Subsystem:   "poll",
			Name:        "duration_seconds",
			Help:        "Snapshot fetch duration in seconds.",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: constLabels,
		},
	)
	retriesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   "reports",
			Subsystem:   "pipeline",
			Name:        "retries_total",
			Help:        "Pipeline retry requests by stage and status.",
			ConstLabels: constLabels,
		},
		[]string{"stage", "status"},
	)

	registry.MustRegister(
		apiRequestsTotal,
		apiRequestDuration,
		uploadsTotal,
		uploadBytesTotal,
		uploadDuration,
		pollsTotal,
		pollDuration,
		retriesTotal,
	)

	return &ClientMetrics{
		registry:           registry,
		service:            service,
		apiRequestsTotal:   apiRequestsTotal,
		apiRequestDuration: apiRequestDuration,
		uploadsTotal:       uploadsTotal,
		uploadBytesTotal:   uploadBytesTotal,
		uploadDuration:     uploadDuration,
		pollsTotal:         pollsTotal,
		pollDuration:       pollDuration,
		retriesTotal:       retriesTotal,
	}
}

func (m *ClientMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveAPIRequest records one HTTP exchange. statusCode 0 means the request
// never got a response.
func (m *ClientMetrics) ObserveAPIRequest(operation string, statusCode int, duration time.Duration) {
	status := "error"
	if statusCode > 0 {
		status = strconv.Itoa(statusCode)
	}
	m.apiRequestsTotal.WithLabelValues(operation, status).Inc()
	m.apiRequestDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

func (m *ClientMetrics) ObserveUpload(status string, bytes int64, duration time.Duration) {
	status = orUnknown(status)
	m.uploadsTotal.WithLabelValues(status).Inc()
	m.uploadDuration.WithLabelValues(status).Observe(duration.Seconds())
	if status == "success" && bytes > 0 {
		m.uploadBytesTotal.Add(float64(bytes))
	}
}

func (m *ClientMetrics) ObservePoll(status string, duration time.Duration) {
	m.pollsTotal.WithLabelValues(orUnknown(status)).Inc()
	m.pollDuration.Observe(duration.Seconds())
}

func (m *ClientMetrics) ObserveRetry(stage, status string) {
	m.retriesTotal.WithLabelValues(orUnknown(stage), orUnknown(status)).Inc()
}

func orUnknown(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
