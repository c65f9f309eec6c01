package service

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the HTTP layer
// and the derivative pipeline.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	stageDuration   *prometheus.HistogramVec
	stageFailures   *prometheus.CounterVec
	uploadsTotal    prometheus.Counter
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	stageDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pipeline_stage_duration_seconds",
		Help:    "Duration of derivative pipeline stages",
		Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
	}, []string{"stage"})

	stageFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_stage_failures_total",
		Help: "Total derivative pipeline stage failures",
	}, []string{"stage"})

	uploadsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "revision_uploads_total",
		Help: "Total accepted revision uploads",
	})

	registry.MustRegister(requestDuration, requestTotal, stageDuration, stageFailures, uploadsTotal)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		stageDuration:   stageDuration,
		stageFailures:   stageFailures,
		uploadsTotal:    uploadsTotal,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// ObservePipelineStage records a stage's duration and outcome.
func (m *MetricsService) ObservePipelineStage(stage string, duration time.Duration, success bool) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(duration.Seconds())
	if !success {
		m.stageFailures.WithLabelValues(stage).Inc()
	}
}

// RecordUpload counts an accepted revision upload.
func (m *MetricsService) RecordUpload() {
	if m == nil {
		return
	}
	m.uploadsTotal.Inc()
}
