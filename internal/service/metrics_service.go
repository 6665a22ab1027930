package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation on a private registry.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	rowsRepaired    prometheus.Counter
	rowsDropped     prometheus.Counter
	recordsSkipped  prometheus.Counter
	imagesPruned    prometheus.Counter
	savesTotal      prometheus.Counter
	remindersFired  prometheus.Counter
}

// NewMetricsService registers the collectors.
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

	rowsRepaired := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "timetable_rows_repaired_total",
		Help: "Weekly rows repointed to a surviving lesson during validation",
	})

	rowsDropped := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "timetable_rows_dropped_total",
		Help: "Weekly rows dropped because no lesson could adopt them",
	})

	recordsSkipped := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "timetable_records_skipped_total",
		Help: "Malformed records skipped while decoding stored blobs",
	})

	imagesPruned := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "timetable_images_pruned_total",
		Help: "Image references removed by the integrity sweep",
	})

	savesTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "timetable_saves_total",
		Help: "Completed persists of the timetable blobs",
	})

	remindersFired := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "timetable_reminders_fired_total",
		Help: "Reminder notifications delivered",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, rowsRepaired, rowsDropped,
		recordsSkipped, imagesPruned, savesTotal, remindersFired, goroutines)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		rowsRepaired:    rowsRepaired,
		rowsDropped:     rowsDropped,
		recordsSkipped:  recordsSkipped,
		imagesPruned:    imagesPruned,
		savesTotal:      savesTotal,
		remindersFired:  remindersFired,
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

// RecordRepair counts validation outcomes for dangling weekly rows.
func (m *MetricsService) RecordRepair(repaired, dropped int) {
	if m == nil {
		return
	}
	m.rowsRepaired.Add(float64(repaired))
	m.rowsDropped.Add(float64(dropped))
}

// RecordSkipped counts malformed records dropped during decode.
func (m *MetricsService) RecordSkipped(count int) {
	if m == nil || count == 0 {
		return
	}
	m.recordsSkipped.Add(float64(count))
}

// RecordImagesPruned counts image references removed by the integrity sweep.
func (m *MetricsService) RecordImagesPruned(count int) {
	if m == nil || count == 0 {
		return
	}
	m.imagesPruned.Add(float64(count))
}

// RecordSave counts a completed persist.
func (m *MetricsService) RecordSave() {
	if m == nil {
		return
	}
	m.savesTotal.Inc()
}

// RecordReminderFired counts a delivered reminder.
func (m *MetricsService) RecordReminderFired() {
	if m == nil {
		return
	}
	m.remindersFired.Inc()
}
