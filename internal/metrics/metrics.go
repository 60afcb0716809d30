// Package metrics holds the Prometheus collectors exported at /metrics.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is safe to use as a nil pointer; every method is then a no-op.
type Metrics struct {
	authEvents      *prometheus.CounterVec
	exerciseLogs    *prometheus.CounterVec
	screenTime      *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

func New() *Metrics {
	return &Metrics{
		authEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "merelax_auth_events_total",
			Help: "Credential operations by event and outcome",
		}, []string{"event", "outcome"}),
		exerciseLogs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "merelax_exercise_logs_total",
			Help: "Exercise log attempts by outcome",
		}, []string{"outcome"}),
		screenTime: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "merelax_screentime_sessions_total",
			Help: "Screen time session transitions",
		}, []string{"action"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "merelax_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "status"}),
	}
}

// Register adds the collectors to reg (or the default registerer if nil).
func (m *Metrics) Register(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, c := range []prometheus.Collector{m.authEvents, m.exerciseLogs, m.screenTime, m.requestDuration} {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				return err
			}
		}
	}
	return nil
}

func (m *Metrics) AuthEvent(event, outcome string) {
	if m == nil {
		return
	}
	m.authEvents.WithLabelValues(event, outcome).Inc()
}

func (m *Metrics) ExerciseLog(outcome string) {
	if m == nil {
		return
	}
	m.exerciseLogs.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ScreenTime(action string) {
	if m == nil {
		return
	}
	m.screenTime.WithLabelValues(action).Inc()
}

func (m *Metrics) ObserveRequest(method, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.requestDuration.WithLabelValues(method, status).Observe(d.Seconds())
}
