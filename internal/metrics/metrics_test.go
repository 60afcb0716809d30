package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegisterTwice(t *testing.T) {
	m := New()
	reg := prometheus.NewRegistry()
	if err := m.Register(reg); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := m.Register(reg); err != nil {
		t.Fatalf("second register: %v", err)
	}
}

func TestCounters(t *testing.T) {
	m := New()
	m.AuthEvent("login", "success")
	m.AuthEvent("login", "success")
	m.AuthEvent("login", "failure")
	m.ExerciseLog("duplicate")
	m.ScreenTime("start")

	if got := testutil.ToFloat64(m.authEvents.WithLabelValues("login", "success")); got != 2 {
		t.Errorf("login success = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.exerciseLogs.WithLabelValues("duplicate")); got != 1 {
		t.Errorf("duplicate logs = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.screenTime.WithLabelValues("start")); got != 1 {
		t.Errorf("screen time start = %v, want 1", got)
	}
}

func TestObserveRequest(t *testing.T) {
	m := New()
	m.ObserveRequest("GET", "200", 15*time.Millisecond)

	count := testutil.CollectAndCount(m.requestDuration, "merelax_http_request_duration_seconds")
	if count != 1 {
		t.Errorf("series = %d, want 1", count)
	}
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	m.AuthEvent("login", "success")
	m.ExerciseLog("logged")
	m.ScreenTime("end")
	m.ObserveRequest("GET", "200", time.Second)
}
