package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Reading(38)
	m.Reading(20)
	m.Malformed("hidrosense/umidade")
	m.Decision("ACTIVATE")
	m.Delivery("mqtt", nil)
	m.Delivery("telegram", errors.New("boom"))
	m.Threshold(45)
	m.Dropped("ON")

	if got := testutil.ToFloat64(m.readings); got != 2 {
		t.Errorf("readings: got %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.humidity); got != 20 {
		t.Errorf("humidity: got %v, want 20", got)
	}
	if got := testutil.ToFloat64(m.malformed.WithLabelValues("hidrosense/umidade")); got != 1 {
		t.Errorf("malformed: got %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.decisions.WithLabelValues("ACTIVATE")); got != 1 {
		t.Errorf("decisions: got %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.deliveries.WithLabelValues("mqtt", "ok")); got != 1 {
		t.Errorf("mqtt ok: got %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.deliveries.WithLabelValues("telegram", "error")); got != 1 {
		t.Errorf("telegram error: got %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.dropped.WithLabelValues("ON")); got != 1 {
		t.Errorf("dropped ON: got %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.threshold); got != 45 {
		t.Errorf("threshold: got %v, want 45", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.Reading(1)
	m.Malformed("t")
	m.Decision("ACTIVATE")
	m.Delivery("mqtt", nil)
	m.Threshold(40)
	m.Dropped("OFF")
}
