package ingest

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/sweeney/hidrosense/internal/logic"
	"github.com/sweeney/hidrosense/internal/metrics"
	"github.com/sweeney/hidrosense/internal/mqtt"
	"github.com/sweeney/hidrosense/internal/notify"
	"github.com/sweeney/hidrosense/internal/store"
)

var topics = mqtt.DefaultTopics("")

type fakeEnqueuer struct {
	alerts []notify.Alert
	full   bool
}

func (f *fakeEnqueuer) Enqueue(a notify.Alert) bool {
	if f.full {
		return false
	}
	f.alerts = append(f.alerts, a)
	return true
}

func newTestListener(t *testing.T, th logic.Thresholds) (*Listener, *store.MemoryStore, *store.Register, *fakeEnqueuer) {
	t.Helper()
	s := store.NewMemoryStore()
	reg, err := store.NewRegister(th)
	if err != nil {
		t.Fatalf("NewRegister: %v", err)
	}
	q := &fakeEnqueuer{}
	l := NewListener(topics, s, reg, logic.NewEvaluator(time.Now()), q, nil)
	return l, s, reg, q
}

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		topic   string
		payload string
		kind    Kind
		value   int
	}{
		{"humidity", topics.Humidity, "42", KindHumidity, 42},
		{"humidity whitespace", topics.Humidity, " 42\n", KindHumidity, 42},
		{"humidity out of range kept", topics.Humidity, "140", KindHumidity, 140},
		{"humidity negative kept", topics.Humidity, "-3", KindHumidity, -3},
		{"humidity float", topics.Humidity, "42.5", KindMalformed, 0},
		{"humidity text", topics.Humidity, "wet", KindMalformed, 0},
		{"humidity empty", topics.Humidity, "", KindMalformed, 0},
		{"threshold", topics.Threshold, "55", KindThreshold, 55},
		{"threshold zero", topics.Threshold, "0", KindThreshold, 0},
		{"threshold max", topics.Threshold, "100", KindThreshold, 100},
		{"threshold too high", topics.Threshold, "150", KindMalformed, 0},
		{"threshold negative", topics.Threshold, "-1", KindMalformed, 0},
		{"unknown topic", "hidrosense/other", "1", KindMalformed, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := Parse(topics, tt.topic, []byte(tt.payload))
			if msg.Kind != tt.kind {
				t.Fatalf("kind: got %s, want %s", msg.Kind, tt.kind)
			}
			if msg.Value != tt.value {
				t.Errorf("value: got %d, want %d", msg.Value, tt.value)
			}
			if tt.kind == KindMalformed && !errors.Is(msg.Err, ErrMalformedPayload) {
				t.Errorf("expected ErrMalformedPayload, got %v", msg.Err)
			}
		})
	}
}

func TestHumidityStoresReadingWithThreshold(t *testing.T) {
	l, s, _, _ := newTestListener(t, logic.Thresholds{Activation: 40})

	if _, err := l.Process(context.Background(), topics.Humidity, []byte("55")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, _ := s.Latest(context.Background(), 10)
	if len(got) != 1 {
		t.Fatalf("expected 1 reading, got %d", len(got))
	}
	if got[0].Value != 55 || got[0].Threshold != 40 {
		t.Errorf("unexpected reading: %+v", got[0])
	}
}

func TestScenarioDryEpisode(t *testing.T) {
	l, s, reg, q := newTestListener(t, logic.Thresholds{Activation: 40})
	ctx := context.Background()

	steps := []struct {
		payload string
		want    logic.Decision
	}{
		{"55", logic.NoAction},
		{"38", logic.Activate},
		{"20", logic.NoAction},
	}
	for _, st := range steps {
		d, err := l.Process(ctx, topics.Humidity, []byte(st.payload))
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", st.payload, err)
		}
		if d != st.want {
			t.Errorf("%s: got %s, want %s", st.payload, d, st.want)
		}
	}

	if len(q.alerts) != 1 {
		t.Fatalf("expected exactly 1 alert, got %d", len(q.alerts))
	}
	a := q.alerts[0]
	if a.Action != logic.ActionOn || a.Humidity != 38 || a.Threshold != 40 {
		t.Errorf("unexpected alert: %+v", a)
	}

	// deactivation configured, wet reading arrives
	off := 70
	if err := reg.Update(reg.Activation(), &off); err != nil {
		t.Fatal(err)
	}
	d, err := l.Process(ctx, topics.Humidity, []byte("75"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d != logic.Deactivate {
		t.Errorf("75: got %s, want DEACTIVATE", d)
	}
	if len(q.alerts) != 2 || q.alerts[1].Action != logic.ActionOff {
		t.Errorf("expected OFF alert, got %+v", q.alerts)
	}

	got, _ := s.Latest(ctx, 10)
	if len(got) != 4 {
		t.Errorf("expected 4 readings stored, got %d", len(got))
	}
}

func TestMalformedHumidityDiscarded(t *testing.T) {
	l, s, _, q := newTestListener(t, logic.Thresholds{Activation: 40})

	_, err := l.Process(context.Background(), topics.Humidity, []byte("NaN"))
	if !errors.Is(err, ErrMalformedPayload) {
		t.Fatalf("expected ErrMalformedPayload, got %v", err)
	}

	got, _ := s.Latest(context.Background(), 10)
	if len(got) != 0 {
		t.Errorf("malformed message must not be stored, got %d readings", len(got))
	}
	if len(q.alerts) != 0 {
		t.Error("malformed message must not trigger alerts")
	}

	// Handle swallows the error and keeps going
	l.Handle(topics.Humidity, []byte("garbage"))
	l.Handle(topics.Humidity, []byte("30"))
	if len(q.alerts) != 1 {
		t.Errorf("expected processing to continue after malformed input, got %d alerts", len(q.alerts))
	}
}

func TestThresholdUpdate(t *testing.T) {
	l, s, reg, _ := newTestListener(t, logic.Thresholds{Activation: 40})
	ctx := context.Background()

	// before any reading: register still updated
	if _, err := l.Process(ctx, topics.Threshold, []byte("45")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reg.Activation() != 45 {
		t.Errorf("activation: got %d, want 45", reg.Activation())
	}

	l.Process(ctx, topics.Humidity, []byte("60"))
	l.Process(ctx, topics.Humidity, []byte("61"))
	if _, err := l.Process(ctx, topics.Threshold, []byte("50")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, _ := s.Latest(ctx, 2)
	if got[0].Threshold != 50 {
		t.Errorf("latest reading threshold: got %d, want 50", got[0].Threshold)
	}
	if got[1].Threshold != 45 {
		t.Errorf("older reading threshold: got %d, want 45", got[1].Threshold)
	}

	// new threshold applies to subsequent evaluations only
	d, _ := l.Process(ctx, topics.Humidity, []byte("48"))
	if d != logic.Activate {
		t.Errorf("48 with threshold 50: got %s, want ACTIVATE", d)
	}
}

func TestThresholdOutOfRangeRejected(t *testing.T) {
	l, _, reg, _ := newTestListener(t, logic.Thresholds{Activation: 40})

	_, err := l.Process(context.Background(), topics.Threshold, []byte("150"))
	if !errors.Is(err, ErrMalformedPayload) {
		t.Fatalf("expected ErrMalformedPayload, got %v", err)
	}
	if reg.Activation() != 40 {
		t.Errorf("activation must not change, got %d", reg.Activation())
	}
}

func TestThresholdAtOrAboveDeactivationRejected(t *testing.T) {
	off := 70
	l, s, reg, q := newTestListener(t, logic.Thresholds{Activation: 40, Deactivation: &off})
	ctx := context.Background()

	for _, payload := range []string{"70", "80"} {
		_, err := l.Process(ctx, topics.Threshold, []byte(payload))
		if !errors.Is(err, ErrMalformedPayload) || !errors.Is(err, store.ErrValidation) {
			t.Errorf("%s: expected ErrMalformedPayload wrapping ErrValidation, got %v", payload, err)
		}
	}
	if reg.Activation() != 40 {
		t.Fatalf("activation must not change, got %d", reg.Activation())
	}

	// the OFF path stays live
	l.Process(ctx, topics.Humidity, []byte("30"))
	d, err := l.Process(ctx, topics.Humidity, []byte("75"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d != logic.Deactivate {
		t.Errorf("75: got %s, want DEACTIVATE", d)
	}
	if len(q.alerts) != 2 {
		t.Errorf("expected ON and OFF alerts, got %+v", q.alerts)
	}
	got, _ := s.Latest(ctx, 1)
	if got[0].Threshold != 40 {
		t.Errorf("rejected threshold attached to reading: %+v", got[0])
	}
}

func TestDroppedAlertReported(t *testing.T) {
	s := store.NewMemoryStore()
	reg, err := store.NewRegister(logic.Thresholds{Activation: 40})
	if err != nil {
		t.Fatal(err)
	}
	registry := prometheus.NewRegistry()
	q := &fakeEnqueuer{full: true}
	l := NewListener(topics, s, reg, logic.NewEvaluator(time.Now()), q, metrics.New(registry))

	d, err := l.Process(context.Background(), topics.Humidity, []byte("10"))
	if d != logic.Activate {
		t.Errorf("got %s, want ACTIVATE", d)
	}
	if !errors.Is(err, notify.ErrDeliveryFailed) {
		t.Errorf("expected ErrDeliveryFailed, got %v", err)
	}

	expected := `
# HELP hidrosense_alerts_dropped_total Pump alerts discarded because the delivery queue was full.
# TYPE hidrosense_alerts_dropped_total counter
hidrosense_alerts_dropped_total{action="ON"} 1
`
	if err := testutil.GatherAndCompare(registry, strings.NewReader(expected), "hidrosense_alerts_dropped_total"); err != nil {
		t.Error(err)
	}
}

func TestSubscribeRegistersBothTopics(t *testing.T) {
	l, s, reg, _ := newTestListener(t, logic.Thresholds{Activation: 40})
	client := mqtt.NewFakeClient()

	if err := l.Subscribe(client); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if !client.Deliver(topics.Humidity, []byte("33")) {
		t.Error("humidity topic not subscribed")
	}
	if !client.Deliver(topics.Threshold, []byte("35")) {
		t.Error("threshold topic not subscribed")
	}

	got, _ := s.Latest(context.Background(), 1)
	if len(got) != 1 || got[0].Value != 33 || got[0].Threshold != 35 {
		t.Errorf("unexpected latest reading: %+v", got)
	}
	if reg.Activation() != 35 {
		t.Errorf("activation: got %d, want 35", reg.Activation())
	}
}
