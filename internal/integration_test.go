package internal

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/sweeney/hidrosense/internal/ingest"
	"github.com/sweeney/hidrosense/internal/logic"
	"github.com/sweeney/hidrosense/internal/metrics"
	"github.com/sweeney/hidrosense/internal/mqtt"
	"github.com/sweeney/hidrosense/internal/notify"
	"github.com/sweeney/hidrosense/internal/status"
	"github.com/sweeney/hidrosense/internal/store"
	"github.com/sweeney/hidrosense/internal/web"
)

// pipeline is the daemon wired from fakes, the same way cmd/hidrosense wires
// the real components.
type pipeline struct {
	client     *mqtt.FakeClient
	alerter    *notify.FakeAlerter
	store      store.Store
	register   *store.Register
	evaluator  *logic.Evaluator
	dispatcher *notify.Dispatcher
	tracker    *status.Tracker
	notifier   *notify.Notifier
	registry   *prometheus.Registry
	metrics    *metrics.Metrics
}

func newPipeline(t *testing.T, s store.Store, th logic.Thresholds) *pipeline {
	t.Helper()
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	reg, err := store.NewRegister(th)
	if err != nil {
		t.Fatalf("NewRegister: %v", err)
	}
	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	p := &pipeline{
		client:    mqtt.NewFakeClient(),
		alerter:   notify.NewFakeAlerter(),
		store:     s,
		register:  reg,
		evaluator: logic.NewEvaluator(start),
		registry:  registry,
		metrics:   m,
	}
	p.client.Connected = true
	p.notifier = notify.New(p.client, p.alerter, time.Second, m)
	p.tracker = status.NewTracker(start, status.Config{Broker: "tcp://broker:1883", StoreKind: "memory"}, status.Sources{
		Evaluator: p.evaluator,
		Register:  reg,
		Store:     s,
		MQTT:      p.client,
	})

	p.dispatcher = notify.NewDispatcher(p.notifier, 16)
	p.dispatcher.OnDone(p.tracker.RecordDelivery)
	p.dispatcher.Start(context.Background())
	t.Cleanup(p.dispatcher.Close)

	l := ingest.NewListener(mqtt.DefaultTopics(""), s, reg, p.evaluator, p.dispatcher, m)
	if err := l.Subscribe(p.client); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	return p
}

func (p *pipeline) humidity(t *testing.T, values ...string) {
	t.Helper()
	topic := mqtt.DefaultTopics("").Humidity
	for _, v := range values {
		if !p.client.Deliver(topic, []byte(v)) {
			t.Fatalf("no handler for %s", topic)
		}
	}
}

// TestIntegrationDryEpisode drives readings through the broker fake and
// checks the pump commands and operator alerts that come out the other side.
func TestIntegrationDryEpisode(t *testing.T) {
	p := newPipeline(t, store.NewMemoryStore(), logic.Thresholds{Activation: 40})

	p.humidity(t, "55", "38", "20", "35")
	p.dispatcher.Close()

	cmds := p.client.CommandsSnapshot()
	if len(cmds) != 1 {
		t.Fatalf("expected 1 pump command for a single dry episode, got %d", len(cmds))
	}
	if cmds[0].Action != logic.ActionOn || cmds[0].Humidity != 38 || cmds[0].Threshold != 40 {
		t.Errorf("unexpected command: %+v", cmds[0])
	}

	var payload mqtt.CommandPayload
	if err := json.Unmarshal(p.client.CommandPayloads[0], &payload); err != nil {
		t.Fatalf("invalid command payload: %v", err)
	}
	if payload.Action != "ON" || payload.Humidity != 38 || payload.Threshold != 40 {
		t.Errorf("unexpected payload: %+v", payload)
	}

	alerts := p.alerter.Sent()
	if len(alerts) != 1 || alerts[0].Action != logic.ActionOn {
		t.Errorf("expected a single ON alert, got %+v", alerts)
	}

	readings, _ := p.store.Latest(context.Background(), 10)
	if len(readings) != 4 {
		t.Errorf("expected 4 readings stored, got %d", len(readings))
	}

	snap := p.tracker.Snapshot()
	if snap.LastDelivery == nil || !snap.LastDelivery.PublishOK || !snap.LastDelivery.AlertOK {
		t.Errorf("last delivery: got %+v", snap.LastDelivery)
	}
	if snap.Counts.Evaluations != 4 || snap.Counts.Activations != 1 {
		t.Errorf("counts: got %+v", snap.Counts)
	}

	n, err := testutil.GatherAndCount(p.registry, "hidrosense_deliveries_total")
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if n != 2 {
		t.Errorf("delivery series: got %d, want 2", n)
	}
}

func TestIntegrationActivateThenDeactivate(t *testing.T) {
	off := 70
	p := newPipeline(t, store.NewMemoryStore(), logic.Thresholds{Activation: 40, Deactivation: &off})

	p.humidity(t, "30", "50", "75", "80", "35")
	p.dispatcher.Close()

	cmds := p.client.CommandsSnapshot()
	want := []logic.Action{logic.ActionOn, logic.ActionOff, logic.ActionOn}
	if len(cmds) != len(want) {
		t.Fatalf("expected %d commands, got %d: %+v", len(want), len(cmds), cmds)
	}
	for i, a := range want {
		if cmds[i].Action != a {
			t.Errorf("command %d: got %s, want %s", i, cmds[i].Action, a)
		}
	}
	if len(p.alerter.Sent()) != 3 {
		t.Errorf("expected 3 alerts, got %d", len(p.alerter.Sent()))
	}
}

// TestIntegrationTelegramDownPumpStillCommanded checks that one sink failing
// never suppresses the other.
func TestIntegrationTelegramDownPumpStillCommanded(t *testing.T) {
	p := newPipeline(t, store.NewMemoryStore(), logic.Thresholds{Activation: 40})
	p.alerter.SendError = errors.New("telegram unreachable")

	p.humidity(t, "10")
	p.dispatcher.Close()

	if len(p.client.CommandsSnapshot()) != 1 {
		t.Error("pump command should be published while Telegram is down")
	}
	snap := p.tracker.Snapshot()
	if snap.LastDelivery == nil || snap.LastDelivery.AlertOK || !snap.LastDelivery.PublishOK {
		t.Errorf("last delivery: got %+v", snap.LastDelivery)
	}

	// the decision is not re-attempted on the next dry reading
	if !snap.Pump.Notified {
		t.Error("pump should stay notified after a partial delivery")
	}
}

func TestIntegrationBrokerDownOperatorStillAlerted(t *testing.T) {
	p := newPipeline(t, store.NewMemoryStore(), logic.Thresholds{Activation: 40})
	p.client.PublishError = mqtt.ErrNotConnected

	p.humidity(t, "10")
	p.dispatcher.Close()

	if len(p.alerter.Sent()) != 1 {
		t.Error("operator should be alerted while the broker is down")
	}
	expected := `
# HELP hidrosense_deliveries_total Outbound deliveries by sink and result.
# TYPE hidrosense_deliveries_total counter
hidrosense_deliveries_total{result="error",sink="mqtt"} 1
hidrosense_deliveries_total{result="ok",sink="telegram"} 1
`
	if err := testutil.GatherAndCompare(p.registry, strings.NewReader(expected), "hidrosense_deliveries_total"); err != nil {
		t.Error(err)
	}
}

func TestIntegrationMalformedInputIgnored(t *testing.T) {
	p := newPipeline(t, store.NewMemoryStore(), logic.Thresholds{Activation: 40})

	p.humidity(t, "wet", "", "12.5", "50")
	p.client.Deliver(mqtt.DefaultTopics("").Threshold, []byte("150"))
	p.dispatcher.Close()

	readings, _ := p.store.Latest(context.Background(), 10)
	if len(readings) != 1 || readings[0].Value != 50 {
		t.Errorf("only the valid reading should be stored, got %+v", readings)
	}
	if p.register.Activation() != 40 {
		t.Errorf("activation: got %d, want 40", p.register.Activation())
	}
	if len(p.client.CommandsSnapshot()) != 0 {
		t.Error("no commands expected")
	}
}

// TestIntegrationDashboardThresholdRoundTrip sets the threshold over HTTP,
// echoes the published value back through the broker fake as the sensor
// would see it, and checks the next reading is judged against it.
func TestIntegrationDashboardThresholdRoundTrip(t *testing.T) {
	db, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "hidrosense.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	p := newPipeline(t, db, logic.Thresholds{Activation: 40})

	srv := web.New(":0", web.Deps{
		Tracker:    p.tracker,
		Store:      p.store,
		Register:   p.register,
		Thresholds: p.client,
		Notifier:   p.notifier,
		Alerter:    p.alerter,
	})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	p.humidity(t, "48")

	resp, err := http.Post(ts.URL+"/api/set-limite", "application/json", strings.NewReader(`{"limite": 50}`))
	if err != nil {
		t.Fatalf("POST set-limite: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Fatalf("set-limite status: got %d", resp.StatusCode)
	}
	if len(p.client.Thresholds) != 1 || p.client.Thresholds[0] != 50 {
		t.Fatalf("published thresholds: got %v", p.client.Thresholds)
	}

	// broker echo
	p.client.Deliver(mqtt.DefaultTopics("").Threshold, []byte("50"))

	p.humidity(t, "49")
	p.dispatcher.Close()

	var got []status.ReadingJSON
	resp, err = http.Get(ts.URL + "/api/umidades")
	if err != nil {
		t.Fatalf("GET umidades: %v", err)
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 readings, got %d", len(got))
	}
	if got[0].Value != 49 || got[0].Threshold != 50 {
		t.Errorf("latest reading: got %+v", got[0])
	}
	// the echo attached the new threshold to the reading that was latest at the time
	if got[1].Value != 48 || got[1].Threshold != 50 {
		t.Errorf("older reading: got %+v", got[1])
	}

	cmds := p.client.CommandsSnapshot()
	if len(cmds) != 1 || cmds[0].Humidity != 49 || cmds[0].Threshold != 50 {
		t.Errorf("expected ON at 49 against threshold 50, got %+v", cmds)
	}
}
