// Package status provides a thread-safe status view of the hidrosense daemon.
// It is read by HTTP handlers and by the MQTT lifecycle events.
package status

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/sweeney/hidrosense/internal/logic"
	"github.com/sweeney/hidrosense/internal/mqtt"
	"github.com/sweeney/hidrosense/internal/notify"
	"github.com/sweeney/hidrosense/internal/store"
)

// Config contains daemon configuration for display.
type Config struct {
	Broker             string
	TopicPrefix        string
	HTTPAddr           string
	HeartbeatMs        int64
	StoreKind          string // "memory" or "sqlite"
	TelegramConfigured bool
}

// Sources are the live components a snapshot is read from.
type Sources struct {
	Evaluator *logic.Evaluator
	Register  *store.Register
	Store     store.Store
	MQTT      mqtt.ConnectionStatus // nil reports disconnected
}

// Delivery is the outcome of the most recent alert delivery.
type Delivery struct {
	Action    logic.Action
	At        time.Time
	PublishOK bool
	AlertOK   bool
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Pump          logic.PumpState
	Thresholds    logic.Thresholds
	Counts        logic.DecisionCounts
	Latest        *store.Reading
	LastDelivery  *Delivery
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker assembles snapshots from the live components and keeps the
// little state that no component owns, behind an RWMutex.
type Tracker struct {
	src       Sources
	startTime time.Time
	cfg       Config
	now       func() time.Time

	mu           sync.RWMutex
	lastDelivery *Delivery
}

// NewTracker creates a Tracker with the given start time, config and sources.
func NewTracker(startTime time.Time, cfg Config, src Sources) *Tracker {
	return &Tracker{
		src:       src,
		startTime: startTime,
		cfg:       cfg,
		now:       time.Now,
	}
}

// RecordDelivery stores the outcome of a delivery attempt.
// Its signature matches notify.Dispatcher.OnDone.
func (t *Tracker) RecordDelivery(a notify.Alert, res notify.Result) {
	d := &Delivery{
		Action:    a.Action,
		At:        t.now(),
		PublishOK: res.PublishErr == nil,
		AlertOK:   res.AlertErr == nil,
	}
	t.mu.Lock()
	t.lastDelivery = d
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	s := Snapshot{
		StartTime: t.startTime,
		Config:    t.cfg,
	}

	if t.src.Evaluator != nil {
		s.Pump = t.src.Evaluator.State()
		s.Counts = t.src.Evaluator.Counts()
	}
	if t.src.Register != nil {
		s.Thresholds = t.src.Register.Thresholds()
	}
	if t.src.Store != nil {
		latest, err := t.src.Store.Latest(context.Background(), 1)
		if err != nil {
			log.Printf("status: read latest reading: %v", err)
		} else if len(latest) == 1 {
			s.Latest = &latest[0]
		}
	}
	if t.src.MQTT != nil {
		s.MQTTConnected = t.src.MQTT.IsConnected()
	}

	t.mu.RLock()
	if t.lastDelivery != nil {
		d := *t.lastDelivery
		s.LastDelivery = &d
	}
	t.mu.RUnlock()

	s.Now = t.now()
	return s
}
