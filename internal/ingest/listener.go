package ingest

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/sweeney/hidrosense/internal/logic"
	"github.com/sweeney/hidrosense/internal/metrics"
	"github.com/sweeney/hidrosense/internal/mqtt"
	"github.com/sweeney/hidrosense/internal/notify"
	"github.com/sweeney/hidrosense/internal/store"
)

// Enqueuer accepts alerts for asynchronous delivery.
type Enqueuer interface {
	Enqueue(a notify.Alert) bool
}

// Listener handles inbound humidity and threshold messages.
type Listener struct {
	topics    mqtt.Topics
	store     store.Store
	register  *store.Register
	evaluator *logic.Evaluator
	alerts    Enqueuer
	metrics   *metrics.Metrics
	now       func() time.Time

	// serializes store writes and evaluation so they stay in arrival order
	mu sync.Mutex
}

// NewListener wires a listener to its collaborators.
func NewListener(topics mqtt.Topics, s store.Store, r *store.Register, e *logic.Evaluator, alerts Enqueuer, m *metrics.Metrics) *Listener {
	return &Listener{
		topics:    topics,
		store:     s,
		register:  r,
		evaluator: e,
		alerts:    alerts,
		metrics:   m,
		now:       time.Now,
	}
}

// Subscribe registers the listener on the humidity and threshold topics.
func (l *Listener) Subscribe(sub mqtt.Subscriber) error {
	for _, topic := range []string{l.topics.Humidity, l.topics.Threshold} {
		if err := sub.Subscribe(topic, l.Handle); err != nil {
			return fmt.Errorf("subscribe %s: %w", topic, err)
		}
	}
	return nil
}

// Handle processes one inbound message. Failures are logged, never fatal.
// It matches the mqtt.Handler signature.
func (l *Listener) Handle(topic string, payload []byte) {
	if _, err := l.Process(context.Background(), topic, payload); err != nil {
		log.Printf("ingest: %s: %v", topic, err)
	}
}

// Process handles one inbound message and returns the control decision it
// led to (NoAction for threshold updates).
func (l *Listener) Process(ctx context.Context, topic string, payload []byte) (logic.Decision, error) {
	msg := Parse(l.topics, topic, payload)

	l.mu.Lock()
	defer l.mu.Unlock()

	switch msg.Kind {
	case KindHumidity:
		return l.humidity(ctx, msg.Value)
	case KindThreshold:
		return logic.NoAction, l.threshold(ctx, msg.Value)
	}
	l.metrics.Malformed(topic)
	return logic.NoAction, msg.Err
}

func (l *Listener) humidity(ctx context.Context, value int) (logic.Decision, error) {
	th := l.register.Thresholds()

	r, err := l.store.Append(ctx, value, th.Activation)
	if err != nil {
		return logic.NoAction, fmt.Errorf("store reading: %w", err)
	}
	l.metrics.Reading(value)
	log.Printf("ingest: reading %d: umidade=%d limite=%d", r.ID, r.Value, r.Threshold)

	d := l.evaluator.Evaluate(value, th, l.now())
	if d == logic.NoAction {
		return d, nil
	}

	l.metrics.Decision(string(d))
	log.Printf("ingest: decision %s (umidade=%d limite=%d)", d, value, th.Activation)

	a := notify.Alert{
		Action:    d.Action(),
		Humidity:  float64(value),
		Threshold: float64(th.Activation),
		Timestamp: r.CapturedAt,
	}
	if l.alerts != nil && !l.alerts.Enqueue(a) {
		// the evaluator has already moved on, so this episode gets no
		// further alert until the opposite decision fires
		l.metrics.Dropped(string(a.Action))
		log.Printf("ingest: ALERT DROPPED: %s for umidade=%d, queue full", a.Action, value)
		return d, fmt.Errorf("%w: %s alert dropped", notify.ErrDeliveryFailed, a.Action)
	}
	return d, nil
}

func (l *Listener) threshold(ctx context.Context, value int) error {
	if err := l.register.SetActivation(value); err != nil {
		l.metrics.Malformed(l.topics.Threshold)
		return fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	l.metrics.Threshold(value)
	log.Printf("ingest: activation threshold set to %d", value)

	if err := l.store.AttachThreshold(ctx, value); err != nil {
		return fmt.Errorf("attach threshold: %w", err)
	}
	return nil
}
