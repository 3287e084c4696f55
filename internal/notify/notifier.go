// Package notify delivers pump decisions to the pump (over MQTT) and to the
// operator (over Telegram). The two sinks are independent: one failing never
// prevents the other from being attempted.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/sweeney/hidrosense/internal/logic"
	"github.com/sweeney/hidrosense/internal/metrics"
	"github.com/sweeney/hidrosense/internal/mqtt"
)

var (
	// ErrConfigurationMissing is returned when an alert destination is not configured.
	ErrConfigurationMissing = errors.New("notify: configuration missing")
	// ErrDeliveryFailed wraps every failed delivery.
	ErrDeliveryFailed = errors.New("notify: delivery failed")
)

// DefaultTimeout bounds each outbound delivery.
const DefaultTimeout = 5 * time.Second

// Alert is a pump decision to deliver, with the reading that caused it.
type Alert struct {
	Action    logic.Action
	Humidity  float64
	Threshold float64
	Timestamp time.Time
}

// CommandPublisher sends pump commands to the broker.
type CommandPublisher interface {
	PublishCommand(ctx context.Context, cmd mqtt.Command) error
}

// Alerter sends a human-readable alert to the operator.
type Alerter interface {
	Send(ctx context.Context, a Alert) error
	// Configured reports whether a destination is set.
	Configured() bool
}

// Result reports which of the two deliveries succeeded.
type Result struct {
	PublishErr error
	AlertErr   error
}

// OK reports whether both deliveries succeeded.
func (r Result) OK() bool {
	return r.PublishErr == nil && r.AlertErr == nil
}

// Partial reports whether exactly one delivery succeeded.
func (r Result) Partial() bool {
	return (r.PublishErr == nil) != (r.AlertErr == nil)
}

// Err returns nil when both deliveries succeeded, otherwise an error
// matching ErrDeliveryFailed and each underlying cause.
func (r Result) Err() error {
	if r.OK() {
		return nil
	}
	var errs []error
	if r.PublishErr != nil {
		errs = append(errs, fmt.Errorf("pump command: %w", r.PublishErr))
	}
	if r.AlertErr != nil {
		errs = append(errs, fmt.Errorf("alert: %w", r.AlertErr))
	}
	return fmt.Errorf("%w: %w", ErrDeliveryFailed, errors.Join(errs...))
}

// Notifier fans an alert out to the pump-command channel and the operator.
type Notifier struct {
	publisher CommandPublisher
	alerter   Alerter
	timeout   time.Duration
	metrics   *metrics.Metrics
}

// New creates a Notifier. A timeout <= 0 uses DefaultTimeout.
func New(publisher CommandPublisher, alerter Alerter, timeout time.Duration, m *metrics.Metrics) *Notifier {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Notifier{
		publisher: publisher,
		alerter:   alerter,
		timeout:   timeout,
		metrics:   m,
	}
}

// Notify publishes the pump command and sends the operator alert concurrently.
// Each side gets its own timeout; failures are logged and returned in the
// result, never retried.
func (n *Notifier) Notify(ctx context.Context, a Alert) Result {
	var (
		res Result
		wg  sync.WaitGroup
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		res.PublishErr = n.publish(ctx, a)
	}()
	go func() {
		defer wg.Done()
		res.AlertErr = n.alert(ctx, a)
	}()
	wg.Wait()

	return res
}

func (n *Notifier) publish(ctx context.Context, a Alert) error {
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	err := n.publisher.PublishCommand(ctx, mqtt.Command{
		Action:    a.Action,
		Humidity:  a.Humidity,
		Threshold: a.Threshold,
	})
	n.metrics.Delivery("mqtt", err)
	if err != nil {
		log.Printf("notify: pump command %s failed: %v", a.Action, err)
		return err
	}
	log.Printf("notify: pump command %s published (umidade=%v limite=%v)", a.Action, a.Humidity, a.Threshold)
	return nil
}

func (n *Notifier) alert(ctx context.Context, a Alert) error {
	if n.alerter == nil || !n.alerter.Configured() {
		n.metrics.Delivery("telegram", ErrConfigurationMissing)
		log.Printf("notify: alert %s skipped: %v", a.Action, ErrConfigurationMissing)
		return ErrConfigurationMissing
	}

	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	err := n.alerter.Send(ctx, a)
	n.metrics.Delivery("telegram", err)
	if err != nil {
		log.Printf("notify: alert %s failed: %v", a.Action, err)
		return err
	}
	log.Printf("notify: alert %s sent", a.Action)
	return nil
}
