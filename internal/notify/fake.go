package notify

import (
	"context"
	"sync"
)

// FakeAlerter records alerts for test assertions.
type FakeAlerter struct {
	mu sync.Mutex

	// Alerts contains all alerts that were sent.
	Alerts []Alert

	// SendError, if set, will be returned by Send.
	SendError error

	// Unconfigured makes Configured report false.
	Unconfigured bool
}

// NewFakeAlerter creates a configured FakeAlerter.
func NewFakeAlerter() *FakeAlerter {
	return &FakeAlerter{}
}

// Send records the alert.
func (f *FakeAlerter) Send(_ context.Context, a Alert) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.Unconfigured {
		return ErrConfigurationMissing
	}
	if f.SendError != nil {
		return f.SendError
	}
	f.Alerts = append(f.Alerts, a)
	return nil
}

// Configured reports whether the fake is "configured".
func (f *FakeAlerter) Configured() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.Unconfigured
}

// Sent returns a copy of the recorded alerts.
func (f *FakeAlerter) Sent() []Alert {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Alert(nil), f.Alerts...)
}
