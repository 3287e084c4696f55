package mqtt

import (
	"context"
	"sync"
)

// FakeClient records published messages and lets tests deliver inbound ones.
// It is safe for concurrent use; the notifier publishes from its own goroutines.
type FakeClient struct {
	mu sync.Mutex

	// Commands contains all pump commands that were published.
	Commands []Command

	// CommandPayloads contains the JSON payloads for pump commands.
	CommandPayloads [][]byte

	// Thresholds contains all thresholds that were published.
	Thresholds []int

	// SystemEvents contains all system events that were published.
	SystemEvents []SystemEvent

	// SystemPayloads contains the JSON payloads for system events.
	SystemPayloads [][]byte

	// PublishError, if set, will be returned by PublishCommand and PublishThreshold.
	PublishError error

	// PublishSystemError, if set, will be returned by PublishSystem.
	PublishSystemError error

	// Block, if set, makes PublishCommand wait for ctx to expire.
	Block bool

	// Closed tracks if Close was called.
	Closed bool

	// Connected controls the return value of IsConnected.
	Connected bool

	handlers map[string]Handler
}

// NewFakeClient creates a FakeClient for testing.
func NewFakeClient() *FakeClient {
	return &FakeClient{handlers: make(map[string]Handler)}
}

// PublishCommand records the pump command.
func (f *FakeClient) PublishCommand(ctx context.Context, cmd Command) error {
	f.mu.Lock()
	block := f.Block
	err := f.PublishError
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return ErrTimeout
	}
	if err != nil {
		return err
	}

	payload, err := FormatCommand(cmd)
	if err != nil {
		return err
	}

	f.mu.Lock()
	f.Commands = append(f.Commands, cmd)
	f.CommandPayloads = append(f.CommandPayloads, payload)
	f.mu.Unlock()
	return nil
}

// PublishThreshold records the threshold.
func (f *FakeClient) PublishThreshold(_ context.Context, threshold int) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.PublishError != nil {
		return f.PublishError
	}
	f.Thresholds = append(f.Thresholds, threshold)
	return nil
}

// PublishSystem records the system event.
func (f *FakeClient) PublishSystem(event SystemEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.PublishSystemError != nil {
		return f.PublishSystemError
	}

	payload, err := FormatSystemPayload(event)
	if err != nil {
		return err
	}
	f.SystemEvents = append(f.SystemEvents, event)
	f.SystemPayloads = append(f.SystemPayloads, payload)
	return nil
}

// Subscribe records the handler for Deliver.
func (f *FakeClient) Subscribe(topic string, h Handler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[topic] = h
	return nil
}

// Deliver simulates an inbound message. It reports whether a handler was registered.
func (f *FakeClient) Deliver(topic string, payload []byte) bool {
	f.mu.Lock()
	h, ok := f.handlers[topic]
	f.mu.Unlock()

	if !ok {
		return false
	}
	h(topic, payload)
	return true
}

// CommandsSnapshot returns a copy of the recorded commands.
func (f *FakeClient) CommandsSnapshot() []Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Command(nil), f.Commands...)
}

// Close marks the client as closed.
func (f *FakeClient) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

// IsConnected reports whether the fake client is "connected".
func (f *FakeClient) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Connected
}

// Reset clears recorded messages and injected errors. Subscriptions are kept.
func (f *FakeClient) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Commands = nil
	f.CommandPayloads = nil
	f.Thresholds = nil
	f.SystemEvents = nil
	f.SystemPayloads = nil
	f.Closed = false
	f.PublishError = nil
	f.PublishSystemError = nil
	f.Block = false
	f.Connected = false
}
