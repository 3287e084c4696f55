// Package mqtt provides MQTT publishing and subscribing with abstraction for testing.
package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/sweeney/hidrosense/internal/logic"
)

var (
	// ErrNotConnected is returned when the broker connection is down.
	ErrNotConnected = errors.New("mqtt: not connected")
	// ErrTimeout is returned when the broker does not acknowledge in time.
	ErrTimeout = errors.New("mqtt: timeout")
)

// DefaultPrefix is the topic prefix the sensor firmware uses.
const DefaultPrefix = "hidrosense"

// Topics names the channels the daemon uses.
type Topics struct {
	Humidity  string // inbound humidity readings
	Threshold string // inbound (and outbound) activation threshold
	Pump      string // outbound pump commands
	System    string // outbound daemon lifecycle events
}

// DefaultTopics derives the topic set from a prefix.
func DefaultTopics(prefix string) Topics {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return Topics{
		Humidity:  prefix + "/umidade",
		Threshold: prefix + "/limite",
		Pump:      prefix + "/bomba",
		System:    prefix + "/system",
	}
}

// Publisher publishes pump commands and daemon events to MQTT.
type Publisher interface {
	// PublishCommand sends a pump command. Fire-and-forget at QoS 0;
	// returns an error if the broker could not take it before ctx expires.
	PublishCommand(ctx context.Context, cmd Command) error

	// PublishThreshold announces a new activation threshold to the sensor.
	PublishThreshold(ctx context.Context, threshold int) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// Handler receives the raw payload of a message on a subscribed topic.
type Handler func(topic string, payload []byte)

// Subscriber delivers inbound messages to handlers.
type Subscriber interface {
	// Subscribe registers h for topic. Subscriptions survive reconnects.
	Subscribe(topic string, h Handler) error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// Command is a pump command triggered by a control decision or an operator alert.
type Command struct {
	Action    logic.Action
	Humidity  float64
	Threshold float64
}

// CommandPayload is the wire format of a pump command.
type CommandPayload struct {
	Action    string  `json:"action"`
	Humidity  float64 `json:"umidade"`
	Threshold float64 `json:"limite"`
}

// FormatCommand creates the JSON payload for a pump command.
func FormatCommand(cmd Command) ([]byte, error) {
	return json.Marshal(CommandPayload{
		Action:    string(cmd.Action),
		Humidity:  cmd.Humidity,
		Threshold: cmd.Threshold,
	})
}

// FormatThreshold creates the plain-integer payload the sensor expects.
func FormatThreshold(threshold int) []byte {
	return []byte(strconv.Itoa(threshold))
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT", "RECONNECTED"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}
