package status

import (
	"encoding/json"
	"time"

	"github.com/sweeney/hidrosense/internal/store"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string        `json:"event,omitempty"`
	Reason        string        `json:"reason,omitempty"`
	Pump          PumpJSON      `json:"pump"`
	Thresholds    ThresholdJSON `json:"thresholds"`
	Latest        *ReadingJSON  `json:"latest,omitempty"`
	LastDelivery  *DeliveryJSON `json:"last_delivery,omitempty"`
	UptimeSeconds int64         `json:"uptime_seconds"`
	StartTime     string        `json:"start_time"`
	Timestamp     string        `json:"timestamp"`
	MQTT          MQTTStatus    `json:"mqtt"`
	Counts        CountsJSON    `json:"decision_counts"`
	Config        ConfigJSON    `json:"config"`
}

// PumpJSON is the JSON representation of the pump notification state.
type PumpJSON struct {
	Notified   bool   `json:"notified"`
	LastAction string `json:"last_action"`
	ChangedAt  string `json:"changed_at"`
}

// ThresholdJSON is the JSON representation of the live thresholds.
type ThresholdJSON struct {
	Activation   int  `json:"limite"`
	Deactivation *int `json:"desligamento,omitempty"`
}

// ReadingJSON is the JSON representation of a stored reading.
type ReadingJSON struct {
	ID        int64   `json:"id"`
	Value     float64 `json:"valor"`
	Threshold int     `json:"limite"`
	CreatedAt string  `json:"created_at"`
}

// DeliveryJSON reports the most recent alert delivery.
type DeliveryJSON struct {
	Action    string `json:"action"`
	At        string `json:"at"`
	PublishOK bool   `json:"mqtt_ok"`
	AlertOK   bool   `json:"telegram_ok"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of decision counts.
type CountsJSON struct {
	Evaluations   int `json:"evaluations"`
	Activations   int `json:"activations"`
	Deactivations int `json:"deactivations"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	Broker             string `json:"broker"`
	TopicPrefix        string `json:"topic_prefix"`
	HTTPAddr           string `json:"http_addr"`
	HeartbeatMs        int64  `json:"heartbeat_ms"`
	Store              string `json:"store"`
	TelegramConfigured bool   `json:"telegram_configured"`
}

func buildInner(snap Snapshot) StatusInner {
	action := string(snap.Pump.LastAction)
	if action == "" {
		action = "NONE"
	}

	inner := StatusInner{
		Pump: PumpJSON{
			Notified:   snap.Pump.Notified,
			LastAction: action,
			ChangedAt:  formatTime(snap.Pump.ChangedAt),
		},
		Thresholds: ThresholdJSON{
			Activation:   snap.Thresholds.Activation,
			Deactivation: snap.Thresholds.Deactivation,
		},
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     formatTime(snap.StartTime),
		Timestamp:     formatTime(snap.Now),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			Evaluations:   snap.Counts.Evaluations,
			Activations:   snap.Counts.Activations,
			Deactivations: snap.Counts.Deactivations,
		},
		Config: ConfigJSON{
			Broker:             snap.Config.Broker,
			TopicPrefix:        snap.Config.TopicPrefix,
			HTTPAddr:           snap.Config.HTTPAddr,
			HeartbeatMs:        snap.Config.HeartbeatMs,
			Store:              snap.Config.StoreKind,
			TelegramConfigured: snap.Config.TelegramConfigured,
		},
	}

	if snap.Latest != nil {
		r := NewReadingJSON(*snap.Latest)
		inner.Latest = &r
	}
	if snap.LastDelivery != nil {
		inner.LastDelivery = &DeliveryJSON{
			Action:    string(snap.LastDelivery.Action),
			At:        formatTime(snap.LastDelivery.At),
			PublishOK: snap.LastDelivery.PublishOK,
			AlertOK:   snap.LastDelivery.AlertOK,
		}
	}
	return inner
}

// NewReadingJSON converts a stored reading to its API representation.
func NewReadingJSON(r store.Reading) ReadingJSON {
	return ReadingJSON{
		ID:        r.ID,
		Value:     float64(r.Value),
		Threshold: r.Threshold,
		CreatedAt: formatTime(r.CapturedAt),
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
