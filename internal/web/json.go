package web

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/sweeney/hidrosense/internal/status"
)

// ThresholdJSON is the body of GET /api/limite.
type ThresholdJSON struct {
	Threshold int `json:"limite"`
}

// SetThresholdRequest is the body of POST /api/set-limite. Desligamento is
// optional and, when present, replaces the deactivation threshold together
// with limite.
type SetThresholdRequest struct {
	Threshold    *flexNumber `json:"limite"`
	Deactivation *flexNumber `json:"desligamento"`
}

// SetThresholdResponse is returned by POST /api/set-limite.
type SetThresholdResponse struct {
	Status       string `json:"status"`
	Threshold    int    `json:"limite"`
	Deactivation *int   `json:"desligamento,omitempty"`
	Message      string `json:"message"`
}

// SendAlertRequest is the body of POST /api/send-telegram.
type SendAlertRequest struct {
	Humidity  *flexNumber `json:"umidade"`
	Threshold *flexNumber `json:"limite"`
	Action    string      `json:"action"`
}

// SendAlertResponse is returned by POST /api/send-telegram.
type SendAlertResponse struct {
	Status   string `json:"status"`
	Message  string `json:"message"`
	Telegram string `json:"telegram,omitempty"`
	MQTT     string `json:"mqtt,omitempty"`
}

// PumpStatusJSON is the body of GET /api/status.
type PumpStatusJSON struct {
	Notified     bool                `json:"notified"`
	LastAction   string              `json:"last_action"`
	ChangedAt    string              `json:"changed_at,omitempty"`
	Threshold    int                 `json:"limite"`
	Deactivation *int                `json:"desligamento,omitempty"`
	Latest       *status.ReadingJSON `json:"latest,omitempty"`
}

// HealthJSON is the body of GET /healthz.
type HealthJSON struct {
	Status        string `json:"status"`
	MQTTConnected bool   `json:"mqtt_connected"`
}

// ReadyJSON is the body of GET /readyz.
type ReadyJSON struct {
	Ready bool `json:"ready"`
}

// ErrorJSON is the body of every error response.
type ErrorJSON struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// flexNumber accepts a JSON number or a numeric string, as posted by
// HTML forms.
type flexNumber float64

func (n *flexNumber) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("not a number: %q", s)
		}
		*n = flexNumber(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*n = flexNumber(v)
	return nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("web: encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, ErrorJSON{Status: "error", Message: msg})
}
