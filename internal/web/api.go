package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sweeney/hidrosense/internal/logic"
	"github.com/sweeney/hidrosense/internal/notify"
	"github.com/sweeney/hidrosense/internal/status"
	"github.com/sweeney/hidrosense/internal/store"
)

const (
	// DefaultLimit is the number of readings returned when no limit is given.
	DefaultLimit = 10
	// MaxLimit caps the number of readings returned by a single query.
	MaxLimit = 100
	// recentCount is the fixed size of GET /api/umidade.
	recentCount = 4

	maxBodyBytes = 1 << 16
)

func (s *Server) handleReadings(w http.ResponseWriter, r *http.Request) {
	limit := DefaultLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, MaxLimit)
	}
	s.writeReadings(w, r, limit)
}

func (s *Server) handleRecentReadings(w http.ResponseWriter, r *http.Request) {
	s.writeReadings(w, r, recentCount)
}

func (s *Server) writeReadings(w http.ResponseWriter, r *http.Request, n int) {
	readings, err := s.deps.Store.Latest(r.Context(), n)
	if err != nil {
		log.Printf("web: read readings: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to read readings")
		return
	}

	out := make([]status.ReadingJSON, 0, len(readings))
	for _, rd := range readings {
		out = append(out, status.NewReadingJSON(rd))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetThreshold(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, ThresholdJSON{Threshold: s.deps.Register.Activation()})
}

func (s *Server) handleSetThreshold(w http.ResponseWriter, r *http.Request) {
	var req SetThresholdRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Threshold == nil {
		writeError(w, http.StatusUnprocessableEntity, "limite is required")
		return
	}

	v, err := wholePercent("limite", float64(*req.Threshold))
	var off *int
	if err == nil && req.Deactivation != nil {
		var d int
		d, err = wholePercent("desligamento", float64(*req.Deactivation))
		off = &d
	}
	if err == nil {
		err = s.deps.Register.Update(v, off)
	}
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if off != nil {
		log.Printf("web: thresholds set to activation=%d deactivation=%d", v, *off)
	} else {
		log.Printf("web: activation threshold set to %d", v)
		off = s.deps.Register.Thresholds().Deactivation
	}

	msg := "limite atualizado"
	if s.deps.Thresholds != nil {
		ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
		defer cancel()
		if err := s.deps.Thresholds.PublishThreshold(ctx, v); err != nil {
			log.Printf("web: publish threshold %d: %v", v, err)
			msg = "limite atualizado, falha ao publicar no broker"
		}
	}

	writeJSON(w, http.StatusOK, SetThresholdResponse{
		Status:       "success",
		Threshold:    v,
		Deactivation: off,
		Message:      msg,
	})
}

func (s *Server) handleSendTelegram(w http.ResponseWriter, r *http.Request) {
	if s.deps.Alerter == nil || !s.deps.Alerter.Configured() || s.deps.Notifier == nil {
		writeError(w, http.StatusInternalServerError, notify.ErrConfigurationMissing.Error())
		return
	}

	var req SendAlertRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	a, err := req.alert(time.Now())
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	res := s.deps.Notifier.Notify(r.Context(), a)

	resp := SendAlertResponse{
		Status:   "success",
		Message:  fmt.Sprintf("alerta %s enviado", a.Action),
		Telegram: outcome(res.AlertErr),
		MQTT:     outcome(res.PublishErr),
	}
	code := http.StatusOK
	if res.AlertErr != nil {
		resp.Status = "error"
		resp.Message = res.Err().Error()
		code = http.StatusInternalServerError
	}
	writeJSON(w, code, resp)
}

func (s *Server) handlePumpStatus(w http.ResponseWriter, _ *http.Request) {
	snap := s.deps.Tracker.Snapshot()

	action := string(snap.Pump.LastAction)
	if action == "" {
		action = string(logic.ActionNone)
	}
	resp := PumpStatusJSON{
		Notified:     snap.Pump.Notified,
		LastAction:   action,
		Threshold:    snap.Thresholds.Activation,
		Deactivation: snap.Thresholds.Deactivation,
	}
	if !snap.Pump.ChangedAt.IsZero() {
		resp.ChangedAt = snap.Pump.ChangedAt.UTC().Format(time.RFC3339)
	}
	if snap.Latest != nil {
		rd := status.NewReadingJSON(*snap.Latest)
		resp.Latest = &rd
	}
	writeJSON(w, http.StatusOK, resp)
}

func (req SendAlertRequest) alert(now time.Time) (notify.Alert, error) {
	if req.Humidity == nil || req.Threshold == nil {
		return notify.Alert{}, fmt.Errorf("%w: umidade and limite are required", store.ErrValidation)
	}
	h, th := float64(*req.Humidity), float64(*req.Threshold)
	if th < store.MinPercent || th > store.MaxPercent {
		return notify.Alert{}, fmt.Errorf("%w: limite must be between %d and %d", store.ErrValidation, store.MinPercent, store.MaxPercent)
	}

	action := logic.ActionOn
	switch strings.ToUpper(strings.TrimSpace(req.Action)) {
	case "", "ON":
	case "OFF":
		action = logic.ActionOff
	default:
		return notify.Alert{}, fmt.Errorf("%w: action must be ON or OFF", store.ErrValidation)
	}

	return notify.Alert{
		Action:    action,
		Humidity:  h,
		Threshold: th,
		Timestamp: now,
	}, nil
}

// wholePercent rejects fractional and out-of-range thresholds.
func wholePercent(field string, v float64) (int, error) {
	if v != math.Trunc(v) {
		return 0, fmt.Errorf("%w: %s must be an integer", store.ErrValidation, field)
	}
	if v < store.MinPercent || v > store.MaxPercent {
		return 0, fmt.Errorf("%w: %s must be between %d and %d", store.ErrValidation, field, store.MinPercent, store.MaxPercent)
	}
	return int(v), nil
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "sent"
	case errors.Is(err, notify.ErrConfigurationMissing):
		return "not configured"
	default:
		return "failed: " + err.Error()
	}
}
