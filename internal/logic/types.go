// Package logic contains the pure pump control logic for the humidity loop.
// This package has NO external dependencies (no MQTT, HTTP, storage or time.Sleep).
// Time is always injectable via time.Time parameters.
package logic

import "time"

// Action is the last pump command issued by the evaluator.
type Action string

const (
	ActionNone Action = "NONE"
	ActionOn   Action = "ON"
	ActionOff  Action = "OFF"
)

// Decision is the outcome of a single evaluation.
type Decision string

const (
	NoAction   Decision = "NO_ACTION"
	Activate   Decision = "ACTIVATE"
	Deactivate Decision = "DEACTIVATE"
)

// Action maps a decision to the pump command it implies.
// NoAction maps to ActionNone.
func (d Decision) Action() Action {
	switch d {
	case Activate:
		return ActionOn
	case Deactivate:
		return ActionOff
	}
	return ActionNone
}

// Thresholds holds the humidity limits the loop compares readings against.
type Thresholds struct {
	// Pump turns on when humidity drops below Activation.
	Activation int
	// Pump turns off when humidity reaches Deactivation. Nil disables it.
	Deactivation *int
}

// EffectiveDeactivation returns the deactivation threshold and whether it is
// usable. A deactivation at or below the activation threshold would make
// the pump flip on every reading, so it is treated as unset.
func (t Thresholds) EffectiveDeactivation() (int, bool) {
	if t.Deactivation == nil {
		return 0, false
	}
	if *t.Deactivation <= t.Activation {
		return 0, false
	}
	return *t.Deactivation, true
}

// PumpState tracks whether an ON alert already fired for the current dry episode.
type PumpState struct {
	Notified   bool
	LastAction Action
	ChangedAt  time.Time
}

// DecisionCounts tracks the number of each decision type since startup.
type DecisionCounts struct {
	Evaluations   int
	Activations   int
	Deactivations int
}
