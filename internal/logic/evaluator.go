package logic

import (
	"sync"
	"time"
)

// Decide maps the latest humidity value, the configured thresholds and the
// current pump state to a decision. It never mutates anything.
//
// Deactivation is checked first and wins over activation in the same
// evaluation. Once a decision has been taken, repeating the same inputs with
// the resulting state yields NoAction.
func Decide(value int, th Thresholds, st PumpState) Decision {
	if off, ok := th.EffectiveDeactivation(); ok && value >= off && st.LastAction != ActionOff {
		return Deactivate
	}
	if value < th.Activation && !st.Notified {
		return Activate
	}
	return NoAction
}

// Apply returns the pump state that follows the given decision.
func Apply(st PumpState, d Decision, now time.Time) PumpState {
	switch d {
	case Activate:
		st.Notified = true
		st.LastAction = ActionOn
		st.ChangedAt = now
	case Deactivate:
		st.Notified = false
		st.LastAction = ActionOff
		st.ChangedAt = now
	}
	return st
}

// Evaluator owns the process-wide pump notification state.
// It is safe for concurrent use.
type Evaluator struct {
	mu     sync.RWMutex
	state  PumpState
	counts DecisionCounts
}

// NewEvaluator creates an evaluator with no pump action recorded yet.
func NewEvaluator(startTime time.Time) *Evaluator {
	return &Evaluator{
		state: PumpState{LastAction: ActionNone, ChangedAt: startTime},
	}
}

// Evaluate decides on the given reading and records the resulting state.
func (e *Evaluator) Evaluate(value int, th Thresholds, now time.Time) Decision {
	e.mu.Lock()
	defer e.mu.Unlock()

	d := Decide(value, th, e.state)
	e.state = Apply(e.state, d, now)

	e.counts.Evaluations++
	switch d {
	case Activate:
		e.counts.Activations++
	case Deactivate:
		e.counts.Deactivations++
	}
	return d
}

// State returns a copy of the current pump notification state.
func (e *Evaluator) State() PumpState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// Counts returns a copy of the decision counters.
func (e *Evaluator) Counts() DecisionCounts {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.counts
}
