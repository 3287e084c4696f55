package store

import (
	"fmt"
	"sync"

	"github.com/sweeney/hidrosense/internal/logic"
)

// DefaultActivation is the activation threshold used until one is configured.
const DefaultActivation = 40

// Register holds the live pump thresholds. It is safe for concurrent use.
type Register struct {
	mu sync.RWMutex
	th logic.Thresholds
}

// NewRegister creates a register with the given initial thresholds.
func NewRegister(th logic.Thresholds) (*Register, error) {
	if err := validatePair(th.Activation, th.Deactivation); err != nil {
		return nil, err
	}
	if th.Deactivation != nil {
		v := *th.Deactivation
		th.Deactivation = &v
	}
	return &Register{th: th}, nil
}

// validatePair checks both thresholds are percentages and that a set
// deactivation threshold lies strictly above activation.
func validatePair(activation int, deactivation *int) error {
	if err := ValidatePercent(activation); err != nil {
		return err
	}
	if deactivation == nil {
		return nil
	}
	if err := ValidatePercent(*deactivation); err != nil {
		return err
	}
	if activation >= *deactivation {
		return fmt.Errorf("%w: activation %d must be below deactivation %d", ErrValidation, activation, *deactivation)
	}
	return nil
}

// Thresholds returns a copy of the current thresholds.
func (r *Register) Thresholds() logic.Thresholds {
	r.mu.RLock()
	defer r.mu.RUnlock()

	th := r.th
	if th.Deactivation != nil {
		v := *th.Deactivation
		th.Deactivation = &v
	}
	return th
}

// Activation returns the current activation threshold.
func (r *Register) Activation() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.th.Activation
}

// SetActivation replaces the activation threshold, keeping deactivation.
// Values outside 0..100, or at or above the deactivation threshold, return
// ErrValidation and leave the register untouched.
func (r *Register) SetActivation(v int) error {
	return r.Update(v, nil)
}

// Update replaces the activation threshold and, when deactivation is not
// nil, the deactivation threshold too. The pair is validated as a whole
// so a move that would invert the thresholds is rejected.
func (r *Register) Update(activation int, deactivation *int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := r.th.Deactivation
	if deactivation != nil {
		v := *deactivation
		next = &v
	}
	if err := validatePair(activation, next); err != nil {
		return err
	}
	r.th.Activation = activation
	r.th.Deactivation = next
	return nil
}
