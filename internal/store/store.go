// Package store holds humidity readings and the threshold register.
//
// Readings are append-only; the single exception is AttachThreshold, which
// records a threshold that arrived after the latest reading was stored.
package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrValidation is returned when a threshold falls outside 0..100 or
	// activation would not stay below deactivation.
	ErrValidation = errors.New("validation failed")

	errFailedToInsert = errors.New("failed to insert")
	errFailedToQuery  = errors.New("failed to query")
	errFailedToScan   = errors.New("failed to scan")
	errFailedToUpdate = errors.New("failed to update")
	errFailedToInit   = errors.New("failed to initialize schema")
	errFailedOpenDB   = errors.New("failed to open database")
)

const (
	// MinPercent and MaxPercent bound a valid threshold.
	MinPercent = 0
	MaxPercent = 100
)

// Reading is one humidity sample with the threshold in effect when it was captured.
type Reading struct {
	ID         int64
	Value      int
	Threshold  int
	CapturedAt time.Time
}

// Store is a durable log of readings.
type Store interface {
	// Append stores a new reading and returns it with ID and CapturedAt set.
	Append(ctx context.Context, value, threshold int) (Reading, error)

	// Latest returns at most n readings, most recent first.
	Latest(ctx context.Context, n int) ([]Reading, error)

	// AttachThreshold overwrites the threshold of the most recent reading.
	// It is a no-op on an empty store.
	AttachThreshold(ctx context.Context, threshold int) error

	// Close releases any underlying resources.
	Close() error
}

// ValidatePercent reports ErrValidation for values outside 0..100.
func ValidatePercent(v int) error {
	if v < MinPercent || v > MaxPercent {
		return ErrValidation
	}
	return nil
}
