// Package ingest turns inbound sensor messages into stored readings,
// threshold updates and pump decisions.
package ingest

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/sweeney/hidrosense/internal/mqtt"
	"github.com/sweeney/hidrosense/internal/store"
)

// ErrMalformedPayload marks an inbound message that could not be parsed.
var ErrMalformedPayload = errors.New("malformed payload")

// Kind tags a parsed inbound message.
type Kind int

const (
	KindMalformed Kind = iota
	KindHumidity
	KindThreshold
)

func (k Kind) String() string {
	switch k {
	case KindHumidity:
		return "humidity"
	case KindThreshold:
		return "threshold"
	}
	return "malformed"
}

// Message is an inbound message parsed at the boundary.
// Value is set for KindHumidity and KindThreshold; Err for KindMalformed.
type Message struct {
	Kind  Kind
	Value int
	Err   error
}

// Parse classifies a raw payload by topic. Humidity values are accepted
// whatever their range; thresholds must lie within 0..100.
func Parse(topics mqtt.Topics, topic string, payload []byte) Message {
	switch topic {
	case topics.Humidity:
		v, err := parseInt(payload)
		if err != nil {
			return Message{Kind: KindMalformed, Err: err}
		}
		return Message{Kind: KindHumidity, Value: v}
	case topics.Threshold:
		v, err := parseInt(payload)
		if err != nil {
			return Message{Kind: KindMalformed, Err: err}
		}
		if err := store.ValidatePercent(v); err != nil {
			return Message{Kind: KindMalformed, Err: fmt.Errorf("%w: threshold %d out of range", ErrMalformedPayload, v)}
		}
		return Message{Kind: KindThreshold, Value: v}
	}
	return Message{Kind: KindMalformed, Err: fmt.Errorf("%w: unexpected topic %q", ErrMalformedPayload, topic)}
}

func parseInt(payload []byte) (int, error) {
	s := strings.TrimSpace(string(payload))
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not an integer", ErrMalformedPayload, truncate(s, 32))
	}
	return v, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
