package store

import (
	"context"
	"log"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// PointWriter is the subset of the Influx blocking write API the mirror uses.
type PointWriter interface {
	WritePoint(ctx context.Context, point ...*write.Point) error
}

// InfluxMirror wraps a Store and copies every appended reading to InfluxDB.
// Influx is a secondary sink: write failures are logged and never fail Append.
type InfluxMirror struct {
	Store
	writer      PointWriter
	measurement string
	sensor      string
	timeout     time.Duration
}

// NewInfluxMirror decorates s so that appended readings are also written to w.
func NewInfluxMirror(s Store, w PointWriter, measurement, sensor string) *InfluxMirror {
	if measurement == "" {
		measurement = "humidity"
	}
	return &InfluxMirror{
		Store:       s,
		writer:      w,
		measurement: measurement,
		sensor:      sensor,
		timeout:     5 * time.Second,
	}
}

func (m *InfluxMirror) Append(ctx context.Context, value, threshold int) (Reading, error) {
	r, err := m.Store.Append(ctx, value, threshold)
	if err != nil {
		return r, err
	}

	wctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	if err := m.writer.WritePoint(wctx, m.point(r)); err != nil {
		log.Printf("influx: mirror reading %d: %v", r.ID, err)
	}
	return r, nil
}

func (m *InfluxMirror) point(r Reading) *write.Point {
	tags := map[string]string{"sensor": m.sensor}
	fields := map[string]interface{}{
		"value":     r.Value,
		"threshold": r.Threshold,
	}
	return influxdb2.NewPoint(m.measurement, tags, fields, r.CapturedAt)
}
