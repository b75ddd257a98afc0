package influx

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ericogr/xbridge/pkg/config"
	"github.com/ericogr/xbridge/pkg/telemetry"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

type fakeWriter struct {
	points []*write.Point
	err    error
}

func (f *fakeWriter) WriteRecord(ctx context.Context, line ...string) error { return nil }

func (f *fakeWriter) WritePoint(ctx context.Context, point ...*write.Point) error {
	if f.err != nil {
		return f.err
	}
	f.points = append(f.points, point...)
	return nil
}

func (f *fakeWriter) EnableBatching() {}

func (f *fakeWriter) Flush(ctx context.Context) error { return nil }

func TestPublishPoints(t *testing.T) {
	w := &fakeWriter{}
	ts := time.Date(2025, 9, 19, 14, 41, 54, 0, time.UTC)
	o := &InfluxOutput{writer: w, measurement: "cgm", now: func() time.Time { return ts }}
	err := o.Publish([]telemetry.Packet{{Raw: 20, Filtered: 40, TransmitterID: 1}, {Raw: 21, Filtered: 42, TransmitterID: 1}})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(w.points) != 2 {
		t.Fatalf("points: got %d want 2", len(w.points))
	}
	p := w.points[0]
	if p.Name() != "cgm" || !p.Time().Equal(ts) {
		t.Fatalf("point: %s at %v", p.Name(), p.Time())
	}
	tags := p.TagList()
	if len(tags) != 1 || tags[0].Key != "transmitter" || tags[0].Value != "00001" {
		t.Fatalf("tags: %+v", tags)
	}

	w.err = errors.New("unavailable")
	if err := o.Publish([]telemetry.Packet{{}}); err == nil {
		t.Fatalf("expected write error")
	}
}

func TestNewInfluxValidates(t *testing.T) {
	if _, err := NewInflux(config.InfluxConfig{URL: "http://localhost:8086"}); err == nil {
		t.Fatalf("expected error without bucket")
	}
	if got := measurement(config.InfluxConfig{}); got != DefaultMeasurement {
		t.Fatalf("measurement: got %q", got)
	}
}
