package influx

import (
	"context"
	"fmt"
	"time"

	"github.com/ericogr/xbridge/pkg/config"
	"github.com/ericogr/xbridge/pkg/output"
	"github.com/ericogr/xbridge/pkg/telemetry"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

const DefaultMeasurement = "dexcom"

type InfluxOutput struct {
	client      influxdb2.Client
	writer      api.WriteAPIBlocking
	measurement string
	now         func() time.Time
}

func NewInflux(cfg config.InfluxConfig) (output.Output, error) {
	if cfg.URL == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("influx: url and bucket are required")
	}
	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	return &InfluxOutput{
		client:      client,
		writer:      client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		measurement: measurement(cfg),
		now:         time.Now,
	}, nil
}

func measurement(cfg config.InfluxConfig) string {
	if cfg.Measurement != "" {
		return cfg.Measurement
	}
	return DefaultMeasurement
}

func (o *InfluxOutput) Publish(packets []telemetry.Packet) error {
	for _, p := range packets {
		if err := o.writer.WritePoint(context.Background(), o.point(p)); err != nil {
			return fmt.Errorf("influx write: %w", err)
		}
	}
	return nil
}

func (o *InfluxOutput) point(p telemetry.Packet) *write.Point {
	return influxdb2.NewPoint(
		o.measurement,
		map[string]string{"transmitter": telemetry.SourceName(p.TransmitterID)},
		map[string]interface{}{
			"raw":            int64(p.Raw),
			"filtered":       int64(p.Filtered),
			"device_battery": int64(p.DeviceBattery),
			"channel":        int64(p.Channel),
			"rssi":           int64(p.RSSI),
		},
		o.now(),
	)
}

func (o *InfluxOutput) Close() error {
	if o.client != nil {
		o.client.Close()
	}
	return nil
}
