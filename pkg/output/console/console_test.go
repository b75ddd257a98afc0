package console

import (
	"bytes"
	"testing"
	"time"

	"github.com/ericogr/xbridge/pkg/telemetry"
)

func TestConsolePublish(t *testing.T) {
	var buf bytes.Buffer
	ts := time.Date(2025, 9, 19, 14, 41, 54, 0, time.UTC)
	c := &ConsoleOutput{w: &buf, now: func() time.Time { return ts }}
	packets := []telemetry.Packet{{TransmitterID: 18<<20 | 10<<15 | 11<<10 | 12<<5 | 13, Channel: 1, Raw: 123, Filtered: 246, DeviceBattery: 215, RSSI: -80}}
	if err := c.Publish(packets); err != nil {
		t.Fatal(err)
	}
	want := "2025-09-19T14:41:54Z txid=JABCD channel=1 raw=123 filtered=246 battery=215 rssi=-80\n"
	if buf.String() != want {
		t.Fatalf("console output mismatch:\n got: %q\nwant: %q", buf.String(), want)
	}
}
