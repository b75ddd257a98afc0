package console

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/ericogr/xbridge/pkg/output"
	"github.com/ericogr/xbridge/pkg/telemetry"
)

type ConsoleOutput struct {
	w   io.Writer
	now func() time.Time
}

func NewConsole() output.Output { return &ConsoleOutput{w: os.Stdout, now: time.Now} }

func (c *ConsoleOutput) Publish(packets []telemetry.Packet) error {
	for _, p := range packets {
		fmt.Fprintf(c.w, "%s txid=%s channel=%d raw=%d filtered=%d battery=%d rssi=%d\n",
			c.now().Format(time.RFC3339), telemetry.SourceName(p.TransmitterID), p.Channel, p.Raw, p.Filtered, p.DeviceBattery, p.RSSI)
	}
	return nil
}

func (c *ConsoleOutput) Close() error { return nil }
