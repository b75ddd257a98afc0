package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/ericogr/xbridge/pkg/telemetry"
)

// Console is the debug console. Keys arrive through Feed or Pump and are
// handled by the main loop; replies go to Out.
type Console struct {
	Out io.Writer
	in  chan byte
}

func NewConsole(out io.Writer) *Console {
	return &Console{Out: out, in: make(chan byte, 64)}
}

// Feed queues keys. Keys that do not fit are dropped.
func (c *Console) Feed(b []byte) {
	for _, k := range b {
		select {
		case c.in <- k:
		default:
		}
	}
}

// Pump copies r into the console until ctx is done or r ends.
func (c *Console) Pump(ctx context.Context, r io.Reader) error {
	buf := make([]byte, 16)
	for ctx.Err() == nil {
		n, err := r.Read(buf)
		if n > 0 {
			c.Feed(buf[:n])
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				if n == 0 {
					time.Sleep(50 * time.Millisecond)
				}
				continue
			}
			return fmt.Errorf("console read: %w", err)
		}
	}
	return ctx.Err()
}

// Available is the number of keys waiting. A nil Console has none.
func (c *Console) Available() int {
	if c == nil {
		return 0
	}
	return len(c.in)
}

// Poll drains the waiting keys.
func (c *Console) Poll() []byte {
	var keys []byte
	for {
		select {
		case k := <-c.in:
			keys = append(keys, k)
		default:
			return keys
		}
	}
}

func (c *Console) printf(format string, args ...interface{}) {
	fmt.Fprintf(c.Out, format+"\r\n", args...)
}

// consoleCommand handles one key. Console commands never abort a wait.
func (b *Bridge) consoleCommand(k byte) {
	toggle := func(name string, v *bool) {
		*v = !*v
		b.dirty = true
		b.console.printf("%s: %v", name, *v)
		b.log.WithField(name, *v).Info("setting changed")
	}
	switch k {
	case 's', 'S':
		b.status()
	case 'd', 'D':
		toggle("send_debug", &b.settings.SendDebug)
	case 'b', 'B':
		toggle("sleep_link", &b.settings.SleepLink)
	case 'l', 'L':
		toggle("indicators", &b.settings.Indicators)
	case 'p', 'P':
		b.settings.ResetBatteryLimits()
		b.dirty = true
		b.console.printf("battery limits: %d..%d", b.settings.BatteryMin, b.settings.BatteryMax)
	case '\r', '\n', ' ':
	default:
		b.console.printf("keys: s status, d send debug, b sleep link, l indicators, p reset battery limits")
	}
}

func (b *Bridge) status() {
	s := b.settings
	sess := b.scanner.Session()
	b.console.printf("xbridge status")
	b.console.printf("  transmitter: %s (0x%08X)", telemetry.SourceName(s.TransmitterID), s.TransmitterID)
	b.console.printf("  protocol: %s promiscuous: %v", b.level, b.cfg.Promiscuous)
	b.console.printf("  link ready: %v honor state: %v sleep link: %v", b.link.Ready(), s.HonorLinkState, s.SleepLink)
	b.console.printf("  queued: %d captures: %d misses: %d", b.queue.Len(), b.captures, b.misses)
	b.console.printf("  battery: %d%% limits %d..%d", b.batteryPct, s.BatteryMin, s.BatteryMax)
	if sess.Captured {
		b.console.printf("  last capture: channel %d, %d ms ago", sess.LastChannel, b.clock.Now()-sess.LastCapture)
	} else {
		b.console.printf("  last capture: none")
	}
	b.console.printf("  offsets: %v", b.scanner.Offsets())
	b.console.printf("  send debug: %v indicators: %v", s.SendDebug, s.Indicators)
}
