package power

import (
	"testing"

	"github.com/ericogr/xbridge/pkg/clock"
	"github.com/sirupsen/logrus"
)

func TestSleepChunks(t *testing.T) {
	tests := []struct {
		d, want clock.Millis
	}{
		{25000, 25000},
		{31500, 30000}, // trailing 1.5s is not worth sleeping
		{1999, 0},
		{10000, 10000},
	}
	for _, tt := range tests {
		clk := clock.NewFake(0)
		m := &Manager{Clock: clk, Log: logrus.New()}
		if got := m.Sleep(tt.d); got != tt.want {
			t.Fatalf("Sleep(%d) = %d; want %d", tt.d, got, tt.want)
		}
		if clk.Now() != tt.want {
			t.Fatalf("clock after Sleep(%d): got %d", tt.d, clk.Now())
		}
	}
}

func TestSleepInterrupted(t *testing.T) {
	clk := clock.NewFake(0)
	pending := false
	clk.At(15000, func() { pending = true })
	m := &Manager{Clock: clk, Pending: func() bool { return pending }, Log: logrus.New()}
	if got := m.Sleep(60000); got != 20000 {
		t.Fatalf("slept: got %d want 20000", got)
	}
}
