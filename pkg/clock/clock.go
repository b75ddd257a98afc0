package clock

import "time"

// Millis is a wrapping millisecond count. Differences taken with plain
// subtraction stay correct across the uint32 rollover.
type Millis uint32

// Source is the monotonic millisecond clock shared by the radio receive
// goroutine and the main loop.
type Source interface {
	Now() Millis
	// Sleep blocks the caller for d.
	Sleep(d Millis)
}

// Real is a Source backed by the Go monotonic clock. It keeps counting
// through Sleep, so nothing has to be added back after a low power
// interval.
type Real struct {
	start time.Time
}

func NewReal() *Real { return &Real{start: time.Now()} }

func (r *Real) Now() Millis {
	return Millis(uint32(time.Since(r.start).Milliseconds()))
}

func (r *Real) Sleep(d Millis) { time.Sleep(time.Duration(d) * time.Millisecond) }
