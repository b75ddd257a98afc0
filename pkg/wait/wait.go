// Package wait implements the main loop's only suspension point: a bounded
// wait that keeps servicing I/O.
package wait

import "github.com/ericogr/xbridge/pkg/clock"

type Result int

const (
	Done Result = iota
	Expired
	Aborted
)

func (r Result) String() string {
	switch r {
	case Done:
		return "done"
	case Expired:
		return "expired"
	case Aborted:
		return "aborted"
	}
	return "unknown"
}

// Servicer runs one round of pending I/O and housekeeping. It returns false
// when an urgent command asks the current wait to abort.
type Servicer interface {
	Service() bool
}

// Loop is a cooperative wait bound to a clock.
type Loop struct {
	Clock clock.Source
	Svc   Servicer
	Poll  clock.Millis
}

// For waits up to d for done to become true, servicing I/O every Poll.
// A zero d waits until done or an abort. A nil done only waits.
func (l *Loop) For(d clock.Millis, done func() bool) Result {
	start := l.Clock.Now()
	poll := l.Poll
	if poll == 0 {
		poll = 1
	}
	for {
		if !l.Svc.Service() {
			return Aborted
		}
		if done != nil && done() {
			return Done
		}
		if d > 0 && l.Clock.Now()-start >= d {
			return Expired
		}
		l.Clock.Sleep(poll)
	}
}
