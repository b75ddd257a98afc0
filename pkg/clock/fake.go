package clock

import (
	"sort"
	"sync"
)

type event struct {
	at Millis
	fn func()
}

// Fake is a scripted Source. Time only moves through Advance or Sleep, and
// callbacks registered with At run when time passes their instant.
type Fake struct {
	mu     sync.Mutex
	now    Millis
	events []event
}

func NewFake(start Millis) *Fake { return &Fake{now: start} }

func (f *Fake) Now() Millis {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// At schedules fn to run once the clock reaches t.
func (f *Fake) At(t Millis, fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event{at: t, fn: fn})
	sort.SliceStable(f.events, func(i, j int) bool { return f.events[i].at < f.events[j].at })
}

// After schedules fn to run d from now.
func (f *Fake) After(d Millis, fn func()) { f.At(f.Now()+d, fn) }

func (f *Fake) Advance(d Millis) {
	f.mu.Lock()
	target := f.now + d
	for len(f.events) > 0 && f.events[0].at <= target {
		ev := f.events[0]
		f.events = f.events[1:]
		if ev.at > f.now {
			f.now = ev.at
		}
		f.mu.Unlock()
		ev.fn()
		f.mu.Lock()
	}
	f.now = target
	f.mu.Unlock()
}

func (f *Fake) Sleep(d Millis) { f.Advance(d) }

// Pending reports how many scheduled callbacks have not run yet.
func (f *Fake) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}
