// Package schedule predicts when the next broadcast is due.
package schedule

import "github.com/ericogr/xbridge/pkg/clock"

const (
	CyclePeriod    clock.Millis = 300000
	LeadTime       clock.Millis = 20000
	ChannelSpacing clock.Millis = 500
)

// Target is the listening point of the next cycle measured from the last
// capture, which happened lastChannel spacings after the cycle started.
func Target(lastChannel int) clock.Millis {
	return CyclePeriod - LeadTime - clock.Millis(lastChannel)*ChannelSpacing
}

// BroadcastPoint is the time from the last capture to the same channel's
// repeat in the next cycle.
func BroadcastPoint(lastChannel int) clock.Millis {
	return CyclePeriod - clock.Millis(lastChannel)*ChannelSpacing
}

// Fold subtracts target from elapsed until elapsed no longer exceeds it.
func Fold(elapsed, target clock.Millis) clock.Millis {
	if target == 0 || elapsed <= target {
		return elapsed
	}
	return (elapsed-1)%target + 1
}

// Remaining is the time left until the folded target point.
func Remaining(elapsed, target clock.Millis) clock.Millis {
	return target - Fold(elapsed, target)
}

// Scheduler computes how long to sleep after a cycle with a capture.
type Scheduler struct {
	Clock clock.Source
}

// SleepDuration returns zero when nothing has been captured yet.
func (s Scheduler) SleepDuration(captured bool, lastCapture clock.Millis, lastChannel int) clock.Millis {
	if !captured {
		return 0
	}
	return Remaining(s.Clock.Now()-lastCapture, Target(lastChannel))
}
