// Package power sleeps between broadcasts.
package power

import (
	"github.com/ericogr/xbridge/pkg/clock"
	"github.com/sirupsen/logrus"
)

const (
	// MaxChunk bounds a single sleep so the clock can be recalibrated and
	// link activity noticed.
	MaxChunk clock.Millis = 10000
	// MinChunk is the shortest interval worth sleeping for.
	MinChunk clock.Millis = 2000
)

// Manager sleeps in chunks and stops early when Pending reports link activity.
type Manager struct {
	Clock   clock.Source
	Pending func() bool
	Log     logrus.FieldLogger
}

// Sleep sleeps for up to d and returns the time actually slept.
func (m *Manager) Sleep(d clock.Millis) clock.Millis {
	var slept clock.Millis
	for slept < d {
		chunk := d - slept
		if chunk > MaxChunk {
			chunk = MaxChunk
		}
		if chunk < MinChunk {
			break
		}
		if m.Pending != nil && m.Pending() {
			m.Log.WithField("slept_ms", slept).Debug("sleep interrupted by link activity")
			break
		}
		m.Clock.Sleep(chunk)
		slept += chunk
	}
	return slept
}
