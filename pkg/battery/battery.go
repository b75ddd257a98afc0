// Package battery reads the bridge's own battery level.
package battery

import "github.com/ericogr/xbridge/pkg/config"

// calibration guard band around the stored limits, in ADC counts
const (
	widenMargin = 23
	widenReach  = 200
)

// Monitor returns the battery voltage in millivolt ADC counts.
type Monitor interface {
	Read() (uint16, error)
	Close() error
}

// Percent maps val onto the stored limits. Readings just outside the limits
// widen them; the return reports whether s changed and needs saving.
func Percent(val uint16, s *config.Settings) (uint8, bool) {
	changed := false
	v := int(val)
	lo, hi := int(s.BatteryMin), int(s.BatteryMax)
	if v < lo-widenMargin && v > lo-widenReach {
		s.BatteryMin = val
		changed = true
	}
	if v > hi+widenMargin && (v < hi+widenReach || s.BatteryMax == config.BatteryMax) {
		s.BatteryMax = val
		changed = true
	}
	lo, hi = int(s.BatteryMin), int(s.BatteryMax)
	if hi <= lo {
		return 0, changed
	}
	pct := (v - lo) * 100 / (hi - lo)
	switch {
	case pct < 0:
		pct = 0
	case pct > 100:
		pct = 100
	}
	return uint8(pct), changed
}
