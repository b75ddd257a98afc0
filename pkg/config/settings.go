package config

// Unset is the transmitter id of erased storage.
const Unset uint32 = 0xFFFFFFFF

// Battery ADC limits for the two hardware revisions.
const (
	BatteryMax        uint16 = 1814
	BatteryMin        uint16 = 1416
	BatteryMaxClassic uint16 = 2034
	BatteryMinClassic uint16 = 1587
)

// Settings is the persisted state of the bridge. The main loop is its only
// writer.
type Settings struct {
	// TransmitterID filters captures; zero or Unset accepts any transmitter.
	TransmitterID uint32 `yaml:"transmitter_id"`
	BatteryMax    uint16 `yaml:"battery_max"`
	BatteryMin    uint16 `yaml:"battery_min"`
	Baud          uint32 `yaml:"baud"`

	// LinkInitialised records that the link module was configured once.
	LinkInitialised bool `yaml:"link_initialised"`
	// SleepLink treats the link as disconnected after every sleep, so
	// sends wait for the module to report the connection again.
	SleepLink bool `yaml:"sleep_link"`
	// HonorLinkState gates sends on the module's connection status lines.
	HonorLinkState bool `yaml:"honor_link_state"`
	// XBridgeHardware selects the battery limits of the newer board.
	XBridgeHardware bool `yaml:"xbridge_hardware"`
	// Indicators logs every capture at info level instead of debug.
	Indicators bool `yaml:"indicators"`
	// SendDebug mirrors capture diagnostics to the receiver as text lines.
	SendDebug bool `yaml:"send_debug"`
}

func DefaultSettings() Settings {
	s := Settings{TransmitterID: 0, Baud: 9600, XBridgeHardware: true}
	s.ResetBatteryLimits()
	return s
}

// Filter is the id captures are matched against, zero meaning any.
func (s Settings) Filter() uint32 {
	if s.TransmitterID == Unset {
		return 0
	}
	return s.TransmitterID
}

func (s Settings) Paired() bool { return s.Filter() != 0 }

// ResetBatteryLimits restores the limits for the configured hardware.
func (s *Settings) ResetBatteryLimits() {
	if s.XBridgeHardware {
		s.BatteryMax, s.BatteryMin = BatteryMax, BatteryMin
		return
	}
	s.BatteryMax, s.BatteryMin = BatteryMaxClassic, BatteryMinClassic
}
