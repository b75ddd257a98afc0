package battery

import (
	"fmt"
	"time"

	"github.com/ericogr/xbridge/pkg/config"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

const (
	pointerConv   = 0x00
	pointerConfig = 0x01
	sampleRate    = 128
)

// ADS1115 samples one single-ended input at ±4.096V full scale, where one
// count of the 15 bit positive range is 125µV.
type ADS1115 struct {
	dev     *i2c.Dev
	bus     i2c.BusCloser
	channel int
}

func NewADS1115(cfg config.BatteryConfig) (Monitor, error) {
	if _, err := configForChannel(cfg.Channel); err != nil {
		return nil, err
	}
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("host init: %w", err)
	}
	bus, err := i2creg.Open(cfg.I2CBus)
	if err != nil {
		return nil, fmt.Errorf("open i2c: %w", err)
	}
	dev := &i2c.Dev{Addr: uint16(cfg.I2CAddress), Bus: bus}
	return &ADS1115{dev: dev, bus: bus, channel: cfg.Channel}, nil
}

func (s *ADS1115) Close() error {
	if s.bus != nil {
		return s.bus.Close()
	}
	return nil
}

// Read starts a single-shot conversion and returns millivolts.
func (s *ADS1115) Read() (uint16, error) {
	cfg, _ := configForChannel(s.channel)
	if err := s.dev.Tx([]byte{pointerConfig, byte(cfg >> 8), byte(cfg)}, nil); err != nil {
		return 0, fmt.Errorf("write config: %w", err)
	}
	time.Sleep(time.Duration(1000/sampleRate+2) * time.Millisecond)
	buf := make([]byte, 2)
	if err := s.dev.Tx([]byte{pointerConv}, buf); err != nil {
		return 0, fmt.Errorf("read conv: %w", err)
	}
	return toMillivolts(int16(buf[0])<<8 | int16(buf[1])), nil
}

func toMillivolts(raw int16) uint16 {
	if raw < 0 {
		return 0
	}
	return uint16(int32(raw) * 4096 / 32768)
}

func configForChannel(channel int) (uint16, error) {
	if channel < 0 || channel > 3 {
		return 0, fmt.Errorf("invalid channel %d", channel)
	}
	var c uint16 = 0x8000 // start a single conversion
	c |= uint16(0x4+channel) << 12
	c |= 0x1 << 9 // ±4.096V
	c |= 1 << 8   // single-shot
	c |= 0x4 << 5 // 128 SPS
	c |= 0x3      // comparator off
	return c, nil
}
