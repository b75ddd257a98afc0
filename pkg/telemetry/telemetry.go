// Package telemetry turns captured frames into decoded readings.
package telemetry

import (
	"fmt"
	"math/bits"
	"strings"

	"github.com/ericogr/xbridge/pkg/clock"
	"github.com/ericogr/xbridge/pkg/radio"
)

// Version tags packets produced by this decoder.
const Version = 0x01

const alphabet = "0123456789ABCDEFGHJKLMNPQRSTUWXY"

// Packet is a decoded reading. It is immutable once created.
type Packet struct {
	Raw           uint32       `json:"raw"`
	Filtered      uint32       `json:"filtered"`
	DeviceBattery uint8        `json:"device_battery"`
	TransmitterID uint32       `json:"transmitter_id"`
	Latency       clock.Millis `json:"latency_ms"`
	Version       uint8        `json:"version"`

	CapturedAt clock.Millis `json:"-"`
	Channel    int          `json:"channel"`
	RSSI       int          `json:"rssi"`
}

// Decode builds a Packet from an accepted frame.
func Decode(f radio.RawFrame, channel int, now clock.Millis) Packet {
	return Packet{
		Raw:           DecodeFloat(f.Raw),
		Filtered:      DecodeFloat(f.Filtered) * 2,
		DeviceBattery: f.Battery,
		TransmitterID: f.Src,
		Latency:       now - f.At,
		Version:       Version,
		CapturedAt:    f.At,
		Channel:       channel,
		RSSI:          f.RSSIdBm(),
	}
}

// LatencyAt is the time between capture and now.
func (p Packet) LatencyAt(now clock.Millis) clock.Millis { return now - p.CapturedAt }

// DecodeFloat expands a compressed field. The bits of each byte arrive in
// reverse order; once restored the top 3 bits are an exponent and the low 13
// bits a mantissa.
func DecodeFloat(v uint16) uint32 {
	r := uint16(bits.Reverse8(uint8(v))) | uint16(bits.Reverse8(uint8(v>>8)))<<8
	exponent := (r & 0xE000) >> 13
	mantissa := uint32(r & 0x1FFF)
	return mantissa << exponent
}

// EncodeFloat is the inverse of DecodeFloat for a given exponent and mantissa.
func EncodeFloat(exponent uint8, mantissa uint16) uint16 {
	r := uint16(exponent&0x07)<<13 | mantissa&0x1FFF
	return uint16(bits.Reverse8(uint8(r))) | uint16(bits.Reverse8(uint8(r>>8)))<<8
}

// SourceName renders the 25 significant bits of a transmitter address as the
// five character identifier printed on the device.
func SourceName(id uint32) string {
	var b [5]byte
	for i := range b {
		shift := uint(20 - 5*i)
		b[i] = alphabet[(id>>shift)&0x1F]
	}
	return string(b[:])
}

// ParseSourceName is the inverse of SourceName.
func ParseSourceName(s string) (uint32, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if len(s) != 5 {
		return 0, fmt.Errorf("transmitter id %q: want 5 characters", s)
	}
	var id uint32
	for _, c := range s {
		i := strings.IndexRune(alphabet, c)
		if i < 0 {
			return 0, fmt.Errorf("transmitter id %q: invalid character %q", s, c)
		}
		id = id<<5 | uint32(i)
	}
	return id, nil
}
