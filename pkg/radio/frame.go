package radio

import (
	"encoding/binary"
	"fmt"

	"github.com/ericogr/xbridge/pkg/clock"
)

const (
	// PayloadLen is the on-air packet including its length byte and checksum.
	PayloadLen = 19
	// FrameLen adds the two status bytes the radio appends to every packet.
	FrameLen = PayloadLen + 2

	crcOKBit = 0x80
)

// RawFrame is one captured broadcast. It is immutable once published to the
// RxRing and consumed exactly once by the scanner.
type RawFrame struct {
	Length     uint8
	Dest       uint32
	Src        uint32
	Port       uint8
	DeviceInfo uint8
	Seq        uint8
	Raw        uint16
	Filtered   uint16
	Battery    uint8
	Unknown    uint8
	Checksum   uint8

	RSSI    int8 // status byte as reported by the radio
	LQI     uint8
	CRCOK   bool
	FreqEst int16 // frequency error estimate latched with the packet
	At      clock.Millis
}

// ParseFrame decodes a FIFO read of FrameLen bytes.
func ParseFrame(b []byte) (RawFrame, error) {
	if len(b) < FrameLen {
		return RawFrame{}, fmt.Errorf("radio: short frame: %d bytes", len(b))
	}
	le := binary.LittleEndian
	status := b[PayloadLen+1]
	return RawFrame{
		Length:     b[0],
		Dest:       le.Uint32(b[1:5]),
		Src:        le.Uint32(b[5:9]),
		Port:       b[9],
		DeviceInfo: b[10],
		Seq:        b[11],
		Raw:        le.Uint16(b[12:14]),
		Filtered:   le.Uint16(b[14:16]),
		Battery:    b[16],
		Unknown:    b[17],
		Checksum:   b[18],
		RSSI:       int8(b[PayloadLen]),
		LQI:        status &^ crcOKBit,
		CRCOK:      status&crcOKBit != 0,
	}, nil
}

// Bytes is the inverse of ParseFrame, used by simulators and tests.
func (f RawFrame) Bytes() []byte {
	b := make([]byte, FrameLen)
	le := binary.LittleEndian
	b[0] = f.Length
	le.PutUint32(b[1:5], f.Dest)
	le.PutUint32(b[5:9], f.Src)
	b[9] = f.Port
	b[10] = f.DeviceInfo
	b[11] = f.Seq
	le.PutUint16(b[12:14], f.Raw)
	le.PutUint16(b[14:16], f.Filtered)
	b[16] = f.Battery
	b[17] = f.Unknown
	b[18] = f.Checksum
	b[PayloadLen] = byte(f.RSSI)
	b[PayloadLen+1] = f.LQI &^ crcOKBit
	if f.CRCOK {
		b[PayloadLen+1] |= crcOKBit
	}
	return b
}

// RSSIdBm converts the status byte to dBm.
func (f RawFrame) RSSIdBm() int {
	return int(f.RSSI)/2 - 72
}
