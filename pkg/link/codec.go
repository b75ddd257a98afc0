package link

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/ericogr/xbridge/pkg/clock"
	"github.com/ericogr/xbridge/pkg/telemetry"
)

// Packet types.
const (
	TypeData        byte = 0x00
	TypeSetIdentity byte = 0x01
	TypeAck         byte = 0xF0
	TypeBeacon      byte = 0xF1
)

// Level selects the Data and Beacon layouts.
type Level int

const (
	// LevelDexbridge sends the 17 byte Data packet with a 16 bit bridge battery.
	LevelDexbridge Level = iota
	// LevelXBridge2 appends latency and a function byte to Data and Beacon.
	LevelXBridge2
)

// FunctionByte tags extended packets.
const FunctionByte = 0x01

func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(s) {
	case "", "dexbridge":
		return LevelDexbridge, nil
	case "xbridge2":
		return LevelXBridge2, nil
	}
	return 0, fmt.Errorf("unknown protocol level %q", s)
}

func (l Level) String() string {
	if l == LevelXBridge2 {
		return "xbridge2"
	}
	return "dexbridge"
}

// EncodeData renders p for the receiver. now fixes the latency field.
func EncodeData(p telemetry.Packet, bridgeBattery uint8, now clock.Millis, level Level) []byte {
	le := binary.LittleEndian
	b := make([]byte, 2, 21)
	b[1] = TypeData
	b = le.AppendUint32(b, p.Raw)
	b = le.AppendUint32(b, p.Filtered)
	b = append(b, p.DeviceBattery)
	if level == LevelXBridge2 {
		b = append(b, bridgeBattery)
		b = le.AppendUint32(b, p.TransmitterID)
		b = le.AppendUint32(b, uint32(p.LatencyAt(now)))
		b = append(b, FunctionByte)
	} else {
		b = le.AppendUint16(b, uint16(bridgeBattery))
		b = le.AppendUint32(b, p.TransmitterID)
	}
	b[0] = byte(len(b))
	return b
}

func EncodeBeacon(id uint32, level Level) []byte {
	b := []byte{0, TypeBeacon}
	b = binary.LittleEndian.AppendUint32(b, id)
	if level == LevelXBridge2 {
		b = append(b, FunctionByte)
	}
	b[0] = byte(len(b))
	return b
}

func EncodeAck() []byte { return []byte{0x02, TypeAck} }

func EncodeSetIdentity(id uint32) []byte {
	return binary.LittleEndian.AppendUint32([]byte{0x06, TypeSetIdentity}, id)
}
