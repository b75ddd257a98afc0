package radio

import "errors"

// NumChannels is the number of logical channels a broadcast is repeated on.
const NumChannels = 4

var (
	ErrBadCRC         = errors.New("radio: bad crc")
	ErrInvalidChannel = errors.New("radio: invalid channel")
)

// ChannelNumbers maps logical channels to radio channel numbers.
var ChannelNumbers = [NumChannels]uint8{0, 100, 199, 209}

// DefaultOffsets are the starting frequency offsets per logical channel.
var DefaultOffsets = [NumChannels]int8{-14, -7, 10, 11}

// PHY is the radio front end. Captured frames, with their CRC flag and
// frequency error estimate, are published into the RxRing the PHY was
// created with.
type PHY interface {
	// Tune switches to a logical channel with the given frequency offset and
	// starts receiving.
	Tune(channel int, offset int8) error
	// Idle stops receiving ahead of a low power interval.
	Idle() error
	Close() error
}

// ValidChannel reports whether ch is a logical channel index.
func ValidChannel(ch int) bool { return ch >= 0 && ch < NumChannels }
