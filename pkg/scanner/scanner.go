// Package scanner listens on the four broadcast channels in turn and returns
// the first new frame from the paired transmitter.
package scanner

import (
	"errors"

	"github.com/ericogr/xbridge/pkg/clock"
	"github.com/ericogr/xbridge/pkg/radio"
	"github.com/ericogr/xbridge/pkg/schedule"
	"github.com/ericogr/xbridge/pkg/wait"
	"github.com/sirupsen/logrus"
)

const (
	// HardCap bounds any single channel wait.
	HardCap clock.Millis = 320000
	// RetryWait is spent on channel 0 after a cycle missed every channel.
	RetryWait clock.Millis = 298500 + CRCPad
	// CRCPad widens the channel 0 window after a corrupted capture.
	CRCPad clock.Millis = 10
	// NoSeq is never produced by Normalize.
	NoSeq uint8 = 64
)

var (
	ErrTimeout = errors.New("scanner: timeout")
	ErrAborted = errors.New("scanner: aborted")
)

type Outcome int

const (
	Captured Outcome = iota
	Timeout
	Aborted
	BadCRC
	InvalidChannel
)

func (o Outcome) String() string {
	switch o {
	case Captured:
		return "captured"
	case Timeout:
		return "timeout"
	case Aborted:
		return "aborted"
	case BadCRC:
		return "bad-crc"
	case InvalidChannel:
		return "invalid-channel"
	}
	return "unknown"
}

// Err maps an outcome onto the error taxonomy. Captured maps to nil.
func (o Outcome) Err() error {
	switch o {
	case Captured:
		return nil
	case Timeout:
		return ErrTimeout
	case Aborted:
		return ErrAborted
	case BadCRC:
		return radio.ErrBadCRC
	}
	return radio.ErrInvalidChannel
}

// Session is the scheduling state carried between cycles.
type Session struct {
	Captured    bool // a frame has been accepted at least once
	LastCapture clock.Millis
	LastChannel int
	LastSeq     uint8
	TimedOut    bool // the previous cycle missed every channel
	CRCError    bool
}

// Normalize removes the per-channel rotation from a sequence byte so every
// repeat of one broadcast yields the same id.
func Normalize(seq uint8, channel int) uint8 {
	return ((seq - uint8(channel)) & 0xFC) >> 2
}

// Scanner owns the per-channel frequency offsets and session state. It is
// used from the main loop only.
type Scanner struct {
	phy     radio.PHY
	ring    *radio.RxRing
	clock   clock.Source
	wait    *wait.Loop
	filter  func() uint32
	log     logrus.FieldLogger
	offsets [radio.NumChannels]int8
	session Session
}

// New returns a Scanner. filter reports the transmitter id to accept; zero
// accepts any transmitter.
func New(phy radio.PHY, ring *radio.RxRing, clk clock.Source, w *wait.Loop, filter func() uint32, log logrus.FieldLogger) *Scanner {
	return &Scanner{
		phy:     phy,
		ring:    ring,
		clock:   clk,
		wait:    w,
		filter:  filter,
		log:     log,
		offsets: radio.DefaultOffsets,
		session: Session{LastSeq: NoSeq},
	}
}

func (s *Scanner) Session() Session { return s.session }

func (s *Scanner) Offsets() [radio.NumChannels]int8 { return s.offsets }

// Scan runs one cycle over channels 0..3 and stops at the first accepted
// frame. An abort unwinds immediately without touching the schedule.
func (s *Scanner) Scan() (radio.RawFrame, Outcome) {
	for ch := 0; ch < radio.NumChannels; ch++ {
		f, out := s.Listen(ch, s.Window(ch))
		s.log.WithFields(logrus.Fields{"channel": ch, "outcome": out}).Debug("channel wait")
		switch out {
		case Captured:
			s.session.TimedOut = false
			return f, Captured
		case Aborted:
			return radio.RawFrame{}, Aborted
		case Timeout:
			s.offsets[ch] = radio.DefaultOffsets[ch]
		case BadCRC:
			s.session.CRCError = true
		}
	}
	s.session.TimedOut = true
	return radio.RawFrame{}, Timeout
}

// Window is how long to listen on ch this cycle. Zero means no limit other
// than HardCap.
func (s *Scanner) Window(ch int) clock.Millis {
	if ch != 0 {
		return schedule.ChannelSpacing
	}
	if !s.session.Captured {
		return 0
	}
	if s.session.TimedOut {
		return RetryWait
	}
	// listen up to the expected broadcast; waking from the scheduled
	// sleep leaves about LeadTime of it
	w := schedule.Remaining(s.clock.Now()-s.session.LastCapture, schedule.BroadcastPoint(s.session.LastChannel))
	if w == 0 {
		w = schedule.ChannelSpacing
	}
	if s.session.CRCError {
		w += CRCPad
	}
	return w
}

// Listen tunes to ch and waits up to window for a frame.
func (s *Scanner) Listen(ch int, window clock.Millis) (radio.RawFrame, Outcome) {
	if !radio.ValidChannel(ch) {
		return radio.RawFrame{}, InvalidChannel
	}
	if err := s.phy.Tune(ch, s.offsets[ch]); err != nil {
		s.log.WithError(err).WithField("channel", ch).Warn("tune failed")
		return radio.RawFrame{}, Timeout
	}
	if window == 0 || window > HardCap {
		window = HardCap
	}
	switch s.wait.For(window, s.ring.Pending) {
	case wait.Aborted:
		return radio.RawFrame{}, Aborted
	case wait.Expired:
		return radio.RawFrame{}, Timeout
	}
	f, _ := s.ring.Peek()
	s.ring.Release()
	return s.accept(ch, f)
}

func (s *Scanner) accept(ch int, f radio.RawFrame) (radio.RawFrame, Outcome) {
	if !f.CRCOK {
		return radio.RawFrame{}, BadCRC
	}
	if sum := int(s.offsets[ch]) + int(f.FreqEst); sum >= -128 && sum <= 127 {
		s.offsets[ch] = int8(sum)
	}
	seq := Normalize(f.Seq, ch)
	if seq == s.session.LastSeq {
		s.log.WithFields(logrus.Fields{"channel": ch, "seq": seq}).Debug("duplicate broadcast")
		return radio.RawFrame{}, Timeout
	}
	if id := s.filter(); id != 0 && f.Src != id {
		s.log.WithFields(logrus.Fields{"channel": ch, "txid": f.Src}).Debug("frame from other transmitter")
		return radio.RawFrame{}, Timeout
	}
	s.session.Captured = true
	s.session.LastCapture = f.At
	s.session.LastChannel = ch
	s.session.LastSeq = seq
	s.session.CRCError = false
	return f, Captured
}
