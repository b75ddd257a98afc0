package link

import (
	"encoding/binary"
	"strings"

	"github.com/ericogr/xbridge/pkg/clock"
)

type Kind int

const (
	Ack Kind = iota + 1
	SetIdentity
	Connected
	Disconnected
)

func (k Kind) String() string {
	switch k {
	case Ack:
		return "ack"
	case SetIdentity:
		return "set-identity"
	case Connected:
		return "connected"
	case Disconnected:
		return "disconnected"
	}
	return "unknown"
}

// Urgent commands abort an in-progress wait.
func (k Kind) Urgent() bool { return k == Ack || k == SetIdentity }

type Command struct {
	Kind          Kind
	TransmitterID uint32
}

const (
	// PartialTimeout discards a command that stops arriving midway.
	PartialTimeout clock.Millis = 2000
	maxFrame                    = 32
)

// Parser assembles commands from the inbound byte stream. Binary commands
// start with their total length; link module status lines start with 'O' or
// '+' and are matched on their "+CONN" and "+LOST" suffixes.
type Parser struct {
	clock   clock.Source
	buf     []byte
	started clock.Millis
}

func NewParser(clk clock.Source) *Parser { return &Parser{clock: clk} }

// Feed consumes one byte and returns a command when one completes.
// Unknown commands are dropped silently.
func (p *Parser) Feed(c byte) (Command, bool) {
	now := p.clock.Now()
	if len(p.buf) > 0 && now-p.started > PartialTimeout {
		p.buf = p.buf[:0]
	}
	if len(p.buf) == 0 {
		// padding and the line ends of status lines
		if c == 0 || c == '\r' || c == '\n' {
			return Command{}, false
		}
		p.started = now
	}
	p.buf = append(p.buf, c)
	if p.text() {
		return p.feedText()
	}
	return p.feedBinary()
}

func (p *Parser) text() bool { return p.buf[0] == 'O' || p.buf[0] == '+' }

func (p *Parser) feedText() (Command, bool) {
	s := string(p.buf)
	switch {
	case strings.HasSuffix(s, "+CONN"):
		p.buf = p.buf[:0]
		return Command{Kind: Connected}, true
	case strings.HasSuffix(s, "+LOST"):
		p.buf = p.buf[:0]
		return Command{Kind: Disconnected}, true
	case strings.HasSuffix(s, "\n") || len(p.buf) >= maxFrame:
		p.buf = p.buf[:0]
	}
	return Command{}, false
}

func (p *Parser) feedBinary() (Command, bool) {
	n := int(p.buf[0])
	if n < 2 || n > maxFrame {
		p.buf = p.buf[:0]
		return Command{}, false
	}
	if len(p.buf) < n {
		return Command{}, false
	}
	frame := p.buf
	p.buf = p.buf[:0]
	switch {
	case frame[1] == TypeAck && n == 2:
		return Command{Kind: Ack}, true
	case frame[1] == TypeSetIdentity && n == 6:
		return Command{Kind: SetIdentity, TransmitterID: binary.LittleEndian.Uint32(frame[2:6])}, true
	}
	return Command{}, false
}
