// Package link talks to the paired receiver over a serial line.
package link

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/ericogr/xbridge/pkg/clock"
	"github.com/sirupsen/logrus"
	"github.com/tarm/serial"
)

const inboxSize = 512

// Link owns the outbound writer and an inbox of received bytes. Bytes enter
// through Feed, normally from Pump running on its own goroutine, and are
// parsed by Poll on the main loop.
type Link struct {
	w          io.Writer
	in         chan byte
	parser     *Parser
	honorState bool
	connected  bool
	log        logrus.FieldLogger
}

// New returns a Link writing to w. With honorState the link is only ready
// between "+CONN" and "+LOST" status lines from the link module.
func New(w io.Writer, clk clock.Source, honorState bool, log logrus.FieldLogger) *Link {
	return &Link{
		w:          w,
		in:         make(chan byte, inboxSize),
		parser:     NewParser(clk),
		honorState: honorState,
		log:        log,
	}
}

// OpenSerial opens a serial port with a short read timeout so Pump can
// notice cancellation.
func OpenSerial(name string, baud int) (io.ReadWriteCloser, error) {
	p, err := serial.OpenPort(&serial.Config{Name: name, Baud: baud, ReadTimeout: 100 * time.Millisecond})
	if err != nil {
		return nil, fmt.Errorf("open serial %s: %w", name, err)
	}
	return p, nil
}

// Feed queues received bytes. It blocks while the inbox is full.
func (l *Link) Feed(b []byte) {
	for _, c := range b {
		l.in <- c
	}
}

// Pump copies r into the inbox until ctx is done or r fails.
func (l *Link) Pump(ctx context.Context, r io.Reader) error {
	buf := make([]byte, 64)
	for ctx.Err() == nil {
		n, err := r.Read(buf)
		if n > 0 {
			l.Feed(buf[:n])
		}
		switch {
		case err == nil:
		case errors.Is(err, io.EOF):
			// read timeout on an idle line
			if n == 0 {
				time.Sleep(10 * time.Millisecond)
			}
		default:
			return fmt.Errorf("link read: %w", err)
		}
	}
	return ctx.Err()
}

// Available is the number of received bytes not yet parsed.
func (l *Link) Available() int { return len(l.in) }

// Poll parses every received byte and returns the completed commands.
// Status commands update readiness before they are returned.
func (l *Link) Poll() []Command {
	var cmds []Command
	for {
		select {
		case c := <-l.in:
			cmd, ok := l.parser.Feed(c)
			if !ok {
				continue
			}
			switch cmd.Kind {
			case Connected:
				l.connected = true
			case Disconnected:
				l.connected = false
			}
			cmds = append(cmds, cmd)
		default:
			return cmds
		}
	}
}

// Ready reports whether the receiver can be sent to.
func (l *Link) Ready() bool { return !l.honorState || l.connected }

// HonorState switches gating on the module's status lines.
func (l *Link) HonorState(on bool) { l.honorState = on }

// Drop forgets the connection until the link module reports it again.
func (l *Link) Drop() { l.connected = false }

func (l *Link) Send(pkt []byte) error {
	if _, err := l.w.Write(pkt); err != nil {
		return fmt.Errorf("link send: %w", err)
	}
	l.log.WithField("bytes", fmt.Sprintf("% X", pkt)).Debug("link send")
	return nil
}

// Printf writes a line of debug text to the receiver.
func (l *Link) Printf(format string, args ...interface{}) error {
	_, err := fmt.Fprintf(l.w, format+"\r\n", args...)
	return err
}
