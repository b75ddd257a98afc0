// Package delivery sends queued packets to the receiver and retries until
// each one is acknowledged.
package delivery

import (
	"errors"
	"fmt"

	"github.com/ericogr/xbridge/pkg/clock"
	"github.com/ericogr/xbridge/pkg/queue"
	"github.com/ericogr/xbridge/pkg/telemetry"
	"github.com/ericogr/xbridge/pkg/wait"
	"github.com/sirupsen/logrus"
)

var (
	ErrNoAck           = errors.New("delivery: no ack")
	ErrLinkUnavailable = errors.New("delivery: link unavailable")
)

// Link is the outbound side of the serial link.
type Link interface {
	Send(pkt []byte) error
	Ready() bool
}

// Waiter is the main loop's cooperative wait.
type Waiter interface {
	For(d clock.Millis, done func() bool) wait.Result
}

// Encoder renders a packet for the wire at the given send time.
type Encoder func(p telemetry.Packet, now clock.Millis) []byte

type Timing struct {
	ConnectWait clock.Millis
	Budget      clock.Millis
	AckWait     clock.Millis
}

func DefaultTiming() Timing {
	return Timing{ConnectWait: 60000, Budget: 120000, AckWait: 2000}
}

// Protocol drives the queue against the link. Acknowledge is called by the
// command handler when an Ack arrives.
type Protocol struct {
	Timing Timing

	link   Link
	wait   Waiter
	clock  clock.Source
	queue  *queue.Queue
	encode Encoder
	log    logrus.FieldLogger
	acked  bool
}

func New(l Link, w Waiter, clk clock.Source, q *queue.Queue, enc Encoder, log logrus.FieldLogger) *Protocol {
	return &Protocol{Timing: DefaultTiming(), link: l, wait: w, clock: clk, queue: q, encode: enc, log: log}
}

// Acknowledge records an Ack for the packet in flight.
func (p *Protocol) Acknowledge() { p.acked = true }

func (p *Protocol) Acked() bool { return p.acked }

// Deliver runs one pass: it waits for the link, then sends oldest first
// until the queue is empty, the link drops, the budget runs out or a packet
// goes unacknowledged. It returns the number of packets acknowledged.
func (p *Protocol) Deliver() (int, error) {
	if p.queue.Len() == 0 {
		return 0, nil
	}
	p.wait.For(p.Timing.ConnectWait, p.link.Ready)
	if !p.link.Ready() {
		return 0, ErrLinkUnavailable
	}
	start := p.clock.Now()
	sent := 0
	for p.queue.Len() > 0 && p.link.Ready() && p.clock.Now()-start < p.Timing.Budget {
		pkt, _ := p.queue.Peek()
		p.acked = false
		if err := p.link.Send(p.encode(pkt, p.clock.Now())); err != nil {
			return sent, fmt.Errorf("deliver: %w", err)
		}
		p.wait.For(p.Timing.AckWait, p.Acked)
		if !p.acked {
			return sent, ErrNoAck
		}
		p.queue.Pop()
		sent++
		p.log.WithFields(logrus.Fields{"txid": telemetry.SourceName(pkt.TransmitterID), "queued": p.queue.Len()}).Debug("packet acknowledged")
	}
	return sent, nil
}

// Beacon waits up to connectWait for the link and announces id.
func (p *Protocol) Beacon(id uint32, connectWait clock.Millis, encode func(uint32) []byte) error {
	p.wait.For(connectWait, p.link.Ready)
	if !p.link.Ready() {
		return ErrLinkUnavailable
	}
	if err := p.link.Send(encode(id)); err != nil {
		return fmt.Errorf("beacon: %w", err)
	}
	return nil
}
