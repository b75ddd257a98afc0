package delivery

import (
	"errors"
	"testing"

	"github.com/ericogr/xbridge/pkg/clock"
	"github.com/ericogr/xbridge/pkg/queue"
	"github.com/ericogr/xbridge/pkg/telemetry"
	"github.com/ericogr/xbridge/pkg/wait"
	"github.com/sirupsen/logrus"
)

type fakeLink struct {
	ready bool
	sent  [][]byte
	err   error
}

func (l *fakeLink) Send(b []byte) error {
	if l.err != nil {
		return l.err
	}
	l.sent = append(l.sent, b)
	return nil
}

func (l *fakeLink) Ready() bool { return l.ready }

type noop struct{}

func (noop) Service() bool { return true }

type harness struct {
	clk  *clock.Fake
	link *fakeLink
	q    *queue.Queue
	p    *Protocol
}

func newHarness() *harness {
	h := &harness{clk: clock.NewFake(0), link: &fakeLink{ready: true}, q: &queue.Queue{}}
	w := &wait.Loop{Clock: h.clk, Svc: noop{}, Poll: 20}
	enc := func(p telemetry.Packet, _ clock.Millis) []byte { return []byte{byte(p.Raw)} }
	h.p = New(h.link, w, h.clk, h.q, enc, logrus.New())
	return h
}

// ackEach acknowledges every send after delay.
func (h *harness) ackEach(delay clock.Millis) {
	seen := 0
	var watch func()
	watch = func() {
		if len(h.link.sent) > seen {
			seen = len(h.link.sent)
			h.clk.After(delay, h.p.Acknowledge)
		}
		h.clk.After(5, watch)
	}
	h.clk.After(0, watch)
}

func TestDeliverAllAcked(t *testing.T) {
	h := newHarness()
	for i := 1; i <= 3; i++ {
		h.q.Push(telemetry.Packet{Raw: uint32(i)})
	}
	h.ackEach(100)
	n, err := h.p.Deliver()
	if err != nil || n != 3 {
		t.Fatalf("deliver: n=%d err=%v", n, err)
	}
	if h.q.Len() != 0 || len(h.link.sent) != 3 {
		t.Fatalf("queue %d sent %d", h.q.Len(), len(h.link.sent))
	}
	for i, b := range h.link.sent {
		if b[0] != byte(i+1) {
			t.Fatalf("send %d: got %d", i, b[0])
		}
	}
}

func TestDeliverNoAckLeavesQueued(t *testing.T) {
	h := newHarness()
	h.q.Push(telemetry.Packet{Raw: 1})
	h.q.Push(telemetry.Packet{Raw: 2})
	start := h.clk.Now()
	n, err := h.p.Deliver()
	if !errors.Is(err, ErrNoAck) || n != 0 {
		t.Fatalf("deliver: n=%d err=%v", n, err)
	}
	if len(h.link.sent) != 1 {
		t.Fatalf("only one send per pass without ack, got %d", len(h.link.sent))
	}
	if h.q.Len() != 2 {
		t.Fatalf("queue: got %d want 2", h.q.Len())
	}
	if d := h.clk.Now() - start; d < 2000 || d > 2020 {
		t.Fatalf("ack wait: got %d", d)
	}
}

func TestDeliverLinkUnavailable(t *testing.T) {
	h := newHarness()
	h.link.ready = false
	h.q.Push(telemetry.Packet{Raw: 1})
	if _, err := h.p.Deliver(); !errors.Is(err, ErrLinkUnavailable) {
		t.Fatalf("got %v want ErrLinkUnavailable", err)
	}
	if h.clk.Now() < 60000 {
		t.Fatalf("should wait for the link, waited %d", h.clk.Now())
	}
	if len(h.link.sent) != 0 {
		t.Fatalf("nothing should be sent")
	}
}

func TestDeliverWaitsForConnect(t *testing.T) {
	h := newHarness()
	h.link.ready = false
	h.clk.At(5000, func() { h.link.ready = true })
	h.q.Push(telemetry.Packet{Raw: 1})
	h.ackEach(10)
	if n, err := h.p.Deliver(); n != 1 || err != nil {
		t.Fatalf("deliver: n=%d err=%v", n, err)
	}
}

func TestDeliverBudget(t *testing.T) {
	h := newHarness()
	h.p.Timing.Budget = 1000
	for i := 0; i < 10; i++ {
		h.q.Push(telemetry.Packet{Raw: uint32(i)})
	}
	h.ackEach(300)
	n, err := h.p.Deliver()
	if err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if n >= 10 || n == 0 {
		t.Fatalf("budget should stop the pass early, sent %d", n)
	}
	if h.q.Len() != 10-n {
		t.Fatalf("queue %d after %d acks", h.q.Len(), n)
	}
}

func TestBeacon(t *testing.T) {
	h := newHarness()
	if err := h.p.Beacon(0x42, 30000, func(id uint32) []byte { return []byte{byte(id)} }); err != nil {
		t.Fatalf("beacon: %v", err)
	}
	if len(h.link.sent) != 1 || h.link.sent[0][0] != 0x42 {
		t.Fatalf("sent: %v", h.link.sent)
	}
	h.link.err = errors.New("broken")
	if err := h.p.Beacon(1, 0, func(uint32) []byte { return nil }); err == nil {
		t.Fatalf("expected send error")
	}
}
