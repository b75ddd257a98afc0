package scanner

import (
	"testing"

	"github.com/ericogr/xbridge/pkg/clock"
	"github.com/ericogr/xbridge/pkg/radio"
	"github.com/ericogr/xbridge/pkg/schedule"
	"github.com/ericogr/xbridge/pkg/wait"
	"github.com/sirupsen/logrus"
)

type services struct{ abort bool }

func (s *services) Service() bool { return !s.abort }

type harness struct {
	clk    *clock.Fake
	ring   *radio.RxRing
	phy    *radio.Fake
	svc    *services
	filter uint32
	s      *Scanner
}

func newHarness() *harness {
	h := &harness{clk: clock.NewFake(1000), ring: &radio.RxRing{}, svc: &services{}}
	h.phy = radio.NewFake(h.ring, h.clk)
	w := &wait.Loop{Clock: h.clk, Svc: h.svc, Poll: 5}
	h.s = New(h.phy, h.ring, h.clk, w, func() uint32 { return h.filter }, logrus.New())
	return h
}

func frame(src uint32, id uint8, ch int) radio.RawFrame {
	return radio.RawFrame{Src: src, Seq: id<<2 + uint8(ch), CRCOK: true}
}

// broadcast schedules one logical packet on all four channels starting at t.
func (h *harness) broadcast(t clock.Millis, src uint32, id uint8) {
	for ch := 0; ch < radio.NumChannels; ch++ {
		ch := ch
		h.clk.At(t+clock.Millis(ch)*500, func() { h.phy.Broadcast(ch, frame(src, id, ch)) })
	}
}

func TestNormalize(t *testing.T) {
	for raw := 0; raw < 256; raw += 4 {
		base := Normalize(uint8(raw), 0)
		for ch := 1; ch < radio.NumChannels; ch++ {
			if got := Normalize(uint8(raw+ch), ch); got != base {
				t.Fatalf("Normalize(%d, %d) = %d; want %d", raw+ch, ch, got, base)
			}
		}
		if base == NoSeq {
			t.Fatalf("Normalize produced the sentinel for %d", raw)
		}
	}
}

func TestFirstCaptureWaitsOnChannelZero(t *testing.T) {
	h := newHarness()
	h.broadcast(200000, 0x1234, 7)
	f, out := h.s.Scan()
	if out != Captured {
		t.Fatalf("outcome: got %v want captured", out)
	}
	if f.Src != 0x1234 || f.At != 200000 {
		t.Fatalf("frame: %+v", f)
	}
	sess := h.s.Session()
	if !sess.Captured || sess.LastChannel != 0 || sess.LastSeq != 7 || sess.LastCapture != 200000 {
		t.Fatalf("session: %+v", sess)
	}
	tunes := h.phy.Tunes()
	if len(tunes) != 1 || tunes[0].Channel != 0 {
		t.Fatalf("tunes: %+v", tunes)
	}
}

func TestLaterChannelCapture(t *testing.T) {
	h := newHarness()
	h.s.session = Session{Captured: true, LastCapture: 1000, LastSeq: NoSeq}
	// channel 0 window ends at 301000; the packet is only heard on channel 2
	h.clk.At(301000+500+200, func() { h.phy.Broadcast(2, frame(0x1234, 3, 2)) })
	f, out := h.s.Scan()
	if out != Captured {
		t.Fatalf("outcome: got %v want captured", out)
	}
	if h.s.Session().LastChannel != 2 || f.Seq != 14 {
		t.Fatalf("session %+v frame %+v", h.s.Session(), f)
	}
	// channels 0 and 1 timed out and fell back to their defaults
	off := h.s.Offsets()
	if off[0] != radio.DefaultOffsets[0] || off[1] != radio.DefaultOffsets[1] {
		t.Fatalf("offsets: %v", off)
	}
}

func TestWindow(t *testing.T) {
	h := newHarness()
	if w := h.s.Window(0); w != 0 {
		t.Fatalf("window before any capture: got %d want 0", w)
	}
	if w := h.s.Window(3); w != 500 {
		t.Fatalf("window on channel 3: got %d want 500", w)
	}
	h.s.session = Session{Captured: true, LastCapture: 1000, LastChannel: 0}
	h.clk.Advance(700000)
	if w := h.s.Window(0); w != 200000 {
		t.Fatalf("folded window: got %d want 200000", w)
	}
	h.s.session.CRCError = true
	if w := h.s.Window(0); w != 200010 {
		t.Fatalf("window after crc error: got %d want 200010", w)
	}
	h.s.session.CRCError = false

	tests := []struct {
		name        string
		elapsed     clock.Millis
		lastChannel int
		want        clock.Millis
	}{
		{"woken on schedule", schedule.Target(0), 0, schedule.LeadTime},
		{"woken on schedule after channel 2", schedule.Target(2), 2, schedule.LeadTime},
		{"woken early", schedule.Target(0) - 1500, 0, schedule.LeadTime + 1500},
		{"woken late", schedule.Target(0) + 100, 0, schedule.LeadTime - 100},
		{"on the broadcast point", schedule.CyclePeriod, 0, schedule.ChannelSpacing},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h.s.session.LastCapture = h.clk.Now() - tt.elapsed
			h.s.session.LastChannel = tt.lastChannel
			if w := h.s.Window(0); w != tt.want {
				t.Fatalf("window: got %d want %d", w, tt.want)
			}
		})
	}
	h.s.session.TimedOut = true
	if w := h.s.Window(0); w != RetryWait {
		t.Fatalf("window after full timeout: got %d want %d", w, RetryWait)
	}
}

func TestRepeatCapturedAfterChannelZeroMiss(t *testing.T) {
	h := newHarness()
	h.s.session = Session{Captured: true, LastCapture: 1000, LastSeq: 6}
	// woken by the sleep scheduler; the channel 0 copy is lost
	h.clk.Advance(schedule.Target(0))
	for ch := 1; ch < radio.NumChannels; ch++ {
		ch := ch
		h.clk.At(301000+clock.Millis(ch)*500, func() { h.phy.Broadcast(ch, frame(0x1234, 7, ch)) })
	}
	f, out := h.s.Scan()
	if out != Captured {
		t.Fatalf("outcome: got %v want captured", out)
	}
	if h.s.Session().LastChannel != 1 || f.At != 301500 {
		t.Fatalf("session %+v frame at %d", h.s.Session(), f.At)
	}
	tunes := h.phy.Tunes()
	if len(tunes) != 2 || tunes[0].Channel != 0 || tunes[1].Channel != 1 {
		t.Fatalf("tunes: %+v", tunes)
	}
}

func TestFullTimeout(t *testing.T) {
	h := newHarness()
	h.s.session = Session{Captured: true, LastCapture: 1000, LastSeq: NoSeq}
	start := h.clk.Now()
	_, out := h.s.Scan()
	if out != Timeout {
		t.Fatalf("outcome: got %v want timeout", out)
	}
	if !h.s.Session().TimedOut {
		t.Fatalf("session should record the missed cycle")
	}
	if d := h.clk.Now() - start; d < 300000+1500 || d > 300000+1500+20 {
		t.Fatalf("cycle length: got %d", d)
	}
	if got := len(h.phy.Tunes()); got != 4 {
		t.Fatalf("tunes: got %d want 4", got)
	}
}

func TestDuplicateSuppressed(t *testing.T) {
	h := newHarness()
	h.s.session = Session{Captured: true, LastCapture: 1000, LastSeq: 3}
	h.phy.Tune(1, 0)
	h.phy.Broadcast(1, frame(0x1234, 3, 1))
	if _, out := h.s.Listen(1, 500); out != Timeout {
		t.Fatalf("duplicate: got %v want timeout", out)
	}
	if h.ring.Pending() {
		t.Fatalf("duplicate frame must release its slot")
	}
	if h.s.Session().LastCapture != 1000 {
		t.Fatalf("duplicate must not move the capture time")
	}
}

func TestIdentityFilter(t *testing.T) {
	h := newHarness()
	h.filter = 0x1234
	h.phy.Tune(0, 0)
	h.phy.Broadcast(0, frame(0x9999, 1, 0))
	if _, out := h.s.Listen(0, 100); out != Timeout {
		t.Fatalf("foreign transmitter: got %v want timeout", out)
	}
	h.phy.Broadcast(0, frame(0x1234, 1, 0))
	if _, out := h.s.Listen(0, 100); out != Captured {
		t.Fatalf("paired transmitter: got %v want captured", out)
	}
	if h.s.Session().LastSeq != 1 {
		t.Fatalf("last seq: got %d want 1", h.s.Session().LastSeq)
	}
}

func TestBadCRC(t *testing.T) {
	h := newHarness()
	h.s.session = Session{Captured: true, LastCapture: 1000, LastSeq: NoSeq}
	h.clk.At(301000-100, func() {
		f := frame(0x1234, 2, 0)
		f.CRCOK = false
		h.phy.Broadcast(0, f)
	})
	h.clk.At(301200, func() { h.phy.Broadcast(1, frame(0x1234, 2, 1)) })
	_, out := h.s.Scan()
	if out != Captured {
		t.Fatalf("outcome: got %v want captured", out)
	}
	if h.s.Session().LastChannel != 1 {
		t.Fatalf("capture should come from channel 1, got %d", h.s.Session().LastChannel)
	}

	h.phy.Tune(0, 0)
	f := frame(0x1234, 9, 0)
	f.CRCOK = false
	h.phy.Broadcast(0, f)
	if _, out := h.s.Listen(0, 100); out != BadCRC {
		t.Fatalf("listen: got %v want bad-crc", out)
	}
}

func TestDriftCorrectionBounded(t *testing.T) {
	h := newHarness()
	h.phy.Tune(0, 0)
	f := frame(0, 1, 0)
	f.FreqEst = 3
	h.phy.Broadcast(0, f)
	h.s.Listen(0, 10)
	if got := h.s.Offsets()[0]; got != radio.DefaultOffsets[0]+3 {
		t.Fatalf("offset: got %d want %d", got, radio.DefaultOffsets[0]+3)
	}

	h.s.offsets[1] = 120
	h.phy.Tune(1, 0)
	f = frame(0, 2, 1)
	f.FreqEst = 10
	h.phy.Broadcast(1, f)
	h.s.Listen(1, 10)
	if got := h.s.Offsets()[1]; got != 120 {
		t.Fatalf("overflowing correction applied: got %d want 120", got)
	}
	last := h.phy.Tunes()[len(h.phy.Tunes())-1]
	if last.Offset != 120 {
		t.Fatalf("tuned with offset %d want 120", last.Offset)
	}
}

func TestAbortAndInvalidChannel(t *testing.T) {
	h := newHarness()
	h.clk.At(3000, func() { h.svc.abort = true })
	if _, out := h.s.Scan(); out != Aborted {
		t.Fatalf("scan: got %v want aborted", out)
	}
	if h.s.Session().TimedOut {
		t.Fatalf("abort must not mark the cycle as timed out")
	}
	if _, out := h.s.Listen(4, 10); out != InvalidChannel {
		t.Fatalf("listen(4): got %v want invalid-channel", out)
	}
	if out := InvalidChannel; out.Err() != radio.ErrInvalidChannel {
		t.Fatalf("err mapping: %v", out.Err())
	}
}
