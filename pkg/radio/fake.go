package radio

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/ericogr/xbridge/pkg/clock"
)

// Tuning is one recorded Tune call.
type Tuning struct {
	Channel int
	Offset  int8
}

// Fake is an in-memory PHY. Frames handed to Broadcast are only heard when
// the fake is tuned to the channel they are sent on.
type Fake struct {
	mu     sync.Mutex
	ring   *RxRing
	clk    clock.Source
	tuned  int
	tunes  []Tuning
	idles  int
	closed bool
}

func NewFake(ring *RxRing, clk clock.Source) *Fake {
	return &Fake{ring: ring, clk: clk, tuned: -1}
}

func (f *Fake) Tune(channel int, offset int8) error {
	if !ValidChannel(channel) {
		return ErrInvalidChannel
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tuned = channel
	f.tunes = append(f.tunes, Tuning{Channel: channel, Offset: offset})
	return nil
}

func (f *Fake) Idle() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tuned = -1
	f.idles++
	return nil
}

func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.tuned = -1
	return nil
}

// Broadcast delivers fr as if it arrived on channel ch. It reports whether
// the frame reached the ring.
func (f *Fake) Broadcast(ch int, fr RawFrame) bool {
	f.mu.Lock()
	heard := f.tuned == ch && !f.closed
	f.mu.Unlock()
	if !heard {
		return false
	}
	fr.At = f.clk.Now()
	return f.ring.TryPublish(fr)
}

// Tunes returns a copy of every Tune call so far.
func (f *Fake) Tunes() []Tuning {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Tuning(nil), f.tunes...)
}

// Idles counts calls to Idle.
func (f *Fake) Idles() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.idles
}

// Simulator plays a transmitter against a Fake: every Period it repeats one
// packet on the four channels, ChannelGap apart.
type Simulator struct {
	PHY        *Fake
	Src        uint32
	Period     time.Duration
	ChannelGap time.Duration

	id uint8
}

// Frame builds the packet a transmitter would send on ch for logical id.
func (s *Simulator) Frame(ch int, raw, filtered uint16) RawFrame {
	return RawFrame{
		Length:   PayloadLen - 1,
		Dest:     0xFFFFFFFF,
		Src:      s.Src,
		Port:     0x3F,
		Seq:      s.id<<2 + uint8(ch),
		Raw:      raw,
		Filtered: filtered,
		Battery:  0xD7,
		RSSI:     -60,
		LQI:      0x2F,
		CRCOK:    true,
	}
}

// Run broadcasts until ctx is done.
func (s *Simulator) Run(ctx context.Context) {
	for {
		raw := uint16(rand.Intn(0x1FFF))
		filtered := uint16(rand.Intn(0x1FFF))
		for ch := 0; ch < NumChannels; ch++ {
			s.PHY.Broadcast(ch, s.Frame(ch, raw, filtered))
			if !sleepCtx(ctx, s.ChannelGap) {
				return
			}
		}
		s.id = (s.id + 1) & 0x3F
		if !sleepCtx(ctx, s.Period-NumChannels*s.ChannelGap) {
			return
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
