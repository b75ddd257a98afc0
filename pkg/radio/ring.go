package radio

import "sync/atomic"

// RingSlots is the number of slots in the receive handoff ring. One slot is
// always kept free so that full and empty states stay distinguishable.
const RingSlots = 3

// RxRing hands captured frames from the receive goroutine to the main loop.
// The producer index is written only by TryPublish and the consumer index
// only by Release, so no lock is needed.
type RxRing struct {
	slots   [RingSlots]RawFrame
	head    atomic.Uint32 // producer
	tail    atomic.Uint32 // consumer
	dropped atomic.Uint32
}

// TryPublish stores f unless the ring is full, in which case f is dropped
// and the frames already queued are preserved. Producer side only.
func (r *RxRing) TryPublish(f RawFrame) bool {
	h := r.head.Load()
	next := (h + 1) % RingSlots
	if next == r.tail.Load() {
		r.dropped.Add(1)
		return false
	}
	r.slots[h] = f
	r.head.Store(next)
	return true
}

// Peek returns the oldest unreleased frame. Consumer side only.
func (r *RxRing) Peek() (RawFrame, bool) {
	t := r.tail.Load()
	if t == r.head.Load() {
		return RawFrame{}, false
	}
	return r.slots[t], true
}

// Pending reports whether a frame is waiting.
func (r *RxRing) Pending() bool { return r.tail.Load() != r.head.Load() }

// Release hands the oldest slot back to the producer. Consumer side only.
func (r *RxRing) Release() {
	t := r.tail.Load()
	if t == r.head.Load() {
		return
	}
	r.tail.Store((t + 1) % RingSlots)
}

// Flush releases every pending frame.
func (r *RxRing) Flush() {
	for r.Pending() {
		r.Release()
	}
}

// Dropped is the number of frames discarded because the ring was full.
func (r *RxRing) Dropped() uint32 { return r.dropped.Load() }
