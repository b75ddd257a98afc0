// Package queue holds decoded packets until the receiver acknowledges them.
package queue

import (
	"errors"

	"github.com/ericogr/xbridge/pkg/telemetry"
)

// Size must stay a power of two.
const Size = 64

const mask = Size - 1

// ErrOverflow reports that Push dropped the oldest packet to make room.
var ErrOverflow = errors.New("queue: overflow, oldest packet dropped")

// Queue is a fixed ring owned by the main loop. Indexes run freely and are
// masked on access, so all Size slots are usable.
type Queue struct {
	items [Size]telemetry.Packet
	read  uint32
	write uint32
}

// Push appends p. When the queue is full the oldest entry is dropped and
// ErrOverflow returned.
func (q *Queue) Push(p telemetry.Packet) error {
	var err error
	if q.Len() == Size {
		q.read++
		err = ErrOverflow
	}
	q.items[q.write&mask] = p
	q.write++
	return err
}

// Peek returns the oldest unacknowledged packet.
func (q *Queue) Peek() (telemetry.Packet, bool) {
	if q.Len() == 0 {
		return telemetry.Packet{}, false
	}
	return q.items[q.read&mask], true
}

// Pop removes the oldest packet after it was acknowledged.
func (q *Queue) Pop() {
	if q.Len() > 0 {
		q.read++
	}
}

func (q *Queue) Len() int { return int(q.write - q.read) }

// Items returns the queued packets, oldest first.
func (q *Queue) Items() []telemetry.Packet {
	out := make([]telemetry.Packet, 0, q.Len())
	for i := q.read; i != q.write; i++ {
		out = append(out, q.items[i&mask])
	}
	return out
}
