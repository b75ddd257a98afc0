package output

import "github.com/ericogr/xbridge/pkg/telemetry"

// Output mirrors accepted packets to a side channel. Mirrors never gate
// delivery to the paired receiver.
type Output interface {
	Publish([]telemetry.Packet) error
	Close() error
}

// helper constructors are in subpackages
