package battery

import (
	"math/rand"
	"sync"
)

// Fake returns Level with a little noise, or Err when set.
type Fake struct {
	mu    sync.Mutex
	Level uint16
	Noise int
	Err   error
}

func NewFake(level uint16) *Fake { return &Fake{Level: level} }

func (f *Fake) Read() (uint16, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return 0, f.Err
	}
	if f.Noise == 0 {
		return f.Level, nil
	}
	return uint16(int(f.Level) + rand.Intn(2*f.Noise+1) - f.Noise), nil
}

func (f *Fake) Close() error { return nil }
