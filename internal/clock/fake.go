package clock

import "sync/atomic"

// Fake is a manually driven Source for tests.
type Fake struct {
	ms atomic.Uint64
}

// NewFake creates a Fake starting at ms.
func NewFake(ms uint64) *Fake {
	f := &Fake{}
	f.ms.Store(ms)
	return f
}

// NowMs returns the current fake time.
func (f *Fake) NowMs() uint64 {
	return f.ms.Load()
}

// Set moves the clock to ms.
func (f *Fake) Set(ms uint64) {
	f.ms.Store(ms)
}

// Advance moves the clock forward by d milliseconds.
func (f *Fake) Advance(d uint64) {
	f.ms.Add(d)
}
