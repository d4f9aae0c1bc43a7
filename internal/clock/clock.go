// Package clock provides the millisecond time base consumed by the classifier
// and the periodic tick that drives the scheduler.
package clock

import (
	"context"
	"sync/atomic"
	"time"
)

// Source supplies a monotonically increasing millisecond counter since boot.
// Values must never go backward.
type Source interface {
	NowMs() uint64
}

// SysTick counts fixed-interval ticks and runs a hook after each one.
// It plays the role of the platform's periodic timer interrupt.
type SysTick struct {
	intervalMs uint64
	count      atomic.Uint64
	hook       atomic.Pointer[func()]
}

// NewSysTick creates a tick source with the given interval. Intervals below
// one millisecond are rounded up to one millisecond.
func NewSysTick(interval time.Duration) *SysTick {
	ms := uint64(interval / time.Millisecond)
	if ms == 0 {
		ms = 1
	}
	return &SysTick{intervalMs: ms}
}

// SetHook registers fn to run once per tick, after the counter advances.
// The hook runs on the ticking goroutine and must not block.
func (s *SysTick) SetHook(fn func()) {
	if fn == nil {
		s.hook.Store(nil)
		return
	}
	s.hook.Store(&fn)
}

// Interval returns the tick interval.
func (s *SysTick) Interval() time.Duration {
	return time.Duration(s.intervalMs) * time.Millisecond
}

// Tick advances the counter by one interval and runs the hook.
func (s *SysTick) Tick() {
	s.count.Add(1)
	if fn := s.hook.Load(); fn != nil {
		(*fn)()
	}
}

// Ticks returns the number of ticks since start.
func (s *SysTick) Ticks() uint64 {
	return s.count.Load()
}

// NowMs returns milliseconds since start, in tick resolution.
func (s *SysTick) NowMs() uint64 {
	return s.count.Load() * s.intervalMs
}

// Run drives Tick from a wall-clock ticker until ctx is cancelled.
func (s *SysTick) Run(ctx context.Context) {
	t := time.NewTicker(s.Interval())
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.Tick()
		}
	}
}
