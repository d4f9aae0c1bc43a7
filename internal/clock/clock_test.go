package clock

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSysTickCountsMilliseconds(t *testing.T) {
	s := NewSysTick(5 * time.Millisecond)

	for i := 0; i < 4; i++ {
		s.Tick()
	}

	assert.Equal(t, uint64(4), s.Ticks())
	assert.Equal(t, uint64(20), s.NowMs())
}

func TestSysTickSubMillisecondRoundsUp(t *testing.T) {
	s := NewSysTick(100 * time.Microsecond)
	assert.Equal(t, time.Millisecond, s.Interval())

	s.Tick()
	assert.Equal(t, uint64(1), s.NowMs())
}

func TestSysTickHookSeesAdvancedCounter(t *testing.T) {
	s := NewSysTick(time.Millisecond)

	var seen []uint64
	s.SetHook(func() { seen = append(seen, s.NowMs()) })

	s.Tick()
	s.Tick()
	assert.Equal(t, []uint64{1, 2}, seen)

	s.SetHook(nil)
	s.Tick()
	assert.Len(t, seen, 2)
}

func TestSysTickRunStopsOnCancel(t *testing.T) {
	s := NewSysTick(time.Millisecond)

	var hits atomic.Int64
	s.SetHook(func() { hits.Add(1) })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return hits.Load() >= 3 }, time.Second, time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Equal(t, uint64(hits.Load()), s.Ticks())
}

func TestFake(t *testing.T) {
	f := NewFake(10)
	assert.Equal(t, uint64(10), f.NowMs())

	f.Advance(5)
	assert.Equal(t, uint64(15), f.NowMs())

	f.Set(100)
	assert.Equal(t, uint64(100), f.NowMs())
}
