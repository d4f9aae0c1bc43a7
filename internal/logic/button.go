package logic

// Button tracks classification state for a single physical key.
type Button struct {
	state       State
	clickCount  uint8
	pressTime   uint64
	releaseTime uint64
}

// State returns the current state.
func (b *Button) State() State {
	return b.state
}

// ClickCount returns the number of unresolved short releases (0 or 1).
func (b *Button) ClickCount() int {
	return int(b.clickCount)
}

// Step advances the state machine with one sample of the asserted level taken
// at now (milliseconds). It returns at most one event kind.
//
// A short press is only reported once the double-click window has elapsed
// without a second release, so it can still be upgraded to a double press.
func (b *Button) Step(asserted bool, now uint64, t Timing) Kind {
	debounce := uint64(t.Debounce.Milliseconds())
	long := uint64(t.Long.Milliseconds())
	gap := uint64(t.DoubleGap.Milliseconds())

	switch b.state {
	case StateReleased:
		// Resolve a pending short press before accepting a new press.
		if b.clickCount == 1 && now-b.releaseTime > gap {
			b.clickCount = 0
			return KindShort
		}
		if asserted {
			b.pressTime = now
			b.state = StateConfirming
		}

	case StateConfirming:
		if !asserted {
			// Bounce
			b.state = StateReleased
			return KindNone
		}
		if now-b.pressTime >= debounce {
			// Long-press timer starts from the debounced edge.
			b.pressTime = now
			b.state = StatePressed
		}

	case StatePressed:
		if asserted {
			if now-b.pressTime >= long {
				b.state = StateLongPressed
			}
			return KindNone
		}

		b.state = StateReleased
		b.clickCount++
		if b.clickCount == 1 {
			b.releaseTime = now
			return KindNone
		}
		if now-b.releaseTime <= gap {
			b.clickCount = 0
			return KindDouble
		}
		// Too late for a double: this release starts a new cycle.
		b.clickCount = 1
		b.releaseTime = now

	case StateLongPressed:
		if !asserted {
			b.state = StateReleased
			b.clickCount = 0
			return KindLong
		}

	default:
		b.state = StateReleased
		b.clickCount = 0
	}

	return KindNone
}

// Reset returns the button to its initial state.
func (b *Button) Reset() {
	*b = Button{}
}
