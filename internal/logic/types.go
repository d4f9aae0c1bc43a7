// Package logic contains the pure button classification logic.
// This package has NO external dependencies (no GPIO, MQTT, OS, or time.Sleep).
// Time is always injectable as a millisecond counter.
package logic

import (
	"errors"
	"time"
)

// State is the classifier state of a single button.
type State uint8

const (
	StateReleased State = iota
	StateConfirming
	StatePressed
	StateLongPressed
)

func (s State) String() string {
	switch s {
	case StateReleased:
		return "RELEASED"
	case StateConfirming:
		return "CONFIRMING"
	case StatePressed:
		return "PRESSED"
	case StateLongPressed:
		return "LONG_PRESSED"
	}
	return "UNKNOWN"
}

// Kind is the class of a classified event.
type Kind uint8

const (
	KindNone Kind = iota
	KindShort
	KindDouble
	KindLong
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "NONE"
	case KindShort:
		return "SHORT_PRESS"
	case KindDouble:
		return "DOUBLE_PRESS"
	case KindLong:
		return "LONG_PRESS"
	case KindError:
		return "ERROR"
	}
	return "UNKNOWN"
}

// Event is a classified interaction on one button.
// Button is meaningless for KindNone and KindError.
type Event struct {
	Kind   Kind
	Button int
}

// IsNone reports whether the event carries nothing.
func (e Event) IsNone() bool {
	return e.Kind == KindNone
}

// Timing holds the classifier thresholds.
type Timing struct {
	// Minimum stable asserted time before a press is accepted.
	Debounce time.Duration
	// Hold time after debounce that turns a press into a long press.
	Long time.Duration
	// Maximum gap between two releases merged into a double press.
	DoubleGap time.Duration
}

// DefaultTiming returns the standard thresholds.
func DefaultTiming() Timing {
	return Timing{
		Debounce:  20 * time.Millisecond,
		Long:      800 * time.Millisecond,
		DoubleGap: 300 * time.Millisecond,
	}
}

var (
	ErrNoButtons = errors.New("logic: at least one button is required")
	ErrTiming    = errors.New("logic: invalid timing")
)

// Validate checks that thresholds are usable. The classifier works in whole
// milliseconds, so each threshold must be at least 1ms.
func (t Timing) Validate() error {
	if t.Debounce < time.Millisecond || t.Long < time.Millisecond || t.DoubleGap < time.Millisecond {
		return ErrTiming
	}
	if t.Debounce.Milliseconds() >= t.Long.Milliseconds() {
		return ErrTiming
	}
	return nil
}

// EventCounts tracks the number of each event kind since startup.
type EventCounts struct {
	Short  int
	Double int
	Long   int
}

// Total returns the sum of all counts.
func (c EventCounts) Total() int {
	return c.Short + c.Double + c.Long
}

func (c *EventCounts) add(k Kind) {
	switch k {
	case KindShort:
		c.Short++
	case KindDouble:
		c.Double++
	case KindLong:
		c.Long++
	}
}
