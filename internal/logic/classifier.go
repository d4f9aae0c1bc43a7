package logic

// LevelReader samples the asserted level of an input line.
// Polarity is already corrected: true means the key is held.
type LevelReader interface {
	Asserted(line int) bool
}

// LevelFunc adapts a function to LevelReader.
type LevelFunc func(line int) bool

func (f LevelFunc) Asserted(line int) bool { return f(line) }

// Clock supplies monotonic milliseconds since boot.
type Clock interface {
	NowMs() uint64
}

// Classifier classifies press patterns for a fixed set of buttons.
// Button i is sampled from line i of the LevelReader.
// Not safe for concurrent use; call it from a single goroutine.
type Classifier struct {
	timing  Timing
	buttons []Button
	counts  []EventCounts
	levels  LevelReader
	clock   Clock
}

// NewClassifier creates a classifier for n buttons.
func NewClassifier(n int, levels LevelReader, clock Clock, timing Timing) (*Classifier, error) {
	if n <= 0 {
		return nil, ErrNoButtons
	}
	if levels == nil || clock == nil {
		return nil, errNilDependency
	}
	if err := timing.Validate(); err != nil {
		return nil, err
	}
	return &Classifier{
		timing:  timing,
		buttons: make([]Button, n),
		counts:  make([]EventCounts, n),
		levels:  levels,
		clock:   clock,
	}, nil
}

// Len returns the number of buttons.
func (c *Classifier) Len() int {
	return len(c.buttons)
}

// Timing returns the active thresholds.
func (c *Classifier) Timing() Timing {
	return c.timing
}

// SetTiming replaces the thresholds. Button state is kept.
func (c *Classifier) SetTiming(t Timing) error {
	if err := t.Validate(); err != nil {
		return err
	}
	c.timing = t
	return nil
}

// Poll samples button index once and returns the resulting event.
// An out-of-range index yields a KindError event.
func (c *Classifier) Poll(index int) Event {
	if index < 0 || index >= len(c.buttons) {
		return Event{Kind: KindError}
	}

	asserted := c.levels.Asserted(index)
	now := c.clock.NowMs()

	k := c.buttons[index].Step(asserted, now, c.timing)
	if k == KindNone {
		return Event{}
	}
	c.counts[index].add(k)
	return Event{Kind: k, Button: index}
}

// Scan polls buttons in index order and returns the first event found.
// Buttons after the reporting one are not polled in this call.
func (c *Classifier) Scan() Event {
	for i := range c.buttons {
		if e := c.Poll(i); !e.IsNone() {
			return e
		}
	}
	return Event{}
}

// State returns the state of button index.
func (c *Classifier) State(index int) (State, bool) {
	if index < 0 || index >= len(c.buttons) {
		return StateReleased, false
	}
	return c.buttons[index].state, true
}

// Counts returns the events reported for button index since startup.
func (c *Classifier) Counts(index int) EventCounts {
	if index < 0 || index >= len(c.counts) {
		return EventCounts{}
	}
	return c.counts[index]
}
