// Package gpio provides button line sampling with hardware abstraction.
// The real implementation uses Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

import (
	"errors"
	"fmt"
)

// Reader samples button lines.
type Reader interface {
	// Asserted returns the logical level of line index: true while the key
	// is held. Polarity is already corrected.
	Asserted(line int) (bool, error)

	// Lines returns the number of lines.
	Lines() int

	// Close releases GPIO resources.
	Close() error
}

// Pull selects the line bias.
type Pull string

const (
	PullNone Pull = "none"
	PullUp   Pull = "up"
	PullDown Pull = "down"
)

// LineConfig describes one button input.
type LineConfig struct {
	Offset    int  // line offset on the chip (BCM number on a Pi)
	ActiveLow bool // key pulls the line low when held
	Pull      Pull
}

// DefaultChip is the GPIO character device used when none is configured.
const DefaultChip = "gpiochip0"

// ErrLine is returned for line indexes outside the reader.
var ErrLine = errors.New("gpio: line index out of range")

func checkLine(line, n int) error {
	if line < 0 || line >= n {
		return fmt.Errorf("%w: %d", ErrLine, line)
	}
	return nil
}
