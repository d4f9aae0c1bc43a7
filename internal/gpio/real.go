//go:build linux

package gpio

import (
	"errors"
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// RealReader reads button lines from actual hardware using the Linux GPIO
// character device. Active-low lines are inverted by the kernel, so values
// read back are already logical.
type RealReader struct {
	chip  *gpiocdev.Chip
	lines []*gpiocdev.Line
}

// NewRealReader requests every configured line as an input on chipName.
func NewRealReader(chipName string, cfgs []LineConfig) (*RealReader, error) {
	if chipName == "" {
		chipName = DefaultChip
	}
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip %s: %w", chipName, err)
	}

	r := &RealReader{chip: chip}
	for i, c := range cfgs {
		l, err := chip.RequestLine(c.Offset, lineOptions(c)...)
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("request line %d (button %d): %w", c.Offset, i, err)
		}
		r.lines = append(r.lines, l)
	}
	return r, nil
}

func lineOptions(c LineConfig) []gpiocdev.LineReqOption {
	opts := []gpiocdev.LineReqOption{gpiocdev.AsInput}
	if c.ActiveLow {
		opts = append(opts, gpiocdev.AsActiveLow)
	}
	switch c.Pull {
	case PullUp:
		opts = append(opts, gpiocdev.WithPullUp)
	case PullDown:
		opts = append(opts, gpiocdev.WithPullDown)
	case PullNone:
		opts = append(opts, gpiocdev.WithBiasDisabled)
	}
	return opts
}

// Asserted returns the logical level of a line.
func (r *RealReader) Asserted(line int) (bool, error) {
	if err := checkLine(line, len(r.lines)); err != nil {
		return false, err
	}
	v, err := r.lines[line].Value()
	if err != nil {
		return false, fmt.Errorf("read line %d: %w", line, err)
	}
	return v == 1, nil
}

// Lines returns the number of requested lines.
func (r *RealReader) Lines() int {
	return len(r.lines)
}

// Close releases every line and the chip.
func (r *RealReader) Close() error {
	var errs []error
	for i, l := range r.lines {
		if err := l.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close line %d: %w", i, err))
		}
	}
	r.lines = nil
	if r.chip != nil {
		if err := r.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
		r.chip = nil
	}
	return errors.Join(errs...)
}
