//go:build !linux

package gpio

import "errors"

// RealReader is not available on non-Linux platforms.
type RealReader struct{}

// NewRealReader returns an error on non-Linux platforms.
func NewRealReader(chipName string, cfgs []LineConfig) (*RealReader, error) {
	return nil, errors.New("gpio: not supported on this platform (requires Linux)")
}

// Asserted is not implemented on non-Linux platforms.
func (r *RealReader) Asserted(line int) (bool, error) {
	return false, errors.New("gpio: not supported")
}

// Lines returns zero on non-Linux platforms.
func (r *RealReader) Lines() int {
	return 0
}

// Close is not implemented on non-Linux platforms.
func (r *RealReader) Close() error {
	return nil
}
