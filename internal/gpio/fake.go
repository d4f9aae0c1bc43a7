package gpio

// FakeReader is a test double with settable line levels.
type FakeReader struct {
	// Levels holds the logical level of each line.
	Levels []bool

	// Reads counts calls to Asserted.
	Reads int

	// Closed tracks if Close was called
	Closed bool

	// ReadError, if set, will be returned by Asserted.
	ReadError error
}

// NewFakeReader creates a FakeReader with n deasserted lines.
func NewFakeReader(n int) *FakeReader {
	return &FakeReader{Levels: make([]bool, n)}
}

// Set changes the level of a line.
func (f *FakeReader) Set(line int, asserted bool) {
	f.Levels[line] = asserted
}

// Asserted returns the current scripted level.
func (f *FakeReader) Asserted(line int) (bool, error) {
	f.Reads++
	if f.ReadError != nil {
		return false, f.ReadError
	}
	if err := checkLine(line, len(f.Levels)); err != nil {
		return false, err
	}
	return f.Levels[line], nil
}

// Lines returns the number of lines.
func (f *FakeReader) Lines() int {
	return len(f.Levels)
}

// Close marks the reader as closed.
func (f *FakeReader) Close() error {
	f.Closed = true
	return nil
}

// Reset deasserts every line and clears counters.
func (f *FakeReader) Reset() {
	for i := range f.Levels {
		f.Levels[i] = false
	}
	f.Reads = 0
	f.Closed = false
	f.ReadError = nil
}
