package gpio

// Levels adapts a Reader to the classifier's error-free sampling contract.
// A failed read counts as deasserted and is reported to OnError.
type Levels struct {
	r       Reader
	OnError func(line int, err error)
	errs    uint64
}

// NewLevels wraps r.
func NewLevels(r Reader, onError func(line int, err error)) *Levels {
	return &Levels{r: r, OnError: onError}
}

// Asserted implements logic.LevelReader.
func (l *Levels) Asserted(line int) bool {
	v, err := l.r.Asserted(line)
	if err != nil {
		l.errs++
		if l.OnError != nil {
			l.OnError(line, err)
		}
		return false
	}
	return v
}

// Errors returns the number of failed reads.
func (l *Levels) Errors() uint64 {
	return l.errs
}
