package clock

import "time"

// Clock abstracts time for the scheduler so sweeps can be tested deterministically.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in UTC.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// Fixed always returns the same instant. Test helper.
type Fixed struct {
	At time.Time
}

func (f Fixed) Now() time.Time { return f.At }
