package acquire

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrAllStrategiesFailed = errors.New("all stream strategies failed")
	ErrEmptyStream         = errors.New("stream ended before the first byte")
	ErrFirstByteTimeout    = errors.New("timed out waiting for the first byte")
	ErrNoCandidates        = errors.New("no candidate urls")
)

// Attempt is one strategy run against one candidate URL.
type Attempt struct {
	Strategy string
	URL      string
	Err      error
}

// AcquisitionError is returned when no strategy produced a stream for any
// candidate.
type AcquisitionError struct {
	Title    string
	Attempts []Attempt
}

func (e *AcquisitionError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%v for %q after %d attempts", ErrAllStrategiesFailed, e.Title, len(e.Attempts))
	if n := len(e.Attempts); n > 0 {
		last := e.Attempts[n-1]
		fmt.Fprintf(&b, " (last: %s: %v)", last.Strategy, last.Err)
	}
	return b.String()
}

func (e *AcquisitionError) Unwrap() error {
	return ErrAllStrategiesFailed
}
