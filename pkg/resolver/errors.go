package resolver

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyPlaylist         = errors.New("playlist has no playable entries")
	ErrInfoUnavailable       = errors.New("media info unavailable")
	ErrNoResolvableCandidate = errors.New("no search result could be resolved")
)

// ResolutionError reports why a query could not be turned into queue items.
// Reason is one of the sentinels above; Cause is the last provider error.
type ResolutionError struct {
	Query  string
	Reason error
	Cause  error
}

func (e *ResolutionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("resolve %q: %v: %v", e.Query, e.Reason, e.Cause)
	}
	return fmt.Sprintf("resolve %q: %v", e.Query, e.Reason)
}

func (e *ResolutionError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Reason}
	}
	return []error{e.Reason, e.Cause}
}
