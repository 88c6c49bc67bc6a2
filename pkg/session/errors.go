package session

import (
	"errors"
	"fmt"
)

// Queue validation errors
var (
	ErrQueueEmpty         = errors.New("queue is empty")
	ErrPositionOutOfRange = errors.New("position out of range")
	ErrNothingToClear     = errors.New("nothing to clear")
	ErrQueueTooShort      = errors.New("queue too short")
	ErrWrongVoiceChannel  = errors.New("caller is not in the bot's voice channel")
	ErrNotInVoice         = errors.New("caller is not in a voice channel")
)

// CommandValidationError is a rejected command. The session is left untouched.
type CommandValidationError struct {
	Op     string
	Reason error
	Detail string
}

func (e *CommandValidationError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %v: %s", e.Op, e.Reason, e.Detail)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Reason)
}

func (e *CommandValidationError) Unwrap() error {
	return e.Reason
}

func rejected(op string, reason error, format string, args ...interface{}) error {
	return &CommandValidationError{Op: op, Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is a command validation rejection.
func IsValidation(err error) bool {
	var cve *CommandValidationError
	return errors.As(err, &cve)
}
