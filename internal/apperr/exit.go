package apperr

import (
	"errors"
	"fmt"
)

// Process exit statuses.
const (
	StatusOK           = 0
	StatusError        = 1
	StatusWriteFailure = 4
	StatusCorrupt      = 5
)

// ExitStatusError wraps an error with an explicit process exit status.
type ExitStatusError struct {
	Err    error
	Status int
}

func (e *ExitStatusError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("exit status %d", e.Status)
}

func (e *ExitStatusError) Unwrap() error {
	return e.Err
}

// WithStatus wraps err with a specific process exit status. A nil err is
// allowed: the status alone is then the message.
func WithStatus(err error, status int) error {
	return &ExitStatusError{Err: err, Status: status}
}

// ExitStatus returns the process exit status for err: 0 for nil, the carried
// status for an *ExitStatusError, 1 for everything else.
func ExitStatus(err error) int {
	if err == nil {
		return StatusOK
	}
	var se *ExitStatusError
	if errors.As(err, &se) {
		return se.Status
	}
	return StatusError
}

// Severity orders statuses for aggregation over several files:
// corrupt > write failure > error > ok.
func Severity(status int) int {
	switch status {
	case StatusCorrupt:
		return 3
	case StatusWriteFailure:
		return 2
	case StatusOK:
		return 0
	default:
		return 1
	}
}

// Worst returns the more severe of two statuses.
func Worst(a, b int) int {
	if Severity(b) > Severity(a) {
		return b
	}
	return a
}
