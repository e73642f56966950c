// Package apperr defines the error taxonomy shared by the shatag packages
// and the mapping from errors to process exit statuses.
package apperr

import (
	"errors"
	"fmt"
	"syscall"
)

var (
	// ErrNotFound reports a missing stream, file, or history record. The
	// metadata store turns a missing stream into an absent value, so it never
	// reaches callers of the store.
	ErrNotFound = errors.New("not found")
	// ErrUnsupported reports a platform without a stream back end.
	ErrUnsupported = errors.New("secondary streams not supported on this platform")
	// ErrLocked reports that another handle holds exclusive write access.
	ErrLocked = errors.New("stream is locked by another writer")
	// ErrInvalidPath reports a path that escapes the configured root or
	// does not name a regular file.
	ErrInvalidPath = errors.New("invalid path")
	// ErrDisabled reports use of a feature turned off in the configuration.
	ErrDisabled = errors.New("disabled")
)

// OSError is any platform failure while reading, writing, hashing, or
// stamping a file.
type OSError struct {
	Op   string
	Path string
	Err  error
}

func (e *OSError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *OSError) Unwrap() error {
	return e.Err
}

// Code returns the platform error number, or 0 when the cause carries none.
func (e *OSError) Code() int {
	var errno syscall.Errno
	if errors.As(e.Err, &errno) {
		return int(errno)
	}
	return 0
}

// ParseError reports malformed stored timestamp text.
type ParseError struct {
	Path string
	Text string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("malformed stored timestamp %q on %s: %v", e.Text, e.Path, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// MetadataWriteError wraps any failure inside a metadata rewrite. Step names
// the stream (or timestamp restore) that failed; earlier steps may already
// have been persisted.
type MetadataWriteError struct {
	Path string
	Step string
	Err  error
}

func (e *MetadataWriteError) Error() string {
	return fmt.Sprintf("write metadata (%s) for %s: %v", e.Step, e.Path, e.Err)
}

func (e *MetadataWriteError) Unwrap() error {
	return e.Err
}

// Wrap returns err as an *OSError unless it already is one or is one of the
// package sentinels.
func Wrap(op, path string, err error) error {
	if err == nil {
		return nil
	}
	var oe *OSError
	if errors.As(err, &oe) || errors.Is(err, ErrNotFound) || errors.Is(err, ErrUnsupported) {
		return err
	}
	return &OSError{Op: op, Path: path, Err: err}
}
