// Package tagstore reads and writes the checksum and timestamp tags kept in
// a file's secondary streams.
package tagstore

import (
	"errors"
	"strings"

	"github.com/starford/shatag/internal/apperr"
	"github.com/starford/shatag/internal/stream"
)

// Stream names. On NTFS they become P:shatag.sha256:$DATA and
// P:shatag.ts:$DATA; on Linux user.shatag.sha256 and user.shatag.ts.
const (
	ChecksumStream  = "shatag.sha256"
	TimestampStream = "shatag.ts"
)

// StepRestore names the timestamp restore step of a failed Write.
const StepRestore = "restore timestamp"

// Store is the metadata store.
type Store struct {
	checksumStream  string
	timestampStream string
}

// New returns a Store using the standard stream names.
func New() *Store {
	return &Store{checksumStream: ChecksumStream, timestampStream: TimestampStream}
}

// Checksum returns the stored checksum of path, lower-cased, or None when
// the checksum stream does not exist.
func (s *Store) Checksum(path string) (Optional[string], error) {
	text, ok, err := s.read(path, s.checksumStream)
	if err != nil || !ok {
		return None[string](), err
	}
	return Some(strings.ToLower(text)), nil
}

// Timestamp returns the stored timestamp of path, or None when the
// timestamp stream does not exist. Malformed text is an *apperr.ParseError.
func (s *Store) Timestamp(path string) (Optional[int64], error) {
	text, ok, err := s.read(path, s.timestampStream)
	if err != nil || !ok {
		return None[int64](), err
	}
	ns, err := ParseTimestamp(text)
	if err != nil {
		return None[int64](), &apperr.ParseError{Path: path, Text: text, Err: err}
	}
	return Some(ns), nil
}

// Write stores checksum and ns for path, then restores the file's
// modification time to ns through the still-open timestamp stream handle.
// The first failing step aborts the rest; earlier steps stay persisted.
// Any failure is an *apperr.MetadataWriteError.
func (s *Store) Write(path, checksum string, ns int64) error {
	err := stream.With(path, s.checksumStream, stream.CreateOrTruncate, func(h *stream.Handle) error {
		_, err := h.Write([]byte(checksum))
		return err
	})
	if err != nil {
		return &apperr.MetadataWriteError{Path: path, Step: s.checksumStream, Err: err}
	}

	step := s.timestampStream
	err = stream.With(path, s.timestampStream, stream.CreateOrTruncate, func(h *stream.Handle) error {
		if _, err := h.Write([]byte(FormatTimestamp(ns))); err != nil {
			return err
		}
		step = StepRestore
		return h.SetTimestamp(ns)
	})
	if err != nil {
		return &apperr.MetadataWriteError{Path: path, Step: step, Err: err}
	}
	return nil
}

func (s *Store) read(path, name string) (string, bool, error) {
	var data []byte
	err := stream.With(path, name, stream.ReadExisting, func(h *stream.Handle) error {
		var err error
		data, err = h.ReadAll()
		return err
	})
	if errors.Is(err, apperr.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, apperr.Wrap("read", stream.Describe(path, name), err)
	}
	return strings.TrimSpace(string(data)), true, nil
}
