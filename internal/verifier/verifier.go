// Package verifier classifies a file's integrity by comparing its stored
// checksum and timestamp tags against live values, rewriting the tags when
// the file changed legitimately.
package verifier

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/starford/shatag/internal/apperr"
	"github.com/starford/shatag/internal/checksum"
	"github.com/starford/shatag/internal/mtime"
	"github.com/starford/shatag/internal/tagstore"
)

// Store reads and writes stored tags.
type Store interface {
	Checksum(path string) (tagstore.Optional[string], error)
	Timestamp(path string) (tagstore.Optional[int64], error)
	Write(path, checksum string, ns int64) error
}

// HashFunc computes the content digest of a file.
type HashFunc func(path string) (string, error)

// TimestampFunc reads a file's current modification time in nanoseconds.
type TimestampFunc func(path string) (int64, error)

// Stored is the tag pair read from a file; either side may be absent.
type Stored struct {
	Checksum  tagstore.Optional[string]
	Timestamp tagstore.Optional[int64]
}

// Actual is the live checksum and timestamp of a file.
type Actual struct {
	Checksum  string
	Timestamp int64
}

// Result is the outcome of verifying one file together with the evidence
// the decision was based on.
type Result struct {
	Path    string
	Outcome Outcome
	Stored  Stored
	Actual  Actual
	// Err is the metadata write failure when Outcome is WriteFailure.
	Err error
}

// Verifier runs the classification for one file at a time.
type Verifier struct {
	store  Store
	hash   HashFunc
	mtime  TimestampFunc
	logger *slog.Logger
}

// Option configures a Verifier.
type Option func(*Verifier)

// WithHashFunc replaces the content hasher.
func WithHashFunc(fn HashFunc) Option {
	return func(v *Verifier) { v.hash = fn }
}

// WithTimestampFunc replaces the modification time source.
func WithTimestampFunc(fn TimestampFunc) Option {
	return func(v *Verifier) { v.mtime = fn }
}

// WithLogger sets the logger used for debug traces.
func WithLogger(l *slog.Logger) Option {
	return func(v *Verifier) { v.logger = l }
}

// New creates a Verifier over store. Hashing and timestamp reads default to
// checksum.File and mtime.Actual.
func New(store Store, opts ...Option) *Verifier {
	v := &Verifier{
		store:  store,
		hash:   checksum.File,
		mtime:  mtime.Actual,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify classifies path and rewrites its tags when the outcome is
// Outdated. A failed rewrite yields WriteFailure with Result.Err set; any
// other failure is returned as an error and no Result is produced.
func (v *Verifier) Verify(path string) (Result, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return Result{}, apperr.Wrap("abs", path, err)
	}
	res := Result{Path: abs}

	if res.Stored.Checksum, err = v.store.Checksum(abs); err != nil {
		return Result{}, fmt.Errorf("stored checksum: %w", err)
	}
	if res.Stored.Timestamp, err = v.store.Timestamp(abs); err != nil {
		return Result{}, fmt.Errorf("stored timestamp: %w", err)
	}
	// Timestamp first, then content: a concurrent write landing while we
	// hash shows up as a newer timestamp on the re-check.
	if res.Actual.Timestamp, err = v.mtime(abs); err != nil {
		return Result{}, fmt.Errorf("actual timestamp: %w", err)
	}
	if res.Actual.Checksum, err = v.hash(abs); err != nil {
		return Result{}, fmt.Errorf("actual checksum: %w", err)
	}

	storedTs, hasTs := res.Stored.Timestamp.Get()
	storedSum, hasSum := res.Stored.Checksum.Get()

	if hasTs && hasSum && storedTs == res.Actual.Timestamp {
		if storedSum == res.Actual.Checksum {
			res.Outcome = Ok
			return res, nil
		}
		again, err := v.mtime(abs)
		if err != nil {
			return Result{}, fmt.Errorf("actual timestamp: %w", err)
		}
		if again == storedTs {
			res.Outcome = Corrupt
			v.logger.Debug("checksum mismatch with unchanged timestamp",
				slog.String("path", abs))
			return res, nil
		}
		v.logger.Debug("file modified during verification",
			slog.String("path", abs),
			slog.Int64("timestamp", again))
		// The checksum is not recomputed. When the concurrent write finished
		// before again was read, the stored pair is stale and the next run
		// reports Corrupt until the file changes again.
		res.Actual.Timestamp = again
	}

	res.Outcome = Outdated
	if err := v.store.Write(abs, res.Actual.Checksum, res.Actual.Timestamp); err != nil {
		res.Outcome = WriteFailure
		res.Err = err
	}
	return res, nil
}
