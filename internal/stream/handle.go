// Package stream opens named secondary data streams attached to a file and
// exposes read, write, and last-modification timestamp operations against a
// single open handle.
//
// On NTFS a stream is an alternate data stream (P:name:$DATA). On Linux it is
// the user extended attribute user.name, and the handle is the primary
// file's descriptor. The empty name denotes the primary data stream.
package stream

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/starford/shatag/internal/apperr"
)

// Primary is the stream name of the primary data stream.
const Primary = ""

// Mode selects how a stream is opened.
type Mode int

const (
	// ReadExisting opens an existing stream for reading with cooperative
	// sharing: concurrent readers, writers, and deleters are not blocked.
	ReadExisting Mode = iota
	// CreateOrTruncate creates the stream, or empties an existing one, and
	// holds exclusive access until the handle is closed.
	CreateOrTruncate
)

func (m Mode) String() string {
	switch m {
	case ReadExisting:
		return "read"
	case CreateOrTruncate:
		return "write"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// readChunkSize is the buffer size used by ReadAll.
const readChunkSize = 4096

// Handle is an open stream. It owns the underlying OS handle exclusively and
// never exposes it.
type Handle struct {
	path   string // absolute primary file path
	name   string
	mode   Mode
	os     *osHandle
	closed bool
}

// Open acquires a handle to stream name of the file at path. A relative path
// is made absolute first. Opening a missing stream with ReadExisting fails
// with apperr.ErrNotFound; other failures are *apperr.OSError.
func Open(path, name string, mode Mode) (*Handle, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, apperr.Wrap("abs", path, err)
	}
	if mode != ReadExisting && mode != CreateOrTruncate {
		return nil, fmt.Errorf("stream: unknown open mode %v", mode)
	}
	h, err := openOS(abs, name, mode)
	if err != nil {
		return nil, err
	}
	return &Handle{path: abs, name: name, mode: mode, os: h}, nil
}

// With opens a stream, runs fn against it, and closes the handle on every
// exit path. A close failure is reported alongside any error from fn.
func With(path, name string, mode Mode, fn func(h *Handle) error) (err error) {
	h, err := Open(path, name, mode)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := h.Close(); cerr != nil {
			err = errors.Join(err, cerr)
		}
	}()
	return fn(h)
}

// Path returns the absolute primary file path.
func (h *Handle) Path() string { return h.path }

// Name returns the stream name.
func (h *Handle) Name() string { return h.name }

// Read reads the next chunk of stream content. It returns io.EOF at the end
// of the stream. The sequence cannot be restarted.
func (h *Handle) Read(p []byte) (int, error) {
	if h.closed {
		return 0, h.errClosed("read")
	}
	if len(p) == 0 {
		return 0, nil
	}
	n, err := h.os.read(p)
	if err != nil && !errors.Is(err, io.EOF) {
		return n, apperr.Wrap("read", h.describe(), err)
	}
	return n, err
}

// ReadAll reads the stream to its end.
func (h *Handle) ReadAll() ([]byte, error) {
	var out []byte
	buf := make([]byte, readChunkSize)
	for {
		n, err := h.Read(buf)
		out = append(out, buf[:n]...)
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
	}
}

// Write writes all of p, looping while the OS accepts fewer bytes than
// requested.
func (h *Handle) Write(p []byte) (int, error) {
	if h.closed {
		return 0, h.errClosed("write")
	}
	if h.mode != CreateOrTruncate {
		return 0, apperr.Wrap("write", h.describe(), errors.New("handle opened read-only"))
	}
	written := 0
	for written < len(p) {
		n, err := h.os.write(p[written:])
		written += n
		if err != nil {
			return written, apperr.Wrap("write", h.describe(), err)
		}
		if n == 0 {
			return written, apperr.Wrap("write", h.describe(), io.ErrShortWrite)
		}
	}
	return written, nil
}

// Timestamp returns the file-level last-modification time visible through
// this handle, in nanoseconds since the Unix epoch.
func (h *Handle) Timestamp() (int64, error) {
	if h.closed {
		return 0, h.errClosed("get timestamp")
	}
	ns, err := h.os.mtime()
	if err != nil {
		return 0, apperr.Wrap("get timestamp", h.describe(), err)
	}
	return ns, nil
}

// SetTimestamp sets the file-level last-modification time through this
// handle. ns counts nanoseconds since the Unix epoch; the platform may round
// it to its own granularity.
func (h *Handle) SetTimestamp(ns int64) error {
	if h.closed {
		return h.errClosed("set timestamp")
	}
	if err := h.os.setMtime(ns); err != nil {
		return apperr.Wrap("set timestamp", h.describe(), err)
	}
	return nil
}

// Close releases the handle. Only the first call does any work.
func (h *Handle) Close() error {
	if h.closed {
		return nil
	}
	h.closed = true
	if err := h.os.close(); err != nil {
		return apperr.Wrap("close", h.describe(), err)
	}
	return nil
}

func (h *Handle) describe() string {
	return Describe(h.path, h.name)
}

func (h *Handle) errClosed(op string) error {
	return apperr.Wrap(op, h.describe(), errors.New("handle already closed"))
}
