//go:build linux

package stream

import (
	"errors"
	"io"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/starford/shatag/internal/apperr"
)

// xattrPrefix places stream names in the unprivileged user namespace.
const xattrPrefix = "user."

type osHandle struct {
	fd   int
	attr string // empty for the primary stream
	buf  []byte // read: attribute value; write: value persisted so far
	off  int
}

// Describe returns a human-readable name for stream name of path.
func Describe(path, name string) string {
	if name == Primary {
		return path
	}
	return path + " [" + xattrPrefix + name + "]"
}

func openOS(path, name string, mode Mode) (*osHandle, error) {
	flags := unix.O_RDONLY | unix.O_CLOEXEC
	if name == Primary && mode == CreateOrTruncate {
		flags = unix.O_WRONLY | unix.O_CREAT | unix.O_TRUNC | unix.O_CLOEXEC
	}
	fd, err := openRetry(path, flags)
	if err != nil {
		if mode == ReadExisting && errors.Is(err, unix.ENOENT) {
			return nil, apperr.ErrNotFound
		}
		return nil, apperr.Wrap("open", Describe(path, name), err)
	}

	h := &osHandle{fd: fd}
	if name != Primary {
		h.attr = xattrPrefix + name
	}

	if mode == CreateOrTruncate {
		if err := unix.Flock(fd, unix.LOCK_EX|unix.LOCK_NB); err != nil {
			_ = unix.Close(fd)
			if errors.Is(err, unix.EWOULDBLOCK) {
				err = apperr.ErrLocked
			}
			return nil, apperr.Wrap("lock", Describe(path, name), err)
		}
		if h.attr != "" {
			if err := unix.Fsetxattr(fd, h.attr, []byte{}, 0); err != nil {
				_ = unix.Close(fd)
				return nil, apperr.Wrap("create", Describe(path, name), err)
			}
		}
		return h, nil
	}

	if h.attr != "" {
		val, err := fgetxattr(fd, h.attr)
		if err != nil {
			_ = unix.Close(fd)
			if errors.Is(err, unix.ENODATA) {
				return nil, apperr.ErrNotFound
			}
			return nil, apperr.Wrap("open", Describe(path, name), err)
		}
		h.buf = val
	}
	return h, nil
}

func (h *osHandle) read(p []byte) (int, error) {
	if h.attr != "" {
		if h.off >= len(h.buf) {
			return 0, io.EOF
		}
		n := copy(p, h.buf[h.off:])
		h.off += n
		return n, nil
	}
	for {
		n, err := unix.Read(h.fd, p)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return 0, err
		}
		if n == 0 {
			return 0, io.EOF
		}
		return n, nil
	}
}

func (h *osHandle) write(p []byte) (int, error) {
	if h.attr != "" {
		next := append(h.buf[:len(h.buf):len(h.buf)], p...)
		if err := unix.Fsetxattr(h.fd, h.attr, next, 0); err != nil {
			return 0, err
		}
		h.buf = next
		return len(p), nil
	}
	for {
		n, err := unix.Write(h.fd, p)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if n < 0 {
			n = 0
		}
		return n, err
	}
}

func (h *osHandle) mtime() (int64, error) {
	var st unix.Stat_t
	if err := unix.Fstat(h.fd, &st); err != nil {
		return 0, err
	}
	return st.Mtim.Nano(), nil
}

func (h *osHandle) setMtime(ns int64) error {
	ts := [2]unix.Timespec{
		{Nsec: unix.UTIME_OMIT},
		unix.NsecToTimespec(ns),
	}
	return futimens(h.fd, &ts)
}

func (h *osHandle) close() error {
	return unix.Close(h.fd)
}

func openRetry(path string, flags int) (int, error) {
	for {
		fd, err := unix.Open(path, flags, 0o666)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		return fd, err
	}
}

// fgetxattr reads a whole attribute value, retrying if it grows between
// the size probe and the read.
func fgetxattr(fd int, attr string) ([]byte, error) {
	for {
		size, err := unix.Fgetxattr(fd, attr, nil)
		if err != nil {
			return nil, err
		}
		if size == 0 {
			return []byte{}, nil
		}
		buf := make([]byte, size)
		n, err := unix.Fgetxattr(fd, attr, buf)
		if errors.Is(err, unix.ERANGE) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return buf[:n], nil
	}
}

// futimens sets timestamps on an open descriptor (utimensat with a NULL
// path), keeping full nanosecond precision.
func futimens(fd int, ts *[2]unix.Timespec) error {
	_, _, errno := unix.Syscall6(unix.SYS_UTIMENSAT, uintptr(fd), 0, uintptr(unsafe.Pointer(ts)), 0, 0, 0)
	if errno != 0 {
		return errno
	}
	return nil
}
