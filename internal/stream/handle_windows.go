//go:build windows

package stream

import (
	"errors"
	"io"

	"golang.org/x/sys/windows"

	"github.com/starford/shatag/internal/apperr"
)

// Access rights and flags from winnt.h / fileapi.h.
const (
	fileReadData           = 0x0001
	fileWriteData          = 0x0002
	fileReadAttributes     = 0x0080
	fileWriteAttributes    = 0x0100
	fileFlagSequentialScan = 0x08000000
)

type osHandle struct {
	h windows.Handle
}

// Describe returns the NTFS path of stream name on path.
func Describe(path, name string) string {
	if name == Primary {
		return path
	}
	return path + ":" + name + ":$DATA"
}

func openOS(path, name string, mode Mode) (*osHandle, error) {
	target := Describe(path, name)
	p, err := windows.UTF16PtrFromString(target)
	if err != nil {
		return nil, apperr.Wrap("open", target, err)
	}

	var access, share, disposition, flags uint32
	switch mode {
	case ReadExisting:
		access = fileReadData | fileReadAttributes
		share = windows.FILE_SHARE_READ | windows.FILE_SHARE_WRITE | windows.FILE_SHARE_DELETE
		disposition = windows.OPEN_EXISTING
		flags = fileFlagSequentialScan
	default:
		access = fileWriteData | fileWriteAttributes
		disposition = windows.CREATE_ALWAYS
		flags = windows.FILE_ATTRIBUTE_NORMAL
	}

	h, err := windows.CreateFile(p, access, share, nil, disposition, flags, 0)
	if err != nil {
		switch {
		case mode == ReadExisting && (errors.Is(err, windows.ERROR_FILE_NOT_FOUND) || errors.Is(err, windows.ERROR_PATH_NOT_FOUND)):
			return nil, apperr.ErrNotFound
		case errors.Is(err, windows.ERROR_SHARING_VIOLATION):
			return nil, apperr.Wrap("open", target, apperr.ErrLocked)
		}
		return nil, apperr.Wrap("open", target, err)
	}
	return &osHandle{h: h}, nil
}

func (h *osHandle) read(p []byte) (int, error) {
	var done uint32
	if err := windows.ReadFile(h.h, p, &done, nil); err != nil {
		if errors.Is(err, windows.ERROR_HANDLE_EOF) {
			return 0, io.EOF
		}
		return 0, err
	}
	if done == 0 {
		return 0, io.EOF
	}
	return int(done), nil
}

func (h *osHandle) write(p []byte) (int, error) {
	var done uint32
	if err := windows.WriteFile(h.h, p, &done, nil); err != nil {
		return int(done), err
	}
	return int(done), nil
}

// mtime converts the FILETIME (100 ns ticks since 1601) to Unix nanoseconds.
func (h *osHandle) mtime() (int64, error) {
	var ft windows.Filetime
	if err := windows.GetFileTime(h.h, nil, nil, &ft); err != nil {
		return 0, err
	}
	return ft.Nanoseconds(), nil
}

func (h *osHandle) setMtime(ns int64) error {
	ft := windows.NsecToFiletime(ns)
	return windows.SetFileTime(h.h, nil, nil, &ft)
}

func (h *osHandle) close() error {
	return windows.CloseHandle(h.h)
}
