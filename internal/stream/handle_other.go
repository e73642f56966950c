//go:build !linux && !windows

package stream

import "github.com/starford/shatag/internal/apperr"

type osHandle struct{}

// Describe returns a human-readable name for stream name of path.
func Describe(path, name string) string {
	if name == Primary {
		return path
	}
	return path + " [" + name + "]"
}

func openOS(_, _ string, _ Mode) (*osHandle, error) {
	return nil, apperr.ErrUnsupported
}

func (h *osHandle) read([]byte) (int, error)  { return 0, apperr.ErrUnsupported }
func (h *osHandle) write([]byte) (int, error) { return 0, apperr.ErrUnsupported }
func (h *osHandle) mtime() (int64, error)     { return 0, apperr.ErrUnsupported }
func (h *osHandle) setMtime(int64) error      { return apperr.ErrUnsupported }
func (h *osHandle) close() error              { return nil }
