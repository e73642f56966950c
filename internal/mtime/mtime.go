// Package mtime reads a file's current last-modification time.
package mtime

import (
	"os"

	"github.com/starford/shatag/internal/apperr"
)

// Actual returns the last-modification time of path in nanoseconds since the
// Unix epoch, at the full precision the filesystem keeps. Every call queries
// the filesystem; nothing is cached.
func Actual(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, apperr.Wrap("stat", path, err)
	}
	return info.ModTime().UnixNano(), nil
}
