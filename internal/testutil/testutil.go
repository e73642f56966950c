// Package testutil provides shared test helpers for tagged files and history databases.
package testutil

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/starford/shatag/internal/history"
	"github.com/starford/shatag/internal/stream"
)

// RequireStreams returns a fresh temp directory whose filesystem supports
// secondary streams, skipping the test otherwise (tmpfs before Linux 6.6,
// for example, rejects user xattrs).
func RequireStreams(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	probe := filepath.Join(dir, ".probe")
	if err := os.WriteFile(probe, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	err := stream.With(probe, "shatag.probe", stream.CreateOrTruncate, func(h *stream.Handle) error {
		_, err := h.Write([]byte("x"))
		return err
	})
	if err != nil {
		t.Skipf("secondary streams unavailable in %s: %v", dir, err)
	}
	if err := os.Remove(probe); err != nil {
		t.Fatal(err)
	}
	return dir
}

// WriteFile creates dir/name with content and returns its path.
func WriteFile(t *testing.T, dir, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// SetMtime forces the modification (and access) time of path.
func SetMtime(t *testing.T, path string, ns int64) {
	t.Helper()
	ts := time.Unix(0, ns)
	if err := os.Chtimes(path, ts, ts); err != nil {
		t.Fatal(err)
	}
}

// Mtime returns the modification time of path in Unix nanoseconds.
func Mtime(t *testing.T, path string) int64 {
	t.Helper()
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	return info.ModTime().UnixNano()
}

// TestHistory creates a temporary SQLite history database that is automatically cleaned up.
func TestHistory(t *testing.T) *history.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "shatag-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := history.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}
