// Package checksum computes the SHA-256 content digests stored in file tags.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"

	"github.com/starford/shatag/internal/apperr"
	"github.com/starford/shatag/internal/stream"
)

// ChunkSize is the read size used while hashing: two 4 KiB pages.
const ChunkSize = 2 * 4096

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Reader consumes r to its end in ChunkSize reads and returns the lowercase
// hex SHA-256 digest of everything read.
func Reader(r io.Reader) (string, error) {
	h := sha256.New()
	buf := make([]byte, ChunkSize)
	for {
		n, err := r.Read(buf)
		h.Write(buf[:n])
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", err
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// File hashes the primary data stream of path. The file is opened with
// cooperative sharing so concurrent writers are not blocked; a file that
// vanishes or becomes unreadable mid-stream fails the call without retry.
func File(path string) (string, error) {
	var digest string
	err := stream.With(path, stream.Primary, stream.ReadExisting, func(h *stream.Handle) error {
		var err error
		digest, err = Reader(h)
		return err
	})
	if errors.Is(err, apperr.ErrNotFound) {
		return "", &apperr.OSError{Op: "hash", Path: path, Err: err}
	}
	if err != nil {
		return "", apperr.Wrap("hash", path, err)
	}
	return digest, nil
}
