package verifier

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/shatag/internal/apperr"
	"github.com/starford/shatag/internal/stream"
	"github.com/starford/shatag/internal/tagstore"
	"github.com/starford/shatag/internal/testutil"
)

func storedSum(t *testing.T, path string) string {
	t.Helper()
	sum, err := tagstore.New().Checksum(path)
	require.NoError(t, err)
	v, ok := sum.Get()
	require.True(t, ok)
	return v
}

func storedTs(t *testing.T, path string) int64 {
	t.Helper()
	ts, err := tagstore.New().Timestamp(path)
	require.NoError(t, err)
	v, ok := ts.Get()
	require.True(t, ok)
	return v
}

func rawStream(t *testing.T, path, name string) []byte {
	t.Helper()
	var out []byte
	err := stream.With(path, name, stream.ReadExisting, func(h *stream.Handle) error {
		var err error
		out, err = h.ReadAll()
		return err
	})
	require.NoError(t, err)
	return out
}

func TestLifecycle(t *testing.T) {
	dir := testutil.RequireStreams(t)
	v := New(tagstore.New())

	// Empty file, first run.
	empty := testutil.WriteFile(t, dir, "empty", nil)
	res, err := v.Verify(empty)
	require.NoError(t, err)
	assert.Equal(t, Outdated, res.Outcome)
	assert.Equal(t, apperr.StatusOK, res.Outcome.ExitStatus())
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", storedSum(t, empty))

	// 100-byte file, first run.
	data := make([]byte, 100)
	for i := range data {
		data[i] = byte(i)
	}
	path := testutil.WriteFile(t, dir, "hundred", data)
	res, err = v.Verify(path)
	require.NoError(t, err)
	assert.Equal(t, Outdated, res.Outcome)
	assert.Equal(t, "bce0aff19cf5aa6a7469a30d61d04e4376e4bbf6381052ee9e7f33925c954d52", storedSum(t, path))
	assert.Equal(t, testutil.Mtime(t, path), storedTs(t, path))

	// Untouched: ok twice, nothing rewritten.
	sumBefore := rawStream(t, path, tagstore.ChecksumStream)
	tsBefore := rawStream(t, path, tagstore.TimestampStream)
	for range 2 {
		res, err = v.Verify(path)
		require.NoError(t, err)
		assert.Equal(t, Ok, res.Outcome)
	}
	assert.Equal(t, sumBefore, rawStream(t, path, tagstore.ChecksumStream))
	assert.Equal(t, tsBefore, rawStream(t, path, tagstore.TimestampStream))

	// Forced modification time, second run.
	const forced int64 = 1909669684252460189
	testutil.SetMtime(t, path, forced)
	res, err = v.Verify(path)
	require.NoError(t, err)
	assert.Equal(t, Outdated, res.Outcome)
	assert.Equal(t, forced, storedTs(t, path))
	assert.Equal(t, forced, testutil.Mtime(t, path))

	// Silent corruption: content changes, mtime restored to the stored value.
	for i := range data {
		data[i] = byte(2 * i)
	}
	require.NoError(t, os.WriteFile(path, data, 0o644))
	testutil.SetMtime(t, path, forced)

	res, err = v.Verify(path)
	require.NoError(t, err)
	assert.Equal(t, Corrupt, res.Outcome)
	assert.Equal(t, apperr.StatusCorrupt, res.Outcome.ExitStatus())
	assert.Equal(t, "bce0aff19cf5aa6a7469a30d61d04e4376e4bbf6381052ee9e7f33925c954d52", storedSum(t, path))
	assert.Equal(t, forced, storedTs(t, path))

	// Still flagged on the next run.
	res, err = v.Verify(path)
	require.NoError(t, err)
	assert.Equal(t, Corrupt, res.Outcome)
}

func TestVerify_MalformedStoredTimestamp(t *testing.T) {
	dir := testutil.RequireStreams(t)
	path := testutil.WriteFile(t, dir, "f", []byte("x"))
	err := stream.With(path, tagstore.TimestampStream, stream.CreateOrTruncate, func(h *stream.Handle) error {
		_, err := h.Write([]byte("garbage"))
		return err
	})
	require.NoError(t, err)

	_, err = New(tagstore.New()).Verify(path)
	var pe *apperr.ParseError
	assert.ErrorAs(t, err, &pe)
}

func TestVerify_MissingFile(t *testing.T) {
	dir := testutil.RequireStreams(t)

	_, err := New(tagstore.New()).Verify(dir + "/missing")
	var oe *apperr.OSError
	assert.ErrorAs(t, err, &oe)
}
