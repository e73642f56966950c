package verifier

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/shatag/internal/apperr"
	"github.com/starford/shatag/internal/tagstore"
)

type write struct {
	path     string
	checksum string
	ns       int64
}

type fakeStore struct {
	sum      tagstore.Optional[string]
	ts       tagstore.Optional[int64]
	sumErr   error
	tsErr    error
	writeErr error
	writes   []write
}

func (f *fakeStore) Checksum(string) (tagstore.Optional[string], error) { return f.sum, f.sumErr }
func (f *fakeStore) Timestamp(string) (tagstore.Optional[int64], error) { return f.ts, f.tsErr }

func (f *fakeStore) Write(path, checksum string, ns int64) error {
	f.writes = append(f.writes, write{path, checksum, ns})
	return f.writeErr
}

// timestamps returns successive values from seq, repeating the last one.
func timestamps(seq ...int64) (TimestampFunc, *int) {
	calls := 0
	return func(string) (int64, error) {
		i := min(calls, len(seq)-1)
		calls++
		return seq[i], nil
	}, &calls
}

func hashOf(sum string) HashFunc {
	return func(string) (string, error) { return sum, nil }
}

func newTest(store *fakeStore, sum string, ts ...int64) (*Verifier, *int) {
	fn, calls := timestamps(ts...)
	return New(store, WithHashFunc(hashOf(sum)), WithTimestampFunc(fn)), calls
}

func TestVerify_Untagged(t *testing.T) {
	store := &fakeStore{}
	v, _ := newTest(store, "aaaa", 100)

	res, err := v.Verify("/data/f")
	require.NoError(t, err)
	assert.Equal(t, Outdated, res.Outcome)
	assert.Equal(t, []write{{"/data/f", "aaaa", 100}}, store.writes)
	assert.Equal(t, Actual{Checksum: "aaaa", Timestamp: 100}, res.Actual)
	assert.False(t, res.Stored.Checksum.Present())
}

func TestVerify_Ok(t *testing.T) {
	store := &fakeStore{sum: tagstore.Some("aaaa"), ts: tagstore.Some(int64(100))}
	v, calls := newTest(store, "aaaa", 100)

	res, err := v.Verify("/data/f")
	require.NoError(t, err)
	assert.Equal(t, Ok, res.Outcome)
	assert.Empty(t, store.writes)
	assert.Equal(t, 1, *calls)
}

func TestVerify_TimestampChanged(t *testing.T) {
	store := &fakeStore{sum: tagstore.Some("aaaa"), ts: tagstore.Some(int64(100))}
	v, _ := newTest(store, "bbbb", 200)

	res, err := v.Verify("/data/f")
	require.NoError(t, err)
	assert.Equal(t, Outdated, res.Outcome)
	assert.Equal(t, []write{{"/data/f", "bbbb", 200}}, store.writes)
}

func TestVerify_TimestampChangedSameContent(t *testing.T) {
	store := &fakeStore{sum: tagstore.Some("aaaa"), ts: tagstore.Some(int64(100))}
	v, _ := newTest(store, "aaaa", 300)

	res, err := v.Verify("/data/f")
	require.NoError(t, err)
	assert.Equal(t, Outdated, res.Outcome)
	assert.Equal(t, []write{{"/data/f", "aaaa", 300}}, store.writes)
}

func TestVerify_Corrupt(t *testing.T) {
	store := &fakeStore{sum: tagstore.Some("aaaa"), ts: tagstore.Some(int64(100))}
	v, calls := newTest(store, "bbbb", 100, 100)

	res, err := v.Verify("/data/f")
	require.NoError(t, err)
	assert.Equal(t, Corrupt, res.Outcome)
	assert.Empty(t, store.writes, "corruption must never be healed")
	assert.Equal(t, 2, *calls)
	assert.Equal(t, apperr.StatusCorrupt, res.Outcome.ExitStatus())
}

func TestVerify_ConcurrentModificationDowngrades(t *testing.T) {
	store := &fakeStore{sum: tagstore.Some("aaaa"), ts: tagstore.Some(int64(100))}
	v, calls := newTest(store, "bbbb", 100, 150)

	res, err := v.Verify("/data/f")
	require.NoError(t, err)
	assert.Equal(t, Outdated, res.Outcome)
	assert.Equal(t, int64(150), res.Actual.Timestamp)
	assert.Equal(t, []write{{"/data/f", "bbbb", 150}}, store.writes)
	assert.Equal(t, 2, *calls)
}

func TestVerify_DowngradeKeepsEarlierChecksum(t *testing.T) {
	// The concurrent writer produced "cccc" before the second mtime read;
	// the record still pairs the earlier hash with the newer timestamp.
	store := &fakeStore{sum: tagstore.Some("aaaa"), ts: tagstore.Some(int64(100))}
	v, _ := newTest(store, "bbbb", 100, 150)
	_, err := v.Verify("/data/f")
	require.NoError(t, err)
	require.Len(t, store.writes, 1)

	next := &fakeStore{sum: tagstore.Some(store.writes[0].checksum), ts: tagstore.Some(store.writes[0].ns)}
	v, _ = newTest(next, "cccc", 150)
	res, err := v.Verify("/data/f")
	require.NoError(t, err)
	assert.Equal(t, Corrupt, res.Outcome)
	assert.Empty(t, next.writes)
}

func TestVerify_PartialRecordIsOutdated(t *testing.T) {
	tests := []struct {
		name  string
		store *fakeStore
	}{
		{"checksum only", &fakeStore{sum: tagstore.Some("aaaa")}},
		{"timestamp only", &fakeStore{ts: tagstore.Some(int64(100))}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, _ := newTest(tt.store, "aaaa", 100)
			res, err := v.Verify("/data/f")
			require.NoError(t, err)
			assert.Equal(t, Outdated, res.Outcome)
			assert.Len(t, tt.store.writes, 1)
		})
	}
}

func TestVerify_WriteFailure(t *testing.T) {
	boom := &apperr.MetadataWriteError{Path: "/data/f", Step: "shatag.ts", Err: errors.New("disk full")}
	store := &fakeStore{writeErr: boom}
	v, _ := newTest(store, "aaaa", 100)

	res, err := v.Verify("/data/f")
	require.NoError(t, err)
	assert.Equal(t, WriteFailure, res.Outcome)
	assert.ErrorIs(t, res.Err, boom)
	assert.Equal(t, apperr.StatusWriteFailure, res.Outcome.ExitStatus())
}

func TestVerify_DowngradeThenWriteFailure(t *testing.T) {
	store := &fakeStore{
		sum:      tagstore.Some("aaaa"),
		ts:       tagstore.Some(int64(100)),
		writeErr: errors.New("nope"),
	}
	v, _ := newTest(store, "bbbb", 100, 150)

	res, err := v.Verify("/data/f")
	require.NoError(t, err)
	assert.Equal(t, WriteFailure, res.Outcome)
}

func TestVerify_PropagatesErrors(t *testing.T) {
	parseErr := &apperr.ParseError{Path: "/data/f", Text: "x", Err: errors.New("bad")}
	hashErr := &apperr.OSError{Op: "hash", Path: "/data/f", Err: errors.New("gone")}

	t.Run("stored timestamp", func(t *testing.T) {
		store := &fakeStore{tsErr: parseErr}
		v, _ := newTest(store, "aaaa", 100)
		_, err := v.Verify("/data/f")
		assert.ErrorIs(t, err, parseErr)
		assert.Empty(t, store.writes)
	})

	t.Run("hash", func(t *testing.T) {
		store := &fakeStore{}
		fn, _ := timestamps(100)
		v := New(store,
			WithTimestampFunc(fn),
			WithHashFunc(func(string) (string, error) { return "", hashErr }))
		_, err := v.Verify("/data/f")
		assert.ErrorIs(t, err, hashErr)
		assert.Empty(t, store.writes)
	})

	t.Run("re-check", func(t *testing.T) {
		store := &fakeStore{sum: tagstore.Some("aaaa"), ts: tagstore.Some(int64(100))}
		calls := 0
		v := New(store,
			WithHashFunc(hashOf("bbbb")),
			WithTimestampFunc(func(string) (int64, error) {
				calls++
				if calls > 1 {
					return 0, hashErr
				}
				return 100, nil
			}))
		_, err := v.Verify("/data/f")
		assert.ErrorIs(t, err, hashErr)
		assert.Empty(t, store.writes)
	})
}

func TestOutcome(t *testing.T) {
	for _, o := range []Outcome{Ok, Outdated, Corrupt, WriteFailure} {
		got, err := ParseOutcome(o.String())
		require.NoError(t, err)
		assert.Equal(t, o, got)
	}
	_, err := ParseOutcome("fine")
	assert.Error(t, err)
	assert.Equal(t, "outcome(9)", Outcome(9).String())
	assert.Equal(t, apperr.StatusOK, Outdated.ExitStatus())
}
