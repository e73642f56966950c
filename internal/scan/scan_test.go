package scan

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/shatag/internal/apperr"
	"github.com/starford/shatag/internal/testutil"
	"github.com/starford/shatag/internal/verifier"
)

type fakeVerifier struct {
	mu       sync.Mutex
	outcomes map[string]verifier.Outcome
	errs     map[string]error
	seen     []string
}

func (f *fakeVerifier) Verify(_ context.Context, path string) (verifier.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, filepath.Base(path))
	if err := f.errs[filepath.Base(path)]; err != nil {
		return verifier.Result{}, err
	}
	return verifier.Result{Path: path, Outcome: f.outcomes[filepath.Base(path)]}, nil
}

func run(t *testing.T, v Verifier, o Options, paths ...string) (int, string, string) {
	t.Helper()
	var out, errOut bytes.Buffer
	o.Out, o.ErrOut = &out, &errOut
	status, err := New(v, o).Run(context.Background(), paths)
	require.NoError(t, err)
	return status, out.String(), errOut.String()
}

func TestRun_WorstStatusWins(t *testing.T) {
	dir := t.TempDir()
	a := testutil.WriteFile(t, dir, "a", nil)
	b := testutil.WriteFile(t, dir, "b", nil)
	c := testutil.WriteFile(t, dir, "c", nil)

	tests := []struct {
		name     string
		outcomes map[string]verifier.Outcome
		want     int
	}{
		{"all ok", map[string]verifier.Outcome{}, apperr.StatusOK},
		{"outdated is ok", map[string]verifier.Outcome{"b": verifier.Outdated}, apperr.StatusOK},
		{"write failure", map[string]verifier.Outcome{"a": verifier.WriteFailure}, apperr.StatusWriteFailure},
		{"corrupt beats write failure", map[string]verifier.Outcome{"a": verifier.WriteFailure, "c": verifier.Corrupt}, apperr.StatusCorrupt},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := &fakeVerifier{outcomes: tt.outcomes}
			status, _, _ := run(t, v, Options{Jobs: 2}, a, b, c)
			assert.Equal(t, tt.want, status)
		})
	}
}

func TestRun_ReportsEachFile(t *testing.T) {
	dir := t.TempDir()
	a := testutil.WriteFile(t, dir, "a", nil)
	b := testutil.WriteFile(t, dir, "b", nil)
	v := &fakeVerifier{outcomes: map[string]verifier.Outcome{"b": verifier.Corrupt}}

	status, out, errOut := run(t, v, Options{}, a, b)
	assert.Equal(t, apperr.StatusCorrupt, status)
	assert.Contains(t, out, "<ok> "+a+"\n")
	assert.Contains(t, out, "<corrupt> "+b+"\n")
	assert.Contains(t, errOut, "Error: corrupt file "+b)
}

func TestRun_ErrorsAreStatusOneButLoseToCorrupt(t *testing.T) {
	dir := t.TempDir()
	a := testutil.WriteFile(t, dir, "a", nil)
	b := testutil.WriteFile(t, dir, "b", nil)

	v := &fakeVerifier{errs: map[string]error{"a": errors.New("unreadable")}}
	status, _, errOut := run(t, v, Options{}, a, b)
	assert.Equal(t, apperr.StatusError, status)
	assert.Contains(t, errOut, "unreadable")

	v = &fakeVerifier{
		errs:     map[string]error{"a": errors.New("unreadable")},
		outcomes: map[string]verifier.Outcome{"b": verifier.Corrupt},
	}
	status, _, _ = run(t, v, Options{}, a, b)
	assert.Equal(t, apperr.StatusCorrupt, status)
}

func TestRun_MissingPath(t *testing.T) {
	v := &fakeVerifier{}
	status, _, errOut := run(t, v, Options{}, filepath.Join(t.TempDir(), "nope"))
	assert.Equal(t, apperr.StatusError, status)
	assert.NotEmpty(t, errOut)
	assert.Empty(t, v.seen)
}

func TestRun_DirectoryNeedsRecursive(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteFile(t, dir, "a", nil)
	v := &fakeVerifier{}

	status, _, errOut := run(t, v, Options{}, dir)
	assert.Equal(t, apperr.StatusError, status)
	assert.Contains(t, errOut, "is a directory")
	assert.Empty(t, v.seen)
}

func TestRun_RecursiveSkipsSymlinks(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteFile(t, dir, "a", nil)
	testutil.WriteFile(t, dir, "sub/b", nil)
	testutil.WriteFile(t, dir, "sub/deep/c", nil)
	if err := os.Symlink(filepath.Join(dir, "a"), filepath.Join(dir, "link")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}
	v := &fakeVerifier{}

	status, out, _ := run(t, v, Options{Recursive: true, Jobs: 4}, dir)
	assert.Equal(t, apperr.StatusOK, status)

	sort.Strings(v.seen)
	assert.Equal(t, []string{"a", "b", "c"}, v.seen)
	assert.Equal(t, 3, strings.Count(out, "<ok> "))
}

func TestRun_CancelledContext(t *testing.T) {
	dir := t.TempDir()
	a := testutil.WriteFile(t, dir, "a", nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out, errOut bytes.Buffer
	status, err := New(&fakeVerifier{}, Options{Out: &out, ErrOut: &errOut}).Run(ctx, []string{a})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, apperr.StatusError, status)
}
