// Package scan runs verification over several command-line paths and folds
// the per-file outcomes into one process exit status.
package scan

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/starford/shatag/internal/apperr"
	"github.com/starford/shatag/internal/storage"
	"github.com/starford/shatag/internal/verifier"
)

// Verifier classifies one file.
type Verifier interface {
	Verify(ctx context.Context, path string) (verifier.Result, error)
}

// Scanner verifies files and reports each result.
type Scanner struct {
	verifier  Verifier
	jobs      int
	recursive bool
	out       io.Writer
	errOut    io.Writer
	logger    *slog.Logger

	mu     sync.Mutex
	status int
}

// Options configure a Scanner.
type Options struct {
	Jobs      int
	Recursive bool
	Out       io.Writer
	ErrOut    io.Writer
	Logger    *slog.Logger
}

// New creates a Scanner.
func New(v Verifier, o Options) *Scanner {
	s := &Scanner{
		verifier:  v,
		jobs:      max(o.Jobs, 1),
		recursive: o.Recursive,
		out:       o.Out,
		errOut:    o.ErrOut,
		logger:    o.Logger,
	}
	if s.out == nil {
		s.out = os.Stdout
	}
	if s.errOut == nil {
		s.errOut = os.Stderr
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Run verifies every file named by paths and returns the most severe exit
// status seen. Directories are expanded only when recursive; symlinks and
// special files found while walking are skipped. Per-file failures are
// reported and folded into the status; only context cancellation aborts the
// run.
func (s *Scanner) Run(ctx context.Context, paths []string) (int, error) {
	s.status = apperr.StatusOK

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(s.jobs)

	for _, arg := range paths {
		files, err := s.expand(arg)
		if err != nil {
			s.fail(arg, err)
			continue
		}
		for _, path := range files {
			if gCtx.Err() != nil {
				break
			}
			g.Go(func() error {
				s.verify(gCtx, path)
				return nil
			})
		}
	}

	if err := g.Wait(); err != nil {
		return apperr.StatusError, err
	}
	if err := ctx.Err(); err != nil {
		return apperr.StatusError, err
	}
	return s.status, nil
}

func (s *Scanner) expand(arg string) ([]string, error) {
	info, err := os.Stat(arg)
	if err != nil {
		return nil, apperr.Wrap("stat", arg, err)
	}
	if info.Mode().IsRegular() {
		return []string{arg}, nil
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s: not a regular file", arg)
	}
	if !s.recursive {
		return nil, fmt.Errorf("%s: is a directory (use --recursive)", arg)
	}

	tree, err := storage.NewFS(arg)
	if err != nil {
		return nil, err
	}
	metas, err := tree.List("")
	if err != nil {
		return nil, err
	}
	files := make([]string, len(metas))
	for i, m := range metas {
		files[i] = filepath.Join(tree.Root(), filepath.FromSlash(m.Path))
	}
	s.logger.Debug("expanded directory",
		slog.String("path", arg),
		slog.Int("files", len(files)))
	return files, nil
}

func (s *Scanner) verify(ctx context.Context, path string) {
	res, err := s.verifier.Verify(ctx, path)
	if err != nil {
		s.fail(path, err)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	verifier.Report(s.out, s.errOut, res)
	s.status = apperr.Worst(s.status, res.Outcome.ExitStatus())
}

func (s *Scanner) fail(path string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.errOut, "Error: %s: %v\n", path, err)
	s.status = apperr.Worst(s.status, apperr.StatusError)
}
