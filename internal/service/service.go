// Package service coordinates verification, the history log, and event
// publishing behind one entry point shared by the CLI, HTTP API, watcher,
// and MCP server.
package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/starford/shatag/internal/apperr"
	"github.com/starford/shatag/internal/history"
	"github.com/starford/shatag/internal/storage"
	"github.com/starford/shatag/internal/verifier"
)

// OutcomeError is the history/event outcome recorded when verification
// failed before producing a classification.
const OutcomeError = "error"

// Verifier classifies one file.
type Verifier interface {
	Verify(path string) (verifier.Result, error)
}

// Publisher receives one notification per verified file.
type Publisher interface {
	PublishOutcome(outcome, path string)
}

// Service coordinates verifier, history, and event operations.
type Service struct {
	verifier Verifier
	history  *history.DB      // nil when history is disabled
	events   Publisher        // nil when nobody listens
	tree     storage.Provider // nil outside serve mode
	logger   *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithHistory records every verification in db.
func WithHistory(db *history.DB) Option {
	return func(s *Service) { s.history = db }
}

// WithPublisher publishes every verification to p.
func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.events = p }
}

// WithTree confines relative-path verification to tree.
func WithTree(tree storage.Provider) Option {
	return func(s *Service) { s.tree = tree }
}

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// NewService creates a new verification service.
func NewService(v Verifier, opts ...Option) *Service {
	s := &Service{verifier: v, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Verify classifies path, records the result, and publishes it. A
// verification error is recorded and published as OutcomeError before being
// returned. History failures are logged and never change the outcome.
func (s *Service) Verify(ctx context.Context, path string) (verifier.Result, error) {
	if err := ctx.Err(); err != nil {
		return verifier.Result{}, err
	}

	res, err := s.verifier.Verify(path)
	if err != nil {
		s.logger.Warn("verification failed",
			slog.String("path", path),
			slog.String("error", err.Error()))
		s.record(history.Entry{Path: path, Outcome: OutcomeError, Error: err.Error()})
		s.publish(OutcomeError, path)
		return verifier.Result{}, err
	}

	level := slog.LevelDebug
	switch res.Outcome {
	case verifier.Corrupt:
		level = slog.LevelError
	case verifier.WriteFailure:
		level = slog.LevelWarn
	}
	s.logger.Log(ctx, level, "file verified",
		slog.String("path", res.Path),
		slog.String("outcome", res.Outcome.String()))

	s.record(EntryFor(res))
	s.publish(res.Outcome.String(), res.Path)
	return res, nil
}

// VerifyRel verifies a path relative to the configured tree.
func (s *Service) VerifyRel(ctx context.Context, rel string) (verifier.Result, error) {
	if s.tree == nil {
		return verifier.Result{}, fmt.Errorf("service: no tree configured: %w", apperr.ErrDisabled)
	}
	abs, err := s.tree.Resolve(rel)
	if err != nil {
		return verifier.Result{}, err
	}
	return s.Verify(ctx, abs)
}

// History lists recorded verifications, newest first.
func (s *Service) History(_ context.Context, f history.Filter) ([]history.Entry, error) {
	if s.history == nil {
		return nil, fmt.Errorf("service: history: %w", apperr.ErrDisabled)
	}
	return s.history.List(f)
}

// Last returns the most recent verification recorded for path.
func (s *Service) Last(_ context.Context, path string) (history.Entry, error) {
	if s.history == nil {
		return history.Entry{}, fmt.Errorf("service: history: %w", apperr.ErrDisabled)
	}
	return s.history.LastFor(path)
}

// Corrupt lists files whose most recent verification found corruption.
func (s *Service) Corrupt(_ context.Context, limit int) ([]history.Entry, error) {
	if s.history == nil {
		return nil, fmt.Errorf("service: history: %w", apperr.ErrDisabled)
	}
	return s.history.Latest(history.Filter{Outcome: verifier.Corrupt.String(), Limit: limit})
}

// Tree returns the configured tree, or nil.
func (s *Service) Tree() storage.Provider {
	return s.tree
}

func (s *Service) record(e history.Entry) {
	if s.history == nil {
		return
	}
	if _, err := s.history.Record(e); err != nil {
		s.logger.Warn("history record failed",
			slog.String("path", e.Path),
			slog.String("error", err.Error()))
	}
}

func (s *Service) publish(outcome, path string) {
	if s.events == nil {
		return
	}
	if s.tree != nil {
		if rel, err := s.tree.Rel(path); err == nil {
			path = rel
		}
	}
	s.events.PublishOutcome(outcome, path)
}

// EntryFor converts a verification result into its history entry.
func EntryFor(res verifier.Result) history.Entry {
	e := history.Entry{
		Path:            res.Path,
		Outcome:         res.Outcome.String(),
		ActualChecksum:  res.Actual.Checksum,
		ActualTimestamp: res.Actual.Timestamp,
	}
	if v, ok := res.Stored.Checksum.Get(); ok {
		e.StoredChecksum = &v
	}
	if v, ok := res.Stored.Timestamp.Get(); ok {
		e.StoredTimestamp = &v
	}
	if res.Err != nil {
		e.Error = res.Err.Error()
	}
	return e
}
