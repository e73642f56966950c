// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/shatag/internal/api"
	"github.com/starford/shatag/internal/apperr"
	"github.com/starford/shatag/internal/history"
	"github.com/starford/shatag/internal/mcpserver"
	"github.com/starford/shatag/internal/scan"
	"github.com/starford/shatag/internal/service"
	"github.com/starford/shatag/internal/sse"
	"github.com/starford/shatag/internal/storage"
	"github.com/starford/shatag/internal/tagstore"
	"github.com/starford/shatag/internal/verifier"
	"github.com/starford/shatag/internal/watch"
)

// HistoryQuery selects the entries printed by History.
type HistoryQuery struct {
	Path    string
	Outcome string
	Limit   int
	// Corrupt lists files whose latest verification was corrupt instead of
	// the raw log.
	Corrupt bool
}

func newApplication(opts []Option) (*application, error) {
	app := &application{version: "dev", stdout: os.Stdout, stderr: os.Stderr}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return app, nil
}

// logger builds the process logger on stderr. Stdout is reserved for report
// lines and the MCP transport.
func (a *application) logger() *slog.Logger {
	hopts := &slog.HandlerOptions{Level: a.config.App.LogLevel}
	var h slog.Handler = slog.NewTextHandler(a.stderr, hopts)
	if a.config.App.LogFormat == LogFormatJSON {
		h = slog.NewJSONHandler(a.stderr, hopts)
	}
	logger := slog.New(h)
	slog.SetDefault(logger)
	return logger
}

// newService wires the verifier into a service, adding history when enabled.
// The returned cleanup closes the history DB.
func (a *application) newService(logger *slog.Logger, extra ...service.Option) (*service.Service, func(), error) {
	v := verifier.New(tagstore.New(), verifier.WithLogger(logger))
	opts := append([]service.Option{service.WithLogger(logger)}, extra...)
	cleanup := func() {}

	if a.config.History.Enabled {
		db, err := history.Open(a.config.History.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("init history: %w", err)
		}
		opts = append(opts, service.WithHistory(db))
		cleanup = func() {
			if err := db.Close(); err != nil {
				logger.Warn("history close failed", slog.String("error", err.Error()))
			}
		}
	}
	return service.NewService(v, opts...), cleanup, nil
}

// Check verifies every path and returns an error carrying the most severe
// exit status when any file was not fine.
func Check(ctx context.Context, paths []string, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config
	logger := app.logger()

	svc, cleanup, err := app.newService(logger)
	if err != nil {
		return err
	}
	defer cleanup()

	status, err := scan.New(svc, scan.Options{
		Jobs:      cfg.Verify.Jobs,
		Recursive: cfg.Verify.Recursive,
		Out:       app.stdout,
		ErrOut:    app.stderr,
		Logger:    logger,
	}).Run(ctx, paths)
	if err != nil {
		return apperr.WithStatus(err, status)
	}
	if status != apperr.StatusOK {
		return apperr.WithStatus(nil, status)
	}
	return nil
}

// Watch verifies files under roots whenever their writes settle, printing a
// report for each, until ctx is cancelled or a shutdown signal arrives.
func Watch(ctx context.Context, roots []string, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config
	logger := app.logger()

	if len(roots) == 0 {
		roots = cfg.Watch.Roots
	}
	if len(roots) == 0 {
		return fmt.Errorf("watch: no directories given")
	}

	svc, cleanup, err := app.newService(logger)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return watch.Watch(ctx, roots, cfg.Watch.Debounce, logger, func(ctx context.Context, path string) {
		res, err := svc.Verify(ctx, path)
		if err != nil {
			fmt.Fprintf(app.stderr, "Error: %s: %v\n", path, err)
			return
		}
		verifier.Report(app.stdout, app.stderr, res)
	})
}

// Serve starts the HTTP API and the watcher over the served root.
func Serve(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config
	logger := app.logger()

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.Serve.HTTP.Address()),
		slog.String("root", cfg.Serve.Root),
		slog.Bool("history", cfg.History.Enabled),
		slog.String("log_level", cfg.App.LogLevel.String()))

	tree, err := storage.NewFS(cfg.Serve.Root)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}

	// SSE broker.
	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	svc, cleanup, err := app.newService(logger, service.WithTree(tree), service.WithPublisher(broker))
	if err != nil {
		return err
	}
	defer cleanup()

	apiRouter := api.NewRouter(svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.Serve.HTTP.Address(),
		Handler: r,
	}

	roots := cfg.Watch.Roots
	if len(roots) == 0 {
		roots = []string{tree.Root()}
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return watch.Watch(gCtx, roots, cfg.Watch.Debounce, logger, func(ctx context.Context, path string) {
			_, _ = svc.Verify(ctx, path)
		})
	})

	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.Serve.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// History prints recorded verifications, newest first.
func History(ctx context.Context, q HistoryQuery, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	if !app.config.History.Enabled {
		return fmt.Errorf("history: %w (set history.enabled or --history)", apperr.ErrDisabled)
	}
	if q.Outcome != "" && q.Outcome != service.OutcomeError {
		if _, err := verifier.ParseOutcome(q.Outcome); err != nil {
			return err
		}
	}
	logger := app.logger()

	svc, cleanup, err := app.newService(logger)
	if err != nil {
		return err
	}
	defer cleanup()

	var entries []history.Entry
	if q.Corrupt {
		entries, err = svc.Corrupt(ctx, q.Limit)
	} else {
		f := history.Filter{Outcome: q.Outcome, Limit: q.Limit}
		if q.Path != "" {
			if f.Path, err = filepath.Abs(q.Path); err != nil {
				return apperr.Wrap("abs", q.Path, err)
			}
		}
		entries, err = svc.History(ctx, f)
	}
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(app.stdout, 0, 4, 2, ' ', 0)
	for _, e := range entries {
		detail := e.ActualChecksum
		if e.Error != "" {
			detail = e.Error
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			e.CheckedAt.Local().Format(time.RFC3339), e.Outcome, e.Path, detail)
	}
	return tw.Flush()
}

// MCP serves the verification tools over stdio, rooted at serve.root.
func MCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	logger := app.logger()

	tree, err := storage.NewFS(app.config.Serve.Root)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}
	svc, cleanup, err := app.newService(logger, service.WithTree(tree))
	if err != nil {
		return err
	}
	defer cleanup()

	logger.Info("MCP server starting", slog.String("root", tree.Root()))
	return mcpserver.New(svc, app.version).ServeStdio()
}
