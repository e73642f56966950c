package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/shatag/internal"
	"github.com/starford/shatag/internal/apperr"
	pkgconfig "github.com/starford/shatag/pkg/config"
)

var version = "dev"

const defaultConfigPath = "config/config.yaml"

// loadConfig reads the config file and applies flag overrides. A missing
// default file is fine; an explicitly requested one must exist.
func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	configPath := cmd.String("config")

	load := pkgconfig.LoadOptional[internal.Config]
	if cmd.IsSet("config") {
		load = pkgconfig.Load[internal.Config]
	}
	if err := load(configPath, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if cmd.IsSet("log-level") {
		if err := cfg.App.LogLevel.UnmarshalText([]byte(cmd.String("log-level"))); err != nil {
			return nil, fmt.Errorf("invalid --log-level: %w", err)
		}
	}
	if cmd.IsSet("history") {
		cfg.History.Enabled = true
		cfg.History.Path = cmd.String("history")
	}
	if cmd.IsSet("jobs") {
		cfg.Verify.Jobs = int(cmd.Int("jobs"))
	}
	if cmd.IsSet("recursive") {
		cfg.Verify.Recursive = cmd.Bool("recursive")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func options(cmd *cli.Command) ([]internal.Option, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return []internal.Option{
		internal.WithConfig(cfg),
		internal.WithVersion(version),
	}, nil
}

func check(ctx context.Context, cmd *cli.Command) error {
	paths := cmd.Args().Slice()
	if len(paths) == 0 {
		return apperr.WithStatus(errors.New("missing PATH argument\nusage: shatag [-r] [-j N] PATH..."), apperr.StatusError)
	}
	opts, err := options(cmd)
	if err != nil {
		return err
	}
	return internal.Check(ctx, paths, opts...)
}

func serve(ctx context.Context, cmd *cli.Command) error {
	opts, err := options(cmd)
	if err != nil {
		return err
	}
	if err := internal.Serve(ctx, opts...); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func watch(ctx context.Context, cmd *cli.Command) error {
	opts, err := options(cmd)
	if err != nil {
		return err
	}
	return internal.Watch(ctx, cmd.Args().Slice(), opts...)
}

func history(ctx context.Context, cmd *cli.Command) error {
	opts, err := options(cmd)
	if err != nil {
		return err
	}
	return internal.History(ctx, internal.HistoryQuery{
		Path:    cmd.Args().First(),
		Outcome: cmd.String("outcome"),
		Limit:   int(cmd.Int("limit")),
		Corrupt: cmd.Bool("corrupt"),
	}, opts...)
}

func mcp(ctx context.Context, cmd *cli.Command) error {
	opts, err := options(cmd)
	if err != nil {
		return err
	}
	return internal.MCP(ctx, opts...)
}

func main() {
	cmd := &cli.Command{
		Name:      "shatag",
		Usage:     "Detect silent file corruption with checksum and timestamp tags stored beside each file",
		ArgsUsage: "PATH...",
		Version:   version,
		Action:    check,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: defaultConfigPath,
				Value:       defaultConfigPath,
				Sources:     cli.EnvVars("SHATAG_CONFIG_FILE"),
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level (debug, info, warn, error)",
			},
			&cli.StringFlag{
				Name:  "history",
				Usage: "Record every verification in this SQLite database",
			},
			&cli.BoolFlag{
				Name:    "recursive",
				Aliases: []string{"r"},
				Usage:   "Descend into directories",
			},
			&cli.IntFlag{
				Name:    "jobs",
				Aliases: []string{"j"},
				Usage:   "Files verified in parallel",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Serve the HTTP API and watch the served root",
				Action: serve,
			},
			{
				Name:      "watch",
				Usage:     "Re-verify files under DIR after their writes settle",
				ArgsUsage: "DIR...",
				Action:    watch,
			},
			{
				Name:      "history",
				Usage:     "Print recorded verifications, newest first",
				ArgsUsage: "[PATH]",
				Action:    history,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "corrupt",
						Usage: "Only files whose latest verification was corrupt",
					},
					&cli.StringFlag{
						Name:  "outcome",
						Usage: "Filter by outcome (ok, outdated, corrupt, write_failure, error)",
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Max entries",
						Value: 100,
					},
				},
			},
			{
				Name:   "mcp",
				Usage:  "Serve verification tools over MCP stdio",
				Action: mcp,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		var se *apperr.ExitStatusError
		if !errors.As(err, &se) || se.Err != nil {
			slog.Error("application error", slog.String("error", err.Error()))
		}
		os.Exit(apperr.ExitStatus(err))
	}
}
