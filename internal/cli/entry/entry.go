// Package entry wires the CLI surface: flag parsing, config and logging
// bootstrap, and the run loop that connects the local backend to the
// terminal UI.
package entry

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/urfave/cli/v3"

	"github.com/muxpane/muxpane/internal/channel"
	"github.com/muxpane/muxpane/internal/config"
	"github.com/muxpane/muxpane/internal/grid"
	"github.com/muxpane/muxpane/internal/localmux"
	"github.com/muxpane/muxpane/internal/logging"
	"github.com/muxpane/muxpane/internal/tui"
)

const appName = "muxpane"

// Run starts the CLI and returns the process exit code.
func Run(args []string, version string) int {
	cfgPath := ""
	if p, err := config.DefaultPath(); err == nil {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: load config: %v\n", appName, err)
		return 1
	}

	// The UI owns the terminal, so logs go to a file only; fall back to
	// quiet stderr logging when the file sink cannot be set up.
	closeLogger, err := logging.Init(cfg.Logging, logging.Options{
		App:      appName,
		Version:  version,
		FileOnly: true,
	})
	if err != nil {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError})))
		slog.Error("init logging failed; using stderr fallback", "err", err)
	} else if closeLogger != nil {
		defer func() { _ = closeLogger() }()
	}

	cmd := newCommand(cfg, version)
	if err := cmd.Run(context.Background(), args); err != nil {
		if exitErr, ok := err.(cli.ExitCoder); ok {
			return exitErr.ExitCode()
		}
		fmt.Fprintf(os.Stderr, "%s: %v\n", appName, err)
		return 1
	}
	return 0
}

func newCommand(cfg config.Config, version string) *cli.Command {
	return &cli.Command{
		Name:    appName,
		Usage:   "split-pane terminal sessions over a local backend",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "session",
				Usage: "session name",
				Value: "default",
			},
			&cli.StringFlag{
				Name:  "state",
				Usage: "layout database path (overrides config)",
			},
			&cli.StringFlag{
				Name:  "shell",
				Usage: "command started in new panes (overrides config)",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			return runSession(ctx, cfg, c)
		},
		Commands: []*cli.Command{
			{
				Name:  "reset",
				Usage: "forget a session's stored layout",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "session",
						Usage: "session name",
						Value: "default",
					},
					&cli.StringFlag{
						Name:  "state",
						Usage: "layout database path (overrides config)",
					},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					return resetSession(ctx, cfg, c)
				},
			},
			{
				Name:  "version",
				Usage: "print the version",
				Action: func(ctx context.Context, c *cli.Command) error {
					fmt.Printf("%s %s\n", appName, version)
					return nil
				},
			},
		},
	}
}

func runSession(ctx context.Context, cfg config.Config, c *cli.Command) error {
	if shell := c.String("shell"); shell != "" {
		cfg.Shell = shell
	}
	statePath, err := resolveStatePath(cfg, c)
	if err != nil {
		return err
	}

	pollInterval, err := cfg.PollIntervalDuration()
	if err != nil {
		return err
	}
	resizeDebounce, err := cfg.ResizeDebounceDuration()
	if err != nil {
		return err
	}

	store, err := localmux.OpenStore(ctx, statePath)
	if err != nil {
		return fmt.Errorf("open state store: %w", err)
	}
	server, err := localmux.NewServer(store, localmux.Options{
		HistoryBytes: cfg.HistoryKB * 1024,
		Logger:       slog.Default(),
	})
	if err != nil {
		store.Close()
		return err
	}
	defer server.Close()

	registry := tui.NewRegistry()
	ctrl, err := grid.New(server, c.String("session"), registry.Surface, grid.Options{
		Command: cfg.Shell,
		Channel: channel.Options{
			PollInterval:   pollInterval,
			ResizeDebounce: resizeDebounce,
			Logger:         slog.Default(),
		},
		Logger: slog.Default(),
	})
	if err != nil {
		return err
	}
	if err := ctrl.Initialize(ctx); err != nil {
		return fmt.Errorf("initialize session: %w", err)
	}
	defer ctrl.Teardown()

	program := tea.NewProgram(tui.New(ctrl, registry), tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("run ui: %w", err)
	}
	return nil
}

func resetSession(ctx context.Context, cfg config.Config, c *cli.Command) error {
	statePath, err := resolveStatePath(cfg, c)
	if err != nil {
		return err
	}
	store, err := localmux.OpenStore(ctx, statePath)
	if err != nil {
		return fmt.Errorf("open state store: %w", err)
	}
	defer func() { _ = store.Close() }()
	session := c.String("session")
	if err := store.DeleteLayout(ctx, session); err != nil {
		return err
	}
	fmt.Printf("forgot layout for session %q\n", session)
	return nil
}

func resolveStatePath(cfg config.Config, c *cli.Command) (string, error) {
	if p := c.String("state"); p != "" {
		return p, nil
	}
	if cfg.StatePath != "" {
		return cfg.StatePath, nil
	}
	p, err := config.DefaultStatePath()
	if err != nil {
		return "", fmt.Errorf("resolve state path: %w", err)
	}
	return p, nil
}
