package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/zarlcorp/core/pkg/zapp"
	"github.com/zarlcorp/zguard/internal/cli"
	"github.com/zarlcorp/zguard/internal/config"
	"github.com/zarlcorp/zguard/internal/tui"
)

// version is set at build time via ldflags.
var version = "dev"

func main() {
	app := zapp.New(zapp.WithName("zguard"))

	ctx, cancel := zapp.SignalContext(context.Background())
	defer cancel()

	dataDir := config.DataDir()
	cfg, err := config.Load(dataDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "zguard: %v\n", err)
		os.Exit(1)
	}

	if len(os.Args) > 1 {
		err := runCLI(ctx, dataDir, cfg, os.Args[1], os.Args[2:])
		_ = app.Close()
		if err != nil {
			if !errors.Is(err, cli.ErrUsage) {
				fmt.Fprintf(os.Stderr, "zguard: %v\n", err)
			}
			os.Exit(1)
		}
		return
	}

	if err := runTUI(dataDir, cfg); err != nil {
		slog.Error("tui", "err", err)
		_ = app.Close()
		os.Exit(1)
	}

	if err := app.Close(); err != nil {
		slog.Error("shutdown", "err", err)
		os.Exit(1)
	}
}

func runCLI(ctx context.Context, dataDir string, cfg config.Config, cmd string, args []string) error {
	env := cli.DefaultEnv(dataDir, cfg)

	switch cmd {
	case "version":
		cli.Version(os.Stdout, version)
		return nil
	case "users":
		return cli.Users(ctx, env, args)
	case "useradd":
		return cli.UserAdd(ctx, env, args)
	case "userdel":
		return cli.UserDel(ctx, env, args)
	case "passwd":
		return cli.Passwd(ctx, env, args)
	case "default":
		return cli.SetDefault(env, args)
	case "mock":
		log := slog.New(slog.NewTextHandler(os.Stderr, nil))
		return cli.Mock(ctx, env, log, args)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func runTUI(dataDir string, cfg config.Config) error {
	log, closeLog, err := tuiLogger(cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	m := tui.New(tui.Options{
		Version:  version,
		DataDir:  dataDir,
		FirstRun: config.IsFirstRun(dataDir),
		Config:   cfg,
		Logger:   log,
	})
	p := tea.NewProgram(m)
	finalModel, err := p.Run()
	if err != nil {
		return err
	}

	if fm, ok := finalModel.(tui.Model); ok {
		fm.Close()
	}

	return nil
}

// tuiLogger writes JSON to the configured log file. The terminal belongs to
// the console, so without one logs are dropped.
func tuiLogger(cfg config.Config) (*slog.Logger, func(), error) {
	if cfg.LogFile == "" {
		return slog.New(slog.DiscardHandler), func() {}, nil
	}
	f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	log := slog.New(slog.NewJSONHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return log, func() { f.Close() }, nil
}
