// Package app assembles a parserdesk process from its configuration and
// provides the entry points shared by the CLI commands.
package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
)

// Serve builds the runtime, starts every configured module and blocks
// until ctx is cancelled or SIGINT/SIGTERM is received.
func Serve(ctx context.Context, p Params) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := Build(ctx, p)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close(context.WithoutCancel(ctx)) }()

	if err := rt.Start(); err != nil {
		return err
	}
	rt.Logger.Info("parserdesk ready", "version", p.Version, "sessions_max", rt.Config.Designer.MaxSessions)

	<-ctx.Done()
	rt.Logger.Info("shutdown signal received")
	return nil
}

// ResolveConfigPath searches for a config file in standard locations.
// Search order: $XDG_CONFIG_HOME/parserdesk/parserdesk.yaml →
// ~/.config/parserdesk/parserdesk.yaml → ./parserdesk.yaml
func ResolveConfigPath() (string, error) {
	var candidates []string

	if xdg, ok := os.LookupEnv("XDG_CONFIG_HOME"); ok {
		candidates = append(candidates, filepath.Join(xdg, "parserdesk", "parserdesk.yaml"))
	} else if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "parserdesk", "parserdesk.yaml"))
	}

	candidates = append(candidates, "parserdesk.yaml")

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("no configuration file found (searched: %v)", candidates)
}

// DefaultDataDir returns the default persistent data directory.
// Uses $XDG_DATA_HOME/parserdesk if set, otherwise ~/.local/share/parserdesk.
func DefaultDataDir() string {
	if dir, ok := os.LookupEnv("XDG_DATA_HOME"); ok && dir != "" {
		return filepath.Join(dir, "parserdesk")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "parserdesk")
}
