// Copyright 2026 The Skillhost Authors
// SPDX-License-Identifier: Apache-2.0

// Command skillhost-daemon hosts Hermes skills on one machine. It:
//
//   - scans the skills directory and starts one child process per
//     skill, each serving RPC on its own loopback port
//   - connects to the MQTT broker and subscribes to the intent and
//     dialogue-session topics
//   - routes intents to the owning skill and republishes the skill's
//     session directives onto the bus
//   - tracks which skill owns each open dialogue session
//   - reloads the skill set on SIGHUP (and, with --watch, on skills
//     directory changes) without touching unaffected skills
//   - serves the local control socket used by the skillhost CLI and
//     writes the state file the CLI falls back to
//
// Configuration comes from a YAML file named by --config or the
// SKILLHOST_CONFIG environment variable.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hermeskit/skillhost/lib/config"
	"github.com/hermeskit/skillhost/lib/process"
	"github.com/hermeskit/skillhost/lib/version"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var (
		configPath  string
		watchSkills bool
		showVersion bool
	)
	flag.StringVar(&configPath, "config", "", "path to skillhost.yaml (default $SKILLHOST_CONFIG)")
	flag.BoolVar(&watchSkills, "watch", false, "reload automatically when the skills directory changes")
	flag.BoolVar(&showVersion, "version", false, "print version and exit")
	flag.Parse()

	if showVersion {
		fmt.Println(version.Info())
		return nil
	}

	var (
		cfg *config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	if err := cfg.EnsureRuntimeDirs(); err != nil {
		return fmt.Errorf("preparing runtime directories: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server, err := newServer(cfg, watchSkills, logger)
	if err != nil {
		return err
	}
	defer server.close()

	return server.run(ctx)
}

// logLevel maps the config's log_level onto a slog level. The config
// is validated before this runs; info stays the fallback regardless.
func logLevel(name string) slog.Level {
	switch name {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
