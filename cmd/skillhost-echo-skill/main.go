// Copyright 2026 The Skillhost Authors
// SPDX-License-Identifier: Apache-2.0

// Command skillhost-echo-skill is a minimal compiled skill for
// verifying a skillhost deployment end to end. Drop a directory with
// this binary and a manifest into the skills directory:
//
//	entry: skillhost-echo-skill
//	intents:
//	  - EchoTest
//
// Every intent is answered by closing the session with an echo of the
// recognized input; intents that arrive outside a session are spoken
// instead. Session-ended notifications are acknowledged silently, and
// the process exits when the daemon sends shutdown.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/hermeskit/skillhost/lib/process"
	"github.com/hermeskit/skillhost/skillrpc"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var (
		port     int
		logLevel string
	)
	flag.IntVar(&port, "port", 0, "RPC port to serve on (default $SKILLHOST_PORT)")
	flag.StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	if port == 0 {
		if env := os.Getenv("SKILLHOST_PORT"); env != "" {
			parsed, err := strconv.Atoi(env)
			if err != nil {
				return fmt.Errorf("invalid SKILLHOST_PORT %q: %w", env, err)
			}
			port = parsed
		}
	}
	if port == 0 {
		return fmt.Errorf("no port: pass --port or set SKILLHOST_PORT")
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slogLevel(logLevel),
	}))

	server := skillrpc.NewServer("echo", logger)
	server.Handle(skillrpc.ActionIntent, handleIntent)
	server.Handle(skillrpc.ActionSessionContinue, handleContinue)
	server.Handle(skillrpc.ActionSessionEnded, handleEnded)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("echo skill starting", "port", port)
	return server.ListenAndServe(ctx, port)
}

func handleIntent(ctx context.Context, request *skillrpc.Request) ([]skillrpc.Directive, error) {
	intent := request.Intent
	text := "I heard: " + intent.Input
	if intent.Input == "" {
		text = "I recognized " + intent.Intent.IntentName
	}

	// Inside a dialogue session the echo closes it; a one-shot intent
	// is just spoken back.
	if intent.SessionID != "" {
		return []skillrpc.Directive{skillrpc.EndSessionDirective("", text)}, nil
	}
	return []skillrpc.Directive{skillrpc.SayDirective(text, "")}, nil
}

func handleContinue(ctx context.Context, request *skillrpc.Request) ([]skillrpc.Directive, error) {
	return []skillrpc.Directive{
		skillrpc.EndSessionDirective("", "I heard: "+request.Session.Text),
	}, nil
}

func handleEnded(ctx context.Context, request *skillrpc.Request) ([]skillrpc.Directive, error) {
	return nil, nil
}

func slogLevel(name string) slog.Level {
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
