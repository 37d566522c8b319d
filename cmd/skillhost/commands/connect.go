// Copyright 2026 The Skillhost Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/hermeskit/skillhost/lib/config"
	"github.com/hermeskit/skillhost/lib/control"
)

// Control round-trip budgets. Reload waits on readiness handshakes,
// so it gets headroom for a whole skill set coming up.
const (
	callTimeout   = 10 * time.Second
	reloadTimeout = 2 * time.Minute
)

// clientParams carries the connection flags shared by every command
// that talks to the daemon.
type clientParams struct {
	configPath string
	socketPath string
	jsonOutput bool
}

func (p *clientParams) bind(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&p.configPath, "config", "", "path to skillhost.yaml (default $SKILLHOST_CONFIG)")
	flagSet.StringVar(&p.socketPath, "socket", "", "control socket path (overrides config)")
}

func (p *clientParams) bindJSON(flagSet *pflag.FlagSet) {
	flagSet.BoolVar(&p.jsonOutput, "json", false, "output as JSON")
}

// loadConfig resolves configuration the way the daemon does: explicit
// flag, then $SKILLHOST_CONFIG, then built-in defaults. The default
// fallback keeps the CLI working without any config file when the
// daemon runs on defaults too.
func (p *clientParams) loadConfig() (*config.Config, error) {
	if p.configPath != "" {
		return config.LoadFile(p.configPath)
	}
	if envPath := os.Getenv("SKILLHOST_CONFIG"); envPath != "" {
		return config.LoadFile(envPath)
	}
	return config.Default(), nil
}

// connect builds the control client from the resolved configuration.
// No connection is attempted yet; the client dials per call.
func (p *clientParams) connect() (*control.Client, *config.Config, error) {
	cfg, err := p.loadConfig()
	if err != nil {
		return nil, nil, err
	}
	socket := p.socketPath
	if socket == "" {
		socket = cfg.Control.SocketPath
	}
	return control.NewClient(socket), cfg, nil
}
