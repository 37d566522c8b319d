// Copyright 2026 The Skillhost Authors
// SPDX-License-Identifier: Apache-2.0

// Package commands builds the skillhost CLI command tree. Every
// command talks to a running skillhost-daemon over its control socket,
// except seal-password and version, which work offline.
package commands

import (
	"fmt"

	"github.com/hermeskit/skillhost/cmd/skillhost/cli"
	"github.com/hermeskit/skillhost/lib/version"
)

// Root builds the complete skillhost CLI command tree.
func Root() *cli.Command {
	return &cli.Command{
		Name: "skillhost",
		Description: `skillhost: control a running Hermes skill server.

Inspect the daemon, reload the skill set, inject bus messages, and
prepare sealed broker credentials.`,
		Subcommands: []*cli.Command{
			StatusCommand(),
			SkillsCommand(),
			ReloadCommand(),
			PublishCommand(),
			SealPasswordCommand(),
			{
				Name:    "version",
				Summary: "Print version information",
				Run: func(args []string) error {
					fmt.Printf("skillhost %s\n", version.Full())
					return nil
				},
			},
		},
		Examples: []cli.Example{
			{
				Description: "Is the daemon up, and what is it managing?",
				Command:     "skillhost status",
			},
			{
				Description: "Pick up newly deployed skills",
				Command:     "skillhost reload",
			},
			{
				Description: "Fire a test intent",
				Command:     `skillhost publish --topic hermes/intent/TurnOn '{"input": "turn on the light"}'`,
			},
			{
				Description: "Seal the broker password for the daemon",
				Command:     "skillhost seal-password --generate-identity /etc/skillhost/broker.key --output /etc/skillhost/broker.pass.age",
			},
		},
	}
}
