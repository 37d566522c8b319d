// Copyright 2026 The Skillhost Authors
// SPDX-License-Identifier: Apache-2.0

// Command skillhost is the operator CLI for skillhost-daemon.
package main

import (
	"os"

	"github.com/hermeskit/skillhost/cmd/skillhost/commands"
	"github.com/hermeskit/skillhost/lib/process"
)

func main() {
	if err := run(); err != nil {
		// Commands that already printed their outcome (status against
		// a stopped daemon, reload with failures) return an exit code
		// without a message.
		if coder, ok := err.(interface{ ExitCode() int }); ok {
			os.Exit(coder.ExitCode())
		}
		process.Fatal(err)
	}
}

func run() error {
	return commands.Root().Execute(os.Args[1:])
}
