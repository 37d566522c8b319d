// Copyright 2026 The Skillhost Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/spf13/pflag"
)

func TestExecuteDispatchesToSubcommand(t *testing.T) {
	var called string

	root := &Command{
		Name: "skillhost",
		Subcommands: []*Command{
			{
				Name: "status",
				Run: func(args []string) error {
					called = "status"
					return nil
				},
			},
			{
				Name: "reload",
				Run: func(args []string) error {
					called = "reload"
					return nil
				},
			},
		},
	}

	if err := root.Execute([]string{"reload"}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if called != "reload" {
		t.Errorf("dispatched to %q, want reload", called)
	}
}

func TestExecutePassesPositionalArgs(t *testing.T) {
	var received []string

	root := &Command{
		Name: "skillhost",
		Subcommands: []*Command{
			{
				Name: "publish",
				Run: func(args []string) error {
					received = args
					return nil
				},
			},
		},
	}

	if err := root.Execute([]string{"publish", "payload.json"}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(received) != 1 || received[0] != "payload.json" {
		t.Errorf("args = %v, want [payload.json]", received)
	}
}

func TestExecuteParsesFlags(t *testing.T) {
	var socketPath string
	var asJSON bool

	command := &Command{
		Name: "status",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("status", pflag.ContinueOnError)
			flagSet.StringVar(&socketPath, "socket", "", "control socket path")
			flagSet.BoolVar(&asJSON, "json", false, "output as JSON")
			return flagSet
		},
		Run: func(args []string) error { return nil },
	}

	if err := command.Execute([]string{"--socket", "/tmp/s.sock", "--json"}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if socketPath != "/tmp/s.sock" {
		t.Errorf("socket = %q, want /tmp/s.sock", socketPath)
	}
	if !asJSON {
		t.Error("json flag not parsed")
	}
}

func TestExecuteSuggestsFlag(t *testing.T) {
	command := &Command{
		Name: "status",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("status", pflag.ContinueOnError)
			flagSet.String("socket", "", "control socket path")
			flagSet.Bool("json", false, "output as JSON")
			return flagSet
		},
		Run: func(args []string) error { return nil },
	}

	err := command.Execute([]string{"--sokcet", "/tmp/s.sock"})
	if err == nil {
		t.Fatal("Execute accepted an unknown flag")
	}
	if !strings.Contains(err.Error(), "did you mean --socket") {
		t.Errorf("error = %q, want a --socket suggestion", err)
	}
	if !strings.Contains(err.Error(), "--help") {
		t.Errorf("error = %q, want a --help pointer", err)
	}
}

func TestExecuteSuggestsSubcommand(t *testing.T) {
	root := &Command{
		Name: "skillhost",
		Subcommands: []*Command{
			{Name: "status"},
			{Name: "skills"},
			{Name: "reload"},
		},
	}

	err := root.Execute([]string{"realod"})
	if err == nil {
		t.Fatal("Execute accepted an unknown subcommand")
	}
	if !strings.Contains(err.Error(), `did you mean "reload"`) {
		t.Errorf("error = %q, want a reload suggestion", err)
	}
}

func TestExecuteNoSuggestionForDistantInput(t *testing.T) {
	root := &Command{
		Name: "skillhost",
		Subcommands: []*Command{
			{Name: "status"},
			{Name: "reload"},
		},
	}

	err := root.Execute([]string{"zzzzzzz"})
	if err == nil {
		t.Fatal("Execute accepted an unknown subcommand")
	}
	if strings.Contains(err.Error(), "did you mean") {
		t.Errorf("error = %q, suggestion for distant input", err)
	}
}

func TestExecuteHelpFlags(t *testing.T) {
	for _, helpArg := range []string{"-h", "--help", "help"} {
		t.Run(helpArg, func(t *testing.T) {
			root := &Command{
				Name:    "skillhost",
				Summary: "Hermes skill server control",
				Subcommands: []*Command{
					{Name: "status", Summary: "Show daemon status"},
				},
			}
			if err := root.Execute([]string{helpArg}); err != nil {
				t.Errorf("Execute(%q): %v", helpArg, err)
			}
		})
	}
}

func TestExecuteRequiresSubcommand(t *testing.T) {
	root := &Command{
		Name: "skillhost",
		Subcommands: []*Command{
			{Name: "status", Summary: "Show daemon status"},
		},
	}

	err := root.Execute(nil)
	if err == nil {
		t.Fatal("Execute without a subcommand succeeded")
	}
	if !strings.Contains(err.Error(), "subcommand required") {
		t.Errorf("error = %q, want subcommand required", err)
	}
}

func TestPrintHelpStructure(t *testing.T) {
	command := &Command{
		Name:        "skillhost",
		Description: "Control a running skill server.",
		Subcommands: []*Command{
			{Name: "status", Summary: "Show daemon status"},
			{Name: "publish", Summary: "Publish a message onto the bus"},
		},
		Examples: []Example{
			{Description: "Check the daemon", Command: "skillhost status"},
			{Description: "Trigger a reload", Command: "skillhost reload"},
		},
	}

	var buffer bytes.Buffer
	command.PrintHelp(&buffer)
	output := buffer.String()

	for _, want := range []string{
		"Control a running skill server.",
		"Usage:",
		"skillhost <command> [flags]",
		"Commands:",
		"status",
		"Show daemon status",
		"Examples:",
		"skillhost reload",
		"Run 'skillhost <command> --help'",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("help output missing %q\n\n%s", want, output)
		}
	}
}

func TestPrintHelpIncludesFlags(t *testing.T) {
	command := &Command{
		Name:    "publish",
		Summary: "Publish a message onto the bus",
		Usage:   "skillhost publish --topic <topic> [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("publish", pflag.ContinueOnError)
			flagSet.String("topic", "", "MQTT topic")
			flagSet.String("file", "", "payload file")
			return flagSet
		},
	}

	var buffer bytes.Buffer
	command.PrintHelp(&buffer)
	output := buffer.String()

	for _, want := range []string{
		"skillhost publish --topic <topic> [flags]",
		"Flags:",
		"topic",
		"file",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("help output missing %q\n\n%s", want, output)
		}
	}
}

func TestFullName(t *testing.T) {
	root := &Command{Name: "skillhost"}
	seal := &Command{Name: "seal-password", parent: root}

	if got := root.fullName(); got != "skillhost" {
		t.Errorf("fullName = %q, want skillhost", got)
	}
	if got := seal.fullName(); got != "skillhost seal-password" {
		t.Errorf("fullName = %q, want skillhost seal-password", got)
	}
}

func TestLevenshtein(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"status", "status", 0},
		{"realod", "reload", 2},
		{"sokcet", "socket", 2},
		{"status", "", 6},
		{"abc", "xyz", 3},
	}
	for _, tt := range tests {
		if got := levenshtein(tt.a, tt.b); got != tt.want {
			t.Errorf("levenshtein(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestExitError(t *testing.T) {
	var err error = &ExitError{Code: 3}

	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		t.Fatal("ExitError lost through error interface")
	}
	if exitErr.ExitCode() != 3 {
		t.Errorf("ExitCode = %d, want 3", exitErr.ExitCode())
	}
}
