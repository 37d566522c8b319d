// Copyright 2026 The Skillhost Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/pflag"

	"github.com/hermeskit/skillhost/cmd/skillhost/cli"
	"github.com/hermeskit/skillhost/lib/control"
)

// ReloadCommand asks the daemon to reconcile the skills directory.
func ReloadCommand() *cli.Command {
	params := &clientParams{}
	return &cli.Command{
		Name:    "reload",
		Summary: "Reload the skill set from disk",
		Description: `Rescan the skills directory and apply the difference: new skills
start, removed skills stop, changed skills restart. Skills whose
directories did not change are left alone.

Exits non-zero when any skill failed to start; the rest of the reload
still applies.`,
		Usage: "skillhost reload [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("reload", pflag.ContinueOnError)
			params.bind(flagSet)
			params.bindJSON(flagSet)
			return flagSet
		},
		Run: func(args []string) error {
			return runReload(params)
		},
	}
}

func runReload(params *clientParams) error {
	client, _, err := params.connect()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), reloadTimeout)
	defer cancel()

	report, err := client.Reload(ctx)
	if err != nil {
		return fmt.Errorf("reload: %w", err)
	}

	if params.jsonOutput {
		if err := cli.WriteJSON(report); err != nil {
			return err
		}
	} else {
		writeReloadReport(os.Stdout, report)
	}

	if len(report.Failed) > 0 {
		return &cli.ExitError{Code: 1}
	}
	return nil
}

func writeReloadReport(w io.Writer, report *control.ReloadReport) {
	fmt.Fprintf(w, "reload applied: %d started, %d stopped, %d restarted, %d unchanged, %d failed\n",
		len(report.Started), len(report.Stopped), len(report.Restarted),
		len(report.Unchanged), len(report.Failed))

	writeNameList(w, "started", report.Started)
	writeNameList(w, "stopped", report.Stopped)
	writeNameList(w, "restarted", report.Restarted)
	for _, failure := range report.Failed {
		fmt.Fprintf(w, "  failed %s: %s\n", failure.Skill, failure.Error)
	}
}

func writeNameList(w io.Writer, label string, names []string) {
	if len(names) == 0 {
		return
	}
	fmt.Fprintf(w, "  %s: %s\n", label, strings.Join(names, ", "))
}
