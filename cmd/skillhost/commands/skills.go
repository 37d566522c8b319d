// Copyright 2026 The Skillhost Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/hermeskit/skillhost/cmd/skillhost/cli"
	"github.com/hermeskit/skillhost/lib/control"
)

// SkillsCommand lists the managed skills and their state.
func SkillsCommand() *cli.Command {
	params := &clientParams{}
	return &cli.Command{
		Name:    "skills",
		Summary: "List managed skills",
		Description: `List every skill the daemon manages, including failed skills and
directories excluded during discovery.`,
		Usage: "skillhost skills [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("skills", pflag.ContinueOnError)
			params.bind(flagSet)
			params.bindJSON(flagSet)
			return flagSet
		},
		Run: func(args []string) error {
			return runSkills(params)
		},
	}
}

func runSkills(params *clientParams) error {
	client, _, err := params.connect()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()

	reports, err := client.Skills(ctx)
	if err != nil {
		return fmt.Errorf("querying skills: %w", err)
	}

	if params.jsonOutput {
		return cli.WriteJSON(reports)
	}
	writeSkillTable(os.Stdout, reports)
	return nil
}

func writeSkillTable(w io.Writer, reports []control.SkillReport) {
	tw := tabwriter.NewWriter(w, 2, 0, 3, ' ', 0)
	fmt.Fprintln(tw, "SKILL\tSTATE\tPORT\tPID\tSESSIONS\tINTENTS\tERROR")
	for _, report := range reports {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			report.Name,
			report.State,
			orDash(report.Port),
			orDash(report.PID),
			report.OpenSessions,
			strings.Join(report.Intents, ","),
			report.LastError,
		)
	}
	tw.Flush()
}

func orDash(value int) string {
	if value == 0 {
		return "-"
	}
	return fmt.Sprintf("%d", value)
}
