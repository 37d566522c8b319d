// Copyright 2026 The Skillhost Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/hermeskit/skillhost/cmd/skillhost/cli"
	"github.com/hermeskit/skillhost/lib/control"
	"github.com/hermeskit/skillhost/lib/statefile"
)

// statusView is the status command's output shape. Wrapping the live
// report keeps "running" explicit when the daemon is down and leaves
// room for the state-file fallback.
type statusView struct {
	Running   bool                  `json:"running"`
	Report    *control.StatusReport `json:"report,omitempty"`
	LastKnown *statefile.State      `json:"last_known,omitempty"`
}

// StatusCommand reports whether the daemon runs and what it manages.
func StatusCommand() *cli.Command {
	params := &clientParams{}
	return &cli.Command{
		Name:    "status",
		Summary: "Show daemon status",
		Description: `Show the skill server's status: broker connection, managed skills,
and open dialogue sessions.

When the daemon is not answering on its control socket, the command
falls back to the state file and reports the last known state.`,
		Usage: "skillhost status [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("status", pflag.ContinueOnError)
			params.bind(flagSet)
			params.bindJSON(flagSet)
			return flagSet
		},
		Run: func(args []string) error {
			return runStatus(params)
		},
	}
}

func runStatus(params *clientParams) error {
	client, cfg, err := params.connect()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()

	report, err := client.Status(ctx)
	if err != nil {
		return statusFromStateFile(params, cfg.Control.StateFile, cfg.Control.HeartbeatSeconds)
	}

	view := statusView{Running: true, Report: report}
	if params.jsonOutput {
		return cli.WriteJSON(view)
	}
	writeStatus(os.Stdout, view)
	return nil
}

// statusFromStateFile renders the daemon-down outcome. The state file
// is advisory: present and fresh means the daemon is alive but not
// answering, anything else means it is gone. Either way the command
// exits non-zero.
func statusFromStateFile(params *clientParams, path string, heartbeatSeconds int) error {
	maxAge := 3 * time.Duration(heartbeatSeconds) * time.Second
	state, fresh, err := statefile.Check(path, maxAge)

	view := statusView{}
	if err == nil && state.PID != 0 {
		view.LastKnown = &state
	}

	if params.jsonOutput {
		if err := cli.WriteJSON(view); err != nil {
			return err
		}
		return &cli.ExitError{Code: 1}
	}

	if fresh {
		fmt.Println("skill server is not answering on the control socket")
	} else {
		fmt.Println("skill server is not running")
	}
	if view.LastKnown != nil {
		fmt.Printf("last seen %s (pid %d, %d skills)\n",
			state.Heartbeat.Format(time.RFC3339), state.PID, len(state.Skills))
	}
	return &cli.ExitError{Code: 1}
}

func writeStatus(w io.Writer, view statusView) {
	report := view.Report
	broker := "disconnected"
	if report.BrokerConnected {
		broker = "connected"
	}
	fmt.Fprintf(w, "pid:      %d\n", report.PID)
	fmt.Fprintf(w, "uptime:   %s\n", report.Uptime.Round(time.Second))
	fmt.Fprintf(w, "site:     %s\n", report.SiteID)
	fmt.Fprintf(w, "broker:   %s (%s)\n", report.BrokerURL, broker)
	fmt.Fprintf(w, "skills:   %s\n", report.SkillsDir)
	if len(report.Skills) > 0 {
		fmt.Fprintln(w)
		writeSkillTable(w, report.Skills)
	}
}
