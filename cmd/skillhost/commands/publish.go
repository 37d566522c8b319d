// Copyright 2026 The Skillhost Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"
	"github.com/tidwall/jsonc"

	"github.com/hermeskit/skillhost/cmd/skillhost/cli"
)

// PublishCommand injects a message onto the MQTT bus through the
// daemon's broker connection.
func PublishCommand() *cli.Command {
	params := &clientParams{}
	var topic, file string
	return &cli.Command{
		Name:    "publish",
		Summary: "Publish a message onto the bus",
		Description: `Publish a JSON payload to an MQTT topic through the daemon's broker
connection. The payload may contain // and /* */ comments and trailing
commas; they are stripped before publishing.

Useful for exercising a skill without a voice frontend:`,
		Usage: "skillhost publish --topic <topic> [--file <path>|<payload>] [flags]",
		Examples: []cli.Example{
			{
				Description: "Fire an intent at the hosted skills",
				Command:     `skillhost publish --topic hermes/intent/TurnOn '{"sessionId": "test-1", "input": "turn on the light"}'`,
			},
			{
				Description: "Publish a payload file, comments allowed",
				Command:     "skillhost publish --topic hermes/intent/TurnOn --file intent.jsonc",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("publish", pflag.ContinueOnError)
			params.bind(flagSet)
			flagSet.StringVar(&topic, "topic", "", "MQTT topic to publish to (required)")
			flagSet.StringVar(&file, "file", "", "payload file, '-' for stdin")
			return flagSet
		},
		Run: func(args []string) error {
			return runPublish(params, topic, file, args)
		},
	}
}

func runPublish(params *clientParams, topic, file string, args []string) error {
	if topic == "" {
		return fmt.Errorf("missing required flag: --topic")
	}
	payload, err := loadPayload(file, args)
	if err != nil {
		return err
	}

	client, _, err := params.connect()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()

	if err := client.Publish(ctx, topic, payload); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// loadPayload reads the payload from --file, stdin, or the inline
// argument, strips JSONC extensions, and validates the result.
func loadPayload(file string, args []string) ([]byte, error) {
	var raw []byte
	switch {
	case file == "-":
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("reading stdin: %w", err)
		}
		raw = data
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("reading payload file: %w", err)
		}
		raw = data
	case len(args) == 1:
		raw = []byte(args[0])
	case len(args) == 0:
		return nil, fmt.Errorf("payload required: pass --file or an inline JSON argument")
	default:
		return nil, fmt.Errorf("expected one payload argument, got %d", len(args))
	}

	payload := jsonc.ToJSON(raw)
	if !json.Valid(payload) {
		return nil, fmt.Errorf("payload is not valid JSON")
	}
	return payload, nil
}
