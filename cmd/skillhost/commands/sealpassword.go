// Copyright 2026 The Skillhost Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/hermeskit/skillhost/cmd/skillhost/cli"
	"github.com/hermeskit/skillhost/lib/sealed"
	"github.com/hermeskit/skillhost/lib/secret"
)

// SealPasswordCommand prepares an age-sealed broker password for the
// daemon's broker.password_file setting.
func SealPasswordCommand() *cli.Command {
	var (
		recipients   []string
		output       string
		passwordFile string
		identityPath string
	)
	return &cli.Command{
		Name:    "seal-password",
		Summary: "Seal a broker password for the daemon",
		Description: `Encrypt a broker password to one or more age public keys. The daemon
unseals the result at startup with the identity named by
broker.identity_file, so the password never sits on disk in the clear.

--generate-identity creates a fresh identity file first and adds its
public key to the recipients.`,
		Usage: "skillhost seal-password --recipient <age-public-key> --output <path> [flags]",
		Examples: []cli.Example{
			{
				Description: "First-time setup: new identity plus sealed password",
				Command:     "skillhost seal-password --generate-identity /etc/skillhost/broker.key --output /etc/skillhost/broker.pass.age",
			},
			{
				Description: "Re-seal for an existing identity",
				Command:     "skillhost seal-password --recipient age1... --output /etc/skillhost/broker.pass.age",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("seal-password", pflag.ContinueOnError)
			flagSet.StringArrayVar(&recipients, "recipient", nil, "age public key to seal to (repeatable)")
			flagSet.StringVar(&output, "output", "", "where to write the sealed password (required)")
			flagSet.StringVar(&passwordFile, "password-file", "", "read the password from this file, '-' for stdin")
			flagSet.StringVar(&identityPath, "generate-identity", "", "write a new age identity here and seal to it")
			return flagSet
		},
		Run: func(args []string) error {
			return runSealPassword(recipients, output, passwordFile, identityPath)
		},
	}
}

func runSealPassword(recipients []string, output, passwordFile, identityPath string) error {
	if identityPath != "" {
		publicKey, err := writeIdentity(identityPath)
		if err != nil {
			return err
		}
		fmt.Printf("identity written to %s\n", identityPath)
		fmt.Printf("public key: %s\n", publicKey)
		recipients = append(recipients, publicKey)
	}

	if output == "" {
		return fmt.Errorf("missing required flag: --output")
	}
	if len(recipients) == 0 {
		return fmt.Errorf("at least one --recipient (or --generate-identity) is required")
	}
	for _, recipient := range recipients {
		if err := sealed.ParsePublicKey(recipient); err != nil {
			return fmt.Errorf("recipient %q: %w", recipient, err)
		}
	}

	password, err := readPassword(passwordFile)
	if err != nil {
		return err
	}
	defer password.Close()

	ciphertext, err := sealed.Seal(password.Bytes(), recipients)
	if err != nil {
		return fmt.Errorf("sealing password: %w", err)
	}
	if err := os.WriteFile(output, ciphertext, 0o600); err != nil {
		return fmt.Errorf("writing sealed password: %w", err)
	}
	fmt.Printf("sealed password written to %s (%d recipients)\n", output, len(recipients))
	return nil
}

// writeIdentity creates a fresh keypair and writes the private half.
// Refuses to overwrite: losing an identity file orphans everything
// sealed to it.
func writeIdentity(path string) (string, error) {
	keypair, err := sealed.GenerateKeypair()
	if err != nil {
		return "", fmt.Errorf("generating identity: %w", err)
	}
	defer keypair.Close()

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return "", fmt.Errorf("creating identity file: %w", err)
	}
	defer file.Close()

	if _, err := file.WriteString(keypair.PrivateKey.String() + "\n"); err != nil {
		return "", fmt.Errorf("writing identity file: %w", err)
	}
	return keypair.PublicKey, nil
}

func readPassword(passwordFile string) (*secret.Buffer, error) {
	if passwordFile != "" {
		return secret.ReadFromPath(passwordFile)
	}
	return cli.ReadSecret("Broker password: ")
}
