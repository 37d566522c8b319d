// Copyright 2026 The Skillhost Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"fmt"
	"os"

	"golang.org/x/term"

	"github.com/hermeskit/skillhost/lib/secret"
)

// ReadSecret prompts on stderr and reads a secret from the terminal
// with echo disabled. The secret lands in locked memory; the caller
// must close the returned buffer.
func ReadSecret(prompt string) (*secret.Buffer, error) {
	stdinFD := int(os.Stdin.Fd())
	if !term.IsTerminal(stdinFD) {
		return nil, fmt.Errorf("no terminal available for an interactive prompt (use --password-file)")
	}

	fmt.Fprint(os.Stderr, prompt)
	secretBytes, err := term.ReadPassword(stdinFD)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("reading secret: %w", err)
	}

	buffer, err := secret.NewFromBytes(secretBytes)
	if err != nil {
		secret.Zero(secretBytes)
		return nil, err
	}
	return buffer, nil
}
