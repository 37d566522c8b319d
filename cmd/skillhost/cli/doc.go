// Copyright 2026 The Skillhost Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli is the command framework for the skillhost CLI: a small
// command tree with pflag flag sets, structured help output, and
// typo suggestions for commands and flags.
package cli
