// Copyright 2026 The Skillhost Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import "fmt"

// ExitError signals a non-zero exit code without an extra error line.
// Commands that already printed their own output (status reporting a
// stopped daemon, reload reporting failed skills) return an ExitError
// so the shell sees the outcome without a redundant "error:" message.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit code %d", e.Code)
}

// ExitCode returns the process exit code. main checks for this
// interface on returned errors.
func (e *ExitError) ExitCode() int {
	return e.Code
}
