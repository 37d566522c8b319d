// Copyright 2026 The Skillhost Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil classifies connection errors for skillhost's socket
// protocols.
//
// The skill RPC client and the control socket both need to distinguish
// "the peer went away" (expected during skill shutdown and daemon
// teardown, mapped to connection-lost handling) from genuine protocol
// or I/O errors worth logging loudly.
package netutil

import (
	"errors"
	"io"
	"net"
	"syscall"
)

// IsConnectionTeardown reports whether err is a normal connection
// termination: EOF, closed connection, broken pipe, or connection
// reset. These errors occur when the peer process exits or closes the
// socket while a request is in flight — for skill RPC that means the
// skill died mid-call.
//
// Full-close teardown (closing the entire connection rather than
// half-close via CloseWrite) produces ECONNRESET and EPIPE instead of
// EOF on the surviving side. All four classify the same way.
func IsConnectionTeardown(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == syscall.EPIPE || errno == syscall.ECONNRESET || errno == syscall.ECONNREFUSED
	}
	return false
}
