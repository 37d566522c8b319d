// Copyright 2026 The Skillhost Authors
// SPDX-License-Identifier: Apache-2.0

// Package control implements the daemon's local control protocol: a
// CBOR request-response exchange over a Unix socket, one request per
// connection.
//
// The daemon side is Server: register an ActionFunc per action, then
// Serve. The CLI side is Client, whose typed methods (Status, Reload,
// Publish, ...) wrap the generic Call.
//
// The protocol deliberately has no authentication: the socket file's
// permissions are the access control, matching every other local
// daemon socket on the machine.
package control
