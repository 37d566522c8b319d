// Copyright 2026 The Skillhost Authors
// SPDX-License-Identifier: Apache-2.0

// Package skillrpc implements the request/response protocol between
// the skillhost daemon and its child skill processes.
//
// The transport mirrors the control socket: each call opens a TCP
// connection to the skill's loopback port, writes one CBOR-encoded
// Request, reads one CBOR-encoded Response, and closes. CBOR values
// are self-delimiting, so there is no framing layer.
//
// The daemon side uses Client: WaitReady for the post-spawn readiness
// handshake, Call for intent and session traffic, Shutdown for
// graceful stop. Every Call outcome is exactly one of a decoded
// Response, ErrTimeout, or ErrConnectionLost; the daemon treats the
// two errors as the skill being unhealthy, while a Response with
// OK=false is an application-level failure from a skill that is still
// alive.
//
// The skill side uses Server, which answers the hello and shutdown
// actions itself and dispatches everything else to registered
// handlers. Handler panics are contained and reported to the daemon
// as error responses.
package skillrpc
