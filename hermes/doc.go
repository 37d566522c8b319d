// Copyright 2026 The Skillhost Authors
// SPDX-License-Identifier: Apache-2.0

// Package hermes implements the Hermes MQTT dialogue convention: the
// JSON payload types for intent and session-control messages, the
// topic layout, and the Bridge that owns the daemon's single broker
// connection.
//
// All payloads are JSON on the wire (the bus is shared with non-Go
// components). Topic names follow the hermes/ prefix convention by
// default and are configurable; see Topics.
//
// The Bridge deliberately manages reconnection itself instead of using
// the MQTT client's automatic reconnect: the daemon must resubscribe
// before reporting healthy and must keep retrying for as long as it
// runs, and both behaviors need to be observable in tests.
package hermes
