// Copyright 2026 The Skillhost Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides skillhost's standard CBOR encoding configuration.
//
// Skillhost uses two serialization formats with a clear boundary:
//
//   - JSON for external interfaces: Hermes MQTT payloads, CLI output,
//     and the on-disk runtime state file.
//   - CBOR for internal protocols: daemon↔skill RPC and the control
//     socket.
//
// This package provides the shared CBOR encoding and decoding modes so
// that every package encodes identically without duplicating
// configuration. The encoder uses Core Deterministic Encoding (RFC 8949
// §4.2): sorted map keys, smallest integer encoding, no
// indefinite-length items. Same logical data always produces identical
// bytes.
//
// For buffer-oriented operations:
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// For stream-oriented operations (sockets):
//
//	encoder := codec.NewEncoder(conn)
//	decoder := codec.NewDecoder(conn)
//
// # Struct Tag Rules
//
// The struct tag on a type documents its serialization format:
//
//   - `cbor` tag: this type is ONLY ever serialized as CBOR. It will
//     never be marshaled to JSON or appear in CLI output. Examples:
//     skill RPC envelopes, control socket request/response frames.
//   - `json` tag: this type may be serialized as BOTH JSON and CBOR.
//     fxamacker/cbor v2 reads `json` tags as fallback when `cbor`
//     tags are absent, so a single `json` tag controls field naming
//     and omitempty for both formats. Examples: Hermes payload types
//     (JSON on the wire, embedded in CBOR RPC requests), status
//     structures shared between the control socket and --json output.
//
// Never use both `cbor` and `json` tags on the same field. The tag
// choice documents the contract — doubling up is noise that obscures
// whether a type participates in JSON serialization.
package codec
