// Copyright 2026 The Skillhost Authors
// SPDX-License-Identifier: Apache-2.0

// Package sealed provides age encryption for the broker password file.
// It wraps filippo.io/age for the specific operations skillhost needs:
// generate an x25519 host identity, seal a password to that identity's
// recipient, and unseal it again at daemon startup.
//
// Ciphertext is the standard binary age format, written directly to
// the password file (conventionally broker-password.age next to the
// daemon config). Private keys and unsealed plaintext travel in
// [secret.Buffer] values backed by mmap memory outside the Go heap
// (locked against swap, excluded from core dumps, zeroed on Close).
//
// Key exports:
//
//   - [GenerateKeypair] -- new age x25519 host identity
//   - [Seal] -- encrypt a password to recipient public keys
//   - [Unseal] / [UnsealFile] -- decrypt with the host identity
//   - [LoadIdentity] -- read and validate an identity file
//   - [RecipientOf] -- derive the public key from an identity
//
// Used by the daemon (unseal the broker password at startup) and the
// skillhost CLI (seal-password command).
//
// Depends on lib/secret for secure memory allocation.
package sealed
