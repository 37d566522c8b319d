// Copyright 2026 The Skillhost Authors
// SPDX-License-Identifier: Apache-2.0

// Package binhash computes BLAKE3 content hashes of files on disk.
//
// The registry hashes every skill's entry-point file so that reload
// can detect a skill whose manifest is untouched but whose executable
// changed. Digests are 32 bytes, formatted as 64-character hex strings.
package binhash
