// Copyright 2026 The Skillhost Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"fmt"
	"sync/atomic"
)

var uniqueCounter atomic.Uint64

// UniqueID returns a string of the form "prefix-N" where N is a
// monotonically increasing integer. Use this instead of time.Now() when
// tests need unique identifiers for session IDs, skill names, or
// message bodies that must be distinguishable in shared logs.
//
//	sessionID := testutil.UniqueID("session")  // "session-1", "session-2", ...
//	skillName := testutil.UniqueID("skill")    // "skill-3", ...
func UniqueID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, uniqueCounter.Add(1))
}
