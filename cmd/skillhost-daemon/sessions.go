// Copyright 2026 The Skillhost Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"fmt"
	"slices"
	"sync"
)

// ErrDuplicateSession reports an attempt to open a session id that a
// different skill already owns. Callers log it and keep the existing
// owner; the conflicting open is ignored.
var ErrDuplicateSession = errors.New("session already owned by another skill")

// sessionTable tracks which skill owns each open dialogue session.
// Ownership is recorded when the server publishes a session-opening
// message on a skill's behalf, or when an externally observed
// startSession names a hosted skill. Safe for concurrent use.
type sessionTable struct {
	mu     sync.Mutex
	owners map[string]string // session id -> skill name
}

func newSessionTable() *sessionTable {
	return &sessionTable{owners: make(map[string]string)}
}

// open records skillName as the owner of sessionID. Re-opening under
// the same owner is a no-op; a different owner is rejected with
// ErrDuplicateSession and the existing owner stands.
func (t *sessionTable) open(sessionID, skillName string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	owner, exists := t.owners[sessionID]
	if exists && owner != skillName {
		return fmt.Errorf("opening session %s for %s: %w (owner %s)",
			sessionID, skillName, ErrDuplicateSession, owner)
	}
	t.owners[sessionID] = skillName
	return nil
}

// ownerOf returns the skill owning sessionID.
func (t *sessionTable) ownerOf(sessionID string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	owner, ok := t.owners[sessionID]
	return owner, ok
}

// close drops sessionID, returning the former owner. Closing an
// unknown session is a no-op.
func (t *sessionTable) close(sessionID string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	owner, ok := t.owners[sessionID]
	if ok {
		delete(t.owners, sessionID)
	}
	return owner, ok
}

// sessionsOf lists the sessions skillName owns, sorted.
func (t *sessionTable) sessionsOf(skillName string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.collectLocked(skillName)
}

// closeAll drops every session skillName owns, returning the closed
// ids sorted. Used when a skill stops or fails.
func (t *sessionTable) closeAll(skillName string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	sessions := t.collectLocked(skillName)
	for _, id := range sessions {
		delete(t.owners, id)
	}
	return sessions
}

// count returns the number of open sessions across all skills.
func (t *sessionTable) count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.owners)
}

func (t *sessionTable) collectLocked(skillName string) []string {
	var sessions []string
	for id, owner := range t.owners {
		if owner == skillName {
			sessions = append(sessions, id)
		}
	}
	slices.Sort(sessions)
	return sessions
}
