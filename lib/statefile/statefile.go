// Copyright 2026 The Skillhost Authors
// SPDX-License-Identifier: Apache-2.0

// Package statefile persists the daemon's runtime snapshot to disk.
//
// The daemon writes the file on a heartbeat ticker and on every skill
// state transition. The skillhost CLI reads it when the control socket
// is unreachable, so "skillhost status" can distinguish a dead daemon
// (stale heartbeat, last-known skill states) from one that never ran.
//
// The file is written atomically (write to temporary file, fsync,
// rename) so readers never see a partial or corrupt snapshot.
// Staleness checking via Check prevents trusting ancient files left
// behind by an unclean shutdown.
package statefile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// State is the daemon's runtime snapshot.
type State struct {
	// PID is the daemon's process id.
	PID int `json:"pid"`

	// StartedAt is when the daemon started.
	StartedAt time.Time `json:"started_at"`

	// Heartbeat is when this snapshot was written. Check compares it
	// against the staleness window.
	Heartbeat time.Time `json:"heartbeat"`

	// BrokerConnected reports whether the MQTT bridge was healthy at
	// the time of the snapshot.
	BrokerConnected bool `json:"broker_connected"`

	// Skills holds one entry per managed skill.
	Skills []SkillState `json:"skills"`
}

// SkillState is one skill's condition within a snapshot.
type SkillState struct {
	// Name is the skill's directory name.
	Name string `json:"name"`

	// State is the lifecycle state: starting, ready, failed, stopped.
	State string `json:"state"`

	// Port is the skill's RPC port, zero when not running.
	Port int `json:"port,omitempty"`

	// PID is the skill process id, zero when not running.
	PID int `json:"pid,omitempty"`

	// OpenSessions is the number of dialogue sessions the skill owns.
	OpenSessions int `json:"open_sessions"`
}

// Write atomically writes a state file. The file is written to a
// temporary location in the same directory, fsynced for durability,
// and renamed into place. Readers never see a partial write.
//
// The file is created with mode 0600 (owner read/write only). The
// parent directory must already exist.
func Write(path string, state State) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling state: %w", err)
	}
	// Trailing newline for clean file content.
	data = append(data, '\n')

	temporaryPath := path + ".tmp"

	file, err := os.OpenFile(temporaryPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("creating temporary state file: %w", err)
	}

	// Write, sync, close — in that order. If any step fails, remove
	// the temporary file and report the first error.
	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("writing temporary state file: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("syncing temporary state file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("closing temporary state file: %w", err)
	}

	if err := os.Rename(temporaryPath, path); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("renaming state file into place: %w", err)
	}

	// Sync the parent directory to ensure the rename is durable. This
	// matters when the machine loses power between rename and the OS
	// flushing directory metadata.
	parentDirectory, err := os.Open(filepath.Dir(path))
	if err == nil {
		parentDirectory.Sync()
		parentDirectory.Close()
	}

	return nil
}

// Read reads and parses a state file. When the file does not exist,
// the returned error wraps os.ErrNotExist (testable with errors.Is).
func Read(path string) (State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return State{}, err
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return State{}, fmt.Errorf("parsing state file %s: %w", path, err)
	}
	return state, nil
}

// Check reads a state file and verifies its heartbeat is within maxAge
// of now. Returns the state and true when the daemon is presumed
// alive. Returns the state and false when the file exists but the
// heartbeat is stale (last-known information for diagnostics), or a
// zero State and false when the file does not exist.
//
// Any other error (permission denied, corrupt JSON) is returned as-is
// so the caller can distinguish "no state file" from "state file
// exists but unreadable."
func Check(path string, maxAge time.Duration) (State, bool, error) {
	state, err := Read(path)
	if err != nil {
		if os.IsNotExist(err) {
			return State{}, false, nil
		}
		return State{}, false, err
	}

	if time.Since(state.Heartbeat) > maxAge {
		return state, false, nil
	}

	return state, true, nil
}

// Clear removes a state file. Idempotent: returns nil when the file
// does not exist.
func Clear(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing state file: %w", err)
	}
	return nil
}
