// Copyright 2026 The Skillhost Authors
// SPDX-License-Identifier: Apache-2.0

package control

import "time"

// Wire types for control actions. Each type carries both cbor tags
// (the socket protocol) and json tags (the CLI's --json output), so a
// report decoded from the socket re-encodes for scripts without a
// translation layer.

// StatusReport answers the "status" action.
type StatusReport struct {
	PID             int           `cbor:"pid" json:"pid"`
	StartedAt       time.Time     `cbor:"started_at" json:"started_at"`
	Uptime          time.Duration `cbor:"uptime" json:"uptime"`
	BrokerURL       string        `cbor:"broker_url" json:"broker_url"`
	BrokerConnected bool          `cbor:"broker_connected" json:"broker_connected"`
	SiteID          string        `cbor:"site_id" json:"site_id"`
	SkillsDir       string        `cbor:"skills_dir" json:"skills_dir"`
	Skills          []SkillReport `cbor:"skills" json:"skills"`
}

// SkillReport describes one managed skill. Answers the "skills"
// action and appears inside StatusReport.
type SkillReport struct {
	Name         string   `cbor:"name" json:"name"`
	State        string   `cbor:"state" json:"state"`
	Port         int      `cbor:"port,omitempty" json:"port,omitempty"`
	PID          int      `cbor:"pid,omitempty" json:"pid,omitempty"`
	Intents      []string `cbor:"intents,omitempty" json:"intents,omitempty"`
	OpenSessions int      `cbor:"open_sessions" json:"open_sessions"`
	LastError    string   `cbor:"last_error,omitempty" json:"last_error,omitempty"`
}

// ReloadReport answers the "reload" action. A reload that partially
// fails still returns a report: Failed lists what could not be
// started, and everything else reflects what actually happened.
type ReloadReport struct {
	Started   []string        `cbor:"started,omitempty" json:"started,omitempty"`
	Stopped   []string        `cbor:"stopped,omitempty" json:"stopped,omitempty"`
	Restarted []string        `cbor:"restarted,omitempty" json:"restarted,omitempty"`
	Unchanged []string        `cbor:"unchanged,omitempty" json:"unchanged,omitempty"`
	Failed    []ReloadFailure `cbor:"failed,omitempty" json:"failed,omitempty"`
}

// ReloadFailure names one skill a reload could not bring up and why.
type ReloadFailure struct {
	Skill string `cbor:"skill" json:"skill"`
	Error string `cbor:"error" json:"error"`
}

// PublishRequest carries the "publish" action: inject a raw message
// onto the MQTT bus through the daemon's broker connection.
type PublishRequest struct {
	Topic   string `cbor:"topic" json:"topic"`
	Payload []byte `cbor:"payload" json:"payload"`
}
