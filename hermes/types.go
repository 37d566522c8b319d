// Copyright 2026 The Skillhost Authors
// SPDX-License-Identifier: Apache-2.0

package hermes

// DefaultSiteID is the site identifier used when a message omits one.
const DefaultSiteID = "default"

// Intent is a recognized user request, published by the NLU on
// hermes/intent/<name>. The session id is present when the intent
// belongs to an open dialogue session and absent for one-shot
// interactions.
type Intent struct {
	ID         string               `json:"id,omitempty"`
	SessionID  string               `json:"sessionId,omitempty"`
	SiteID     string               `json:"siteId,omitempty"`
	Input      string               `json:"input,omitempty"`
	Intent     IntentClassification `json:"intent"`
	Slots      []Slot               `json:"slots,omitempty"`
	CustomData string               `json:"customData,omitempty"`
}

// IntentClassification names the recognized intent and the NLU's
// confidence in it.
type IntentClassification struct {
	IntentName      string  `json:"intentName"`
	ConfidenceScore float64 `json:"confidenceScore"`
}

// Slot is one extracted intent parameter.
type Slot struct {
	Entity     string    `json:"entity,omitempty"`
	SlotName   string    `json:"slotName"`
	RawValue   string    `json:"rawValue,omitempty"`
	Value      SlotValue `json:"value"`
	Confidence float64   `json:"confidence,omitempty"`
}

// SlotValue is a typed slot value. Kind names the value type (e.g.
// "Custom", "Number", "Duration"); Value is the raw decoded JSON
// value.
type SlotValue struct {
	Kind  string `json:"kind,omitempty"`
	Value any    `json:"value"`
}

// StartSession asks the dialogue manager to open a session. The
// server publishes one on behalf of a skill whose response carried a
// start-session directive, setting CustomData to the skill name so
// the ownership survives the round trip over the bus.
type StartSession struct {
	SessionID  string      `json:"sessionId,omitempty"`
	SiteID     string      `json:"siteId,omitempty"`
	CustomData string      `json:"customData,omitempty"`
	Init       SessionInit `json:"init"`
}

// SessionInit describes how a session opens: an "action" session
// listens for a follow-up intent after speaking Text, a
// "notification" session just speaks and closes.
type SessionInit struct {
	Type          string   `json:"type"`
	Text          string   `json:"text,omitempty"`
	CanBeEnqueued bool     `json:"canBeEnqueued,omitempty"`
	IntentFilter  []string `json:"intentFilter,omitempty"`
}

// SessionInit types.
const (
	SessionTypeAction       = "action"
	SessionTypeNotification = "notification"
)

// ContinueSession keeps a session open for another turn: the dialogue
// manager speaks Text and listens again, optionally restricting the
// next recognition to IntentFilter.
type ContinueSession struct {
	SessionID    string   `json:"sessionId"`
	SiteID       string   `json:"siteId,omitempty"`
	Text         string   `json:"text,omitempty"`
	CustomData   string   `json:"customData,omitempty"`
	IntentFilter []string `json:"intentFilter,omitempty"`
}

// EndSession closes a session, optionally speaking Text first.
type EndSession struct {
	SessionID string `json:"sessionId"`
	SiteID    string `json:"siteId,omitempty"`
	Text      string `json:"text,omitempty"`
}

// Say is a plain TTS request, outside any session lifecycle.
type Say struct {
	Text      string `json:"text"`
	SiteID    string `json:"siteId,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
}
