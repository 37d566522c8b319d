// Copyright 2026 The Skillhost Authors
// SPDX-License-Identifier: Apache-2.0

package skillrpc

import (
	"github.com/hermeskit/skillhost/hermes"
)

// ProtocolVersion is reported in the hello response. Bumped only for
// incompatible wire changes; the daemon logs a mismatch but does not
// refuse the skill.
const ProtocolVersion = 1

// Request actions.
const (
	// ActionHello is the readiness probe. The response carries the
	// skill's name and protocol version. Served by the Server itself.
	ActionHello = "hello"

	// ActionIntent delivers a recognized intent. The request's Intent
	// field is set.
	ActionIntent = "intent"

	// ActionSessionContinue notifies the owning skill that one of its
	// dialogue sessions received a continue event. The request's
	// Session field is set.
	ActionSessionContinue = "session_continue"

	// ActionSessionEnded notifies the owning skill that one of its
	// dialogue sessions ended. The request's Session field is set.
	ActionSessionEnded = "session_ended"

	// ActionShutdown asks the skill to exit. The Server acknowledges,
	// then stops accepting connections; the process exits when its
	// serve loop returns.
	ActionShutdown = "shutdown"
)

// Request is the daemon-to-skill wire envelope. Exactly one of the
// payload fields is populated, matching Action.
type Request struct {
	Action  string         `cbor:"action" json:"action"`
	Intent  *hermes.Intent `cbor:"intent,omitempty" json:"intent,omitempty"`
	Session *SessionEvent  `cbor:"session,omitempty" json:"session,omitempty"`
}

// SessionEvent describes a dialogue-session notification forwarded to
// the skill that owns the session.
type SessionEvent struct {
	SessionID  string `cbor:"session_id" json:"session_id"`
	SiteID     string `cbor:"site_id,omitempty" json:"site_id,omitempty"`
	Text       string `cbor:"text,omitempty" json:"text,omitempty"`
	CustomData string `cbor:"custom_data,omitempty" json:"custom_data,omitempty"`
}

// Response is the skill-to-daemon wire envelope.
//
// OK=false with Error set means the skill handled the request and
// failed at the application level; the skill process is still
// healthy. Transport-level failures never produce a Response.
type Response struct {
	OK    bool   `cbor:"ok" json:"ok"`
	Error string `cbor:"error,omitempty" json:"error,omitempty"`

	// Skill and Protocol are set on hello responses only.
	Skill    string `cbor:"skill,omitempty" json:"skill,omitempty"`
	Protocol int    `cbor:"protocol,omitempty" json:"protocol,omitempty"`

	// Directives are the dialogue actions the skill wants published on
	// the bus in response to this request, in order.
	Directives []Directive `cbor:"directives,omitempty" json:"directives,omitempty"`
}

// Directive kinds.
const (
	DirectiveKindContinueSession = "continue_session"
	DirectiveKindEndSession      = "end_session"
	DirectiveKindStartSession    = "start_session"
	DirectiveKindSay             = "say"
)

// Directive is one dialogue action requested by a skill. Kind selects
// which payload field is populated; the others are nil. A directive
// whose payload does not match its kind is dropped by the daemon with
// a warning.
type Directive struct {
	Kind string `cbor:"kind" json:"kind"`

	Continue *hermes.ContinueSession `cbor:"continue_session,omitempty" json:"continue_session,omitempty"`
	End      *hermes.EndSession      `cbor:"end_session,omitempty" json:"end_session,omitempty"`
	Start    *hermes.StartSession    `cbor:"start_session,omitempty" json:"start_session,omitempty"`
	Say      *hermes.Say             `cbor:"say,omitempty" json:"say,omitempty"`
}

// ContinueSessionDirective builds a directive that keeps a dialogue
// session open and prompts the user with text.
func ContinueSessionDirective(sessionID, text string) Directive {
	return Directive{
		Kind:     DirectiveKindContinueSession,
		Continue: &hermes.ContinueSession{SessionID: sessionID, Text: text},
	}
}

// EndSessionDirective builds a directive that closes a dialogue
// session, optionally speaking closing text first.
func EndSessionDirective(sessionID, text string) Directive {
	return Directive{
		Kind: DirectiveKindEndSession,
		End:  &hermes.EndSession{SessionID: sessionID, Text: text},
	}
}

// StartSessionDirective builds a directive that opens a new dialogue
// session on the skill's behalf.
func StartSessionDirective(start *hermes.StartSession) Directive {
	return Directive{Kind: DirectiveKindStartSession, Start: start}
}

// SayDirective builds a directive that speaks text outside any
// session.
func SayDirective(text, siteID string) Directive {
	return Directive{
		Kind: DirectiveKindSay,
		Say:  &hermes.Say{Text: text, SiteID: siteID},
	}
}
