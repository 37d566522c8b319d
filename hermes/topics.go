// Copyright 2026 The Skillhost Authors
// SPDX-License-Identifier: Apache-2.0

package hermes

import "strings"

// Default topic names. The subscription topics are configurable; these
// are the Hermes-convention defaults.
const (
	TopicIntentPrefix = "hermes/intent/"

	DefaultTopicIntents         = "hermes/intent/#"
	DefaultTopicStartSession    = "hermes/dialogueManager/startSession"
	DefaultTopicContinueSession = "hermes/dialogueManager/continueSession"
	DefaultTopicEndSession      = "hermes/dialogueManager/endSession"

	// TopicSay is publish-only: the server speaks through the TTS
	// component but never listens to it.
	TopicSay = "hermes/tts/say"
)

// IntentTopic returns the conventional topic an intent is published
// on.
func IntentTopic(name string) string {
	return TopicIntentPrefix + name
}

// Topics bundles the four topics the server subscribes to. The
// Intents entry is an MQTT filter (normally a trailing-# wildcard);
// the session entries are literal topic names.
type Topics struct {
	Intents         string
	StartSession    string
	ContinueSession string
	EndSession      string
}

// DefaultTopics returns the Hermes-convention topic set.
func DefaultTopics() Topics {
	return Topics{
		Intents:         DefaultTopicIntents,
		StartSession:    DefaultTopicStartSession,
		ContinueSession: DefaultTopicContinueSession,
		EndSession:      DefaultTopicEndSession,
	}
}

// Subscriptions returns the four topics in subscribe order.
func (t Topics) Subscriptions() []string {
	return []string{t.Intents, t.StartSession, t.ContinueSession, t.EndSession}
}

// MatchesIntent reports whether topic falls under the intents filter.
func (t Topics) MatchesIntent(topic string) bool {
	if prefix, ok := strings.CutSuffix(t.Intents, "#"); ok {
		return strings.HasPrefix(topic, prefix)
	}
	return topic == t.Intents
}

// IntentName extracts the intent name from an intent topic: the part
// after the intents filter's fixed prefix. Returns false for topics
// outside the filter and for the bare prefix itself.
func (t Topics) IntentName(topic string) (string, bool) {
	prefix, ok := strings.CutSuffix(t.Intents, "#")
	if !ok {
		// Non-wildcard filter: the whole topic is one intent channel
		// and the name is its last segment.
		if topic != t.Intents {
			return "", false
		}
		name := topic[strings.LastIndex(topic, "/")+1:]
		return name, name != ""
	}
	name, found := strings.CutPrefix(topic, prefix)
	if !found || name == "" {
		return "", false
	}
	return name, true
}
