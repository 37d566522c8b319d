// Copyright 2026 The Skillhost Authors
// SPDX-License-Identifier: Apache-2.0

package hermes

import (
	"encoding/json"
	"testing"
)

func TestIntentDecodesBusPayload(t *testing.T) {
	// Payload shape as the NLU publishes it, including fields this
	// server never reads; decoding must tolerate them.
	raw := []byte(`{
		"id": "8e1a3f",
		"sessionId": "sess-1234",
		"siteId": "kitchen",
		"input": "what is the weather in berlin",
		"intent": {"intentName": "GetWeather", "confidenceScore": 0.93},
		"slots": [
			{
				"entity": "city",
				"slotName": "location",
				"rawValue": "berlin",
				"value": {"kind": "Custom", "value": "Berlin"},
				"confidence": 0.88,
				"range": {"start": 23, "end": 29}
			}
		],
		"asrTokens": [],
		"asrConfidence": 0.97
	}`)

	var intent Intent
	if err := json.Unmarshal(raw, &intent); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	if intent.Intent.IntentName != "GetWeather" {
		t.Errorf("IntentName = %q, want %q", intent.Intent.IntentName, "GetWeather")
	}
	if intent.Intent.ConfidenceScore != 0.93 {
		t.Errorf("ConfidenceScore = %v, want 0.93", intent.Intent.ConfidenceScore)
	}
	if intent.SessionID != "sess-1234" {
		t.Errorf("SessionID = %q, want %q", intent.SessionID, "sess-1234")
	}
	if intent.SiteID != "kitchen" {
		t.Errorf("SiteID = %q, want %q", intent.SiteID, "kitchen")
	}
	if len(intent.Slots) != 1 {
		t.Fatalf("len(Slots) = %d, want 1", len(intent.Slots))
	}
	slot := intent.Slots[0]
	if slot.SlotName != "location" {
		t.Errorf("SlotName = %q, want %q", slot.SlotName, "location")
	}
	if slot.Value.Value != "Berlin" {
		t.Errorf("Value.Value = %v, want Berlin", slot.Value.Value)
	}
}

func TestIntentRoundTrip(t *testing.T) {
	original := Intent{
		ID:        "id-1",
		SessionID: "sess-1",
		SiteID:    "default",
		Input:     "set a timer for five minutes",
		Intent:    IntentClassification{IntentName: "SetTimer", ConfidenceScore: 0.99},
		Slots: []Slot{
			{
				Entity:     "duration",
				SlotName:   "duration",
				RawValue:   "five minutes",
				Value:      SlotValue{Kind: "Duration", Value: float64(300)},
				Confidence: 0.95,
			},
		},
	}

	data, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded Intent
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	if decoded.Intent.IntentName != original.Intent.IntentName {
		t.Errorf("IntentName = %q, want %q", decoded.Intent.IntentName, original.Intent.IntentName)
	}
	if decoded.Slots[0].Value.Value != float64(300) {
		t.Errorf("slot value = %v (%T), want 300", decoded.Slots[0].Value.Value, decoded.Slots[0].Value.Value)
	}
}

func TestSessionMessageFieldNames(t *testing.T) {
	// The bus dialect uses camelCase field names; these are protocol,
	// not style, so pin them.
	data, err := json.Marshal(ContinueSession{
		SessionID: "sess-1",
		SiteID:    "kitchen",
		Text:      "for how long?",
	})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	for _, key := range []string{"sessionId", "siteId", "text"} {
		if _, ok := fields[key]; !ok {
			t.Errorf("encoded ContinueSession missing key %q: %s", key, data)
		}
	}
	if _, ok := fields["intentFilter"]; ok {
		t.Errorf("empty intentFilter should be omitted: %s", data)
	}
}

func TestStartSessionInit(t *testing.T) {
	data, err := json.Marshal(StartSession{
		SessionID:  "sess-9",
		CustomData: "weather",
		Init: SessionInit{
			Type: SessionTypeAction,
			Text: "which city?",
		},
	})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded StartSession
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded.Init.Type != SessionTypeAction {
		t.Errorf("Init.Type = %q, want %q", decoded.Init.Type, SessionTypeAction)
	}
	if decoded.CustomData != "weather" {
		t.Errorf("CustomData = %q, want %q", decoded.CustomData, "weather")
	}
}
