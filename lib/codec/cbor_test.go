// Copyright 2026 The Skillhost Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"strings"
	"testing"
)

// sampleEnvelope is a representative internal message using cbor
// struct tags (the convention for purely-internal types).
type sampleEnvelope struct {
	Action  string `cbor:"action"`
	Skill   string `cbor:"skill,omitempty"`
	Attempt int    `cbor:"attempt"`
}

// samplePayload uses json struct tags (the convention for types that
// serve both JSON and CBOR, relying on fxamacker's fallback).
type samplePayload struct {
	SessionID string `json:"sessionId"`
	SiteID    string `json:"siteId"`
}

func TestMarshalUnmarshalRoundtrip(t *testing.T) {
	original := sampleEnvelope{
		Action:  "intent",
		Skill:   "weather",
		Attempt: 3,
	}

	data, err := Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	if len(data) == 0 {
		t.Fatal("Marshal produced empty output")
	}

	var decoded sampleEnvelope
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	if decoded != original {
		t.Errorf("roundtrip mismatch: got %+v, want %+v", decoded, original)
	}
}

func TestMarshalDeterministic(t *testing.T) {
	message := sampleEnvelope{
		Action:  "status",
		Skill:   "timer",
		Attempt: 7,
	}

	first, err := Marshal(message)
	if err != nil {
		t.Fatalf("first Marshal: %v", err)
	}
	second, err := Marshal(message)
	if err != nil {
		t.Fatalf("second Marshal: %v", err)
	}

	if !bytes.Equal(first, second) {
		t.Errorf("deterministic encoding violated: %x != %x", first, second)
	}
}

func TestJSONTagFallback(t *testing.T) {
	original := samplePayload{SessionID: "sess-1", SiteID: "kitchen"}

	data, err := Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	// The CBOR map keys must come from the json tags, not the Go
	// field names.
	var asMap map[string]any
	if err := Unmarshal(data, &asMap); err != nil {
		t.Fatalf("Unmarshal into map: %v", err)
	}
	if _, ok := asMap["sessionId"]; !ok {
		t.Errorf("expected key %q in %v", "sessionId", asMap)
	}
	if _, ok := asMap["SessionID"]; ok {
		t.Errorf("Go field name leaked into encoding: %v", asMap)
	}
}

func TestUnmarshalIgnoresUnknownFields(t *testing.T) {
	data, err := Marshal(map[string]any{
		"action":  "intent",
		"attempt": 1,
		"extra":   "future field",
	})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded sampleEnvelope
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded.Action != "intent" || decoded.Attempt != 1 {
		t.Errorf("decoded = %+v, want action=intent attempt=1", decoded)
	}
}

func TestDefaultMapTypeIsStringKeyed(t *testing.T) {
	data, err := Marshal(map[string]any{"value": map[string]any{"kind": "Number"}})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded any
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	outer, ok := decoded.(map[string]any)
	if !ok {
		t.Fatalf("decoded is %T, want map[string]any", decoded)
	}
	if _, ok := outer["value"].(map[string]any); !ok {
		t.Errorf("nested value is %T, want map[string]any", outer["value"])
	}
}

func TestStreamEncoderDecoder(t *testing.T) {
	var buffer bytes.Buffer
	encoder := NewEncoder(&buffer)

	messages := []sampleEnvelope{
		{Action: "hello", Attempt: 1},
		{Action: "intent", Skill: "weather", Attempt: 2},
	}
	for _, message := range messages {
		if err := encoder.Encode(message); err != nil {
			t.Fatalf("Encode: %v", err)
		}
	}

	decoder := NewDecoder(&buffer)
	for index, want := range messages {
		var got sampleEnvelope
		if err := decoder.Decode(&got); err != nil {
			t.Fatalf("Decode message %d: %v", index, err)
		}
		if got != want {
			t.Errorf("message %d: got %+v, want %+v", index, got, want)
		}
	}
}

func TestUnmarshalRejectsGarbage(t *testing.T) {
	var decoded sampleEnvelope
	err := Unmarshal([]byte("not cbor at all"), &decoded)
	if err == nil {
		t.Fatal("Unmarshal accepted garbage input")
	}
	if !strings.Contains(err.Error(), "cbor") {
		t.Errorf("error %q does not mention cbor", err)
	}
}
