// Copyright 2026 The Skillhost Authors
// SPDX-License-Identifier: Apache-2.0

package skill

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// writeSkillDir creates a skill directory with the given manifest and
// an entry file, returning the directory path.
func writeSkillDir(t *testing.T, root, name, manifest string, entryMode os.FileMode) string {
	t.Helper()
	dir := filepath.Join(root, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if manifest != "" {
		if err := os.WriteFile(filepath.Join(dir, ManifestFilename), []byte(manifest), 0o644); err != nil {
			t.Fatalf("WriteFile manifest: %v", err)
		}
	}
	if err := os.WriteFile(filepath.Join(dir, "run.sh"), []byte("#!/bin/sh\nexit 0\n"), entryMode); err != nil {
		t.Fatalf("WriteFile entry: %v", err)
	}
	return dir
}

func TestLoadValidManifest(t *testing.T) {
	dir := writeSkillDir(t, t.TempDir(), "weather", `
entry: run.sh
args: ["--region", "eu"]
env:
  API_KEY: abc123
intents:
  - GetWeather
  - GetForecast
readiness_seconds: 20
rpc_timeout_seconds: 5
grace_seconds: 2
`, 0o755)

	manifest, entryPath, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if manifest.Entry != "run.sh" {
		t.Errorf("Entry = %q, want %q", manifest.Entry, "run.sh")
	}
	if entryPath != filepath.Join(dir, "run.sh") {
		t.Errorf("entryPath = %q, want inside %q", entryPath, dir)
	}
	if len(manifest.Args) != 2 || manifest.Args[0] != "--region" {
		t.Errorf("Args = %v", manifest.Args)
	}
	if manifest.Env["API_KEY"] != "abc123" {
		t.Errorf("Env = %v", manifest.Env)
	}
	if len(manifest.Intents) != 2 {
		t.Errorf("Intents = %v, want 2 entries", manifest.Intents)
	}
	if manifest.ReadinessSeconds != 20 {
		t.Errorf("ReadinessSeconds = %d, want 20", manifest.ReadinessSeconds)
	}
}

func TestLoadMissingManifest(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "bare")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}

	_, _, err := Load(dir)
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("Load on bare dir = %v, want fs.ErrNotExist", err)
	}
}

func TestLoadEntryRequired(t *testing.T) {
	dir := writeSkillDir(t, t.TempDir(), "noentry", "intents: [A]\n", 0o755)

	_, _, err := Load(dir)
	var invalid *InvalidManifestError
	if !errors.As(err, &invalid) {
		t.Fatalf("Load = %v, want *InvalidManifestError", err)
	}
	if invalid.Skill != "noentry" {
		t.Errorf("Skill = %q, want %q", invalid.Skill, "noentry")
	}
}

func TestLoadEntryEscapesDirectory(t *testing.T) {
	dir := writeSkillDir(t, t.TempDir(), "escape", "entry: ../../etc/passwd\nintents: [A]\n", 0o755)

	_, _, err := Load(dir)
	var invalid *InvalidManifestError
	if !errors.As(err, &invalid) {
		t.Fatalf("Load = %v, want *InvalidManifestError", err)
	}
}

func TestLoadEntryFileMissing(t *testing.T) {
	dir := writeSkillDir(t, t.TempDir(), "ghost", "entry: other.sh\nintents: [A]\n", 0o755)

	_, _, err := Load(dir)
	var invalid *InvalidManifestError
	if !errors.As(err, &invalid) {
		t.Fatalf("Load = %v, want *InvalidManifestError", err)
	}
}

func TestLoadEntryExecutableBit(t *testing.T) {
	root := t.TempDir()

	// Without a runtime the entry must be executable.
	dir := writeSkillDir(t, root, "direct", "entry: run.sh\nintents: [A]\n", 0o644)
	if _, _, err := Load(dir); err == nil {
		t.Error("Load accepted a non-executable entry without runtime")
	}

	// With a runtime the interpreter executes the entry, so the bit
	// is not required.
	dir = writeSkillDir(t, root, "scripted", "entry: run.sh\nruntime: python3\nintents: [A]\n", 0o644)
	manifest, _, err := Load(dir)
	if err != nil {
		t.Fatalf("Load with runtime: %v", err)
	}
	if manifest.Runtime != "python3" {
		t.Errorf("Runtime = %q, want %q", manifest.Runtime, "python3")
	}
}

func TestLoadIntentsRequired(t *testing.T) {
	root := t.TempDir()

	dir := writeSkillDir(t, root, "silent", "entry: run.sh\n", 0o755)
	if _, _, err := Load(dir); err == nil {
		t.Error("Load accepted a manifest without intents")
	}

	dir = writeSkillDir(t, root, "blank", "entry: run.sh\nintents: [\"\"]\n", 0o755)
	if _, _, err := Load(dir); err == nil {
		t.Error("Load accepted an empty intent name")
	}
}

func TestLoadMalformedYAML(t *testing.T) {
	dir := writeSkillDir(t, t.TempDir(), "broken", "entry: [unclosed\n", 0o755)

	_, _, err := Load(dir)
	var invalid *InvalidManifestError
	if !errors.As(err, &invalid) {
		t.Fatalf("Load = %v, want *InvalidManifestError", err)
	}
}

func TestLoadNegativeTimings(t *testing.T) {
	dir := writeSkillDir(t, t.TempDir(), "negative", "entry: run.sh\nintents: [A]\ngrace_seconds: -1\n", 0o755)

	if _, _, err := Load(dir); err == nil {
		t.Error("Load accepted a negative grace_seconds")
	}
}

func TestTimingHelpers(t *testing.T) {
	withOverride := &Manifest{ReadinessSeconds: 30, RPCTimeoutSeconds: 3, GraceSeconds: 7}
	if got := withOverride.ReadinessWindow(15 * time.Second); got != 30*time.Second {
		t.Errorf("ReadinessWindow = %v, want 30s", got)
	}
	if got := withOverride.CallTimeout(10 * time.Second); got != 3*time.Second {
		t.Errorf("CallTimeout = %v, want 3s", got)
	}
	if got := withOverride.GracePeriod(5 * time.Second); got != 7*time.Second {
		t.Errorf("GracePeriod = %v, want 7s", got)
	}

	plain := &Manifest{}
	if got := plain.ReadinessWindow(12 * time.Second); got != 12*time.Second {
		t.Errorf("ReadinessWindow fallback = %v, want 12s", got)
	}
	if got := plain.ReadinessWindow(0); got != DefaultReadinessWindow {
		t.Errorf("ReadinessWindow default = %v, want %v", got, DefaultReadinessWindow)
	}
	if got := plain.CallTimeout(0); got != DefaultCallTimeout {
		t.Errorf("CallTimeout default = %v, want %v", got, DefaultCallTimeout)
	}
	if got := plain.GracePeriod(0); got != DefaultGracePeriod {
		t.Errorf("GracePeriod default = %v, want %v", got, DefaultGracePeriod)
	}
}

func TestManifestEqual(t *testing.T) {
	base := func() *Manifest {
		return &Manifest{
			Entry:   "run.sh",
			Runtime: "python3",
			Args:    []string{"--x"},
			Env:     map[string]string{"A": "1"},
			Intents: []string{"GetWeather"},
		}
	}

	if !base().Equal(base()) {
		t.Error("identical manifests not Equal")
	}

	tests := []struct {
		name   string
		mutate func(*Manifest)
	}{
		{"entry", func(m *Manifest) { m.Entry = "other.sh" }},
		{"runtime", func(m *Manifest) { m.Runtime = "" }},
		{"args", func(m *Manifest) { m.Args = append(m.Args, "--y") }},
		{"env", func(m *Manifest) { m.Env["A"] = "2" }},
		{"intents", func(m *Manifest) { m.Intents = []string{"Other"} }},
		{"readiness", func(m *Manifest) { m.ReadinessSeconds = 1 }},
		{"rpc_timeout", func(m *Manifest) { m.RPCTimeoutSeconds = 1 }},
		{"grace", func(m *Manifest) { m.GraceSeconds = 1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mutated := base()
			tt.mutate(mutated)
			if base().Equal(mutated) {
				t.Errorf("manifests Equal despite %s change", tt.name)
			}
		})
	}
}
