// Copyright 2026 The Skillhost Authors
// SPDX-License-Identifier: Apache-2.0

package skill

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"testing"
)

func registryLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

const minimalManifest = "entry: run.sh\nintents: [Ping]\n"

func TestDiscoverFindsSkills(t *testing.T) {
	root := t.TempDir()
	writeSkillDir(t, root, "weather", minimalManifest, 0o755)
	writeSkillDir(t, root, "timer", minimalManifest, 0o755)

	snapshot, err := NewRegistry(root, registryLogger()).Discover()
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if got := snapshot.Names(); !slices.Equal(got, []string{"timer", "weather"}) {
		t.Fatalf("Names = %v, want [timer weather]", got)
	}

	info := snapshot.Skills["weather"]
	if info.Name != "weather" {
		t.Errorf("Name = %q, want %q", info.Name, "weather")
	}
	if info.Dir != filepath.Join(root, "weather") {
		t.Errorf("Dir = %q", info.Dir)
	}
	if info.EntryPath != filepath.Join(root, "weather", "run.sh") {
		t.Errorf("EntryPath = %q", info.EntryPath)
	}
	if info.EntryHash == ([32]byte{}) {
		t.Error("EntryHash is zero")
	}
	if len(snapshot.Invalid) != 0 {
		t.Errorf("Invalid = %v, want empty", snapshot.Invalid)
	}
}

func TestDiscoverSkipsNonSkills(t *testing.T) {
	root := t.TempDir()
	writeSkillDir(t, root, "weather", minimalManifest, 0o755)

	// A directory without a manifest, a hidden directory, and a plain
	// file are all silently ignored.
	if err := os.MkdirAll(filepath.Join(root, "assets"), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	writeSkillDir(t, root, ".git", minimalManifest, 0o755)
	if err := os.WriteFile(filepath.Join(root, "README.md"), []byte("skills"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	snapshot, err := NewRegistry(root, registryLogger()).Discover()
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if got := snapshot.Names(); !slices.Equal(got, []string{"weather"}) {
		t.Errorf("Names = %v, want [weather]", got)
	}
	if len(snapshot.Invalid) != 0 {
		t.Errorf("Invalid = %v, want empty", snapshot.Invalid)
	}
}

func TestDiscoverRecordsInvalidSkills(t *testing.T) {
	root := t.TempDir()
	writeSkillDir(t, root, "weather", minimalManifest, 0o755)
	writeSkillDir(t, root, "broken", "entry: [unclosed\n", 0o755)
	writeSkillDir(t, root, "ghost", "entry: missing.sh\nintents: [A]\n", 0o755)

	snapshot, err := NewRegistry(root, registryLogger()).Discover()
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if got := snapshot.Names(); !slices.Equal(got, []string{"weather"}) {
		t.Errorf("Names = %v, want [weather]", got)
	}
	if len(snapshot.Invalid) != 2 {
		t.Fatalf("Invalid has %d entries, want 2: %v", len(snapshot.Invalid), snapshot.Invalid)
	}
	var invalid *InvalidManifestError
	if !errors.As(snapshot.Invalid["broken"], &invalid) {
		t.Errorf("Invalid[broken] = %v, want *InvalidManifestError", snapshot.Invalid["broken"])
	}
}

func TestDiscoverUnreadableRoot(t *testing.T) {
	_, err := NewRegistry(filepath.Join(t.TempDir(), "absent"), registryLogger()).Discover()
	var discovery *DiscoveryError
	if !errors.As(err, &discovery) {
		t.Fatalf("Discover = %v, want *DiscoveryError", err)
	}
}

func TestDiffClassifiesChanges(t *testing.T) {
	root := t.TempDir()
	writeSkillDir(t, root, "stable", minimalManifest, 0o755)
	writeSkillDir(t, root, "rebuilt", minimalManifest, 0o755)
	writeSkillDir(t, root, "reconfigured", minimalManifest, 0o755)
	writeSkillDir(t, root, "retired", minimalManifest, 0o755)

	registry := NewRegistry(root, registryLogger())
	previous, err := registry.Discover()
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}

	// New entry-point content, same manifest.
	if err := os.WriteFile(filepath.Join(root, "rebuilt", "run.sh"), []byte("#!/bin/sh\nexit 1\n"), 0o755); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	// Same entry point, new manifest.
	if err := os.WriteFile(filepath.Join(root, "reconfigured", ManifestFilename), []byte("entry: run.sh\nintents: [Ping, Pong]\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := os.RemoveAll(filepath.Join(root, "retired")); err != nil {
		t.Fatalf("RemoveAll: %v", err)
	}
	writeSkillDir(t, root, "arrived", minimalManifest, 0o755)

	current, err := registry.Discover()
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}

	added, removed, changed := Diff(previous, current)
	if !slices.Equal(added, []string{"arrived"}) {
		t.Errorf("added = %v, want [arrived]", added)
	}
	if !slices.Equal(removed, []string{"retired"}) {
		t.Errorf("removed = %v, want [retired]", removed)
	}
	if !slices.Equal(changed, []string{"rebuilt", "reconfigured"}) {
		t.Errorf("changed = %v, want [rebuilt reconfigured]", changed)
	}
}

func TestDiffTreatsInvalidAsAbsent(t *testing.T) {
	root := t.TempDir()
	writeSkillDir(t, root, "weather", minimalManifest, 0o755)

	registry := NewRegistry(root, registryLogger())
	previous, err := registry.Discover()
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}

	// Break the manifest: the skill leaves the valid set, so the diff
	// reports it removed.
	if err := os.WriteFile(filepath.Join(root, "weather", ManifestFilename), []byte("entry: [broken\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	current, err := registry.Discover()
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}

	added, removed, changed := Diff(previous, current)
	if len(added) != 0 || len(changed) != 0 {
		t.Errorf("added = %v, changed = %v, want both empty", added, changed)
	}
	if !slices.Equal(removed, []string{"weather"}) {
		t.Errorf("removed = %v, want [weather]", removed)
	}
}
