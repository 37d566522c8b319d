// Copyright 2026 The Skillhost Authors
// SPDX-License-Identifier: Apache-2.0

package skill

import (
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// ManifestFilename is the manifest file every skill directory must
// contain to be discovered.
const ManifestFilename = "skill.yaml"

// Daemon-level fallbacks for the per-skill timing knobs. Used when
// neither the manifest nor the daemon configuration provides a value.
const (
	DefaultReadinessWindow = 15 * time.Second
	DefaultCallTimeout     = 10 * time.Second
	DefaultGracePeriod     = 5 * time.Second
)

// Manifest is the parsed skill.yaml. The skill's name is never part
// of the manifest; it is always the directory base name.
type Manifest struct {
	// Entry is the entry-point path, relative to the skill directory.
	// Required.
	Entry string `yaml:"entry"`

	// Runtime optionally names a configured runtime (for example
	// "python3") whose interpreter is prepended to the argv. Empty
	// means the entry point is executed directly and must carry an
	// executable bit.
	Runtime string `yaml:"runtime"`

	// Args are appended to the argv after the standard flags.
	Args []string `yaml:"args"`

	// Env is additional environment for the skill process.
	Env map[string]string `yaml:"env"`

	// Intents is the non-empty list of intent names this skill claims.
	// The daemon routes an intent only to the skill that declares it.
	Intents []string `yaml:"intents"`

	// Per-skill overrides of the daemon's timing defaults, in seconds.
	// Zero means "use the daemon default".
	ReadinessSeconds  int `yaml:"readiness_seconds"`
	RPCTimeoutSeconds int `yaml:"rpc_timeout_seconds"`
	GraceSeconds      int `yaml:"grace_seconds"`
}

// InvalidManifestError reports a skill whose manifest exists but
// cannot be used. The skill is excluded from the desired set;
// discovery continues past it.
type InvalidManifestError struct {
	Skill string
	Path  string
	Err   error
}

func (e *InvalidManifestError) Error() string {
	return fmt.Sprintf("skill %s: invalid manifest %s: %v", e.Skill, e.Path, e.Err)
}

func (e *InvalidManifestError) Unwrap() error { return e.Err }

// Load reads and validates the manifest in dir, returning it together
// with the resolved absolute entry-point path.
//
// A missing skill.yaml returns an fs.ErrNotExist error so callers can
// skip the directory. Every other failure returns an
// *InvalidManifestError.
func Load(dir string) (*Manifest, string, error) {
	name := filepath.Base(dir)
	path := filepath.Join(dir, ManifestFilename)

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, "", err
		}
		return nil, "", &InvalidManifestError{Skill: name, Path: path, Err: err}
	}

	var manifest Manifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, "", &InvalidManifestError{Skill: name, Path: path, Err: fmt.Errorf("parsing: %w", err)}
	}

	entryPath, err := manifest.validate(dir)
	if err != nil {
		return nil, "", &InvalidManifestError{Skill: name, Path: path, Err: err}
	}
	return &manifest, entryPath, nil
}

// validate checks the manifest against dir and returns the resolved
// entry-point path.
func (m *Manifest) validate(dir string) (string, error) {
	if m.Entry == "" {
		return "", errors.New("entry is required")
	}
	if !filepath.IsLocal(m.Entry) {
		return "", fmt.Errorf("entry %q escapes the skill directory", m.Entry)
	}
	if len(m.Intents) == 0 {
		return "", errors.New("intents must list at least one intent name")
	}
	for _, intent := range m.Intents {
		if intent == "" {
			return "", errors.New("intents must not contain empty names")
		}
	}
	if m.ReadinessSeconds < 0 || m.RPCTimeoutSeconds < 0 || m.GraceSeconds < 0 {
		return "", errors.New("timing overrides must not be negative")
	}

	entryPath := filepath.Join(dir, m.Entry)
	info, err := os.Stat(entryPath)
	if err != nil {
		return "", fmt.Errorf("entry %q: %w", m.Entry, err)
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("entry %q is not a regular file", m.Entry)
	}
	// With a runtime the interpreter executes the entry, so the file
	// itself does not need an executable bit.
	if m.Runtime == "" && info.Mode().Perm()&0o111 == 0 {
		return "", fmt.Errorf("entry %q is not executable and no runtime is declared", m.Entry)
	}
	return entryPath, nil
}

// ReadinessWindow returns the effective readiness deadline: the
// manifest override, else fallback, else the package default.
func (m *Manifest) ReadinessWindow(fallback time.Duration) time.Duration {
	if m.ReadinessSeconds > 0 {
		return time.Duration(m.ReadinessSeconds) * time.Second
	}
	if fallback > 0 {
		return fallback
	}
	return DefaultReadinessWindow
}

// CallTimeout returns the effective per-call RPC timeout.
func (m *Manifest) CallTimeout(fallback time.Duration) time.Duration {
	if m.RPCTimeoutSeconds > 0 {
		return time.Duration(m.RPCTimeoutSeconds) * time.Second
	}
	if fallback > 0 {
		return fallback
	}
	return DefaultCallTimeout
}

// GracePeriod returns the effective per-phase stop grace period.
func (m *Manifest) GracePeriod(fallback time.Duration) time.Duration {
	if m.GraceSeconds > 0 {
		return time.Duration(m.GraceSeconds) * time.Second
	}
	if fallback > 0 {
		return fallback
	}
	return DefaultGracePeriod
}

// Equal reports whether two manifests would produce the same process.
// Used by Diff to classify a skill as changed.
func (m *Manifest) Equal(other *Manifest) bool {
	if m == nil || other == nil {
		return m == other
	}
	return m.Entry == other.Entry &&
		m.Runtime == other.Runtime &&
		slices.Equal(m.Args, other.Args) &&
		maps.Equal(m.Env, other.Env) &&
		slices.Equal(m.Intents, other.Intents) &&
		m.ReadinessSeconds == other.ReadinessSeconds &&
		m.RPCTimeoutSeconds == other.RPCTimeoutSeconds &&
		m.GraceSeconds == other.GraceSeconds
}
