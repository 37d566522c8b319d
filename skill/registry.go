// Copyright 2026 The Skillhost Authors
// SPDX-License-Identifier: Apache-2.0

package skill

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/hermeskit/skillhost/lib/binhash"
)

// DiscoveryError reports that the skills directory itself could not
// be scanned. At startup this is fatal; at reload it fails that
// reload only.
type DiscoveryError struct {
	Dir string
	Err error
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("scanning skills directory %s: %v", e.Dir, e.Err)
}

func (e *DiscoveryError) Unwrap() error { return e.Err }

// Info describes one discovered, valid skill.
type Info struct {
	// Name is the skill directory's base name.
	Name string

	// Dir is the absolute skill directory path.
	Dir string

	Manifest *Manifest

	// EntryPath is the resolved absolute entry-point path.
	EntryPath string

	// EntryHash is the BLAKE3 digest of the entry-point file, used to
	// detect changed skills whose manifest is untouched.
	EntryHash [32]byte
}

// Snapshot is the result of one discovery scan.
type Snapshot struct {
	// Skills maps skill name to its discovery record.
	Skills map[string]Info

	// Invalid maps skill name to the error that excluded it. Invalid
	// skills are treated as absent for diffing.
	Invalid map[string]error
}

// Registry discovers skills under one directory.
type Registry struct {
	dir    string
	logger *slog.Logger
}

// NewRegistry creates a registry scanning dir.
func NewRegistry(dir string, logger *slog.Logger) *Registry {
	return &Registry{dir: dir, logger: logger}
}

// Dir returns the skills directory the registry scans.
func (r *Registry) Dir() string { return r.dir }

// Discover scans the skills directory. Each immediate subdirectory
// containing a valid skill.yaml becomes a Snapshot entry; directories
// without a manifest are skipped silently; broken manifests are
// recorded in Snapshot.Invalid and do not stop the scan. Only an
// unreadable root returns an error, always a *DiscoveryError.
func (r *Registry) Discover() (*Snapshot, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, &DiscoveryError{Dir: r.dir, Err: err}
	}

	snapshot := &Snapshot{
		Skills:  make(map[string]Info),
		Invalid: make(map[string]error),
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		skillDir := filepath.Join(r.dir, name)

		manifest, entryPath, err := Load(skillDir)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				r.logger.Debug("directory has no manifest, skipping", "dir", skillDir)
				continue
			}
			r.logger.Warn("skill excluded", "skill", name, "error", err)
			snapshot.Invalid[name] = err
			continue
		}

		hash, err := binhash.HashFile(entryPath)
		if err != nil {
			err = fmt.Errorf("skill %s: %w", name, err)
			r.logger.Warn("skill excluded", "skill", name, "error", err)
			snapshot.Invalid[name] = err
			continue
		}

		snapshot.Skills[name] = Info{
			Name:      name,
			Dir:       skillDir,
			Manifest:  manifest,
			EntryPath: entryPath,
			EntryHash: hash,
		}
	}
	return snapshot, nil
}

// Names returns the valid skill names in sorted order.
func (s *Snapshot) Names() []string {
	names := make([]string, 0, len(s.Skills))
	for name := range s.Skills {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Diff compares the valid skills of two snapshots. A skill counts as
// changed when its manifest differs or its entry-point content hash
// differs. All three lists are sorted by name.
func Diff(previous, current *Snapshot) (added, removed, changed []string) {
	for name, info := range current.Skills {
		old, existed := previous.Skills[name]
		switch {
		case !existed:
			added = append(added, name)
		case !old.Manifest.Equal(info.Manifest) || old.EntryHash != info.EntryHash:
			changed = append(changed, name)
		}
	}
	for name := range previous.Skills {
		if _, exists := current.Skills[name]; !exists {
			removed = append(removed, name)
		}
	}
	slices.Sort(added)
	slices.Sort(removed)
	slices.Sort(changed)
	return added, removed, changed
}
