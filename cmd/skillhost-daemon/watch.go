// Copyright 2026 The Skillhost Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watchDebounce coalesces the burst of filesystem events a deploy
// produces (unpack, chmod, rename) into one reload.
const watchDebounce = 500 * time.Millisecond

// watchSkills reloads automatically when the skills directory
// changes. Watches are not recursive, so the root and each skill
// directory are registered individually and refreshed after every
// reload to pick up new directories.
func (s *server) watchSkills(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating skills watcher: %w", err)
	}
	defer watcher.Close()

	s.addSkillWatches(watcher)
	s.logger.Info("watching skills directory", "dir", s.cfg.SkillsDir)

	// pending is nil (blocking) until an event arms the debounce.
	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			// Every op matters here: chmod toggles the entrypoint
			// exec bit that discovery keys on.
			s.logger.Debug("skills directory changed",
				"path", event.Name,
				"op", event.Op.String(),
			)
			pending = s.clock.After(watchDebounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("skills watcher error", "error", err)

		case <-pending:
			pending = nil
			s.logger.Info("reload requested", "trigger", "watch")
			if _, err := s.requestReload(ctx, "watch"); err != nil {
				s.logger.Error("reload failed", "trigger", "watch", "error", err)
			}
			s.addSkillWatches(watcher)
		}
	}
}

// addSkillWatches registers the skills root and its immediate
// subdirectories. Failures are logged and skipped: a directory that
// cannot be watched can still be reloaded by SIGHUP.
func (s *server) addSkillWatches(watcher *fsnotify.Watcher) {
	if err := watcher.Add(s.cfg.SkillsDir); err != nil {
		s.logger.Warn("watching skills dir failed", "dir", s.cfg.SkillsDir, "error", err)
		return
	}

	entries, err := os.ReadDir(s.cfg.SkillsDir)
	if err != nil {
		s.logger.Warn("listing skills dir failed", "dir", s.cfg.SkillsDir, "error", err)
		return
	}
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		path := filepath.Join(s.cfg.SkillsDir, entry.Name())
		if err := watcher.Add(path); err != nil {
			s.logger.Warn("watching skill dir failed", "dir", path, "error", err)
		}
	}
}
