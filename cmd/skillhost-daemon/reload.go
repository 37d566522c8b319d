// Copyright 2026 The Skillhost Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"

	"github.com/hermeskit/skillhost/lib/control"
	"github.com/hermeskit/skillhost/skill"
)

// reload re-walks the skills directory and converges the running set
// on the result. Only skills the diff names are touched: removed ones
// stop, changed ones restart, added ones start. A skill that fails to
// start is reported and left failed; nothing is rolled back. Runs on
// the event loop, so routing is quiescent while skills churn.
func (s *server) reload(ctx context.Context) (*control.ReloadReport, error) {
	snapshot, err := s.registry.Discover()
	if err != nil {
		return nil, fmt.Errorf("reload discovery: %w", err)
	}

	s.mu.Lock()
	previous := s.snapshot
	s.mu.Unlock()

	added, removed, changed := skill.Diff(previous, snapshot)
	report := &control.ReloadReport{}

	for _, name := range removed {
		s.mu.Lock()
		rs := s.running[name]
		delete(s.running, name)
		s.mu.Unlock()
		if rs != nil {
			s.stopSkill(ctx, name, rs)
		}
		report.Stopped = append(report.Stopped, name)
		s.logger.Info("skill removed", "skill", name)
	}

	for _, name := range changed {
		s.mu.Lock()
		rs := s.running[name]
		delete(s.running, name)
		s.mu.Unlock()
		if rs != nil {
			s.stopSkill(ctx, name, rs)
		}
		if err := s.startSkill(ctx, snapshot.Skills[name]); err != nil {
			s.logger.Error("restarting changed skill", "skill", name, "error", err)
			report.Failed = append(report.Failed, control.ReloadFailure{
				Skill: name,
				Error: err.Error(),
			})
			continue
		}
		report.Restarted = append(report.Restarted, name)
		s.logger.Info("skill restarted", "skill", name)
	}

	for _, name := range added {
		if err := s.startSkill(ctx, snapshot.Skills[name]); err != nil {
			s.logger.Error("starting added skill", "skill", name, "error", err)
			report.Failed = append(report.Failed, control.ReloadFailure{
				Skill: name,
				Error: err.Error(),
			})
			continue
		}
		report.Started = append(report.Started, name)
		s.logger.Info("skill added", "skill", name)
	}

	touched := make(map[string]bool, len(added)+len(changed))
	for _, name := range added {
		touched[name] = true
	}
	for _, name := range changed {
		touched[name] = true
	}
	for _, name := range snapshot.Names() {
		if !touched[name] {
			report.Unchanged = append(report.Unchanged, name)
		}
	}

	s.mu.Lock()
	s.snapshot = snapshot
	s.rebuildOwnersLocked()
	s.mu.Unlock()
	s.writeState()

	s.logger.Info("reload applied",
		"started", len(report.Started),
		"stopped", len(report.Stopped),
		"restarted", len(report.Restarted),
		"unchanged", len(report.Unchanged),
		"failed", len(report.Failed),
	)
	return report, nil
}
