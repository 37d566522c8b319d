// Copyright 2026 The Skillhost Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"maps"
	"os"
	"slices"

	"github.com/hermeskit/skillhost/lib/codec"
	"github.com/hermeskit/skillhost/lib/control"
	"github.com/hermeskit/skillhost/skill"
)

// registerControlActions binds the control protocol to the server.
// Handlers run on socket goroutines; the mutating ones (reload) post
// onto the event loop instead of acting directly.
func (s *server) registerControlActions(cs *control.Server) {
	cs.Handle("ping", func(ctx context.Context, raw []byte) (any, error) {
		return nil, nil
	})

	cs.Handle("status", func(ctx context.Context, raw []byte) (any, error) {
		return s.statusReport(), nil
	})

	cs.Handle("skills", func(ctx context.Context, raw []byte) (any, error) {
		return s.skillReports(), nil
	})

	cs.Handle("reload", func(ctx context.Context, raw []byte) (any, error) {
		s.logger.Info("reload requested", "trigger", "control")
		return s.requestReload(ctx, "control")
	})

	cs.Handle("publish", func(ctx context.Context, raw []byte) (any, error) {
		var request control.PublishRequest
		if err := codec.Unmarshal(raw, &request); err != nil {
			return nil, errors.New("invalid publish request")
		}
		if request.Topic == "" {
			return nil, errors.New("missing required field: topic")
		}
		return nil, s.publishRaw(request.Topic, request.Payload)
	})
}

// statusReport assembles the full daemon status.
func (s *server) statusReport() control.StatusReport {
	return control.StatusReport{
		PID:             os.Getpid(),
		StartedAt:       s.startedAt,
		Uptime:          s.clock.Now().Sub(s.startedAt),
		BrokerURL:       s.cfg.Broker.URL,
		BrokerConnected: s.bridge.Healthy(),
		SiteID:          s.cfg.SiteID,
		SkillsDir:       s.cfg.SkillsDir,
		Skills:          s.skillReports(),
	}
}

// skillReports lists every managed skill plus the directories the
// last discovery rejected, so a broken manifest shows up next to the
// healthy skills instead of vanishing.
func (s *server) skillReports() []control.SkillReport {
	s.mu.Lock()
	defer s.mu.Unlock()

	reports := make([]control.SkillReport, 0, len(s.running))
	for _, name := range slices.Sorted(maps.Keys(s.running)) {
		proc := s.running[name].proc
		report := control.SkillReport{
			Name:         name,
			State:        string(proc.State()),
			Intents:      proc.Intents(),
			OpenSessions: len(s.sessions.sessionsOf(name)),
		}
		if proc.State() == skill.StateReady {
			report.Port = proc.Port()
			report.PID = proc.PID()
		}
		if err := proc.LastError(); err != nil {
			report.LastError = err.Error()
		}
		reports = append(reports, report)
	}

	if s.snapshot != nil {
		for _, name := range slices.Sorted(maps.Keys(s.snapshot.Invalid)) {
			reports = append(reports, control.SkillReport{
				Name:      name,
				State:     "invalid",
				LastError: s.snapshot.Invalid[name].Error(),
			})
		}
	}
	return reports
}
