// Copyright 2026 The Skillhost Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"os/signal"
	"slices"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hermeskit/skillhost/hermes"
	"github.com/hermeskit/skillhost/lib/clock"
	"github.com/hermeskit/skillhost/lib/config"
	"github.com/hermeskit/skillhost/lib/control"
	"github.com/hermeskit/skillhost/lib/portalloc"
	"github.com/hermeskit/skillhost/lib/sealed"
	"github.com/hermeskit/skillhost/lib/secret"
	"github.com/hermeskit/skillhost/lib/statefile"
	"github.com/hermeskit/skillhost/skill"
)

// inboundQueueDepth bounds how many broker messages may wait for the
// event loop. Overflow drops the newest message rather than blocking
// the broker callback.
const inboundQueueDepth = 256

// busMessage is one inbound broker message awaiting dispatch.
type busMessage struct {
	topic   string
	payload []byte
}

// reloadRequest asks the event loop to run a reload and deliver the
// outcome on reply.
type reloadRequest struct {
	trigger string
	reply   chan reloadResult
}

type reloadResult struct {
	report *control.ReloadReport
	err    error
}

// processExit notifies the event loop that a skill process was reaped.
// The proc pointer identifies which incarnation exited, so a skill
// restarted by a reload is not confused with its predecessor.
type processExit struct {
	name string
	proc *skill.Process
}

// runningSkill pairs a skill process with its serialization worker.
// The worker is the only goroutine that issues RPC to the skill, so
// messages aimed at one skill never interleave on its channel.
type runningSkill struct {
	proc *skill.Process

	// queue feeds the worker. Full queue means the skill is falling
	// behind; further messages are dropped with a warning.
	queue chan workItem

	// cancel stops the worker; workerDone closes when it has exited.
	cancel     context.CancelFunc
	workerDone chan struct{}
}

// server is the coordinator: it owns the registry, the port pool, the
// session table, the broker bridge, and one runningSkill per managed
// skill. Mutations of the running set happen only on the event loop
// (startup runs before the loop starts); workers and control handlers
// read under the mutex.
type server struct {
	cfg    *config.Config
	logger *slog.Logger
	clock  clock.Clock
	topics hermes.Topics
	watch  bool

	registry *skill.Registry
	ports    *portalloc.Allocator
	sessions *sessionTable
	echoes   *hermes.EchoFilter
	bridge   *hermes.Bridge

	// publishFunc sends one outbound message to the broker. Defaults
	// to the bridge's Publish; tests override it to capture
	// publications.
	publishFunc func(topic string, payload []byte) error

	brokerPassword *secret.Buffer
	startedAt      time.Time

	mu       sync.Mutex
	running  map[string]*runningSkill
	owners   map[string]string // intent name -> skill name
	snapshot *skill.Snapshot

	inbound chan busMessage
	reloads chan *reloadRequest
	exits   chan processExit
}

// newServer wires the coordinator from configuration. Nothing is
// spawned or connected until run.
func newServer(cfg *config.Config, watch bool, logger *slog.Logger) (*server, error) {
	ports, err := portalloc.New(cfg.RPC.PortRangeStart)
	if err != nil {
		return nil, fmt.Errorf("creating port allocator: %w", err)
	}

	password, err := brokerPassword(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("resolving broker password: %w", err)
	}

	clk := clock.Real()
	topics := hermes.Topics{
		Intents:         cfg.Topics.Intents,
		StartSession:    cfg.Topics.StartSession,
		ContinueSession: cfg.Topics.ContinueSession,
		EndSession:      cfg.Topics.EndSession,
	}

	s := &server{
		cfg:            cfg,
		logger:         logger,
		clock:          clk,
		topics:         topics,
		watch:          watch,
		registry:       skill.NewRegistry(cfg.SkillsDir, logger),
		ports:          ports,
		sessions:       newSessionTable(),
		echoes:         hermes.NewEchoFilter(clk, 2*time.Duration(cfg.RPC.CallTimeoutSeconds)*time.Second),
		brokerPassword: password,
		startedAt:      clk.Now(),
		running:        make(map[string]*runningSkill),
		owners:         make(map[string]string),
		inbound:        make(chan busMessage, inboundQueueDepth),
		reloads:        make(chan *reloadRequest),
		exits:          make(chan processExit, 16),
	}

	s.bridge = hermes.NewBridge(hermes.BridgeConfig{
		URL:           cfg.Broker.URL,
		ClientID:      cfg.Broker.ClientID,
		Username:      cfg.Broker.Username,
		Password:      password,
		Keepalive:     time.Duration(cfg.Broker.KeepaliveSeconds) * time.Second,
		Subscriptions: topics.Subscriptions(),
		Clock:         clk,
	}, s.enqueueInbound, logger)
	s.publishFunc = s.bridge.Publish

	return s, nil
}

// brokerPassword resolves the broker credential: an age-sealed file
// when configured, else the plaintext config field. Returns nil when
// the broker needs no password.
func brokerPassword(cfg *config.Config, logger *slog.Logger) (*secret.Buffer, error) {
	if cfg.Broker.PasswordFile != "" {
		identity, err := sealed.LoadIdentity(cfg.Broker.IdentityFile)
		if err != nil {
			return nil, fmt.Errorf("loading broker identity: %w", err)
		}
		defer identity.Close()

		password, err := sealed.UnsealFile(cfg.Broker.PasswordFile, identity)
		if err != nil {
			return nil, fmt.Errorf("unsealing broker password: %w", err)
		}
		return password, nil
	}
	if cfg.Broker.Password != "" {
		logger.Warn("broker password configured in plaintext; prefer password_file")
		return secret.NewFromBytes([]byte(cfg.Broker.Password))
	}
	return nil, nil
}

// run starts everything and blocks until ctx is cancelled. An
// unreadable skills directory is the one startup-fatal skill error;
// individual skills that cannot start are left failed and the rest
// keep going.
func (s *server) run(ctx context.Context) error {
	snapshot, err := s.registry.Discover()
	if err != nil {
		return fmt.Errorf("discovering skills: %w", err)
	}
	s.logger.Info("skills discovered",
		"dir", s.cfg.SkillsDir,
		"valid", len(snapshot.Skills),
		"invalid", len(snapshot.Invalid),
	)

	for _, name := range snapshot.Names() {
		if err := s.startSkill(ctx, snapshot.Skills[name]); err != nil {
			s.logger.Error("skill failed to start", "skill", name, "error", err)
		}
	}
	s.mu.Lock()
	s.snapshot = snapshot
	s.rebuildOwnersLocked()
	s.mu.Unlock()

	controlServer := control.NewServer(s.cfg.Control.SocketPath, s.logger)
	s.registerControlActions(controlServer)

	reloadSignal := make(chan os.Signal, 1)
	signal.Notify(reloadSignal, syscall.SIGHUP)
	defer signal.Stop(reloadSignal)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error { return s.bridge.Run(groupCtx) })
	group.Go(func() error { s.eventLoop(groupCtx); return nil })
	group.Go(func() error { return controlServer.Serve(groupCtx) })
	group.Go(func() error { s.heartbeatLoop(groupCtx); return nil })
	group.Go(func() error { s.signalLoop(groupCtx, reloadSignal); return nil })
	if s.watch {
		group.Go(func() error { return s.watchSkills(groupCtx) })
	}

	s.writeState()
	s.logger.Info("skill server running",
		"site", s.cfg.SiteID,
		"skills_ready", s.readyCount(),
		"broker", s.cfg.Broker.URL,
	)

	<-groupCtx.Done()
	s.logger.Info("shutting down")
	runErr := group.Wait()

	// The loops are down: no more routing, reloads, or heartbeats.
	// Stop the skills with a fresh context so the per-skill grace
	// periods still apply, then leave a final snapshot for the CLI.
	s.stopAllSkills(context.Background())
	s.writeState()

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}

// close releases resources held since construction.
func (s *server) close() {
	if s.brokerPassword != nil {
		s.brokerPassword.Close()
	}
}

// enqueueInbound feeds the event loop from the broker callback.
// Dropping on overflow keeps the broker connection responsive when
// the loop falls behind; receipt order is preserved for what is kept.
func (s *server) enqueueInbound(topic string, payload []byte) {
	select {
	case s.inbound <- busMessage{topic: topic, payload: payload}:
	default:
		s.logger.Warn("inbound queue full, dropping message", "topic", topic)
	}
}

// eventLoop serializes message dispatch, reload application, and
// process-exit bookkeeping. Signals and control requests enter the
// same queue as bus events.
func (s *server) eventLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case message := <-s.inbound:
			s.dispatch(ctx, message)
		case request := <-s.reloads:
			report, err := s.reload(ctx)
			request.reply <- reloadResult{report: report, err: err}
		case exit := <-s.exits:
			s.handleExit(exit)
		}
	}
}

// signalLoop turns SIGHUP into a reload request.
func (s *server) signalLoop(ctx context.Context, reload <-chan os.Signal) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-reload:
			s.logger.Info("reload requested", "trigger", "SIGHUP")
			if _, err := s.requestReload(ctx, "sighup"); err != nil {
				s.logger.Error("reload failed", "trigger", "SIGHUP", "error", err)
			}
		}
	}
}

// heartbeatLoop refreshes the state file so its heartbeat stays
// current while the daemon is healthy.
func (s *server) heartbeatLoop(ctx context.Context) {
	ticker := s.clock.NewTicker(time.Duration(s.cfg.Control.HeartbeatSeconds) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.writeState()
		}
	}
}

// requestReload posts a reload onto the event loop and waits for the
// outcome, keeping reloads serialized with message dispatch.
func (s *server) requestReload(ctx context.Context, trigger string) (*control.ReloadReport, error) {
	request := &reloadRequest{trigger: trigger, reply: make(chan reloadResult, 1)}
	select {
	case s.reloads <- request:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case result := <-request.reply:
		return result.report, result.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// startSkill allocates a port, registers the skill, and spawns its
// process. The skill stays registered even when the start fails, so
// status reports the failure instead of losing the skill.
func (s *server) startSkill(ctx context.Context, info skill.Info) error {
	port, err := s.ports.Allocate()
	if err != nil {
		return fmt.Errorf("allocating port for %s: %w", info.Name, err)
	}

	proc := skill.NewProcess(skill.ProcessConfig{
		Info:        info,
		Port:        port,
		Interpreter: s.resolveRuntime(info),
		LogLevel:    s.cfg.LogLevel,
		Readiness:   time.Duration(s.cfg.RPC.ReadinessSeconds) * time.Second,
		CallTimeout: time.Duration(s.cfg.RPC.CallTimeoutSeconds) * time.Second,
		Grace:       time.Duration(s.cfg.RPC.GraceSeconds) * time.Second,
		ReleasePort: s.ports.Release,
		Clock:       s.clock,
		Logger:      s.logger,
	})

	workerCtx, cancel := context.WithCancel(ctx)
	rs := &runningSkill{
		proc:       proc,
		queue:      make(chan workItem, s.cfg.RPC.QueueDepth),
		cancel:     cancel,
		workerDone: make(chan struct{}),
	}

	s.mu.Lock()
	s.running[info.Name] = rs
	s.mu.Unlock()

	startErr := proc.Start(ctx)

	go s.runWorker(workerCtx, info.Name, rs)
	if startErr == nil {
		go s.watchExit(ctx, info.Name, proc)
	}

	s.writeState()
	return startErr
}

// resolveRuntime maps a manifest's runtime name onto an executable.
// The runtimes config overrides by name; anything else is handed to
// exec as-is and resolved via PATH. Direct-exec skills return "".
func (s *server) resolveRuntime(info skill.Info) string {
	runtime := info.Manifest.Runtime
	if runtime == "" {
		return ""
	}
	if path, ok := s.cfg.Runtimes[runtime]; ok {
		return path
	}
	return runtime
}

// stopSkill retires one skill: the worker drains first so no new RPC
// starts, then the process goes through the graceful stop sequence,
// then the skill's sessions close. The caller removes the entry from
// the running map.
func (s *server) stopSkill(ctx context.Context, name string, rs *runningSkill) {
	rs.cancel()
	<-rs.workerDone
	rs.proc.Stop(ctx)

	if closed := s.sessions.closeAll(name); len(closed) > 0 {
		s.logger.Debug("closed sessions of stopped skill", "skill", name, "sessions", len(closed))
	}
}

// stopAllSkills stops every managed skill concurrently; each skill
// still gets its own grace period.
func (s *server) stopAllSkills(ctx context.Context) {
	s.mu.Lock()
	stopping := s.running
	s.running = make(map[string]*runningSkill)
	s.owners = make(map[string]string)
	s.mu.Unlock()

	var wg sync.WaitGroup
	for name, rs := range stopping {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.stopSkill(ctx, name, rs)
		}()
	}
	wg.Wait()

	if len(stopping) > 0 {
		s.logger.Info("all skills stopped", "count", len(stopping))
	}
}

// watchExit posts a process-exit notification onto the event loop
// once the reaper has run.
func (s *server) watchExit(ctx context.Context, name string, proc *skill.Process) {
	select {
	case <-proc.Done():
	case <-ctx.Done():
		return
	}
	select {
	case s.exits <- processExit{name: name, proc: proc}:
	case <-ctx.Done():
	}
}

// handleExit reconciles an observed process exit. Stops initiated by
// the server (reload, shutdown) clean up on their own path; only a
// crash of the current incarnation needs work here.
func (s *server) handleExit(exit processExit) {
	s.mu.Lock()
	current, ok := s.running[exit.name]
	s.mu.Unlock()
	if !ok || current.proc != exit.proc {
		return
	}
	if exit.proc.State() != skill.StateFailed {
		return
	}

	if closed := s.sessions.closeAll(exit.name); len(closed) > 0 {
		s.logger.Info("closed sessions of failed skill", "skill", exit.name, "sessions", len(closed))
	}
	s.writeState()
}

// rebuildOwnersLocked recomputes the intent routing table from the
// running set. The first skill in name order wins a contested intent;
// the conflict is logged once here rather than per message.
func (s *server) rebuildOwnersLocked() {
	owners := make(map[string]string)
	for _, name := range slices.Sorted(maps.Keys(s.running)) {
		for _, intent := range s.running[name].proc.Intents() {
			if existing, taken := owners[intent]; taken {
				s.logger.Warn("intent declared by multiple skills",
					"intent", intent,
					"skill", name,
					"owner", existing,
				)
				continue
			}
			owners[intent] = name
		}
	}
	s.owners = owners
}

// readyCount returns how many skills are currently ready.
func (s *server) readyCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, rs := range s.running {
		if rs.proc.State() == skill.StateReady {
			count++
		}
	}
	return count
}

// writeState snapshots runtime state to the state file. Failures are
// logged, never fatal: the state file is advisory.
func (s *server) writeState() {
	state := statefile.State{
		PID:             os.Getpid(),
		StartedAt:       s.startedAt,
		Heartbeat:       s.clock.Now(),
		BrokerConnected: s.bridge.Healthy(),
		Skills:          s.skillStates(),
	}
	if err := statefile.Write(s.cfg.Control.StateFile, state); err != nil {
		s.logger.Warn("state file write failed", "path", s.cfg.Control.StateFile, "error", err)
	}
}

func (s *server) skillStates() []statefile.SkillState {
	s.mu.Lock()
	defer s.mu.Unlock()

	states := make([]statefile.SkillState, 0, len(s.running))
	for _, name := range slices.Sorted(maps.Keys(s.running)) {
		proc := s.running[name].proc
		state := statefile.SkillState{
			Name:         name,
			State:        string(proc.State()),
			OpenSessions: len(s.sessions.sessionsOf(name)),
		}
		if proc.State() == skill.StateReady {
			state.Port = proc.Port()
			state.PID = proc.PID()
		}
		states = append(states, state)
	}
	return states
}
