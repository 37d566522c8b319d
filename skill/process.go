// Copyright 2026 The Skillhost Authors
// SPDX-License-Identifier: Apache-2.0

package skill

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/hermeskit/skillhost/lib/clock"
	"github.com/hermeskit/skillhost/skillrpc"
)

// State is a skill process's lifecycle state.
type State string

const (
	// StateStarting covers spawn through the readiness handshake.
	StateStarting State = "starting"
	// StateReady means the skill answered hello and receives traffic.
	StateReady State = "ready"
	// StateFailed means the skill crashed, failed to start, or stopped
	// answering RPC. The daemon routes nothing to a failed skill.
	StateFailed State = "failed"
	// StateStopped means the skill exited through the stop sequence.
	StateStopped State = "stopped"
)

// StartError reports a skill that could not be brought to Ready. The
// daemon logs it and continues with the remaining skills.
type StartError struct {
	Skill string
	Err   error
}

func (e *StartError) Error() string {
	return fmt.Sprintf("starting skill %s: %v", e.Skill, e.Err)
}

func (e *StartError) Unwrap() error { return e.Err }

// ProcessConfig assembles everything a Process needs. The timing
// fields are the daemon defaults; manifest overrides win.
type ProcessConfig struct {
	Info Info

	// Port is the allocated loopback RPC port.
	Port int

	// Interpreter is the resolved runtime executable prepended to the
	// argv, empty for direct execution.
	Interpreter string

	// LogLevel is passed to the skill via --log-level. Empty means
	// "info".
	LogLevel string

	Readiness   time.Duration
	CallTimeout time.Duration
	Grace       time.Duration

	// ReleasePort is called exactly once when the port is no longer
	// in use, whatever path the process died by.
	ReleasePort func(port int)

	Clock  clock.Clock
	Logger *slog.Logger
}

// Process is the host-side handle for one skill child process: spawn,
// readiness handshake, RPC calls, and the stop escalation. All
// methods are safe for concurrent use.
type Process struct {
	info        Info
	port        int
	interpreter string
	logLevel    string
	readiness   time.Duration
	grace       time.Duration
	releasePort func(int)
	clock       clock.Clock
	logger      *slog.Logger

	rpc *skillrpc.Client

	mu       sync.Mutex
	state    State
	lastErr  error
	cmd      *exec.Cmd
	exitCode int
	stopping bool

	// done is closed by the reaper once the process has been waited
	// on; for a process that never spawned it is closed by Start.
	done chan struct{}

	releaseOnce sync.Once
}

// NewProcess creates a process handle in state Starting. Nothing is
// spawned until Start.
func NewProcess(cfg ProcessConfig) *Process {
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logLevel := cfg.LogLevel
	if logLevel == "" {
		logLevel = "info"
	}
	logger := cfg.Logger.With("skill", cfg.Info.Name)
	return &Process{
		info:        cfg.Info,
		port:        cfg.Port,
		interpreter: cfg.Interpreter,
		logLevel:    logLevel,
		readiness:   cfg.Info.Manifest.ReadinessWindow(cfg.Readiness),
		grace:       cfg.Info.Manifest.GracePeriod(cfg.Grace),
		releasePort: cfg.ReleasePort,
		clock:       clk,
		logger:      logger,
		rpc:         skillrpc.NewClient(cfg.Port, cfg.Info.Manifest.CallTimeout(cfg.CallTimeout), clk, logger),
		state:       StateStarting,
		done:        make(chan struct{}),
	}
}

// Start spawns the skill process and performs the readiness
// handshake. On any failure the process is dead, the port is
// released, the state is Failed, and the returned error is a
// *StartError.
func (p *Process) Start(ctx context.Context) error {
	argv := p.buildArgv()
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = p.info.Dir
	cmd.Env = append(os.Environ(), p.buildEnv()...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return p.failStart(fmt.Errorf("stdout pipe: %w", err))
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return p.failStart(fmt.Errorf("stderr pipe: %w", err))
	}

	if err := cmd.Start(); err != nil {
		return p.failStart(fmt.Errorf("spawning %s: %w", argv[0], err))
	}

	p.mu.Lock()
	p.cmd = cmd
	p.mu.Unlock()

	go p.forwardOutput("stdout", stdout)
	go p.forwardOutput("stderr", stderr)
	go p.reap(cmd)

	p.logger.Info("skill process spawned",
		"pid", cmd.Process.Pid,
		"port", p.port,
	)

	// Abort the handshake wait as soon as the process exits; a dead
	// process cannot become ready.
	waitCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-p.done:
			cancel()
		case <-waitCtx.Done():
		}
	}()

	hello, err := p.rpc.WaitReady(waitCtx, p.readiness)
	if err != nil {
		if code, exited := p.ExitCode(); exited {
			err = fmt.Errorf("process exited with code %d before answering hello", code)
		}
		p.logger.Warn("skill failed readiness handshake", "error", err)
		p.signal(syscall.SIGKILL)
		<-p.done
		p.setFailed(err)
		return &StartError{Skill: p.info.Name, Err: err}
	}

	p.mu.Lock()
	p.state = StateReady
	p.mu.Unlock()
	p.logger.Info("skill ready",
		"reported_name", hello.Skill,
		"protocol", hello.Protocol,
		"port", p.port,
	)
	return nil
}

// Call forwards one request to the skill with the per-skill timeout.
// Errors carry skillrpc.ErrTimeout or skillrpc.ErrConnectionLost; the
// caller decides to mark the skill failed.
func (p *Process) Call(ctx context.Context, request *skillrpc.Request) (*skillrpc.Response, error) {
	return p.rpc.Call(ctx, request)
}

// MarkFailed records an unhealthy skill after an RPC failure. Only a
// Ready skill transitions; crash and stop paths set their own states.
func (p *Process) MarkFailed(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == StateReady {
		p.state = StateFailed
		p.lastErr = err
	}
}

// Stop brings the process down gracefully: an RPC shutdown request,
// then SIGTERM, then SIGKILL, with the grace period between phases.
// Safe to call on a dead or never-started process; concurrent calls
// wait for the first to finish.
func (p *Process) Stop(ctx context.Context) {
	p.mu.Lock()
	if p.cmd == nil {
		p.mu.Unlock()
		return
	}
	if p.stopping {
		p.mu.Unlock()
		<-p.done
		return
	}
	select {
	case <-p.done:
		// Already dead; a crash state stands.
		p.mu.Unlock()
		return
	default:
	}
	p.stopping = true
	p.mu.Unlock()

	p.logger.Info("stopping skill")

	if err := p.rpc.Shutdown(ctx); err != nil {
		p.logger.Debug("shutdown request failed", "error", err)
	}
	if p.waitExit(ctx) {
		return
	}

	p.logger.Warn("skill ignored shutdown request, sending SIGTERM")
	p.signal(syscall.SIGTERM)
	if p.waitExit(ctx) {
		return
	}

	p.logger.Warn("skill ignored SIGTERM, sending SIGKILL")
	p.signal(syscall.SIGKILL)
	<-p.done
}

// Name returns the skill name.
func (p *Process) Name() string { return p.info.Name }

// Info returns the discovery record this process was started from.
func (p *Process) Info() Info { return p.info }

// Port returns the allocated RPC port.
func (p *Process) Port() int { return p.port }

// Intents returns the intent names the skill's manifest claims.
func (p *Process) Intents() []string { return p.info.Manifest.Intents }

// State returns the current lifecycle state.
func (p *Process) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// LastError returns the error behind a Failed state, or nil.
func (p *Process) LastError() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastErr
}

// PID returns the child's process id, or 0 before spawn.
func (p *Process) PID() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cmd == nil || p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// Done returns a channel closed once the process has been reaped.
// The daemon watches it to observe crashes.
func (p *Process) Done() <-chan struct{} { return p.done }

// ExitCode returns the process's exit code and whether it has exited.
// A process that never spawned reports -1.
func (p *Process) ExitCode() (int, bool) {
	select {
	case <-p.done:
	default:
		return 0, false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitCode, true
}

// Alive probes the process with signal 0.
func (p *Process) Alive() bool {
	p.mu.Lock()
	cmd := p.cmd
	p.mu.Unlock()
	if cmd == nil || cmd.Process == nil {
		return false
	}
	select {
	case <-p.done:
		return false
	default:
	}
	return cmd.Process.Signal(syscall.Signal(0)) == nil
}

// buildArgv assembles the command line: the interpreter when a
// runtime is declared, the entry point, the standard flags, then the
// manifest's extra args.
func (p *Process) buildArgv() []string {
	argv := make([]string, 0, len(p.info.Manifest.Args)+6)
	if p.interpreter != "" {
		argv = append(argv, p.interpreter)
	}
	argv = append(argv, p.info.EntryPath,
		"--port", strconv.Itoa(p.port),
		"--log-level", p.logLevel,
	)
	argv = append(argv, p.info.Manifest.Args...)
	return argv
}

// buildEnv returns the environment additions: manifest env first, so
// SKILLHOST_PORT always wins.
func (p *Process) buildEnv() []string {
	env := make([]string, 0, len(p.info.Manifest.Env)+1)
	for key, value := range p.info.Manifest.Env {
		env = append(env, key+"="+value)
	}
	env = append(env, "SKILLHOST_PORT="+strconv.Itoa(p.port))
	return env
}

// failStart handles failures before the process existed.
func (p *Process) failStart(err error) error {
	p.mu.Lock()
	p.state = StateFailed
	p.lastErr = err
	p.exitCode = -1
	p.mu.Unlock()
	close(p.done)
	p.releasePortOnce()
	return &StartError{Skill: p.info.Name, Err: err}
}

func (p *Process) setFailed(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = StateFailed
	p.lastErr = err
}

// reap waits for the child, records the outcome, closes done, and
// releases the port.
func (p *Process) reap(cmd *exec.Cmd) {
	waitErr := cmd.Wait()
	code := 0
	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			code = exitErr.ExitCode()
		} else {
			code = -1
		}
	}

	p.mu.Lock()
	p.exitCode = code
	stopping := p.stopping
	if stopping {
		p.state = StateStopped
	} else if p.state == StateReady {
		p.state = StateFailed
		p.lastErr = fmt.Errorf("process exited with code %d", code)
	}
	p.mu.Unlock()
	close(p.done)
	p.releasePortOnce()

	if stopping || code == 0 {
		p.logger.Info("skill process exited", "code", code)
	} else {
		p.logger.Warn("skill process exited unexpectedly", "code", code)
	}
}

// waitExit waits up to the grace period for the reaper. A cancelled
// ctx skips ahead to the next escalation.
func (p *Process) waitExit(ctx context.Context) bool {
	select {
	case <-p.done:
		return true
	case <-p.clock.After(p.grace):
		return false
	case <-ctx.Done():
		return false
	}
}

func (p *Process) signal(sig syscall.Signal) {
	p.mu.Lock()
	cmd := p.cmd
	p.mu.Unlock()
	if cmd != nil && cmd.Process != nil {
		cmd.Process.Signal(sig)
	}
}

func (p *Process) releasePortOnce() {
	p.releaseOnce.Do(func() {
		if p.releasePort != nil {
			p.releasePort(p.port)
		}
	})
}

// forwardOutput copies one child output stream into the daemon log,
// line by line.
func (p *Process) forwardOutput(stream string, r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 256*1024)
	for scanner.Scan() {
		p.logger.Info("skill output", "stream", stream, "line", scanner.Text())
	}
}
