// Copyright 2026 The Skillhost Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"gopkg.in/yaml.v3"
)

// Config is the daemon configuration.
type Config struct {
	// SkillsDir is the directory scanned for skills. Each immediate
	// subdirectory containing a skill.yaml is a skill; the directory
	// base name is the skill name.
	SkillsDir string `yaml:"skills_dir"`

	// SiteID is the Hermes site this server answers for. Defaults to
	// "default".
	SiteID string `yaml:"site_id"`

	// LogLevel is the slog level: debug, info, warn, or error.
	LogLevel string `yaml:"log_level"`

	// Broker configures the MQTT connection.
	Broker BrokerConfig `yaml:"broker"`

	// Topics names the four subscription topics. Defaults follow the
	// Hermes convention; override only when bridging a bus that uses a
	// different prefix.
	Topics TopicsConfig `yaml:"topics"`

	// RPC configures skill process RPC defaults. Individual skills
	// may override the timeouts in their manifest.
	RPC RPCConfig `yaml:"rpc"`

	// Control configures the local control surface.
	Control ControlConfig `yaml:"control"`

	// Runtimes maps a runtime name a skill manifest may declare to the
	// interpreter/toolchain executable that launches the skill's entry
	// point, e.g. python: /usr/bin/python3.
	Runtimes map[string]string `yaml:"runtimes"`
}

// BrokerConfig configures the MQTT connection.
type BrokerConfig struct {
	// URL is the broker address, e.g. tcp://localhost:1883.
	URL string `yaml:"url"`

	// ClientID is the MQTT client id base. A short random suffix is
	// appended so a restarted daemon never collides with its
	// half-dead predecessor's session.
	ClientID string `yaml:"client_id"`

	// Username for broker authentication. Empty means anonymous.
	Username string `yaml:"username"`

	// Password for broker authentication, in plaintext. Development
	// convenience only — the daemon logs a warning when set. Use
	// PasswordFile for deployments.
	Password string `yaml:"password"`

	// PasswordFile is the path of an age-sealed password file created
	// by "skillhost seal-password". Requires IdentityFile.
	PasswordFile string `yaml:"password_file"`

	// IdentityFile is the path of the age identity that unseals
	// PasswordFile.
	IdentityFile string `yaml:"identity_file"`

	// KeepaliveSeconds is the MQTT keepalive interval. Default 30.
	KeepaliveSeconds int `yaml:"keepalive_seconds"`
}

// TopicsConfig names the MQTT topics the daemon subscribes to.
type TopicsConfig struct {
	// Intents is the wildcard topic intent messages arrive on.
	Intents string `yaml:"intents"`

	// StartSession, ContinueSession, and EndSession are the dialogue
	// manager's session-control topics.
	StartSession    string `yaml:"start_session"`
	ContinueSession string `yaml:"continue_session"`
	EndSession      string `yaml:"end_session"`
}

// RPCConfig configures skill process defaults.
type RPCConfig struct {
	// PortRangeStart is the first port handed to skill RPC listeners.
	// Default 15000.
	PortRangeStart int `yaml:"port_range_start"`

	// ReadinessSeconds is how long a spawned skill has to answer its
	// first hello. Default 15.
	ReadinessSeconds int `yaml:"readiness_seconds"`

	// CallTimeoutSeconds bounds each RPC round trip. Default 10.
	CallTimeoutSeconds int `yaml:"call_timeout_seconds"`

	// GraceSeconds is how long Stop waits after the shutdown request
	// (and again after SIGTERM) before escalating. Default 5.
	GraceSeconds int `yaml:"grace_seconds"`

	// QueueDepth is the per-skill message queue length. Messages
	// beyond it are dropped with a warning. Default 16.
	QueueDepth int `yaml:"queue_depth"`
}

// ControlConfig configures the local control surface.
type ControlConfig struct {
	// SocketPath is the Unix socket the daemon serves control
	// requests on.
	SocketPath string `yaml:"socket_path"`

	// StateFile is where the daemon writes its runtime snapshot.
	StateFile string `yaml:"state_file"`

	// HeartbeatSeconds is the snapshot/heartbeat interval. Default 10.
	HeartbeatSeconds int `yaml:"heartbeat_seconds"`
}

// Default returns the default configuration. LoadFile overlays the
// file on top of these values, so a minimal config file only needs
// skills_dir and the broker URL.
func Default() *Config {
	return &Config{
		SkillsDir: "/var/lib/skillhost/skills",
		SiteID:    "default",
		LogLevel:  "info",
		Broker: BrokerConfig{
			URL:              "tcp://localhost:1883",
			ClientID:         "skillhost",
			KeepaliveSeconds: 30,
		},
		Topics: TopicsConfig{
			Intents:         "hermes/intent/#",
			StartSession:    "hermes/dialogueManager/startSession",
			ContinueSession: "hermes/dialogueManager/continueSession",
			EndSession:      "hermes/dialogueManager/endSession",
		},
		RPC: RPCConfig{
			PortRangeStart:     15000,
			ReadinessSeconds:   15,
			CallTimeoutSeconds: 10,
			GraceSeconds:       5,
			QueueDepth:         16,
		},
		Control: ControlConfig{
			SocketPath:       "/run/skillhost/control.sock",
			StateFile:        "/run/skillhost/state.json",
			HeartbeatSeconds: 10,
		},
	}
}

// Load loads configuration from the SKILLHOST_CONFIG environment
// variable. There are no search paths — if the variable is not set,
// this fails, ensuring deterministic, auditable configuration.
func Load() (*Config, error) {
	configPath := os.Getenv("SKILLHOST_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("SKILLHOST_CONFIG environment variable not set; " +
			"set it to the path of your skillhost.yaml config file, or use -config")
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path, overlaid on
// Default. Environment variables do not override config values; the
// only expansion performed is ${VAR} / ${VAR:-default} in path fields
// for portability.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	cfg.expandVariables()
	return cfg, nil
}

// expandVariables expands ${VAR} patterns in path fields.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}

	c.SkillsDir = expandVars(c.SkillsDir, vars)
	c.Broker.PasswordFile = expandVars(c.Broker.PasswordFile, vars)
	c.Broker.IdentityFile = expandVars(c.Broker.IdentityFile, vars)
	c.Control.SocketPath = expandVars(c.Control.SocketPath, vars)
	c.Control.StateFile = expandVars(c.Control.StateFile, vars)
	for runtime, path := range c.Runtimes {
		c.Runtimes[runtime] = expandVars(path, vars)
	}
}

// varPattern matches ${VAR} and ${VAR:-default}.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		// Check provided vars first, then environment.
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors. All problems are
// collected and reported together.
func (c *Config) Validate() error {
	var errs []error

	if c.SkillsDir == "" {
		errs = append(errs, fmt.Errorf("skills_dir is required"))
	}
	if c.SiteID == "" {
		errs = append(errs, fmt.Errorf("site_id must not be empty"))
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log_level %q must be one of: debug, info, warn, error", c.LogLevel))
	}

	if c.Broker.URL == "" {
		errs = append(errs, fmt.Errorf("broker.url is required"))
	}
	if c.Broker.ClientID == "" {
		errs = append(errs, fmt.Errorf("broker.client_id must not be empty"))
	}
	if c.Broker.KeepaliveSeconds <= 0 {
		errs = append(errs, fmt.Errorf("broker.keepalive_seconds must be positive"))
	}
	if c.Broker.Password != "" && c.Broker.PasswordFile != "" {
		errs = append(errs, fmt.Errorf("broker.password and broker.password_file are mutually exclusive"))
	}
	if c.Broker.PasswordFile != "" && c.Broker.IdentityFile == "" {
		errs = append(errs, fmt.Errorf("broker.password_file requires broker.identity_file"))
	}

	if c.Topics.Intents == "" {
		errs = append(errs, fmt.Errorf("topics.intents is required"))
	}
	if c.Topics.StartSession == "" {
		errs = append(errs, fmt.Errorf("topics.start_session is required"))
	}
	if c.Topics.ContinueSession == "" {
		errs = append(errs, fmt.Errorf("topics.continue_session is required"))
	}
	if c.Topics.EndSession == "" {
		errs = append(errs, fmt.Errorf("topics.end_session is required"))
	}

	for runtime, path := range c.Runtimes {
		if path == "" {
			errs = append(errs, fmt.Errorf("runtimes.%s must name an executable path", runtime))
		}
	}

	if c.RPC.PortRangeStart < 1 || c.RPC.PortRangeStart > 65535 {
		errs = append(errs, fmt.Errorf("rpc.port_range_start %d outside 1..65535", c.RPC.PortRangeStart))
	}
	if c.RPC.ReadinessSeconds <= 0 {
		errs = append(errs, fmt.Errorf("rpc.readiness_seconds must be positive"))
	}
	if c.RPC.CallTimeoutSeconds <= 0 {
		errs = append(errs, fmt.Errorf("rpc.call_timeout_seconds must be positive"))
	}
	if c.RPC.GraceSeconds <= 0 {
		errs = append(errs, fmt.Errorf("rpc.grace_seconds must be positive"))
	}
	if c.RPC.QueueDepth <= 0 {
		errs = append(errs, fmt.Errorf("rpc.queue_depth must be positive"))
	}

	if c.Control.SocketPath == "" {
		errs = append(errs, fmt.Errorf("control.socket_path is required"))
	}
	if c.Control.StateFile == "" {
		errs = append(errs, fmt.Errorf("control.state_file is required"))
	}
	if c.Control.HeartbeatSeconds <= 0 {
		errs = append(errs, fmt.Errorf("control.heartbeat_seconds must be positive"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// EnsureRuntimeDirs creates the directories holding the control socket
// and state file. The skills directory is deliberately NOT created:
// auto-creating it would turn a misconfigured path into an empty,
// silently skill-less server instead of a startup error.
func (c *Config) EnsureRuntimeDirs() error {
	for _, path := range []string{
		filepath.Dir(c.Control.SocketPath),
		filepath.Dir(c.Control.StateFile),
	} {
		if err := os.MkdirAll(path, 0755); err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
	}
	return nil
}
