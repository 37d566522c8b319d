// Copyright 2026 The Skillhost Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads and validates the daemon configuration.
//
// Configuration is a single YAML file located via the SKILLHOST_CONFIG
// environment variable (or the daemon's -config flag). Values the file
// omits keep their defaults from Default, so a minimal file is just:
//
//	skills_dir: /srv/skills
//	broker:
//	  url: tcp://broker.local:1883
//
// Path fields support ${VAR} and ${VAR:-default} expansion; nothing
// else in the file is touched by the environment.
package config
