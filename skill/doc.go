// Copyright 2026 The Skillhost Authors
// SPDX-License-Identifier: Apache-2.0

// Package skill handles everything about skills as host-side objects:
// manifest parsing and validation, directory discovery with
// entry-point content hashing, snapshot diffing for reload, and the
// child-process lifecycle from spawn through readiness handshake to
// graceful stop.
//
// A skill is a subdirectory of the configured skills directory
// containing a skill.yaml manifest. The directory base name is the
// skill's name everywhere: routing, logging, session ownership, and
// the control surface. Directories without a manifest are ignored;
// directories with a broken manifest are reported but never block
// other skills.
package skill
