// Copyright 2026 The Skillhost Authors
// SPDX-License-Identifier: Apache-2.0

// Package portalloc hands out TCP ports for skill RPC listeners.
//
// The allocator is pure bookkeeping: a port is free when this
// allocator has not handed it out. It does not probe the OS — the
// skill process binds the port itself and startup fails loudly if
// something else took it. Allocation always returns the lowest free
// port at or above the configured start, so a skill restarted after a
// crash gets its old port back as long as nothing else claimed it in
// between.
package portalloc

import (
	"fmt"
	"sync"
)

// maxPort is the highest port Allocate will hand out.
const maxPort = 65535

// Allocator tracks which ports are in use. All methods are safe for
// concurrent use; operations are serialized by an internal mutex.
type Allocator struct {
	mu        sync.Mutex
	start     int
	allocated map[int]bool
}

// New returns an Allocator that hands out ports starting at start.
func New(start int) (*Allocator, error) {
	if start < 1 || start > maxPort {
		return nil, fmt.Errorf("port range start %d outside 1..%d", start, maxPort)
	}
	return &Allocator{
		start:     start,
		allocated: make(map[int]bool),
	}, nil
}

// Allocate returns the lowest free port at or above the start port and
// marks it allocated. Returns an error if every port up to 65535 is
// taken.
func (a *Allocator) Allocate() (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for port := a.start; port <= maxPort; port++ {
		if !a.allocated[port] {
			a.allocated[port] = true
			return port, nil
		}
	}
	return 0, fmt.Errorf("no free ports in %d..%d", a.start, maxPort)
}

// Release returns a port to the free pool. Releasing a port that is
// not allocated is a no-op, so release paths do not need to track
// whether the port was ever handed out.
func (a *Allocator) Release(port int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.allocated, port)
}

// Reserve marks a specific port as allocated. Returns an error if the
// port is already taken or outside the allocator's range. Used when
// re-adopting a skill that is already bound to a port.
func (a *Allocator) Reserve(port int) error {
	if port < a.start || port > maxPort {
		return fmt.Errorf("port %d outside %d..%d", port, a.start, maxPort)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.allocated[port] {
		return fmt.Errorf("port %d already allocated", port)
	}
	a.allocated[port] = true
	return nil
}

// InUse returns the number of currently allocated ports.
func (a *Allocator) InUse() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.allocated)
}
