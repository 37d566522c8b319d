// Copyright 2026 The Skillhost Authors
// SPDX-License-Identifier: Apache-2.0

package hermes

import (
	"sync"
	"time"

	"github.com/zeebo/blake3"

	"github.com/hermeskit/skillhost/lib/clock"
)

// maxEchoEntries bounds the filter's memory. Entries live for one TTL
// at most; hitting the cap means publishes are outpacing the TTL, and
// evicting the soonest-to-expire entry is the cheapest way to stay
// bounded.
const maxEchoEntries = 1024

// EchoFilter suppresses the broker's echoes of the server's own
// publications. The server publishes on the same session topics it
// subscribes to, and MQTT delivers a client's publications back to
// its matching subscriptions; without the filter every outbound
// session message would re-enter the routing path.
//
// Remember is called with each outbound (topic, payload) pair;
// Observe reports whether an inbound pair is the echo of a remembered
// publish, consuming the entry so a genuine duplicate from another
// publisher still passes through.
type EchoFilter struct {
	clock clock.Clock
	ttl   time.Duration

	mu      sync.Mutex
	entries map[[32]byte]time.Time
}

// NewEchoFilter creates a filter whose entries expire after ttl.
func NewEchoFilter(clk clock.Clock, ttl time.Duration) *EchoFilter {
	return &EchoFilter{
		clock:   clk,
		ttl:     ttl,
		entries: make(map[[32]byte]time.Time),
	}
}

// Remember records an outbound publication.
func (f *EchoFilter) Remember(topic string, payload []byte) {
	digest := echoDigest(topic, payload)

	f.mu.Lock()
	defer f.mu.Unlock()

	f.purgeExpired()
	if len(f.entries) >= maxEchoEntries {
		f.evictSoonest()
	}
	f.entries[digest] = f.clock.Now().Add(f.ttl)
}

// Observe reports whether the inbound message is the echo of a
// remembered publication, consuming the entry on a match.
func (f *EchoFilter) Observe(topic string, payload []byte) bool {
	digest := echoDigest(topic, payload)

	f.mu.Lock()
	defer f.mu.Unlock()

	expiry, ok := f.entries[digest]
	if !ok {
		return false
	}
	delete(f.entries, digest)
	return f.clock.Now().Before(expiry)
}

// purgeExpired drops expired entries. Caller holds mu.
func (f *EchoFilter) purgeExpired() {
	now := f.clock.Now()
	for digest, expiry := range f.entries {
		if !now.Before(expiry) {
			delete(f.entries, digest)
		}
	}
}

// evictSoonest drops the entry closest to expiry. Caller holds mu.
func (f *EchoFilter) evictSoonest() {
	var victim [32]byte
	var victimExpiry time.Time
	for digest, expiry := range f.entries {
		if victimExpiry.IsZero() || expiry.Before(victimExpiry) {
			victim = digest
			victimExpiry = expiry
		}
	}
	if !victimExpiry.IsZero() {
		delete(f.entries, victim)
	}
}

// echoDigest hashes topic and payload with a separator byte so
// (topic, payload) boundaries cannot alias (topic names never contain
// NUL).
func echoDigest(topic string, payload []byte) [32]byte {
	hasher := blake3.New()
	hasher.Write([]byte(topic))
	hasher.Write([]byte{0})
	hasher.Write(payload)
	var digest [32]byte
	hasher.Sum(digest[:0])
	return digest
}
