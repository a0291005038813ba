// Copyright (c) 2026 Torii. All rights reserved.
// Author: khoi.buiminh.dev@gmail.com

// Package clock provides an injectable time source.
//
// # Why not time.Now()?
//
// Every expiry decision in the session lifecycle (token TTLs, refresh record
// activity, purge horizons) flows through a [Clock] passed in at construction.
// This keeps the logic deterministic under test: a [Fake] clock can be
// advanced past a TTL without sleeping.
package clock

import (
	"sync"
	"time"
)

// Clock is the minimal time source consumed by the session core.
type Clock interface {
	// Now returns the current time.
	Now() time.Time
}

// # System Clock

type systemClock struct{}

// Now returns the current wall-clock time.
func (systemClock) Now() time.Time { return time.Now() }

// System returns a [Clock] backed by the real wall clock.
func System() Clock { return systemClock{} }

// # Fake Clock

// Fake is a manually-advanced [Clock] for tests.
//
// # Concurrency
//
// Fake is safe for concurrent use; concurrent refresh tests read it from
// multiple goroutines.
type Fake struct {
	mu  sync.Mutex
	now time.Time
}

// NewFake returns a [Fake] frozen at the given instant.
func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

// Now returns the fake's current instant.
func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Advance moves the fake clock forward by d.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

// Set pins the fake clock to an exact instant.
func (f *Fake) Set(t time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = t
}
