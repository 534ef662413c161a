// Package semaphore provides the process-wide build-capacity gate shared
// by target discovery and target building (spec §4.1).
package semaphore

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// BuildSemaphore is a counting semaphore over all external-tool
// invocations (flake show and build) that consume host build capacity.
// It is initialised once at startup and treated as a fixed-lifetime
// collaborator (spec §9), never as ambient global mutable state.
type BuildSemaphore struct {
	weighted *semaphore.Weighted
	capacity int64
	inUse    atomic.Int64
}

// New constructs a BuildSemaphore with the given capacity. Fairness is not
// required (spec §4.1): starvation is bounded by the finite universe of
// commits per repository per build depth.
func New(capacity int) *BuildSemaphore {
	if capacity <= 0 {
		capacity = 1
	}
	return &BuildSemaphore{
		weighted: semaphore.NewWeighted(int64(capacity)),
		capacity: int64(capacity),
	}
}

// Capacity returns the configured number of permits.
func (s *BuildSemaphore) Capacity() int { return int(s.capacity) }

// InUse returns the number of permits currently held, for the metrics
// surface (spec §8 invariant 5: concurrently Building targets <= capacity).
func (s *BuildSemaphore) InUse() int { return int(s.inUse.Load()) }

// Execute acquires one permit, runs f, and releases the permit on every
// exit path, including a panic inside f (spec §4.1).
func (s *BuildSemaphore) Execute(ctx context.Context, f func() error) error {
	if err := s.weighted.Acquire(ctx, 1); err != nil {
		return err
	}
	s.inUse.Add(1)
	defer func() {
		s.inUse.Add(-1)
		s.weighted.Release(1)
	}()
	return f()
}
