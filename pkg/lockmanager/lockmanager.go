// Package lockmanager implements the "External lock manager" external
// collaborator (SPEC_FULL.md §6): the CLI-facing surface that drives
// pkg/lvmcache's lock registry. A distributed implementation (DLM,
// sanlock) is explicitly out of scope per spec.md's Non-goals; this
// package ships only the single-host, in-process Locker.
package lockmanager

import (
	"fmt"

	"github.com/go-lvm/lvmcache/pkg/lvmcache"
)

// Locker acquires and releases named locks and mirrors their state into
// a Cache's lock registry.
type Locker interface {
	Lock(name string) error
	Unlock(name string) error
}

// InProcessLocker is a single-host Locker: it forwards straight to the
// wired Cache's lock registry with no cross-process coordination. Like
// Cache itself (spec §5), it assumes a single cooperative caller and
// does no internal synchronization.
type InProcessLocker struct {
	cache *lvmcache.Cache
}

// New wires an InProcessLocker to cache.
func New(cache *lvmcache.Cache) *InProcessLocker {
	return &InProcessLocker{cache: cache}
}

func (l *InProcessLocker) Lock(name string) error {
	if err := l.cache.AcquireLock(name); err != nil {
		return fmt.Errorf("lockmanager: lock %q: %w", name, err)
	}
	return nil
}

func (l *InProcessLocker) Unlock(name string) error {
	if err := l.cache.ReleaseLock(name); err != nil {
		return fmt.Errorf("lockmanager: unlock %q: %w", name, err)
	}
	return nil
}
