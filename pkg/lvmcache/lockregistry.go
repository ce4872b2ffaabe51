package lvmcache

import "fmt"

// This file implements §4.5, the lock registry: per-name advisory locks
// mirrored from an external lock manager, with an ordering discipline
// and global-lock carry-over across resets.

const (
	// GlobalLockName is acquired first and released last; its state
	// survives a cache reset (spec §4.5).
	GlobalLockName = "#global"
	// OrphanLockName sorts after the global lock and after every VG name,
	// so it is acquired last; no VG lock may be taken while it is held
	// (spec §4.5).
	OrphanLockName = "#orphan"
)

// lockRank places a name in the total acquisition order: global first,
// then VG names ascending lexicographically, then orphan.
func lockRank(name string) int {
	switch name {
	case GlobalLockName:
		return 0
	case OrphanLockName:
		return 2
	default:
		return 1
	}
}

// lockOrderAllows reports whether held may remain acquired while next is
// newly acquired, i.e. held does not come after next in the total order.
func lockOrderAllows(held, next string) bool {
	rh, rn := lockRank(held), lockRank(next)
	if rh != rn {
		return rh < rn
	}
	if rh == 1 {
		return held <= next
	}
	return true // both global or both orphan: nested-lock check handles that case
}

// DeviceCacheInvalidator is signalled when the held-lock count drops to
// zero, so the external device cache can bump a monotonic epoch
// invalidating cached device sizes (spec §4.5 "Release").
type DeviceCacheInvalidator interface {
	BumpEpoch()
}

// lockRegistry is the pure bookkeeping half of §4.5: the held-name set,
// the ordering discipline, and the global-lock carry-over flag. It has
// no dependency on Cache so it can be unit tested in isolation.
type lockRegistry struct {
	held            map[string]struct{}
	heldCount       int // count of held non-global names
	orderingEnabled bool
	globalCarry     bool
}

func newLockRegistry() *lockRegistry {
	return &lockRegistry{
		held:            make(map[string]struct{}),
		orderingEnabled: true,
	}
}

// setOrderingEnabled toggles the ordering check (spec §4.5 "Ordering can
// be suppressed"). The nested-lock check is never suppressed.
func (l *lockRegistry) setOrderingEnabled(enabled bool) { l.orderingEnabled = enabled }

func (l *lockRegistry) isHeld(name string) bool {
	_, ok := l.held[name]
	return ok
}

// acquire validates ordering/nesting and records name as held. Returns
// an error without mutating state on violation.
func (l *lockRegistry) acquire(name string) error {
	if l.isHeld(name) {
		return fmt.Errorf("%w: %q", ErrNestedLock, name)
	}
	if l.orderingEnabled {
		for h := range l.held {
			if !lockOrderAllows(h, name) {
				return fmt.Errorf("%w: %q acquired after %q", ErrLockOrderViolation, name, h)
			}
		}
	}
	l.held[name] = struct{}{}
	if name != GlobalLockName {
		l.heldCount++
	}
	return nil
}

// release clears name from the held set. Returns an error, leaving state
// unchanged, if name was not held.
func (l *lockRegistry) release(name string) error {
	if !l.isHeld(name) {
		return fmt.Errorf("%w: %q", ErrUnknownLock, name)
	}
	delete(l.held, name)
	if name != GlobalLockName {
		l.heldCount--
	}
	return nil
}

// teardown implements spec §4.5 "Cache teardown behavior". With
// retainOrphans=false it remembers whether the global lock was held and,
// if it was, keeps it held across the reset without the caller
// re-acquiring it; any other held lock is logged as a programming error
// and dropped. With retainOrphans=true the lock registry is left
// untouched, matching the lighter reset path used when the caller only
// wants orphan VGInfos recreated.
func (l *lockRegistry) teardown(retainOrphans bool) {
	if retainOrphans {
		return
	}

	l.globalCarry = l.isHeld(GlobalLockName)
	for name := range l.held {
		if name == GlobalLockName {
			continue
		}
		logProgrammingError("lock registry teardown", fmt.Errorf("%w: %q still held at teardown", ErrProgrammingError, name))
	}

	l.held = make(map[string]struct{})
	l.heldCount = 0
	if l.globalCarry {
		l.held[GlobalLockName] = struct{}{}
	}
}

func (l *lockRegistry) forgetGlobalCarry() {
	l.globalCarry = false
	delete(l.held, GlobalLockName)
}

// Cache-facing API: Acquire/Release also mirror the locked bit into
// PVInfo and drive the epoch invalidator.

// AcquireLock acquires name, validating nesting and ordering (spec
// §4.5). For non-global names it mirrors the locked bit into every
// PVInfo attached to the matching VGInfo.
func (c *Cache) AcquireLock(name string) error {
	if err := c.locks.acquire(name); err != nil {
		c.recordMetric(func(m MetricsSink) { m.RecordLockOrderViolation() })
		return logProgrammingError("AcquireLock", err)
	}
	if name != GlobalLockName {
		c.setLockedBit(name, true)
	}
	return nil
}

// ReleaseLock releases name (spec §4.5).
func (c *Cache) ReleaseLock(name string) error {
	if err := c.locks.release(name); err != nil {
		return logProgrammingError("ReleaseLock", err)
	}
	if name != GlobalLockName {
		c.setLockedBit(name, false)
	}
	if c.locks.heldCount == 0 && c.epoch != nil {
		c.epoch.BumpEpoch()
	}
	return nil
}

// IsLockHeld reports whether name is currently held.
func (c *Cache) IsLockHeld(name string) bool { return c.locks.isHeld(name) }

// SetLockOrderingEnabled toggles the §4.5 ordering check for bulk
// operations where the caller guarantees safety by other means.
func (c *Cache) SetLockOrderingEnabled(enabled bool) { c.locks.setOrderingEnabled(enabled) }

// SetEpochInvalidator wires the external device cache's epoch bump hook.
func (c *Cache) SetEpochInvalidator(inv DeviceCacheInvalidator) { c.epoch = inv }

func (c *Cache) setLockedBit(vgName string, locked bool) {
	vg, ok := c.FindVGByName(vgName)
	if !ok {
		return
	}
	for _, h := range vg.pvs {
		if pv := c.pvs[h]; pv != nil {
			if locked {
				pv.status = pv.status.Set(StatusLocked)
			} else {
				pv.status = pv.status.Clear(StatusLocked)
			}
		}
	}
}
