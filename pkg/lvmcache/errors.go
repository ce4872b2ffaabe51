package lvmcache

import (
	"errors"
	"fmt"

	"k8s.io/klog/v2"
)

// Sentinel errors for the fixed error kinds of spec §7. Check with
// errors.Is rather than string matching, the same convention the
// teacher package uses for its ErrVolumeNotFound family.
var (
	// ErrProgrammingError is returned when a caller violates one of the
	// cache's structural invariants (nested lock, unlock without lock,
	// out-of-order lock acquisition, a null key on a registered entry).
	// The cache's state is left unchanged.
	ErrProgrammingError = errors.New("lvmcache: programming error")

	// ErrNestedLock is a specific ErrProgrammingError: the name is already held.
	ErrNestedLock = fmt.Errorf("%w: lock already held", ErrProgrammingError)

	// ErrUnknownLock is a specific ErrProgrammingError: release of a name
	// that was never acquired.
	ErrUnknownLock = fmt.Errorf("%w: lock not held", ErrProgrammingError)

	// ErrLockOrderViolation is a specific ErrProgrammingError: the
	// requested name would be acquired out of order relative to an
	// already-held name (spec §4.5).
	ErrLockOrderViolation = fmt.Errorf("%w: lock ordering violation", ErrProgrammingError)

	// ErrInvalidAreaCount flags a PVInfo whose area-count invariants (spec
	// §3) are violated.
	ErrInvalidAreaCount = errors.New("lvmcache: invalid area count")

	// ErrAllocationFailed surfaces a failed allocation (spec §7); no
	// partial state is left by the caller that returns it.
	ErrAllocationFailed = errors.New("lvmcache: allocation failed")
)

// logProgrammingError logs an internal error exactly the way the teacher
// package's SanitizedError.Log() renders ErrorTypeInternal, and returns
// the wrapped sentinel for the caller to propagate.
func logProgrammingError(op string, err error) error {
	klog.Errorf("[INTERNAL ERROR] lvmcache: %s: %v", op, err)
	return err
}
