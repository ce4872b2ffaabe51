package utils

import "errors"

// Sentinel errors for the device-management adapters (pkg/devicemanager).
// pkg/lvmcache defines its own sentinels for the cache's internal
// invariants; these cover the OS/filesystem boundary instead. Use
// errors.Is() to check for these rather than string matching.
var (
	// ErrDeviceNotFound indicates a device path could not be resolved.
	ErrDeviceNotFound = errors.New("device not found")

	// ErrInvalidParameter indicates an invalid parameter was provided.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrOperationTimeout indicates an operation timed out.
	ErrOperationTimeout = errors.New("operation timeout")
)
