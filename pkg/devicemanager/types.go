// Package devicemanager implements the "Device enumerator" external
// collaborator (SPEC_FULL.md §6): resolving device names to handles and
// answering the questions the duplicate-PV arbitrator needs.
package devicemanager

import (
	"context"
	"fmt"

	"github.com/go-lvm/lvmcache/pkg/lvmcache"
)

// Handle is the concrete lvmcache.Device implementation this package
// produces: a block device identified by its kernel major:minor pair,
// mirroring the teacher's use of device paths as the NVMe identity.
type Handle struct {
	Path  string
	Major int
	Minor int
}

// ID implements lvmcache.Device.
func (h Handle) ID() string { return fmt.Sprintf("%d:%d", h.Major, h.Minor) }

func (h Handle) String() string { return h.Path }

// Enumerator resolves the set of candidate devices on a host and answers
// the per-device questions lvmcache.DeviceInspector needs. SysEnumerator
// is the concrete, sysfs-backed implementation; both interfaces are
// satisfied by the same type so a caller only has to wire one value.
type Enumerator interface {
	lvmcache.DeviceInspector
	Enumerate(ctx context.Context) ([]lvmcache.Device, error)
}
