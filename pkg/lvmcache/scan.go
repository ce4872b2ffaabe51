package lvmcache

import (
	"context"
	"fmt"

	"k8s.io/klog/v2"
)

// This file implements §4.7, scan orchestration: the single entry point
// a command uses to populate the cache from the devices currently
// visible on the host.

// Scanner invokes the label-reading/PV-identification half of a scan
// and feeds every result through Cache.Update (spec §6 "Label scanner").
// Concrete implementations live in pkg/labelscan.
type Scanner interface {
	ScanDevices(ctx context.Context, c *Cache, devices []Device) error
}

// IndependentMetadataScanner performs the follow-up scan for formats
// whose metadata does not live in a PV's own metadata areas (spec §4.7
// step 5, §6 "Format handler" HasIndependentMetadataLocation).
type IndependentMetadataScanner interface {
	ScanIndependentMetadata(ctx context.Context, c *Cache, format Format) error
}

// Scan runs one full scan pass over devices (spec §4.7). It is guarded
// by a reentrancy flag: a nested Scan call is a programming error,
// because a scan callback that itself triggers a scan would corrupt the
// scan-local state (found-duplicates, unused-duplicates).
//
// Sequence: clear found-duplicates, invoke the scanner over every
// device, arbitrate if any duplicates were found, run the independent
// metadata scan for every format that needs one, and return the
// non-orphan VG count.
func (c *Cache) Scan(ctx context.Context, scanner Scanner, devices []Device, inspector DeviceInspector, indep IndependentMetadataScanner, formats []Format) (int, error) {
	if c.scanning {
		return 0, logProgrammingError("Scan", fmt.Errorf("%w: nested scan", ErrProgrammingError))
	}
	c.scanning = true
	defer func() { c.scanning = false }()

	c.clearFoundDuplicates()

	if scanner != nil {
		if err := scanner.ScanDevices(ctx, c, devices); err != nil {
			return 0, err
		}
	}

	if c.DuplicatesSeen() {
		result := c.Arbitrate(inspector, c.unusedDuplicates)
		if err := c.applyArbitrationResult(ctx, scanner, result); err != nil {
			return 0, err
		}
	}

	if indep != nil {
		for _, f := range formats {
			if f == nil || !f.HasIndependentMetadataLocation() {
				continue
			}
			if err := indep.ScanIndependentMetadata(ctx, c, f); err != nil {
				klog.Errorf("lvmcache: independent metadata scan failed for format %s: %v", f.Name(), err)
			}
		}
	}

	return c.NonOrphanVGCount(), nil
}

// applyArbitrationResult implements spec §4.4's "Outcome": devices in
// the drop set are removed from the index, and devices in the add set
// are re-scanned and re-fed through the update pipeline (spec §4.7 step
// 4, "run the arbitrator, then apply drop/add results"). A dropped
// device's PVInfo is located by device identity, since arbitration may
// have changed which device the PV identifier now points at.
func (c *Cache) applyArbitrationResult(ctx context.Context, scanner Scanner, result ArbitrationResult) error {
	for _, dev := range result.Drop {
		if pv, ok := c.FindPVByDevice(dev); ok {
			c.DeletePVInfo(pv)
		}
	}

	if len(result.Add) == 0 {
		return nil
	}
	if scanner == nil {
		klog.Warningf("lvmcache: arbitration chose %d new incumbent(s) but no scanner was given to re-feed them", len(result.Add))
		return nil
	}
	return scanner.ScanDevices(ctx, c, result.Add)
}
