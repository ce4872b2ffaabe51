package lvmcache

import (
	"context"
	"fmt"

	"k8s.io/klog/v2"
)

// This file implements the per-VG rescan flow referenced by spec §4.7:
// forcing a single VG's member devices to be re-read from disk, e.g.
// after a suspected out-of-band metadata change.

// RescanVG drops every PVInfo currently attached to vgname, re-invokes
// scanner over their devices, and reports whether the VGInfo
// reappeared. It is a no-op (and returns true without touching the
// index) when the VG's format keeps its metadata in an independent
// location, since re-reading member devices cannot recover metadata
// that was never stored on them (spec §4.7 "Independent metadata
// rescan").
func (c *Cache) RescanVG(ctx context.Context, scanner Scanner, vgname string) (bool, error) {
	vg, ok := c.FindVGByName(vgname)
	if !ok {
		return false, nil
	}
	if vg.independentMetadataLocation || (vg.format != nil && vg.format.HasIndependentMetadataLocation()) {
		return true, nil
	}

	devices := make([]Device, 0, len(vg.pvs))
	for _, h := range vg.pvs {
		if pv := c.pvs[h]; pv != nil {
			devices = append(devices, pv.dev)
		}
	}
	if len(devices) == 0 {
		return false, nil
	}
	if scanner == nil {
		return false, fmt.Errorf("%w: RescanVG requires a scanner", ErrProgrammingError)
	}

	for _, h := range append([]pvHandle(nil), vg.pvs...) {
		if pv := c.pvs[h]; pv != nil {
			c.DeletePVInfo(pv)
		}
	}

	if err := scanner.ScanDevices(ctx, c, devices); err != nil {
		return false, err
	}

	_, reappeared := c.FindVGByName(vgname)
	if !reappeared {
		klog.Warningf("lvmcache: VG %s did not reappear after rescan of %d device(s)", vgname, len(devices))
	}
	return reappeared, nil
}
