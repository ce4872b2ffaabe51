package lvmcache

// This file implements §4.3, the update pipeline: merging a freshly
// scanned (PV identifier, device, VG summary) tuple into the index.

// Update merges one scan result into the cache (spec §4.3). It is
// idempotent for identical inputs and monotonic in scan-summary-mismatch
// (once set, the flag persists until the containing VGInfo is dropped).
func (c *Cache) Update(labeller Labeller, dev Device, pvid string, format Format, summary *VGSummary) error {
	pv, duplicate, err := c.locateOrCreatePVInfo(labeller, dev, pvid)
	if err != nil {
		return err
	}
	if duplicate {
		// spec §4.3 step 1: retain the existing entry, record the new
		// device as a duplicate, and stop without altering the index.
		c.foundDuplicates = append(c.foundDuplicates, duplicateSighting{pvid: pvid, dev: dev})
		c.duplicatesSeen = true
		return nil
	}

	if err := c.reconcileLabel(pv, labeller); err != nil {
		return err
	}

	if summary == nil {
		return nil
	}

	c.rebindToVG(pv, summary, format)
	c.reconcileVGSummary(c.getVG(pv.vg), summary)
	return nil
}

// locateOrCreatePVInfo implements spec §4.3 step 1. It returns
// duplicate=true when an existing PVInfo under pvid maps to a different
// device; the existing PVInfo is left untouched in that case.
func (c *Cache) locateOrCreatePVInfo(labeller Labeller, dev Device, pvid string) (pv *PVInfo, duplicate bool, err error) {
	if existing, ok := c.FindPVByID(pvid); ok {
		if existing.dev.ID() != dev.ID() {
			return existing, true, nil
		}
		return existing, false, nil
	}

	// Not found by pvid: maybe this device is already tracked under a
	// different (stale) pvid — a re-label. Locate it by device identity
	// and rebind it onto the new pvid rather than allocating a second
	// PVInfo for the same physical device.
	if existing, ok := c.FindPVByDevice(dev); ok {
		c.Rebind(existing, pvid)
		return existing, false, nil
	}

	pv, err = c.CreatePVInfo(labeller, dev, pvid)
	return pv, false, err
}

// reconcileLabel implements spec §4.3 step 2's format-change half: if
// the labeller differs from the one that produced pv's current label,
// the label is destroyed and recreated.
func (c *Cache) reconcileLabel(pv *PVInfo, labeller Labeller) error {
	if labeller == nil || pv.label.FormatName == labeller.Name() {
		return nil
	}
	newLabel, err := labeller.CreateLabel(pv.dev, pv.pvid)
	if err != nil {
		return err
	}
	pv.label = newLabel
	return nil
}

// rebindToVG implements spec §4.3 step 3-4: detach pv from a
// differently-named VG if needed, locate-or-create the (name, id)
// VGInfo, attach pv, and make sure the by-VG-id index reflects this
// identifier.
func (c *Cache) rebindToVG(pv *PVInfo, summary *VGSummary, format Format) {
	if curVG := c.getVG(pv.vg); curVG != nil && curVG.name != summary.Name {
		c.DetachPV(pv)
		c.DropIfDangling(curVG)
	}

	vg := c.FindOrCreateVGInfo(summary.Name, summary.ID, format)
	if vg.format == nil {
		vg.format = format
	}

	if pv.vg != vg.handle {
		c.AttachPV(pv, vg)
	}

	// step 4: "update the by-VG-id index to reflect this identifier"
	if !summary.ID.IsZero() {
		c.byVGID[summary.ID] = vg.handle
	}
}

// reconcileVGSummary implements spec §4.3 step 5.
func (c *Cache) reconcileVGSummary(vg *VGInfo, summary *VGSummary) {
	if vg == nil {
		return
	}

	vg.status = summary.Status
	if !strPtrEqual(vg.creationHost, summary.CreationHost) {
		vg.setCreationHost(summary.CreationHost)
	}
	if !strPtrEqual(vg.lockType, summary.LockType) {
		vg.setLockType(summary.LockType)
	}
	if !strPtrEqual(vg.systemID, summary.SystemID) {
		vg.setSystemID(summary.SystemID)
	}

	if !summary.HasSeqno {
		return
	}

	if !vg.summarySeen {
		vg.seqno = summary.Seqno
		vg.mdaSize = summary.MDASize
		vg.checksum = summary.Checksum
		vg.summarySeen = true
		return
	}

	if vg.seqno != summary.Seqno || vg.checksum != summary.Checksum {
		if !vg.scanSummaryMismatch {
			vg.scanSummaryMismatch = true
			c.recordMetric(func(m MetricsSink) { m.RecordScanSummaryMismatch() })
		}
		// First-sight values are preserved per spec §4.3 step 5: a later,
		// disagreeing device must not corrupt the cached summary.
	}
}

// DuplicatesSeen reports whether this command has ever observed a
// duplicate PV identifier (spec §4.3 "global duplicates seen flag").
func (c *Cache) DuplicatesSeen() bool { return c.duplicatesSeen }

// duplicateSighting records which PV identifier a duplicate device was
// found under, so the arbitrator can group alternates by identity (spec
// §4.4 "Grouping").
type duplicateSighting struct {
	pvid string
	dev  Device
}

// FoundDuplicates returns the devices accumulated by the most recent
// scan that were found to share a PV identifier with an already-indexed
// device (spec §3 "Duplicate lists").
func (c *Cache) FoundDuplicates() []Device {
	out := make([]Device, 0, len(c.foundDuplicates))
	for _, s := range c.foundDuplicates {
		out = append(out, s.dev)
	}
	return out
}

func (c *Cache) clearFoundDuplicates() { c.foundDuplicates = nil }
