package lvmcache

// This file implements the PVInfo half of §4.2's entity store.

// CreatePVInfo allocates a PVInfo for dev, binds the device, and creates
// a fresh label for it through labeller (spec §4.2 "Create PVInfo").
// The PVInfo starts unbound (no VG) and is indexed under pvid.
func (c *Cache) CreatePVInfo(labeller Labeller, dev Device, pvid string) (*PVInfo, error) {
	if dev == nil || labeller == nil {
		return nil, logProgrammingError("CreatePVInfo", ErrAllocationFailed)
	}

	label, err := labeller.CreateLabel(dev, pvid)
	if err != nil {
		return nil, err
	}

	h := c.nextPV
	c.nextPV++

	pv := &PVInfo{
		handle: h,
		dev:    dev,
		pvid:   pvid,
		label:  label,
	}
	c.pvs[h] = pv
	c.byPVID[pvid] = h
	c.byDeviceID[dev.ID()] = h
	return pv, nil
}

// FindPVByDevice looks up a PVInfo by device identity, used by the
// update pipeline to detect a re-label (same device, new PV identifier).
func (c *Cache) FindPVByDevice(dev Device) (*PVInfo, bool) {
	h, ok := c.byDeviceID[dev.ID()]
	if !ok {
		return nil, false
	}
	return c.pvs[h], true
}

// AttachPV attaches pv to vg: appends it to vg's member list and points
// pv's back-reference at vg (spec §4.2 "Attach/detach").
func (c *Cache) AttachPV(pv *PVInfo, vg *VGInfo) {
	vg.pvs = append(vg.pvs, pv.handle)
	pv.vg = vg.handle
}

// DetachPV removes pv from its VGInfo's member list and clears its
// back-reference. It does NOT free the VGInfo even if this empties it;
// call DropIfDangling explicitly (spec §4.2).
func (c *Cache) DetachPV(pv *PVInfo) {
	if pv.vg == noHandle {
		return
	}
	vg := c.vgs[pv.vg]
	if vg != nil {
		for i, h := range vg.pvs {
			if h == pv.handle {
				vg.pvs = append(vg.pvs[:i], vg.pvs[i+1:]...)
				break
			}
		}
	}
	pv.vg = noHandle
}

// VG returns the VGInfo pv is currently attached to, or nil if unbound.
func (c *Cache) VG(pv *PVInfo) *VGInfo {
	return c.getVG(pv.vg)
}

// DropIfDangling destroys vg if it is non-orphan and has no members
// (spec §4.2: "destroys the VGInfo only if it is non-orphan and
// memberless"). Returns true if vg was destroyed.
func (c *Cache) DropIfDangling(vg *VGInfo) bool {
	if vg == nil || vg.IsOrphan() || len(vg.pvs) != 0 {
		return false
	}
	c.destroyVGInfo(vg)
	return true
}

// DeletePVInfo removes pv from the PV-id index, detaches it from its VG
// (dropping the VG if this was its last member), destroys its label, and
// frees it (spec §4.2 "Delete PVInfo").
func (c *Cache) DeletePVInfo(pv *PVInfo) {
	delete(c.byPVID, pv.pvid)
	delete(c.byDeviceID, pv.dev.ID())

	vg := c.getVG(pv.vg)
	c.DetachPV(pv)
	if vg != nil {
		c.DropIfDangling(vg)
	}

	delete(c.pvs, pv.handle)
}

// DemoteToOrphan moves pv to the given format's orphan VGInfo
// (creating it if necessary). Per spec §4.2, a PV with no metadata areas
// already attached to a non-orphan VG must not be demoted while a
// critical section is active; callers pass inCriticalSection=true to
// enforce that and get a no-op+false back.
func (c *Cache) DemoteToOrphan(pv *PVInfo, format Format, inCriticalSection bool) (bool, error) {
	curVG := c.getVG(pv.vg)
	if curVG != nil && !curVG.IsOrphan() && inCriticalSection {
		return false, nil
	}

	orphan, err := c.findOrCreateOrphanVGInfo(format)
	if err != nil {
		return false, err
	}
	if curVG != nil {
		c.DetachPV(pv)
		c.DropIfDangling(curVG)
	}
	c.AttachPV(pv, orphan)
	return true, nil
}

// Rebind changes pv's PV identifier (the "re-label" path of spec §4.3
// step 2) and reconciles the PV-id index.
func (c *Cache) Rebind(pv *PVInfo, newPVID string) {
	if newPVID == pv.pvid {
		return
	}
	delete(c.byPVID, pv.pvid)
	pv.pvid = newPVID
	c.byPVID[newPVID] = pv.handle
}
