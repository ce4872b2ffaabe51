package lvmcache

// This file implements the VGInfo half of §4.2's entity store: creation
// under (name, id), orphan-VGInfo lookup/creation, and destruction.

// createVGInfo allocates a new VGInfo, wires it into the name index
// (subject to the primary-selection rules of §4.1) and into the
// orphans-last registry, and indexes it by id.
func (c *Cache) createVGInfo(name string, id VGID, format Format) *VGInfo {
	h := c.nextVG
	c.nextVG++

	vg := &VGInfo{
		handle: h,
		name:   name,
		id:     id,
		format: format,
	}
	c.vgs[h] = vg

	c.insertVGIntoNameIndex(vg)
	c.appendToRegistry(h)
	if !id.IsZero() {
		c.byVGID[id] = h
	}
	return vg
}

// FindOrCreateVGInfo returns the VGInfo for (name, id), creating it (and
// wiring it into both indexes) if this is the first sighting of that
// pair (spec §4.3 step 3).
func (c *Cache) FindOrCreateVGInfo(name string, id VGID, format Format) *VGInfo {
	if vg, ok := c.FindVG(name, id); ok {
		return vg
	}
	return c.createVGInfo(name, id, format)
}

// findOrCreateOrphanVGInfo returns format's orphan VGInfo, creating it if
// this is the first reference (spec §4.2 "Orphan semantics": "Orphans
// are the default home for PVs lacking metadata areas").
func (c *Cache) findOrCreateOrphanVGInfo(format Format) (*VGInfo, error) {
	name := OrphanVGName(format.Name())
	if vg, ok := c.FindVGByName(name); ok {
		return vg, nil
	}
	return c.addOrphanVGInfo(format)
}

// addOrphanVGInfo unconditionally creates format's orphan VGInfo. It is
// exported indirectly via Reset(retainOrphans=true), which recreates
// orphan VGInfos immediately after a teardown.
func (c *Cache) addOrphanVGInfo(format Format) (*VGInfo, error) {
	if format == nil {
		return nil, logProgrammingError("addOrphanVGInfo", ErrAllocationFailed)
	}
	return c.createVGInfo(OrphanVGName(format.Name()), VGID{}, format), nil
}

// destroyVGInfo removes vg from every index and the registry and frees
// it. Callers must have already ensured vg has no members (DropIfDangling
// is the usual caller); destroyVGInfo does not re-check that itself so
// that teardown paths (which do want to destroy non-empty VGInfos) can
// call it directly.
func (c *Cache) destroyVGInfo(vg *VGInfo) {
	c.removeVGFromNameIndex(vg)
	c.removeFromRegistry(vg.handle)
	if h, ok := c.byVGID[vg.id]; ok && h == vg.handle {
		delete(c.byVGID, vg.id)
	}
	delete(c.vgs, vg.handle)
}

// setSystemID, setLockType and setCreationHost update the nullable
// string fields reconciled by the update pipeline (spec §4.3 step 5).
func (v *VGInfo) setSystemID(s string) {
	if s == "" {
		v.systemID = nil
		return
	}
	v.systemID = &s
}

func (v *VGInfo) setLockType(s string) {
	if s == "" {
		v.lockType = nil
		return
	}
	v.lockType = &s
}

func (v *VGInfo) setCreationHost(s string) {
	if s == "" {
		v.creationHost = nil
		return
	}
	v.creationHost = &s
}

func strPtrEqual(p *string, s string) bool {
	if p == nil {
		return s == ""
	}
	return *p == s
}
