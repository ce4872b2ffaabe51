package lvmcache

// This file implements §4.1: the four keyed mappings plus the linear
// VGInfo registry, and the primary-selection rules used to decide which
// same-named VGInfo is reachable from the name index.

// FindPVByID looks up a PVInfo by PV identifier.
func (c *Cache) FindPVByID(pvid string) (*PVInfo, bool) {
	h, ok := c.byPVID[pvid]
	if !ok {
		return nil, false
	}
	return c.pvs[h], true
}

// FindVGByID looks up a VGInfo by VG identifier. Exactly one VGInfo per
// identifier is reachable this way (spec §4.1 invariant).
func (c *Cache) FindVGByID(id VGID) (*VGInfo, bool) {
	h, ok := c.byVGID[id]
	if !ok {
		return nil, false
	}
	return c.vgs[h], true
}

// FindVGByName returns the primary VGInfo for name, i.e. the head of its
// collision chain.
func (c *Cache) FindVGByName(name string) (*VGInfo, bool) {
	h, ok := c.byVGName[name]
	if !ok {
		return nil, false
	}
	return c.vgs[h], true
}

// FindVGsByName returns every VGInfo sharing name: the primary followed
// by its collision chain, in chain order.
func (c *Cache) FindVGsByName(name string) []*VGInfo {
	h, ok := c.byVGName[name]
	if !ok {
		return nil
	}
	var out []*VGInfo
	for h != noHandle {
		vg := c.vgs[h]
		if vg == nil {
			break
		}
		out = append(out, vg)
		h = vg.next
	}
	return out
}

// FindVG looks up the specific VGInfo for (name, id); name-collision
// chains mean a name alone is not enough to identify one.
func (c *Cache) FindVG(name string, id VGID) (*VGInfo, bool) {
	for _, vg := range c.FindVGsByName(name) {
		if vg.id.Equal(id) {
			return vg, true
		}
	}
	return nil, false
}

// vgIsPrimaryCandidate applies the ordered preference rules of spec
// §4.1 to decide whether newVG should displace the current primary.
// Rules, in order:
//  1. Not exported wins over exported.
//  2. Creation host equals the local host wins.
//  3. Having a recorded creation host wins over lacking one.
//  4. New entry whose creation host equals the local host displaces the
//     current primary.
//  5. Otherwise the existing primary is kept.
func (c *Cache) vgIsPrimaryCandidate(current, newVG *VGInfo) bool {
	curExported, newExported := current.IsExported(), newVG.IsExported()
	if curExported != newExported {
		return !newExported // rule 1: not exported wins
	}

	curIsLocal := current.creationHost != nil && *current.creationHost == c.localHost
	newIsLocal := newVG.creationHost != nil && *newVG.creationHost == c.localHost
	if curIsLocal != newIsLocal {
		return newIsLocal // rule 2
	}

	curHasHost := current.creationHost != nil
	newHasHost := newVG.creationHost != nil
	if curHasHost != newHasHost {
		return newHasHost // rule 3
	}

	if newIsLocal {
		return true // rule 4: re-affirm a local-host new entry displaces
	}

	return false // rule 5: keep existing primary
}

// insertVGIntoNameIndex wires vg into the name index, resolving
// collisions via the primary-selection rules. Call this exactly once,
// right after a new VGInfo is allocated.
func (c *Cache) insertVGIntoNameIndex(vg *VGInfo) {
	headHandle, exists := c.byVGName[vg.name]
	if !exists {
		c.byVGName[vg.name] = vg.handle
		return
	}

	head := c.vgs[headHandle]
	if c.vgIsPrimaryCandidate(head, vg) {
		// New entry becomes primary; splice the old head into its chain.
		vg.next = headHandle
		c.byVGName[vg.name] = vg.handle
		return
	}

	// Keep existing primary; append the new entry to the tail of its chain.
	cur := head
	for cur.next != noHandle {
		cur = c.vgs[cur.next]
	}
	cur.next = vg.handle
}

// removeVGFromNameIndex unlinks vg from its name's collision chain,
// rewiring the name index if vg was the primary.
func (c *Cache) removeVGFromNameIndex(vg *VGInfo) {
	headHandle, exists := c.byVGName[vg.name]
	if !exists {
		return
	}
	if headHandle == vg.handle {
		if vg.next == noHandle {
			delete(c.byVGName, vg.name)
		} else {
			c.byVGName[vg.name] = vg.next
		}
		return
	}
	prev := c.vgs[headHandle]
	for prev != nil && prev.next != vg.handle {
		prev = c.vgs[prev.next]
	}
	if prev != nil {
		prev.next = vg.next
	}
}

// appendToRegistry inserts h into the linear registry, preserving the
// property that orphan-named records come last (spec §4.1): orphans are
// appended to the tail, everything else is inserted at the head.
func (c *Cache) appendToRegistry(h vgHandle) {
	vg := c.vgs[h]
	if vg.IsOrphan() {
		c.registry = append(c.registry, h)
		return
	}
	c.registry = append([]vgHandle{h}, c.registry...)
}

func (c *Cache) removeFromRegistry(h vgHandle) {
	for i, v := range c.registry {
		if v == h {
			c.registry = append(c.registry[:i], c.registry[i+1:]...)
			return
		}
	}
}

// VGs returns every VGInfo in registry order: non-orphan entries first,
// then orphans (spec §4.1, §8 invariant).
func (c *Cache) VGs() []*VGInfo {
	out := make([]*VGInfo, 0, len(c.registry))
	for _, h := range c.registry {
		if vg := c.vgs[h]; vg != nil {
			out = append(out, vg)
		}
	}
	return out
}

// PVsOf returns vg's member PVInfos in no particular order (spec §4.6
// "Save" needs the live PV set to export alongside the VG).
func (c *Cache) PVsOf(vg *VGInfo) []*PVInfo {
	out := make([]*PVInfo, 0, len(vg.pvs))
	for _, h := range vg.pvs {
		if pv := c.getPV(h); pv != nil {
			out = append(out, pv)
		}
	}
	return out
}

// NonOrphanVGCount returns the number of non-orphan VGs indexed, the
// value the scan orchestration's top-level Scan returns to its caller
// (spec §4.7 step 6).
func (c *Cache) NonOrphanVGCount() int {
	n := 0
	for _, h := range c.registry {
		if vg := c.vgs[h]; vg != nil && !vg.IsOrphan() {
			n++
		}
	}
	return n
}
