package lvmcache

import "k8s.io/klog/v2"

// This file implements §4.6, the saved-VG store: committed/precommitted
// VG shadows for a clustered caller, with deferred freeing.

// Exporter serializes a live VG to a text buffer (spec §6 "Metadata
// parser/exporter"). Concrete implementations live in pkg/vgcodec.
type Exporter interface {
	Export(vg *VGInfo, pvs []*PVInfo) ([]byte, error)
}

// Parser reimports an exported buffer, producing an independent copy
// decoupled from the live VG's lifetime (spec §4.6).
type Parser interface {
	Parse(data []byte) (*ParsedVG, error)
}

// ParsedVG is a reimported, independent copy of a VG's metadata (spec §3
// "SavedVG").
type ParsedVG struct {
	Name  string
	ID    VGID
	Seqno uint32
	Raw   []byte
}

type savedEntry struct {
	id           VGID
	committed    bool
	old          *ParsedVG
	new          *ParsedVG
	deferredFree []*ParsedVG
}

// savedVGStore is enabled only for the clustered caller (spec §4.6).
type savedVGStore struct {
	entries map[VGID]*savedEntry
}

func newSavedVGStore() *savedVGStore {
	return &savedVGStore{entries: make(map[VGID]*savedEntry)}
}

func (s *savedVGStore) teardown() {
	s.entries = make(map[VGID]*savedEntry)
}

func (s *savedVGStore) entry(id VGID) *savedEntry {
	e, ok := s.entries[id]
	if !ok {
		e = &savedEntry{id: id}
		s.entries[id] = e
	}
	return e
}

// SaveVG serializes vg via exporter, reimports it via parser, and
// installs the independent copy into the new slot (precommitted=true)
// or the old slot (spec §4.6 "Save"). A no-op when the target slot
// already holds the same sequence number. Returns (false, nil) when the
// store is disabled (non-clustered caller).
func (c *Cache) SaveVG(exporter Exporter, parser Parser, vg *VGInfo, pvs []*PVInfo, precommitted bool) (bool, error) {
	if c.saved == nil {
		return false, nil
	}

	data, err := exporter.Export(vg, pvs)
	if err != nil {
		return false, err
	}
	parsed, err := parser.Parse(data)
	if err != nil {
		return false, err
	}

	e := c.saved.entry(vg.id)
	slot := &e.old
	if precommitted {
		slot = &e.new
	}

	if *slot != nil && (*slot).Seqno == parsed.Seqno {
		return false, nil // suppressed: same sequence number already saved
	}
	if *slot != nil {
		e.deferredFree = append(e.deferredFree, *slot)
		c.recordMetric(func(m MetricsSink) { m.RecordSavedVGChurn() })
	}
	*slot = parsed
	return true, nil
}

// GetSavedVG returns the requested slot (spec §4.6 "Get"). If the old
// slot is requested but a higher-seqno new slot exists, old is
// invalidated (moved to deferred-free) first. If the requested slot is
// absent while the other is present, returns (nil, false) and logs a
// warning (spec §7 "Slot underflow in saved-VG").
func (c *Cache) GetSavedVG(id VGID, precommitted bool) (*ParsedVG, bool) {
	if c.saved == nil {
		return nil, false
	}
	e, ok := c.saved.entries[id]
	if !ok {
		return nil, false
	}

	if !precommitted && e.old != nil && e.new != nil && e.new.Seqno > e.old.Seqno {
		e.deferredFree = append(e.deferredFree, e.old)
		e.old = nil
		c.recordMetric(func(m MetricsSink) { m.RecordSavedVGChurn() })
	}

	slot, other, which, otherWhich := e.old, e.new, "old", "new"
	if precommitted {
		slot, other, which, otherWhich = e.new, e.old, "new", "old"
	}
	if slot == nil {
		if other != nil {
			klog.Warningf("lvmcache: saved VG %s: requested %s slot but only %s is present", id, which, otherWhich)
		}
		return nil, false
	}
	return slot, true
}

// GetLatestSavedVG returns the new slot if the entry is committed,
// otherwise the old slot (spec §4.6 "Get-latest").
func (c *Cache) GetLatestSavedVG(id VGID) (*ParsedVG, bool) {
	if c.saved == nil {
		return nil, false
	}
	e, ok := c.saved.entries[id]
	if !ok {
		return nil, false
	}
	if e.committed {
		return e.new, e.new != nil
	}
	return e.old, e.old != nil
}

// CommitSavedVG sets the committed flag for vgname's saved entry,
// reflecting a remote commit notification (spec §4.6).
func (c *Cache) CommitSavedVG(vgname string) {
	if c.saved == nil {
		return
	}
	vg, ok := c.FindVGByName(vgname)
	if !ok {
		return
	}
	c.saved.entry(vg.id).committed = true
}

// DropSavedVG invalidates vgname's saved entry (spec §4.6 "Drop"). With
// dropPrecommitted it invalidates only the new slot, otherwise both. A
// held global lock aborts the drop entirely: the cache is trusted to
// stay consistent while the global lock is held.
func (c *Cache) DropSavedVG(vgname string, dropPrecommitted bool) {
	if c.saved == nil || c.locks.isHeld(GlobalLockName) {
		return
	}
	vg, ok := c.FindVGByName(vgname)
	if !ok {
		return
	}
	e, ok := c.saved.entries[vg.id]
	if !ok {
		return
	}
	if e.new != nil {
		e.deferredFree = append(e.deferredFree, e.new)
		e.new = nil
	}
	if !dropPrecommitted && e.old != nil {
		e.deferredFree = append(e.deferredFree, e.old)
		e.old = nil
	}
}
