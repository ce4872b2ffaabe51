package lvmcache

import "k8s.io/klog/v2"

// MetricsSink receives optional cache observability events. Implementations
// live in pkg/observability; the field is nil-checked everywhere it is
// used, the same pattern the teacher package uses for its optional
// *observability.Metrics field.
type MetricsSink interface {
	RecordDuplicateResolved(reason string)
	RecordScanSummaryMismatch()
	RecordLockOrderViolation()
	RecordSavedVGChurn()
}

// Cache is the in-process metadata cache (spec §1-§2). It is
// single-threaded cooperative: exactly one goroutine is expected to
// drive it at a time (spec §5), so unlike this repository's teacher
// package it holds no internal mutex.
type Cache struct {
	nextPV pvHandle
	nextVG vgHandle

	pvs map[pvHandle]*PVInfo
	vgs map[vgHandle]*VGInfo

	byPVID     map[string]pvHandle
	byDeviceID map[string]pvHandle // device identity -> PVInfo, for relabel detection
	byVGName   map[string]vgHandle // head of the name's collision chain
	byVGID     map[VGID]vgHandle

	registry []vgHandle // traversal order; orphans last

	locks *lockRegistry
	saved *savedVGStore
	epoch DeviceCacheInvalidator

	// scan-local state (spec §4.4, §4.7)
	scanning         bool
	duplicatesSeen   bool
	foundDuplicates  []duplicateSighting
	unusedDuplicates []Device

	// localHost is compared against VGSummary.CreationHost by the
	// primary-selection rules (spec §4.1 rules 2-4).
	localHost string

	metrics MetricsSink
}

// Config configures a new Cache.
type Config struct {
	// LocalHost is this host's identity, used by the primary-selection
	// rules (spec §4.1) and by saved-VG gating (clustered callers only).
	LocalHost string

	// Clustered enables the saved-VG store (spec §4.6: "enabled only for
	// the clustered caller").
	Clustered bool
}

// New creates an empty Cache.
func New(cfg Config) *Cache {
	c := &Cache{
		nextPV:   1,
		nextVG:   1,
		pvs:        make(map[pvHandle]*PVInfo),
		vgs:        make(map[vgHandle]*VGInfo),
		byPVID:     make(map[string]pvHandle),
		byDeviceID: make(map[string]pvHandle),
		byVGName:   make(map[string]vgHandle),
		byVGID:     make(map[VGID]vgHandle),
		locks:      newLockRegistry(),
		localHost:  cfg.LocalHost,
	}
	if cfg.Clustered {
		c.saved = newSavedVGStore()
	}
	return c
}

// SetMetrics wires an optional metrics sink (pkg/observability.Metrics
// satisfies MetricsSink). Safe to call with nil to disable.
func (c *Cache) SetMetrics(m MetricsSink) { c.metrics = m }

func (c *Cache) recordMetric(fn func(MetricsSink)) {
	if c.metrics != nil {
		fn(c.metrics)
	}
}

// Reset destroys all cached entities. If retainOrphans is true, orphan
// VGInfo records are recreated empty immediately after teardown (spec
// §4.5 "cache teardown behavior" describes the analogous global-lock
// carry-over; this mirrors the source's lvmcache_destroy(retain_orphans)
// parameter for entities).
func (c *Cache) Reset(retainOrphans bool) {
	var orphanFormats []Format
	if retainOrphans {
		for _, vg := range c.vgs {
			if vg.IsOrphan() {
				orphanFormats = append(orphanFormats, vg.format)
			}
		}
	}

	c.pvs = make(map[pvHandle]*PVInfo)
	c.vgs = make(map[vgHandle]*VGInfo)
	c.byPVID = make(map[string]pvHandle)
	c.byDeviceID = make(map[string]pvHandle)
	c.byVGName = make(map[string]vgHandle)
	c.byVGID = make(map[VGID]vgHandle)
	c.registry = nil
	c.foundDuplicates = nil
	c.unusedDuplicates = nil
	c.duplicatesSeen = false
	c.scanning = false

	c.locks.teardown(retainOrphans)

	if c.saved != nil {
		c.saved.teardown()
	}

	for _, fmtType := range orphanFormats {
		if _, err := c.addOrphanVGInfo(fmtType); err != nil {
			klog.Errorf("lvmcache: failed to recreate orphan vginfo for format %s: %v", fmtType.Name(), err)
		}
	}
}

// Destroy tears the cache down completely, including the held global
// lock's carry-over flag. Use Reset for the common "keep going" path.
func (c *Cache) Destroy() {
	c.Reset(false)
	c.locks.forgetGlobalCarry()
}

func (c *Cache) getPV(h pvHandle) *PVInfo {
	if h == noHandle {
		return nil
	}
	return c.pvs[h]
}

func (c *Cache) getVG(h vgHandle) *VGInfo {
	if h == noHandle {
		return nil
	}
	return c.vgs[h]
}
