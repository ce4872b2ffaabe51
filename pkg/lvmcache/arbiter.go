package lvmcache

// This file implements §4.4, the duplicate-PV arbitrator: choosing one
// device to represent a PV identifier when several devices report it.

// DeviceInspector answers the device-level questions the arbitration
// rules need (spec §4.4 rules 2-6). Concrete implementations live in
// pkg/devicemanager; the arbitrator only depends on this interface
// (spec §6 "Device enumerator").
type DeviceInspector interface {
	// SizeBytes returns dev's current size.
	SizeBytes(dev Device) (uint64, error)
	// UsedByLogicalVolume reports whether a live logical volume currently
	// uses dev (rule 2).
	UsedByLogicalVolume(dev Device) (bool, error)
	// MountedFilesystem reports whether dev has a mounted filesystem
	// (rule 4).
	MountedFilesystem(dev Device) (bool, error)
	// Subsystem returns the kernel subsystem dev belongs to ("" if none),
	// e.g. "dm" for device-mapper or "md" for Linux software RAID (rules
	// 5-6, and the unused-duplicates filtering step).
	Subsystem(dev Device) string
	// Major returns dev's major device number. The arbitrator does not
	// call it; the unused-duplicates filtering step identifies
	// multi-device components through Subsystem.
	Major(dev Device) int
}

const (
	subsystemDeviceMapper = "dm"
	subsystemMultiDevice  = "md"
)

// Arbitration reason strings, preserved verbatim from spec §4.4/§9:
// these are observable in logs, so they are enumerated constants rather
// than ad-hoc fmt.Sprintf text.
const (
	ReasonPreviousPreference = "previous preference"
	ReasonUsedByLV           = "device is used by LV"
	ReasonSizeCorrect        = "device size is correct"
	ReasonFSMounted          = "device has fs mounted"
	ReasonInDMSubsystem      = "device is in dm subsystem"
	ReasonInSubsystem        = "device is in subsystem"
	ReasonSeenFirst          = "device was seen first"
)

// Decision records the outcome of one incumbent-vs-alternate comparison.
type Decision struct {
	PVID        string
	Incumbent   Device
	Alternate   Device
	Winner      Device
	Reason      string
	ChangedWinner bool
}

// ArbitrationResult is the outcome of a full arbitration pass (spec
// §4.4 "Outcome").
type ArbitrationResult struct {
	Decisions []Decision
	// Drop holds devices that lost incumbency and must be removed from
	// the index.
	Drop []Device
	// Add holds devices that became the new incumbent and must be
	// re-scanned and re-fed through the update pipeline.
	Add []Device
	// Unused is the new unused-duplicates list, filtered to drop
	// known-benign multi-device-subsystem component devices.
	Unused []Device
}

// Arbitrate runs the duplicate arbitrator over the scan's found-duplicates
// list (spec §4.4). previousUnused is the caller's command-scoped unused
// list from a prior arbitration within the same command, carried in to
// satisfy the stability guarantee (spec §4.4 "Stability guarantee", §8
// law "Stable arbitration").
func (c *Cache) Arbitrate(inspector DeviceInspector, previousUnused []Device) ArbitrationResult {
	groups := make(map[string][]Device)
	var order []string
	for _, s := range c.foundDuplicates {
		if _, seen := groups[s.pvid]; !seen {
			order = append(order, s.pvid)
		}
		groups[s.pvid] = append(groups[s.pvid], s.dev)
	}

	prevUnpreferred := make(map[string]bool, len(previousUnused))
	for _, d := range previousUnused {
		prevUnpreferred[d.ID()] = true
	}

	var result ArbitrationResult
	var losers []Device

	for _, pvid := range order {
		incumbentPV, ok := c.FindPVByID(pvid)
		if !ok {
			continue
		}
		incumbent := incumbentPV.dev

		for _, alt := range groups[pvid] {
			winner, reason := c.decide(pvid, incumbent, alt, inspector, prevUnpreferred)
			changed := winner.ID() != incumbent.ID()
			result.Decisions = append(result.Decisions, Decision{
				PVID: pvid, Incumbent: incumbent, Alternate: alt,
				Winner: winner, Reason: reason, ChangedWinner: changed,
			})

			var loser Device
			if changed {
				loser = incumbent
				result.Drop = append(result.Drop, incumbent)
				result.Add = append(result.Add, winner)
				incumbent = winner
			} else {
				loser = alt
			}
			losers = append(losers, loser)
			c.recordMetric(func(m MetricsSink) { m.RecordDuplicateResolved(reason) })
		}
	}

	result.Unused = c.filterUnusedDuplicates(losers, inspector)
	c.unusedDuplicates = result.Unused
	c.clearFoundDuplicates()
	return result
}

// decide applies spec §4.4's ordered rule list to one incumbent/alternate
// pair, returning the winning device and the reason text for the rule
// that matched.
func (c *Cache) decide(pvid string, incumbent, alt Device, inspector DeviceInspector, prevUnpreferred map[string]bool) (Device, string) {
	// Rule 1: previous preference, carried across cache rebuilds.
	incumbentWasUnpreferred := prevUnpreferred[incumbent.ID()]
	altWasUnpreferred := prevUnpreferred[alt.ID()]
	if incumbentWasUnpreferred != altWasUnpreferred {
		if incumbentWasUnpreferred {
			return alt, ReasonPreviousPreference
		}
		return incumbent, ReasonPreviousPreference
	}

	// Rule 2: used by a live LV.
	if inspector != nil {
		incUsed, _ := inspector.UsedByLogicalVolume(incumbent)
		altUsed, _ := inspector.UsedByLogicalVolume(alt)
		if incUsed != altUsed {
			if altUsed {
				return alt, ReasonUsedByLV
			}
			return incumbent, ReasonUsedByLV
		}

		// Rule 3: size matches the cached PV size.
		if pv, ok := c.FindPVByID(pvid); ok && pv.sizeBytes != 0 {
			incSize, _ := inspector.SizeBytes(incumbent)
			altSize, _ := inspector.SizeBytes(alt)
			incCorrect := incSize == pv.sizeBytes
			altCorrect := altSize == pv.sizeBytes
			if incCorrect != altCorrect {
				if altCorrect {
					return alt, ReasonSizeCorrect
				}
				return incumbent, ReasonSizeCorrect
			}
		}

		// Rule 4: mounted filesystem.
		incMounted, _ := inspector.MountedFilesystem(incumbent)
		altMounted, _ := inspector.MountedFilesystem(alt)
		if incMounted != altMounted {
			if altMounted {
				return alt, ReasonFSMounted
			}
			return incumbent, ReasonFSMounted
		}

		// Rule 5: local device-mapper subsystem.
		incDM := inspector.Subsystem(incumbent) == subsystemDeviceMapper
		altDM := inspector.Subsystem(alt) == subsystemDeviceMapper
		if incDM != altDM {
			if altDM {
				return alt, ReasonInDMSubsystem
			}
			return incumbent, ReasonInDMSubsystem
		}

		// Rule 6: any known subsystem.
		incSub := inspector.Subsystem(incumbent) != ""
		altSub := inspector.Subsystem(alt) != ""
		if incSub != altSub {
			if altSub {
				return alt, ReasonInSubsystem
			}
			return incumbent, ReasonInSubsystem
		}
	}

	// Rule 7: fallback, incumbent was seen first.
	return incumbent, ReasonSeenFirst
}

// filterUnusedDuplicates drops devices the inspector reports in the
// multi-device ("md") subsystem: known-benign component devices (spec
// §4.4 "Outcome").
func (c *Cache) filterUnusedDuplicates(losers []Device, inspector DeviceInspector) []Device {
	out := make([]Device, 0, len(losers))
	for _, d := range losers {
		if inspector != nil && inspector.Subsystem(d) == subsystemMultiDevice {
			continue
		}
		out = append(out, d)
	}
	return out
}

// UnusedDuplicates returns the outcome of the most recent arbitration
// (spec §3 "Duplicate lists").
func (c *Cache) UnusedDuplicates() []Device { return c.unusedDuplicates }
