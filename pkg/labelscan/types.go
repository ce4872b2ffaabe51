// Package labelscan implements the "Label scanner" external collaborator
// (SPEC_FULL.md §6): reading on-device PV labels and VG summaries and
// feeding them through lvmcache.Cache.Update.
package labelscan

import "github.com/go-lvm/lvmcache/pkg/lvmcache"

// onDiskRecord is the demo on-device layout this package reads: a
// human-readable YAML document rather than the source's binary label
// sector. This package is a replaceable integration adapter (SPEC_FULL.md
// §6), not a byte-compatible on-disk format implementation.
type onDiskRecord struct {
	PVID string    `yaml:"pvid"`
	VG   *onDiskVG `yaml:"vg,omitempty"`
}

type onDiskVG struct {
	Name         string   `yaml:"name"`
	ID           string   `yaml:"id"`
	Status       []string `yaml:"status"`
	CreationHost string   `yaml:"creation_host"`
	LockType     string   `yaml:"lock_type"`
	SystemID     string   `yaml:"system_id"`
	Seqno        uint32   `yaml:"seqno"`
	Checksum     uint32   `yaml:"checksum"`
	MDASize      uint64   `yaml:"mda_size"`
}

func (v *onDiskVG) toSummary() lvmcache.VGSummary {
	var status lvmcache.Status
	for _, s := range v.Status {
		if s == "EXPORTED" {
			status = status.Set(lvmcache.StatusExported)
		}
	}
	return lvmcache.VGSummary{
		Name:         v.Name,
		ID:           lvmcache.ParseVGID(v.ID),
		Status:       status,
		CreationHost: v.CreationHost,
		LockType:     v.LockType,
		SystemID:     v.SystemID,
		HasSeqno:     true,
		Seqno:        v.Seqno,
		Checksum:     v.Checksum,
		MDASize:      v.MDASize,
	}
}

// DiskLabeller is the demo Labeller: it doesn't touch the device at all,
// it just stamps the format name onto the label the scanner already
// read the PV identifier for (spec §4.3 step 2 "format change" handling
// happens in pkg/lvmcache, not here).
type DiskLabeller struct {
	FormatName string
}

func (d *DiskLabeller) Name() string {
	if d.FormatName == "" {
		return "lvm2"
	}
	return d.FormatName
}

func (d *DiskLabeller) CreateLabel(dev lvmcache.Device, pvid string) (lvmcache.Label, error) {
	return lvmcache.Label{FormatName: d.Name(), PVID: pvid}, nil
}
