package lvmcache

import (
	"fmt"
	"strings"
)

// Device is the narrow view of a device handle the cache needs. Real
// devices come from an external device enumerator (pkg/devicemanager);
// the cache only ever depends on this interface (spec §6).
type Device interface {
	// ID is a stable identity for the device itself (e.g. major:minor or
	// a resolved path), used to tell two Device values apart during
	// duplicate-PV arbitration. It is NOT the PV identifier.
	ID() string
}

// Format is the narrow view of a format-type handle the cache needs
// (spec §6 "Format types"). Concrete formats live in pkg/vgformat.
type Format interface {
	Name() string
	// HasIndependentMetadataLocation reports whether this format reads
	// VG metadata from somewhere other than the PVs themselves (spec §4.7
	// step 5, §9 glossary).
	HasIndependentMetadataLocation() bool
}

// Labeller creates and owns on-device labels. A format change (the
// PVInfo's labeller differs from the one in hand) causes the label to
// be destroyed and recreated (spec §4.3 step 2).
type Labeller interface {
	Name() string
	CreateLabel(dev Device, pvid string) (Label, error)
}

// Label is an opaque reference to an on-device label.
type Label struct {
	FormatName string
	PVID       string
}

// pvHandle and vgHandle are stable identifiers for entries living in the
// Cache's internal arenas. Using handles rather than pointers-into-slices
// means PVInfo.vg and VGInfo.pvs survive the other map being grown or
// compacted (spec §9 "arena + stable identifier approach").
type pvHandle uint64
type vgHandle uint64

const noHandle = 0

// VGID is a volume group identifier. In the source format these are
// fixed-width and not necessarily terminated by a sentinel byte (spec
// §3); a plain Go string would invite accidental reliance on NUL
// termination, so VGID is a fixed byte array compared and rendered
// explicitly.
type VGID [32]byte

// ParseVGID copies s into a VGID, padding with zero bytes. s longer than
// 32 bytes is truncated, matching the source format's fixed-width field.
func ParseVGID(s string) VGID {
	var id VGID
	copy(id[:], s)
	return id
}

// String renders the VGID up to its first zero byte, or the full 32
// bytes if none is present.
func (id VGID) String() string {
	if i := strings.IndexByte(string(id[:]), 0); i >= 0 {
		return string(id[:i])
	}
	return string(id[:])
}

func (id VGID) Equal(other VGID) bool { return id == other }

func (id VGID) IsZero() bool { return id == VGID{} }

// orphanVGPrefix is prepended to a format's name to build that format's
// orphan VG name, mirroring the source's per-format "#orphans_<fmt>"
// naming (original_source/lib/cache/lvmcache.c, lvmcache_add_orphan_vginfo).
const orphanVGPrefix = "#orphans_"

// OrphanVGName returns the orphan VG name associated with a format. An
// empty formatName yields the bare "" sentinel (spec §3: "the
// empty-named sentinel denotes orphans").
func OrphanVGName(formatName string) string {
	if formatName == "" {
		return ""
	}
	return orphanVGPrefix + formatName
}

// IsOrphanVGName reports whether name is an orphan VG name: either the
// bare sentinel or a per-format "#orphans_*" name.
func IsOrphanVGName(name string) bool {
	return name == "" || strings.HasPrefix(name, orphanVGPrefix)
}

// MetadataArea, DataArea and BootloaderArea describe the three ordered
// area sequences a PV carries (spec §3).
type MetadataArea struct {
	Offset uint64
	Size   uint64
}

type DataArea struct {
	Offset uint64
	Size   uint64
}

type BootloaderArea struct {
	Offset uint64
	Size   uint64
}

// Status bits shared by PVInfo and VGInfo.
type Status uint32

const (
	// StatusLocked mirrors the owning VG's lock state onto the PV (spec §3).
	StatusLocked Status = 1 << iota
	// StatusExported marks a VG as exported (spec §3, §4.1 primary rules).
	StatusExported
)

func (s Status) Has(bit Status) bool { return s&bit != 0 }
func (s Status) Set(bit Status) Status { return s | bit }
func (s Status) Clear(bit Status) Status { return s &^ bit }

// PVInfo is one per device believed to carry a PV label (spec §3).
type PVInfo struct {
	handle pvHandle

	dev    Device
	pvid   string
	vg     vgHandle // noHandle means "not yet bound"
	label  Label
	format Format

	sizeBytes uint64
	extVer    uint32
	extFlags  uint32
	status    Status

	mdas []MetadataArea
	das  []DataArea
	bas  []BootloaderArea
}

func (p *PVInfo) Device() Device             { return p.dev }
func (p *PVInfo) PVID() string               { return p.pvid }
func (p *PVInfo) Format() Format             { return p.format }
func (p *PVInfo) Label() Label               { return p.label }
func (p *PVInfo) SizeBytes() uint64          { return p.sizeBytes }
func (p *PVInfo) ExtVersion() uint32         { return p.extVer }
func (p *PVInfo) ExtFlags() uint32           { return p.extFlags }
func (p *PVInfo) Status() Status             { return p.status }
func (p *PVInfo) MetadataAreas() []MetadataArea { return p.mdas }
func (p *PVInfo) DataAreas() []DataArea         { return p.das }
func (p *PVInfo) BootloaderAreas() []BootloaderArea { return p.bas }
func (p *PVInfo) IsLocked() bool             { return p.status.Has(StatusLocked) }

// ValidateAreaCounts checks the two area-count invariants from spec §3:
// a bootloader-area count over one is invalid, and a data-area count
// other than one is invalid when populating a physical-volume view.
func (p *PVInfo) ValidateAreaCounts() error {
	if len(p.bas) > 1 {
		return fmt.Errorf("%w: pv %s has %d bootloader areas (max 1)", ErrInvalidAreaCount, p.pvid, len(p.bas))
	}
	if len(p.das) != 1 {
		return fmt.Errorf("%w: pv %s has %d data areas (want exactly 1)", ErrInvalidAreaCount, p.pvid, len(p.das))
	}
	return nil
}

// VGInfo is one per VG identifier seen; multiple records may share a
// name (spec §3).
type VGInfo struct {
	handle vgHandle

	name   string
	id     VGID
	format Format

	status        Status
	creationHost  *string
	systemID      *string
	lockType      *string
	checksum      uint32
	mdaSize       uint64
	seqno         uint32

	independentMetadataLocation bool
	scanSummaryMismatch         bool
	summarySeen                 bool

	pvs  []pvHandle
	next vgHandle // collision chain: next VGInfo sharing this name
}

func (v *VGInfo) Name() string    { return v.name }
func (v *VGInfo) ID() VGID        { return v.id }
func (v *VGInfo) Format() Format  { return v.format }
func (v *VGInfo) Status() Status  { return v.status }
func (v *VGInfo) CreationHost() *string { return v.creationHost }
func (v *VGInfo) SystemID() *string     { return v.systemID }
func (v *VGInfo) LockType() *string     { return v.lockType }
func (v *VGInfo) Checksum() uint32      { return v.checksum }
func (v *VGInfo) MetadataSize() uint64  { return v.mdaSize }
func (v *VGInfo) Seqno() uint32         { return v.seqno }
func (v *VGInfo) IndependentMetadataLocation() bool { return v.independentMetadataLocation }
func (v *VGInfo) ScanSummaryMismatch() bool         { return v.scanSummaryMismatch }
func (v *VGInfo) IsExported() bool                  { return v.status.Has(StatusExported) }
func (v *VGInfo) IsOrphan() bool                    { return IsOrphanVGName(v.name) }
func (v *VGInfo) NumPVs() int                        { return len(v.pvs) }

// VGSummary is what the external label scanner reports for a PV's VG
// membership (spec §4.3).
type VGSummary struct {
	Name         string
	ID           VGID
	Status       Status
	CreationHost string
	LockType     string
	SystemID     string

	// HasSeqno indicates the scanner read metadata (as opposed to only a
	// label pointing at a VG it didn't parse).
	HasSeqno bool
	Seqno    uint32
	Checksum uint32
	MDASize  uint64
}
