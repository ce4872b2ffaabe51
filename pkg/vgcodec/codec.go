// Package vgcodec implements the "Metadata parser/exporter" external
// collaborator (SPEC_FULL.md §6): serializing a live VG to a buffer and
// reimporting it as an independent copy, the mechanism
// pkg/lvmcache.Cache.SaveVG relies on for its saved-VG shadow store
// (spec §4.6).
package vgcodec

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/go-lvm/lvmcache/pkg/lvmcache"
)

// document is the YAML shape a VG round-trips through. The source
// format is a custom config-tree language; this module stands in with a
// structured, human-readable encoding exercising yaml.v3 the way the
// teacher's dependency graph already carries it transitively
// (SPEC_FULL.md DOMAIN STACK promotes it to a direct dependency here).
type document struct {
	Name         string   `yaml:"name"`
	ID           string   `yaml:"id"`
	Seqno        uint32   `yaml:"seqno"`
	Checksum     uint32   `yaml:"checksum"`
	MDASize      uint64   `yaml:"mda_size"`
	CreationHost string   `yaml:"creation_host,omitempty"`
	LockType     string   `yaml:"lock_type,omitempty"`
	SystemID     string   `yaml:"system_id,omitempty"`
	Exported     bool     `yaml:"exported"`
	PVIDs        []string `yaml:"pvids"`
}

// Codec implements both lvmcache.Exporter and lvmcache.Parser.
type Codec struct{}

// Export serializes vg and its member PVs to YAML (spec §4.6 "Save").
func (Codec) Export(vg *lvmcache.VGInfo, pvs []*lvmcache.PVInfo) ([]byte, error) {
	doc := document{
		Name:     vg.Name(),
		ID:       vg.ID().String(),
		Seqno:    vg.Seqno(),
		Checksum: vg.Checksum(),
		MDASize:  vg.MetadataSize(),
		Exported: vg.IsExported(),
	}
	if h := vg.CreationHost(); h != nil {
		doc.CreationHost = *h
	}
	if l := vg.LockType(); l != nil {
		doc.LockType = *l
	}
	if s := vg.SystemID(); s != nil {
		doc.SystemID = *s
	}
	for _, pv := range pvs {
		doc.PVIDs = append(doc.PVIDs, pv.PVID())
	}

	data, err := yaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("vgcodec: export %s: %w", vg.Name(), err)
	}
	return data, nil
}

// Parse reimports an exported buffer, producing an independent copy
// decoupled from the live VGInfo (spec §4.6 "Get"/"Get-latest" rely on
// this independence).
func (Codec) Parse(data []byte) (*lvmcache.ParsedVG, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("vgcodec: parse: %w", err)
	}
	return &lvmcache.ParsedVG{
		Name:  doc.Name,
		ID:    lvmcache.ParseVGID(doc.ID),
		Seqno: doc.Seqno,
		Raw:   data,
	}, nil
}
