// Package vgformat implements the "Format types" external collaborator
// (SPEC_FULL.md §6): format-specific instance creation and metadata
// scanning, plus the HasIndependentMetadataLocation switch that
// pkg/lvmcache's scan orchestration and rescan flow branch on (spec
// §4.7 step 5, §4.2's rescan-is-a-no-op rule).
package vgformat

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"k8s.io/klog/v2"

	"github.com/go-lvm/lvmcache/pkg/lvmcache"
)

// Format extends lvmcache.Format with the lifecycle hooks a format
// handler needs (spec §6 "Format types").
type Format interface {
	lvmcache.Format
	// CreateInstance prepares any per-format state needed before the
	// format can be scanned (e.g. opening a metadata daemon connection).
	CreateInstance(ctx context.Context) error
	// Scan performs the independent-metadata-location scan (spec §4.7
	// step 5). Formats with no independent location implement this as a
	// no-op.
	Scan(ctx context.Context, c *lvmcache.Cache) error
}

// MetadataWriter is implemented by formats whose independent metadata
// location can be written to directly, the save-side counterpart to
// Format.Scan's read side (spec §4.6 "Save", §4.7 step 5 "format owns
// independent metadata areas"). Formats with no independent location
// don't implement it.
type MetadataWriter interface {
	// WriteVG persists an already-exported VG record to the format's
	// independent metadata location and returns where it landed.
	WriteVG(data []byte) (string, error)
}

// diskFormat keeps its metadata entirely within each PV's own metadata
// areas: no independent-location scan is needed.
type diskFormat struct {
	name string
}

// NewDiskFormat returns a Format whose metadata never needs an
// independent-location scan.
func NewDiskFormat(name string) Format { return &diskFormat{name: name} }

func (f *diskFormat) Name() string                        { return f.name }
func (f *diskFormat) HasIndependentMetadataLocation() bool { return false }
func (f *diskFormat) CreateInstance(ctx context.Context) error { return nil }
func (f *diskFormat) Scan(ctx context.Context, c *lvmcache.Cache) error {
	return nil // spec §4.7 step 5: nothing to do for a disk-resident format
}

// fileFormat keeps its authoritative metadata in a side file rather than
// in any PV's metadata areas, exercising §4.7 step 5's independent scan
// and §4.2's "rescan is a no-op" rule for this class of format.
type fileFormat struct {
	name string
	dir  string
}

// NewFileFormat returns a Format backed by a directory of metadata
// files, each WriteVG call writing a new file named with a fresh uuid —
// standing in for the source's daemon-based alternative metadata store
// (spec §1 "out of scope" list; this is the in-process demo analogue).
func NewFileFormat(name, dir string) Format {
	return &fileFormat{name: name, dir: dir}
}

func (f *fileFormat) Name() string                        { return f.name }
func (f *fileFormat) HasIndependentMetadataLocation() bool { return true }

func (f *fileFormat) CreateInstance(ctx context.Context) error {
	if err := os.MkdirAll(f.dir, 0o755); err != nil {
		return fmt.Errorf("vgformat: create instance dir %s: %w", f.dir, err)
	}
	return nil
}

// Scan is the independent-metadata-location follow-up scan (spec §4.7
// step 5): it lists the metadata files under f.dir and logs how many it
// found. It does not parse the files or feed their contents into c.
func (f *fileFormat) Scan(ctx context.Context, c *lvmcache.Cache) error {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("vgformat: scan %s: %w", f.dir, err)
	}
	klog.V(4).Infof("vgformat: independent metadata scan found %d file(s) in %s", len(entries), f.dir)
	return nil
}

// WriteVG mints a fresh file name under f.dir and writes data to it,
// producing the independent metadata record a later Scan will find
// (spec §4.6 "Save"). It implements MetadataWriter.
func (f *fileFormat) WriteVG(data []byte) (string, error) {
	if err := os.MkdirAll(f.dir, 0o755); err != nil {
		return "", fmt.Errorf("vgformat: write metadata dir %s: %w", f.dir, err)
	}
	path := newMetadataFileName(f.dir)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("vgformat: write metadata %s: %w", path, err)
	}
	klog.V(4).Infof("vgformat: wrote independent metadata record %s", path)
	return path, nil
}

// newMetadataFileName mints a fresh, collision-free file name for a
// VG's independent metadata record.
func newMetadataFileName(dir string) string {
	return filepath.Join(dir, uuid.NewString()+".yaml")
}

// RemoteSource is the daemon-based alternative metadata source spec.md
// §1 places explicitly out of scope. It is declared only as an
// unimplemented stub so the format-type seam is visible; no concrete
// implementation is provided (SPEC_FULL.md §6).
type RemoteSource interface {
	// Connect would establish the daemon session a Format.Scan
	// implementation could delegate to instead of reading local state.
	Connect(ctx context.Context, addr string) error
}
