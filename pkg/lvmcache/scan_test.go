package lvmcache

import (
	"context"
	"errors"
	"testing"
)

// fakeScanner feeds each device through Cache.Update using a fixed
// pvid-per-device map, simulating a label scanner that has already read
// every device's label.
type fakeScanner struct {
	pvidFor map[string]string  // device id -> pvid
	vgFor   map[string]*VGSummary // pvid -> VG summary (nil means no VG yet)
	format  Format
	err     error
}

func (s *fakeScanner) ScanDevices(ctx context.Context, c *Cache, devices []Device) error {
	if s.err != nil {
		return s.err
	}
	for _, dev := range devices {
		pvid := s.pvidFor[dev.ID()]
		var sum *VGSummary
		if s.vgFor != nil {
			sum = s.vgFor[pvid]
		}
		if err := c.Update(fakeLabeller{name: "lvm2"}, dev, pvid, s.format, sum); err != nil {
			return err
		}
	}
	return nil
}

type fakeIndepScanner struct {
	calls []string
}

func (s *fakeIndepScanner) ScanIndependentMetadata(ctx context.Context, c *Cache, format Format) error {
	s.calls = append(s.calls, format.Name())
	return nil
}

func TestScanPopulatesCacheAndReturnsNonOrphanCount(t *testing.T) {
	c := newTestCache("host-a")
	format := fakeFormat{name: "lvm2"}
	scanner := &fakeScanner{
		pvidFor: map[string]string{"8:0": "pv-1", "8:16": "pv-2"},
		vgFor: map[string]*VGSummary{
			"pv-1": summary("myvg", "vgid-1", true, 1),
			"pv-2": summary("myvg", "vgid-1", true, 1),
		},
		format: format,
	}
	devices := []Device{fakeDevice{id: "8:0"}, fakeDevice{id: "8:16"}}

	n, err := c.Scan(context.Background(), scanner, devices, newFakeInspector(), nil, nil)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if n != 1 {
		t.Errorf("Scan returned %d, want 1 non-orphan VG", n)
	}
}

func TestScanArbitratesOnDuplicates(t *testing.T) {
	c := newTestCache("host-a")
	format := fakeFormat{name: "lvm2"}
	scanner := &fakeScanner{
		pvidFor: map[string]string{"8:0": "pv-1", "8:16": "pv-1"}, // same pvid: duplicate
		vgFor:   map[string]*VGSummary{"pv-1": summary("myvg", "vgid-1", true, 1)},
		format:  format,
	}
	devices := []Device{fakeDevice{id: "8:0"}, fakeDevice{id: "8:16"}}

	if _, err := c.Scan(context.Background(), scanner, devices, newFakeInspector(), nil, nil); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if c.UnusedDuplicates() == nil {
		t.Error("a scan producing a duplicate should leave an arbitration outcome behind")
	}
}

func TestScanAppliesArbitrationDropAndAdd(t *testing.T) {
	c := newTestCache("host-a")
	format := fakeFormat{name: "lvm2"}
	scanner := &fakeScanner{
		pvidFor: map[string]string{"8:0": "pv-1", "8:16": "pv-1"}, // same pvid: duplicate
		vgFor:   map[string]*VGSummary{"pv-1": summary("myvg", "vgid-1", true, 1)},
		format:  format,
	}
	devices := []Device{fakeDevice{id: "8:0"}, fakeDevice{id: "8:16"}}
	inspector := newFakeInspector()
	inspector.usedByLV["8:16"] = true // alternate wins rule 2

	if _, err := c.Scan(context.Background(), scanner, devices, inspector, nil, nil); err != nil {
		t.Fatalf("Scan: %v", err)
	}

	pv, ok := c.FindPVByID("pv-1")
	if !ok {
		t.Fatalf("pv-1 should still be indexed after arbitration")
	}
	if pv.Device().ID() != "8:16" {
		t.Errorf("indexed device = %q, want the arbitration winner 8:16 swapped in", pv.Device().ID())
	}
	if _, ok := c.FindPVByDevice(fakeDevice{id: "8:0"}); ok {
		t.Error("the dropped incumbent device should no longer be indexed")
	}
}

func TestScanRunsIndependentMetadataScanForQualifyingFormats(t *testing.T) {
	c := newTestCache("host-a")
	scanner := &fakeScanner{pvidFor: map[string]string{}}
	indep := &fakeIndepScanner{}
	diskFmt := fakeFormat{name: "disk", independentLoc: false}
	fileFmt := fakeFormat{name: "file", independentLoc: true}

	if _, err := c.Scan(context.Background(), scanner, nil, newFakeInspector(), indep, []Format{diskFmt, fileFmt}); err != nil {
		t.Fatalf("Scan: %v", err)
	}

	if len(indep.calls) != 1 || indep.calls[0] != "file" {
		t.Errorf("independent metadata scan calls = %v, want exactly [\"file\"]", indep.calls)
	}
}

func TestScanRejectsReentrantCall(t *testing.T) {
	c := newTestCache("host-a")
	c.scanning = true // simulate an in-progress scan
	_, err := c.Scan(context.Background(), &fakeScanner{}, nil, nil, nil, nil)
	if !errors.Is(err, ErrProgrammingError) {
		t.Errorf("nested Scan should fail with ErrProgrammingError, got %v", err)
	}
}

func TestScanPropagatesScannerError(t *testing.T) {
	c := newTestCache("host-a")
	wantErr := errors.New("boom")
	scanner := &fakeScanner{err: wantErr}

	_, err := c.Scan(context.Background(), scanner, []Device{fakeDevice{id: "8:0"}}, nil, nil, nil)
	if !errors.Is(err, wantErr) {
		t.Errorf("got %v, want the scanner's error propagated", err)
	}
	if c.scanning {
		t.Error("the reentrancy guard must be cleared even when the scanner fails")
	}
}
