package lvmcache

import "testing"

func TestCreatePVInfoIndexesByPVIDAndDevice(t *testing.T) {
	c := newTestCache("host-a")
	labeller := fakeLabeller{name: "lvm2"}
	dev := fakeDevice{id: "8:0"}

	pv, err := c.CreatePVInfo(labeller, dev, "pv-1")
	if err != nil {
		t.Fatalf("CreatePVInfo: %v", err)
	}

	if got, ok := c.FindPVByID("pv-1"); !ok || got != pv {
		t.Error("PVInfo not reachable by pvid")
	}
	if got, ok := c.FindPVByDevice(dev); !ok || got != pv {
		t.Error("PVInfo not reachable by device identity")
	}
	if pv.vg != noHandle {
		t.Error("a newly created PVInfo must start unbound")
	}
}

func TestCreatePVInfoRejectsNilArgs(t *testing.T) {
	c := newTestCache("host-a")
	if _, err := c.CreatePVInfo(nil, fakeDevice{id: "8:0"}, "pv-1"); err == nil {
		t.Error("expected error for nil labeller")
	}
	if _, err := c.CreatePVInfo(fakeLabeller{name: "lvm2"}, nil, "pv-1"); err == nil {
		t.Error("expected error for nil device")
	}
}

func TestAttachDetachPV(t *testing.T) {
	c := newTestCache("host-a")
	pv, _ := c.CreatePVInfo(fakeLabeller{name: "lvm2"}, fakeDevice{id: "8:0"}, "pv-1")
	vg := c.FindOrCreateVGInfo("myvg", ParseVGID("vgid-1"), fakeFormat{name: "lvm2"})

	c.AttachPV(pv, vg)
	if c.VG(pv) != vg {
		t.Fatal("AttachPV should bind pv to vg")
	}
	if vg.NumPVs() != 1 {
		t.Fatalf("vg.NumPVs() = %d, want 1", vg.NumPVs())
	}

	c.DetachPV(pv)
	if c.VG(pv) != nil {
		t.Error("DetachPV should clear the back-reference")
	}
	if vg.NumPVs() != 0 {
		t.Errorf("vg.NumPVs() = %d, want 0 after detach", vg.NumPVs())
	}
}

func TestDropIfDangling(t *testing.T) {
	c := newTestCache("host-a")
	pv, _ := c.CreatePVInfo(fakeLabeller{name: "lvm2"}, fakeDevice{id: "8:0"}, "pv-1")
	vg := c.FindOrCreateVGInfo("myvg", ParseVGID("vgid-1"), fakeFormat{name: "lvm2"})
	c.AttachPV(pv, vg)

	if c.DropIfDangling(vg) {
		t.Error("a non-empty VG must not be dropped")
	}

	c.DetachPV(pv)
	if !c.DropIfDangling(vg) {
		t.Error("an empty non-orphan VG should be dropped")
	}
	if _, ok := c.FindVGByName("myvg"); ok {
		t.Error("dropped VG should no longer be indexed by name")
	}
}

func TestDropIfDanglingNeverDropsOrphan(t *testing.T) {
	c := newTestCache("host-a")
	format := fakeFormat{name: "lvm2"}
	orphan, err := c.findOrCreateOrphanVGInfo(format)
	if err != nil {
		t.Fatalf("findOrCreateOrphanVGInfo: %v", err)
	}
	if c.DropIfDangling(orphan) {
		t.Error("an empty orphan VG must never be dropped")
	}
}

func TestDeletePVInfoDropsDanglingVG(t *testing.T) {
	c := newTestCache("host-a")
	pv, _ := c.CreatePVInfo(fakeLabeller{name: "lvm2"}, fakeDevice{id: "8:0"}, "pv-1")
	vg := c.FindOrCreateVGInfo("myvg", ParseVGID("vgid-1"), fakeFormat{name: "lvm2"})
	c.AttachPV(pv, vg)

	c.DeletePVInfo(pv)

	if _, ok := c.FindPVByID("pv-1"); ok {
		t.Error("deleted PVInfo should no longer be indexed by pvid")
	}
	if _, ok := c.FindPVByDevice(fakeDevice{id: "8:0"}); ok {
		t.Error("deleted PVInfo should no longer be indexed by device identity")
	}
	if _, ok := c.FindVGByName("myvg"); ok {
		t.Error("last PV's departure should drop its non-orphan VG")
	}
}

func TestDemoteToOrphanRefusesDuringCriticalSection(t *testing.T) {
	c := newTestCache("host-a")
	format := fakeFormat{name: "lvm2"}
	pv, _ := c.CreatePVInfo(fakeLabeller{name: "lvm2"}, fakeDevice{id: "8:0"}, "pv-1")
	vg := c.FindOrCreateVGInfo("myvg", ParseVGID("vgid-1"), format)
	c.AttachPV(pv, vg)

	ok, err := c.DemoteToOrphan(pv, format, true)
	if err != nil {
		t.Fatalf("DemoteToOrphan: %v", err)
	}
	if ok {
		t.Error("demoting a PV attached to a non-orphan VG during a critical section must be refused")
	}
	if c.VG(pv) != vg {
		t.Error("a refused demotion must not alter pv's VG membership")
	}
}

func TestDemoteToOrphanMovesPV(t *testing.T) {
	c := newTestCache("host-a")
	format := fakeFormat{name: "lvm2"}
	pv, _ := c.CreatePVInfo(fakeLabeller{name: "lvm2"}, fakeDevice{id: "8:0"}, "pv-1")
	vg := c.FindOrCreateVGInfo("myvg", ParseVGID("vgid-1"), format)
	c.AttachPV(pv, vg)

	ok, err := c.DemoteToOrphan(pv, format, false)
	if err != nil {
		t.Fatalf("DemoteToOrphan: %v", err)
	}
	if !ok {
		t.Fatal("demotion outside a critical section should succeed")
	}
	if got := c.VG(pv); got == nil || !got.IsOrphan() {
		t.Error("pv should now belong to an orphan VG")
	}
	if _, ok := c.FindVGByName("myvg"); ok {
		t.Error("myvg should have been dropped once it lost its last member")
	}
}

func TestRebind(t *testing.T) {
	c := newTestCache("host-a")
	pv, _ := c.CreatePVInfo(fakeLabeller{name: "lvm2"}, fakeDevice{id: "8:0"}, "pv-1")

	c.Rebind(pv, "pv-2")

	if _, ok := c.FindPVByID("pv-1"); ok {
		t.Error("old pvid should no longer resolve")
	}
	if got, ok := c.FindPVByID("pv-2"); !ok || got != pv {
		t.Error("new pvid should resolve to the same PVInfo")
	}

	c.Rebind(pv, "pv-2") // no-op when unchanged
	if pv.pvid != "pv-2" {
		t.Error("rebinding to the same pvid should be a no-op, not an error")
	}
}
