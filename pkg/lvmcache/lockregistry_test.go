package lvmcache

import (
	"errors"
	"testing"
)

func TestAcquireReleaseRoundTrip(t *testing.T) {
	c := newTestCache("host-a")

	if err := c.AcquireLock("myvg"); err != nil {
		t.Fatalf("AcquireLock: %v", err)
	}
	if !c.IsLockHeld("myvg") {
		t.Error("myvg should be held after AcquireLock")
	}
	if err := c.ReleaseLock("myvg"); err != nil {
		t.Fatalf("ReleaseLock: %v", err)
	}
	if c.IsLockHeld("myvg") {
		t.Error("myvg should not be held after ReleaseLock")
	}
}

func TestAcquireNestedLockFails(t *testing.T) {
	c := newTestCache("host-a")
	if err := c.AcquireLock("myvg"); err != nil {
		t.Fatalf("AcquireLock: %v", err)
	}
	err := c.AcquireLock("myvg")
	if !errors.Is(err, ErrNestedLock) {
		t.Errorf("got %v, want ErrNestedLock", err)
	}
}

func TestReleaseWithoutLockFails(t *testing.T) {
	c := newTestCache("host-a")
	err := c.ReleaseLock("myvg")
	if !errors.Is(err, ErrUnknownLock) {
		t.Errorf("got %v, want ErrUnknownLock", err)
	}
}

func TestLockOrderingGlobalThenVGThenOrphan(t *testing.T) {
	c := newTestCache("host-a")
	if err := c.AcquireLock(GlobalLockName); err != nil {
		t.Fatalf("AcquireLock(global): %v", err)
	}
	if err := c.AcquireLock("myvg"); err != nil {
		t.Fatalf("AcquireLock(myvg) after global: %v", err)
	}
	if err := c.AcquireLock(OrphanLockName); err != nil {
		t.Fatalf("AcquireLock(orphan) after global+vg: %v", err)
	}
}

func TestLockOrderingViolationRejected(t *testing.T) {
	c := newTestCache("host-a")
	if err := c.AcquireLock("myvg"); err != nil {
		t.Fatalf("AcquireLock(myvg): %v", err)
	}
	err := c.AcquireLock(GlobalLockName)
	if !errors.Is(err, ErrLockOrderViolation) {
		t.Errorf("acquiring global after a VG lock should violate ordering, got %v", err)
	}
}

func TestLockOrderingViolationRecordsMetric(t *testing.T) {
	c := newTestCache("host-a")
	metrics := &fakeMetricsSink{}
	c.SetMetrics(metrics)

	if err := c.AcquireLock("myvg"); err != nil {
		t.Fatalf("AcquireLock(myvg): %v", err)
	}
	_ = c.AcquireLock(GlobalLockName)

	if metrics.lockOrderViolations != 1 {
		t.Errorf("RecordLockOrderViolation called %d times, want 1", metrics.lockOrderViolations)
	}
}

func TestLockOrderingAmongVGNamesIsLexicographic(t *testing.T) {
	c := newTestCache("host-a")
	if err := c.AcquireLock("aaa"); err != nil {
		t.Fatalf("AcquireLock(aaa): %v", err)
	}
	if err := c.AcquireLock("bbb"); err != nil {
		t.Errorf("acquiring a lexicographically later VG name should be allowed: %v", err)
	}
	if err := c.AcquireLock("ccc"); err != nil {
		t.Fatalf("AcquireLock(ccc): %v", err)
	}

	c2 := newTestCache("host-a")
	if err := c2.AcquireLock("bbb"); err != nil {
		t.Fatalf("AcquireLock(bbb): %v", err)
	}
	err := c2.AcquireLock("aaa")
	if !errors.Is(err, ErrLockOrderViolation) {
		t.Errorf("acquiring a lexicographically earlier VG name after a later one should violate ordering, got %v", err)
	}
}

func TestLockOrderingCanBeSuppressed(t *testing.T) {
	c := newTestCache("host-a")
	c.SetLockOrderingEnabled(false)

	if err := c.AcquireLock("myvg"); err != nil {
		t.Fatalf("AcquireLock(myvg): %v", err)
	}
	if err := c.AcquireLock(GlobalLockName); err != nil {
		t.Errorf("ordering is suppressed, acquiring global after a VG lock should succeed: %v", err)
	}
}

func TestSuppressedOrderingStillRejectsNestedLock(t *testing.T) {
	c := newTestCache("host-a")
	c.SetLockOrderingEnabled(false)

	if err := c.AcquireLock("myvg"); err != nil {
		t.Fatalf("AcquireLock: %v", err)
	}
	err := c.AcquireLock("myvg")
	if !errors.Is(err, ErrNestedLock) {
		t.Error("suppressing ordering must never suppress the nested-lock check")
	}
}

func TestAcquireLockMirrorsLockedBitOntoMemberPVs(t *testing.T) {
	c := newTestCache("host-a")
	labeller := fakeLabeller{name: "lvm2"}
	format := fakeFormat{name: "lvm2"}
	if err := c.Update(labeller, fakeDevice{id: "8:0"}, "pv-1", format, summary("myvg", "vgid-1", true, 1)); err != nil {
		t.Fatalf("Update: %v", err)
	}
	pv, _ := c.FindPVByID("pv-1")

	if err := c.AcquireLock("myvg"); err != nil {
		t.Fatalf("AcquireLock: %v", err)
	}
	if !pv.IsLocked() {
		t.Error("acquiring a VG's lock should set the locked bit on its member PVs")
	}

	if err := c.ReleaseLock("myvg"); err != nil {
		t.Fatalf("ReleaseLock: %v", err)
	}
	if pv.IsLocked() {
		t.Error("releasing a VG's lock should clear the locked bit on its member PVs")
	}
}

type fakeInvalidator struct{ bumped int }

func (f *fakeInvalidator) BumpEpoch() { f.bumped++ }

func TestReleaseLockBumpsEpochWhenNothingElseHeld(t *testing.T) {
	c := newTestCache("host-a")
	inv := &fakeInvalidator{}
	c.SetEpochInvalidator(inv)

	if err := c.AcquireLock("myvg"); err != nil {
		t.Fatalf("AcquireLock: %v", err)
	}
	if err := c.ReleaseLock("myvg"); err != nil {
		t.Fatalf("ReleaseLock: %v", err)
	}
	if inv.bumped != 1 {
		t.Errorf("BumpEpoch called %d times, want 1", inv.bumped)
	}
}

func TestReleaseLockDoesNotBumpEpochWhileOthersHeld(t *testing.T) {
	c := newTestCache("host-a")
	inv := &fakeInvalidator{}
	c.SetEpochInvalidator(inv)

	if err := c.AcquireLock("aaa"); err != nil {
		t.Fatalf("AcquireLock(aaa): %v", err)
	}
	if err := c.AcquireLock("bbb"); err != nil {
		t.Fatalf("AcquireLock(bbb): %v", err)
	}
	if err := c.ReleaseLock("aaa"); err != nil {
		t.Fatalf("ReleaseLock(aaa): %v", err)
	}
	if inv.bumped != 0 {
		t.Errorf("BumpEpoch called %d times while bbb is still held, want 0", inv.bumped)
	}
}
