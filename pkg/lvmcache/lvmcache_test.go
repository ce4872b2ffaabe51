package lvmcache

// Shared test fixtures: a minimal Device/Format/Labeller trio so each
// _test.go file can build a Cache without pulling in pkg/devicemanager,
// pkg/labelscan, or pkg/vgformat (which themselves depend on lvmcache).

type fakeDevice struct {
	id string
}

func (d fakeDevice) ID() string { return d.id }

type fakeFormat struct {
	name           string
	independentLoc bool
}

func (f fakeFormat) Name() string                        { return f.name }
func (f fakeFormat) HasIndependentMetadataLocation() bool { return f.independentLoc }

type fakeLabeller struct {
	name string
	fail bool
}

func (l fakeLabeller) Name() string { return l.name }

func (l fakeLabeller) CreateLabel(dev Device, pvid string) (Label, error) {
	if l.fail {
		return Label{}, ErrAllocationFailed
	}
	return Label{FormatName: l.name, PVID: pvid}, nil
}

func newTestCache(localHost string) *Cache {
	return New(Config{LocalHost: localHost})
}

func newClusteredTestCache(localHost string) *Cache {
	return New(Config{LocalHost: localHost, Clustered: true})
}

// fakeMetricsSink records every call it receives, for assertions on
// which observability events a code path triggers.
type fakeMetricsSink struct {
	duplicatesResolved   []string
	scanSummaryMismatch  int
	lockOrderViolations  int
	savedVGChurn         int
}

func (f *fakeMetricsSink) RecordDuplicateResolved(reason string) {
	f.duplicatesResolved = append(f.duplicatesResolved, reason)
}
func (f *fakeMetricsSink) RecordScanSummaryMismatch() { f.scanSummaryMismatch++ }
func (f *fakeMetricsSink) RecordLockOrderViolation()  { f.lockOrderViolations++ }
func (f *fakeMetricsSink) RecordSavedVGChurn()        { f.savedVGChurn++ }
