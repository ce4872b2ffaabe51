package lvmcache

import "testing"

// TestPrimarySelectionRules walks spec §4.1's ordered preference rules by
// inserting a second same-named VGInfo and checking which one the name
// index resolves to afterward.
func TestPrimarySelectionRules(t *testing.T) {
	format := fakeFormat{name: "lvm2"}

	tests := []struct {
		name          string
		localHost     string
		firstExported bool
		firstHost     string
		secondHost    string
		wantSecondWins bool
	}{
		{
			name:          "rule 1: exported loses to non-exported",
			localHost:     "host-z",
			firstExported: true,
			wantSecondWins: true,
		},
		{
			name:           "rule 2: local host wins over remote host",
			localHost:      "host-a",
			firstHost:      "host-b",
			secondHost:     "host-a",
			wantSecondWins: true,
		},
		{
			name:           "rule 2: existing local host is kept over a remote newcomer",
			localHost:      "host-a",
			firstHost:      "host-a",
			secondHost:     "host-b",
			wantSecondWins: false,
		},
		{
			name:           "rule 3: having a recorded host wins over none",
			localHost:      "host-z",
			firstHost:      "",
			secondHost:     "host-b",
			wantSecondWins: true,
		},
		{
			name:           "rule 5: neither local, first seen is kept",
			localHost:      "host-z",
			firstHost:      "host-a",
			secondHost:     "host-b",
			wantSecondWins: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestCache(tt.localHost)
			first := c.createVGInfo("myvg", ParseVGID("vgid-1"), format)
			if tt.firstExported {
				first.status = first.status.Set(StatusExported)
			}
			if tt.firstHost != "" {
				first.setCreationHost(tt.firstHost)
			}

			second := c.createVGInfo("myvg", ParseVGID("vgid-2"), format)
			if tt.secondHost != "" {
				second.setCreationHost(tt.secondHost)
			}
			// createVGInfo already called insertVGIntoNameIndex; re-derive the
			// decision directly since the fixture mutates fields after creation.
			c.removeVGFromNameIndex(second)
			second.next = noHandle
			c.insertVGIntoNameIndex(second)

			primary, ok := c.FindVGByName("myvg")
			if !ok {
				t.Fatal("expected a primary VGInfo for myvg")
			}
			gotSecondWins := primary == second
			if gotSecondWins != tt.wantSecondWins {
				t.Errorf("second-entry-wins = %v, want %v", gotSecondWins, tt.wantSecondWins)
			}
		})
	}
}

func TestFindVGsByNamePreservesChainOrder(t *testing.T) {
	c := newTestCache("host-z") // nobody is local, so rule 5 keeps insertion order
	format := fakeFormat{name: "lvm2"}

	a := c.FindOrCreateVGInfo("myvg", ParseVGID("vgid-a"), format)
	b := c.FindOrCreateVGInfo("myvg", ParseVGID("vgid-b"), format)

	chain := c.FindVGsByName("myvg")
	if len(chain) != 2 || chain[0] != a || chain[1] != b {
		t.Errorf("chain order = %v, want [a, b]", chain)
	}
}

func TestRemoveVGFromNameIndexRewiresPrimary(t *testing.T) {
	c := newTestCache("host-z")
	format := fakeFormat{name: "lvm2"}

	a := c.FindOrCreateVGInfo("myvg", ParseVGID("vgid-a"), format)
	b := c.FindOrCreateVGInfo("myvg", ParseVGID("vgid-b"), format)

	c.removeVGFromNameIndex(a)

	primary, ok := c.FindVGByName("myvg")
	if !ok || primary != b {
		t.Error("removing the primary should promote the next chain entry")
	}
}

func TestFindVGDisambiguatesByID(t *testing.T) {
	c := newTestCache("host-z")
	format := fakeFormat{name: "lvm2"}

	idA, idB := ParseVGID("vgid-a"), ParseVGID("vgid-b")
	a := c.FindOrCreateVGInfo("myvg", idA, format)
	b := c.FindOrCreateVGInfo("myvg", idB, format)

	got, ok := c.FindVG("myvg", idB)
	if !ok || got != b {
		t.Error("FindVG should resolve the specific chain entry by id")
	}
	got, ok = c.FindVG("myvg", idA)
	if !ok || got != a {
		t.Error("FindVG should resolve the other chain entry by its id")
	}
}
