// Package lvmcache is the in-process metadata cache for a block-device
// volume manager. It indexes physical volumes (PVs) and volume groups
// (VGs) by three keys, arbitrates duplicate PV identifiers reported by
// multipath/clone/stacked devices, layers a lock registry with an
// ordering discipline above an external lock manager, and holds
// committed/precommitted VG shadows for a clustered caller.
//
// The cache is single-threaded cooperative: exactly one goroutine (the
// command thread) is expected to drive a *Cache at a time. It carries
// no internal mutex of its own; see DESIGN.md for why that diverges
// from this repository's teacher package.
package lvmcache
