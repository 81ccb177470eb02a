// Package tlb implements the translation look-aside buffer: a
// fixed-capacity, fully-associative cache of recent virtual-to-physical
// page translations, tagged by address-space id, with LRU replacement.
//
// The original prototype this is based on kept its entry table and LRU
// bookkeeping in package-level globals (one TLB's state leaking into
// another's). That is a defect the spec calls out explicitly: all state
// here is instance-scoped.
package tlb

// Entry is a single cached translation.
type Entry struct {
	ASID         uint64
	VirtualPage  uint64
	PhysicalPage uint64
}

// Statistics are the cumulative counters a TLB exposes for reporting.
type Statistics struct {
	Lookups        int
	Hits           int
	Evictions      int
	Flushes        int
	FlushEvictions int
}

// HitRate returns Hits/Lookups as a percentage, or 0 if there have been no
// lookups yet.
func (s Statistics) HitRate() float64 {
	if s.Lookups == 0 {
		return 0
	}
	return float64(s.Hits) / float64(s.Lookups) * 100
}

// entryNode is a node in the MRU-ordered doubly linked list.
type entryNode struct {
	entry Entry
	prev  *entryNode
	next  *entryNode
}

// TLB is a fixed-capacity, instance-scoped translation cache. The zero
// value is not usable; construct with New.
type TLB struct {
	capacity int

	// mru is ordered most-recently-used first; lru is its tail.
	mru *entryNode
	lru *entryNode
	len int

	// byPage indexes live nodes by virtual page, independent of ASID,
	// since a virtual page never has more than one live entry at a time
	// (spec §4.D: "the most recent writer wins").
	byPage map[uint64]*entryNode

	stats Statistics
}

// pageOf is a tiny helper so callers never need to read a node's fields
// after it has been unlinked.
func pageOf(node *entryNode) uint64 { return node.entry.VirtualPage }

// New constructs a TLB with a fixed capacity of at least 1 entry.
func New(capacity int) *TLB {
	if capacity < 1 {
		panic("tlb: capacity must be at least 1")
	}

	return &TLB{
		capacity: capacity,
		byPage:   make(map[uint64]*entryNode, capacity),
	}
}

// Lookup consults the cache for (asid, virtualPage). A hit requires an
// entry for virtualPage whose ASID also matches; on a hit, the entry moves
// to the MRU position.
func (t *TLB) Lookup(asid, virtualPage uint64) (physicalPage uint64, hit bool) {
	t.stats.Lookups++

	node, found := t.byPage[virtualPage]
	if !found || node.entry.ASID != asid {
		return 0, false
	}

	t.stats.Hits++
	t.moveToFront(node)

	return node.entry.PhysicalPage, true
}

// Add inserts (or replaces) the translation for virtualPage. If an entry
// for virtualPage already exists under any ASID, it is removed first, so a
// page never has more than one live shadow. If the cache is full, the LRU
// entry is evicted to make room.
func (t *TLB) Add(asid, virtualPage, physicalPage uint64) {
	if existing, found := t.byPage[virtualPage]; found {
		t.removeNode(existing)
	} else if t.len == t.capacity {
		t.evictLRU()
	}

	node := &entryNode{entry: Entry{
		ASID:         asid,
		VirtualPage:  virtualPage,
		PhysicalPage: physicalPage,
	}}
	t.pushFront(node)
	t.byPage[virtualPage] = node
}

// Flush drops every entry, as on a full context switch.
func (t *TLB) Flush() {
	t.stats.Flushes++
	t.stats.FlushEvictions += t.len

	t.mru = nil
	t.lru = nil
	t.len = 0
	t.byPage = make(map[uint64]*entryNode, t.capacity)
}

// FlushASID drops every entry tagged with asid, without counting it as a
// whole-context Flush.
func (t *TLB) FlushASID(asid uint64) {
	node := t.mru
	for node != nil {
		next := node.next
		if node.entry.ASID == asid {
			t.removeNode(node)
			delete(t.byPage, node.entry.VirtualPage)
			t.stats.FlushEvictions++
		}
		node = next
	}
}

// Clear resets every statistic to zero and silently empties the cache
// (no eviction or flush counters are incremented).
func (t *TLB) Clear() {
	t.mru = nil
	t.lru = nil
	t.len = 0
	t.byPage = make(map[uint64]*entryNode, t.capacity)
	t.stats = Statistics{}
}

// Statistics returns the cumulative lookup/hit/eviction/flush counters.
func (t *TLB) Statistics() Statistics {
	return t.stats
}

func (t *TLB) evictLRU() {
	victim := pageOf(t.lru)
	t.removeNode(t.lru)
	delete(t.byPage, victim)
	t.stats.Evictions++
}

func (t *TLB) pushFront(node *entryNode) {
	node.prev = nil
	node.next = t.mru
	if t.mru != nil {
		t.mru.prev = node
	}
	t.mru = node
	if t.lru == nil {
		t.lru = node
	}
	t.len++
}

func (t *TLB) removeNode(node *entryNode) {
	if node.prev != nil {
		node.prev.next = node.next
	} else {
		t.mru = node.next
	}

	if node.next != nil {
		node.next.prev = node.prev
	} else {
		t.lru = node.prev
	}

	node.prev = nil
	node.next = nil
	t.len--
}

func (t *TLB) moveToFront(node *entryNode) {
	if node == t.mru {
		return
	}

	t.removeNode(node)
	t.pushFront(node)
}
