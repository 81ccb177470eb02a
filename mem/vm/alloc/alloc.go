// Package alloc implements the physical-page allocator: the backing store
// for both page-table interior nodes and mapped user pages. It owns a
// single contiguous byte region acquired from an external region source,
// and tracks free space as a sorted, coalesced list of holes (spec §4.A).
package alloc

import (
	"fmt"
	"sort"
)

// maxMemorySize is the configuration circuit-breaker from spec §4.A: the
// constructor refuses to back more than 2 GiB of simulated physical memory.
const maxMemorySize = 2 * 1024 * 1024 * 1024

// RegionSource acquires and releases the backing byte region that the
// allocator carves pages out of. It stands in for the OS-level memory
// acquisition spec.md treats as an external collaborator (§1, §6): "opaque
// acquire_region(size, hint) -> base / release_region(base, size)".
type RegionSource interface {
	AcquireRegion(size uint64, hint uintptr) (base uintptr, err error)
	ReleaseRegion(base uintptr, size uint64)
}

// hole is a contiguous free region of the physical-page space.
type hole struct {
	startPage uint64
	count     uint64
}

// Allocator is a first-fit, coalescing physical-page allocator.
type Allocator struct {
	region RegionSource

	base       uintptr
	pageSize   uint64
	memorySize uint64
	totalPages uint64

	holes []hole

	allocatedPages    uint64
	maxAllocatedPages uint64
}

// New constructs an Allocator over memorySize bytes of backing memory,
// acquired from region in pageSize-sized pages. It refuses memorySize
// greater than 2 GiB (spec §4.A, "safety circuit-breaker").
func New(region RegionSource, pageSize, memorySize uint64) (*Allocator, error) {
	if memorySize > maxMemorySize {
		return nil, fmt.Errorf(
			"alloc: refusing to back %d bytes of memory, exceeds the 2 GiB safety limit",
			memorySize)
	}

	base, err := region.AcquireRegion(memorySize, 0)
	if err != nil {
		return nil, fmt.Errorf("alloc: failed to acquire backing region: %w", err)
	}

	totalPages := memorySize / pageSize

	return &Allocator{
		region:     region,
		base:       base,
		pageSize:   pageSize,
		memorySize: memorySize,
		totalPages: totalPages,
		holes:      []hole{{startPage: 0, count: totalPages}},
	}, nil
}

// Close releases the backing region acquired at construction time.
func (a *Allocator) Close() {
	a.region.ReleaseRegion(a.base, a.memorySize)
}

// PageSize returns the page size this allocator was constructed with.
func (a *Allocator) PageSize() uint64 { return a.pageSize }

// TotalPages returns the total number of pages managed by this allocator.
func (a *Allocator) TotalPages() uint64 { return a.totalPages }

// AllocatePages finds the first hole with at least count free pages,
// allocates from its low end, and returns the byte address of the first
// allocated page. It fails (ok == false) if there is not enough free
// memory overall, or if no single hole is large enough to satisfy the
// request (external fragmentation) — spec §4.A.
func (a *Allocator) AllocatePages(count uint64) (addr uintptr, ok bool) {
	if a.allocatedPages+count > a.totalPages {
		return 0, false
	}

	idx := a.findFit(count)
	if idx < 0 {
		return 0, false
	}

	startPage := a.holes[idx].startPage
	addr = a.base + uintptr(startPage*a.pageSize)

	a.shrinkOrRemoveHole(idx, count)

	a.allocatedPages += count
	if a.allocatedPages > a.maxAllocatedPages {
		a.maxAllocatedPages = a.allocatedPages
	}

	return addr, true
}

// findFit returns the index of the first hole with at least count pages,
// or -1 if none fits.
func (a *Allocator) findFit(count uint64) int {
	for i, h := range a.holes {
		if h.count >= count {
			return i
		}
	}
	return -1
}

// shrinkOrRemoveHole allocates count pages from the low end of the hole at
// idx, shrinking it in place (keeping the sorted list sorted); if the hole
// is fully consumed it is removed instead. This pins the "sorted list,
// in-place shrink" allocator shape spec §9 calls the authoritative one (as
// opposed to the append-to-tail variant the append-remainder sketch used).
func (a *Allocator) shrinkOrRemoveHole(idx int, count uint64) {
	remaining := a.holes[idx].count - count

	if remaining == 0 {
		a.holes = append(a.holes[:idx], a.holes[idx+1:]...)
		return
	}

	a.holes[idx].startPage += count
	a.holes[idx].count = remaining
}

// ReleasePages returns a previously allocated range of count pages starting
// at addr back to the free list, coalescing with an adjacent predecessor
// and/or successor hole. Behavior is undefined if [addr, addr+count*pageSize)
// was not returned whole by a prior AllocatePages call (spec §4.A).
func (a *Allocator) ReleasePages(addr uintptr, count uint64) {
	startPage := (uint64(addr) - uint64(a.base)) / a.pageSize

	idx := sort.Search(len(a.holes), func(i int) bool {
		return a.holes[i].startPage >= startPage
	})

	a.holes = append(a.holes, hole{})
	copy(a.holes[idx+1:], a.holes[idx:])
	a.holes[idx] = hole{startPage: startPage, count: count}

	a.coalesce(idx)

	a.allocatedPages -= count
}

// coalesce merges the hole at idx with its immediate predecessor and/or
// successor, if they are adjacent.
func (a *Allocator) coalesce(idx int) {
	if idx+1 < len(a.holes) {
		next := a.holes[idx+1]
		if a.holes[idx].startPage+a.holes[idx].count == next.startPage {
			a.holes[idx].count += next.count
			a.holes = append(a.holes[:idx+1], a.holes[idx+2:]...)
		}
	}

	if idx > 0 {
		prev := a.holes[idx-1]
		if prev.startPage+prev.count == a.holes[idx].startPage {
			a.holes[idx-1].count += a.holes[idx].count
			a.holes = append(a.holes[:idx], a.holes[idx+1:]...)
		}
	}
}

// AllReleased reports whether every page has been returned to the free
// list (equivalently, exactly one hole spans the whole space).
func (a *Allocator) AllReleased() bool {
	return a.allocatedPages == 0
}

// MaxAllocatedPages returns the monotonically non-decreasing high-water
// mark of concurrently allocated pages.
func (a *Allocator) MaxAllocatedPages() uint64 {
	return a.maxAllocatedPages
}

// AllocatedPages returns the number of pages currently allocated.
func (a *Allocator) AllocatedPages() uint64 {
	return a.allocatedPages
}
