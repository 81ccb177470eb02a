package mmu

import (
	"fmt"
	"os"

	"github.com/leidenuniv/pagetables/mem/vm"
	"github.com/leidenuniv/pagetables/mem/vm/tlb"
	"github.com/tebeka/atexit"
)

// PageFaultHandler is invoked by ProcessMemAccess whenever the walker and
// TLB together fail to resolve an access. It must install a valid mapping
// for address before returning, or abort the simulation itself — the
// façade does not cap retries (spec §4.E).
type PageFaultHandler interface {
	HandlePageFault(address uint64)
}

// MMU is the façade that binds a Walker and a TLB into the single entry
// point a trace driver calls: ProcessMemAccess (spec §4.E, component E).
type MMU struct {
	walker *Walker
	tlb    *tlb.TLB

	root         uintptr
	asid         vm.ASID
	faultHandler PageFaultHandler

	name string
}

// New constructs an MMU over walker, backed by a TLB of the given
// capacity. It registers an atexit hook (mirroring the teacher's own
// flush-on-exit tracers) that prints the TLB's final statistics line even
// if the façade is never explicitly torn down — spec §5's "destruction of
// the MMU façade emits the final TLB statistics line as a side effect".
func New(name string, walker *Walker, tlbCapacity int) *MMU {
	m := &MMU{
		walker: walker,
		tlb:    tlb.New(tlbCapacity),
		name:   name,
	}

	atexit.Register(func() { m.reportStatistics(os.Stderr) })

	return m
}

// Initialize stores the page-fault handler that ProcessMemAccess invokes
// on a miss.
func (m *MMU) Initialize(handler PageFaultHandler) {
	m.faultHandler = handler
}

// SetPageTablePointer stores the root of the current translation context.
// Zero means "no context".
func (m *MMU) SetPageTablePointer(root uintptr) {
	m.root = root
}

// SetCurrentASID updates the address-space id the TLB uses on subsequent
// operations.
func (m *MMU) SetCurrentASID(asid vm.ASID) {
	m.asid = asid
}

// ProcessMemAccess is the top-level entry point a trace driver calls for
// every memory access. It panics if no page-table root has been set; it
// otherwise loops between translating and (on miss) invoking the
// page-fault handler until a translation succeeds (spec §4.E's state
// machine: start -> translating -> faulting -> translating -> ... -> done).
func (m *MMU) ProcessMemAccess(access vm.MemAccess) {
	if m.root == 0 {
		panic("mmu: ProcessMemAccess called with no page-table root set")
	}

	for {
		if _, ok := m.GetTranslation(access); ok {
			return
		}

		m.faultHandler.HandlePageFault(access.Address)
	}
}

// GetTranslation resolves access to a physical byte address, consulting
// the TLB first and falling through to the bare walk on a miss, refilling
// the TLB on a successful walk (spec §4.C, "get_translation composition").
func (m *MMU) GetTranslation(access vm.MemAccess) (physicalAddress uint64, ok bool) {
	virtualPage := vm.VPageOf(access.Address)
	isWrite := access.Type.IsWrite()

	if physicalPage, hit := m.tlb.Lookup(uint64(m.asid), virtualPage); hit {
		return vm.PhysicalAddress(physicalPage, access.Address), true
	}

	physicalPage, ok := m.walker.PerformTranslation(m.root, virtualPage, isWrite)
	if !ok {
		return 0, false
	}

	m.tlb.Add(uint64(m.asid), virtualPage, physicalPage)

	return vm.PhysicalAddress(physicalPage, access.Address), true
}

// FlushTLB drops every TLB entry, as on a whole-context switch.
func (m *MMU) FlushTLB() {
	m.tlb.Flush()
}

// Statistics returns the TLB's cumulative lookup/hit/eviction/flush
// counters.
func (m *MMU) Statistics() tlb.Statistics {
	return m.tlb.Statistics()
}

// reportStatistics writes the final statistics line in the format the
// original MMU destructor used: lookups, hits, hit rate, evictions,
// flushes, flush evictions, in that order (spec.md calls this block
// informational and not byte-stable; this module keeps the original's
// ordering as its default shape).
func (m *MMU) reportStatistics(w *os.File) {
	s := m.tlb.Statistics()
	fmt.Fprintf(w, "mmu[%s]: tlb lookups=%d hits=%d hit_rate=%.2f%% evictions=%d flushes=%d flush_evictions=%d\n",
		m.name, s.Lookups, s.Hits, s.HitRate(), s.Evictions, s.Flushes, s.FlushEvictions)
}
