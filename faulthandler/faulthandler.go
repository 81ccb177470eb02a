// Package faulthandler supplies the reference page-fault handler: a
// "first-touch" strategy that allocates one fresh physical page and maps
// it into the faulting process's page table. spec.md treats the
// page-fault handler purely as an external collaborator contract (§4.C,
// §4.E, §6); the original_source/ prototype never shipped a complete
// one (its os_kernel.cc's allocatePage is a single line), so this package
// fills that gap to exercise component wiring end to end.
package faulthandler

import (
	"log"

	"github.com/leidenuniv/pagetables/mem/vm"
	"github.com/leidenuniv/pagetables/mem/vm/alloc"
	"github.com/leidenuniv/pagetables/mem/vm/pgtable"
)

// FirstTouch installs a brand-new physical page for the faulting address
// every time it is invoked, on behalf of whichever process id is
// currently set. Per spec §6's contract, a second translation of the same
// address must succeed after HandlePageFault returns.
type FirstTouch struct {
	driver    *pgtable.Driver
	allocator *alloc.Allocator

	currentPID vm.PID
}

// New constructs a FirstTouch handler bound to driver and allocator.
func New(driver *pgtable.Driver, allocator *alloc.Allocator) *FirstTouch {
	return &FirstTouch{driver: driver, allocator: allocator}
}

// SetCurrentPID tells the handler which process's tree to install into on
// the next fault, mirroring the MMU façade's own SetCurrentASID — the
// caller is responsible for keeping these two in step.
func (h *FirstTouch) SetCurrentPID(pid vm.PID) {
	h.currentPID = pid
}

// HandlePageFault satisfies mmu.PageFaultHandler. It panics if the
// allocator is out of physical memory: resource exhaustion mid-fault is
// not a recoverable condition for this reference handler (a production
// handler might instead trigger reclamation; spec §7 treats allocator
// exhaustion as fatal by default).
func (h *FirstTouch) HandlePageFault(address uint64) {
	physAddr, ok := h.allocator.AllocatePages(1)
	if !ok {
		log.Panicf("faulthandler: out of physical memory servicing fault at %#x", address)
	}

	handle := &pgtable.PhysPageHandle{Address: physAddr}
	h.driver.SetMapping(h.currentPID, address, handle)
}
