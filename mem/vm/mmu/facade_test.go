package mmu_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	gomock "go.uber.org/mock/gomock"

	"github.com/leidenuniv/pagetables/mem/vm"
	"github.com/leidenuniv/pagetables/mem/vm/mmu"
)

// firstTouchHandler installs a mapping straight into a fakeTables tree the
// first time it sees a faulting address, so the façade's retry loop
// terminates after exactly one fault.
type firstTouchHandler struct {
	tables       *fakeTables
	root         uintptr
	physicalPage uint64
	faults       int
}

func (h *firstTouchHandler) HandlePageFault(address uint64) {
	h.faults++

	virtualPage := vm.VPageOf(address)
	l0, l1, l2, l3 := vm.PageIndices(virtualPage << vm.PageBits)

	l1Entry := h.tables.ReadEntry(h.root, l0)
	l1Addr := childOf(h.tables, h.root, l0)
	if !l1Entry.Valid() {
		l1Addr = h.tables.newTable(vm.L1Entries)
		h.tables.WriteEntry(h.root, l0, vm.NewTableEntry(uint64(l1Addr)>>vm.PageBits))
	}

	l2Entry := h.tables.ReadEntry(l1Addr, l1)
	l2Addr := childOf(h.tables, l1Addr, l1)
	if !l2Entry.Valid() {
		l2Addr = h.tables.newTable(vm.L2Entries)
		h.tables.WriteEntry(l1Addr, l1, vm.NewTableEntry(uint64(l2Addr)>>vm.PageBits))
	}

	l3Entry := h.tables.ReadEntry(l2Addr, l2)
	l3Addr := childOf(h.tables, l2Addr, l2)
	if !l3Entry.Valid() {
		l3Addr = h.tables.newTable(vm.L3Entries)
		h.tables.WriteEntry(l2Addr, l2, vm.NewTableEntry(uint64(l3Addr)>>vm.PageBits))
	}

	h.tables.WriteEntry(l3Addr, l3, vm.NewLeafEntry(h.physicalPage))
}

var _ = Describe("MMU façade", func() {
	var (
		tables  *fakeTables
		root    uintptr
		walker  *mmu.Walker
		handler *firstTouchHandler
		facade  *mmu.MMU
	)

	BeforeEach(func() {
		tables = newFakeTables()
		root = tables.newTable(vm.L0Entries)
		walker = mmu.NewWalker(tables)
		handler = &firstTouchHandler{tables: tables, root: root, physicalPage: 0xABCDE}

		facade = mmu.New("test", walker, 4)
		facade.Initialize(handler)
		facade.SetPageTablePointer(root)
	})

	It("panics when no page-table root has been set", func() {
		bare := mmu.New("bare", mmu.NewWalker(tables), 4)
		bare.Initialize(handler)

		Expect(func() {
			bare.ProcessMemAccess(vm.MemAccess{Address: 0x1000, Type: vm.Load})
		}).To(Panic())
	})

	It("invokes the fault handler exactly once then succeeds", func() {
		access := vm.MemAccess{Address: 0x12345 << vm.PageBits, Type: vm.Load}

		facade.ProcessMemAccess(access)

		Expect(handler.faults).To(Equal(1))
	})

	It("serves the second access for the same page from the TLB", func() {
		access := vm.MemAccess{Address: 0x12345 << vm.PageBits, Type: vm.Load}

		facade.ProcessMemAccess(access)
		facade.ProcessMemAccess(access)

		Expect(handler.faults).To(Equal(1))
		Expect(facade.Statistics().Hits).To(Equal(1))
	})

	It("flushes the TLB so the next access walks again", func() {
		access := vm.MemAccess{Address: 0x12345 << vm.PageBits, Type: vm.Load}

		facade.ProcessMemAccess(access)
		facade.FlushTLB()
		facade.ProcessMemAccess(access)

		Expect(facade.Statistics().Flushes).To(Equal(1))
	})
})

var _ = Describe("MMU façade with a mocked page-fault handler", func() {
	var (
		mockController *gomock.Controller
		handler        *mmu.MockPageFaultHandler
		tables         *fakeTables
		root           uintptr
		facade         *mmu.MMU
	)

	BeforeEach(func() {
		mockController = gomock.NewController(GinkgoT())
		handler = mmu.NewMockPageFaultHandler(mockController)

		tables = newFakeTables()
		root = tables.newTable(vm.L0Entries)

		facade = mmu.New("mocked", mmu.NewWalker(tables), 4)
		facade.Initialize(handler)
		facade.SetPageTablePointer(root)
	})

	AfterEach(func() {
		mockController.Finish()
	})

	It("calls the fault handler exactly once per distinct faulting page", func() {
		access := vm.MemAccess{Address: 0x777 << vm.PageBits, Type: vm.Store}

		handler.EXPECT().
			HandlePageFault(access.Address).
			Times(1).
			Do(func(address uint64) {
				installLeaf(tables, root, vm.VPageOf(address), 0xF00D)
			})

		facade.ProcessMemAccess(access)
		facade.ProcessMemAccess(access)
	})
})

// installLeaf materializes every interior table on the path to
// virtualPage in tables, rooted at root, and installs a leaf mapping it
// to physicalPage.
func installLeaf(tables *fakeTables, root uintptr, virtualPage, physicalPage uint64) {
	l0, l1, l2, l3 := vm.PageIndices(virtualPage << vm.PageBits)

	l1Addr := ensureChild(tables, root, l0, vm.L1Entries)
	l2Addr := ensureChild(tables, l1Addr, l1, vm.L2Entries)
	l3Addr := ensureChild(tables, l2Addr, l2, vm.L3Entries)

	tables.WriteEntry(l3Addr, l3, vm.NewLeafEntry(physicalPage))
}

func ensureChild(tables *fakeTables, parent uintptr, index uint64, childEntries int) uintptr {
	entry := tables.ReadEntry(parent, index)
	if entry.Valid() {
		return childOf(tables, parent, index)
	}

	child := tables.newTable(childEntries)
	tables.WriteEntry(parent, index, vm.NewTableEntry(uint64(child)>>vm.PageBits))

	return child
}
