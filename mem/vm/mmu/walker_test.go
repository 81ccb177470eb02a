package mmu_test

import (
	"testing"

	"github.com/leidenuniv/pagetables/mem/vm"
	"github.com/leidenuniv/pagetables/mem/vm/mmu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTables is a minimal in-memory TableReader: tables are keyed by a
// synthetic physical address, entirely independent of the pgtable
// package, so the walker can be tested in isolation from the driver.
type fakeTables struct {
	tables map[uintptr][]vm.Entry
	next   uintptr
}

func newFakeTables() *fakeTables {
	return &fakeTables{tables: make(map[uintptr][]vm.Entry), next: vm.PageTableAlign}
}

func (f *fakeTables) newTable(entries int) uintptr {
	addr := f.next
	f.next += uintptr(vm.PageTableAlign)
	f.tables[addr] = make([]vm.Entry, entries)

	return addr
}

func (f *fakeTables) ReadEntry(tableAddr uintptr, index uint64) vm.Entry {
	return f.tables[tableAddr][index]
}

func (f *fakeTables) WriteEntry(tableAddr uintptr, index uint64, e vm.Entry) {
	f.tables[tableAddr][index] = e
}

// install builds a full L0-L3 chain for virtualPage -> physicalPage and
// returns the root address.
func (f *fakeTables) install(virtualPage, physicalPage uint64) uintptr {
	root := f.newTable(vm.L0Entries)
	l1 := f.newTable(vm.L1Entries)
	l2 := f.newTable(vm.L2Entries)
	l3 := f.newTable(vm.L3Entries)

	l0i, l1i, l2i, l3i := vm.PageIndices(virtualPage << vm.PageBits)

	f.tables[root][l0i] = vm.NewTableEntry(uint64(l1) >> vm.PageBits)
	f.tables[l1][l1i] = vm.NewTableEntry(uint64(l2) >> vm.PageBits)
	f.tables[l2][l2i] = vm.NewTableEntry(uint64(l3) >> vm.PageBits)
	f.tables[l3][l3i] = vm.NewLeafEntry(physicalPage)

	return root
}

func TestEmptyTranslationMisses(t *testing.T) {
	// S1: fresh L0 table, every translation misses, nothing mutated.
	f := newFakeTables()
	root := f.newTable(vm.L0Entries)
	w := mmu.NewWalker(f)

	for _, vp := range []uint64{0, 1, 0xFFFF} {
		_, ok := w.PerformTranslation(root, vp, false)
		assert.False(t, ok)
	}
}

func TestValidTranslationStampsBits(t *testing.T) {
	// S2: install 0x12345 -> 0xABCDE, confirm bit stamping on read then write.
	f := newFakeTables()
	root := f.install(0x12345, 0xABCDE)
	w := mmu.NewWalker(f)

	pPage, ok := w.PerformTranslation(root, 0x12345, false)
	require.True(t, ok)
	assert.EqualValues(t, 0xABCDE, pPage)

	l0, l1, l2, l3 := vm.PageIndices(uint64(0x12345) << vm.PageBits)
	l1Addr := childOf(f, root, l0)
	l2Addr := childOf(f, l1Addr, l1)
	l3Addr := childOf(f, l2Addr, l2)
	leaf := f.ReadEntry(l3Addr, l3)

	assert.True(t, leaf.Referenced())
	assert.False(t, leaf.Dirty())

	pPage, ok = w.PerformTranslation(root, 0x12345, true)
	require.True(t, ok)
	assert.EqualValues(t, 0xABCDE, pPage)

	leaf = f.ReadEntry(l3Addr, l3)
	assert.True(t, leaf.Dirty())
}

func childOf(f *fakeTables, tableAddr uintptr, index uint64) uintptr {
	e := f.ReadEntry(tableAddr, index)
	return uintptr(e.PhysicalPage() << vm.PageBits)
}

func TestMisalignedRootPanics(t *testing.T) {
	f := newFakeTables()
	w := mmu.NewWalker(f)

	assert.Panics(t, func() {
		w.PerformTranslation(1, 0, false)
	})
}
