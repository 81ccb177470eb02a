// Package mmu implements the bare four-level page-table walker (spec
// §4.C, component C) and the façade that binds the walker, the TLB, and
// the external page-fault handler together into process_mem_access (spec
// §4.E, component E).
package mmu

import (
	"log"

	"github.com/leidenuniv/pagetables/mem/vm"
)

// TableReader is the narrow slice of the page-table driver the walker
// needs: read/write access to entries by table physical address, without
// any knowledge of processes, kernel allocation, or handle cookies.
type TableReader interface {
	ReadEntry(tableAddr uintptr, index uint64) vm.Entry
	WriteEntry(tableAddr uintptr, index uint64, e vm.Entry)
}

// Walker performs the bare four-level translation, with no TLB
// involvement (spec §4.C, "perform_translation").
type Walker struct {
	reader TableReader
}

// NewWalker constructs a Walker that reads page-table nodes through
// reader.
func NewWalker(reader TableReader) *Walker {
	return &Walker{reader: reader}
}

// PerformTranslation walks the tree rooted at root for virtualPage,
// stamping the reached L3 entry's referenced bit (and dirty bit, if
// isWrite) on success. It panics if root is zero or misaligned to the
// page-table alignment — a structural precondition violation, not a
// recoverable miss.
func (w *Walker) PerformTranslation(root uintptr, virtualPage uint64, isWrite bool) (physicalPage uint64, ok bool) {
	if root == 0 || root%vm.PageTableAlign != 0 {
		log.Panicf("mmu: page-table root %#x is not aligned to %d", root, vm.PageTableAlign)
	}

	l0, l1, l2, l3 := vm.PageIndices(virtualPage << vm.PageBits)

	table := root
	for _, index := range []uint64{l0, l1, l2} {
		entry := w.reader.ReadEntry(table, index)
		if !entry.Valid() || entry.Kind() != vm.KindTable {
			return 0, false
		}

		table = childTable(entry)
	}

	leaf := w.reader.ReadEntry(table, l3)
	if !leaf.Valid() {
		return 0, false
	}

	leaf = leaf.WithReferenced()
	if isWrite {
		leaf = leaf.WithDirty()
	}
	w.reader.WriteEntry(table, l3, leaf)

	return leaf.PhysicalPage(), true
}

func childTable(e vm.Entry) uintptr {
	return uintptr(e.PhysicalPage() << vm.PageBits)
}
