package pgtable_test

import (
	"testing"

	"github.com/leidenuniv/pagetables/mem/vm"
	"github.com/leidenuniv/pagetables/mem/vm/pgtable"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// arenaKernel hands out ever-increasing, page-aligned addresses; it never
// fails and never actually frees anything (tests only assert on byte
// accounting, not reuse).
type arenaKernel struct {
	next uintptr
}

func (k *arenaKernel) AllocateMemory(size, alignment uint64) (uintptr, error) {
	if k.next == 0 {
		k.next = vm.PageTableAlign
	}

	addr := k.next
	k.next += uintptr(alignment)

	return addr, nil
}

func (k *arenaKernel) ReleaseMemory(pointer uintptr, size uint64) {}

func TestAllocatePageTableRejectsDuplicatePID(t *testing.T) {
	d := pgtable.New(&arenaKernel{})

	d.AllocatePageTable(1)

	assert.Panics(t, func() {
		d.AllocatePageTable(1)
	})
}

func TestGetPageTableForAbsentPIDReturnsZero(t *testing.T) {
	d := pgtable.New(&arenaKernel{})

	assert.EqualValues(t, 0, d.GetPageTable(99))
}

func TestSetMappingMaterializesTreeAndStampsCookie(t *testing.T) {
	d := pgtable.New(&arenaKernel{})
	d.AllocatePageTable(1)

	before := d.BytesAllocated()

	handle := &pgtable.PhysPageHandle{Address: 0xABCDE << vm.PageBits}
	d.SetMapping(1, 0x12345<<vm.PageBits, handle)

	assert.Greater(t, d.BytesAllocated(), before, "materializing L1-L3 tables should have charged the kernel allocator")
	assert.NotZero(t, handle.DriverCookie)
}

func TestSetPageValidRejectsZeroToOneWithoutReinstall(t *testing.T) {
	d := pgtable.New(&arenaKernel{})
	d.AllocatePageTable(1)

	handle := &pgtable.PhysPageHandle{Address: 0xABCDE << vm.PageBits}
	d.SetMapping(1, 0x12345<<vm.PageBits, handle)

	require.NoError(t, d.SetPageValid(handle, false))

	err := d.SetPageValid(handle, true)
	assert.Error(t, err)
}

func TestSetPageValidAllowsReinstallViaSetMapping(t *testing.T) {
	d := pgtable.New(&arenaKernel{})
	d.AllocatePageTable(1)

	handle := &pgtable.PhysPageHandle{Address: 0xABCDE << vm.PageBits}
	d.SetMapping(1, 0x12345<<vm.PageBits, handle)
	require.NoError(t, d.SetPageValid(handle, false))

	d.SetMapping(1, 0x12345<<vm.PageBits, handle)

	assert.NoError(t, d.SetPageValid(handle, true))
}

func TestReleasePageTableRemovesPID(t *testing.T) {
	d := pgtable.New(&arenaKernel{})
	d.AllocatePageTable(1)

	handle := &pgtable.PhysPageHandle{Address: 0xABCDE << vm.PageBits}
	d.SetMapping(1, 0x12345<<vm.PageBits, handle)

	d.ReleasePageTable(1)

	assert.EqualValues(t, 0, d.GetPageTable(1))
	assert.Panics(t, func() {
		d.ReleasePageTable(1)
	}, "a second release of the same pid is a fatal double-free")
}
