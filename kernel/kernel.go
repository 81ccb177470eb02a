// Package kernel supplies the reference "host kernel" collaborator: the
// entity the physical-page allocator and the page-table driver both
// ultimately reach for backing memory (spec §1, §4.A, §4.B treat this as
// an opaque external collaborator; original_source/'s OSKernel owns both
// responsibilities together, which this package follows).
//
// This is a simulation of an address space, not a real one: Kernel never
// allocates actual backing bytes. It hands out non-overlapping, correctly
// aligned address ranges from an ever-growing counter, which is all the
// allocator and the driver ever inspect.
package kernel

import (
	"fmt"
	"log"
	"sync"

	"github.com/shirou/gopsutil/mem"

	"github.com/leidenuniv/pagetables/mem/vm"
)

// baseAddress is an arbitrary non-zero starting point so that a zero
// address can keep meaning "absent" everywhere else in the module.
const baseAddress = 0x10000

// Kernel implements both alloc.RegionSource (for the physical-page
// allocator's backing region) and pgtable.KernelAllocator (for page-table
// interior nodes).
type Kernel struct {
	mu             sync.Mutex
	next           uintptr
	bytesRequested uint64
}

// New constructs an empty Kernel.
func New() *Kernel {
	return &Kernel{next: baseAddress}
}

// AcquireRegion satisfies alloc.RegionSource: it hands out size bytes,
// aligned to the page size convention callers rely on for a fresh
// backing region. Before granting an unusually large request, it checks
// the host's reported available memory and logs a warning — this never
// blocks the request; the allocator's own 2 GiB circuit breaker is the
// real limit (spec §4.A).
func (k *Kernel) AcquireRegion(size uint64, hint uintptr) (uintptr, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	k.warnIfExceedsHostMemory(size)

	base := alignUp(k.next, vm.PageSize)
	k.next = base + uintptr(size)
	k.bytesRequested += size

	return base, nil
}

// ReleaseRegion satisfies alloc.RegionSource. The arena-style address
// counter is never reused within a process lifetime, so this is a no-op;
// the original's mmap-backed kernel would instead call munmap here.
func (k *Kernel) ReleaseRegion(base uintptr, size uint64) {}

// AllocateMemory satisfies pgtable.KernelAllocator: it hands out size
// bytes at an address aligned to alignment.
func (k *Kernel) AllocateMemory(size, alignment uint64) (uintptr, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	addr := alignUp(k.next, uintptr(alignment))
	k.next = addr + uintptr(size)
	k.bytesRequested += size

	return addr, nil
}

// ReleaseMemory satisfies pgtable.KernelAllocator; see ReleaseRegion.
func (k *Kernel) ReleaseMemory(pointer uintptr, size uint64) {}

// BytesRequested returns the running total of bytes handed out across
// both AcquireRegion and AllocateMemory calls.
func (k *Kernel) BytesRequested() uint64 {
	k.mu.Lock()
	defer k.mu.Unlock()

	return k.bytesRequested
}

func (k *Kernel) warnIfExceedsHostMemory(size uint64) {
	stat, err := mem.VirtualMemory()
	if err != nil {
		return
	}

	if size > stat.Available {
		log.Printf(
			"kernel: requested a %d-byte region, which exceeds the %d bytes "+
				"gopsutil reports available on this host; the simulation "+
				"does not back this with real memory, so continuing anyway\n",
			size, stat.Available)
	}
}

func alignUp(addr, alignment uintptr) uintptr {
	if alignment == 0 {
		return addr
	}

	return (addr + alignment - 1) &^ (alignment - 1)
}

// String reports cumulative usage, mirroring the teacher's plain
// stringer-for-debugging convention.
func (k *Kernel) String() string {
	return fmt.Sprintf("kernel{bytesRequested=%d}", k.BytesRequested())
}
