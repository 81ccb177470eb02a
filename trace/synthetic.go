package trace

import (
	"math/rand"

	"github.com/leidenuniv/pagetables/mem/vm"
)

// SyntheticSource generates a fixed-length stream of pseudo-random
// accesses confined to a working set of pages, for tests and demos that
// don't need a real trace file.
type SyntheticSource struct {
	rng         *rand.Rand
	remaining   int
	workingSet  uint64
	writeChance float64
}

// NewSyntheticSource builds a SyntheticSource that yields count accesses
// uniformly spread over workingSetPages virtual pages, seeded by seed so
// runs are reproducible. writeChance is the probability (0-1) that a
// given access is a Store.
func NewSyntheticSource(seed int64, count int, workingSetPages uint64, writeChance float64) *SyntheticSource {
	return &SyntheticSource{
		rng:         rand.New(rand.NewSource(seed)),
		remaining:   count,
		workingSet:  workingSetPages,
		writeChance: writeChance,
	}
}

// Next returns the next synthetic access, or false once count accesses
// have been produced.
func (s *SyntheticSource) Next() (vm.MemAccess, bool) {
	if s.remaining <= 0 {
		return vm.MemAccess{}, false
	}

	s.remaining--

	page := s.rng.Uint64() % s.workingSet
	offset := s.rng.Uint64() % vm.PageSize
	address := (page << vm.PageBits) | offset

	kind := vm.Load
	if s.rng.Float64() < s.writeChance {
		kind = vm.Store
	}

	return vm.MemAccess{Address: address, Type: kind}, true
}

// Close is a no-op; SyntheticSource owns no external resource.
func (s *SyntheticSource) Close() error { return nil }
