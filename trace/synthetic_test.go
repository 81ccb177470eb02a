package trace_test

import (
	"testing"

	"github.com/leidenuniv/pagetables/mem/vm"
	"github.com/leidenuniv/pagetables/trace"
	"github.com/stretchr/testify/assert"
)

func TestSyntheticSourceProducesExactlyCountAccesses(t *testing.T) {
	s := trace.NewSyntheticSource(1, 10, 4, 0.5)

	n := 0
	for {
		_, ok := s.Next()
		if !ok {
			break
		}
		n++
	}

	assert.Equal(t, 10, n)
}

func TestSyntheticSourceStaysWithinWorkingSet(t *testing.T) {
	const workingSet = 4
	s := trace.NewSyntheticSource(42, 200, workingSet, 0.3)

	for {
		access, ok := s.Next()
		if !ok {
			break
		}

		assert.Less(t, vm.VPageOf(access.Address), uint64(workingSet))
	}
}

func TestSyntheticSourceIsDeterministicForAGivenSeed(t *testing.T) {
	a := trace.NewSyntheticSource(7, 5, 8, 0.5)
	b := trace.NewSyntheticSource(7, 5, 8, 0.5)

	for i := 0; i < 5; i++ {
		accessA, _ := a.Next()
		accessB, _ := b.Next()
		assert.Equal(t, accessA, accessB)
	}
}
