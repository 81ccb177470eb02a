// Package trace supplies the access-trace source collaborator spec.md
// deliberately places out of scope (spec §1: the trace driver is "an
// external caller"; this module supplies one so the rest of the core can
// be exercised end to end).
package trace

import "github.com/leidenuniv/pagetables/mem/vm"

// Source yields a sequence of memory accesses for a trace driver to feed
// into an MMU façade, one at a time. Next returns false once the trace is
// exhausted.
type Source interface {
	Next() (vm.MemAccess, bool)
	Close() error
}
