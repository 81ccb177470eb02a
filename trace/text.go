package trace

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/leidenuniv/pagetables/mem/vm"
)

// TextSource reads accesses from a line-oriented text format, one access
// per line: "<hex address> <kind>", where kind is one of load, store,
// modify, execute. Blank lines and lines starting with "#" are skipped.
// This is the de facto format used by the classic trace-driven-simulation
// literature the original prototype this module descends from was itself
// modeling.
type TextSource struct {
	scanner *bufio.Scanner
	closer  io.Closer
	line    int
}

// NewTextSource wraps r as a TextSource. If r also implements io.Closer,
// Close closes it.
func NewTextSource(r io.Reader) *TextSource {
	s := &TextSource{scanner: bufio.NewScanner(r)}
	if closer, ok := r.(io.Closer); ok {
		s.closer = closer
	}

	return s
}

// Next returns the next access in the trace, or false once exhausted.
// It panics on a malformed line — a corrupt trace file is not a
// recoverable condition for this reference source.
func (s *TextSource) Next() (vm.MemAccess, bool) {
	for s.scanner.Scan() {
		s.line++
		text := strings.TrimSpace(s.scanner.Text())

		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		return s.parseLine(text), true
	}

	return vm.MemAccess{}, false
}

func (s *TextSource) parseLine(text string) vm.MemAccess {
	fields := strings.Fields(text)
	if len(fields) != 2 {
		panic(fmt.Sprintf("trace: line %d: expected \"<address> <kind>\", got %q", s.line, text))
	}

	addr, err := strconv.ParseUint(strings.TrimPrefix(fields[0], "0x"), 16, 64)
	if err != nil {
		panic(fmt.Sprintf("trace: line %d: bad address %q: %v", s.line, fields[0], err))
	}

	kind, err := parseAccessType(fields[1])
	if err != nil {
		panic(fmt.Sprintf("trace: line %d: %v", s.line, err))
	}

	return vm.MemAccess{Address: addr, Type: kind}
}

func parseAccessType(s string) (vm.AccessType, error) {
	switch strings.ToLower(s) {
	case "load":
		return vm.Load, nil
	case "store":
		return vm.Store, nil
	case "modify":
		return vm.Modify, nil
	case "execute":
		return vm.Execute, nil
	default:
		return 0, fmt.Errorf("unknown access kind %q", s)
	}
}

// Close closes the underlying reader, if it supports closing.
func (s *TextSource) Close() error {
	if s.closer == nil {
		return nil
	}

	return s.closer.Close()
}
