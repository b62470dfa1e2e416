// Package vm models the parts of the Cairo VM the syscall bridge consumes:
// segmented write-once memory, relocatable addresses, the fp/ap registers and
// step counter, identifier bindings, the execution scope store and the
// dictionary manager.
//
// Memory is organized into segments. Segment 0 is the program, segment 1 the
// execution stack; every later segment is allocated on demand. An address is
// a (segment, offset) pair and arithmetic never crosses a segment.
package vm

import (
	"fmt"
	"math"

	"github.com/fortiblox/stratus-os/internal/types"
	"github.com/fortiblox/stratus-os/pkg/oserr"
)

// Address errors.
var (
	ErrSegmentMismatch  = fmt.Errorf("%w: relocatable arithmetic across segments", oserr.ErrBadAddress)
	ErrOffsetOverflow   = fmt.Errorf("%w: offset overflow", oserr.ErrBadAddress)
	ErrNegativeOffset   = fmt.Errorf("%w: negative offset", oserr.ErrBadAddress)
	ErrUnknownSegment   = fmt.Errorf("%w: unknown segment", oserr.ErrBadAddress)
	ErrUnknownCell      = fmt.Errorf("%w: unknown memory cell", oserr.ErrBadAddress)
	ErrExpectedInteger  = fmt.Errorf("%w: expected integer", oserr.ErrBadAddress)
	ErrExpectedPointer  = fmt.Errorf("%w: expected relocatable", oserr.ErrBadAddress)
	ErrRangeTooLarge    = fmt.Errorf("%w: memory range too large", oserr.ErrBadAddress)
	ErrInconsistentCell = fmt.Errorf("%w: inconsistent memory write", oserr.ErrInconsistency)
)

// Relocatable is a (segment, offset) memory address.
type Relocatable struct {
	Segment int
	Offset  uint64
}

// NewRelocatable returns the address (segment, offset).
func NewRelocatable(segment int, offset uint64) Relocatable {
	return Relocatable{Segment: segment, Offset: offset}
}

// String renders the address as "segment:offset".
func (r Relocatable) String() string {
	return fmt.Sprintf("%d:%d", r.Segment, r.Offset)
}

// Add returns r + n.
func (r Relocatable) Add(n uint64) (Relocatable, error) {
	if r.Offset > math.MaxUint64-n {
		return Relocatable{}, fmt.Errorf("%w: %s + %d", ErrOffsetOverflow, r, n)
	}
	return Relocatable{Segment: r.Segment, Offset: r.Offset + n}, nil
}

// AddInt returns r + n for a signed n.
func (r Relocatable) AddInt(n int64) (Relocatable, error) {
	if n >= 0 {
		return r.Add(uint64(n))
	}
	abs := uint64(-n)
	if abs > r.Offset {
		return Relocatable{}, fmt.Errorf("%w: %s - %d", ErrNegativeOffset, r, abs)
	}
	return Relocatable{Segment: r.Segment, Offset: r.Offset - abs}, nil
}

// AddFelt returns r + f. f must fit in 64 bits.
func (r Relocatable) AddFelt(f types.Felt) (Relocatable, error) {
	n, err := f.Uint64()
	if err != nil {
		return Relocatable{}, fmt.Errorf("%w: %v", oserr.ErrBadAddress, err)
	}
	return r.Add(n)
}

// Sub returns the number of cells from o to r. Both must live in the same
// segment and r must not precede o.
func (r Relocatable) Sub(o Relocatable) (uint64, error) {
	if r.Segment != o.Segment {
		return 0, fmt.Errorf("%w: %s - %s", ErrSegmentMismatch, r, o)
	}
	if r.Offset < o.Offset {
		return 0, fmt.Errorf("%w: %s - %s", ErrNegativeOffset, r, o)
	}
	return r.Offset - o.Offset, nil
}

// Compare orders addresses by segment, then offset.
func (r Relocatable) Compare(o Relocatable) int {
	switch {
	case r.Segment < o.Segment:
		return -1
	case r.Segment > o.Segment:
		return 1
	case r.Offset < o.Offset:
		return -1
	case r.Offset > o.Offset:
		return 1
	}
	return 0
}
