package vm

import (
	"fmt"

	"github.com/fortiblox/stratus-os/internal/types"
)

// MaxRangeSize caps a single range read so a corrupt size field cannot force
// an unbounded allocation.
const MaxRangeSize = 1 << 20

// MemoryReader is the read-only view of memory handed to hints that must not
// write.
type MemoryReader interface {
	Get(addr Relocatable) (MaybeRelocatable, bool)
	GetInteger(addr Relocatable) (types.Felt, error)
	GetRelocatable(addr Relocatable) (Relocatable, error)
	GetRange(addr Relocatable, size uint64) ([]MaybeRelocatable, error)
}

// Memory is segmented, write-once VM memory.
type Memory struct {
	segments []segment
}

// denseSlack is how far past its dense prefix a segment may be written before
// the cell goes to the sparse overflow instead.
const denseSlack = 1 << 10

// segment keeps a dense prefix that grows geometrically and a sparse map for
// cells written far ahead of it.
type segment struct {
	cells  []MaybeRelocatable
	sparse map[uint64]MaybeRelocatable
	size   uint64
}

func (s *segment) get(offset uint64) (MaybeRelocatable, bool) {
	if offset < uint64(len(s.cells)) {
		return s.cells[offset], true
	}
	v, ok := s.sparse[offset]
	return v, ok
}

func (s *segment) put(offset uint64, v MaybeRelocatable) {
	if offset >= uint64(len(s.cells)) && offset <= uint64(len(s.cells))+denseSlack {
		s.grow(offset + 1)
	}
	if offset < uint64(len(s.cells)) {
		s.cells[offset] = v
	} else {
		if s.sparse == nil {
			s.sparse = make(map[uint64]MaybeRelocatable)
		}
		s.sparse[offset] = v
	}
	if offset >= s.size {
		s.size = offset + 1
	}
}

// grow extends the dense prefix to n cells and pulls in overflow cells it
// now covers.
func (s *segment) grow(n uint64) {
	old := uint64(len(s.cells))
	if n > uint64(cap(s.cells)) {
		grown := make([]MaybeRelocatable, n, max(2*uint64(cap(s.cells)), n))
		copy(grown, s.cells)
		s.cells = grown
	} else {
		s.cells = s.cells[:n]
	}
	for off, v := range s.sparse {
		if off >= old && off < n {
			s.cells[off] = v
			delete(s.sparse, off)
		}
	}
}

// NewMemory creates an empty memory with no segments.
func NewMemory() *Memory {
	return &Memory{}
}

// AddSegment allocates a new empty segment and returns its base address.
func (m *Memory) AddSegment() Relocatable {
	m.segments = append(m.segments, segment{})
	return Relocatable{Segment: len(m.segments) - 1}
}

// NumSegments returns the number of allocated segments.
func (m *Memory) NumSegments() int {
	return len(m.segments)
}

// SegmentSize returns one past the highest offset written in a segment.
func (m *Memory) SegmentSize(segment int) uint64 {
	if segment < 0 || segment >= len(m.segments) {
		return 0
	}
	return m.segments[segment].size
}

func (m *Memory) lookup(addr Relocatable) (*segment, error) {
	if addr.Segment < 0 || addr.Segment >= len(m.segments) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSegment, addr)
	}
	return &m.segments[addr.Segment], nil
}

// Insert writes v at addr. Memory is write-once: rewriting a cell with the
// same value is allowed, with a different value it is an inconsistency.
func (m *Memory) Insert(addr Relocatable, v MaybeRelocatable) error {
	if !v.Known() {
		return fmt.Errorf("%w: writing unknown value at %s", ErrUnknownCell, addr)
	}
	seg, err := m.lookup(addr)
	if err != nil {
		return err
	}
	if addr.Offset >= MaxRangeSize*64 {
		return fmt.Errorf("%w: write at %s", ErrOffsetOverflow, addr)
	}
	if cur, ok := seg.get(addr.Offset); ok && cur.Known() && cur != v {
		return fmt.Errorf("%w: %s holds %s, writing %s", ErrInconsistentCell, addr, cur, v)
	}
	seg.put(addr.Offset, v)
	return nil
}

// Get returns the value at addr, if known.
func (m *Memory) Get(addr Relocatable) (MaybeRelocatable, bool) {
	seg, err := m.lookup(addr)
	if err != nil {
		return MaybeRelocatable{}, false
	}
	v, ok := seg.get(addr.Offset)
	if !ok || !v.Known() {
		return MaybeRelocatable{}, false
	}
	return v, true
}

// GetInteger reads a felt at addr.
func (m *Memory) GetInteger(addr Relocatable) (types.Felt, error) {
	v, ok := m.Get(addr)
	if !ok {
		return types.Felt{}, fmt.Errorf("%w: %s", ErrUnknownCell, addr)
	}
	f, ok := v.Felt()
	if !ok {
		return types.Felt{}, fmt.Errorf("%w at %s, found %s", ErrExpectedInteger, addr, v)
	}
	return f, nil
}

// GetRelocatable reads an address at addr.
func (m *Memory) GetRelocatable(addr Relocatable) (Relocatable, error) {
	v, ok := m.Get(addr)
	if !ok {
		return Relocatable{}, fmt.Errorf("%w: %s", ErrUnknownCell, addr)
	}
	r, ok := v.Relocatable()
	if !ok {
		return Relocatable{}, fmt.Errorf("%w at %s, found %s", ErrExpectedPointer, addr, v)
	}
	return r, nil
}

// GetRange returns size consecutive cells starting at addr. Unknown cells are
// returned as the zero MaybeRelocatable.
func (m *Memory) GetRange(addr Relocatable, size uint64) ([]MaybeRelocatable, error) {
	if size > MaxRangeSize {
		return nil, fmt.Errorf("%w: %d cells at %s", ErrRangeTooLarge, size, addr)
	}
	if _, err := addr.Add(size); err != nil {
		return nil, err
	}
	out := make([]MaybeRelocatable, size)
	for i := uint64(0); i < size; i++ {
		out[i], _ = m.Get(Relocatable{Segment: addr.Segment, Offset: addr.Offset + i})
	}
	return out, nil
}

// GetIntegerRange reads size consecutive felts starting at addr.
func (m *Memory) GetIntegerRange(addr Relocatable, size uint64) ([]types.Felt, error) {
	if size > MaxRangeSize {
		return nil, fmt.Errorf("%w: %d cells at %s", ErrRangeTooLarge, size, addr)
	}
	out := make([]types.Felt, size)
	for i := uint64(0); i < size; i++ {
		f, err := m.GetInteger(Relocatable{Segment: addr.Segment, Offset: addr.Offset + i})
		if err != nil {
			return nil, err
		}
		out[i] = f
	}
	return out, nil
}

// LoadData writes values starting at addr and returns the address just past
// the last one.
func (m *Memory) LoadData(addr Relocatable, values []MaybeRelocatable) (Relocatable, error) {
	for i, v := range values {
		if err := m.Insert(Relocatable{Segment: addr.Segment, Offset: addr.Offset + uint64(i)}, v); err != nil {
			return Relocatable{}, err
		}
	}
	return addr.Add(uint64(len(values)))
}
