package vm

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortiblox/stratus-os/internal/types"
	"github.com/fortiblox/stratus-os/pkg/oserr"
)

func TestRelocatableArithmetic(t *testing.T) {
	r := NewRelocatable(3, 10)

	next, err := r.Add(5)
	require.NoError(t, err)
	assert.Equal(t, NewRelocatable(3, 15), next)

	prev, err := r.AddInt(-4)
	require.NoError(t, err)
	assert.Equal(t, NewRelocatable(3, 6), prev)

	_, err = r.AddInt(-11)
	assert.True(t, errors.Is(err, oserr.ErrBadAddress))

	n, err := next.Sub(r)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), n)

	_, err = r.Sub(next)
	assert.True(t, errors.Is(err, ErrNegativeOffset))

	_, err = r.Sub(NewRelocatable(4, 0))
	assert.True(t, errors.Is(err, ErrSegmentMismatch))
	assert.True(t, errors.Is(err, oserr.ErrBadAddress))

	big := types.FeltFromUint64(0).Sub(types.FeltFromUint64(1))
	_, err = r.AddFelt(big)
	assert.True(t, errors.Is(err, oserr.ErrBadAddress))

	assert.Equal(t, "3:10", r.String())
	assert.Equal(t, -1, r.Compare(next))
	assert.Equal(t, 1, NewRelocatable(4, 0).Compare(next))
	assert.Equal(t, 0, r.Compare(NewRelocatable(3, 10)))
}

func TestMemoryWriteOnce(t *testing.T) {
	m := NewMemory()
	base := m.AddSegment()
	assert.Equal(t, 0, base.Segment)

	addr := NewRelocatable(0, 3)
	require.NoError(t, m.Insert(addr, Uint(7)))
	require.NoError(t, m.Insert(addr, Uint(7)))

	err := m.Insert(addr, Uint(8))
	assert.True(t, errors.Is(err, ErrInconsistentCell))
	assert.Equal(t, oserr.ErrInconsistency, oserr.Kind(err))

	assert.Equal(t, uint64(4), m.SegmentSize(0))

	_, ok := m.Get(NewRelocatable(0, 1))
	assert.False(t, ok, "gap cell must be unknown")

	err = m.Insert(NewRelocatable(5, 0), Uint(1))
	assert.True(t, errors.Is(err, ErrUnknownSegment))
}

func TestMemorySparseWrites(t *testing.T) {
	m := NewMemory()
	m.AddSegment()

	far := NewRelocatable(0, MaxRangeSize*64-1)
	require.NoError(t, m.Insert(far, Uint(5)))
	v, ok := m.Get(far)
	require.True(t, ok)
	assert.Equal(t, Uint(5), v)
	assert.Equal(t, uint64(MaxRangeSize*64), m.SegmentSize(0))
	assert.Empty(t, m.segments[0].cells, "far write must not allocate the gap")

	_, ok = m.Get(NewRelocatable(0, MaxRangeSize))
	assert.False(t, ok)

	err := m.Insert(far, Uint(6))
	assert.True(t, errors.Is(err, ErrInconsistentCell))

	err = m.Insert(NewRelocatable(0, MaxRangeSize*64), Uint(1))
	assert.True(t, errors.Is(err, ErrOffsetOverflow))
}

func TestMemoryDenseGrowth(t *testing.T) {
	m := NewMemory()
	m.AddSegment()

	require.NoError(t, m.Insert(NewRelocatable(0, 5000), Uint(50)))
	assert.Len(t, m.segments[0].sparse, 1)

	// Sequential writes walk the dense prefix up to the overflow cell.
	for off := uint64(0); off <= 5001; off++ {
		if off == 5000 {
			continue
		}
		require.NoError(t, m.Insert(NewRelocatable(0, off), Uint(off)))
	}
	assert.Empty(t, m.segments[0].sparse, "overflow cell moves into the dense prefix")
	assert.GreaterOrEqual(t, cap(m.segments[0].cells), 5002)
	assert.Equal(t, uint64(5002), m.SegmentSize(0))

	v, ok := m.Get(NewRelocatable(0, 5000))
	require.True(t, ok)
	assert.Equal(t, Uint(50), v)
	err := m.Insert(NewRelocatable(0, 5000), Uint(51))
	assert.True(t, errors.Is(err, ErrInconsistentCell))

	got, err := m.GetIntegerRange(NewRelocatable(0, 4998), 4)
	require.NoError(t, err)
	assert.Equal(t, []types.Felt{
		types.FeltFromUint64(4998), types.FeltFromUint64(4999), types.FeltFromUint64(50), types.FeltFromUint64(5001),
	}, got)
}

func TestMemoryTypedReads(t *testing.T) {
	m := NewMemory()
	seg := m.AddSegment()
	other := m.AddSegment()

	require.NoError(t, m.Insert(seg, Uint(9)))
	require.NoError(t, m.Insert(NewRelocatable(0, 1), Pointer(other)))

	f, err := m.GetInteger(seg)
	require.NoError(t, err)
	assert.Equal(t, types.FeltFromUint64(9), f)

	p, err := m.GetRelocatable(NewRelocatable(0, 1))
	require.NoError(t, err)
	assert.Equal(t, other, p)

	_, err = m.GetInteger(NewRelocatable(0, 1))
	assert.True(t, errors.Is(err, ErrExpectedInteger))

	_, err = m.GetRelocatable(seg)
	assert.True(t, errors.Is(err, ErrExpectedPointer))

	_, err = m.GetInteger(NewRelocatable(0, 40))
	assert.True(t, errors.Is(err, ErrUnknownCell))
}

func TestMemoryRanges(t *testing.T) {
	m := NewMemory()
	seg := m.AddSegment()

	end, err := m.LoadData(seg, []MaybeRelocatable{Uint(1), Uint(2), Uint(3)})
	require.NoError(t, err)
	assert.Equal(t, NewRelocatable(0, 3), end)

	vals, err := m.GetRange(seg, 4)
	require.NoError(t, err)
	assert.Equal(t, []MaybeRelocatable{Uint(1), Uint(2), Uint(3), {}}, vals)
	assert.Equal(t, "None", vals[3].String())

	ints, err := m.GetIntegerRange(seg, 3)
	require.NoError(t, err)
	assert.Equal(t, []types.Felt{types.FeltFromUint64(1), types.FeltFromUint64(2), types.FeltFromUint64(3)}, ints)

	_, err = m.GetIntegerRange(seg, 4)
	assert.True(t, errors.Is(err, ErrUnknownCell))

	_, err = m.GetRange(seg, MaxRangeSize+1)
	assert.True(t, errors.Is(err, ErrRangeTooLarge))
}

func TestVirtualMachineGenArg(t *testing.T) {
	v := NewVirtualMachine()
	v.AddMemorySegment()
	v.AddMemorySegment()

	base, err := v.GenArg(Ints([]types.Felt{types.FeltFromUint64(4), types.FeltFromUint64(5)}))
	require.NoError(t, err)
	assert.Equal(t, NewRelocatable(2, 0), base)
	assert.Equal(t, 3, v.Memory().NumSegments())

	f, err := v.GetInteger(NewRelocatable(2, 1))
	require.NoError(t, err)
	assert.Equal(t, types.FeltFromUint64(5), f)

	v.AdvanceSteps(12)
	v.AdvanceSteps(3)
	assert.Equal(t, uint64(15), v.CurrentStep())
}
