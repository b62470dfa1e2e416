package vm

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortiblox/stratus-os/internal/types"
	"github.com/fortiblox/stratus-os/pkg/oserr"
)

func newFrame(t *testing.T) *VirtualMachine {
	t.Helper()
	v := NewVirtualMachine()
	v.AddMemorySegment()
	v.AddMemorySegment()
	v.SetFP(4)
	v.SetAP(6)
	return v
}

func TestVarNameFPReferences(t *testing.T) {
	v := newFrame(t)
	ids := IdsData{
		"x":   NewSimpleReference(-2),
		"ptr": NewSimpleReference(-1),
		"out": NewSimpleReference(0),
	}
	tracking := ApTracking{}

	require.NoError(t, v.Insert(NewRelocatable(1, 2), Uint(11)))
	require.NoError(t, v.Insert(NewRelocatable(1, 3), Pointer(NewRelocatable(0, 7))))

	x, err := GetIntegerFromVarName("x", v, ids, tracking)
	require.NoError(t, err)
	assert.Equal(t, types.FeltFromUint64(11), x)

	p, err := GetPtrFromVarName("ptr", v, ids, tracking)
	require.NoError(t, err)
	assert.Equal(t, NewRelocatable(0, 7), p)

	require.NoError(t, InsertValueFromVarName("out", Uint(5), v, ids, tracking))
	out, err := v.GetInteger(NewRelocatable(1, 4))
	require.NoError(t, err)
	assert.Equal(t, types.FeltFromUint64(5), out)

	_, err = GetIntegerFromVarName("missing", v, ids, tracking)
	assert.True(t, errors.Is(err, ErrUnknownIdentifier))
	assert.Equal(t, oserr.ErrBadAddress, oserr.Kind(err))

	// x holds an integer, not a pointer.
	_, err = GetPtrFromVarName("x", v, ids, tracking)
	assert.True(t, errors.Is(err, ErrExpectedPointer))
}

func TestVarNameUndereferenced(t *testing.T) {
	v := newFrame(t)
	ids := IdsData{"frame": {Register: RegisterFP, Offset: -3}}

	p, err := GetPtrFromVarName("frame", v, ids, ApTracking{})
	require.NoError(t, err)
	assert.Equal(t, NewRelocatable(1, 1), p)

	_, err = GetIntegerFromVarName("frame", v, ids, ApTracking{})
	assert.True(t, errors.Is(err, ErrNotDereferenced))
}

func TestVarNameAPReferences(t *testing.T) {
	v := newFrame(t)
	ref := NewAPReference(-1, ApTracking{Group: 2, Offset: 1})
	ids := IdsData{"y": ref}

	// ap advanced by 2 since the reference was recorded.
	require.NoError(t, v.Insert(NewRelocatable(1, 3), Uint(99)))
	y, err := GetIntegerFromVarName("y", v, ids, ApTracking{Group: 2, Offset: 3})
	require.NoError(t, err)
	assert.Equal(t, types.FeltFromUint64(99), y)

	_, err = GetIntegerFromVarName("y", v, ids, ApTracking{Group: 3})
	assert.True(t, errors.Is(err, ErrApTrackingGroup))
}

func TestExecutionScopes(t *testing.T) {
	s := NewExecutionScopes()
	s.Insert("a", 1)

	s.EnterScope(map[string]any{"b": "two"})
	assert.Equal(t, 2, s.Depth())

	a, err := ScopeValue[int](s, "a")
	require.NoError(t, err)
	assert.Equal(t, 1, a)

	s.Insert("a", 10)
	a, err = ScopeValue[int](s, "a")
	require.NoError(t, err)
	assert.Equal(t, 10, a)

	_, err = ScopeValue[int](s, "b")
	assert.True(t, errors.Is(err, ErrScopeTypeMismatch))

	require.NoError(t, s.ExitScope())
	a, err = ScopeValue[int](s, "a")
	require.NoError(t, err)
	assert.Equal(t, 1, a)

	_, err = s.Get("b")
	assert.True(t, errors.Is(err, ErrVariableNotInScope))

	s.Delete("a")
	_, err = s.Get("a")
	assert.Error(t, err)

	assert.ErrorIs(t, s.ExitScope(), ErrCannotExitMainScope)
}

func TestDictManager(t *testing.T) {
	v := NewVirtualMachine()
	v.AddMemorySegment()
	v.AddMemorySegment()
	m := NewDictManager()

	plain := m.NewDict(v, map[MaybeRelocatable]MaybeRelocatable{Uint(1): Uint(100)})
	def := m.NewDefaultDict(v, Uint(0), nil)
	assert.Equal(t, NewRelocatable(2, 0), plain)
	assert.Equal(t, NewRelocatable(3, 0), def)

	tr, err := m.GetTracker(plain)
	require.NoError(t, err)
	assert.Equal(t, DictSimple, tr.Data.Kind())
	got, ok := tr.Data.Get(Uint(1))
	assert.True(t, ok)
	assert.Equal(t, Uint(100), got)
	_, ok = tr.Data.Get(Uint(2))
	assert.False(t, ok)

	tr, err = m.GetTracker(def)
	require.NoError(t, err)
	assert.Equal(t, DictDefault, tr.Data.Kind())
	got, ok = tr.Data.Get(Uint(12345))
	assert.True(t, ok)
	assert.Equal(t, Uint(0), got)
	assert.Equal(t, 0, tr.Data.Len())

	_, err = m.GetTracker(NewRelocatable(2, 1))
	assert.True(t, errors.Is(err, ErrDictPtrMismatch))
	_, err = m.GetTracker(NewRelocatable(9, 0))
	assert.True(t, errors.Is(err, ErrNoDictTracker))
}
