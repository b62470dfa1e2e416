package vm

import (
	"github.com/fortiblox/stratus-os/internal/types"
)

type valueKind uint8

const (
	kindNone valueKind = iota
	kindInt
	kindPointer
)

// MaybeRelocatable is the content of a memory cell: a felt or an address.
// The zero value is an unknown cell and renders as "None".
//
// MaybeRelocatable is comparable and is used directly as a dictionary key.
type MaybeRelocatable struct {
	kind valueKind
	felt types.Felt
	ptr  Relocatable
}

// Int wraps a felt.
func Int(f types.Felt) MaybeRelocatable {
	return MaybeRelocatable{kind: kindInt, felt: f}
}

// Uint wraps a small integer.
func Uint(v uint64) MaybeRelocatable {
	return Int(types.FeltFromUint64(v))
}

// Pointer wraps an address.
func Pointer(r Relocatable) MaybeRelocatable {
	return MaybeRelocatable{kind: kindPointer, ptr: r}
}

// Ints wraps a felt slice.
func Ints(fs []types.Felt) []MaybeRelocatable {
	out := make([]MaybeRelocatable, len(fs))
	for i, f := range fs {
		out[i] = Int(f)
	}
	return out
}

// Known reports whether the cell holds a value.
func (v MaybeRelocatable) Known() bool {
	return v.kind != kindNone
}

// Felt returns the integer value, if v is one.
func (v MaybeRelocatable) Felt() (types.Felt, bool) {
	return v.felt, v.kind == kindInt
}

// Relocatable returns the address value, if v is one.
func (v MaybeRelocatable) Relocatable() (Relocatable, bool) {
	return v.ptr, v.kind == kindPointer
}

// String renders the value.
func (v MaybeRelocatable) String() string {
	switch v.kind {
	case kindInt:
		return v.felt.String()
	case kindPointer:
		return v.ptr.String()
	}
	return "None"
}
