package vm

import (
	"fmt"

	"github.com/fortiblox/stratus-os/internal/types"
	"github.com/fortiblox/stratus-os/pkg/oserr"
)

// Identifier errors.
var (
	ErrUnknownIdentifier = fmt.Errorf("%w: unknown identifier", oserr.ErrBadAddress)
	ErrApTrackingGroup   = fmt.Errorf("%w: ap tracking group mismatch", oserr.ErrBadAddress)
	ErrNotDereferenced   = fmt.Errorf("%w: reference is not dereferenced", oserr.ErrBadAddress)
)

// Register selects the base of a reference.
type Register uint8

const (
	RegisterFP Register = iota
	RegisterAP
)

// ApTracking locates a program point relative to ap changes. References based
// on ap are only valid within the same group.
type ApTracking struct {
	Group  int
	Offset int
}

// HintReference binds an identifier to a location relative to fp or ap.
// A dereferenced reference names the cell at [reg + Offset]; otherwise the
// identifier's value is the address reg + Offset itself.
type HintReference struct {
	Register    Register
	Offset      int
	Dereference bool
	ApTracking  ApTracking
}

// NewSimpleReference returns the reference [fp + offset].
func NewSimpleReference(offset int) HintReference {
	return HintReference{Register: RegisterFP, Offset: offset, Dereference: true}
}

// NewAPReference returns the reference [ap + offset] recorded at tracking.
func NewAPReference(offset int, tracking ApTracking) HintReference {
	return HintReference{Register: RegisterAP, Offset: offset, Dereference: true, ApTracking: tracking}
}

// IdsData maps identifier names to their references at a hint site.
type IdsData map[string]HintReference

// ComputeAddrFromReference resolves a reference to the address it names.
func (v *VirtualMachine) ComputeAddrFromReference(ref HintReference, hintTracking ApTracking) (Relocatable, error) {
	base := v.fp
	offset := int64(ref.Offset)
	if ref.Register == RegisterAP {
		if ref.ApTracking.Group != hintTracking.Group {
			return Relocatable{}, fmt.Errorf("%w: reference group %d, hint group %d",
				ErrApTrackingGroup, ref.ApTracking.Group, hintTracking.Group)
		}
		base = v.ap
		offset -= int64(hintTracking.Offset - ref.ApTracking.Offset)
	}
	return base.AddInt(offset)
}

// GetAddressFromVarName returns the address the identifier is bound to.
func GetAddressFromVarName(name string, v *VirtualMachine, ids IdsData, tracking ApTracking) (Relocatable, error) {
	ref, ok := ids[name]
	if !ok {
		return Relocatable{}, fmt.Errorf("%w: %s", ErrUnknownIdentifier, name)
	}
	addr, err := v.ComputeAddrFromReference(ref, tracking)
	if err != nil {
		return Relocatable{}, fmt.Errorf("ids.%s: %w", name, err)
	}
	return addr, nil
}

// GetPtrFromVarName returns the pointer value of an identifier.
func GetPtrFromVarName(name string, v *VirtualMachine, ids IdsData, tracking ApTracking) (Relocatable, error) {
	addr, err := GetAddressFromVarName(name, v, ids, tracking)
	if err != nil {
		return Relocatable{}, err
	}
	if !ids[name].Dereference {
		return addr, nil
	}
	ptr, err := v.GetRelocatable(addr)
	if err != nil {
		return Relocatable{}, fmt.Errorf("ids.%s: %w", name, err)
	}
	return ptr, nil
}

// GetIntegerFromVarName returns the felt value of an identifier.
func GetIntegerFromVarName(name string, v *VirtualMachine, ids IdsData, tracking ApTracking) (types.Felt, error) {
	addr, err := GetAddressFromVarName(name, v, ids, tracking)
	if err != nil {
		return types.Felt{}, err
	}
	if !ids[name].Dereference {
		return types.Felt{}, fmt.Errorf("%w: ids.%s", ErrNotDereferenced, name)
	}
	f, err := v.GetInteger(addr)
	if err != nil {
		return types.Felt{}, fmt.Errorf("ids.%s: %w", name, err)
	}
	return f, nil
}

// InsertValueFromVarName writes value into the cell bound to an identifier.
func InsertValueFromVarName(name string, value MaybeRelocatable, v *VirtualMachine, ids IdsData, tracking ApTracking) error {
	addr, err := GetAddressFromVarName(name, v, ids, tracking)
	if err != nil {
		return err
	}
	if err := v.Insert(addr, value); err != nil {
		return fmt.Errorf("ids.%s: %w", name, err)
	}
	return nil
}
