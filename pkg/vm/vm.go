package vm

import (
	"github.com/fortiblox/stratus-os/internal/types"
)

// Segment indexes allocated by NewVirtualMachine.
const (
	ProgramSegment   = 0
	ExecutionSegment = 1
)

// VirtualMachine is the slice of interpreter state hints see: memory, the
// fp/ap registers and the step counter. Instruction execution lives in the
// interpreter, which advances the registers and steps between hints.
type VirtualMachine struct {
	memory      *Memory
	fp          Relocatable
	ap          Relocatable
	currentStep uint64
}

// NewVirtualMachine creates a VM with empty memory. Callers allocate the
// program and execution segments themselves.
func NewVirtualMachine() *VirtualMachine {
	return &VirtualMachine{
		memory: NewMemory(),
		fp:     Relocatable{Segment: ExecutionSegment},
		ap:     Relocatable{Segment: ExecutionSegment},
	}
}

// Memory returns the VM memory.
func (v *VirtualMachine) Memory() *Memory {
	return v.memory
}

// AddMemorySegment allocates a new segment.
func (v *VirtualMachine) AddMemorySegment() Relocatable {
	return v.memory.AddSegment()
}

// GenArg allocates a segment, writes values into it and returns its base.
func (v *VirtualMachine) GenArg(values []MaybeRelocatable) (Relocatable, error) {
	base := v.memory.AddSegment()
	if _, err := v.memory.LoadData(base, values); err != nil {
		return Relocatable{}, err
	}
	return base, nil
}

// FP returns the frame pointer.
func (v *VirtualMachine) FP() Relocatable { return v.fp }

// AP returns the allocation pointer.
func (v *VirtualMachine) AP() Relocatable { return v.ap }

// SetFP sets the frame pointer to an offset in the execution segment.
func (v *VirtualMachine) SetFP(offset uint64) {
	v.fp = Relocatable{Segment: ExecutionSegment, Offset: offset}
}

// SetAP sets the allocation pointer to an offset in the execution segment.
func (v *VirtualMachine) SetAP(offset uint64) {
	v.ap = Relocatable{Segment: ExecutionSegment, Offset: offset}
}

// CurrentStep returns the number of executed instructions.
func (v *VirtualMachine) CurrentStep() uint64 {
	return v.currentStep
}

// AdvanceSteps is called by the interpreter after executing n instructions.
func (v *VirtualMachine) AdvanceSteps(n uint64) {
	v.currentStep += n
}

// Insert writes a value into memory.
func (v *VirtualMachine) Insert(addr Relocatable, value MaybeRelocatable) error {
	return v.memory.Insert(addr, value)
}

// Get reads a value from memory.
func (v *VirtualMachine) Get(addr Relocatable) (MaybeRelocatable, bool) {
	return v.memory.Get(addr)
}

// GetInteger reads a felt from memory.
func (v *VirtualMachine) GetInteger(addr Relocatable) (types.Felt, error) {
	return v.memory.GetInteger(addr)
}

// GetRelocatable reads an address from memory.
func (v *VirtualMachine) GetRelocatable(addr Relocatable) (Relocatable, error) {
	return v.memory.GetRelocatable(addr)
}

// GetRange reads consecutive cells from memory.
func (v *VirtualMachine) GetRange(addr Relocatable, size uint64) ([]MaybeRelocatable, error) {
	return v.memory.GetRange(addr, size)
}
