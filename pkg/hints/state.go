package hints

import (
	"fmt"

	"github.com/fortiblox/stratus-os/internal/types"
	"github.com/fortiblox/stratus-os/pkg/oserr"
	"github.com/fortiblox/stratus-os/pkg/syscall"
	"github.com/fortiblox/stratus-os/pkg/vm"
)

// fetchStateEntry binds ids.state_entry to the contract's entry in the state
// changes dict and allocates a fresh segment for ids.new_state_entry.
func fetchStateEntry(ctx *Context) error {
	dicts, err := ctx.dicts()
	if err != nil {
		return err
	}
	dictPtr, err := ctx.ptr(IdsContractStateChanges)
	if err != nil {
		return err
	}
	contract, err := ctx.integer(IdsContractAddress)
	if err != nil {
		return err
	}

	tracker, err := dicts.GetTracker(dictPtr)
	if err != nil {
		return err
	}
	if tracker.Data.Kind() != vm.DictSimple {
		return ErrDefaultStateDict
	}
	entry, ok := tracker.Data.Get(vm.Int(contract))
	if !ok {
		return fmt.Errorf("%w: %s", ErrMissingStateEntry, contract.Hex())
	}

	if err := ctx.insert(IdsStateEntry, entry); err != nil {
		return err
	}
	return ctx.insert(IdsNewStateEntry, vm.Pointer(ctx.VM.AddMemorySegment()))
}

// cacheContractStorage reads the storage_read request's key through the
// execution helper, caching it for the commitment, and checks it against
// ids.value.
func cacheContractStorage(ctx *Context) error {
	o, err := ctx.oracle()
	if err != nil {
		return err
	}
	contract, err := ctx.integer(IdsContractAddress)
	if err != nil {
		return err
	}
	syscallPtr, err := ctx.ptr(IdsSyscallPtr)
	if err != nil {
		return err
	}
	keyAddr, err := syscallPtr.Add(syscall.StorageReadRequestOffset + syscall.StorageAddressOffset)
	if err != nil {
		return err
	}
	key, err := ctx.VM.GetInteger(keyAddr)
	if err != nil {
		return err
	}

	value, err := o.ReadStorage(contract, key)
	if err != nil {
		return &oserr.StorageReadError{Contract: contract, Key: key, Err: err}
	}
	actual, err := ctx.integer(IdsValue)
	if err != nil {
		return err
	}
	if !actual.Equal(value) {
		return &oserr.InconsistentStorageError{Actual: actual, Expected: value}
	}
	return nil
}

// SeedStateChanges builds the contract state changes dict the OS program
// walks: contract address to a pointer at [class_hash, storage_ptr, nonce],
// where storage_ptr is a fresh zero-default dict. It returns the dict's base.
func SeedStateChanges(v *vm.VirtualMachine, dicts *vm.DictManager, o Oracle) (vm.Relocatable, error) {
	initial := make(map[vm.MaybeRelocatable]vm.MaybeRelocatable)
	for _, contract := range o.Contracts() {
		entry, err := o.StateEntry(contract)
		if err != nil {
			return vm.Relocatable{}, err
		}
		storage := dicts.NewDefaultDict(v, vm.Int(types.Felt{}), nil)
		ptr, err := v.GenArg([]vm.MaybeRelocatable{
			vm.Int(entry.ClassHash),
			vm.Pointer(storage),
			vm.Int(entry.Nonce),
		})
		if err != nil {
			return vm.Relocatable{}, err
		}
		initial[vm.Int(contract)] = vm.Pointer(ptr)
	}
	return dicts.NewDict(v, initial), nil
}
