// Package syscall implements the deprecated-ABI syscall handler of the OS
// program.
//
// The proven program serializes every syscall into a dedicated syscall
// segment: a fixed-layout request, immediately followed by room for the
// response. The handler reads the request at the current syscall pointer,
// answers it from the oracle, writes the response into VM memory and
// advances the pointer past the request/response pair.
//
// Inner calls are answered from precomputed results. The callee runs later as
// its own invocation: the next SetSyscallPtr enters the callee's frame and
// ExitCall returns to the caller once its response has been checked.
package syscall

import (
	"fmt"

	"github.com/inconshreveable/log15"

	"github.com/fortiblox/stratus-os/internal/types"
	"github.com/fortiblox/stratus-os/pkg/oserr"
	"github.com/fortiblox/stratus-os/pkg/vm"
)

// Handler errors.
var (
	ErrUnexpectedSyscallPtr = fmt.Errorf("%w: syscall pointer does not match handler", oserr.ErrBadAddress)
	ErrSelectorMismatch     = fmt.Errorf("%w: syscall selector mismatch", oserr.ErrInconsistency)
	ErrSizeTooLarge         = fmt.Errorf("%w: array size too large", oserr.ErrBadAddress)
	ErrNoInnerCall          = fmt.Errorf("%w: no inner call in progress", oserr.ErrInvariantViolation)
)

// Oracle answers the queries syscalls make. Lookup failures must wrap
// oserr.ErrOracleMiss.
type Oracle interface {
	ReadStorage(contract, key types.Felt) (types.Felt, error)
	WriteStorage(contract, key, value types.Felt) error
	StateEntry(contract types.Felt) (types.StateEntry, error)
	BlockInfo() types.BlockInfo
	TxInfo() types.TxInfo
	CurrentCall() (types.CallFrame, error)
	EnterCall(frame types.CallFrame)
	ExitCall() error
	NextCallResult() (types.CallResult, error)
	NextDeployResult() (types.DeployResult, error)
}

// Event is an event emitted by emit_event.
type Event struct {
	FromAddress types.Felt
	Keys        []types.Felt
	Data        []types.Felt
}

// Message is an L2 to L1 message sent by send_message_to_l1.
type Message struct {
	FromAddress types.Felt
	ToAddress   types.Felt
	Payload     []types.Felt
}

// ClassReplacement is a replace_class request.
type ClassReplacement struct {
	Contract  types.Felt
	ClassHash types.Felt
}

// Handler is the active syscall handler of a run. It is not safe for
// concurrent use; hints run sequentially.
type Handler struct {
	oracle Oracle
	log    log15.Logger

	inv invocation

	// pending holds the callee frames of answered inner calls, in call
	// order, until their invocations start.
	pending []types.CallFrame

	// callers holds the suspended invocations of entered inner calls.
	callers []invocation

	counts   [numKinds]uint64
	events   []Event
	messages []Message
	replaced []ClassReplacement
}

// invocation is the per-invocation state of the handler.
type invocation struct {
	// syscallPtr is nil until SetSyscallPtr.
	syscallPtr *vm.Relocatable

	// txInfoPtr is the tx-info segment, created on first use.
	txInfoPtr *vm.Relocatable
}

// NewHandler creates a handler answering from oracle.
func NewHandler(oracle Oracle, logger log15.Logger) *Handler {
	if logger == nil {
		logger = log15.New("module", "syscall")
	}
	return &Handler{oracle: oracle, log: logger}
}

// SetSyscallPtr starts a new contract invocation at ptr. When an answered
// inner call is waiting, the invocation is that call: the caller's state is
// suspended and the callee's frame entered. Otherwise it replaces the
// current invocation.
func (h *Handler) SetSyscallPtr(ptr vm.Relocatable) {
	if len(h.pending) > 0 {
		frame := h.pending[0]
		h.pending = h.pending[1:]
		h.callers = append(h.callers, h.inv)
		h.oracle.EnterCall(frame)
		h.log.Debug("Inner call entered", "contract", frame.ContractAddress.Hex(), "depth", len(h.callers))
	}
	h.inv = invocation{syscallPtr: &ptr}
	h.log.Debug("Syscall pointer set", "ptr", ptr)
}

// ExitCall ends the innermost inner call and resumes its caller where it
// left off.
func (h *Handler) ExitCall() error {
	if len(h.callers) == 0 {
		return ErrNoInnerCall
	}
	if err := h.oracle.ExitCall(); err != nil {
		return err
	}
	h.inv = h.callers[len(h.callers)-1]
	h.callers = h.callers[:len(h.callers)-1]
	h.log.Debug("Inner call exited", "depth", len(h.callers))
	return nil
}

// Depth returns the number of entered inner calls.
func (h *Handler) Depth() int { return len(h.callers) }

// Pending returns the number of answered inner calls not yet entered.
func (h *Handler) Pending() int { return len(h.pending) }

// SyscallPtr returns the current syscall pointer, if set.
func (h *Handler) SyscallPtr() (vm.Relocatable, bool) {
	if h.inv.syscallPtr == nil {
		return vm.Relocatable{}, false
	}
	return *h.inv.syscallPtr, true
}

// Count returns how many syscalls of kind k completed.
func (h *Handler) Count(k Kind) uint64 {
	if k >= numKinds {
		return 0
	}
	return h.counts[k]
}

// Events returns the events emitted so far.
func (h *Handler) Events() []Event { return h.events }

// Messages returns the L1 messages sent so far.
func (h *Handler) Messages() []Message { return h.messages }

// Replacements returns the class replacements requested so far.
func (h *Handler) Replacements() []ClassReplacement { return h.replaced }

// begin checks the pointer and the request selector. Syscalls of an
// invocation are contiguous: each must start where the previous one ended,
// from the pointer SetSyscallPtr installed. Before any SetSyscallPtr the
// pointer is not checked.
func (h *Handler) begin(k Kind, ptr vm.Relocatable, mem vm.MemoryReader) error {
	if want := h.inv.syscallPtr; want != nil && *want != ptr {
		return fmt.Errorf("%s: %w: got %s, expected %s", k, ErrUnexpectedSyscallPtr, ptr, *want)
	}
	sel, err := mem.GetInteger(ptr)
	if err != nil {
		return fmt.Errorf("%s: read selector: %w", k, err)
	}
	if want := k.Layout().Selector; !sel.Equal(want) {
		return fmt.Errorf("%s: %w: got %s, expected %s", k, ErrSelectorMismatch, sel.Hex(), want.Hex())
	}
	return nil
}

// end advances the syscall pointer past the request/response pair.
func (h *Handler) end(k Kind, ptr vm.Relocatable) error {
	next, err := ptr.Add(k.Layout().Size())
	if err != nil {
		return fmt.Errorf("%s: %w", k, err)
	}
	h.inv.syscallPtr = &next
	h.counts[k]++
	h.log.Debug("Syscall", "kind", k, "ptr", ptr, "next", next)
	return nil
}

// response returns the address of the response struct.
func response(k Kind, ptr vm.Relocatable) (vm.Relocatable, error) {
	return ptr.Add(k.Layout().RequestSize)
}

func readFelt(mem vm.MemoryReader, ptr vm.Relocatable, offset uint64) (types.Felt, error) {
	addr, err := ptr.Add(offset)
	if err != nil {
		return types.Felt{}, err
	}
	return mem.GetInteger(addr)
}

// readArray reads a (size, pointer) pair of request fields and the array
// they describe.
func readArray(mem vm.MemoryReader, ptr vm.Relocatable, sizeOffset, ptrOffset uint64) ([]types.Felt, error) {
	sizeFelt, err := readFelt(mem, ptr, sizeOffset)
	if err != nil {
		return nil, err
	}
	size, err := sizeFelt.Uint64()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", oserr.ErrBadAddress, err)
	}
	if size > vm.MaxRangeSize {
		return nil, fmt.Errorf("%w: %d", ErrSizeTooLarge, size)
	}
	addr, err := ptr.Add(ptrOffset)
	if err != nil {
		return nil, err
	}
	base, err := mem.GetRelocatable(addr)
	if err != nil {
		return nil, err
	}
	out := make([]types.Felt, size)
	for i := range out {
		cell, err := base.Add(uint64(i))
		if err != nil {
			return nil, err
		}
		if out[i], err = mem.GetInteger(cell); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// writeResponse writes values at the response struct of the syscall.
func writeResponse(v *vm.VirtualMachine, k Kind, ptr vm.Relocatable, values ...vm.MaybeRelocatable) error {
	addr, err := response(k, ptr)
	if err != nil {
		return err
	}
	_, err = v.Memory().LoadData(addr, values)
	return err
}

func (h *Handler) currentContract() (types.Felt, error) {
	call, err := h.oracle.CurrentCall()
	if err != nil {
		return types.Felt{}, err
	}
	return call.ContractAddress, nil
}

// CallContract serves call_contract.
func (h *Handler) CallContract(ptr vm.Relocatable, v *vm.VirtualMachine) error {
	return h.callContract(CallContract, ptr, v)
}

// DelegateCall serves delegate_call.
func (h *Handler) DelegateCall(ptr vm.Relocatable, v *vm.VirtualMachine) error {
	return h.callContract(DelegateCall, ptr, v)
}

// DelegateL1Handler serves delegate_l1_handler.
func (h *Handler) DelegateL1Handler(ptr vm.Relocatable, v *vm.VirtualMachine) error {
	return h.callContract(DelegateL1Handler, ptr, v)
}

// LibraryCall serves library_call.
func (h *Handler) LibraryCall(ptr vm.Relocatable, v *vm.VirtualMachine) error {
	return h.callContract(LibraryCall, ptr, v)
}

// LibraryCallL1Handler serves library_call_l1_handler.
func (h *Handler) LibraryCallL1Handler(ptr vm.Relocatable, v *vm.VirtualMachine) error {
	return h.callContract(LibraryCallL1Handler, ptr, v)
}

// callContract answers every call-like syscall with the next precomputed
// call result. The retdata is copied into a fresh segment.
func (h *Handler) callContract(k Kind, ptr vm.Relocatable, v *vm.VirtualMachine) error {
	if err := h.begin(k, ptr, v); err != nil {
		return err
	}
	target, err := readFelt(v, ptr, CallTargetOffset)
	if err != nil {
		return fmt.Errorf("%s: %w", k, err)
	}
	calldata, err := readArray(v, ptr, CallCalldataSizeOffset, CallCalldataOffset)
	if err != nil {
		return fmt.Errorf("%s: calldata: %w", k, err)
	}
	selector, err := readFelt(v, ptr, CallFunctionSelectorOffset)
	if err != nil {
		return fmt.Errorf("%s: %w", k, err)
	}
	callee, err := h.calleeFrame(k, target, selector)
	if err != nil {
		return fmt.Errorf("%s: %w", k, err)
	}
	result, err := h.oracle.NextCallResult()
	if err != nil {
		return fmt.Errorf("%s: %w", k, err)
	}
	retdata, err := v.GenArg(vm.Ints(result.Retdata))
	if err != nil {
		return fmt.Errorf("%s: %w", k, err)
	}
	if err := writeResponse(v, k, ptr,
		vm.Uint(uint64(len(result.Retdata))),
		vm.Pointer(retdata),
	); err != nil {
		return fmt.Errorf("%s: write response: %w", k, err)
	}
	h.pending = append(h.pending, callee)
	h.log.Debug("Inner call", "kind", k, "target", target.Hex(), "calldata", len(calldata), "retdata", len(result.Retdata))
	return h.end(k, ptr)
}

// calleeFrame returns the frame the callee of an inner call runs in.
// Library and delegate calls run in the caller's context; a call_contract
// runs as the target, called by the current contract. Class hashes of
// targets without a state entry stay zero.
func (h *Handler) calleeFrame(k Kind, target, selector types.Felt) (types.CallFrame, error) {
	cur, err := h.oracle.CurrentCall()
	if err != nil {
		return types.CallFrame{}, err
	}
	frame := types.CallFrame{
		CallerAddress:      cur.CallerAddress,
		ContractAddress:    cur.ContractAddress,
		EntryPointSelector: selector,
	}
	switch k {
	case LibraryCall, LibraryCallL1Handler:
		frame.ClassHash = target
		return frame, nil
	case CallContract:
		frame.CallerAddress = cur.ContractAddress
		frame.ContractAddress = target
	}
	if entry, err := h.oracle.StateEntry(target); err == nil {
		frame.ClassHash = entry.ClassHash
	}
	return frame, nil
}

// Deploy serves deploy.
func (h *Handler) Deploy(ptr vm.Relocatable, v *vm.VirtualMachine) error {
	if err := h.begin(Deploy, ptr, v); err != nil {
		return err
	}
	classHash, err := readFelt(v, ptr, DeployClassHashOffset)
	if err != nil {
		return fmt.Errorf("%s: %w", Deploy, err)
	}
	if _, err := readArray(v, ptr, DeployConstructorCalldataSizeOffset, DeployConstructorCalldataOffset); err != nil {
		return fmt.Errorf("%s: constructor calldata: %w", Deploy, err)
	}
	result, err := h.oracle.NextDeployResult()
	if err != nil {
		return fmt.Errorf("%s: %w", Deploy, err)
	}
	retdata, err := v.GenArg(vm.Ints(result.ConstructorRetdata))
	if err != nil {
		return fmt.Errorf("%s: %w", Deploy, err)
	}
	if err := writeResponse(v, Deploy, ptr,
		vm.Int(result.ContractAddress),
		vm.Uint(uint64(len(result.ConstructorRetdata))),
		vm.Pointer(retdata),
	); err != nil {
		return fmt.Errorf("%s: write response: %w", Deploy, err)
	}
	h.log.Debug("Deploy", "class", classHash.Hex(), "address", result.ContractAddress.Hex())
	return h.end(Deploy, ptr)
}

// EmitEvent serves emit_event.
func (h *Handler) EmitEvent(ptr vm.Relocatable, mem vm.MemoryReader) error {
	if err := h.begin(EmitEvent, ptr, mem); err != nil {
		return err
	}
	keys, err := readArray(mem, ptr, EmitEventKeysLenOffset, EmitEventKeysOffset)
	if err != nil {
		return fmt.Errorf("%s: keys: %w", EmitEvent, err)
	}
	data, err := readArray(mem, ptr, EmitEventDataLenOffset, EmitEventDataOffset)
	if err != nil {
		return fmt.Errorf("%s: data: %w", EmitEvent, err)
	}
	from, err := h.currentContract()
	if err != nil {
		return fmt.Errorf("%s: %w", EmitEvent, err)
	}
	h.events = append(h.events, Event{FromAddress: from, Keys: keys, Data: data})
	return h.end(EmitEvent, ptr)
}

// GetBlockNumber serves get_block_number.
func (h *Handler) GetBlockNumber(ptr vm.Relocatable, v *vm.VirtualMachine) error {
	return h.getValue(GetBlockNumber, ptr, v, func() (vm.MaybeRelocatable, error) {
		return vm.Uint(h.oracle.BlockInfo().BlockNumber), nil
	})
}

// GetBlockTimestamp serves get_block_timestamp.
func (h *Handler) GetBlockTimestamp(ptr vm.Relocatable, v *vm.VirtualMachine) error {
	return h.getValue(GetBlockTimestamp, ptr, v, func() (vm.MaybeRelocatable, error) {
		return vm.Uint(h.oracle.BlockInfo().BlockTimestamp), nil
	})
}

// GetSequencerAddress serves get_sequencer_address.
func (h *Handler) GetSequencerAddress(ptr vm.Relocatable, v *vm.VirtualMachine) error {
	return h.getValue(GetSequencerAddress, ptr, v, func() (vm.MaybeRelocatable, error) {
		return vm.Int(h.oracle.BlockInfo().SequencerAddress), nil
	})
}

// GetCallerAddress serves get_caller_address.
func (h *Handler) GetCallerAddress(ptr vm.Relocatable, v *vm.VirtualMachine) error {
	return h.getValue(GetCallerAddress, ptr, v, func() (vm.MaybeRelocatable, error) {
		call, err := h.oracle.CurrentCall()
		if err != nil {
			return vm.MaybeRelocatable{}, err
		}
		return vm.Int(call.CallerAddress), nil
	})
}

// GetContractAddress serves get_contract_address.
func (h *Handler) GetContractAddress(ptr vm.Relocatable, v *vm.VirtualMachine) error {
	return h.getValue(GetContractAddress, ptr, v, func() (vm.MaybeRelocatable, error) {
		addr, err := h.currentContract()
		if err != nil {
			return vm.MaybeRelocatable{}, err
		}
		return vm.Int(addr), nil
	})
}

// GetTxInfo serves get_tx_info. The response is a pointer to the tx-info
// segment, shared by every get_tx_info of the invocation.
func (h *Handler) GetTxInfo(ptr vm.Relocatable, v *vm.VirtualMachine) error {
	return h.getValue(GetTxInfo, ptr, v, func() (vm.MaybeRelocatable, error) {
		txInfo, err := h.txInfo(v)
		if err != nil {
			return vm.MaybeRelocatable{}, err
		}
		return vm.Pointer(txInfo), nil
	})
}

// GetTxSignature serves get_tx_signature from the tx-info segment.
func (h *Handler) GetTxSignature(ptr vm.Relocatable, v *vm.VirtualMachine) error {
	if err := h.begin(GetTxSignature, ptr, v); err != nil {
		return err
	}
	txInfo, err := h.txInfo(v)
	if err != nil {
		return fmt.Errorf("%s: %w", GetTxSignature, err)
	}
	size, err := readFelt(v, txInfo, TxInfoSignatureLenOffset)
	if err != nil {
		return fmt.Errorf("%s: %w", GetTxSignature, err)
	}
	sigAddr, err := txInfo.Add(TxInfoSignatureOffset)
	if err != nil {
		return fmt.Errorf("%s: %w", GetTxSignature, err)
	}
	sig, err := v.GetRelocatable(sigAddr)
	if err != nil {
		return fmt.Errorf("%s: %w", GetTxSignature, err)
	}
	if err := writeResponse(v, GetTxSignature, ptr, vm.Int(size), vm.Pointer(sig)); err != nil {
		return fmt.Errorf("%s: write response: %w", GetTxSignature, err)
	}
	return h.end(GetTxSignature, ptr)
}

// txInfo returns the tx-info segment, writing it on first use.
func (h *Handler) txInfo(v *vm.VirtualMachine) (vm.Relocatable, error) {
	if h.inv.txInfoPtr != nil {
		return *h.inv.txInfoPtr, nil
	}
	tx := h.oracle.TxInfo()
	sig, err := v.GenArg(vm.Ints(tx.Signature))
	if err != nil {
		return vm.Relocatable{}, err
	}
	fields := make([]vm.MaybeRelocatable, types.TxInfoSize)
	fields[TxInfoVersionOffset] = vm.Int(tx.Version)
	fields[TxInfoAccountContractAddressOffset] = vm.Int(tx.AccountContractAddress)
	fields[TxInfoMaxFeeOffset] = vm.Int(tx.MaxFee)
	fields[TxInfoSignatureLenOffset] = vm.Uint(uint64(len(tx.Signature)))
	fields[TxInfoSignatureOffset] = vm.Pointer(sig)
	fields[TxInfoTransactionHashOffset] = vm.Int(tx.TransactionHash)
	fields[TxInfoChainIDOffset] = vm.Int(tx.ChainID)
	fields[TxInfoNonceOffset] = vm.Int(tx.Nonce)
	base, err := v.GenArg(fields)
	if err != nil {
		return vm.Relocatable{}, err
	}
	h.inv.txInfoPtr = &base
	return base, nil
}

// getValue serves the single-felt context queries.
func (h *Handler) getValue(k Kind, ptr vm.Relocatable, v *vm.VirtualMachine, value func() (vm.MaybeRelocatable, error)) error {
	if err := h.begin(k, ptr, v); err != nil {
		return err
	}
	val, err := value()
	if err != nil {
		return fmt.Errorf("%s: %w", k, err)
	}
	if err := writeResponse(v, k, ptr, val); err != nil {
		return fmt.Errorf("%s: write response: %w", k, err)
	}
	return h.end(k, ptr)
}

// ReplaceClass serves replace_class.
func (h *Handler) ReplaceClass(ptr vm.Relocatable, mem vm.MemoryReader) error {
	if err := h.begin(ReplaceClass, ptr, mem); err != nil {
		return err
	}
	classHash, err := readFelt(mem, ptr, ReplaceClassHashOffset)
	if err != nil {
		return fmt.Errorf("%s: %w", ReplaceClass, err)
	}
	contract, err := h.currentContract()
	if err != nil {
		return fmt.Errorf("%s: %w", ReplaceClass, err)
	}
	h.replaced = append(h.replaced, ClassReplacement{Contract: contract, ClassHash: classHash})
	return h.end(ReplaceClass, ptr)
}

// SendMessageToL1 serves send_message_to_l1.
func (h *Handler) SendMessageToL1(ptr vm.Relocatable, mem vm.MemoryReader) error {
	if err := h.begin(SendMessageToL1, ptr, mem); err != nil {
		return err
	}
	to, err := readFelt(mem, ptr, SendMessageToAddressOffset)
	if err != nil {
		return fmt.Errorf("%s: %w", SendMessageToL1, err)
	}
	payload, err := readArray(mem, ptr, SendMessagePayloadSizeOffset, SendMessagePayloadOffset)
	if err != nil {
		return fmt.Errorf("%s: payload: %w", SendMessageToL1, err)
	}
	from, err := h.currentContract()
	if err != nil {
		return fmt.Errorf("%s: %w", SendMessageToL1, err)
	}
	h.messages = append(h.messages, Message{FromAddress: from, ToAddress: to, Payload: payload})
	return h.end(SendMessageToL1, ptr)
}

// StorageRead serves storage_read from the oracle. The value read is
// recorded by the oracle.
func (h *Handler) StorageRead(ptr vm.Relocatable, v *vm.VirtualMachine) error {
	if err := h.begin(StorageRead, ptr, v); err != nil {
		return err
	}
	key, err := readFelt(v, ptr, StorageReadRequestOffset+StorageAddressOffset)
	if err != nil {
		return fmt.Errorf("%s: %w", StorageRead, err)
	}
	contract, err := h.currentContract()
	if err != nil {
		return fmt.Errorf("%s: %w", StorageRead, err)
	}
	value, err := h.oracle.ReadStorage(contract, key)
	if err != nil {
		return &oserr.StorageReadError{Contract: contract, Key: key, Err: err}
	}
	if err := writeResponse(v, StorageRead, ptr, vm.Int(value)); err != nil {
		return fmt.Errorf("%s: write response: %w", StorageRead, err)
	}
	return h.end(StorageRead, ptr)
}

// StorageWrite serves storage_write by recording the write in the oracle.
func (h *Handler) StorageWrite(ptr vm.Relocatable, mem vm.MemoryReader) error {
	if err := h.begin(StorageWrite, ptr, mem); err != nil {
		return err
	}
	key, err := readFelt(mem, ptr, StorageAddressOffset)
	if err != nil {
		return fmt.Errorf("%s: %w", StorageWrite, err)
	}
	value, err := readFelt(mem, ptr, StorageWriteValueOffset)
	if err != nil {
		return fmt.Errorf("%s: %w", StorageWrite, err)
	}
	contract, err := h.currentContract()
	if err != nil {
		return fmt.Errorf("%s: %w", StorageWrite, err)
	}
	if err := h.oracle.WriteStorage(contract, key, value); err != nil {
		return fmt.Errorf("%s: %w", StorageWrite, err)
	}
	return h.end(StorageWrite, ptr)
}
