// Package hints implements the syscall hints of the Starknet OS program:
// compiling hint code to an ID and executing it against a VM and a Run.
package hints

import (
	"fmt"
	"strings"

	"github.com/zeebo/blake3"

	"github.com/fortiblox/stratus-os/pkg/oserr"
)

// ErrUnknownHint is returned by Compile for code no hint implements.
var ErrUnknownHint = oserr.ErrUnknownHint

// ID identifies a hint.
type ID uint16

const (
	CallContract ID = iota
	DelegateCall
	DelegateL1Handler
	Deploy
	EmitEvent
	GetBlockNumber
	GetBlockTimestamp
	GetCallerAddress
	GetContractAddress
	GetSequencerAddress
	GetTxInfo
	GetTxSignature
	LibraryCall
	LibraryCallL1Handler
	ReplaceClass
	SendMessageToL1
	StorageRead
	StorageWrite
	SetSyscallPtr

	EnterDeprecatedSyscall
	EnterSyscall
	ExitSyscall

	FetchStateEntry
	CacheContractStorage
	CheckSyscallResponse
	CheckNewSyscallResponse
	CheckNewDeployResponse

	ExitCallContract
	ExitDelegateCall
	ExitDelegateL1Handler
	ExitDeploy
	ExitEmitEvent
	ExitGetBlockHash
	ExitGetBlockNumber
	ExitGetBlockTimestamp
	ExitGetCallerAddress
	ExitGetContractAddress
	ExitGetExecutionInfo
	ExitGetSequencerAddress
	ExitGetTxInfo
	ExitGetTxSignature
	ExitKeccak
	ExitLibraryCall
	ExitLibraryCallL1Handler
	ExitReplaceClass
	ExitSecp256k1Add
	ExitSecp256k1GetPointFromX
	ExitSecp256k1GetXy
	ExitSecp256k1Mul
	ExitSecp256k1New
	ExitSecp256r1Add
	ExitSecp256r1GetPointFromX
	ExitSecp256r1GetXy
	ExitSecp256r1Mul
	ExitSecp256r1New
	ExitSendMessageToL1
	ExitStorageRead
	ExitStorageWrite

	numHints
)

// Func executes one hint.
type Func func(*Context) error

type hint struct {
	name string
	code string
	fn   Func
}

var table [numHints]hint

func init() {
	table = [numHints]hint{
		CallContract:         {"call_contract", CodeCallContract, callContract},
		DelegateCall:         {"delegate_call", CodeDelegateCall, delegateCall},
		DelegateL1Handler:    {"delegate_l1_handler", CodeDelegateL1Handler, delegateL1Handler},
		Deploy:               {"deploy", CodeDeploy, deploy},
		EmitEvent:            {"emit_event", CodeEmitEvent, emitEvent},
		GetBlockNumber:       {"get_block_number", CodeGetBlockNumber, getBlockNumber},
		GetBlockTimestamp:    {"get_block_timestamp", CodeGetBlockTimestamp, getBlockTimestamp},
		GetCallerAddress:     {"get_caller_address", CodeGetCallerAddress, getCallerAddress},
		GetContractAddress:   {"get_contract_address", CodeGetContractAddress, getContractAddress},
		GetSequencerAddress:  {"get_sequencer_address", CodeGetSequencerAddress, getSequencerAddress},
		GetTxInfo:            {"get_tx_info", CodeGetTxInfo, getTxInfo},
		GetTxSignature:       {"get_tx_signature", CodeGetTxSignature, getTxSignature},
		LibraryCall:          {"library_call", CodeLibraryCall, libraryCall},
		LibraryCallL1Handler: {"library_call_l1_handler", CodeLibraryCallL1Handler, libraryCallL1Handler},
		ReplaceClass:         {"replace_class", CodeReplaceClass, replaceClass},
		SendMessageToL1:      {"send_message_to_l1", CodeSendMessageToL1, sendMessageToL1},
		StorageRead:          {"storage_read", CodeStorageRead, storageRead},
		StorageWrite:         {"storage_write", CodeStorageWrite, storageWrite},
		SetSyscallPtr:        {"set_syscall_ptr", CodeSetSyscallPtr, setSyscallPtr},

		EnterDeprecatedSyscall: {"enter_deprecated_syscall", CodeEnterDeprecatedSyscall, enterDeprecatedSyscall},
		EnterSyscall:           {"enter_syscall", CodeEnterSyscall, enterSyscall},
		ExitSyscall:            {"exit_syscall", CodeExitSyscall, exitCurrentSyscall},

		FetchStateEntry:         {"fetch_state_entry", CodeFetchStateEntry, fetchStateEntry},
		CacheContractStorage:    {"cache_contract_storage", CodeCacheContractStorage, cacheContractStorage},
		CheckSyscallResponse:    {"check_syscall_response", CodeCheckSyscallResponse, checkSyscallResponse},
		CheckNewSyscallResponse: {"check_new_syscall_response", CodeCheckNewSyscallResponse, checkNewSyscallResponse},
		CheckNewDeployResponse:  {"check_new_deploy_response", CodeCheckNewDeployResponse, checkNewDeployResponse},
	}

	exits := []struct {
		id       ID
		constant string
	}{
		{ExitCallContract, "CALL_CONTRACT_SELECTOR"},
		{ExitDelegateCall, "DELEGATE_CALL_SELECTOR"},
		{ExitDelegateL1Handler, "DELEGATE_L1_HANDLER_SELECTOR"},
		{ExitDeploy, "DEPLOY_SELECTOR"},
		{ExitEmitEvent, "EMIT_EVENT_SELECTOR"},
		{ExitGetBlockHash, "GET_BLOCK_HASH_SELECTOR"},
		{ExitGetBlockNumber, "GET_BLOCK_NUMBER_SELECTOR"},
		{ExitGetBlockTimestamp, "GET_BLOCK_TIMESTAMP_SELECTOR"},
		{ExitGetCallerAddress, "GET_CALLER_ADDRESS_SELECTOR"},
		{ExitGetContractAddress, "GET_CONTRACT_ADDRESS_SELECTOR"},
		{ExitGetExecutionInfo, "GET_EXECUTION_INFO_SELECTOR"},
		{ExitGetSequencerAddress, "GET_SEQUENCER_ADDRESS_SELECTOR"},
		{ExitGetTxInfo, "GET_TX_INFO_SELECTOR"},
		{ExitGetTxSignature, "GET_TX_SIGNATURE_SELECTOR"},
		{ExitKeccak, "KECCAK_SELECTOR"},
		{ExitLibraryCall, "LIBRARY_CALL_SELECTOR"},
		{ExitLibraryCallL1Handler, "LIBRARY_CALL_L1_HANDLER_SELECTOR"},
		{ExitReplaceClass, "REPLACE_CLASS_SELECTOR"},
		{ExitSecp256k1Add, "SECP256K1_ADD_SELECTOR"},
		{ExitSecp256k1GetPointFromX, "SECP256K1_GET_POINT_FROM_X_SELECTOR"},
		{ExitSecp256k1GetXy, "SECP256K1_GET_XY_SELECTOR"},
		{ExitSecp256k1Mul, "SECP256K1_MUL_SELECTOR"},
		{ExitSecp256k1New, "SECP256K1_NEW_SELECTOR"},
		{ExitSecp256r1Add, "SECP256R1_ADD_SELECTOR"},
		{ExitSecp256r1GetPointFromX, "SECP256R1_GET_POINT_FROM_X_SELECTOR"},
		{ExitSecp256r1GetXy, "SECP256R1_GET_XY_SELECTOR"},
		{ExitSecp256r1Mul, "SECP256R1_MUL_SELECTOR"},
		{ExitSecp256r1New, "SECP256R1_NEW_SELECTOR"},
		{ExitSendMessageToL1, "SEND_MESSAGE_TO_L1_SELECTOR"},
		{ExitStorageRead, "STORAGE_READ_SELECTOR"},
		{ExitStorageWrite, "STORAGE_WRITE_SELECTOR"},
	}
	for _, e := range exits {
		table[e.id] = hint{
			name: "exit_" + lower(e.constant),
			code: exitCode(e.constant),
			fn:   exitSyscallWith(e.constant),
		}
	}
}

// lower maps "CALL_CONTRACT_SELECTOR" to "call_contract".
func lower(constant string) string {
	return strings.ToLower(strings.TrimSuffix(constant, "_SELECTOR"))
}

// String returns the hint's name.
func (id ID) String() string {
	if id >= numHints {
		return fmt.Sprintf("hint(%d)", uint16(id))
	}
	return table[id].name
}

// Code returns the hint code the ID was compiled from.
func (id ID) Code() string {
	if id >= numHints {
		return ""
	}
	return table[id].code
}

// IDs returns every hint ID in declaration order.
func IDs() []ID {
	ids := make([]ID, numHints)
	for i := range ids {
		ids[i] = ID(i)
	}
	return ids
}

// Registry maps hint code to IDs. It is immutable after construction and
// safe for concurrent use.
type Registry struct {
	byCode      map[string]ID
	fingerprint [32]byte
}

// NewRegistry indexes every hint by its code.
func NewRegistry() *Registry {
	r := &Registry{byCode: make(map[string]ID, numHints)}
	h := blake3.New()
	for i := range table {
		r.byCode[table[i].code] = ID(i)
		h.Write([]byte(table[i].code))
		h.Write([]byte{0})
	}
	copy(r.fingerprint[:], h.Sum(nil))
	return r
}

// Len returns the number of registered hints.
func (r *Registry) Len() int {
	return len(r.byCode)
}

// Fingerprint identifies the hint set: the blake3 hash of every hint code in
// ID order. Telemetry records carry it so runs of different OS builds can be
// told apart.
func (r *Registry) Fingerprint() string {
	return fmt.Sprintf("%x", r.fingerprint)
}

// Compile resolves hint code to its ID. The code must match exactly.
func (r *Registry) Compile(code string) (ID, error) {
	id, ok := r.byCode[code]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownHint, abbreviate(code))
	}
	return id, nil
}

// Execute runs a compiled hint.
func (r *Registry) Execute(id ID, ctx *Context) error {
	if id >= numHints {
		return fmt.Errorf("%w: %s", ErrUnknownHint, id)
	}
	if err := table[id].fn(ctx); err != nil {
		return fmt.Errorf("%s: %w", id, err)
	}
	return nil
}

// Run compiles and executes code in one step.
func (r *Registry) Run(code string, ctx *Context) error {
	id, err := r.Compile(code)
	if err != nil {
		return err
	}
	return r.Execute(id, ctx)
}

func abbreviate(code string) string {
	const max = 80
	if len(code) <= max {
		return code
	}
	return code[:max] + "..."
}
