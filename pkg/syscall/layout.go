package syscall

import (
	"fmt"

	"github.com/fortiblox/stratus-os/internal/types"
)

// Kind identifies a deprecated-ABI syscall.
type Kind uint8

// Syscall kinds.
const (
	CallContract Kind = iota
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

	numKinds
)

// Layout describes the memory footprint of one syscall in the syscall
// segment: the request struct followed by the response struct. Sizes are in
// felts.
type Layout struct {
	Name         string
	Selector     types.Felt
	RequestSize  uint64
	ResponseSize uint64
}

// Size returns the number of felts the syscall occupies.
func (l Layout) Size() uint64 {
	return l.RequestSize + l.ResponseSize
}

var layouts = [numKinds]Layout{
	CallContract:         {"call_contract", types.CallContractSelector, 5, 2},
	DelegateCall:         {"delegate_call", types.DelegateCallSelector, 5, 2},
	DelegateL1Handler:    {"delegate_l1_handler", types.DelegateL1HandlerSelector, 5, 2},
	Deploy:               {"deploy", types.DeploySelector, 6, 3},
	EmitEvent:            {"emit_event", types.EmitEventSelector, 5, 0},
	GetBlockNumber:       {"get_block_number", types.GetBlockNumberSelector, 1, 1},
	GetBlockTimestamp:    {"get_block_timestamp", types.GetBlockTimestampSelector, 1, 1},
	GetCallerAddress:     {"get_caller_address", types.GetCallerAddressSelector, 1, 1},
	GetContractAddress:   {"get_contract_address", types.GetContractAddressSelector, 1, 1},
	GetSequencerAddress:  {"get_sequencer_address", types.GetSequencerAddressSelector, 1, 1},
	GetTxInfo:            {"get_tx_info", types.GetTxInfoSelector, 1, 1},
	GetTxSignature:       {"get_tx_signature", types.GetTxSignatureSelector, 1, 2},
	LibraryCall:          {"library_call", types.LibraryCallSelector, 5, 2},
	LibraryCallL1Handler: {"library_call_l1_handler", types.LibraryCallL1HandlerSelector, 5, 2},
	ReplaceClass:         {"replace_class", types.ReplaceClassSelector, 2, 0},
	SendMessageToL1:      {"send_message_to_l1", types.SendMessageToL1Selector, 4, 0},
	StorageRead:          {"storage_read", types.StorageReadSelector, 2, 1},
	StorageWrite:         {"storage_write", types.StorageWriteSelector, 3, 0},
}

// Layout returns the layout of k.
func (k Kind) Layout() Layout {
	if k >= numKinds {
		return Layout{}
	}
	return layouts[k]
}

func (k Kind) String() string {
	if k >= numKinds {
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
	return layouts[k].Name
}

// Kinds returns every syscall kind in declaration order.
func Kinds() []Kind {
	out := make([]Kind, numKinds)
	for i := range out {
		out[i] = Kind(i)
	}
	return out
}

// Request field offsets, relative to the syscall pointer.
const (
	SelectorOffset = 0

	// call_contract, delegate_call, delegate_l1_handler, library_call and
	// library_call_l1_handler. For library calls the second field is the
	// class hash.
	CallTargetOffset           = 1
	CallFunctionSelectorOffset = 2
	CallCalldataSizeOffset     = 3
	CallCalldataOffset         = 4

	DeployClassHashOffset               = 1
	DeploySaltOffset                    = 2
	DeployConstructorCalldataSizeOffset = 3
	DeployConstructorCalldataOffset     = 4
	DeployFromZeroOffset                = 5

	EmitEventKeysLenOffset = 1
	EmitEventKeysOffset    = 2
	EmitEventDataLenOffset = 3
	EmitEventDataOffset    = 4

	ReplaceClassHashOffset = 1

	SendMessageToAddressOffset   = 1
	SendMessagePayloadSizeOffset = 2
	SendMessagePayloadOffset     = 3

	// StorageReadRequestOffset is the offset of the request struct inside
	// the storage_read syscall struct.
	StorageReadRequestOffset = 0
	StorageAddressOffset     = 1
	StorageWriteValueOffset  = 2
)

// Response field offsets, relative to the start of the response struct.
const (
	// Deprecated call response.
	ResponseRetdataSizeOffset = 0
	ResponseRetdataOffset     = 1

	DeployResponseContractAddressOffset = 0
	DeployResponseRetdataSizeOffset     = 1
	DeployResponseRetdataOffset         = 2

	GetTxSignatureLenOffset = 0
	GetTxSignatureOffset    = 1
)

// TxInfo field offsets inside the tx-info segment.
const (
	TxInfoVersionOffset                = 0
	TxInfoAccountContractAddressOffset = 1
	TxInfoMaxFeeOffset                 = 2
	TxInfoSignatureLenOffset           = 3
	TxInfoSignatureOffset              = 4
	TxInfoTransactionHashOffset        = 5
	TxInfoChainIDOffset                = 6
	TxInfoNonceOffset                  = 7
)
