package types

// Syscall selectors. Each selector is the Cairo short string of the syscall
// name, e.g. 'CallContract'.
var (
	CallContractSelector         = MustShortString("CallContract")
	DelegateCallSelector         = MustShortString("DelegateCall")
	DelegateL1HandlerSelector    = MustShortString("DelegateL1Handler")
	DeploySelector               = MustShortString("Deploy")
	EmitEventSelector            = MustShortString("EmitEvent")
	GetBlockHashSelector         = MustShortString("GetBlockHash")
	GetBlockNumberSelector       = MustShortString("GetBlockNumber")
	GetBlockTimestampSelector    = MustShortString("GetBlockTimestamp")
	GetCallerAddressSelector     = MustShortString("GetCallerAddress")
	GetContractAddressSelector   = MustShortString("GetContractAddress")
	GetExecutionInfoSelector     = MustShortString("GetExecutionInfo")
	GetSequencerAddressSelector  = MustShortString("GetSequencerAddress")
	GetTxInfoSelector            = MustShortString("GetTxInfo")
	GetTxSignatureSelector       = MustShortString("GetTxSignature")
	KeccakSelector               = MustShortString("Keccak")
	LibraryCallSelector          = MustShortString("LibraryCall")
	LibraryCallL1HandlerSelector = MustShortString("LibraryCallL1Handler")
	ReplaceClassSelector         = MustShortString("ReplaceClass")
	SendMessageToL1Selector      = MustShortString("SendMessageToL1")
	StorageReadSelector          = MustShortString("StorageRead")
	StorageWriteSelector         = MustShortString("StorageWrite")
)

// Curve syscall selectors (current ABI only).
var (
	Secp256k1AddSelector           = MustShortString("Secp256k1Add")
	Secp256k1GetPointFromXSelector = MustShortString("Secp256k1GetPointFromX")
	Secp256k1GetXySelector         = MustShortString("Secp256k1GetXy")
	Secp256k1MulSelector           = MustShortString("Secp256k1Mul")
	Secp256k1NewSelector           = MustShortString("Secp256k1New")
	Secp256r1AddSelector           = MustShortString("Secp256r1Add")
	Secp256r1GetPointFromXSelector = MustShortString("Secp256r1GetPointFromX")
	Secp256r1GetXySelector         = MustShortString("Secp256r1GetXy")
	Secp256r1MulSelector           = MustShortString("Secp256r1Mul")
	Secp256r1NewSelector           = MustShortString("Secp256r1New")
)

// selectorConstants maps the OS constant names (without the _SELECTOR
// suffix) to their selector values.
var selectorConstants = map[string]Felt{
	"CALL_CONTRACT":                CallContractSelector,
	"DELEGATE_CALL":                DelegateCallSelector,
	"DELEGATE_L1_HANDLER":          DelegateL1HandlerSelector,
	"DEPLOY":                       DeploySelector,
	"EMIT_EVENT":                   EmitEventSelector,
	"GET_BLOCK_HASH":               GetBlockHashSelector,
	"GET_BLOCK_NUMBER":             GetBlockNumberSelector,
	"GET_BLOCK_TIMESTAMP":          GetBlockTimestampSelector,
	"GET_CALLER_ADDRESS":           GetCallerAddressSelector,
	"GET_CONTRACT_ADDRESS":         GetContractAddressSelector,
	"GET_EXECUTION_INFO":           GetExecutionInfoSelector,
	"GET_SEQUENCER_ADDRESS":        GetSequencerAddressSelector,
	"GET_TX_INFO":                  GetTxInfoSelector,
	"GET_TX_SIGNATURE":             GetTxSignatureSelector,
	"KECCAK":                       KeccakSelector,
	"LIBRARY_CALL":                 LibraryCallSelector,
	"LIBRARY_CALL_L1_HANDLER":      LibraryCallL1HandlerSelector,
	"REPLACE_CLASS":                ReplaceClassSelector,
	"SEND_MESSAGE_TO_L1":           SendMessageToL1Selector,
	"STORAGE_READ":                 StorageReadSelector,
	"STORAGE_WRITE":                StorageWriteSelector,
	"SECP256K1_ADD":                Secp256k1AddSelector,
	"SECP256K1_GET_POINT_FROM_X":   Secp256k1GetPointFromXSelector,
	"SECP256K1_GET_XY":             Secp256k1GetXySelector,
	"SECP256K1_MUL":                Secp256k1MulSelector,
	"SECP256K1_NEW":                Secp256k1NewSelector,
	"SECP256R1_ADD":                Secp256r1AddSelector,
	"SECP256R1_GET_POINT_FROM_X":   Secp256r1GetPointFromXSelector,
	"SECP256R1_GET_XY":             Secp256r1GetXySelector,
	"SECP256R1_MUL":                Secp256r1MulSelector,
	"SECP256R1_NEW":                Secp256r1NewSelector,
}

// SelectorByConstant returns the selector for an OS constant name such as
// "CALL_CONTRACT_SELECTOR" or "CALL_CONTRACT".
func SelectorByConstant(name string) (Felt, bool) {
	const suffix = "_SELECTOR"
	if len(name) > len(suffix) && name[len(name)-len(suffix):] == suffix {
		name = name[:len(name)-len(suffix)]
	}
	sel, ok := selectorConstants[name]
	return sel, ok
}

// SelectorName returns the syscall name encoded in a selector, e.g.
// "CallContract". ok is false if sel is not a known selector.
func SelectorName(sel Felt) (string, bool) {
	for _, known := range selectorConstants {
		if known == sel {
			return sel.DecodeShortString()
		}
	}
	return "", false
}
