package types

// BlockInfo is the block context served to get_block_number,
// get_block_timestamp and get_sequencer_address.
type BlockInfo struct {
	BlockNumber      uint64 `json:"block_number"`
	BlockTimestamp   uint64 `json:"block_timestamp"`
	SequencerAddress Felt   `json:"sequencer_address"`
}

// TxInfo is the transaction context served to get_tx_info and
// get_tx_signature.
//
// In memory it is laid out as the deprecated TxInfo struct:
// version, account_contract_address, max_fee, signature_len, signature,
// transaction_hash, chain_id, nonce.
type TxInfo struct {
	Version                Felt   `json:"version"`
	AccountContractAddress Felt   `json:"account_contract_address"`
	MaxFee                 Felt   `json:"max_fee"`
	Signature              []Felt `json:"signature"`
	TransactionHash        Felt   `json:"transaction_hash"`
	ChainID                Felt   `json:"chain_id"`
	Nonce                  Felt   `json:"nonce"`
}

// TxInfoSize is the number of felts in the in-memory TxInfo struct.
const TxInfoSize = 8

// CallFrame identifies the contract call currently executing.
type CallFrame struct {
	CallerAddress      Felt `json:"caller_address"`
	ContractAddress    Felt `json:"contract_address"`
	ClassHash          Felt `json:"class_hash"`
	EntryPointSelector Felt `json:"entry_point_selector"`
}

// CallResult is the precomputed outcome of one inner call (call_contract,
// library_call, delegate_call and their L1-handler variants).
type CallResult struct {
	Retdata []Felt `json:"retdata"`
}

// DeployResult is the precomputed outcome of one deploy syscall.
type DeployResult struct {
	ContractAddress    Felt   `json:"contract_address"`
	ConstructorRetdata []Felt `json:"constructor_retdata"`
}

// StateEntry is the per-contract record tracked across a block. Its contents
// are owned by the surrounding system; the bridge only moves it around.
//
// In memory it is laid out as class_hash, storage_ptr, nonce.
type StateEntry struct {
	ClassHash Felt `json:"class_hash"`
	Nonce     Felt `json:"nonce"`
}

// StateEntrySize is the number of felts in the in-memory StateEntry struct.
const StateEntrySize = 3
