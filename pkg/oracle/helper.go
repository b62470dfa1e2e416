package oracle

import (
	"fmt"
	"slices"
	"sync"

	"github.com/inconshreveable/log15"

	"github.com/fortiblox/stratus-os/internal/types"
)

// StorageBackend serves storage values the loaded facts do not cover.
type StorageBackend interface {
	ReadStorage(contract, key types.Felt) (types.Felt, error)
}

// ContractStorage is the storage view of one contract during a run. Reads
// are cached so the later commitment computation sees every value the run
// observed; writes shadow reads.
type ContractStorage struct {
	address types.Felt
	initial map[types.Felt]types.Felt
	backend StorageBackend

	// ongoing holds every value read or written during the run.
	ongoing map[types.Felt]types.Felt
	reads   map[types.Felt]types.Felt
	writes  map[types.Felt]types.Felt
}

func newContractStorage(address types.Felt, backend StorageBackend) *ContractStorage {
	return &ContractStorage{
		address: address,
		initial: make(map[types.Felt]types.Felt),
		backend: backend,
		ongoing: make(map[types.Felt]types.Felt),
		reads:   make(map[types.Felt]types.Felt),
		writes:  make(map[types.Felt]types.Felt),
	}
}

// Address returns the contract address.
func (s *ContractStorage) Address() types.Felt {
	return s.address
}

// Read returns the current value at key and caches it.
func (s *ContractStorage) Read(key types.Felt) (types.Felt, error) {
	if v, ok := s.ongoing[key]; ok {
		return v, nil
	}
	v, ok := s.initial[key]
	if !ok {
		if s.backend == nil {
			return types.Felt{}, fmt.Errorf("%w: contract %s key %s", ErrStorageNotFound, s.address, key)
		}
		var err error
		v, err = s.backend.ReadStorage(s.address, key)
		if err != nil {
			return types.Felt{}, err
		}
	}
	s.ongoing[key] = v
	s.reads[key] = v
	return v, nil
}

// Write records a new value at key.
func (s *ContractStorage) Write(key, value types.Felt) {
	s.ongoing[key] = value
	s.writes[key] = value
}

// Reads returns the values observed by reads, sorted by key.
func (s *ContractStorage) Reads() []StorageFact {
	return s.facts(s.reads)
}

// Writes returns the values written, sorted by key.
func (s *ContractStorage) Writes() []StorageFact {
	return s.facts(s.writes)
}

func (s *ContractStorage) facts(m map[types.Felt]types.Felt) []StorageFact {
	out := make([]StorageFact, 0, len(m))
	for k, v := range m {
		out = append(out, StorageFact{Contract: s.address, Key: k, Value: v})
	}
	slices.SortFunc(out, func(a, b StorageFact) int { return a.Key.Cmp(b.Key) })
	return out
}

// ExecutionHelper is the in-memory oracle for one run. It is safe for
// concurrent use, though a run drives it from a single goroutine.
type ExecutionHelper struct {
	mu sync.Mutex

	block types.BlockInfo
	tx    types.TxInfo

	callStack []types.CallFrame

	storageByAddress map[types.Felt]*ContractStorage
	stateEntries     map[types.Felt]types.StateEntry
	backend          StorageBackend

	callResults   []types.CallResult
	callCursor    int
	deployResults []types.DeployResult
	deployCursor  int

	log log15.Logger
}

// NewExecutionHelper loads facts into a fresh helper. backend may be nil, in
// which case storage outside facts is a miss. The entry call is pushed on the
// call stack.
func NewExecutionHelper(facts Facts, backend StorageBackend, logger log15.Logger) (*ExecutionHelper, error) {
	if err := facts.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log15.New("module", "oracle")
	}
	h := &ExecutionHelper{
		block:            facts.Block,
		tx:               facts.Tx,
		callStack:        []types.CallFrame{facts.EntryCall},
		storageByAddress: make(map[types.Felt]*ContractStorage),
		stateEntries:     make(map[types.Felt]types.StateEntry, len(facts.StateEntries)),
		backend:          backend,
		callResults:      slices.Clone(facts.CallResults),
		deployResults:    slices.Clone(facts.DeployResults),
		log:              logger,
	}
	for _, s := range facts.Storage {
		h.storageLocked(s.Contract).initial[s.Key] = s.Value
	}
	for _, s := range facts.StateEntries {
		h.stateEntries[s.Contract] = s.Entry
	}
	h.log.Debug("Oracle loaded", "storage", len(facts.Storage), "entries", len(facts.StateEntries),
		"calls", len(facts.CallResults), "deploys", len(facts.DeployResults))
	return h, nil
}

func (h *ExecutionHelper) storageLocked(contract types.Felt) *ContractStorage {
	s, ok := h.storageByAddress[contract]
	if !ok {
		s = newContractStorage(contract, h.backend)
		h.storageByAddress[contract] = s
	}
	return s
}

// StorageByAddress returns the storage view of a contract.
func (h *ExecutionHelper) StorageByAddress(contract types.Felt) *ContractStorage {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.storageLocked(contract)
}

// ReadStorage reads a storage cell and caches the observed value.
func (h *ExecutionHelper) ReadStorage(contract, key types.Felt) (types.Felt, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.storageLocked(contract).Read(key)
}

// WriteStorage records a storage write.
func (h *ExecutionHelper) WriteStorage(contract, key, value types.Felt) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.storageLocked(contract).Write(key, value)
	return nil
}

// StorageReads returns every storage value observed by reads, grouped by
// contract in address order.
func (h *ExecutionHelper) StorageReads() []StorageFact {
	return h.collect((*ContractStorage).Reads)
}

// StorageWrites returns every storage write, grouped by contract in address
// order.
func (h *ExecutionHelper) StorageWrites() []StorageFact {
	return h.collect((*ContractStorage).Writes)
}

func (h *ExecutionHelper) collect(fn func(*ContractStorage) []StorageFact) []StorageFact {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []StorageFact
	for _, addr := range sortedKeys(h.storageByAddress) {
		out = append(out, fn(h.storageByAddress[addr])...)
	}
	return out
}

// StateEntry returns the state entry of a contract.
func (h *ExecutionHelper) StateEntry(contract types.Felt) (types.StateEntry, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	e, ok := h.stateEntries[contract]
	if !ok {
		return types.StateEntry{}, fmt.Errorf("%w: %s", ErrStateEntryNotFound, contract)
	}
	return e, nil
}

// Contracts returns the addresses with a known state entry, in order.
func (h *ExecutionHelper) Contracts() []types.Felt {
	h.mu.Lock()
	defer h.mu.Unlock()
	return sortedKeys(h.stateEntries)
}

// BlockInfo returns the block context.
func (h *ExecutionHelper) BlockInfo() types.BlockInfo {
	return h.block
}

// TxInfo returns the transaction context.
func (h *ExecutionHelper) TxInfo() types.TxInfo {
	return h.tx
}

// EnterCall pushes an inner call frame.
func (h *ExecutionHelper) EnterCall(frame types.CallFrame) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.callStack = append(h.callStack, frame)
}

// ExitCall pops the innermost call frame.
func (h *ExecutionHelper) ExitCall() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.callStack) == 0 {
		return ErrNoActiveCall
	}
	h.callStack = h.callStack[:len(h.callStack)-1]
	return nil
}

// CurrentCall returns the innermost call frame.
func (h *ExecutionHelper) CurrentCall() (types.CallFrame, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.callStack) == 0 {
		return types.CallFrame{}, ErrNoActiveCall
	}
	return h.callStack[len(h.callStack)-1], nil
}

// NextCallResult returns the next precomputed inner call result.
func (h *ExecutionHelper) NextCallResult() (types.CallResult, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.callCursor >= len(h.callResults) {
		return types.CallResult{}, fmt.Errorf("%w: %d consumed", ErrCallResultsExhausted, h.callCursor)
	}
	r := h.callResults[h.callCursor]
	h.callCursor++
	return r, nil
}

// NextDeployResult returns the next precomputed deploy result.
func (h *ExecutionHelper) NextDeployResult() (types.DeployResult, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.deployCursor >= len(h.deployResults) {
		return types.DeployResult{}, fmt.Errorf("%w: %d consumed", ErrDeployResultsExhausted, h.deployCursor)
	}
	r := h.deployResults[h.deployCursor]
	h.deployCursor++
	return r, nil
}

// Exhausted reports whether every precomputed call and deploy result was
// consumed.
func (h *ExecutionHelper) Exhausted() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.callCursor == len(h.callResults) && h.deployCursor == len(h.deployResults)
}

func sortedKeys[V any](m map[types.Felt]V) []types.Felt {
	keys := make([]types.Felt, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, types.Felt.Cmp)
	return keys
}
