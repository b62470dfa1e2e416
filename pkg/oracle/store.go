package oracle

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dgraph-io/badger/v4"
	"github.com/inconshreveable/log15"

	"github.com/fortiblox/stratus-os/internal/types"
)

// Key prefixes for the fact store.
var (
	// Key format: prefixStorage + contract (32 bytes) + key (32 bytes)
	prefixStorage = []byte{0x01}

	// Key format: prefixState + contract (32 bytes)
	prefixState = []byte{0x02}

	prefixMeta = []byte{0x03}

	// metaContext holds the JSON encoded run context: block, tx, entry call
	// and the precomputed call and deploy results.
	metaContext = append(append([]byte{}, prefixMeta...), []byte("context")...)
)

// BadgerConfig contains configuration for the fact store.
type BadgerConfig struct {
	// Path is the directory path for the database.
	Path string

	// InMemory runs the database in memory (for testing).
	InMemory bool

	// SyncWrites ensures writes are synced to disk.
	SyncWrites bool

	// Logger receives badger's own log output. Nil disables it.
	Logger log15.Logger
}

// DefaultBadgerConfig returns default configuration.
func DefaultBadgerConfig(path string) BadgerConfig {
	return BadgerConfig{
		Path:       path,
		SyncWrites: true,
	}
}

// runContext is the part of Facts that is not keyed by contract.
type runContext struct {
	Block         types.BlockInfo      `json:"block"`
	Tx            types.TxInfo         `json:"tx"`
	EntryCall     types.CallFrame      `json:"entry_call"`
	CallResults   []types.CallResult   `json:"call_results"`
	DeployResults []types.DeployResult `json:"deploy_results"`
}

// BadgerStore persists oracle facts between the system that precomputes them
// and the runs that consume them. It also serves as the StorageBackend for
// cells not preloaded into an ExecutionHelper.
type BadgerStore struct {
	db *badger.DB

	// mu serializes imports
	mu sync.Mutex

	closed atomic.Bool
}

// NewBadgerStore opens the fact store.
func NewBadgerStore(cfg BadgerConfig) (*BadgerStore, error) {
	opts := badger.DefaultOptions(cfg.Path)
	if cfg.InMemory {
		opts = opts.WithInMemory(true).WithDir("").WithValueDir("")
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites)
	if cfg.Logger != nil {
		opts = opts.WithLogger(badgerLogger{cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

func storageKey(contract, key types.Felt) []byte {
	c, k := contract.Bytes(), key.Bytes()
	out := make([]byte, 0, 1+2*types.FeltSize)
	out = append(out, prefixStorage...)
	out = append(out, c[:]...)
	return append(out, k[:]...)
}

func stateKey(contract types.Felt) []byte {
	c := contract.Bytes()
	out := make([]byte, 0, 1+types.FeltSize)
	out = append(out, prefixState...)
	return append(out, c[:]...)
}

func encodeStateEntry(e types.StateEntry) []byte {
	ch, n := e.ClassHash.Bytes(), e.Nonce.Bytes()
	out := make([]byte, 0, 2*types.FeltSize)
	out = append(out, ch[:]...)
	return append(out, n[:]...)
}

func decodeStateEntry(b []byte) (types.StateEntry, error) {
	if len(b) != 2*types.FeltSize {
		return types.StateEntry{}, fmt.Errorf("state entry: %d bytes", len(b))
	}
	ch, err := types.FeltFromBytes(b[:types.FeltSize])
	if err != nil {
		return types.StateEntry{}, err
	}
	n, err := types.FeltFromBytes(b[types.FeltSize:])
	if err != nil {
		return types.StateEntry{}, err
	}
	return types.StateEntry{ClassHash: ch, Nonce: n}, nil
}

// ReadStorage returns the stored value of a storage cell.
func (b *BadgerStore) ReadStorage(contract, key types.Felt) (types.Felt, error) {
	if b.closed.Load() {
		return types.Felt{}, ErrClosed
	}

	var value types.Felt
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(storageKey(contract, key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w: contract %s key %s", ErrStorageNotFound, contract, key)
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			value, err = types.FeltFromBytes(val)
			return err
		})
	})
	return value, err
}

// StateEntry returns the stored state entry of a contract.
func (b *BadgerStore) StateEntry(contract types.Felt) (types.StateEntry, error) {
	if b.closed.Load() {
		return types.StateEntry{}, ErrClosed
	}

	var entry types.StateEntry
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(stateKey(contract))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w: %s", ErrStateEntryNotFound, contract)
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			entry, err = decodeStateEntry(val)
			return err
		})
	})
	return entry, err
}

// Import writes a fact set. Cells and entries already present are
// overwritten; the run context is replaced.
func (b *BadgerStore) Import(facts Facts) error {
	if b.closed.Load() {
		return ErrClosed
	}
	if err := facts.Validate(); err != nil {
		return err
	}

	ctx, err := json.Marshal(runContext{
		Block:         facts.Block,
		Tx:            facts.Tx,
		EntryCall:     facts.EntryCall,
		CallResults:   facts.CallResults,
		DeployResults: facts.DeployResults,
	})
	if err != nil {
		return fmt.Errorf("encode context: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	wb := b.db.NewWriteBatch()
	defer wb.Cancel()

	for _, s := range facts.Storage {
		v := s.Value.Bytes()
		if err := wb.Set(storageKey(s.Contract, s.Key), v[:]); err != nil {
			return err
		}
	}
	for _, s := range facts.StateEntries {
		if err := wb.Set(stateKey(s.Contract), encodeStateEntry(s.Entry)); err != nil {
			return err
		}
	}
	if err := wb.Set(metaContext, ctx); err != nil {
		return err
	}
	return wb.Flush()
}

// LoadFacts reads back everything the store holds. With preloadStorage
// unset the storage cells are left out and are expected to be served
// through ReadStorage on demand.
func (b *BadgerStore) LoadFacts(preloadStorage bool) (Facts, error) {
	if b.closed.Load() {
		return Facts{}, ErrClosed
	}

	var facts Facts
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(metaContext)
		switch {
		case errors.Is(err, badger.ErrKeyNotFound):
		case err != nil:
			return err
		default:
			var ctx runContext
			if err := item.Value(func(val []byte) error { return json.Unmarshal(val, &ctx) }); err != nil {
				return fmt.Errorf("decode context: %w", err)
			}
			facts.Block = ctx.Block
			facts.Tx = ctx.Tx
			facts.EntryCall = ctx.EntryCall
			facts.CallResults = ctx.CallResults
			facts.DeployResults = ctx.DeployResults
		}

		if err := iteratePrefix(txn, prefixState, func(key, val []byte) error {
			contract, err := types.FeltFromBytes(key[1:])
			if err != nil {
				return err
			}
			entry, err := decodeStateEntry(val)
			if err != nil {
				return err
			}
			facts.StateEntries = append(facts.StateEntries, StateFact{Contract: contract, Entry: entry})
			return nil
		}); err != nil {
			return err
		}

		if !preloadStorage {
			return nil
		}
		return iteratePrefix(txn, prefixStorage, func(key, val []byte) error {
			s, err := decodeStorage(key, val)
			if err != nil {
				return err
			}
			facts.Storage = append(facts.Storage, s)
			return nil
		})
	})
	return facts, err
}

// IterateStorage calls fn for every stored cell in key order.
// Return an error from fn to stop iteration.
func (b *BadgerStore) IterateStorage(fn func(StorageFact) error) error {
	if b.closed.Load() {
		return ErrClosed
	}
	return b.db.View(func(txn *badger.Txn) error {
		return iteratePrefix(txn, prefixStorage, func(key, val []byte) error {
			s, err := decodeStorage(key, val)
			if err != nil {
				return err
			}
			return fn(s)
		})
	})
}

func decodeStorage(key, val []byte) (StorageFact, error) {
	if len(key) != 1+2*types.FeltSize {
		return StorageFact{}, fmt.Errorf("storage key: %d bytes", len(key))
	}
	contract, err := types.FeltFromBytes(key[1 : 1+types.FeltSize])
	if err != nil {
		return StorageFact{}, err
	}
	k, err := types.FeltFromBytes(key[1+types.FeltSize:])
	if err != nil {
		return StorageFact{}, err
	}
	v, err := types.FeltFromBytes(val)
	if err != nil {
		return StorageFact{}, err
	}
	return StorageFact{Contract: contract, Key: k, Value: v}, nil
}

func iteratePrefix(txn *badger.Txn, prefix []byte, fn func(key, val []byte) error) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()

	for it.Rewind(); it.Valid(); it.Next() {
		item := it.Item()
		key := item.KeyCopy(nil)
		val, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		if err := fn(key, val); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the database.
func (b *BadgerStore) Close() error {
	if b.closed.Swap(true) {
		return ErrClosed
	}
	return b.db.Close()
}

// badgerLogger routes badger's logs through log15.
type badgerLogger struct {
	log log15.Logger
}

func (l badgerLogger) Errorf(format string, args ...any) {
	l.log.Error(fmt.Sprintf(format, args...))
}

func (l badgerLogger) Warningf(format string, args ...any) {
	l.log.Warn(fmt.Sprintf(format, args...))
}

func (l badgerLogger) Infof(format string, args ...any) {
	l.log.Debug(fmt.Sprintf(format, args...))
}

func (l badgerLogger) Debugf(format string, args ...any) {
	l.log.Debug(fmt.Sprintf(format, args...))
}
