package telemetry

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/fortiblox/stratus-os/internal/types"
)

var bucketSyscalls = []byte("syscalls")

// ErrRecorderClosed is returned after Close.
var ErrRecorderClosed = errors.New("recorder closed")

// RecorderConfig configures a BoltRecorder.
type RecorderConfig struct {
	// Path is the database file.
	Path string

	// Run labels every record written by this recorder.
	Run string

	// HintSet is the fingerprint of the hint set the run dispatched with.
	HintSet string

	// NoSync skips fsync after each write.
	NoSync bool

	// ReadOnly opens the database for reading only.
	ReadOnly bool
}

// StoredRecord is a Record as persisted, tagged with its run and hint set.
type StoredRecord struct {
	Run     string
	HintSet string
	Record
}

// storedRecord is the gob form of StoredRecord.
type storedRecord struct {
	Run        string
	HintSet    string
	Seq        uint64
	Selector   string
	Name       string
	Deprecated bool
	Depth      int
	Steps      uint64
	Builtins   map[string]uint64
}

// BoltRecorder persists syscall records in a bbolt database, in the order
// they were recorded.
type BoltRecorder struct {
	db      *bolt.DB
	run     string
	hintSet string

	mu     sync.Mutex
	closed bool
}

// OpenBoltRecorder creates or opens a record store.
func OpenBoltRecorder(cfg RecorderConfig) (*BoltRecorder, error) {
	if !cfg.ReadOnly {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0755); err != nil {
			return nil, fmt.Errorf("create directory: %w", err)
		}
	}
	db, err := bolt.Open(cfg.Path, 0600, &bolt.Options{
		Timeout:  5 * time.Second,
		NoSync:   cfg.NoSync,
		ReadOnly: cfg.ReadOnly,
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if !cfg.ReadOnly {
		err = db.Update(func(tx *bolt.Tx) error {
			_, err := tx.CreateBucketIfNotExists(bucketSyscalls)
			return err
		})
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("init buckets: %w", err)
		}
	}
	return &BoltRecorder{db: db, run: cfg.Run, hintSet: cfg.HintSet}, nil
}

// Record persists one record.
func (r *BoltRecorder) Record(rec Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrRecorderClosed
	}

	var buf bytes.Buffer
	err := gob.NewEncoder(&buf).Encode(storedRecord{
		Run:        r.run,
		HintSet:    r.hintSet,
		Seq:        rec.Seq,
		Selector:   rec.Selector.Hex(),
		Name:       rec.Name,
		Deprecated: rec.Deprecated,
		Depth:      rec.Depth,
		Steps:      rec.Steps,
		Builtins:   rec.Builtins,
	})
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}

	return r.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSyscalls)
		id, err := b.NextSequence()
		if err != nil {
			return err
		}
		key := make([]byte, 8)
		binary.BigEndian.PutUint64(key, id)
		return b.Put(key, buf.Bytes())
	})
}

// Iterate calls fn for every stored record in insertion order. Return an
// error from fn to stop iteration.
func (r *BoltRecorder) Iterate(fn func(StoredRecord) error) error {
	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return ErrRecorderClosed
	}

	return r.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSyscalls)
		if b == nil {
			return nil
		}
		return b.ForEach(func(_, v []byte) error {
			var s storedRecord
			if err := gob.NewDecoder(bytes.NewReader(v)).Decode(&s); err != nil {
				return fmt.Errorf("decode record: %w", err)
			}
			sel, err := types.FeltFromHex(s.Selector)
			if err != nil {
				return fmt.Errorf("decode record: %w", err)
			}
			return fn(StoredRecord{
				Run:     s.Run,
				HintSet: s.HintSet,
				Record: Record{
					Seq:        s.Seq,
					Selector:   sel,
					Name:       s.Name,
					Deprecated: s.Deprecated,
					Depth:      s.Depth,
					Steps:      s.Steps,
					Builtins:   s.Builtins,
				},
			})
		})
	})
}

// Count returns the number of stored records.
func (r *BoltRecorder) Count() (int, error) {
	var n int
	err := r.db.View(func(tx *bolt.Tx) error {
		if b := tx.Bucket(bucketSyscalls); b != nil {
			n = b.Stats().KeyN
		}
		return nil
	})
	return n, err
}

// Close closes the database.
func (r *BoltRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrRecorderClosed
	}
	r.closed = true
	return r.db.Close()
}
