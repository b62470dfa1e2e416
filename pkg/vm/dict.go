package vm

import (
	"fmt"

	"github.com/fortiblox/stratus-os/pkg/oserr"
)

// Dictionary errors.
var (
	ErrNoDictTracker   = fmt.Errorf("%w: no dict tracker for segment", oserr.ErrBadAddress)
	ErrDictPtrMismatch = fmt.Errorf("%w: dict pointer does not match tracker", oserr.ErrBadAddress)
	ErrDictKeyMissing  = fmt.Errorf("%w: dict key not found", oserr.ErrInvariantViolation)
)

// DictKind distinguishes plain dictionaries from default-valued ones.
type DictKind uint8

const (
	DictSimple DictKind = iota
	DictDefault
)

func (k DictKind) String() string {
	if k == DictDefault {
		return "default"
	}
	return "simple"
}

// Dictionary is the host-side content of a VM dictionary.
type Dictionary struct {
	kind         DictKind
	data         map[MaybeRelocatable]MaybeRelocatable
	defaultValue MaybeRelocatable
}

// Kind returns the dictionary variant.
func (d *Dictionary) Kind() DictKind {
	return d.kind
}

// Default returns the default value of a default-valued dictionary.
func (d *Dictionary) Default() (MaybeRelocatable, bool) {
	return d.defaultValue, d.kind == DictDefault
}

// Get returns the value stored under key. A default-valued dictionary
// answers every key.
func (d *Dictionary) Get(key MaybeRelocatable) (MaybeRelocatable, bool) {
	if v, ok := d.data[key]; ok {
		return v, true
	}
	if d.kind == DictDefault {
		return d.defaultValue, true
	}
	return MaybeRelocatable{}, false
}

// Insert stores value under key.
func (d *Dictionary) Insert(key, value MaybeRelocatable) {
	d.data[key] = value
}

// Len returns the number of explicitly stored keys.
func (d *Dictionary) Len() int {
	return len(d.data)
}

// DictTracker follows one dictionary through its segment.
type DictTracker struct {
	Data       *Dictionary
	CurrentPtr Relocatable
}

// DictManager owns every dictionary of a run, keyed by segment.
type DictManager struct {
	trackers map[int]*DictTracker
}

// NewDictManager returns an empty manager.
func NewDictManager() *DictManager {
	return &DictManager{trackers: make(map[int]*DictTracker)}
}

// NewDict allocates a segment for a plain dictionary and returns its base.
func (m *DictManager) NewDict(v *VirtualMachine, initial map[MaybeRelocatable]MaybeRelocatable) Relocatable {
	return m.track(v, &Dictionary{kind: DictSimple, data: copyDict(initial)})
}

// NewDefaultDict allocates a segment for a default-valued dictionary.
func (m *DictManager) NewDefaultDict(v *VirtualMachine, defaultValue MaybeRelocatable, initial map[MaybeRelocatable]MaybeRelocatable) Relocatable {
	return m.track(v, &Dictionary{kind: DictDefault, data: copyDict(initial), defaultValue: defaultValue})
}

func (m *DictManager) track(v *VirtualMachine, d *Dictionary) Relocatable {
	base := v.AddMemorySegment()
	m.trackers[base.Segment] = &DictTracker{Data: d, CurrentPtr: base}
	return base
}

// GetTracker returns the tracker for the dictionary at ptr. ptr must be the
// tracker's current pointer.
func (m *DictManager) GetTracker(ptr Relocatable) (*DictTracker, error) {
	t, ok := m.trackers[ptr.Segment]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrNoDictTracker, ptr.Segment)
	}
	if t.CurrentPtr != ptr {
		return nil, fmt.Errorf("%w: got %s, tracker at %s", ErrDictPtrMismatch, ptr, t.CurrentPtr)
	}
	return t, nil
}

func copyDict(in map[MaybeRelocatable]MaybeRelocatable) map[MaybeRelocatable]MaybeRelocatable {
	out := make(map[MaybeRelocatable]MaybeRelocatable, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
