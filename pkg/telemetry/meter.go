package telemetry

import (
	"errors"
	"maps"
	"sync"
	"sync/atomic"
)

// ErrStepBudgetExceeded is returned once syscalls consumed more steps than
// the meter's budget.
var ErrStepBudgetExceeded = errors.New("syscall step budget exceeded")

// Usage aggregates the cost of a group of syscalls.
type Usage struct {
	Calls    uint64
	Steps    uint64
	Builtins map[string]uint64
}

func (u *Usage) add(rec Record) {
	u.Calls++
	u.Steps += rec.Steps
	if u.Builtins == nil {
		u.Builtins = make(map[string]uint64)
	}
	for name, n := range rec.Builtins {
		u.Builtins[name] += n
	}
}

func (u Usage) clone() Usage {
	u.Builtins = maps.Clone(u.Builtins)
	return u
}

// ResourceMeter totals syscall costs per syscall name.
type ResourceMeter struct {
	mu     sync.Mutex
	byName map[string]*Usage
	total  Usage

	// steps is read without the lock by Remaining.
	steps atomic.Uint64
	limit uint64
}

// NewResourceMeter creates a meter. A zero limit disables the step budget.
func NewResourceMeter(limit uint64) *ResourceMeter {
	return &ResourceMeter{byName: make(map[string]*Usage), limit: limit}
}

// Record adds a syscall record. It reports ErrStepBudgetExceeded once the
// total crosses the budget; the record is counted regardless.
func (m *ResourceMeter) Record(rec Record) error {
	m.mu.Lock()
	name := rec.Name
	if name == "" {
		name = rec.Selector.Hex()
	}
	u, ok := m.byName[name]
	if !ok {
		u = &Usage{}
		m.byName[name] = u
	}
	u.add(rec)
	m.total.add(rec)
	m.mu.Unlock()

	steps := m.steps.Add(rec.Steps)
	if m.limit > 0 && steps > m.limit {
		return ErrStepBudgetExceeded
	}
	return nil
}

// Usage returns the totals for one syscall name.
func (m *ResourceMeter) Usage(name string) Usage {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byName[name]
	if !ok {
		return Usage{}
	}
	return u.clone()
}

// Snapshot returns the totals of every syscall name seen.
func (m *ResourceMeter) Snapshot() map[string]Usage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]Usage, len(m.byName))
	for name, u := range m.byName {
		out[name] = u.clone()
	}
	return out
}

// Total returns the totals across all syscalls.
func (m *ResourceMeter) Total() Usage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.total.clone()
}

// Remaining returns the steps left in the budget, or 0 when unlimited or
// exhausted.
func (m *ResourceMeter) Remaining() uint64 {
	steps := m.steps.Load()
	if m.limit == 0 || steps >= m.limit {
		return 0
	}
	return m.limit - steps
}

// Reset clears all totals.
func (m *ResourceMeter) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byName = make(map[string]*Usage)
	m.total = Usage{}
	m.steps.Store(0)
}
