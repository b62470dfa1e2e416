package hints

import (
	"errors"
	"testing"

	"github.com/inconshreveable/log15"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortiblox/stratus-os/internal/types"
	"github.com/fortiblox/stratus-os/pkg/oracle"
	"github.com/fortiblox/stratus-os/pkg/oserr"
	"github.com/fortiblox/stratus-os/pkg/syscall"
	"github.com/fortiblox/stratus-os/pkg/telemetry"
	"github.com/fortiblox/stratus-os/pkg/vm"
)

func felt(v uint64) types.Felt { return types.FeltFromUint64(v) }

var (
	caller    = felt(0x111)
	contract  = felt(0x222)
	contract2 = felt(0x333)
)

type fixture struct {
	reg    *Registry
	v      *vm.VirtualMachine
	helper *oracle.ExecutionHelper
	run    *Run
	meter  *telemetry.ResourceMeter
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	helper, err := oracle.NewExecutionHelper(oracle.Facts{
		EntryCall: types.CallFrame{CallerAddress: caller, ContractAddress: contract},
		Storage:   []oracle.StorageFact{{Contract: contract, Key: felt(5), Value: felt(42)}},
		StateEntries: []oracle.StateFact{
			{Contract: contract, Entry: types.StateEntry{ClassHash: felt(0xc1), Nonce: felt(3)}},
			{Contract: contract2, Entry: types.StateEntry{ClassHash: felt(0xc2), Nonce: felt(9)}},
		},
		CallResults: []types.CallResult{{Retdata: []types.Felt{felt(1), felt(2)}}},
	}, nil, nil)
	require.NoError(t, err)

	v := vm.NewVirtualMachine()
	v.AddMemorySegment()
	v.AddMemorySegment()

	meter := telemetry.NewResourceMeter(0)
	logger := log15.New()
	logger.SetHandler(log15.DiscardHandler())
	return &fixture{
		reg:    NewRegistry(),
		v:      v,
		helper: helper,
		meter:  meter,
		run: &Run{
			Syscalls:  syscall.NewHandler(helper, logger),
			Oracle:    helper,
			Dicts:     vm.NewDictManager(),
			Telemetry: telemetry.NewOSLogger(telemetry.WithSink(meter)),
			Log:       logger,
		},
	}
}

// ctx binds each name to [fp + i] in the order given.
func (f *fixture) ctx(names ...string) *Context {
	ids := make(vm.IdsData, len(names))
	for i, name := range names {
		ids[name] = vm.NewSimpleReference(i)
	}
	return &Context{VM: f.v, Scopes: vm.NewExecutionScopes(), Ids: ids, Run: f.run}
}

// set writes value at [fp + offset].
func (f *fixture) set(t *testing.T, offset uint64, value vm.MaybeRelocatable) {
	t.Helper()
	addr, err := f.v.FP().Add(offset)
	require.NoError(t, err)
	require.NoError(t, f.v.Insert(addr, value))
}

func (f *fixture) get(t *testing.T, offset uint64) vm.MaybeRelocatable {
	t.Helper()
	addr, err := f.v.FP().Add(offset)
	require.NoError(t, err)
	v, ok := f.v.Get(addr)
	require.True(t, ok, "no value at fp+%d", offset)
	return v
}

func (f *fixture) segment(t *testing.T, values ...vm.MaybeRelocatable) vm.Relocatable {
	t.Helper()
	ptr, err := f.v.GenArg(values)
	require.NoError(t, err)
	return ptr
}

func TestRegistryCompile(t *testing.T) {
	r := NewRegistry()
	assert.Equal(t, int(numHints), r.Len(), "hint codes are distinct")

	names := make(map[string]bool)
	for _, id := range IDs() {
		got, err := r.Compile(id.Code())
		require.NoError(t, err, id.String())
		assert.Equal(t, id, got)
		assert.False(t, names[id.String()], "duplicate name %s", id)
		names[id.String()] = true
	}

	got, err := r.Compile("exit_syscall(selector=ids.STORAGE_READ_SELECTOR)")
	require.NoError(t, err)
	assert.Equal(t, ExitStorageRead, got)
	assert.Equal(t, "exit_storage_read", got.String())

	for _, code := range []string{
		"",
		CodeCallContract + "\n",
		" " + CodeCallContract,
		"syscall_handler.keccak(segments=segments, syscall_ptr=ids.syscall_ptr)",
	} {
		_, err := r.Compile(code)
		assert.ErrorIs(t, err, ErrUnknownHint)
		assert.Equal(t, oserr.ErrUnknownHint, oserr.Kind(err))
	}

	assert.ErrorIs(t, r.Execute(numHints, &Context{}), ErrUnknownHint)
}

func TestSetSyscallPtr(t *testing.T) {
	f := newFixture(t)
	f.v.SetFP(2)
	ctx := &Context{
		VM: f.v,
		Ids: vm.IdsData{
			IdsOsContext:  vm.NewSimpleReference(-2),
			IdsSyscallPtr: vm.NewSimpleReference(-1),
		},
		Run: f.run,
	}

	require.NoError(t, f.reg.Run(CodeSetSyscallPtr, ctx))

	osContext, err := f.v.GetRelocatable(vm.NewRelocatable(1, 0))
	require.NoError(t, err)
	assert.Equal(t, vm.NewRelocatable(2, 0), osContext)
	syscallPtr, err := f.v.GetRelocatable(vm.NewRelocatable(1, 1))
	require.NoError(t, err)
	assert.Equal(t, vm.NewRelocatable(3, 0), syscallPtr)

	got, ok := f.run.Syscalls.SyscallPtr()
	require.True(t, ok)
	assert.Equal(t, syscallPtr, got)
}

func TestSyscallHintsDelegate(t *testing.T) {
	f := newFixture(t)
	f.v.SetFP(10)

	ctx := f.ctx(IdsOsContext, IdsSyscallPtr)
	require.NoError(t, f.reg.Run(CodeSetSyscallPtr, ctx))
	ptr, _ := f.run.Syscalls.SyscallPtr()

	layout := syscall.StorageRead.Layout()
	_, err := f.v.Memory().LoadData(ptr, []vm.MaybeRelocatable{vm.Int(layout.Selector), vm.Uint(5)})
	require.NoError(t, err)
	require.NoError(t, f.reg.Run(CodeStorageRead, ctx))

	value, err := f.v.GetInteger(vm.NewRelocatable(ptr.Segment, layout.RequestSize))
	require.NoError(t, err)
	assert.Equal(t, felt(42), value)

	next, _ := f.run.Syscalls.SyscallPtr()
	assert.Equal(t, vm.NewRelocatable(ptr.Segment, layout.Size()), next)

	// The program advances ids.syscall_ptr; the next hint site sees the new cell.
	f.set(t, 2, vm.Pointer(next))
	ctx2 := &Context{VM: f.v, Ids: vm.IdsData{IdsSyscallPtr: vm.NewSimpleReference(2)}, Run: f.run}
	layout = syscall.GetCallerAddress.Layout()
	_, err = f.v.Memory().LoadData(next, []vm.MaybeRelocatable{vm.Int(layout.Selector)})
	require.NoError(t, err)
	require.NoError(t, f.reg.Run(CodeGetCallerAddress, ctx2))

	got, err := f.v.GetInteger(vm.NewRelocatable(next.Segment, next.Offset+layout.RequestSize))
	require.NoError(t, err)
	assert.Equal(t, caller, got)
	assert.Equal(t, uint64(1), f.run.Syscalls.Count(syscall.StorageRead))
	assert.Equal(t, uint64(1), f.run.Syscalls.Count(syscall.GetCallerAddress))
}

func TestSyscallHintWithoutHandler(t *testing.T) {
	f := newFixture(t)
	ctx := f.ctx(IdsSyscallPtr)
	ctx.Run = &Run{}

	err := f.reg.Run(CodeEmitEvent, ctx)
	assert.ErrorIs(t, err, ErrNoSyscallHandler)
	assert.Equal(t, oserr.ErrInvariantViolation, oserr.Kind(err))
}

func TestSeedStateChanges(t *testing.T) {
	f := newFixture(t)
	dictPtr, err := SeedStateChanges(f.v, f.run.Dicts, f.helper)
	require.NoError(t, err)

	tracker, err := f.run.Dicts.GetTracker(dictPtr)
	require.NoError(t, err)
	assert.Equal(t, vm.DictSimple, tracker.Data.Kind())
	assert.Equal(t, 2, tracker.Data.Len())

	storageSegments := make(map[int]bool)
	for _, c := range []types.Felt{contract, contract2} {
		entry, ok := tracker.Data.Get(vm.Int(c))
		require.True(t, ok)
		ptr, ok := entry.Relocatable()
		require.True(t, ok)
		storage, err := f.v.GetRelocatable(vm.NewRelocatable(ptr.Segment, 1))
		require.NoError(t, err)
		storageSegments[storage.Segment] = true

		storageTracker, err := f.run.Dicts.GetTracker(storage)
		require.NoError(t, err)
		assert.Equal(t, vm.DictDefault, storageTracker.Data.Kind())
	}
	assert.Len(t, storageSegments, 2, "each contract gets its own storage dict")
}

func TestFetchStateEntry(t *testing.T) {
	f := newFixture(t)
	dictPtr, err := SeedStateChanges(f.v, f.run.Dicts, f.helper)
	require.NoError(t, err)

	f.set(t, 0, vm.Pointer(dictPtr))
	f.set(t, 1, vm.Int(contract))
	ctx := f.ctx(IdsContractStateChanges, IdsContractAddress, IdsStateEntry, IdsNewStateEntry)

	require.NoError(t, f.reg.Run(CodeFetchStateEntry, ctx))

	entryPtr, ok := f.get(t, 2).Relocatable()
	require.True(t, ok)
	fields, err := f.v.GetRange(entryPtr, types.StateEntrySize)
	require.NoError(t, err)
	assert.Equal(t, vm.Int(felt(0xc1)), fields[0])
	assert.Equal(t, vm.Int(felt(3)), fields[2])

	newEntry, ok := f.get(t, 3).Relocatable()
	require.True(t, ok)
	assert.Equal(t, f.v.Memory().NumSegments()-1, newEntry.Segment)
	assert.Equal(t, uint64(0), newEntry.Offset)
}

func TestFetchStateEntryNeverAliases(t *testing.T) {
	f := newFixture(t)
	dictPtr, err := SeedStateChanges(f.v, f.run.Dicts, f.helper)
	require.NoError(t, err)

	newSegments := make(map[int]bool)
	for i, c := range []types.Felt{contract, contract2, contract, contract2} {
		f.v.SetFP(uint64(10 + 4*i))
		f.set(t, 0, vm.Pointer(dictPtr))
		f.set(t, 1, vm.Int(c))
		require.NoError(t, f.reg.Run(CodeFetchStateEntry, f.ctx(IdsContractStateChanges, IdsContractAddress, IdsStateEntry, IdsNewStateEntry)))

		prev, ok := f.get(t, 2).Relocatable()
		require.True(t, ok)
		next, ok := f.get(t, 3).Relocatable()
		require.True(t, ok)
		assert.NotEqual(t, prev, next)
		assert.NotEqual(t, prev.Segment, next.Segment)
		assert.False(t, newSegments[next.Segment], "new_state_entry segment %d reused", next.Segment)
		newSegments[next.Segment] = true
	}
	assert.Len(t, newSegments, 4)
}

func TestFetchStateEntryErrors(t *testing.T) {
	t.Run("default dict", func(t *testing.T) {
		f := newFixture(t)
		f.set(t, 0, vm.Pointer(f.run.Dicts.NewDefaultDict(f.v, vm.Uint(0), nil)))
		f.set(t, 1, vm.Int(contract))

		err := f.reg.Run(CodeFetchStateEntry, f.ctx(IdsContractStateChanges, IdsContractAddress, IdsStateEntry, IdsNewStateEntry))
		assert.ErrorIs(t, err, ErrDefaultStateDict)
		assert.Equal(t, oserr.ErrInvariantViolation, oserr.Kind(err))
	})

	t.Run("missing contract", func(t *testing.T) {
		f := newFixture(t)
		f.set(t, 0, vm.Pointer(f.run.Dicts.NewDict(f.v, nil)))
		f.set(t, 1, vm.Int(contract))

		err := f.reg.Run(CodeFetchStateEntry, f.ctx(IdsContractStateChanges, IdsContractAddress, IdsStateEntry, IdsNewStateEntry))
		assert.ErrorIs(t, err, ErrMissingStateEntry)
	})

	t.Run("untracked pointer", func(t *testing.T) {
		f := newFixture(t)
		f.set(t, 0, vm.Pointer(f.v.AddMemorySegment()))
		f.set(t, 1, vm.Int(contract))

		err := f.reg.Run(CodeFetchStateEntry, f.ctx(IdsContractStateChanges, IdsContractAddress, IdsStateEntry, IdsNewStateEntry))
		assert.ErrorIs(t, err, vm.ErrNoDictTracker)
		assert.Equal(t, oserr.ErrBadAddress, oserr.Kind(err))
	})
}

func storageReadRequest(t *testing.T, f *fixture, key uint64) vm.Relocatable {
	return f.segment(t, vm.Int(syscall.StorageRead.Layout().Selector), vm.Uint(key))
}

func TestCacheContractStorage(t *testing.T) {
	f := newFixture(t)
	f.set(t, 0, vm.Pointer(storageReadRequest(t, f, 5)))
	f.set(t, 1, vm.Int(contract))
	f.set(t, 2, vm.Uint(42))
	ctx := f.ctx(IdsSyscallPtr, IdsContractAddress, IdsValue)

	require.NoError(t, f.reg.Run(CodeCacheContractStorage, ctx))
	require.NoError(t, f.reg.Run(CodeCacheContractStorage, ctx))

	assert.Equal(t, []oracle.StorageFact{{Contract: contract, Key: felt(5), Value: felt(42)}}, f.helper.StorageReads())
}

func TestCacheContractStorageInconsistent(t *testing.T) {
	f := newFixture(t)
	f.set(t, 0, vm.Pointer(storageReadRequest(t, f, 5)))
	f.set(t, 1, vm.Int(contract))
	f.set(t, 2, vm.Uint(7))

	err := f.reg.Run(CodeCacheContractStorage, f.ctx(IdsSyscallPtr, IdsContractAddress, IdsValue))
	var inconsistent *oserr.InconsistentStorageError
	require.ErrorAs(t, err, &inconsistent)
	assert.Equal(t, felt(7), inconsistent.Actual)
	assert.Equal(t, felt(42), inconsistent.Expected)
	assert.Contains(t, err.Error(), "7 <> 42")
	assert.Equal(t, oserr.ErrInconsistency, oserr.Kind(err))
}

func TestCacheContractStorageMiss(t *testing.T) {
	f := newFixture(t)
	f.set(t, 0, vm.Pointer(storageReadRequest(t, f, 99)))
	f.set(t, 1, vm.Int(contract))
	f.set(t, 2, vm.Uint(0))

	err := f.reg.Run(CodeCacheContractStorage, f.ctx(IdsSyscallPtr, IdsContractAddress, IdsValue))
	var readErr *oserr.StorageReadError
	require.ErrorAs(t, err, &readErr)
	assert.Equal(t, felt(99), readErr.Key)
	assert.ErrorIs(t, err, oracle.ErrStorageNotFound)
	assert.Equal(t, oserr.ErrOracleMiss, oserr.Kind(err))
}

func TestCheckSyscallResponse(t *testing.T) {
	tests := []struct {
		name   string
		actual []vm.MaybeRelocatable
		size   uint64
		ok     bool
	}{
		{"equal", []vm.MaybeRelocatable{vm.Uint(1), vm.Uint(2), vm.Uint(3)}, 3, true},
		{"differs", []vm.MaybeRelocatable{vm.Uint(1), vm.Uint(2), vm.Uint(4)}, 3, false},
		{"shorter", []vm.MaybeRelocatable{vm.Uint(1), vm.Uint(2)}, 2, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			expected := f.segment(t, vm.Uint(1), vm.Uint(2), vm.Uint(3))
			resp := f.segment(t, vm.Uint(3), vm.Pointer(expected))
			f.set(t, 0, vm.Pointer(resp))
			f.set(t, 1, vm.Pointer(f.segment(t, tt.actual...)))
			f.set(t, 2, vm.Uint(tt.size))

			err := f.reg.Run(CodeCheckSyscallResponse, f.ctx(IdsCallResponse, IdsRetdata, IdsRetdataSize))
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			var mismatch *oserr.ReturnValueMismatchError
			require.ErrorAs(t, err, &mismatch)
			assert.Contains(t, err.Error(), "expected=[1, 2, 3]")
			assert.Equal(t, oserr.ErrInconsistency, oserr.Kind(err))
		})
	}
}

func TestCheckSyscallResponseMessage(t *testing.T) {
	f := newFixture(t)
	expected := f.segment(t, vm.Uint(1), vm.Uint(2), vm.Uint(3))
	f.set(t, 0, vm.Pointer(f.segment(t, vm.Uint(3), vm.Pointer(expected))))
	f.set(t, 1, vm.Pointer(f.segment(t, vm.Uint(1), vm.Uint(2), vm.Uint(4))))
	f.set(t, 2, vm.Uint(3))

	err := f.reg.Run(CodeCheckSyscallResponse, f.ctx(IdsCallResponse, IdsRetdata, IdsRetdataSize))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "return value mismatch expected=[1, 2, 3], actual=[1, 2, 4]")
}

func TestResponseEnvelopesAgree(t *testing.T) {
	f := newFixture(t)
	data := f.segment(t, vm.Uint(8), vm.Uint(9))
	end, err := data.Add(2)
	require.NoError(t, err)
	actual := f.segment(t, vm.Uint(8), vm.Uint(9))

	legacyPtr := f.segment(t, vm.Uint(2), vm.Pointer(data))
	rangedPtr := f.segment(t, vm.Pointer(data), vm.Pointer(end))
	deployPtr := f.segment(t, vm.Uint(0xd0), vm.Pointer(data), vm.Pointer(end))

	legacy, err := ReadLegacyResponse(f.v, legacyPtr)
	require.NoError(t, err)
	ranged, err := ReadRangedResponse(f.v, rangedPtr)
	require.NoError(t, err)
	deployed, err := ReadDeployRangedResponse(f.v, deployPtr)
	require.NoError(t, err)
	assert.Equal(t, felt(0xd0), deployed.ContractAddress)

	for _, env := range []ResponseEnvelope{legacy, ranged, deployed} {
		start, n, err := env.Span()
		require.NoError(t, err)
		assert.Equal(t, data, start)
		assert.Equal(t, uint64(2), n)
		assert.NoError(t, VerifyResponse(f.v, env, actual, 2))
	}

	// The same envelopes through their hints.
	f.set(t, 0, vm.Pointer(rangedPtr))
	f.set(t, 1, vm.Pointer(actual))
	f.set(t, 2, vm.Uint(2))
	assert.NoError(t, f.reg.Run(CodeCheckNewSyscallResponse, f.ctx(IdsResponse, IdsRetdata, IdsRetdataSize)))

	f.v.SetFP(20)
	f.set(t, 0, vm.Pointer(deployPtr))
	f.set(t, 1, vm.Pointer(actual))
	f.set(t, 2, vm.Uint(2))
	assert.NoError(t, f.reg.Run(CodeCheckNewDeployResponse, f.ctx(IdsResponse, IdsRetdata, IdsRetdataSize)))
}

func TestResponseEnvelopesAgreeOnMismatch(t *testing.T) {
	f := newFixture(t)
	data := f.segment(t, vm.Uint(8), vm.Uint(9))
	end, err := data.Add(2)
	require.NoError(t, err)
	actual := f.segment(t, vm.Uint(8), vm.Uint(10))

	tests := []struct {
		name string
		code string
		ids  []string
		resp vm.Relocatable
	}{
		{"legacy", CodeCheckSyscallResponse, []string{IdsCallResponse, IdsRetdata, IdsRetdataSize}, f.segment(t, vm.Uint(2), vm.Pointer(data))},
		{"ranged", CodeCheckNewSyscallResponse, []string{IdsResponse, IdsRetdata, IdsRetdataSize}, f.segment(t, vm.Pointer(data), vm.Pointer(end))},
		{"deploy", CodeCheckNewDeployResponse, []string{IdsResponse, IdsRetdata, IdsRetdataSize}, f.segment(t, vm.Uint(0xd0), vm.Pointer(data), vm.Pointer(end))},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f.v.SetFP(uint64(10 + 3*i))
			f.set(t, 0, vm.Pointer(tt.resp))
			f.set(t, 1, vm.Pointer(actual))
			f.set(t, 2, vm.Uint(2))

			err := f.reg.Run(tt.code, f.ctx(tt.ids...))
			var mismatch *oserr.ReturnValueMismatchError
			require.ErrorAs(t, err, &mismatch)
			assert.Equal(t, []string{"8", "9"}, mismatch.Expected)
			assert.Equal(t, []string{"8", "10"}, mismatch.Actual)
			assert.Equal(t, oserr.ErrInconsistency, oserr.Kind(err))
		})
	}
}

func TestInnerCallThroughHints(t *testing.T) {
	f := newFixture(t)

	f.v.SetFP(10)
	outer := f.ctx(IdsOsContext, IdsSyscallPtr)
	require.NoError(t, f.reg.Run(CodeSetSyscallPtr, outer))
	ptr, _ := f.run.Syscalls.SyscallPtr()

	layout := syscall.CallContract.Layout()
	_, err := f.v.Memory().LoadData(ptr, []vm.MaybeRelocatable{
		vm.Int(layout.Selector), vm.Int(contract2), vm.Uint(0xf00), vm.Uint(0), vm.Pointer(f.segment(t)),
	})
	require.NoError(t, err)
	require.NoError(t, f.reg.Run(CodeCallContract, outer))
	resumeAt, _ := f.run.Syscalls.SyscallPtr()

	// The callee's invocation.
	f.v.SetFP(20)
	require.NoError(t, f.reg.Run(CodeSetSyscallPtr, f.ctx(IdsOsContext, IdsSyscallPtr)))
	assert.Equal(t, 1, f.run.Syscalls.Depth())
	call, err := f.helper.CurrentCall()
	require.NoError(t, err)
	assert.Equal(t, contract2, call.ContractAddress)
	assert.Equal(t, contract, call.CallerAddress)
	assert.Equal(t, felt(0xc2), call.ClassHash)

	// Back in the caller, the response check closes the call.
	resp, err := ptr.Add(layout.RequestSize)
	require.NoError(t, err)
	f.v.SetFP(30)
	f.set(t, 0, vm.Pointer(resp))
	f.set(t, 1, vm.Pointer(f.segment(t, vm.Uint(1), vm.Uint(2))))
	f.set(t, 2, vm.Uint(2))
	require.NoError(t, f.reg.Run(CodeCheckSyscallResponse, f.ctx(IdsCallResponse, IdsRetdata, IdsRetdataSize)))

	assert.Equal(t, 0, f.run.Syscalls.Depth())
	call, err = f.helper.CurrentCall()
	require.NoError(t, err)
	assert.Equal(t, contract, call.ContractAddress)
	cur, _ := f.run.Syscalls.SyscallPtr()
	assert.Equal(t, resumeAt, cur)
}

func TestRangedResponseAcrossSegments(t *testing.T) {
	f := newFixture(t)
	resp := RangedResponse{Start: f.v.AddMemorySegment(), End: f.v.AddMemorySegment()}
	_, _, err := resp.Span()
	assert.ErrorIs(t, err, vm.ErrSegmentMismatch)
	assert.Equal(t, oserr.ErrBadAddress, oserr.Kind(err))
}

func TestAssertMemoryRangesEqualTooLarge(t *testing.T) {
	f := newFixture(t)
	seg := f.v.AddMemorySegment()
	err := AssertMemoryRangesEqual(f.v, seg, vm.MaxRangeSize+1, seg, 0)
	assert.ErrorIs(t, err, vm.ErrRangeTooLarge)
}

// builtinPtrs writes a BuiltinPointers struct whose i-th pointer sits at
// base + i*10 + bump*i in a shared segment.
func builtinPtrs(t *testing.T, f *fixture, seg vm.Relocatable, bump uint64) vm.Relocatable {
	cells := make([]vm.MaybeRelocatable, len(telemetry.Builtins))
	for i := range cells {
		cells[i] = vm.Pointer(vm.NewRelocatable(seg.Segment, uint64(i)*10+bump*uint64(i)))
	}
	return f.segment(t, cells...)
}

func TestTelemetryHints(t *testing.T) {
	f := newFixture(t)
	builtins := f.v.AddMemorySegment()
	rangeCheck := f.v.AddMemorySegment()

	f.v.AdvanceSteps(100)
	f.set(t, 0, vm.Int(types.CallContractSelector))
	f.set(t, 1, vm.Pointer(builtinPtrs(t, f, builtins, 0)))
	f.set(t, 2, vm.Pointer(vm.NewRelocatable(rangeCheck.Segment, 7)))
	scopes := vm.NewExecutionScopes()
	enter := f.ctx(IdsSelector, IdsBuiltinPtrs, IdsRangeCheckPtr)
	enter.Scopes = scopes
	require.NoError(t, f.reg.Run(CodeEnterDeprecatedSyscall, enter))
	assert.Equal(t, 1, f.run.Telemetry.Depth())

	f.v.AdvanceSteps(40)
	f.v.SetFP(10)
	f.set(t, 0, vm.Pointer(builtinPtrs(t, f, builtins, 1)))
	f.set(t, 1, vm.Pointer(vm.NewRelocatable(rangeCheck.Segment, 12)))
	exit := f.ctx(IdsBuiltinPtrs, IdsRangeCheckPtr)
	exit.Scopes = scopes
	require.NoError(t, f.reg.Run(ExitCallContract.Code(), exit))
	assert.Equal(t, 0, f.run.Telemetry.Depth())

	u := f.meter.Usage("CallContract")
	assert.Equal(t, uint64(1), u.Calls)
	assert.Equal(t, uint64(40), u.Steps)
	assert.Equal(t, uint64(5), u.Builtins["range_check"])
	assert.Equal(t, uint64(0), u.Builtins["pedersen"])
	assert.Equal(t, uint64(3), u.Builtins["bitwise"])
	assert.Equal(t, uint64(5), u.Builtins["poseidon"])
}

func TestTelemetryHintsNeverFail(t *testing.T) {
	f := newFixture(t)
	scopes := vm.NewExecutionScopes()

	// Exit with nothing open.
	ctx := f.ctx()
	ctx.Scopes = scopes
	require.NoError(t, f.reg.Run(CodeExitSyscall, ctx))

	f.set(t, 0, vm.Int(types.StorageReadSelector))
	enter := f.ctx(IdsSelector)
	enter.Scopes = scopes
	require.NoError(t, f.reg.Run(CodeEnterSyscall, enter))

	// A mismatched exit is logged and leaves the syscall open.
	require.NoError(t, f.reg.Run(ExitDeploy.Code(), enter))
	assert.Equal(t, 1, f.run.Telemetry.Depth())

	require.NoError(t, f.reg.Run(CodeExitSyscall, enter))
	assert.Equal(t, 0, f.run.Telemetry.Depth())
	assert.Equal(t, uint64(1), f.meter.Usage("StorageRead").Calls)

	// Without a logger the hints are no-ops.
	f.run.Telemetry = nil
	assert.NoError(t, f.reg.Run(CodeEnterSyscall, enter))
	assert.NoError(t, f.reg.Run(ExitStorageRead.Code(), enter))
}

func TestResolveSelector(t *testing.T) {
	custom := felt(0xabc)
	sel, ok := resolveSelector(map[string]types.Felt{
		"starkware.starknet.common.syscalls.CALL_CONTRACT_SELECTOR": custom,
	}, "CALL_CONTRACT_SELECTOR")
	require.True(t, ok)
	assert.Equal(t, custom, sel)

	sel, ok = resolveSelector(nil, "STORAGE_WRITE_SELECTOR")
	require.True(t, ok)
	assert.Equal(t, types.StorageWriteSelector, sel)

	_, ok = resolveSelector(nil, "NOT_A_SELECTOR")
	assert.False(t, ok)
}

func TestExecuteWrapsHintName(t *testing.T) {
	f := newFixture(t)
	err := f.reg.Execute(StorageWrite, f.ctx())
	require.Error(t, err)
	assert.True(t, errors.Is(err, vm.ErrUnknownIdentifier))
	assert.Contains(t, err.Error(), "storage_write: ")
}
