package hints

import (
	"github.com/fortiblox/stratus-os/internal/types"
	"github.com/fortiblox/stratus-os/pkg/oserr"
	"github.com/fortiblox/stratus-os/pkg/syscall"
	"github.com/fortiblox/stratus-os/pkg/vm"
)

// Field offsets of the current-ABI response structs.
const (
	RangedRetdataStartOffset = 0
	RangedRetdataEndOffset   = 1

	DeployRangedContractAddressOffset = 0
	DeployRangedRetdataStartOffset    = 1
	DeployRangedRetdataEndOffset      = 2
)

// ResponseEnvelope is a syscall response that carries return data. Span
// resolves it to the address and length of that data.
type ResponseEnvelope interface {
	Span() (vm.Relocatable, uint64, error)
}

// LegacyResponse is the deprecated call response: a size and a pointer.
type LegacyResponse struct {
	RetdataSize types.Felt
	Retdata     vm.Relocatable
}

func (r LegacyResponse) Span() (vm.Relocatable, uint64, error) {
	size, err := r.RetdataSize.Uint64()
	if err != nil {
		return vm.Relocatable{}, 0, err
	}
	return r.Retdata, size, nil
}

// RangedResponse is the current call response: start and end pointers.
type RangedResponse struct {
	Start vm.Relocatable
	End   vm.Relocatable
}

func (r RangedResponse) Span() (vm.Relocatable, uint64, error) {
	n, err := r.End.Sub(r.Start)
	if err != nil {
		return vm.Relocatable{}, 0, err
	}
	return r.Start, n, nil
}

// DeployRangedResponse is the current deploy response.
type DeployRangedResponse struct {
	ContractAddress types.Felt
	RangedResponse
}

// ReadLegacyResponse reads a LegacyResponse at ptr.
func ReadLegacyResponse(mem vm.MemoryReader, ptr vm.Relocatable) (LegacyResponse, error) {
	sizeAddr, err := ptr.Add(syscall.ResponseRetdataSizeOffset)
	if err != nil {
		return LegacyResponse{}, err
	}
	size, err := mem.GetInteger(sizeAddr)
	if err != nil {
		return LegacyResponse{}, err
	}
	dataAddr, err := ptr.Add(syscall.ResponseRetdataOffset)
	if err != nil {
		return LegacyResponse{}, err
	}
	data, err := mem.GetRelocatable(dataAddr)
	if err != nil {
		return LegacyResponse{}, err
	}
	return LegacyResponse{RetdataSize: size, Retdata: data}, nil
}

// ReadRangedResponse reads a RangedResponse at ptr.
func ReadRangedResponse(mem vm.MemoryReader, ptr vm.Relocatable) (RangedResponse, error) {
	return readRange(mem, ptr, RangedRetdataStartOffset, RangedRetdataEndOffset)
}

// ReadDeployRangedResponse reads a DeployRangedResponse at ptr.
func ReadDeployRangedResponse(mem vm.MemoryReader, ptr vm.Relocatable) (DeployRangedResponse, error) {
	addrCell, err := ptr.Add(DeployRangedContractAddressOffset)
	if err != nil {
		return DeployRangedResponse{}, err
	}
	addr, err := mem.GetInteger(addrCell)
	if err != nil {
		return DeployRangedResponse{}, err
	}
	r, err := readRange(mem, ptr, DeployRangedRetdataStartOffset, DeployRangedRetdataEndOffset)
	if err != nil {
		return DeployRangedResponse{}, err
	}
	return DeployRangedResponse{ContractAddress: addr, RangedResponse: r}, nil
}

func readRange(mem vm.MemoryReader, ptr vm.Relocatable, startOffset, endOffset uint64) (RangedResponse, error) {
	var r RangedResponse
	for _, f := range []struct {
		offset uint64
		dst    *vm.Relocatable
	}{{startOffset, &r.Start}, {endOffset, &r.End}} {
		addr, err := ptr.Add(f.offset)
		if err != nil {
			return RangedResponse{}, err
		}
		if *f.dst, err = mem.GetRelocatable(addr); err != nil {
			return RangedResponse{}, err
		}
	}
	return r, nil
}

// AssertMemoryRangesEqual compares two memory ranges cell by cell. Ranges
// of different length never match. A mismatch is a ReturnValueMismatchError
// carrying both ranges.
func AssertMemoryRangesEqual(mem vm.MemoryReader, expected vm.Relocatable, expectedLen uint64, actual vm.Relocatable, actualLen uint64) error {
	exp, err := mem.GetRange(expected, expectedLen)
	if err != nil {
		return err
	}
	act, err := mem.GetRange(actual, actualLen)
	if err != nil {
		return err
	}
	if rangesEqual(exp, act) {
		return nil
	}
	return &oserr.ReturnValueMismatchError{Expected: render(exp), Actual: render(act)}
}

// VerifyResponse checks the envelope's return data against the range the
// program computed.
func VerifyResponse(mem vm.MemoryReader, env ResponseEnvelope, actual vm.Relocatable, actualLen uint64) error {
	start, n, err := env.Span()
	if err != nil {
		return err
	}
	return AssertMemoryRangesEqual(mem, start, n, actual, actualLen)
}

func rangesEqual(a, b []vm.MaybeRelocatable) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func render(cells []vm.MaybeRelocatable) []string {
	out := make([]string, len(cells))
	for i, c := range cells {
		out[i] = c.String()
	}
	return out
}

// actualRetdata reads ids.retdata and ids.retdata_size.
func actualRetdata(ctx *Context) (vm.Relocatable, uint64, error) {
	ptr, err := ctx.ptr(IdsRetdata)
	if err != nil {
		return vm.Relocatable{}, 0, err
	}
	size, err := ctx.integer(IdsRetdataSize)
	if err != nil {
		return vm.Relocatable{}, 0, err
	}
	n, err := size.Uint64()
	if err != nil {
		return vm.Relocatable{}, 0, err
	}
	return ptr, n, nil
}

func checkSyscallResponse(ctx *Context) error {
	resp, err := ctx.ptr(IdsCallResponse)
	if err != nil {
		return err
	}
	env, err := ReadLegacyResponse(ctx.VM, resp)
	if err != nil {
		return err
	}
	if err := verify(ctx, env); err != nil {
		return err
	}
	return exitInnerCall(ctx)
}

// exitInnerCall returns to the caller of a checked inner call. The check
// also runs for calls whose callee was never entered; then there is nothing
// to exit.
func exitInnerCall(ctx *Context) error {
	if ctx.Run == nil || ctx.Run.Syscalls == nil || ctx.Run.Syscalls.Depth() == 0 {
		return nil
	}
	return ctx.Run.Syscalls.ExitCall()
}

func checkNewSyscallResponse(ctx *Context) error {
	resp, err := ctx.ptr(IdsResponse)
	if err != nil {
		return err
	}
	env, err := ReadRangedResponse(ctx.VM, resp)
	if err != nil {
		return err
	}
	return verify(ctx, env)
}

func checkNewDeployResponse(ctx *Context) error {
	resp, err := ctx.ptr(IdsResponse)
	if err != nil {
		return err
	}
	env, err := ReadDeployRangedResponse(ctx.VM, resp)
	if err != nil {
		return err
	}
	return verify(ctx, env)
}

func verify(ctx *Context, env ResponseEnvelope) error {
	ptr, n, err := actualRetdata(ctx)
	if err != nil {
		return err
	}
	return VerifyResponse(ctx.VM, env, ptr, n)
}
