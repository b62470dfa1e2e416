package hints

import (
	"fmt"

	"github.com/inconshreveable/log15"

	"github.com/fortiblox/stratus-os/internal/types"
	"github.com/fortiblox/stratus-os/pkg/oserr"
	"github.com/fortiblox/stratus-os/pkg/syscall"
	"github.com/fortiblox/stratus-os/pkg/telemetry"
	"github.com/fortiblox/stratus-os/pkg/vm"
)

var (
	ErrNoSyscallHandler  = fmt.Errorf("%w: run has no syscall handler", oserr.ErrInvariantViolation)
	ErrNoOracle          = fmt.Errorf("%w: run has no execution helper", oserr.ErrInvariantViolation)
	ErrNoDictManager     = fmt.Errorf("%w: run has no dict manager", oserr.ErrInvariantViolation)
	ErrDefaultStateDict  = fmt.Errorf("%w: contract state changes must not be a default dict", oserr.ErrInvariantViolation)
	ErrMissingStateEntry = fmt.Errorf("%w: no state entry for contract", oserr.ErrInvariantViolation)
)

// Oracle is the execution helper the hints consult for storage and state.
type Oracle interface {
	syscall.Oracle

	// Contracts lists the contracts with a known state entry.
	Contracts() []types.Felt
}

// Run holds the per-run collaborators shared by every hint of one OS
// execution. Nothing in it is global; two runs never share a Run.
type Run struct {
	Syscalls  *syscall.Handler
	Oracle    Oracle
	Dicts     *vm.DictManager
	Telemetry *telemetry.OSLogger
	Log       log15.Logger
}

// Context is the hint site being executed: the VM, its scopes, the ids
// bindings and ap tracking of the site, the program constants and the run.
type Context struct {
	VM         *vm.VirtualMachine
	Scopes     *vm.ExecutionScopes
	Ids        vm.IdsData
	ApTracking vm.ApTracking
	Constants  map[string]types.Felt
	Run        *Run
}

func (c *Context) ptr(name string) (vm.Relocatable, error) {
	return vm.GetPtrFromVarName(name, c.VM, c.Ids, c.ApTracking)
}

func (c *Context) integer(name string) (types.Felt, error) {
	return vm.GetIntegerFromVarName(name, c.VM, c.Ids, c.ApTracking)
}

func (c *Context) insert(name string, value vm.MaybeRelocatable) error {
	return vm.InsertValueFromVarName(name, value, c.VM, c.Ids, c.ApTracking)
}

func (c *Context) logger() log15.Logger {
	if c.Run != nil && c.Run.Log != nil {
		return c.Run.Log
	}
	return log15.Root()
}

func (c *Context) syscalls() (*syscall.Handler, error) {
	if c.Run == nil || c.Run.Syscalls == nil {
		return nil, ErrNoSyscallHandler
	}
	return c.Run.Syscalls, nil
}

func (c *Context) oracle() (Oracle, error) {
	if c.Run == nil || c.Run.Oracle == nil {
		return nil, ErrNoOracle
	}
	return c.Run.Oracle, nil
}

func (c *Context) dicts() (*vm.DictManager, error) {
	if c.Run == nil || c.Run.Dicts == nil {
		return nil, ErrNoDictManager
	}
	return c.Run.Dicts, nil
}
