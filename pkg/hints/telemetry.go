package hints

import (
	"strings"

	"github.com/fortiblox/stratus-os/internal/types"
	"github.com/fortiblox/stratus-os/pkg/telemetry"
	"github.com/fortiblox/stratus-os/pkg/vm"
)

// ExitSyscallFunc closes the syscall opened by an enter hint. The enter
// hints store one in the execution scope under ScopeExitSyscall. A zero
// selector closes whatever syscall is open.
type ExitSyscallFunc func(ctx *Context, selector types.Felt) error

// Telemetry never fails a run: problems are logged and the hint succeeds.

func enterDeprecatedSyscall(ctx *Context) error {
	return enterSyscallWith(ctx, true)
}

func enterSyscall(ctx *Context) error {
	return enterSyscallWith(ctx, false)
}

func enterSyscallWith(ctx *Context, deprecated bool) error {
	if ctx.Run == nil || ctx.Run.Telemetry == nil || ctx.Scopes == nil {
		return nil
	}
	log := ctx.logger()

	selector, err := ctx.integer(IdsSelector)
	if err != nil {
		log.Warn("Cannot read syscall selector", "err", err)
		return nil
	}
	builtins, err := builtinCounters(ctx.VM, ctx.Ids, ctx.ApTracking)
	if err != nil {
		log.Debug("Builtin pointers unavailable", "err", err)
	}

	osLogger := ctx.Run.Telemetry
	osLogger.EnterSyscall(telemetry.EnterEvent{
		Step:       ctx.VM.CurrentStep(),
		Builtins:   builtins,
		Deprecated: deprecated,
		Selector:   selector,
	})

	enterIds, enterTracking := ctx.Ids, ctx.ApTracking
	ctx.Scopes.Insert(ScopeExitSyscall, ExitSyscallFunc(func(exit *Context, sel types.Felt) error {
		ids, tracking := exit.Ids, exit.ApTracking
		if _, ok := ids[IdsBuiltinPtrs]; !ok {
			ids, tracking = enterIds, enterTracking
		}
		builtins, err := builtinCounters(exit.VM, ids, tracking)
		if err != nil {
			exit.logger().Debug("Builtin pointers unavailable", "err", err)
		}
		_, err = osLogger.ExitSyscall(telemetry.ExitEvent{
			Step:     exit.VM.CurrentStep(),
			Builtins: builtins,
			Selector: sel,
		})
		return err
	}))
	return nil
}

// exitCurrentSyscall closes the open syscall whatever its selector.
func exitCurrentSyscall(ctx *Context) error {
	return runExitSyscall(ctx, types.Felt{})
}

func exitSyscallWith(constant string) Func {
	return func(ctx *Context) error {
		if ctx.Run == nil || ctx.Run.Telemetry == nil {
			return nil
		}
		sel, ok := resolveSelector(ctx.Constants, constant)
		if !ok {
			ctx.logger().Warn("Unknown selector constant", "name", constant)
			return nil
		}
		return runExitSyscall(ctx, sel)
	}
}

func runExitSyscall(ctx *Context, sel types.Felt) error {
	if ctx.Run == nil || ctx.Run.Telemetry == nil || ctx.Scopes == nil {
		return nil
	}
	log := ctx.logger()
	fn, err := vm.ScopeValue[ExitSyscallFunc](ctx.Scopes, ScopeExitSyscall)
	if err != nil {
		log.Warn("No open syscall to exit", "err", err)
		return nil
	}
	if err := fn(ctx, sel); err != nil {
		log.Warn("Syscall telemetry failed", "selector", sel.Hex(), "err", err)
	}
	return nil
}

// resolveSelector looks a selector constant up in the program constants,
// by exact name or by its last path component, and falls back to the
// built-in table.
func resolveSelector(constants map[string]types.Felt, constant string) (types.Felt, bool) {
	if v, ok := constants[constant]; ok {
		return v, true
	}
	for name, v := range constants {
		if strings.HasSuffix(name, "."+constant) {
			return v, true
		}
	}
	return types.SelectorByConstant(constant)
}

// builtinCounters reads the builtin pointer offsets at ids.builtin_ptrs, laid
// out in telemetry.Builtins order. ids.range_check_ptr, when bound,
// overrides the range check entry. Unset cells are skipped.
func builtinCounters(v *vm.VirtualMachine, ids vm.IdsData, tracking vm.ApTracking) (map[string]uint64, error) {
	out := make(map[string]uint64, len(telemetry.Builtins))
	base, err := vm.GetPtrFromVarName(IdsBuiltinPtrs, v, ids, tracking)
	if err == nil {
		for i, name := range telemetry.Builtins {
			addr, aerr := base.Add(uint64(i))
			if aerr != nil {
				err = aerr
				break
			}
			cell, ok := v.Get(addr)
			if !ok {
				continue
			}
			if p, ok := cell.Relocatable(); ok {
				out[name] = p.Offset
			}
		}
	}
	if _, ok := ids[IdsRangeCheckPtr]; ok {
		if rc, rerr := vm.GetPtrFromVarName(IdsRangeCheckPtr, v, ids, tracking); rerr == nil {
			out["range_check"] = rc.Offset
		}
	}
	return out, err
}
