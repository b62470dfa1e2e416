package hints

import (
	"github.com/fortiblox/stratus-os/pkg/syscall"
	"github.com/fortiblox/stratus-os/pkg/vm"
)

// dispatch reads ids.syscall_ptr and hands it to fn with the run's handler.
func dispatch(ctx *Context, fn func(h *syscall.Handler, ptr vm.Relocatable) error) error {
	h, err := ctx.syscalls()
	if err != nil {
		return err
	}
	ptr, err := ctx.ptr(IdsSyscallPtr)
	if err != nil {
		return err
	}
	return fn(h, ptr)
}

func callContract(ctx *Context) error {
	return dispatch(ctx, func(h *syscall.Handler, ptr vm.Relocatable) error {
		return h.CallContract(ptr, ctx.VM)
	})
}

func delegateCall(ctx *Context) error {
	return dispatch(ctx, func(h *syscall.Handler, ptr vm.Relocatable) error {
		return h.DelegateCall(ptr, ctx.VM)
	})
}

func delegateL1Handler(ctx *Context) error {
	return dispatch(ctx, func(h *syscall.Handler, ptr vm.Relocatable) error {
		return h.DelegateL1Handler(ptr, ctx.VM)
	})
}

func deploy(ctx *Context) error {
	return dispatch(ctx, func(h *syscall.Handler, ptr vm.Relocatable) error {
		return h.Deploy(ptr, ctx.VM)
	})
}

func emitEvent(ctx *Context) error {
	return dispatch(ctx, func(h *syscall.Handler, ptr vm.Relocatable) error {
		return h.EmitEvent(ptr, ctx.VM)
	})
}

func getBlockNumber(ctx *Context) error {
	return dispatch(ctx, func(h *syscall.Handler, ptr vm.Relocatable) error {
		return h.GetBlockNumber(ptr, ctx.VM)
	})
}

func getBlockTimestamp(ctx *Context) error {
	return dispatch(ctx, func(h *syscall.Handler, ptr vm.Relocatable) error {
		return h.GetBlockTimestamp(ptr, ctx.VM)
	})
}

func getCallerAddress(ctx *Context) error {
	return dispatch(ctx, func(h *syscall.Handler, ptr vm.Relocatable) error {
		return h.GetCallerAddress(ptr, ctx.VM)
	})
}

func getContractAddress(ctx *Context) error {
	return dispatch(ctx, func(h *syscall.Handler, ptr vm.Relocatable) error {
		return h.GetContractAddress(ptr, ctx.VM)
	})
}

func getSequencerAddress(ctx *Context) error {
	return dispatch(ctx, func(h *syscall.Handler, ptr vm.Relocatable) error {
		return h.GetSequencerAddress(ptr, ctx.VM)
	})
}

func getTxInfo(ctx *Context) error {
	return dispatch(ctx, func(h *syscall.Handler, ptr vm.Relocatable) error {
		return h.GetTxInfo(ptr, ctx.VM)
	})
}

func getTxSignature(ctx *Context) error {
	return dispatch(ctx, func(h *syscall.Handler, ptr vm.Relocatable) error {
		return h.GetTxSignature(ptr, ctx.VM)
	})
}

func libraryCall(ctx *Context) error {
	return dispatch(ctx, func(h *syscall.Handler, ptr vm.Relocatable) error {
		return h.LibraryCall(ptr, ctx.VM)
	})
}

func libraryCallL1Handler(ctx *Context) error {
	return dispatch(ctx, func(h *syscall.Handler, ptr vm.Relocatable) error {
		return h.LibraryCallL1Handler(ptr, ctx.VM)
	})
}

func replaceClass(ctx *Context) error {
	return dispatch(ctx, func(h *syscall.Handler, ptr vm.Relocatable) error {
		return h.ReplaceClass(ptr, ctx.VM)
	})
}

func sendMessageToL1(ctx *Context) error {
	return dispatch(ctx, func(h *syscall.Handler, ptr vm.Relocatable) error {
		return h.SendMessageToL1(ptr, ctx.VM)
	})
}

func storageRead(ctx *Context) error {
	return dispatch(ctx, func(h *syscall.Handler, ptr vm.Relocatable) error {
		return h.StorageRead(ptr, ctx.VM)
	})
}

func storageWrite(ctx *Context) error {
	return dispatch(ctx, func(h *syscall.Handler, ptr vm.Relocatable) error {
		return h.StorageWrite(ptr, ctx.VM)
	})
}

// setSyscallPtr allocates the OS context and syscall segments, binds them to
// ids.os_context and ids.syscall_ptr and points the handler at the latter.
func setSyscallPtr(ctx *Context) error {
	h, err := ctx.syscalls()
	if err != nil {
		return err
	}
	osContext := ctx.VM.AddMemorySegment()
	syscallPtr := ctx.VM.AddMemorySegment()
	if err := ctx.insert(IdsOsContext, vm.Pointer(osContext)); err != nil {
		return err
	}
	if err := ctx.insert(IdsSyscallPtr, vm.Pointer(syscallPtr)); err != nil {
		return err
	}
	h.SetSyscallPtr(syscallPtr)
	return nil
}
