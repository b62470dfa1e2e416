package hints

// Identifier names the OS program binds at hint sites.
const (
	IdsOsContext            = "os_context"
	IdsSyscallPtr           = "syscall_ptr"
	IdsContractAddress      = "contract_address"
	IdsContractStateChanges = "contract_state_changes"
	IdsStateEntry           = "state_entry"
	IdsNewStateEntry        = "new_state_entry"
	IdsValue                = "value"
	IdsCallResponse         = "call_response"
	IdsResponse             = "response"
	IdsRetdata              = "retdata"
	IdsRetdataSize          = "retdata_size"
	IdsBuiltinPtrs          = "builtin_ptrs"
	IdsRangeCheckPtr        = "range_check_ptr"
	IdsSelector             = "selector"
)

// Execution scope variables.
const (
	// ScopeExitSyscall holds the ExitSyscallFunc stored by the enter hints.
	ScopeExitSyscall = "exit_syscall"
)
