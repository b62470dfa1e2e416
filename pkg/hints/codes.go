package hints

// Hint code strings. They are matched byte for byte against the hint code
// embedded in the compiled OS program.
const (
	CodeCallContract         = "syscall_handler.call_contract(segments=segments, syscall_ptr=ids.syscall_ptr)"
	CodeDelegateCall         = "syscall_handler.delegate_call(segments=segments, syscall_ptr=ids.syscall_ptr)"
	CodeDelegateL1Handler    = "syscall_handler.delegate_l1_handler(segments=segments, syscall_ptr=ids.syscall_ptr)"
	CodeDeploy               = "syscall_handler.deploy(segments=segments, syscall_ptr=ids.syscall_ptr)"
	CodeEmitEvent            = "syscall_handler.emit_event(segments=segments, syscall_ptr=ids.syscall_ptr)"
	CodeGetBlockNumber       = "syscall_handler.get_block_number(segments=segments, syscall_ptr=ids.syscall_ptr)"
	CodeGetBlockTimestamp    = "syscall_handler.get_block_timestamp(segments=segments, syscall_ptr=ids.syscall_ptr)"
	CodeGetCallerAddress     = "syscall_handler.get_caller_address(segments=segments, syscall_ptr=ids.syscall_ptr)"
	CodeGetContractAddress   = "syscall_handler.get_contract_address(segments=segments, syscall_ptr=ids.syscall_ptr)"
	CodeGetSequencerAddress  = "syscall_handler.get_sequencer_address(segments=segments, syscall_ptr=ids.syscall_ptr)"
	CodeGetTxInfo            = "syscall_handler.get_tx_info(segments=segments, syscall_ptr=ids.syscall_ptr)"
	CodeGetTxSignature       = "syscall_handler.get_tx_signature(segments=segments, syscall_ptr=ids.syscall_ptr)"
	CodeLibraryCall          = "syscall_handler.library_call(segments=segments, syscall_ptr=ids.syscall_ptr)"
	CodeLibraryCallL1Handler = "syscall_handler.library_call_l1_handler(segments=segments, syscall_ptr=ids.syscall_ptr)"
	CodeReplaceClass         = "syscall_handler.replace_class(segments=segments, syscall_ptr=ids.syscall_ptr)"
	CodeSendMessageToL1      = "syscall_handler.send_message_to_l1(segments=segments, syscall_ptr=ids.syscall_ptr)"
	CodeStorageRead          = "syscall_handler.storage_read(segments=segments, syscall_ptr=ids.syscall_ptr)"
	CodeStorageWrite         = "syscall_handler.storage_write(segments=segments, syscall_ptr=ids.syscall_ptr)"
)

const CodeSetSyscallPtr = `ids.os_context = segments.add()
ids.syscall_ptr = segments.add()

syscall_handler.set_syscall_ptr(syscall_ptr=ids.syscall_ptr)`

const CodeEnterDeprecatedSyscall = `execution_helper.os_logger.enter_syscall(
    n_steps=current_step,
    builtin_ptrs=ids.builtin_ptrs,
    deprecated=True,
    selector=ids.selector,
    range_check_ptr=ids.range_check_ptr,
)

# Prepare a short callable to save code duplication.
exit_syscall = lambda selector: execution_helper.os_logger.exit_syscall(
    n_steps=current_step,
    builtin_ptrs=ids.builtin_ptrs,
    range_check_ptr=ids.range_check_ptr,
    selector=selector,
)`

const CodeEnterSyscall = `execution_helper.os_logger.enter_syscall(
    n_steps=current_step,
    builtin_ptrs=ids.builtin_ptrs,
    deprecated=False,
    selector=ids.selector,
    range_check_ptr=ids.range_check_ptr,
)

# Prepare a short callable to save code duplication.
exit_syscall = lambda: execution_helper.os_logger.exit_syscall(
    n_steps=current_step,
    builtin_ptrs=ids.builtin_ptrs,
    range_check_ptr=ids.range_check_ptr,
    selector=ids.selector,
)`

const CodeExitSyscall = "exit_syscall()"

const CodeFetchStateEntry = `# Fetch a state_entry in this hint and validate it in the update that comes next.
ids.state_entry = __dict_manager.get_dict(ids.contract_state_changes)[
    ids.contract_address
]

ids.new_state_entry = segments.add()`

const CodeCacheContractStorage = `# Make sure the value is cached (by reading it), to be used later on for the
# commitment computation.
value = execution_helper.storage_by_address[ids.contract_address].read(
    key=ids.syscall_ptr.request.address
)
assert ids.value == value, "Inconsistent storage value."`

const CodeCheckSyscallResponse = `# Check that the actual return value matches the expected one.
expected = memory.get_range(
    addr=ids.call_response.retdata, size=ids.call_response.retdata_size
)
actual = memory.get_range(addr=ids.retdata, size=ids.retdata_size)

assert expected == actual, f'Return value mismatch expected={expected}, actual={actual}.'`

const CodeCheckNewSyscallResponse = `# Check that the actual return value matches the expected one.
expected = memory.get_range(
    addr=ids.response.retdata_start,
    size=ids.response.retdata_end - ids.response.retdata_start,
)
actual = memory.get_range(addr=ids.retdata, size=ids.retdata_size)

assert expected == actual, f'Return value mismatch; expected={expected}, actual={actual}.'`

const CodeCheckNewDeployResponse = `# Check that the actual return value matches the expected one.
expected = memory.get_range(
    addr=ids.response.constructor_retdata_start,
    size=ids.response.constructor_retdata_end - ids.response.constructor_retdata_start,
)
actual = memory.get_range(addr=ids.retdata, size=ids.retdata_size)
assert expected == actual, f'Return value mismatch; expected={expected}, actual={actual}.'`

// exitCode returns the code of the exit hint for an OS selector constant,
// e.g. "exit_syscall(selector=ids.CALL_CONTRACT_SELECTOR)".
func exitCode(constant string) string {
	return "exit_syscall(selector=ids." + constant + ")"
}
