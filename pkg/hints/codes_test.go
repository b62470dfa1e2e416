package hints

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// lines joins program source lines; an empty element is a blank line.
func lines(l ...string) string { return strings.Join(l, "\n") }

// The hint text as it appears in the compiled OS program.
func TestCompileProgramHintText(t *testing.T) {
	tests := []struct {
		want ID
		code string
	}{
		{SetSyscallPtr, lines(
			"ids.os_context = segments.add()",
			"ids.syscall_ptr = segments.add()",
			"",
			"syscall_handler.set_syscall_ptr(syscall_ptr=ids.syscall_ptr)",
		)},
		{EnterDeprecatedSyscall, lines(
			"execution_helper.os_logger.enter_syscall(",
			"    n_steps=current_step,",
			"    builtin_ptrs=ids.builtin_ptrs,",
			"    deprecated=True,",
			"    selector=ids.selector,",
			"    range_check_ptr=ids.range_check_ptr,",
			")",
			"",
			"# Prepare a short callable to save code duplication.",
			"exit_syscall = lambda selector: execution_helper.os_logger.exit_syscall(",
			"    n_steps=current_step,",
			"    builtin_ptrs=ids.builtin_ptrs,",
			"    range_check_ptr=ids.range_check_ptr,",
			"    selector=selector,",
			")",
		)},
		{FetchStateEntry, lines(
			"# Fetch a state_entry in this hint and validate it in the update that comes next.",
			"ids.state_entry = __dict_manager.get_dict(ids.contract_state_changes)[",
			"    ids.contract_address",
			"]",
			"",
			"ids.new_state_entry = segments.add()",
		)},
		{CacheContractStorage, lines(
			"# Make sure the value is cached (by reading it), to be used later on for the",
			"# commitment computation.",
			"value = execution_helper.storage_by_address[ids.contract_address].read(",
			"    key=ids.syscall_ptr.request.address",
			")",
			`assert ids.value == value, "Inconsistent storage value."`,
		)},
		{CheckSyscallResponse, lines(
			"# Check that the actual return value matches the expected one.",
			"expected = memory.get_range(",
			"    addr=ids.call_response.retdata, size=ids.call_response.retdata_size",
			")",
			"actual = memory.get_range(addr=ids.retdata, size=ids.retdata_size)",
			"",
			"assert expected == actual, f'Return value mismatch expected={expected}, actual={actual}.'",
		)},
		{CheckNewSyscallResponse, lines(
			"# Check that the actual return value matches the expected one.",
			"expected = memory.get_range(",
			"    addr=ids.response.retdata_start,",
			"    size=ids.response.retdata_end - ids.response.retdata_start,",
			")",
			"actual = memory.get_range(addr=ids.retdata, size=ids.retdata_size)",
			"",
			"assert expected == actual, f'Return value mismatch; expected={expected}, actual={actual}.'",
		)},
		{CheckNewDeployResponse, lines(
			"# Check that the actual return value matches the expected one.",
			"expected = memory.get_range(",
			"    addr=ids.response.constructor_retdata_start,",
			"    size=ids.response.constructor_retdata_end - ids.response.constructor_retdata_start,",
			")",
			"actual = memory.get_range(addr=ids.retdata, size=ids.retdata_size)",
			"assert expected == actual, f'Return value mismatch; expected={expected}, actual={actual}.'",
		)},
		{StorageRead, "syscall_handler.storage_read(segments=segments, syscall_ptr=ids.syscall_ptr)"},
		{ExitGetBlockHash, "exit_syscall(selector=ids.GET_BLOCK_HASH_SELECTOR)"},
	}
	r := NewRegistry()
	for _, tt := range tests {
		t.Run(tt.want.String(), func(t *testing.T) {
			got, err := r.Compile(tt.code)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
