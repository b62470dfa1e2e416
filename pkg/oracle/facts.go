// Package oracle provides the execution oracle: the trusted, precomputed
// blockchain facts (storage values, state entries, block and transaction
// context, inner call results) a run must stay consistent with.
//
// Facts are loaded once before a run, either from the badger-backed fact
// store or from a zstd snapshot, into an ExecutionHelper that serves the
// syscall handler and the storage consistency hints.
package oracle

import (
	"errors"
	"fmt"

	"github.com/fortiblox/stratus-os/internal/types"
	"github.com/fortiblox/stratus-os/pkg/oserr"
)

// Oracle errors.
var (
	ErrStorageNotFound        = fmt.Errorf("%w: storage value not found", oserr.ErrOracleMiss)
	ErrStateEntryNotFound     = fmt.Errorf("%w: state entry not found", oserr.ErrOracleMiss)
	ErrNoActiveCall           = fmt.Errorf("%w: no active call", oserr.ErrOracleMiss)
	ErrCallResultsExhausted   = fmt.Errorf("%w: call results exhausted", oserr.ErrOracleMiss)
	ErrDeployResultsExhausted = fmt.Errorf("%w: deploy results exhausted", oserr.ErrOracleMiss)
	ErrClosed                 = errors.New("oracle store closed")
	ErrInvalidSnapshot        = errors.New("invalid snapshot")
	ErrDuplicateFact          = errors.New("duplicate fact")
)

// StorageFact is one storage cell known before the run.
type StorageFact struct {
	Contract types.Felt `json:"contract_address"`
	Key      types.Felt `json:"key"`
	Value    types.Felt `json:"value"`
}

// StateFact is the state entry of one contract before the run.
type StateFact struct {
	Contract types.Felt       `json:"contract_address"`
	Entry    types.StateEntry `json:"entry"`
}

// Facts is everything the oracle knows about one run.
type Facts struct {
	Block         types.BlockInfo      `json:"block"`
	Tx            types.TxInfo         `json:"tx"`
	EntryCall     types.CallFrame      `json:"entry_call"`
	Storage       []StorageFact        `json:"storage"`
	StateEntries  []StateFact          `json:"state_entries"`
	CallResults   []types.CallResult   `json:"call_results"`
	DeployResults []types.DeployResult `json:"deploy_results"`
}

// Validate rejects fact sets that would make lookups ambiguous.
func (f *Facts) Validate() error {
	type cell struct{ contract, key types.Felt }
	seen := make(map[cell]struct{}, len(f.Storage))
	for _, s := range f.Storage {
		c := cell{s.Contract, s.Key}
		if _, ok := seen[c]; ok {
			return fmt.Errorf("%w: storage contract %s key %s", ErrDuplicateFact, s.Contract, s.Key)
		}
		seen[c] = struct{}{}
	}
	entries := make(map[types.Felt]struct{}, len(f.StateEntries))
	for _, s := range f.StateEntries {
		if _, ok := entries[s.Contract]; ok {
			return fmt.Errorf("%w: state entry %s", ErrDuplicateFact, s.Contract)
		}
		entries[s.Contract] = struct{}{}
	}
	return nil
}
