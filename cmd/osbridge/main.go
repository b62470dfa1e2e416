// osbridge: syscall bridge tooling for the Starknet OS.
//
// It manages the oracle fact store a run reads from, inspects the syscall
// records a run writes, and lists the hints the bridge implements.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/inconshreveable/log15"
	"github.com/spf13/cobra"

	"github.com/fortiblox/stratus-os/internal/config"
	"github.com/fortiblox/stratus-os/internal/types"
	"github.com/fortiblox/stratus-os/pkg/bridge"
	"github.com/fortiblox/stratus-os/pkg/hints"
	"github.com/fortiblox/stratus-os/pkg/oracle"
	"github.com/fortiblox/stratus-os/pkg/telemetry"
	"github.com/fortiblox/stratus-os/pkg/vm"
)

// Version information
var (
	Version   = "0.1.0"
	GitCommit = "dev"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// app carries the loaded configuration to subcommands.
type app struct {
	cfg config.Config
	log log15.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "osbridge",
		Short:         "Starknet OS syscall bridge tooling",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.CompletionOptions.DisableDefaultCmd = true
	config.AddFlags(root.PersistentFlags())

	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		v, err := config.NewViper(root.PersistentFlags())
		if err != nil {
			return err
		}
		cfg, err := config.Load(v)
		if err != nil {
			return err
		}
		if err := config.SetupLogging(cfg.LogLevel); err != nil {
			return err
		}
		a.cfg = cfg
		a.log = log15.New("module", "osbridge")
		return nil
	}

	root.AddCommand(
		newVersionCmd(),
		newHintsCmd(),
		newInspectCmd(a),
		newSelectorCmd(),
		newOracleCmd(a),
		newTelemetryCmd(a),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and exit",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "osbridge %s (%s)\n", Version, GitCommit)
		},
	}
}

func newHintsCmd() *cobra.Command {
	var full bool
	cmd := &cobra.Command{
		Use:   "hints",
		Short: "List the hints the bridge implements",
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := hints.NewRegistry()
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, id := range hints.IDs() {
				code := id.Code()
				if !full {
					code, _, _ = strings.Cut(code, "\n")
				}
				fmt.Fprintf(w, "%d\t%s\t%s\n", id, id, code)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d hints, set %s\n", reg.Len(), reg.Fingerprint())
			return nil
		},
	}
	cmd.Flags().BoolVar(&full, "full", false, "Print the complete hint code")
	return cmd
}

func newInspectCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect",
		Short: "Open a session over the fact store and report what a run would see",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			s, err := bridge.Open(ctx, a.cfg, bridge.WithLogger(a.log), bridge.WithRunLabel("inspect"))
			if err != nil {
				return err
			}
			defer s.Close(ctx)

			v := vm.NewVirtualMachine()
			v.AddMemorySegment()
			v.AddMemorySegment()
			if _, err := s.SeedStateChanges(v); err != nil {
				return fmt.Errorf("seed state changes: %w", err)
			}

			h := s.Helper()
			block := h.BlockInfo()
			call, err := h.CurrentCall()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "block:      %d (timestamp %d, sequencer %s)\n", block.BlockNumber, block.BlockTimestamp, block.SequencerAddress.Hex())
			fmt.Fprintf(out, "entry call: %s -> %s\n", call.CallerAddress.Hex(), call.ContractAddress.Hex())
			fmt.Fprintf(out, "contracts:  %d\n", len(h.Contracts()))
			fmt.Fprintf(out, "segments:   %d\n", v.Memory().NumSegments())
			fmt.Fprintf(out, "hints:      %d\n", s.Registry().Len())
			return nil
		},
	}
}

func newSelectorCmd() *cobra.Command {
	var encoding string
	cmd := &cobra.Command{
		Use:   "selector <entry point>...",
		Short: "Compute entry point selectors, e.g. for call frames in fact files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, name := range args {
				out, err := encodeFelt(types.EntryPointSelector(name), encoding)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", name, out)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&encoding, "encoding", "hex", "Output encoding: hex, decimal, base58")
	return cmd
}

func (a *app) openStore() (*oracle.BadgerStore, error) {
	cfg := oracle.DefaultBadgerConfig(a.cfg.OracleDB)
	cfg.InMemory = a.cfg.OracleInMemory
	cfg.Logger = a.log.New("module", "badger")
	return oracle.NewBadgerStore(cfg)
}

func newOracleCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "oracle",
		Short: "Manage the oracle fact store",
	}

	importCmd := &cobra.Command{
		Use:   "import <facts.json|snapshot>",
		Short: "Import facts from a JSON file or a snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			facts, err := readFacts(args[0])
			if err != nil {
				return err
			}
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()
			if err := store.Import(facts); err != nil {
				return err
			}
			a.log.Info("Facts imported", "storage", len(facts.Storage), "entries", len(facts.StateEntries))
			return nil
		},
	}

	exportCmd := &cobra.Command{
		Use:   "export <snapshot>",
		Short: "Write every stored fact to a snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()
			facts, err := store.LoadFacts(true)
			if err != nil {
				return err
			}
			if err := oracle.SaveSnapshot(args[0], facts); err != nil {
				return err
			}
			a.log.Info("Snapshot written", "path", args[0], "storage", len(facts.Storage))
			return nil
		},
	}

	var contract, key, encoding string
	readCmd := &cobra.Command{
		Use:   "read",
		Short: "Read one storage cell",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := parseFelt(contract)
			if err != nil {
				return fmt.Errorf("contract: %w", err)
			}
			k, err := parseFelt(key)
			if err != nil {
				return fmt.Errorf("key: %w", err)
			}
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()
			value, err := store.ReadStorage(c, k)
			if err != nil {
				return err
			}
			out, err := encodeFelt(value, encoding)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
	readCmd.Flags().StringVar(&contract, "contract", "", "Contract address: hex, decimal, or b58:<base58>")
	readCmd.Flags().StringVar(&key, "key", "", "Storage key: hex, decimal, or b58:<base58>")
	readCmd.Flags().StringVar(&encoding, "encoding", "hex", "Output encoding: hex, decimal, base58")
	readCmd.MarkFlagRequired("contract")
	readCmd.MarkFlagRequired("key")

	cmd.AddCommand(importCmd, exportCmd, readCmd)
	return cmd
}

// readFacts reads a facts file. Files ending in .json are plain JSON; anything
// else is a snapshot.
func readFacts(path string) (oracle.Facts, error) {
	if filepath.Ext(path) != ".json" {
		return oracle.LoadSnapshot(path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return oracle.Facts{}, err
	}
	var facts oracle.Facts
	if err := json.Unmarshal(data, &facts); err != nil {
		return oracle.Facts{}, fmt.Errorf("decode %s: %w", path, err)
	}
	return facts, facts.Validate()
}

// parseFelt accepts hex, decimal, or base58 prefixed with "b58:".
func parseFelt(s string) (types.Felt, error) {
	if rest, ok := strings.CutPrefix(s, "b58:"); ok {
		return types.FeltFromBase58(rest)
	}
	return types.ParseFelt(s)
}

func encodeFelt(f types.Felt, encoding string) (string, error) {
	switch encoding {
	case "hex":
		return f.Hex(), nil
	case "decimal":
		return f.String(), nil
	case "base58":
		return f.Base58(), nil
	default:
		return "", fmt.Errorf("unknown encoding %q", encoding)
	}
}

func newTelemetryCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "telemetry",
		Short: "Inspect recorded syscall telemetry",
	}

	var run string
	dumpCmd := &cobra.Command{
		Use:   "dump",
		Short: "Print every recorded syscall",
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := a.openRecorder()
			if err != nil {
				return err
			}
			defer rec.Close()

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "RUN\tHINTS\tSEQ\tSYSCALL\tDEPTH\tSTEPS\tBUILTINS")
			err = rec.Iterate(func(r telemetry.StoredRecord) error {
				if run != "" && r.Run != run {
					return nil
				}
				name := r.Name
				if name == "" {
					name = r.Selector.Hex()
				}
				if r.Deprecated {
					name += " (deprecated)"
				}
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%d\t%d\t%s\n", r.Run, shortHintSet(r.HintSet), r.Seq, name, r.Depth, r.Steps, formatBuiltins(r.Builtins))
				return nil
			})
			if err != nil {
				return err
			}
			return w.Flush()
		},
	}
	dumpCmd.Flags().StringVar(&run, "run", "", "Only records of this run")

	summaryCmd := &cobra.Command{
		Use:   "summary",
		Short: "Total recorded syscall costs per syscall",
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := a.openRecorder()
			if err != nil {
				return err
			}
			defer rec.Close()

			meter := telemetry.NewResourceMeter(0)
			err = rec.Iterate(func(r telemetry.StoredRecord) error {
				if run != "" && r.Run != run {
					return nil
				}
				return meter.Record(r.Record)
			})
			if err != nil {
				return err
			}

			snap := meter.Snapshot()
			names := make([]string, 0, len(snap))
			for name := range snap {
				names = append(names, name)
			}
			sort.Strings(names)

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "SYSCALL\tCALLS\tSTEPS\tBUILTINS")
			for _, name := range names {
				u := snap[name]
				fmt.Fprintf(w, "%s\t%d\t%d\t%s\n", name, u.Calls, u.Steps, formatBuiltins(u.Builtins))
			}
			total := meter.Total()
			fmt.Fprintf(w, "total\t%d\t%d\t%s\n", total.Calls, total.Steps, formatBuiltins(total.Builtins))
			return w.Flush()
		},
	}
	summaryCmd.Flags().StringVar(&run, "run", "", "Only records of this run")

	cmd.AddCommand(dumpCmd, summaryCmd)
	return cmd
}

func (a *app) openRecorder() (*telemetry.BoltRecorder, error) {
	if a.cfg.TelemetryDB == "" {
		return nil, fmt.Errorf("%w: telemetry database not configured", config.ErrConfigInvalid)
	}
	return telemetry.OpenBoltRecorder(telemetry.RecorderConfig{Path: a.cfg.TelemetryDB, ReadOnly: true})
}

func shortHintSet(h string) string {
	const n = 12
	switch {
	case h == "":
		return "-"
	case len(h) > n:
		return h[:n]
	}
	return h
}

func formatBuiltins(b map[string]uint64) string {
	var parts []string
	for _, name := range telemetry.Builtins {
		if n, ok := b[name]; ok && n > 0 {
			parts = append(parts, fmt.Sprintf("%s=%d", name, n))
		}
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, " ")
}
