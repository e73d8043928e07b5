package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/weiihann/ledgerbench/config"
)

// profileFlags binds benchmark flags to a profile. Flags set on the
// command line override values loaded from --config.
type profileFlags struct {
	path  string
	flags config.Profile
}

// overrides maps each flag to the profile field it sets.
var overrides = map[string]func(dst, src *config.Profile){
	"backend":           func(d, s *config.Profile) { d.Backend = s.Backend },
	"clients":           func(d, s *config.Profile) { d.Clients = s.Clients },
	"contract":          func(d, s *config.Profile) { d.Contract = s.Contract },
	"shape":             func(d, s *config.Profile) { d.Shape = s.Shape },
	"records":           func(d, s *config.Profile) { d.Records = s.Records },
	"batch-size":        func(d, s *config.Profile) { d.BatchSize = s.BatchSize },
	"checkpoint":        func(d, s *config.Profile) { d.Checkpoint = s.Checkpoint },
	"queries":           func(d, s *config.Profile) { d.Queries = s.Queries },
	"output":            func(d, s *config.Profile) { d.Output = s.Output },
	"throttle":          func(d, s *config.Profile) { d.Throttle = s.Throttle },
	"op-timeout":        func(d, s *config.Profile) { d.OpTimeout = s.OpTimeout },
	"complex-aggregate": func(d, s *config.Profile) { d.ComplexAggregate = s.ComplexAggregate },
	"block-size":        func(d, s *config.Profile) { d.Ledger.BlockSize = s.Ledger.BlockSize },
	"batch-timeout":     func(d, s *config.Profile) { d.Ledger.BatchTimeout = s.Ledger.BatchTimeout },
	"invoke-latency":    func(d, s *config.Profile) { d.Ledger.InvokeLatency = s.Ledger.InvokeLatency },
	"commit-latency":    func(d, s *config.Profile) { d.Ledger.CommitLatency = s.Ledger.CommitLatency },
	"database":          func(d, s *config.Profile) { d.Sync.Database = s.Sync.Database },
	"collection":        func(d, s *config.Profile) { d.Sync.Collection = s.Sync.Collection },
	"cooldown":          func(d, s *config.Profile) { d.Sync.Cooldown = s.Sync.Cooldown },
	"wait-timeout":      func(d, s *config.Profile) { d.Sync.WaitTimeout = s.Sync.WaitTimeout },
	"resume":            func(d, s *config.Profile) { d.Sync.Resume = s.Sync.Resume },
}

func (pf *profileFlags) register(cmd *cobra.Command, sync bool) {
	def := config.Default()
	p := &pf.flags

	flags := cmd.Flags()
	flags.StringVar(&pf.path, "config", "",
		"Profile file (.yaml, .yml or .toml)")
	flags.StringVar(&p.Backend, "backend", def.Backend,
		"Ledger backend")
	flags.IntVar(&p.Clients, "clients", def.Clients,
		"Number of parallel clients")
	flags.StringVar(&p.Contract, "contract", def.Contract,
		"Contract receiving the records")
	flags.StringVar(&p.Shape, "shape", def.Shape,
		"Record shape: simple, intermediate, complex")
	flags.IntVar(&p.Records, "records", def.Records,
		"Total number of records to dispatch")
	flags.IntVar(&p.BatchSize, "batch-size", def.BatchSize,
		"Records per client per round")
	flags.IntVar(&p.Checkpoint, "checkpoint", def.Checkpoint,
		"Records between measurements")
	flags.IntVar(&p.Queries, "queries", def.Queries,
		"Key-value queries per checkpoint (complex probes run a tenth as many)")
	flags.StringVar(&p.Output, "output", def.Output,
		"Base path of the .json and .csv results (empty logs results)")
	flags.DurationVar(&p.Throttle, "throttle", def.Throttle,
		"Pause per dispatched record after each checkpoint and probe")
	flags.DurationVar(&p.OpTimeout, "op-timeout", def.OpTimeout,
		"Timeout of each ledger call (0 waits indefinitely)")
	flags.StringVar(&p.ComplexAggregate, "complex-aggregate", def.ComplexAggregate,
		"How complex query samples are stored: sum, samples")
	flags.IntVar(&p.Ledger.BlockSize, "block-size", def.Ledger.BlockSize,
		"Transactions per block of the simulated network (0 uses the default)")
	flags.DurationVar(&p.Ledger.BatchTimeout, "batch-timeout", def.Ledger.BatchTimeout,
		"Commit pending transactions after this long (0 uses the default, negative disables)")
	flags.DurationVar(&p.Ledger.InvokeLatency, "invoke-latency", def.Ledger.InvokeLatency,
		"Simulated submission latency")
	flags.DurationVar(&p.Ledger.CommitLatency, "commit-latency", def.Ledger.CommitLatency,
		"Simulated commit latency of synchronous invocations")

	if !sync {
		return
	}

	flags.StringVar(&p.Sync.Database, "database", def.Sync.Database,
		"Path to the SQLite database receiving synchronized records")
	flags.StringVar(&p.Sync.Collection, "collection", def.Sync.Collection,
		"Collection receiving synchronized records (default: contract name)")
	flags.DurationVar(&p.Sync.Cooldown, "cooldown", def.Sync.Cooldown,
		"Pause before event hubs are disconnected")
	flags.DurationVar(&p.Sync.WaitTimeout, "wait-timeout", def.Sync.WaitTimeout,
		"Maximum wait for the last record to be synchronized (0 waits indefinitely)")
	flags.BoolVar(&p.Sync.Resume, "resume", def.Sync.Resume,
		"Continue from the blocks already stored in the database")
}

// resolve loads the profile, applies explicitly set flags and validates
// the result.
func (pf *profileFlags) resolve(cmd *cobra.Command) (config.Profile, error) {
	p := config.Default()

	if pf.path != "" {
		loaded, err := config.Load(pf.path)
		if err != nil {
			return config.Profile{}, err
		}

		p = loaded
	}

	cmd.Flags().Visit(func(f *pflag.Flag) {
		if apply, ok := overrides[f.Name]; ok {
			apply(&p, &pf.flags)
		}
	})

	if err := p.Validate(); err != nil {
		return config.Profile{}, fmt.Errorf("invalid profile: %w", err)
	}

	return p, nil
}
