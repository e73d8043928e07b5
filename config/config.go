// Package config loads benchmark profiles from YAML or TOML files.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/weiihann/ledgerbench/harness"
	"github.com/weiihann/ledgerbench/workload"
)

// Defaults applied to fields a profile leaves unset.
const (
	DefaultBackend    = "mem"
	DefaultClients    = 1
	DefaultContract   = "delta"
	DefaultRecords    = 1000
	DefaultBatchSize  = 10
	DefaultCheckpoint = 100
	DefaultQueries    = 100
)

// Profile describes a complete benchmark setup.
type Profile struct {
	Backend          string        `yaml:"backend" toml:"backend"`
	Clients          int           `yaml:"clients" toml:"clients"`
	Contract         string        `yaml:"contract" toml:"contract"`
	Shape            string        `yaml:"shape" toml:"shape"`
	Records          int           `yaml:"records" toml:"records"`
	BatchSize        int           `yaml:"batch_size" toml:"batch_size"`
	Checkpoint       int           `yaml:"checkpoint" toml:"checkpoint"`
	Queries          int           `yaml:"queries" toml:"queries"`
	Output           string        `yaml:"output" toml:"output"`
	Throttle         time.Duration `yaml:"throttle" toml:"throttle"`
	OpTimeout        time.Duration `yaml:"op_timeout" toml:"op_timeout"`
	ComplexAggregate string        `yaml:"complex_aggregate" toml:"complex_aggregate"`

	Ledger LedgerProfile `yaml:"ledger" toml:"ledger"`
	Sync   SyncProfile   `yaml:"sync" toml:"sync"`
}

// LedgerProfile tunes the simulated ledger network.
type LedgerProfile struct {
	BlockSize     int           `yaml:"block_size" toml:"block_size"`
	BatchTimeout  time.Duration `yaml:"batch_timeout" toml:"batch_timeout"`
	InvokeLatency time.Duration `yaml:"invoke_latency" toml:"invoke_latency"`
	CommitLatency time.Duration `yaml:"commit_latency" toml:"commit_latency"`
}

// SyncProfile configures the downstream database used by the sync and db
// commands.
type SyncProfile struct {
	Database    string        `yaml:"database" toml:"database"`
	Collection  string        `yaml:"collection" toml:"collection"`
	Cooldown    time.Duration `yaml:"cooldown" toml:"cooldown"`
	WaitTimeout time.Duration `yaml:"wait_timeout" toml:"wait_timeout"`
	Resume      bool          `yaml:"resume" toml:"resume"`
}

// Default returns a profile with every default applied.
func Default() Profile {
	p := Profile{}
	p.applyDefaults()

	return p
}

// Load reads a profile from path. The format is chosen by extension:
// .yaml and .yml use YAML, .toml uses TOML. Unset fields get defaults.
func Load(path string) (Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, fmt.Errorf("read profile: %w", err)
	}

	var p Profile

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &p); err != nil {
			return Profile{}, fmt.Errorf("parse %s: %w", path, err)
		}
	case ".toml":
		md, err := toml.Decode(string(data), &p)
		if err != nil {
			return Profile{}, fmt.Errorf("parse %s: %w", path, err)
		}

		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return Profile{}, fmt.Errorf("parse %s: unknown keys %v", path, undecoded)
		}
	default:
		return Profile{}, fmt.Errorf("unsupported profile format %q", ext)
	}

	p.applyDefaults()

	return p, nil
}

func (p *Profile) applyDefaults() {
	if p.Backend == "" {
		p.Backend = DefaultBackend
	}
	if p.Clients == 0 {
		p.Clients = DefaultClients
	}
	if p.Contract == "" {
		p.Contract = DefaultContract
	}
	if p.Shape == "" {
		p.Shape = string(workload.Simple)
	}
	if p.Records == 0 {
		p.Records = DefaultRecords
	}
	if p.BatchSize == 0 {
		p.BatchSize = DefaultBatchSize
	}
	if p.Checkpoint == 0 {
		p.Checkpoint = DefaultCheckpoint
	}
	if p.Queries == 0 {
		p.Queries = DefaultQueries
	}
	if p.Throttle == 0 {
		p.Throttle = harness.DefaultThrottle
	}
	if p.ComplexAggregate == "" {
		p.ComplexAggregate = string(harness.AggregateSum)
	}
	if p.Sync.Cooldown == 0 {
		p.Sync.Cooldown = harness.DefaultCooldown
	}
}

// Validate reports the first invalid field.
func (p Profile) Validate() error {
	if _, err := workload.ParseShape(p.Shape); err != nil {
		return err
	}

	switch {
	case p.Clients < 1:
		return fmt.Errorf("clients must be positive, got %d", p.Clients)
	case p.Records < 1:
		return fmt.Errorf("records must be positive, got %d", p.Records)
	case p.BatchSize < 1:
		return fmt.Errorf("batch_size must be positive, got %d", p.BatchSize)
	case p.Checkpoint < 1:
		return fmt.Errorf("checkpoint must be positive, got %d", p.Checkpoint)
	case p.Queries < 0:
		return fmt.Errorf("queries must not be negative, got %d", p.Queries)
	case p.Throttle < 0, p.OpTimeout < 0, p.Sync.Cooldown < 0, p.Sync.WaitTimeout < 0:
		return errors.New("durations must not be negative")
	case p.Ledger.BlockSize < 0:
		return fmt.Errorf("ledger.block_size must not be negative, got %d", p.Ledger.BlockSize)
	}

	switch harness.Aggregate(p.ComplexAggregate) {
	case harness.AggregateSum, harness.AggregateSamples:
	default:
		return fmt.Errorf("unknown complex_aggregate %q", p.ComplexAggregate)
	}

	return nil
}

// RunConfig converts the profile to driver parameters.
func (p Profile) RunConfig() harness.RunConfig {
	return harness.RunConfig{
		NumClients:       p.Clients,
		Contract:         p.Contract,
		Shape:            workload.Shape(p.Shape),
		TotalRecords:     p.Records,
		BatchSize:        p.BatchSize,
		CheckpointSize:   p.Checkpoint,
		NumQueries:       p.Queries,
		OutputPath:       p.Output,
		Throttle:         p.Throttle,
		OpTimeout:        p.OpTimeout,
		ComplexAggregate: harness.Aggregate(p.ComplexAggregate),
	}
}

// SyncConfig converts the profile to synchronizing driver parameters.
func (p Profile) SyncConfig() harness.SyncConfig {
	return harness.SyncConfig{
		RunConfig:   p.RunConfig(),
		Collection:  p.Sync.Collection,
		Cooldown:    p.Sync.Cooldown,
		WaitTimeout: p.Sync.WaitTimeout,
		Resume:      p.Sync.Resume,
	}
}

// BackendOptions returns the simulated network settings.
func (p Profile) BackendOptions() harness.BackendOptions {
	return harness.BackendOptions{
		BlockSize:     p.Ledger.BlockSize,
		BatchTimeout:  p.Ledger.BatchTimeout,
		InvokeLatency: p.Ledger.InvokeLatency,
		CommitLatency: p.Ledger.CommitLatency,
	}
}
