// Package harness drives checkpointed insertion and query benchmarks
// against a ledger backend and records the measurements in a results
// table that is flushed after every change.
package harness

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"os/signal"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"

	"github.com/weiihann/ledgerbench/ledger"
	"github.com/weiihann/ledgerbench/results"
	"github.com/weiihann/ledgerbench/workload"
)

// DefaultThrottle is the pause per dispatched record applied after each
// checkpoint and probe.
const DefaultThrottle = 250 * time.Microsecond

var (
	// ErrConnect is returned when a client connection cannot be
	// established. No record has been dispatched in that case.
	ErrConnect = errors.New("connect clients")

	// ErrExhausted is returned if the generator runs dry mid-run.
	ErrExhausted = errors.New("record generator exhausted")
)

// Aggregate selects how complex query samples are stored.
type Aggregate string

const (
	AggregateSum     Aggregate = "sum"
	AggregateSamples Aggregate = "samples"
)

// RunConfig holds parameters for a single benchmark run.
type RunConfig struct {
	NumClients     int
	Contract       string
	Shape          workload.Shape
	TotalRecords   int
	BatchSize      int
	CheckpointSize int
	NumQueries     int

	// OutputPath is the base path of the .json and .csv snapshots. When
	// empty, snapshots are logged.
	OutputPath string

	// Throttle is the pause per dispatched record after a checkpoint and
	// after each probe. Zero disables throttling.
	Throttle time.Duration

	// OpTimeout bounds each ledger call. Zero waits indefinitely.
	OpTimeout time.Duration

	ComplexAggregate Aggregate
}

// Validate checks that cfg describes a runnable benchmark.
func (c RunConfig) Validate() error {
	switch {
	case c.NumClients < 1:
		return fmt.Errorf("clients must be positive, got %d", c.NumClients)
	case c.TotalRecords < 1:
		return fmt.Errorf("records must be positive, got %d", c.TotalRecords)
	case c.BatchSize < 1:
		return fmt.Errorf("batch size must be positive, got %d", c.BatchSize)
	case c.CheckpointSize < 1:
		return fmt.Errorf("checkpoint size must be positive, got %d", c.CheckpointSize)
	case c.NumQueries < 0:
		return fmt.Errorf("queries must not be negative, got %d", c.NumQueries)
	case c.Contract == "":
		return errors.New("contract must be set")
	case c.Throttle < 0 || c.OpTimeout < 0:
		return errors.New("durations must not be negative")
	}

	if _, err := workload.ParseShape(string(c.Shape)); err != nil {
		return err
	}

	switch c.ComplexAggregate {
	case "", AggregateSum, AggregateSamples:
	default:
		return fmt.Errorf("unknown complex aggregate %q", c.ComplexAggregate)
	}

	return nil
}

// Rounds returns the number of outer dispatch rounds.
func (c RunConfig) Rounds() int {
	return c.TotalRecords / c.NumClients / c.BatchSize
}

// Dispatched returns the number of records the run sends.
func (c RunConfig) Dispatched() int {
	return c.Rounds() * c.NumClients * c.BatchSize
}

// Measured returns the number of records covered by checkpoints.
func (c RunConfig) Measured() int {
	return c.Dispatched() / c.CheckpointSize * c.CheckpointSize
}

// ComplexSamples returns the number of samples per complex probe.
func (c RunConfig) ComplexSamples() int {
	return (c.NumQueries + 9) / 10
}

// Runner executes benchmark runs against a backend.
type Runner struct {
	Backend Backend
	Logger  *slog.Logger

	// Exit terminates the process after an interrupt flush.
	Exit func(code int)

	notify func(c chan<- os.Signal, sig ...os.Signal)
}

// NewRunner creates a Runner for backend.
func NewRunner(backend Backend, logger *slog.Logger) *Runner {
	return &Runner{
		Backend: backend,
		Logger:  logger.With(slog.String("backend", backend.Name())),
		Exit:    os.Exit,
		notify:  signal.Notify,
	}
}

// Run dispatches cfg.TotalRecords records and probes query latency at
// every checkpoint. The returned table holds every closed checkpoint,
// also when an error is returned.
func (r *Runner) Run(ctx context.Context, cfg RunConfig) (*results.Table, error) {
	return r.execute(ctx, cfg, phases{
		probeComplex: func(workload.Shape) bool { return true },
	})
}

// phases customizes execute for the run variants.
type phases struct {
	probeComplex func(workload.Shape) bool
	after        func(ctx context.Context, s *session) error
	cooldown     time.Duration
	teardown     func() error
}

func (r *Runner) execute(ctx context.Context, cfg RunConfig, p phases) (*results.Table, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid run config: %w", err)
	}

	if cfg.ComplexAggregate == "" {
		cfg.ComplexAggregate = AggregateSum
	}

	log := r.logger().With(slog.String("run_id", uuid.NewString()))

	s := &session{
		cfg:          cfg,
		backend:      r.Backend,
		log:          log,
		table:        results.NewTable(),
		writer:       results.NewWriter(cfg.OutputPath, log),
		probeComplex: p.probeComplex(cfg.Shape),
	}

	log.Info("starting benchmark",
		slog.Int("clients", cfg.NumClients),
		slog.String("contract", cfg.Contract),
		slog.String("shape", string(cfg.Shape)),
		slog.Int("records", cfg.TotalRecords),
		slog.Int("batch_size", cfg.BatchSize),
		slog.Int("checkpoint", cfg.CheckpointSize),
		slog.Int("queries", cfg.NumQueries),
	)

	if unmeasured := cfg.TotalRecords - cfg.Measured(); unmeasured > 0 {
		log.Warn("run does not end on a checkpoint boundary",
			slog.Int("dispatched", cfg.Dispatched()),
			slog.Int("measured", cfg.Measured()),
			slog.Int("unmeasured", unmeasured),
		)
	}

	hook := r.installShutdown(func() error { return s.writer.Flush(s.table) }, log)
	defer hook.Stop()

	clients, err := connectClients(ctx, r.Backend, cfg.NumClients)
	if err != nil {
		if p.teardown != nil {
			if tdErr := p.teardown(); tdErr != nil {
				log.Warn("teardown failed", slog.String("error", tdErr.Error()))
			}
		}

		return s.table, err
	}

	s.clients = clients

	runErr := s.prepare(ctx)
	if runErr == nil {
		runErr = s.loop(ctx)
	}

	if runErr == nil && p.after != nil {
		runErr = p.after(ctx, s)
	}

	var errs *multierror.Error

	if runErr != nil {
		log.Error("benchmark aborted",
			slog.Int("records", s.count),
			slog.String("error", runErr.Error()),
		)
		errs = multierror.Append(errs, runErr)
	}

	if err := s.writer.Flush(s.table); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("final flush: %w", err))
	}

	if p.cooldown > 0 {
		log.Info("cooling down", slog.Duration("cooldown", p.cooldown))
		sleep(context.WithoutCancel(ctx), p.cooldown)
	}

	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			errs = multierror.Append(errs, err)
		}
	}

	if err := disconnectClients(s.clients); err != nil {
		errs = multierror.Append(errs, err)
	}

	if p.teardown != nil {
		if err := p.teardown(); err != nil {
			errs = multierror.Append(errs, err)
		}
	}

	log.Info("benchmark finished",
		slog.Int("records", s.count),
		slog.Int("checkpoints", s.table.Len()),
		slog.Int("failed_ops", s.failures),
	)

	if runErr != nil && errs.Len() == 1 {
		return s.table, runErr
	}

	return s.table, errs.ErrorOrNil()
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger == nil {
		return slog.Default()
	}

	return r.Logger
}

func connectClients(ctx context.Context, backend Backend, n int) ([]ledger.Client, error) {
	clients := make([]ledger.Client, n)

	var g multierror.Group
	for i := range n {
		g.Go(func() error {
			c, err := backend.Connect(ctx, i)
			if err != nil {
				return fmt.Errorf("client %d: %w", i, err)
			}

			clients[i] = c

			return nil
		})
	}

	if err := g.Wait().ErrorOrNil(); err != nil {
		_ = disconnectClients(clients)
		return nil, fmt.Errorf("%w: %w", ErrConnect, err)
	}

	return clients, nil
}

func disconnectClients(clients []ledger.Client) error {
	var errs *multierror.Error

	for i, c := range clients {
		if c == nil {
			continue
		}

		if err := c.DisconnectEventHub(); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("disconnect client %d: %w", i, err))
		}
	}

	return errs.ErrorOrNil()
}

// session is the state of one run, owned by the driving goroutine.
type session struct {
	cfg     RunConfig
	backend Backend
	log     *slog.Logger

	clients  []ledger.Client
	contract ledger.Contract
	gen      *workload.Generator

	table  *results.Table
	writer *results.Writer

	// closers are stopped after the cooldown, before the clients.
	closers []io.Closer

	probeComplex bool

	count       int
	insertTotal time.Duration
	lastKey     string
	failures    int
}

func (s *session) prepare(ctx context.Context) error {
	contract, err := s.backend.Contract(ctx, s.clients[0], s.cfg.Contract)
	if err != nil {
		return fmt.Errorf("resolve contract %s: %w", s.cfg.Contract, err)
	}

	gen, err := workload.NewGenerator(s.cfg.Shape, s.cfg.TotalRecords)
	if err != nil {
		return err
	}

	s.contract = contract
	s.gen = gen

	return nil
}

func (s *session) loop(ctx context.Context) error {
	var windowStart time.Time

	for range s.cfg.Rounds() {
		for _, client := range s.clients {
			for k := range s.cfg.BatchSize {
				if err := ctx.Err(); err != nil {
					return err
				}

				if s.count%s.cfg.CheckpointSize == 0 {
					windowStart = time.Now()
				}

				rec, ok := s.gen.Next()
				if !ok {
					return ErrExhausted
				}

				if err := s.insert(ctx, client, rec, k == s.cfg.BatchSize-1); err != nil {
					return err
				}

				s.count++

				if s.count%s.cfg.CheckpointSize == 0 {
					s.insertTotal += time.Since(windowStart)

					if err := s.checkpoint(ctx, client); err != nil {
						return err
					}
				}
			}
		}
	}

	return nil
}

func (s *session) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.OpTimeout > 0 {
		return context.WithTimeout(ctx, s.cfg.OpTimeout)
	}

	return ctx, func() {}
}

// insert dispatches one record. Ledger failures are logged and skipped;
// only an unencodable record is returned as an error.
func (s *session) insert(ctx context.Context, client ledger.Client, rec workload.KeyedRecord, sync bool) error {
	value, err := json.Marshal(rec.Value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", rec.ID, err)
	}

	opCtx, cancel := s.opContext(ctx)
	defer cancel()

	_, err = client.Invoke(opCtx, s.contract, ledger.FnUpsert,
		[]string{rec.ID, string(value)}, ledger.InvokeOptions{Sync: sync})
	if err != nil {
		s.failures++
		s.log.Warn("insert failed",
			slog.String("key", rec.ID),
			slog.String("op", ledger.FnUpsert),
			slog.String("error", err.Error()),
		)

		return nil
	}

	s.lastKey = rec.ID

	return nil
}

func (s *session) checkpoint(ctx context.Context, client ledger.Client) error {
	cp := s.count
	insertMs := results.Millis(s.insertTotal)

	s.log.Info("checkpoint",
		slog.Int("records", cp),
		slog.Float64("insert_ms", insertMs),
		slog.Float64("ms_per_record", math.Round(insertMs/float64(cp)*1e4)/1e4),
	)

	if err := s.table.Record(cp, results.Entry{Insert: insertMs}); err != nil {
		return err
	}

	if err := s.writer.Flush(s.table); err != nil {
		return fmt.Errorf("flush checkpoint %d: %w", cp, err)
	}

	if err := s.throttle(ctx); err != nil {
		return err
	}

	if err := s.probes(ctx, client, cp); err != nil {
		return err
	}

	if err := s.writer.Flush(s.table); err != nil {
		return fmt.Errorf("flush checkpoint %d: %w", cp, err)
	}

	return nil
}

func (s *session) throttle(ctx context.Context) error {
	if s.cfg.Throttle <= 0 {
		return nil
	}

	if !sleep(ctx, time.Duration(s.count)*s.cfg.Throttle) {
		return ctx.Err()
	}

	return nil
}

// sleep waits for d and reports whether it completed before ctx ended.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
