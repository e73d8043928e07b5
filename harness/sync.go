package harness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/weiihann/ledgerbench/eventsync"
	"github.com/weiihann/ledgerbench/ledger"
	"github.com/weiihann/ledgerbench/results"
	"github.com/weiihann/ledgerbench/store"
	"github.com/weiihann/ledgerbench/workload"
)

// DefaultCooldown is the pause before event hubs are disconnected.
const DefaultCooldown = 5 * time.Second

// SyncStore is the downstream database kept in sync with the ledger.
type SyncStore interface {
	store.Connector
	eventsync.Sink
	eventsync.BlockRecorder
	eventsync.Progress
}

// SyncConfig extends RunConfig with the synchronization phase settings.
type SyncConfig struct {
	RunConfig

	// Collection receives synchronized records. Defaults to the contract
	// name.
	Collection string

	// Cooldown lets in-flight events drain before teardown.
	Cooldown time.Duration

	// WaitTimeout bounds the wait for the sentinel event. Zero waits
	// until the context ends.
	WaitTimeout time.Duration

	// Resume continues from the progress already stored instead of
	// replaying the ledger from its first block.
	Resume bool
}

// SyncRunner runs the benchmark and then measures how long it takes to
// replicate every dispatched record into Store.
type SyncRunner struct {
	*Runner

	Store SyncStore
}

// NewSyncRunner creates a SyncRunner. The runner owns st and disconnects
// it at teardown.
func NewSyncRunner(backend Backend, st SyncStore, logger *slog.Logger) *SyncRunner {
	return &SyncRunner{Runner: NewRunner(backend, logger), Store: st}
}

// Run executes the benchmark loop, synchronizes the ledger into Store
// and records the summed per-event latency as the table's sync total.
// Complex probes only run for simple records.
func (r *SyncRunner) Run(ctx context.Context, cfg SyncConfig) (*results.Table, error) {
	if cfg.Collection == "" {
		cfg.Collection = cfg.Contract
	}

	return r.execute(ctx, cfg.RunConfig, phases{
		probeComplex: func(shape workload.Shape) bool { return shape == workload.Simple },
		after: func(ctx context.Context, s *session) error {
			return r.synchronize(ctx, s, cfg)
		},
		cooldown: cfg.Cooldown,
		teardown: r.Store.Disconnect,
	})
}

func (r *SyncRunner) synchronize(ctx context.Context, s *session, cfg SyncConfig) error {
	if s.lastKey == "" {
		return errors.New("synchronize: no record was dispatched")
	}

	client := s.clients[0]

	var rp eventsync.ResumePoint
	if cfg.Resume {
		var err error
		if rp, err = r.resumePoint(ctx, s, client, cfg.Collection); err != nil {
			return err
		}
	}

	if bs, ok := client.(ledger.BlockSubscriber); ok {
		explorer := eventsync.NewBlockExplorer(r.Store, s.log)
		explorer.ResumeFrom(rp.Recorded)
		if err := explorer.Start(ctx, bs); err != nil {
			return err
		}
		s.closers = append(s.closers, explorer)
	} else {
		s.log.Warn("backend does not stream block events")
	}

	syncer, err := eventsync.New(eventsync.Config{
		Watermark:  rp.Watermark(),
		Sink:       r.Store,
		Collection: cfg.Collection,
		Sentinel:   s.lastKey,
		Logger:     s.log,
	})
	if err != nil {
		return err
	}

	start := time.Now()
	if err := syncer.Start(ctx, client, s.contract); err != nil {
		return err
	}
	s.closers = append(s.closers, syncer)

	waitCtx := ctx
	if cfg.WaitTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, cfg.WaitTimeout)
		defer cancel()
	}

	latencies, err := syncer.Wait(waitCtx)
	if err != nil {
		return fmt.Errorf("synchronize: %w", err)
	}

	total := results.TotalMillis(latencies)
	s.table.SetSync(total)

	s.log.Info("synchronization",
		slog.Bool("resumed", cfg.Resume),
		slog.Int64("events", syncer.Processed()),
		slog.Int64("failed", syncer.Failed()),
		slog.Float64("sync_ms", total),
		slog.Duration("elapsed", time.Since(start)),
		slog.Uint64("watermark", syncer.Watermark().Load()),
	)

	return s.writer.Flush(s.table)
}

// resumePoint reads the stored progress of collection. Progress beyond the
// ledger height belongs to another ledger and is discarded.
func (r *SyncRunner) resumePoint(
	ctx context.Context,
	s *session,
	client ledger.Client,
	collection string,
) (eventsync.ResumePoint, error) {
	rp, err := eventsync.LoadResumePoint(ctx, r.Store, collection)
	if err != nil {
		return eventsync.ResumePoint{}, err
	}

	if hr, ok := client.(ledger.HeightReader); ok {
		height, err := hr.Height(ctx)
		if err != nil {
			return eventsync.ResumePoint{}, fmt.Errorf("read ledger height: %w", err)
		}

		if rp.Beyond(height) {
			s.log.Warn("stored progress is ahead of the ledger, synchronizing from the first block",
				slog.Uint64("synced_block", rp.Synced),
				slog.Uint64("recorded_block", rp.Recorded),
				slog.Uint64("height", height),
			)

			return eventsync.ResumePoint{}, nil
		}
	}

	s.log.Info("resuming synchronization",
		slog.String("collection", collection),
		slog.Uint64("synced_block", rp.Synced),
		slog.Uint64("recorded_block", rp.Recorded),
	)

	return rp, nil
}
