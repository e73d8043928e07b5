package harness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/weiihann/ledgerbench/query"
	"github.com/weiihann/ledgerbench/results"
	"github.com/weiihann/ledgerbench/store"
	"github.com/weiihann/ledgerbench/workload"
)

// DatabaseStore is the database evaluated by DatabaseRunner.
type DatabaseStore interface {
	store.Connector
	CountAssets(ctx context.Context, collection string) (int, error)
}

// DBConfig holds parameters for a database-only evaluation.
type DBConfig struct {
	Collection string
	Shape      workload.Shape
	NumQueries int
	OutputPath string

	// Throttle is multiplied by (documents/1000 + queries) to get the
	// pause after each query phase.
	Throttle time.Duration
}

// DatabaseRunner measures query latency directly against the downstream
// database, without a ledger.
type DatabaseRunner struct {
	Store  DatabaseStore
	Logger *slog.Logger
	Exit   func(code int)

	notify func(c chan<- os.Signal, sig ...os.Signal)
}

// NewDatabaseRunner creates a DatabaseRunner. The runner owns st and
// disconnects it once an evaluation ends.
func NewDatabaseRunner(st DatabaseStore, logger *slog.Logger) *DatabaseRunner {
	return &DatabaseRunner{
		Store:  st,
		Logger: logger.With(slog.String("backend", "database")),
		Exit:   os.Exit,
		notify: signal.Notify,
	}
}

// Run counts the documents of the collection, then times cfg.NumQueries
// point lookups and a tenth as many selector queries.
func (r *DatabaseRunner) Run(ctx context.Context, cfg DBConfig) (results.DatabaseResult, error) {
	if cfg.Collection == "" {
		return nil, errors.New("collection must be set")
	}

	if cfg.NumQueries < 1 {
		return nil, fmt.Errorf("queries must be positive, got %d", cfg.NumQueries)
	}

	if _, err := workload.ParseShape(string(cfg.Shape)); err != nil {
		return nil, err
	}

	log := r.Logger
	if log == nil {
		log = slog.Default()
	}

	writer := results.NewWriter(cfg.OutputPath, log)

	var mu sync.Mutex
	result := results.DatabaseResult{}

	flush := func() error {
		mu.Lock()
		defer mu.Unlock()

		return writer.FlushDatabase(result)
	}

	hook := newShutdown(r.notify, flush, r.Exit, log)
	defer hook.Stop()

	runErr := r.evaluate(ctx, cfg, log, func(count int, times results.QueryTimes) {
		mu.Lock()
		result[count] = times
		mu.Unlock()
	})

	var errs *multierror.Error
	if runErr != nil {
		log.Error("database evaluation failed", slog.String("error", runErr.Error()))
		errs = multierror.Append(errs, runErr)
	}

	if err := flush(); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("final flush: %w", err))
	}

	if err := r.Store.Disconnect(); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("disconnect database: %w", err))
	}

	mu.Lock()
	defer mu.Unlock()

	return result, errs.ErrorOrNil()
}

func (r *DatabaseRunner) evaluate(
	ctx context.Context,
	cfg DBConfig,
	log *slog.Logger,
	record func(int, results.QueryTimes),
) error {
	count, err := r.Store.CountAssets(ctx, cfg.Collection)
	if err != nil {
		return err
	}

	if count == 0 {
		return fmt.Errorf("collection %s is empty", cfg.Collection)
	}

	log.Info("starting database evaluation",
		slog.String("collection", cfg.Collection),
		slog.Int("documents", count),
		slog.Int("queries", cfg.NumQueries),
	)

	pause := time.Duration(count/1000+cfg.NumQueries) * cfg.Throttle

	times := results.QueryTimes{KeyValue: []float64{}}

	for range cfg.NumQueries {
		if err := ctx.Err(); err != nil {
			return err
		}

		key := workload.Key(cfg.Shape, rand.IntN(count)+1)

		start := time.Now()
		_, err := r.Store.RetrieveAsset(ctx, cfg.Collection, key)
		elapsed := time.Since(start)

		if err != nil {
			log.Warn("query failed",
				slog.String("key", key),
				slog.String("op", "retrieveAsset"),
				slog.String("error", err.Error()),
			)

			continue
		}

		times.KeyValue = append(times.KeyValue, results.Millis(elapsed))
	}

	logLatencies(log, "key-value", count, times.KeyValue)

	if pause > 0 && !sleep(ctx, pause) {
		return ctx.Err()
	}

	for range (cfg.NumQueries + 9) / 10 {
		if err := ctx.Err(); err != nil {
			return err
		}

		params := workload.NewSimpleRecord()
		sel := query.ForShape(string(cfg.Shape), float64(params.Value1), float64(params.Value2))

		start := time.Now()
		_, err := r.Store.ExecuteQuery(ctx, cfg.Collection, sel)
		elapsed := time.Since(start)

		if err != nil {
			log.Warn("query failed",
				slog.String("op", "executeQuery"),
				slog.String("error", err.Error()),
			)

			continue
		}

		times.Complex = append(times.Complex, results.Millis(elapsed))
	}

	logLatencies(log, "complex", count, times.Complex)

	record(count, times)

	if pause > 0 && !sleep(ctx, pause) {
		return ctx.Err()
	}

	return nil
}
