package harness

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/codahale/hdrhistogram"

	"github.com/weiihann/ledgerbench/ledger"
	"github.com/weiihann/ledgerbench/query"
	"github.com/weiihann/ledgerbench/results"
	"github.com/weiihann/ledgerbench/workload"
)

// Parameters of the complex probe selector.
const (
	DefaultQueryParam1 = 5
	DefaultQueryParam2 = 1000
)

// probes runs the point lookup probe and, when enabled, both complex
// probes for checkpoint cp. Probes without a successful sample leave
// their field unset.
func (s *session) probes(ctx context.Context, client ledger.Client, cp int) error {
	if kv := s.keyValueProbe(ctx, client); len(kv) > 0 {
		m, err := results.Median(kv)
		if err != nil {
			return err
		}

		if err := s.table.SetKeyValue(cp, results.Scalar(m)); err != nil {
			return err
		}
	}

	if err := s.throttle(ctx); err != nil {
		return err
	}

	if !s.probeComplex {
		return nil
	}

	for _, rich := range []bool{false, true} {
		if samples := s.complexProbe(ctx, client, rich); len(samples) > 0 {
			v := results.Series(samples)
			if s.cfg.ComplexAggregate == AggregateSum {
				v = results.Scalar(v.Total())
			}

			set := s.table.SetComplex
			if rich {
				set = s.table.SetRich
			}

			if err := set(cp, v); err != nil {
				return err
			}
		}

		if err := s.throttle(ctx); err != nil {
			return err
		}
	}

	return nil
}

func (s *session) keyValueProbe(ctx context.Context, client ledger.Client) []float64 {
	if s.cfg.NumQueries == 0 {
		return nil
	}

	samples := make([]float64, 0, s.cfg.NumQueries)

	for range s.cfg.NumQueries {
		if ctx.Err() != nil {
			break
		}

		key := workload.Key(s.cfg.Shape, rand.IntN(s.count)+1)

		opCtx, cancel := s.opContext(ctx)
		start := time.Now()
		raw, err := client.Query(opCtx, s.contract, ledger.FnRead, key)
		elapsed := time.Since(start)
		cancel()

		if err == nil {
			_, err = s.backend.Decode(raw)
		}

		if err != nil {
			s.opFailed(key, ledger.FnRead, err)
			continue
		}

		samples = append(samples, results.Millis(elapsed))
	}

	logLatencies(s.log, "key-value", s.count, samples)

	return samples
}

func (s *session) complexProbe(ctx context.Context, client ledger.Client, rich bool) []float64 {
	n := s.cfg.ComplexSamples()
	if n == 0 {
		return nil
	}

	samples := make([]float64, 0, n)

	fn := ledger.FnComplexQuery
	if rich {
		fn = ledger.FnRichQuery
	}

	sel := query.ForShape(string(s.cfg.Shape), DefaultQueryParam1, DefaultQueryParam2)

	for range n {
		if ctx.Err() != nil {
			break
		}

		opCtx, cancel := s.opContext(ctx)
		start := time.Now()
		_, err := s.backend.ComplexQuery(opCtx, client, s.contract, sel, rich)
		elapsed := time.Since(start)
		cancel()

		if err != nil {
			s.opFailed("", fn, err)
			continue
		}

		samples = append(samples, results.Millis(elapsed))
	}

	name := "complex"
	if rich {
		name = "rich"
	}

	logLatencies(s.log, name, s.count, samples)

	return samples
}

func (s *session) opFailed(key, op string, err error) {
	s.failures++
	s.log.Warn("query failed",
		slog.String("key", key),
		slog.String("op", op),
		slog.String("error", err.Error()),
	)
}

const (
	histMin     = int64(1)
	histMax     = int64(10 * time.Minute / time.Microsecond)
	histSigFigs = 2
)

// logLatencies logs the distribution of samples given in milliseconds.
func logLatencies(log *slog.Logger, name string, records int, samples []float64) {
	if len(samples) == 0 {
		log.Warn("probe produced no samples",
			slog.String("query", name),
			slog.Int("records", records),
		)

		return
	}

	hist := hdrhistogram.New(histMin, histMax, histSigFigs)
	for _, ms := range samples {
		us := max(int64(ms*1000), histMin)
		if err := hist.RecordValue(min(us, histMax)); err != nil {
			log.Debug("drop latency sample", slog.String("error", err.Error()))
		}
	}

	total := results.Sum(samples)

	log.Info("probe",
		slog.String("query", name),
		slog.Int("records", records),
		slog.Int("samples", len(samples)),
		slog.Float64("total_ms", total),
		slog.Duration("p50", time.Duration(hist.ValueAtQuantile(50))*time.Microsecond),
		slog.Duration("p99", time.Duration(hist.ValueAtQuantile(99))*time.Microsecond),
		slog.Duration("max", time.Duration(hist.Max())*time.Microsecond),
	)
}
