// Package eventsync drains ledger change events into a downstream store
// while tracking a block watermark, and signals completion once the event
// carrying a sentinel key has been applied.
package eventsync

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/weiihann/ledgerbench/ledger"
)

// Sink is the downstream write path.
type Sink interface {
	UpsertAsset(ctx context.Context, collection, key string, value json.RawMessage, blockNumber uint64) error
}

// Config configures a Synchronizer.
type Config struct {
	// Watermark is shared with callers that need the current sync
	// position. A fresh one is created when nil.
	Watermark *Watermark

	Sink       Sink
	Collection string

	// Sentinel is matched as a suffix of event keys.
	Sentinel string

	Logger *slog.Logger
}

// Synchronizer applies change events to a Sink. It is one-shot: the done
// signal is resolved at most once.
type Synchronizer struct {
	cfg Config
	log *slog.Logger

	done     chan struct{}
	doneOnce sync.Once

	mu        sync.Mutex
	latencies []time.Duration
	sub       ledger.Subscription

	processed atomic.Int64
	failed    atomic.Int64
}

// New validates cfg and returns a Synchronizer.
func New(cfg Config) (*Synchronizer, error) {
	if cfg.Sink == nil {
		return nil, errors.New("eventsync: sink is required")
	}

	if cfg.Sentinel == "" {
		return nil, errors.New("eventsync: sentinel is required")
	}

	if cfg.Watermark == nil {
		cfg.Watermark = NewWatermark()
	}

	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Synchronizer{
		cfg:  cfg,
		log:  cfg.Logger.With(slog.String("component", "synchronizer")),
		done: make(chan struct{}),
	}, nil
}

// Watermark returns the watermark the Synchronizer advances.
func (s *Synchronizer) Watermark() *Watermark {
	return s.cfg.Watermark
}

// Start subscribes to change events of contract, resuming from the
// current watermark.
func (s *Synchronizer) Start(ctx context.Context, client ledger.Client, contract ledger.Contract) error {
	from := s.cfg.Watermark.Load()

	s.log.Info("starting change event stream",
		slog.String("contract", contract.Name),
		slog.Uint64("from_block", from),
	)

	sub, err := client.SubscribeToChangeEvents(ctx, contract, from, s.Handle)
	if err != nil {
		return fmt.Errorf("subscribe to %s events: %w", contract.Name, err)
	}

	s.mu.Lock()
	s.sub = sub
	s.mu.Unlock()

	return nil
}

// Handle applies one change event. The watermark is advanced first, then
// the payload is written downstream. A sentinel key resolves the done
// signal even when its write fails.
func (s *Synchronizer) Handle(ctx context.Context, ev ledger.ChangeEvent) error {
	s.cfg.Watermark.Advance(ev.BlockNumber)

	err := s.apply(ctx, ev)
	if err != nil {
		s.failed.Add(1)
		s.log.Error("synchronize event",
			slog.String("key", ev.Key),
			slog.Uint64("block", ev.BlockNumber),
			slog.String("error", err.Error()),
		)
	}

	if strings.HasSuffix(ev.Key, s.cfg.Sentinel) {
		s.doneOnce.Do(func() {
			s.log.Info("synchronization completed",
				slog.String("sentinel", ev.Key),
				slog.Int64("events", s.processed.Load()),
				slog.Uint64("watermark", s.cfg.Watermark.Load()),
			)
			close(s.done)
		})
	}

	return err
}

func (s *Synchronizer) apply(ctx context.Context, ev ledger.ChangeEvent) error {
	start := time.Now()

	var value bytes.Buffer
	if err := json.Compact(&value, ev.Payload); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}

	if err := s.cfg.Sink.UpsertAsset(ctx, s.cfg.Collection, ev.Key, value.Bytes(), ev.BlockNumber); err != nil {
		return fmt.Errorf("store asset: %w", err)
	}

	elapsed := time.Since(start)

	s.mu.Lock()
	s.latencies = append(s.latencies, elapsed)
	s.mu.Unlock()

	s.processed.Add(1)

	return nil
}

// Done is closed once the sentinel event has been handled.
func (s *Synchronizer) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until the sentinel event has been handled or ctx ends, and
// returns the per-event latencies collected so far.
func (s *Synchronizer) Wait(ctx context.Context) ([]time.Duration, error) {
	select {
	case <-s.done:
		return s.Latencies(), nil
	case <-ctx.Done():
		return s.Latencies(), fmt.Errorf("wait for sentinel %s: %w", s.cfg.Sentinel, ctx.Err())
	}
}

// Latencies returns the decode and write duration of each applied event.
func (s *Synchronizer) Latencies() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]time.Duration(nil), s.latencies...)
}

// Processed returns the number of events written downstream.
func (s *Synchronizer) Processed() int64 {
	return s.processed.Load()
}

// Failed returns the number of events that could not be written.
func (s *Synchronizer) Failed() int64 {
	return s.failed.Load()
}

// Close stops the subscription.
func (s *Synchronizer) Close() error {
	s.mu.Lock()
	sub := s.sub
	s.sub = nil
	s.mu.Unlock()

	if sub == nil {
		return nil
	}

	return sub.Close()
}
