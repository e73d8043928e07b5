package eventsync

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/weiihann/ledgerbench/ledger"
)

// BlockRecorder persists observed blocks.
type BlockRecorder interface {
	RecordBlock(ctx context.Context, number uint64, txCount int) error
}

// BlockExplorer follows block events and records each block downstream.
type BlockExplorer struct {
	store     BlockRecorder
	watermark *Watermark
	log       *slog.Logger

	mu  sync.Mutex
	sub ledger.Subscription
}

// NewBlockExplorer returns an explorer writing to store.
func NewBlockExplorer(store BlockRecorder, logger *slog.Logger) *BlockExplorer {
	if logger == nil {
		logger = slog.Default()
	}

	return &BlockExplorer{
		store:     store,
		watermark: NewWatermark(),
		log:       logger.With(slog.String("component", "block_explorer")),
	}
}

// ResumeFrom moves the explorer past blocks a previous run recorded. It
// must be called before Start.
func (b *BlockExplorer) ResumeFrom(block uint64) {
	b.watermark.Advance(block)
}

// Start subscribes to block events from the explorer's watermark.
func (b *BlockExplorer) Start(ctx context.Context, client ledger.BlockSubscriber) error {
	sub, err := client.SubscribeToBlockEvents(ctx, b.watermark.Load(), b.Handle)
	if err != nil {
		return fmt.Errorf("subscribe to block events: %w", err)
	}

	b.mu.Lock()
	b.sub = sub
	b.mu.Unlock()

	b.log.Debug("block explorer started", slog.Uint64("from_block", b.watermark.Load()))

	return nil
}

// Handle records one block.
func (b *BlockExplorer) Handle(ctx context.Context, blk ledger.Block) error {
	if err := b.store.RecordBlock(ctx, blk.Number, blk.TxCount); err != nil {
		b.log.Error("record block",
			slog.Uint64("block", blk.Number),
			slog.String("error", err.Error()),
		)

		return err
	}

	b.watermark.Advance(blk.Number)

	return nil
}

// Height returns the highest block recorded so far.
func (b *BlockExplorer) Height() uint64 {
	return b.watermark.Load()
}

// Close stops the subscription.
func (b *BlockExplorer) Close() error {
	b.mu.Lock()
	sub := b.sub
	b.sub = nil
	b.mu.Unlock()

	if sub == nil {
		return nil
	}

	return sub.Close()
}
