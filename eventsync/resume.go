package eventsync

import (
	"context"
	"fmt"
)

// Progress reports how far a downstream store has been synchronized.
type Progress interface {
	// LastBlock returns the highest block recorded by a BlockExplorer.
	LastBlock(ctx context.Context) (uint64, error)

	// SyncedBlock returns the highest block applied to collection.
	SyncedBlock(ctx context.Context, collection string) (uint64, error)
}

// ResumePoint is where a restarted synchronization picks up. Zero fields
// mean nothing was stored yet.
type ResumePoint struct {
	Synced   uint64
	Recorded uint64
}

// LoadResumePoint reads the progress stored for collection.
func LoadResumePoint(ctx context.Context, p Progress, collection string) (ResumePoint, error) {
	synced, err := p.SyncedBlock(ctx, collection)
	if err != nil {
		return ResumePoint{}, fmt.Errorf("load resume point: %w", err)
	}

	recorded, err := p.LastBlock(ctx)
	if err != nil {
		return ResumePoint{}, fmt.Errorf("load resume point: %w", err)
	}

	return ResumePoint{Synced: synced, Recorded: recorded}, nil
}

// Beyond reports whether the stored progress is past a ledger of the
// given height, which means the store was filled from another ledger.
func (r ResumePoint) Beyond(height uint64) bool {
	return r.Synced > height || r.Recorded > height
}

// Watermark returns the watermark change events resume from. The last
// synced block is replayed since it may have been applied partially.
func (r ResumePoint) Watermark() *Watermark {
	return NewWatermarkAt(r.Synced)
}
