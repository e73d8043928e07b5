package eventsync

import "sync/atomic"

// InitialBlock is the block a fresh Watermark resumes from.
const InitialBlock uint64 = 1

// Watermark is the highest block number whose events have been consumed.
// It never decreases, whatever order updates arrive in.
type Watermark struct {
	v atomic.Uint64
}

// NewWatermark returns a Watermark positioned at InitialBlock.
func NewWatermark() *Watermark {
	w := &Watermark{}
	w.v.Store(InitialBlock)

	return w
}

// NewWatermarkAt returns a Watermark positioned at block, or at
// InitialBlock when block is lower.
func NewWatermarkAt(block uint64) *Watermark {
	w := NewWatermark()
	w.Advance(block)

	return w
}

// Load returns the current block number.
func (w *Watermark) Load() uint64 {
	return w.v.Load()
}

// Advance raises the watermark to block if it is higher and returns the
// resulting value.
func (w *Watermark) Advance(block uint64) uint64 {
	for {
		cur := w.v.Load()
		if block <= cur {
			return cur
		}

		if w.v.CompareAndSwap(cur, block) {
			return block
		}
	}
}
