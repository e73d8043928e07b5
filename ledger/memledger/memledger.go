// Package memledger is an in-process ledger network used as the reference
// backend. Transactions are batched into numbered blocks, committed state is
// queryable by key or selector, and every committed transaction emits a
// change event to subscribers.
package memledger

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/weiihann/ledgerbench/ledger"
	"github.com/weiihann/ledgerbench/query"
)

// FaultFunc lets tests fail individual operations. op is the contract
// function name and key the record key (empty for complex queries).
type FaultFunc func(op, key string) error

// Config tunes the simulated network.
type Config struct {
	// BlockSize is the number of pending transactions that triggers a block
	// cut. A synchronous invoke always cuts a block.
	BlockSize int

	// BatchTimeout cuts a block once the oldest pending transaction has
	// waited this long, like an ordering service does. Zero selects
	// DefaultBatchTimeout; a negative value disables the timer.
	BatchTimeout time.Duration

	// InvokeLatency is added to every invoke; CommitLatency is added to
	// invokes that wait for commit.
	InvokeLatency time.Duration
	CommitLatency time.Duration

	Fault FaultFunc
}

// Defaults applied to a zero Config.
const (
	DefaultBlockSize    = 10
	DefaultBatchTimeout = 2 * time.Second
)

type entry struct {
	raw json.RawMessage
	doc any
}

type block struct {
	number uint64
	events []ledger.ChangeEvent
}

// Network holds the shared ledger state all clients connect to.
type Network struct {
	cfg Config

	mu      sync.Mutex
	cond    *sync.Cond
	state   map[string]map[string]*entry
	blocks  []block
	pending []ledger.ChangeEvent
	closed  bool

	// batch counts cut blocks so that a stale timer does not cut the
	// batch that followed it.
	batch      uint64
	batchTimer *time.Timer

	subs errgroup.Group
}

// NewNetwork creates an empty network.
func NewNetwork(cfg Config) *Network {
	if cfg.BlockSize <= 0 {
		cfg.BlockSize = DefaultBlockSize
	}

	if cfg.BatchTimeout == 0 {
		cfg.BatchTimeout = DefaultBatchTimeout
	}

	n := &Network{
		cfg:   cfg,
		state: make(map[string]map[string]*entry),
	}
	n.cond = sync.NewCond(&n.mu)

	return n
}

// Connect returns a new client bound to the network.
func (n *Network) Connect(ctx context.Context, id int) (*Client, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return nil, ledger.ErrClosed
	}

	return &Client{id: id, net: n}, nil
}

// Height returns the number of the last committed block, 0 when empty.
func (n *Network) Height() uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()

	return uint64(len(n.blocks))
}

// Flush commits pending transactions into a block.
func (n *Network) Flush() {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.cutBlockLocked()
}

// Close stops every subscription and waits for their goroutines to exit.
func (n *Network) Close() error {
	n.mu.Lock()
	n.closed = true
	n.stopBatchTimerLocked()
	n.cond.Broadcast()
	n.mu.Unlock()

	return n.subs.Wait()
}

func (n *Network) cutBlockLocked() {
	if len(n.pending) == 0 {
		return
	}

	n.stopBatchTimerLocked()
	n.batch++

	num := uint64(len(n.blocks)) + 1
	events := make([]ledger.ChangeEvent, len(n.pending))

	for i, ev := range n.pending {
		ev.BlockNumber = num
		events[i] = ev

		var doc any
		// Values were validated on submission.
		_ = json.Unmarshal(ev.Payload, &doc)

		kv, ok := n.state[ev.ContractID]
		if !ok {
			kv = make(map[string]*entry)
			n.state[ev.ContractID] = kv
		}
		kv[ev.Key] = &entry{raw: ev.Payload, doc: doc}
	}

	n.blocks = append(n.blocks, block{number: num, events: events})
	n.pending = n.pending[:0]
	n.cond.Broadcast()
}

func (n *Network) submit(c ledger.Contract, key string, value json.RawMessage, sync bool) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return ledger.ErrClosed
	}

	n.pending = append(n.pending, ledger.ChangeEvent{
		ContractID: c.Name,
		Key:        key,
		Payload:    value,
	})

	if sync || len(n.pending) >= n.cfg.BlockSize {
		n.cutBlockLocked()
		return nil
	}

	if len(n.pending) == 1 && n.cfg.BatchTimeout > 0 {
		batch := n.batch
		n.batchTimer = time.AfterFunc(n.cfg.BatchTimeout, func() {
			n.cutOnTimeout(batch)
		})
	}

	return nil
}

func (n *Network) cutOnTimeout(batch uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed || n.batch != batch {
		return
	}

	n.cutBlockLocked()
}

func (n *Network) stopBatchTimerLocked() {
	if n.batchTimer != nil {
		n.batchTimer.Stop()
		n.batchTimer = nil
	}
}

func (n *Network) read(c ledger.Contract, key string) (json.RawMessage, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	e, ok := n.state[c.Name][key]
	if !ok {
		return nil, fmt.Errorf("%s: %w", key, ledger.ErrNotFound)
	}

	return e.raw, nil
}

// scan walks committed state in key order. Client-side iteration decodes
// every value again; the rich path evaluates against the decoded index.
func (n *Network) scan(c ledger.Contract, sel query.Selector, rich bool) ([]ledger.QueryRecord, error) {
	n.mu.Lock()
	kv := n.state[c.Name]
	keys := make([]string, 0, len(kv))
	entries := make(map[string]*entry, len(kv))
	for k, e := range kv {
		keys = append(keys, k)
		entries[k] = e
	}
	n.mu.Unlock()

	sort.Strings(keys)

	out := make([]ledger.QueryRecord, 0)
	for _, k := range keys {
		e := entries[k]

		doc := e.doc
		if !rich {
			if err := json.Unmarshal(e.raw, &doc); err != nil {
				return nil, fmt.Errorf("decode %s: %w", k, err)
			}
		}

		if sel.Match(doc) {
			out = append(out, ledger.QueryRecord{Key: k, Value: e.raw})
		}
	}

	return out, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
