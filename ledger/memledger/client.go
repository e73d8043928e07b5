package memledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/weiihann/ledgerbench/ledger"
	"github.com/weiihann/ledgerbench/query"
)

// Client is a connection to a Network. It implements ledger.Client and
// ledger.BlockSubscriber.
type Client struct {
	id  int
	net *Network

	mu   sync.Mutex
	subs []*subscription
}

var (
	_ ledger.Client          = (*Client)(nil)
	_ ledger.BlockSubscriber = (*Client)(nil)
	_ ledger.HeightReader    = (*Client)(nil)
)

// ID returns the index the client was connected with.
func (c *Client) ID() int {
	return c.id
}

// Height implements ledger.HeightReader.
func (c *Client) Height(ctx context.Context) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	return c.net.Height(), nil
}

func (c *Client) fault(op, key string) error {
	if c.net.cfg.Fault == nil {
		return nil
	}

	return c.net.cfg.Fault(op, key)
}

// Invoke implements ledger.Client. Only FnUpsert is supported; its
// arguments are the record key and its JSON value.
func (c *Client) Invoke(
	ctx context.Context,
	contract ledger.Contract,
	fn string,
	args []string,
	opts ledger.InvokeOptions,
) ([]byte, error) {
	if fn != ledger.FnUpsert {
		return nil, fmt.Errorf("unknown function %q", fn)
	}

	if len(args) != 2 {
		return nil, fmt.Errorf("%s: want 2 arguments, got %d", fn, len(args))
	}

	key, value := args[0], args[1]

	if !json.Valid([]byte(value)) {
		return nil, fmt.Errorf("%s %s: value is not valid JSON", fn, key)
	}

	if err := c.fault(fn, key); err != nil {
		return nil, err
	}

	if err := sleepCtx(ctx, c.net.cfg.InvokeLatency); err != nil {
		return nil, err
	}

	if err := c.net.submit(contract, key, json.RawMessage(value), opts.Sync); err != nil {
		return nil, err
	}

	if opts.Sync {
		if err := sleepCtx(ctx, c.net.cfg.CommitLatency); err != nil {
			return nil, err
		}
	}

	return nil, nil
}

// Query implements ledger.Client. FnRead takes a key; the complex query
// functions take an encoded query.Selector.
func (c *Client) Query(
	ctx context.Context,
	contract ledger.Contract,
	fn string,
	args ...string,
) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if len(args) != 1 {
		return nil, fmt.Errorf("%s: want 1 argument, got %d", fn, len(args))
	}

	switch fn {
	case ledger.FnRead:
		if err := c.fault(fn, args[0]); err != nil {
			return nil, err
		}

		return c.net.read(contract, args[0])

	case ledger.FnComplexQuery, ledger.FnRichQuery:
		if err := c.fault(fn, ""); err != nil {
			return nil, err
		}

		sel, err := query.Decode(args[0])
		if err != nil {
			return nil, err
		}

		records, err := c.net.scan(contract, sel, fn == ledger.FnRichQuery)
		if err != nil {
			return nil, err
		}

		return json.Marshal(records)

	default:
		return nil, fmt.Errorf("unknown function %q", fn)
	}
}

// SubscribeToChangeEvents implements ledger.Client.
func (c *Client) SubscribeToChangeEvents(
	ctx context.Context,
	contract ledger.Contract,
	fromBlock uint64,
	h ledger.EventHandler,
) (ledger.Subscription, error) {
	return c.subscribe(ctx, fromBlock, func(ctx context.Context, b block) error {
		var errs []error
		for _, ev := range b.events {
			if ev.ContractID != contract.Name {
				continue
			}
			if err := h(ctx, ev); err != nil {
				errs = append(errs, err)
			}
		}

		return errors.Join(errs...)
	})
}

// SubscribeToBlockEvents implements ledger.BlockSubscriber.
func (c *Client) SubscribeToBlockEvents(
	ctx context.Context,
	fromBlock uint64,
	h ledger.BlockHandler,
) (ledger.Subscription, error) {
	return c.subscribe(ctx, fromBlock, func(ctx context.Context, b block) error {
		return h(ctx, ledger.Block{Number: b.number, TxCount: len(b.events)})
	})
}

// DisconnectEventHub implements ledger.Client.
func (c *Client) DisconnectEventHub() error {
	c.mu.Lock()
	subs := c.subs
	c.subs = nil
	c.mu.Unlock()

	for _, s := range subs {
		s.Close()
	}

	return nil
}

func (c *Client) subscribe(
	ctx context.Context,
	fromBlock uint64,
	deliver func(context.Context, block) error,
) (ledger.Subscription, error) {
	if fromBlock < 1 {
		fromBlock = 1
	}

	c.net.mu.Lock()
	closed := c.net.closed
	c.net.mu.Unlock()

	if closed {
		return nil, ledger.ErrClosed
	}

	s := &subscription{net: c.net, cursor: fromBlock, deliver: deliver}

	c.mu.Lock()
	c.subs = append(c.subs, s)
	c.mu.Unlock()

	stop := context.AfterFunc(ctx, func() { s.Close() })
	c.net.subs.Go(func() error {
		defer stop()
		s.run(ctx)

		return nil
	})

	return s, nil
}

type subscription struct {
	net     *Network
	cursor  uint64
	deliver func(context.Context, block) error

	// stopped is guarded by net.mu.
	stopped bool

	errMu   sync.Mutex
	lastErr error
}

// Close stops delivery. Events already handed to the handler finish.
func (s *subscription) Close() error {
	s.net.mu.Lock()
	s.stopped = true
	s.net.cond.Broadcast()
	s.net.mu.Unlock()

	return nil
}

// Err returns the last handler error, if any.
func (s *subscription) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()

	return s.lastErr
}

func (s *subscription) run(ctx context.Context) {
	for {
		s.net.mu.Lock()
		for !s.stopped && !s.net.closed && s.cursor > uint64(len(s.net.blocks)) {
			s.net.cond.Wait()
		}

		if s.stopped || s.net.closed {
			s.net.mu.Unlock()
			return
		}

		b := s.net.blocks[s.cursor-1]
		s.net.mu.Unlock()

		if err := s.deliver(ctx, b); err != nil {
			s.errMu.Lock()
			s.lastErr = err
			s.errMu.Unlock()
		}

		s.cursor++
	}
}
