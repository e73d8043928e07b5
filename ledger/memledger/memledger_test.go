package memledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiihann/ledgerbench/ledger"
	"github.com/weiihann/ledgerbench/query"
)

var testContract = ledger.Contract{Name: "delta"}

func newTestClient(t *testing.T, cfg Config) (*Network, *Client) {
	t.Helper()
	n := NewNetwork(cfg)
	t.Cleanup(func() { n.Close() })

	c, err := n.Connect(context.Background(), 0)
	require.NoError(t, err)
	return n, c
}

func upsert(t *testing.T, c *Client, key, value string, sync bool) {
	t.Helper()
	_, err := c.Invoke(context.Background(), testContract, ledger.FnUpsert,
		[]string{key, value}, ledger.InvokeOptions{Sync: sync})
	require.NoError(t, err)
}

func TestInvoke_SyncCutsBlock(t *testing.T) {
	n, c := newTestClient(t, Config{BlockSize: 100})

	upsert(t, c, "k1", `{"value1":1}`, false)
	assert.Equal(t, uint64(0), n.Height(), "async invoke should stay pending")

	_, err := c.Query(context.Background(), testContract, ledger.FnRead, "k1")
	assert.ErrorIs(t, err, ledger.ErrNotFound, "pending writes are not readable")

	upsert(t, c, "k2", `{"value1":2}`, true)
	assert.Equal(t, uint64(1), n.Height())

	raw, err := c.Query(context.Background(), testContract, ledger.FnRead, "k1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"value1":1}`, string(raw))
}

func TestInvoke_BlockSizeCutsBlock(t *testing.T) {
	n, c := newTestClient(t, Config{BlockSize: 3})

	for i := range 7 {
		upsert(t, c, fmt.Sprintf("k%d", i), `{}`, false)
	}

	assert.Equal(t, uint64(2), n.Height())
	n.Flush()
	assert.Equal(t, uint64(3), n.Height())

	h, err := c.Height(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(3), h)
}

func TestInvoke_BatchTimeoutCutsPending(t *testing.T) {
	n, c := newTestClient(t, Config{BlockSize: 100, BatchTimeout: 20 * time.Millisecond})

	upsert(t, c, "k1", `{"value1":1}`, false)
	upsert(t, c, "k2", `{"value1":2}`, false)

	require.Eventually(t, func() bool { return n.Height() == 1 },
		2*time.Second, 5*time.Millisecond)

	raw, err := c.Query(context.Background(), testContract, ledger.FnRead, "k2")
	require.NoError(t, err)
	assert.JSONEq(t, `{"value1":2}`, string(raw))

	upsert(t, c, "k3", `{}`, false)
	require.Eventually(t, func() bool { return n.Height() == 2 },
		2*time.Second, 5*time.Millisecond)
}

func TestInvoke_BatchTimeoutDisabled(t *testing.T) {
	n, c := newTestClient(t, Config{BlockSize: 100, BatchTimeout: -1})

	upsert(t, c, "k1", `{}`, false)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, uint64(0), n.Height())

	n.Flush()
	assert.Equal(t, uint64(1), n.Height())
}

func TestInvoke_RejectsInvalidJSON(t *testing.T) {
	_, c := newTestClient(t, Config{})

	_, err := c.Invoke(context.Background(), testContract, ledger.FnUpsert,
		[]string{"k", "{not json"}, ledger.InvokeOptions{})
	assert.Error(t, err)
}

func TestInvoke_Fault(t *testing.T) {
	boom := errors.New("endorsement failed")
	_, c := newTestClient(t, Config{Fault: func(op, key string) error {
		if op == ledger.FnUpsert && key == "bad" {
			return boom
		}
		return nil
	}})

	_, err := c.Invoke(context.Background(), testContract, ledger.FnUpsert,
		[]string{"bad", "{}"}, ledger.InvokeOptions{Sync: true})
	assert.ErrorIs(t, err, boom)

	upsert(t, c, "good", "{}", true)
}

func TestQuery_ComplexAndRichAgree(t *testing.T) {
	_, c := newTestClient(t, Config{})

	upsert(t, c, "a", `{"value1":5,"value2":10}`, false)
	upsert(t, c, "b", `{"value1":5,"value2":2000}`, false)
	upsert(t, c, "c", `{"value1":6,"value2":10}`, true)

	sel, err := query.ForShape("simple", 5, 1000).Encode()
	require.NoError(t, err)

	for _, fn := range []string{ledger.FnComplexQuery, ledger.FnRichQuery} {
		raw, err := c.Query(context.Background(), testContract, fn, sel)
		require.NoError(t, err, fn)

		recs, err := ledger.DecodeQueryResult(raw)
		require.NoError(t, err)
		require.Len(t, recs, 1, fn)
		assert.Equal(t, "a", recs[0].Key)
	}
}

func TestSubscribe_ReplaysFromBlockAndStreamsLive(t *testing.T) {
	n, c := newTestClient(t, Config{})

	upsert(t, c, "k1", `{}`, true) // block 1
	upsert(t, c, "k2", `{}`, true) // block 2

	var mu sync.Mutex
	var got []ledger.ChangeEvent
	sub, err := c.SubscribeToChangeEvents(context.Background(), testContract, 2,
		func(_ context.Context, ev ledger.ChangeEvent) error {
			mu.Lock()
			got = append(got, ev)
			mu.Unlock()
			return nil
		})
	require.NoError(t, err)
	defer sub.Close()

	upsert(t, c, "k3", `{}`, true) // block 3

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	}, 2*time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "k2", got[0].Key)
	assert.Equal(t, uint64(2), got[0].BlockNumber)
	assert.Equal(t, "k3", got[1].Key)
	assert.Equal(t, uint64(3), got[1].BlockNumber)
	assert.Equal(t, uint64(3), n.Height())
}

func TestSubscribe_FiltersByContract(t *testing.T) {
	_, c := newTestClient(t, Config{})

	_, err := c.Invoke(context.Background(), ledger.Contract{Name: "other"},
		ledger.FnUpsert, []string{"x", "{}"}, ledger.InvokeOptions{Sync: true})
	require.NoError(t, err)
	upsert(t, c, "mine", `{}`, true)

	events := make(chan ledger.ChangeEvent, 4)
	sub, err := c.SubscribeToChangeEvents(context.Background(), testContract, 0,
		func(_ context.Context, ev ledger.ChangeEvent) error {
			events <- ev
			return nil
		})
	require.NoError(t, err)
	defer sub.Close()

	select {
	case ev := <-events:
		assert.Equal(t, "mine", ev.Key)
	case <-time.After(2 * time.Second):
		t.Fatal("no event delivered")
	}

	select {
	case ev := <-events:
		t.Fatalf("unexpected event %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBlockEvents(t *testing.T) {
	_, c := newTestClient(t, Config{BlockSize: 2})

	blocks := make(chan ledger.Block, 4)
	sub, err := c.SubscribeToBlockEvents(context.Background(), 1,
		func(_ context.Context, b ledger.Block) error {
			blocks <- b
			return nil
		})
	require.NoError(t, err)
	defer sub.Close()

	upsert(t, c, "a", `{}`, false)
	upsert(t, c, "b", `{}`, false)

	select {
	case b := <-blocks:
		assert.Equal(t, uint64(1), b.Number)
		assert.Equal(t, 2, b.TxCount)
	case <-time.After(2 * time.Second):
		t.Fatal("no block delivered")
	}
}

func TestDisconnectEventHub_StopsDelivery(t *testing.T) {
	_, c := newTestClient(t, Config{})

	events := make(chan ledger.ChangeEvent, 4)
	_, err := c.SubscribeToChangeEvents(context.Background(), testContract, 1,
		func(_ context.Context, ev ledger.ChangeEvent) error {
			events <- ev
			return nil
		})
	require.NoError(t, err)

	require.NoError(t, c.DisconnectEventHub())
	upsert(t, c, "late", `{}`, true)

	select {
	case ev := <-events:
		t.Fatalf("event after disconnect: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSubscribe_HandlerErrorDoesNotStopStream(t *testing.T) {
	_, c := newTestClient(t, Config{})

	var mu sync.Mutex
	var keys []string
	sub, err := c.SubscribeToChangeEvents(context.Background(), testContract, 1,
		func(_ context.Context, ev ledger.ChangeEvent) error {
			mu.Lock()
			keys = append(keys, ev.Key)
			mu.Unlock()
			if ev.Key == "bad" {
				return errors.New("cannot decode")
			}
			return nil
		})
	require.NoError(t, err)
	defer sub.Close()

	upsert(t, c, "bad", `{}`, true)
	upsert(t, c, "good", `{}`, true)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(keys) == 2
	}, 2*time.Second, 5*time.Millisecond)

	assert.Error(t, sub.(*subscription).Err())
}
