// Package ledger defines what the benchmark requires from a distributed
// ledger client: transaction invocation, queries, and change-event
// subscriptions. Concrete transports live behind these interfaces.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
)

// Contract function names invoked by the benchmark.
const (
	FnUpsert       = "upsertAsset"
	FnRead         = "readAsset"
	FnComplexQuery = "complexQuery"
	FnRichQuery    = "complexRichQuery"
)

// ErrNotFound is returned by queries for keys absent from the ledger.
var ErrNotFound = errors.New("asset not found")

// ErrClosed is returned by operations on a disconnected client.
var ErrClosed = errors.New("ledger client closed")

// Contract identifies a deployed smart contract or chaincode.
type Contract struct {
	Name string
}

// InvokeOptions controls how a transaction is submitted.
type InvokeOptions struct {
	// Sync waits until the transaction is committed in a block instead of
	// returning once it has been submitted.
	Sync bool
}

// ChangeEvent is a contract event emitted by a committed transaction.
type ChangeEvent struct {
	BlockNumber uint64          `json:"blockNumber"`
	ContractID  string          `json:"contractId"`
	Key         string          `json:"key"`
	Payload     json.RawMessage `json:"payload"`
}

// Block describes a committed block.
type Block struct {
	Number  uint64 `json:"number"`
	TxCount int    `json:"txCount"`
}

// EventHandler consumes change events. A subscription calls it from a
// single goroutine, one event at a time, in delivery order.
type EventHandler func(ctx context.Context, ev ChangeEvent) error

// BlockHandler consumes block events with the same serialization
// guarantee as EventHandler.
type BlockHandler func(ctx context.Context, b Block) error

// Subscription is a live event stream.
type Subscription interface {
	Close() error
}

// Client is a connection to one ledger node.
type Client interface {
	// Invoke submits a transaction calling fn on the contract.
	Invoke(ctx context.Context, c Contract, fn string, args []string, opts InvokeOptions) ([]byte, error)

	// Query evaluates fn without submitting a transaction.
	Query(ctx context.Context, c Contract, fn string, args ...string) ([]byte, error)

	// SubscribeToChangeEvents streams contract events starting at fromBlock.
	SubscribeToChangeEvents(ctx context.Context, c Contract, fromBlock uint64, h EventHandler) (Subscription, error)

	// DisconnectEventHub closes every subscription opened by the client.
	DisconnectEventHub() error
}

// BlockSubscriber is implemented by clients able to stream block events.
type BlockSubscriber interface {
	SubscribeToBlockEvents(ctx context.Context, fromBlock uint64, h BlockHandler) (Subscription, error)
}

// HeightReader is implemented by clients able to report the number of
// committed blocks.
type HeightReader interface {
	Height(ctx context.Context) (uint64, error)
}

// QueryRecord is one element of a complex query result.
type QueryRecord struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

// DecodeQueryResult parses the JSON array returned by complex queries.
func DecodeQueryResult(raw []byte) ([]QueryRecord, error) {
	var out []QueryRecord
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}

	return out, nil
}
