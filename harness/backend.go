package harness

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/weiihann/ledgerbench/ledger"
	"github.com/weiihann/ledgerbench/ledger/memledger"
	"github.com/weiihann/ledgerbench/query"
)

// Backend supplies the ledger-specific operations the driver needs.
type Backend interface {
	// Name identifies the backend in logs and reports.
	Name() string

	// Connect opens the id-th client connection.
	Connect(ctx context.Context, id int) (ledger.Client, error)

	// Contract resolves the contract handle through client.
	Contract(ctx context.Context, client ledger.Client, name string) (ledger.Contract, error)

	// Decode turns a raw query result into a document.
	Decode(raw []byte) (any, error)

	// ComplexQuery runs sel either by client-side iteration or, when rich
	// is set, with the backend's native query support.
	ComplexQuery(ctx context.Context, client ledger.Client, contract ledger.Contract, sel query.Selector, rich bool) ([]ledger.QueryRecord, error)

	// Close releases resources shared by all clients.
	Close() error
}

// BackendOptions tunes backends that simulate a network.
type BackendOptions struct {
	BlockSize     int
	BatchTimeout  time.Duration
	InvokeLatency time.Duration
	CommitLatency time.Duration
}

// KnownBackends returns the list of supported backend names.
func KnownBackends() []string {
	return []string{"mem"}
}

// ResolveBackend returns the backend registered under name.
func ResolveBackend(name string, opts BackendOptions) (Backend, error) {
	switch name {
	case "mem":
		return NewMemBackend(memledger.Config{
			BlockSize:     opts.BlockSize,
			BatchTimeout:  opts.BatchTimeout,
			InvokeLatency: opts.InvokeLatency,
			CommitLatency: opts.CommitLatency,
		}), nil
	default:
		return nil, fmt.Errorf("unknown backend %q (known: %v)", name, KnownBackends())
	}
}

// MemBackend runs the benchmark against an in-process ledger network.
type MemBackend struct {
	net *memledger.Network
}

var _ Backend = (*MemBackend)(nil)

// NewMemBackend creates a backend over a fresh network.
func NewMemBackend(cfg memledger.Config) *MemBackend {
	return &MemBackend{net: memledger.NewNetwork(cfg)}
}

// Network exposes the underlying network.
func (b *MemBackend) Network() *memledger.Network {
	return b.net
}

func (b *MemBackend) Name() string {
	return "mem"
}

func (b *MemBackend) Connect(ctx context.Context, id int) (ledger.Client, error) {
	c, err := b.net.Connect(ctx, id)
	if err != nil {
		return nil, err
	}

	return c, nil
}

func (b *MemBackend) Contract(_ context.Context, _ ledger.Client, name string) (ledger.Contract, error) {
	if name == "" {
		return ledger.Contract{}, fmt.Errorf("empty contract name")
	}

	return ledger.Contract{Name: name}, nil
}

func (b *MemBackend) Decode(raw []byte) (any, error) {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode asset: %w", err)
	}

	return doc, nil
}

func (b *MemBackend) ComplexQuery(
	ctx context.Context,
	client ledger.Client,
	contract ledger.Contract,
	sel query.Selector,
	rich bool,
) ([]ledger.QueryRecord, error) {
	arg, err := sel.Encode()
	if err != nil {
		return nil, err
	}

	fn := ledger.FnComplexQuery
	if rich {
		fn = ledger.FnRichQuery
	}

	raw, err := client.Query(ctx, contract, fn, arg)
	if err != nil {
		return nil, err
	}

	return ledger.DecodeQueryResult(raw)
}

func (b *MemBackend) Close() error {
	return b.net.Close()
}
