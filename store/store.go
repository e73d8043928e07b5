// Package store is the downstream database kept consistent with the ledger.
// It defines the connector capability the benchmark consumes and a SQLite
// implementation holding synchronized records as JSON documents.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/weiihann/ledgerbench/query"
)

//go:embed schema.sql
var schemaSQL string

// ErrNotFound is returned by RetrieveAsset for absent keys.
var ErrNotFound = errors.New("asset not found")

// Asset is a synchronized record.
type Asset struct {
	Key         string          `json:"key"`
	Value       json.RawMessage `json:"value"`
	BlockNumber uint64          `json:"blockNumber"`
}

// Connector is the database capability used by the benchmark.
type Connector interface {
	RetrieveAsset(ctx context.Context, collection, key string) (*Asset, error)
	ExecuteQuery(ctx context.Context, collection string, sel query.Selector) ([]Asset, error)
	Disconnect() error
}

// SQLite stores assets in a SQLite database in WAL mode.
type SQLite struct {
	db *sql.DB
}

var _ Connector = (*SQLite)(nil)

// Open creates or opens the database at path and applies the schema.
// It is safe to call on an existing database.
func Open(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	// SQLite has a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, err
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &SQLite{db: db}, nil
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %q: %w", pragma, err)
		}
	}

	return nil
}

// Disconnect closes the database.
func (s *SQLite) Disconnect() error {
	if s.db == nil {
		return nil
	}

	return s.db.Close()
}

// UpsertAsset writes value under (collection, key), replacing any previous
// version.
func (s *SQLite) UpsertAsset(
	ctx context.Context,
	collection, key string,
	value json.RawMessage,
	blockNumber uint64,
) error {
	if !json.Valid(value) {
		return fmt.Errorf("upsert %s: value is not valid JSON", key)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO assets (collection, key, value, block_number, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(collection, key) DO UPDATE SET
			value = excluded.value,
			block_number = excluded.block_number,
			updated_at = excluded.updated_at
	`, collection, key, string(value), blockNumber, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("upsert %s: %w", key, err)
	}

	return nil
}

// RetrieveAsset returns the asset stored under key, or ErrNotFound.
func (s *SQLite) RetrieveAsset(ctx context.Context, collection, key string) (*Asset, error) {
	var (
		value string
		block uint64
	)

	err := s.db.QueryRowContext(ctx, `
		SELECT value, block_number FROM assets
		WHERE collection = ? AND key = ?
	`, collection, key).Scan(&value, &block)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s/%s: %w", collection, key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("retrieve %s: %w", key, err)
	}

	return &Asset{Key: key, Value: json.RawMessage(value), BlockNumber: block}, nil
}

// ExecuteQuery returns the assets of a collection matching sel, ordered
// by key.
func (s *SQLite) ExecuteQuery(ctx context.Context, collection string, sel query.Selector) ([]Asset, error) {
	where, args, err := compileSelector(sel)
	if err != nil {
		return nil, err
	}

	stmt := "SELECT key, value, block_number FROM assets WHERE collection = ?"
	if where != "" {
		stmt += " AND " + where
	}
	stmt += " ORDER BY key"

	rows, err := s.db.QueryContext(ctx, stmt, append([]any{collection}, args...)...)
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}
	defer rows.Close()

	out := make([]Asset, 0)
	for rows.Next() {
		var (
			a     Asset
			value string
		)
		if err := rows.Scan(&a.Key, &value, &a.BlockNumber); err != nil {
			return nil, fmt.Errorf("scan asset: %w", err)
		}
		a.Value = json.RawMessage(value)
		out = append(out, a)
	}

	return out, rows.Err()
}

// CountAssets returns the number of assets in a collection.
func (s *SQLite) CountAssets(ctx context.Context, collection string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM assets WHERE collection = ?", collection,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count assets: %w", err)
	}

	return n, nil
}

// RecordBlock stores a block seen by the block explorer.
func (s *SQLite) RecordBlock(ctx context.Context, number uint64, txCount int) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO blocks (number, tx_count, recorded_at) VALUES (?, ?, ?)
		ON CONFLICT(number) DO NOTHING
	`, number, txCount, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("record block %d: %w", number, err)
	}

	return nil
}

// LastBlock returns the highest recorded block number, 0 when none.
func (s *SQLite) LastBlock(ctx context.Context) (uint64, error) {
	var n sql.NullInt64
	if err := s.db.QueryRowContext(ctx, "SELECT MAX(number) FROM blocks").Scan(&n); err != nil {
		return 0, fmt.Errorf("last block: %w", err)
	}

	return uint64(n.Int64), nil
}

// SyncedBlock returns the highest block number written to collection, 0
// when the collection is empty.
func (s *SQLite) SyncedBlock(ctx context.Context, collection string) (uint64, error) {
	var n sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		"SELECT MAX(block_number) FROM assets WHERE collection = ?", collection,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("synced block of %s: %w", collection, err)
	}

	return uint64(n.Int64), nil
}
