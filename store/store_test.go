package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiihann/ledgerbench/query"
)

func createTestStore(t *testing.T) *SQLite {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	require.NoError(t, err, "Open() failed")
	t.Cleanup(func() { s.Disconnect() })
	return s
}

func TestOpen_CreatesDatabaseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Disconnect()

	_, err = os.Stat(path)
	assert.NoError(t, err, "database file was not created")
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s1, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s1.UpsertAsset(context.Background(), "c", "k", json.RawMessage(`{}`), 1))
	require.NoError(t, s1.Disconnect())

	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Disconnect()

	n, err := s2.CountAssets(context.Background(), "c")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestUpsertAsset_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertAsset(ctx, "delta", "id-simple-1", json.RawMessage(`{"value1":3}`), 4))

	got, err := s.RetrieveAsset(ctx, "delta", "id-simple-1")
	require.NoError(t, err)
	assert.Equal(t, "id-simple-1", got.Key)
	assert.JSONEq(t, `{"value1":3}`, string(got.Value))
	assert.Equal(t, uint64(4), got.BlockNumber)
}

func TestUpsertAsset_Replaces(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertAsset(ctx, "delta", "k", json.RawMessage(`{"v":1}`), 1))
	require.NoError(t, s.UpsertAsset(ctx, "delta", "k", json.RawMessage(`{"v":2}`), 2))

	got, err := s.RetrieveAsset(ctx, "delta", "k")
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":2}`, string(got.Value))

	n, err := s.CountAssets(ctx, "delta")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestUpsertAsset_RejectsInvalidJSON(t *testing.T) {
	s := createTestStore(t)

	err := s.UpsertAsset(context.Background(), "delta", "k", json.RawMessage(`{nope`), 1)
	assert.Error(t, err)
}

func TestRetrieveAsset_NotFound(t *testing.T) {
	s := createTestStore(t)

	_, err := s.RetrieveAsset(context.Background(), "delta", "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestExecuteQuery_Selector(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	docs := map[string]string{
		"a": `{"size":5,"randValues":[1,900]}`,
		"b": `{"size":5,"randValues":[1,1500]}`,
		"c": `{"size":10,"randValues":[1,10]}`,
	}
	for k, v := range docs {
		require.NoError(t, s.UpsertAsset(ctx, "delta", k, json.RawMessage(v), 1))
	}
	require.NoError(t, s.UpsertAsset(ctx, "other", "z", json.RawMessage(docs["a"]), 1))

	sel := query.Selector{}.Where("size", query.Eq, 5).Where("randValues.1", query.Lt, 1000)
	got, err := s.ExecuteQuery(ctx, "delta", sel)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].Key)

	all, err := s.ExecuteQuery(ctx, "delta", query.Selector{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{all[0].Key, all[1].Key, all[2].Key})
}

func TestExecuteQuery_AgreesWithInProcessMatch(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	raw := `{"value1":5,"value2":10}`
	require.NoError(t, s.UpsertAsset(ctx, "delta", "k", json.RawMessage(raw), 1))

	var doc any
	require.NoError(t, json.Unmarshal([]byte(raw), &doc))

	for _, sel := range []query.Selector{
		query.ForShape("simple", 5, 1000),
		query.ForShape("simple", 5, 5),
		query.ForShape("simple", 6, 1000),
	} {
		got, err := s.ExecuteQuery(ctx, "delta", sel)
		require.NoError(t, err)
		assert.Equal(t, sel.Match(doc), len(got) == 1, "selector %+v", sel)
	}
}

func TestBlocks(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	last, err := s.LastBlock(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), last)

	require.NoError(t, s.RecordBlock(ctx, 3, 10))
	require.NoError(t, s.RecordBlock(ctx, 1, 10))
	require.NoError(t, s.RecordBlock(ctx, 3, 10), "duplicate block is a no-op")

	last, err = s.LastBlock(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), last)
}

func TestSyncedBlock(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	synced, err := s.SyncedBlock(ctx, "delta")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), synced)

	require.NoError(t, s.UpsertAsset(ctx, "delta", "id-simple-1", json.RawMessage(`{"a":1}`), 4))
	require.NoError(t, s.UpsertAsset(ctx, "delta", "id-simple-2", json.RawMessage(`{"a":2}`), 2))
	require.NoError(t, s.UpsertAsset(ctx, "other", "id-simple-1", json.RawMessage(`{"a":3}`), 9))

	synced, err = s.SyncedBlock(ctx, "delta")
	require.NoError(t, err)
	assert.Equal(t, uint64(4), synced)

	synced, err = s.SyncedBlock(ctx, "absent")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), synced)
}

func TestJSONPath(t *testing.T) {
	assert.Equal(t, `$."size"`, jsonPath("size"))
	assert.Equal(t, `$."integerArrays"."randValues2"[1]`, jsonPath("integerArrays.randValues2.1"))
}
