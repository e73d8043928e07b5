package results

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newGolden(t *testing.T) *goldie.Goldie {
	t.Helper()
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

func sampleTable(t *testing.T) *Table {
	t.Helper()
	tbl := NewTable()

	require.NoError(t, tbl.Record(10, Entry{Insert: 12.5}))
	require.NoError(t, tbl.SetKeyValue(10, Scalar(0.75)))
	require.NoError(t, tbl.SetComplex(10, Series([]float64{3.25})))
	require.NoError(t, tbl.SetRich(10, Series([]float64{1.5})))

	require.NoError(t, tbl.Record(20, Entry{Insert: 30.4}))
	require.NoError(t, tbl.SetKeyValue(20, Scalar(1)))

	tbl.SetSync(1234.6)

	return tbl
}

func TestMedian(t *testing.T) {
	tests := []struct {
		name    string
		samples []float64
		want    float64
	}{
		{"single", []float64{7}, 7},
		{"odd", []float64{9, 1, 5}, 5},
		{"even", []float64{4, 1, 3, 2}, 2.5},
		{"duplicates", []float64{2, 2, 8, 8}, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Median(tt.samples)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestMedian_DoesNotReorderInput(t *testing.T) {
	in := []float64{3, 1, 2}
	_, err := Median(in)
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 1, 2}, in)
}

func TestMedian_Empty(t *testing.T) {
	_, err := Median(nil)
	assert.ErrorIs(t, err, ErrNoSamples)
}

func TestSumAndTotalMillis(t *testing.T) {
	assert.Equal(t, 0.0, Sum(nil))
	assert.InDelta(t, 6.5, Sum([]float64{1, 2.5, 3}), 1e-9)

	assert.InDelta(t, 1.5, Millis(1500*time.Microsecond), 1e-9)
	assert.Equal(t, 0.0, TotalMillis(nil))
	assert.InDelta(t, 3.5, TotalMillis([]time.Duration{1500 * time.Microsecond, 2 * time.Millisecond}), 1e-9)

	assert.Equal(t, Sum([]float64{3.25, 1.5}), Series([]float64{3.25, 1.5}).Total())
}

func TestValue_JSON(t *testing.T) {
	data, err := json.Marshal(Scalar(2.5))
	require.NoError(t, err)
	assert.Equal(t, "2.5", string(data))

	data, err = json.Marshal(Series([]float64{1, 2.5}))
	require.NoError(t, err)
	assert.Equal(t, "[1,2.5]", string(data))

	var v Value
	require.NoError(t, json.Unmarshal([]byte("[1, 2]"), &v))
	assert.True(t, v.IsSeries())
	assert.Equal(t, 3.0, v.Total())

	require.NoError(t, json.Unmarshal([]byte("4"), &v))
	assert.False(t, v.IsSeries())
	assert.Equal(t, []float64{4}, v.Samples())
}

func TestTable_RecordRejectsNonIncreasing(t *testing.T) {
	tbl := NewTable()
	require.NoError(t, tbl.Record(10, Entry{Insert: 1}))

	assert.ErrorIs(t, tbl.Record(10, Entry{}), ErrNotIncreasing)
	assert.ErrorIs(t, tbl.Record(5, Entry{}), ErrNotIncreasing)
	assert.ErrorIs(t, NewTable().Record(0, Entry{}), ErrNotIncreasing)
	assert.Equal(t, []int{10}, tbl.Checkpoints())
}

func TestTable_SetUnknownCheckpoint(t *testing.T) {
	tbl := NewTable()
	assert.ErrorIs(t, tbl.SetKeyValue(10, Scalar(1)), ErrUnknownCheckpoint)
}

func TestTable_EntryIsACopy(t *testing.T) {
	tbl := NewTable()
	require.NoError(t, tbl.Record(10, Entry{Insert: 1}))

	e, ok := tbl.Entry(10)
	require.True(t, ok)
	e.Insert = 99
	e.KeyValue = Scalar(1)

	again, _ := tbl.Entry(10)
	assert.Equal(t, 1.0, again.Insert)
	assert.Nil(t, again.KeyValue)
}

func TestWriteJSON_Golden(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, sampleTable(t)))

	newGolden(t).Assert(t, "table_json", buf.Bytes())
}

func TestWriteCSV_Golden(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, sampleTable(t)))

	newGolden(t).Assert(t, "table_csv", buf.Bytes())
}

func TestWriteJSON_Idempotent(t *testing.T) {
	tbl := sampleTable(t)

	var a, b bytes.Buffer
	require.NoError(t, WriteJSON(&a, tbl))
	require.NoError(t, WriteJSON(&b, tbl))

	assert.Equal(t, a.Bytes(), b.Bytes())
}

func TestMissingMeasurement_AbsentNotZero(t *testing.T) {
	tbl := NewTable()
	require.NoError(t, tbl.Record(10, Entry{Insert: 4}))
	require.NoError(t, tbl.SetKeyValue(10, Scalar(2)))

	var js bytes.Buffer
	require.NoError(t, WriteJSON(&js, tbl))
	assert.NotContains(t, js.String(), `"complex"`)
	assert.NotContains(t, js.String(), `"rich"`)
	assert.NotContains(t, js.String(), `"sync"`)

	var cs bytes.Buffer
	require.NoError(t, WriteCSV(&cs, tbl))
	lines := strings.Split(strings.TrimSpace(cs.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "10,4,2,,", lines[1])
}

func TestLoad_RoundTrip(t *testing.T) {
	base := filepath.Join(t.TempDir(), "out", "run")
	w := NewWriter(base, slog.Default())

	tbl := sampleTable(t)
	require.NoError(t, w.Flush(tbl))

	got, err := Load(base + ".json")
	require.NoError(t, err)
	assert.Equal(t, []int{10, 20}, got.Checkpoints())

	s, ok := got.Sync()
	require.True(t, ok)
	assert.Equal(t, 1234.6, s)

	e, _ := got.Entry(10)
	require.NotNil(t, e.Complex)
	assert.True(t, e.Complex.IsSeries())
}

func TestWriter_FlushWritesBothFiles(t *testing.T) {
	base := filepath.Join(t.TempDir(), "run")
	w := NewWriter(base, slog.Default())

	require.NoError(t, w.Flush(sampleTable(t)))

	for _, ext := range []string{".json", ".csv"} {
		info, err := os.Stat(base + ext)
		require.NoError(t, err, ext)
		assert.Equal(t, FileMode, info.Mode().Perm()&FileMode, ext)
	}

	entries, err := os.ReadDir(filepath.Dir(base))
	require.NoError(t, err)
	assert.Len(t, entries, 2, "temp files must not be left behind")
}

func TestWriter_NoPathLogs(t *testing.T) {
	var logs bytes.Buffer
	w := NewWriter("", slog.New(slog.NewTextHandler(&logs, nil)))

	require.NoError(t, w.Flush(sampleTable(t)))
	assert.Contains(t, logs.String(), "results")
	assert.Contains(t, logs.String(), "1234.6")
}

func TestWriter_ConcurrentFlushAndRecord(t *testing.T) {
	base := filepath.Join(t.TempDir(), "run")
	w := NewWriter(base, slog.Default())
	tbl := NewTable()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 1; i <= 50; i++ {
			_ = tbl.Record(i*10, Entry{Insert: float64(i)})
		}
	}()

	for range 10 {
		require.NoError(t, w.Flush(tbl))
	}
	wg.Wait()
	require.NoError(t, w.Flush(tbl))

	got, err := Load(base + ".json")
	require.NoError(t, err)
	assert.Equal(t, 50, got.Len())
}

func TestWriter_FlushDatabase(t *testing.T) {
	base := filepath.Join(t.TempDir(), "db")
	w := NewWriter(base, slog.Default())

	require.NoError(t, w.FlushDatabase(DatabaseResult{
		500: {KeyValue: []float64{1, 2}, Complex: []float64{3}},
	}))

	data, err := os.ReadFile(base + ".json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"500":{"key_value_query":[1,2],"complex_query":[3]}}`, string(data))
}
