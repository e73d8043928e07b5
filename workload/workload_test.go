package workload

import (
	"bufio"
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseShape(t *testing.T) {
	tests := []struct {
		input   string
		want    Shape
		wantErr bool
	}{
		{"simple", Simple, false},
		{"Intermediate", Intermediate, false},
		{" complex ", Complex, false},
		{"huge", "", true},
	}

	for _, tt := range tests {
		got, err := ParseShape(tt.input)
		if tt.wantErr {
			assert.ErrorIs(t, err, ErrUnknownShape, "ParseShape(%q)", tt.input)
			continue
		}

		require.NoError(t, err, "ParseShape(%q)", tt.input)
		assert.Equal(t, tt.want, got, "ParseShape(%q)", tt.input)
	}
}

func TestGeneratorKeysAndLimit(t *testing.T) {
	for _, shape := range Shapes() {
		gen, err := NewGenerator(shape, 25)
		require.NoError(t, err, "NewGenerator(%s)", shape)

		count := 0
		for {
			rec, ok := gen.Next()
			if !ok {
				break
			}

			count++
			assert.Equal(t, Key(shape, count), rec.ID)
			assert.Equal(t, shape, rec.Value.Shape(), "record %s", rec.ID)
		}

		assert.Equal(t, 25, count, "%s: generated records", shape)
	}
}

func TestGeneratorSingleUse(t *testing.T) {
	gen, err := NewGenerator(Simple, 2)
	require.NoError(t, err)

	for range 2 {
		_, ok := gen.Next()
		require.True(t, ok, "generator exhausted early")
	}

	for range 3 {
		_, ok := gen.Next()
		require.False(t, ok, "exhausted generator yielded another record")
	}
}

func TestGeneratorDefaultLimit(t *testing.T) {
	gen, err := NewGenerator(Complex, 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultLimit, gen.Limit())
}

func TestNewGeneratorUnknownShape(t *testing.T) {
	_, err := NewGenerator("huge", 10)
	assert.ErrorIs(t, err, ErrUnknownShape)
}

func TestSimpleRecordRanges(t *testing.T) {
	for range 1000 {
		rec := NewSimpleRecord()
		require.GreaterOrEqual(t, rec.Value1, 0)
		require.LessOrEqual(t, rec.Value1, 200)
		require.GreaterOrEqual(t, rec.Value2, 0)
		require.LessOrEqual(t, rec.Value2, 1000)
	}
}

func TestIntermediateRecordDerivation(t *testing.T) {
	rec := NewIntermediateRecord(7)

	assert.Equal(t, "id-intermediate-7", rec.ID)

	// 7 % 6 == 1 selects the second template.
	assert.Equal(t, "red", rec.Color)
	assert.Equal(t, 5, rec.Size)
	assert.Equal(t, "Brad", rec.Owner)
	assert.Equal(t, 400, rec.AppraisedValue)

	assert.Equal(t, []int{1000 + 7 + 1, 2000 + 7 + 1}, rec.IntegerArrays.RandValues1)
	assert.Equal(t, []int{3008, 4008, 5008, 6008, 7008, 8008}, rec.IntegerArrays.RandValues2)
}

func TestIntermediateRecordDeterministic(t *testing.T) {
	assert.Equal(t, NewIntermediateRecord(42), NewIntermediateRecord(42))
}

func TestComplexRecordDeterministic(t *testing.T) {
	a, err := json.Marshal(NewComplexRecord("id-complex-3"))
	require.NoError(t, err)

	b, err := json.Marshal(NewComplexRecord("id-complex-3"))
	require.NoError(t, err)

	assert.Equal(t, a, b, "complex record is not deterministic for the same id")

	var doc map[string]any
	require.NoError(t, json.Unmarshal(a, &doc))
	assert.Equal(t, "id-complex-3", doc["orgMspId"])
}

func TestComplexRecordDates(t *testing.T) {
	rec := NewComplexRecord("")

	assert.Equal(t, defaultOrgMspID, rec.OrgMspID)

	decl := rec.Empresa.DeclaracionesConformidad
	require.Len(t, decl, 4)

	// 2019-12-17T00:00:00Z
	assert.EqualValues(t, 1576540800000, decl[0].FechaIniVigencia)
	assert.Nil(t, decl[1].FechaFinVigencia)
}

func TestGenerateJSONL(t *testing.T) {
	gen, err := NewGenerator(Intermediate, 12)
	require.NoError(t, err)

	var buf bytes.Buffer
	summary, err := gen.Generate(&buf)
	require.NoError(t, err)

	assert.Equal(t, 12, summary.Records)
	assert.Equal(t, buf.Len(), summary.Bytes)

	scanner := bufio.NewScanner(&buf)
	lines := 0
	for scanner.Scan() {
		var rec struct {
			ID    string          `json:"id"`
			Value json.RawMessage `json:"value"`
		}
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &rec), "line %d", lines+1)
		lines++
	}

	assert.Equal(t, 12, lines)
}
