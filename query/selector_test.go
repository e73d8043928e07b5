package query

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, raw string) any {
	t.Helper()
	var doc any
	require.NoError(t, json.Unmarshal([]byte(raw), &doc))
	return doc
}

func TestSelector_Match(t *testing.T) {
	doc := decode(t, `{"size": 5, "randValues": [10, 900], "nested": {"x": 3}}`)

	tests := []struct {
		name string
		sel  Selector
		want bool
	}{
		{"empty matches", Selector{}, true},
		{"eq", Selector{}.Where("size", Eq, 5), true},
		{"eq miss", Selector{}.Where("size", Eq, 6), false},
		{"array index lt", Selector{}.Where("randValues.1", Lt, 1000), true},
		{"array index gte", Selector{}.Where("randValues.1", Gte, 1000), false},
		{"nested", Selector{}.Where("nested.x", Lte, 3), true},
		{"missing path", Selector{}.Where("nope", Eq, 1), false},
		{"out of range", Selector{}.Where("randValues.9", Eq, 1), false},
		{"conjunction", Selector{}.Where("size", Eq, 5).Where("nested.x", Gt, 3), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.sel.Match(doc))
		})
	}
}

func TestSelector_EncodeDecode(t *testing.T) {
	sel := ForShape("simple", 5, 1000)

	raw, err := sel.Encode()
	require.NoError(t, err)

	got, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, sel, got)
}

func TestDecode_RejectsUnknownOperator(t *testing.T) {
	_, err := Decode(`{"conditions":[{"path":"a","op":"$regex","value":1}]}`)
	assert.Error(t, err)
}

func TestWhere_DoesNotAlias(t *testing.T) {
	base := Selector{}.Where("a", Eq, 1)
	left := base.Where("b", Eq, 2)
	right := base.Where("c", Eq, 3)

	assert.Len(t, base.Conditions, 1)
	assert.Equal(t, "b", left.Conditions[1].Path)
	assert.Equal(t, "c", right.Conditions[1].Path)
}

func TestForShape(t *testing.T) {
	intermediate := decode(t, `{"size": 5, "integerArrays": {"randValues2": [3001, 4001]}}`)
	assert.True(t, ForShape("intermediate", 5, 5000).Match(intermediate))
	assert.False(t, ForShape("intermediate", 10, 5000).Match(intermediate))
}
