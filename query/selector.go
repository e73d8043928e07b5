// Package query models the filtering selectors used by the complex probes.
// The same Selector is evaluated in-process by the reference ledger and
// compiled to SQL by the downstream store.
package query

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Op is a comparison operator.
type Op string

const (
	Eq  Op = "$eq"
	Lt  Op = "$lt"
	Lte Op = "$lte"
	Gt  Op = "$gt"
	Gte Op = "$gte"
)

// Condition compares the value found at a dotted JSON path against Value.
// Path segments that are integers index into arrays, e.g. "randValues.1".
type Condition struct {
	Path  string  `json:"path"`
	Op    Op      `json:"op"`
	Value float64 `json:"value"`
}

// Selector is a conjunction of conditions. An empty Selector matches
// every document.
type Selector struct {
	Conditions []Condition `json:"conditions"`
}

// Where returns a selector with one more condition.
func (s Selector) Where(path string, op Op, value float64) Selector {
	conds := make([]Condition, 0, len(s.Conditions)+1)
	conds = append(conds, s.Conditions...)
	conds = append(conds, Condition{Path: path, Op: op, Value: value})

	return Selector{Conditions: conds}
}

// Validate checks operators and paths.
func (s Selector) Validate() error {
	for i, c := range s.Conditions {
		if c.Path == "" {
			return fmt.Errorf("condition %d: empty path", i)
		}

		switch c.Op {
		case Eq, Lt, Lte, Gt, Gte:
		default:
			return fmt.Errorf("condition %d: unknown operator %q", i, c.Op)
		}
	}

	return nil
}

// Encode renders the selector as a compact JSON argument.
func (s Selector) Encode() (string, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("encode selector: %w", err)
	}

	return string(b), nil
}

// Decode parses a selector produced by Encode.
func Decode(raw string) (Selector, error) {
	var s Selector
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return Selector{}, fmt.Errorf("decode selector: %w", err)
	}

	return s, s.Validate()
}

// Match evaluates the selector against a decoded JSON document.
func (s Selector) Match(doc any) bool {
	for _, c := range s.Conditions {
		v, ok := Lookup(doc, c.Path)
		if !ok {
			return false
		}

		n, ok := v.(float64)
		if !ok {
			return false
		}

		if !c.Op.compare(n, c.Value) {
			return false
		}
	}

	return true
}

func (o Op) compare(a, b float64) bool {
	switch o {
	case Eq:
		return a == b
	case Lt:
		return a < b
	case Lte:
		return a <= b
	case Gt:
		return a > b
	case Gte:
		return a >= b
	default:
		return false
	}
}

// Lookup walks a dotted path through maps and arrays of a decoded JSON
// document.
func Lookup(doc any, path string) (any, bool) {
	cur := doc

	for _, seg := range strings.Split(path, ".") {
		switch node := cur.(type) {
		case map[string]any:
			next, ok := node[seg]
			if !ok {
				return nil, false
			}
			cur = next

		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, false
			}
			cur = node[idx]

		default:
			return nil, false
		}
	}

	return cur, true
}

// ForShape returns the selector the complex probes issue for records of
// the given shape name. Simple records filter on both scalars; larger
// shapes filter on their size and second derived array.
func ForShape(shape string, param1, param2 float64) Selector {
	switch shape {
	case "simple":
		return Selector{}.Where("value1", Eq, param1).Where("value2", Lt, param2)
	case "intermediate":
		return Selector{}.Where("size", Eq, param1).
			Where("integerArrays.randValues2.1", Lt, param2)
	default:
		return Selector{}.Where("empresa.cp", Eq, 46980).
			Where("empresa.declaracionesConformidad.0.estado", Lte, param1)
	}
}
