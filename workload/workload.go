// Package workload generates the synthetic keyed records dispatched to a
// ledger during a benchmark run. Records come in three shapes of increasing
// size: simple scalar pairs, intermediate records with derived integer
// arrays, and complex nested compliance documents.
package workload

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// DefaultLimit is the number of records a Generator yields when no
// explicit limit is requested.
const DefaultLimit = 70000

// ErrUnknownShape is returned for shape names outside Shapes().
var ErrUnknownShape = errors.New("unknown record shape")

// Shape selects the structure of generated records.
type Shape string

const (
	Simple       Shape = "simple"
	Intermediate Shape = "intermediate"
	Complex      Shape = "complex"
)

// Shapes returns the supported record shapes, smallest first.
func Shapes() []Shape {
	return []Shape{Simple, Intermediate, Complex}
}

// ParseShape converts a shape name into a Shape.
func ParseShape(s string) (Shape, error) {
	for _, shape := range Shapes() {
		if string(shape) == strings.ToLower(strings.TrimSpace(s)) {
			return shape, nil
		}
	}

	return "", fmt.Errorf("%w %q", ErrUnknownShape, s)
}

// Key returns the identifier of the n-th record (1-based) of a shape.
func Key(shape Shape, n int) string {
	return "id-" + string(shape) + "-" + strconv.Itoa(n)
}

// Record is the value half of a KeyedRecord. It is implemented by
// SimpleRecord, IntermediateRecord and ComplexRecord.
type Record interface {
	Shape() Shape
}

// KeyedRecord is the unit dispatched to the ledger.
type KeyedRecord struct {
	ID    string `json:"id"`
	Value Record `json:"value"`
}

// Summary contains statistics about a generated workload dump.
type Summary struct {
	Shape   Shape
	Records int
	Bytes   int
}

// Generator lazily produces a finite sequence of keyed records. It is
// single use: once exhausted, Next keeps returning false.
type Generator struct {
	shape Shape
	limit int
	n     int
}

// NewGenerator creates a Generator yielding limit records of the given
// shape. A non-positive limit selects DefaultLimit.
func NewGenerator(shape Shape, limit int) (*Generator, error) {
	if _, err := ParseShape(string(shape)); err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = DefaultLimit
	}

	return &Generator{shape: shape, limit: limit}, nil
}

// Shape returns the shape of the generated records.
func (g *Generator) Shape() Shape {
	return g.shape
}

// Limit returns the total number of records the Generator yields.
func (g *Generator) Limit() int {
	return g.limit
}

// Next returns the next record, or false once the sequence is exhausted.
func (g *Generator) Next() (KeyedRecord, bool) {
	if g.n >= g.limit {
		return KeyedRecord{}, false
	}

	g.n++
	id := Key(g.shape, g.n)

	switch g.shape {
	case Simple:
		return KeyedRecord{ID: id, Value: NewSimpleRecord()}, true
	case Intermediate:
		return KeyedRecord{ID: id, Value: NewIntermediateRecord(g.n)}, true
	default:
		return KeyedRecord{ID: id, Value: NewComplexRecord(id)}, true
	}
}

// Generate drains the Generator, writing one JSON object per line to w.
func (g *Generator) Generate(w io.Writer) (Summary, error) {
	summary := Summary{Shape: g.shape}

	for {
		rec, ok := g.Next()
		if !ok {
			return summary, nil
		}

		line, err := json.Marshal(rec)
		if err != nil {
			return summary, fmt.Errorf("encode %s: %w", rec.ID, err)
		}

		line = append(line, '\n')

		n, err := w.Write(line)
		if err != nil {
			return summary, fmt.Errorf("write %s: %w", rec.ID, err)
		}

		summary.Records++
		summary.Bytes += n
	}
}
