package results

import (
	"encoding/json"
	"fmt"
	"log/slog"
)

// QueryTimes holds the raw timings of a database-only evaluation.
type QueryTimes struct {
	KeyValue []float64 `json:"key_value_query"`
	Complex  []float64 `json:"complex_query,omitempty"`
}

// DatabaseResult maps the collection size at evaluation time to the
// measured query timings.
type DatabaseResult map[int]QueryTimes

// FlushDatabase writes <Path>.json for a database evaluation, or logs it
// when no path is set.
func (w *Writer) FlushDatabase(r DatabaseResult) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	// encoding/json sorts integer map keys by their decimal string.
	data, err := json.MarshalIndent(r, "", "    ")
	if err != nil {
		return fmt.Errorf("encode database results: %w", err)
	}

	if w.Path == "" {
		w.logger().Info("database results", slog.String("result", string(data)))
		return nil
	}

	return writeFileAtomic(w.Path+".json", data)
}
