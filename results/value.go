package results

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/montanaflynn/stats"
)

// ErrNoSamples is returned when a statistic is requested over no samples.
var ErrNoSamples = errors.New("no samples")

// Value is a probe measurement in milliseconds: either a single scalar or
// the raw per-sample series.
type Value struct {
	scalar float64
	series []float64
	multi  bool
}

// Scalar returns a single-number Value.
func Scalar(ms float64) *Value {
	return &Value{scalar: ms}
}

// Series returns a Value holding a copy of samples.
func Series(samples []float64) *Value {
	return &Value{series: append([]float64(nil), samples...), multi: true}
}

// IsSeries reports whether the Value holds per-sample timings.
func (v *Value) IsSeries() bool {
	return v.multi
}

// Samples returns the series, or the scalar as a one-element slice.
func (v *Value) Samples() []float64 {
	if !v.multi {
		return []float64{v.scalar}
	}

	return append([]float64(nil), v.series...)
}

// Total returns the scalar, or the sum of the series.
func (v *Value) Total() float64 {
	if !v.multi {
		return v.scalar
	}

	return Sum(v.series)
}

// Sum adds samples; it is 0 for no samples.
func Sum(samples []float64) float64 {
	sum, err := stats.Sum(samples)
	if err != nil {
		return 0
	}

	return sum
}

// Millis converts d to fractional milliseconds.
func Millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// TotalMillis sums durations in fractional milliseconds.
func TotalMillis(durations []time.Duration) float64 {
	ms := make([]float64, len(durations))
	for i, d := range durations {
		ms[i] = Millis(d)
	}

	return Sum(ms)
}

func (v *Value) clone() *Value {
	if v == nil {
		return nil
	}

	c := *v
	c.series = append([]float64(nil), v.series...)

	return &c
}

// MarshalJSON renders a scalar as a number and a series as an array.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.multi {
		if v.series == nil {
			return []byte("[]"), nil
		}

		return json.Marshal(v.series)
	}

	return json.Marshal(v.scalar)
}

// UnmarshalJSON accepts a number or an array of numbers.
func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var series []float64
		if err := json.Unmarshal(data, &series); err != nil {
			return fmt.Errorf("decode series: %w", err)
		}

		*v = Value{series: series, multi: true}

		return nil
	}

	var scalar float64
	if err := json.Unmarshal(data, &scalar); err != nil {
		return fmt.Errorf("decode scalar: %w", err)
	}

	*v = Value{scalar: scalar}

	return nil
}

// Median returns the middle sample, or the mean of the two middle samples
// for an even count.
func Median(samples []float64) (float64, error) {
	if len(samples) == 0 {
		return 0, ErrNoSamples
	}

	m, err := stats.Median(samples)
	if err != nil {
		return 0, fmt.Errorf("median: %w", err)
	}

	return m, nil
}
