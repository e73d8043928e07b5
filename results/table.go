// Package results holds the checkpoint table produced by a benchmark run
// and writes it as JSON and CSV snapshots that survive interruption.
package results

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
)

// SyncKey is the table key holding the total synchronization time.
const SyncKey = "sync"

var (
	// ErrNotIncreasing is returned when a checkpoint is recorded out of
	// order or twice.
	ErrNotIncreasing = errors.New("checkpoint is not increasing")

	// ErrUnknownCheckpoint is returned when a probe result targets a
	// checkpoint that was never recorded.
	ErrUnknownCheckpoint = errors.New("unknown checkpoint")
)

// Entry is the measurement for one checkpoint. Probe fields stay nil until
// the probe produced at least one sample.
type Entry struct {
	Insert   float64 `json:"insert"`
	KeyValue *Value  `json:"key-value,omitempty"`
	Complex  *Value  `json:"complex,omitempty"`
	Rich     *Value  `json:"rich,omitempty"`
}

func (e *Entry) clone() *Entry {
	return &Entry{
		Insert:   e.Insert,
		KeyValue: e.KeyValue.clone(),
		Complex:  e.Complex.clone(),
		Rich:     e.Rich.clone(),
	}
}

// Table maps cumulative record counts to their Entry, plus an optional
// synchronization total. It is safe for concurrent use.
type Table struct {
	mu      sync.Mutex
	order   []int
	entries map[int]*Entry
	sync    *float64
}

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{entries: make(map[int]*Entry)}
}

// Record adds the entry for checkpoint. Checkpoints must be positive and
// strictly increasing.
func (t *Table) Record(checkpoint int, e Entry) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if checkpoint <= 0 {
		return fmt.Errorf("checkpoint %d: %w", checkpoint, ErrNotIncreasing)
	}

	if n := len(t.order); n > 0 && checkpoint <= t.order[n-1] {
		return fmt.Errorf("checkpoint %d after %d: %w", checkpoint, t.order[n-1], ErrNotIncreasing)
	}

	t.order = append(t.order, checkpoint)
	t.entries[checkpoint] = e.clone()

	return nil
}

func (t *Table) set(checkpoint int, apply func(*Entry)) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[checkpoint]
	if !ok {
		return fmt.Errorf("checkpoint %d: %w", checkpoint, ErrUnknownCheckpoint)
	}

	apply(e)

	return nil
}

// SetKeyValue stores the point-lookup result of checkpoint.
func (t *Table) SetKeyValue(checkpoint int, v *Value) error {
	return t.set(checkpoint, func(e *Entry) { e.KeyValue = v.clone() })
}

// SetComplex stores the client-side complex query result of checkpoint.
func (t *Table) SetComplex(checkpoint int, v *Value) error {
	return t.set(checkpoint, func(e *Entry) { e.Complex = v.clone() })
}

// SetRich stores the backend-native rich query result of checkpoint.
func (t *Table) SetRich(checkpoint int, v *Value) error {
	return t.set(checkpoint, func(e *Entry) { e.Rich = v.clone() })
}

// SetSync stores the total synchronization time in milliseconds.
func (t *Table) SetSync(ms float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.sync = &ms
}

// Sync returns the synchronization total, if set.
func (t *Table) Sync() (float64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.sync == nil {
		return 0, false
	}

	return *t.sync, true
}

// Checkpoints returns the recorded checkpoints in ascending order.
func (t *Table) Checkpoints() []int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return append([]int(nil), t.order...)
}

// Entry returns a copy of the entry recorded for checkpoint.
func (t *Table) Entry(checkpoint int) (Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[checkpoint]
	if !ok {
		return Entry{}, false
	}

	return *e.clone(), true
}

// Len returns the number of recorded checkpoints.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.order)
}

// Snapshot returns a deep copy of the table taken under its lock.
func (t *Table) Snapshot() *Table {
	t.mu.Lock()
	defer t.mu.Unlock()

	c := NewTable()
	c.order = append(c.order, t.order...)
	for k, e := range t.entries {
		c.entries[k] = e.clone()
	}

	if t.sync != nil {
		v := *t.sync
		c.sync = &v
	}

	return c
}

// MarshalJSON renders checkpoints in ascending order followed by the
// sync total.
func (t *Table) MarshalJSON() ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var buf bytes.Buffer
	buf.WriteByte('{')

	for i, cp := range t.order {
		if i > 0 {
			buf.WriteByte(',')
		}

		entry, err := json.Marshal(t.entries[cp])
		if err != nil {
			return nil, fmt.Errorf("encode checkpoint %d: %w", cp, err)
		}

		buf.WriteString(strconv.Quote(strconv.Itoa(cp)))
		buf.WriteByte(':')
		buf.Write(entry)
	}

	if t.sync != nil {
		if len(t.order) > 0 {
			buf.WriteByte(',')
		}

		v, err := json.Marshal(*t.sync)
		if err != nil {
			return nil, fmt.Errorf("encode sync: %w", err)
		}

		buf.WriteString(strconv.Quote(SyncKey))
		buf.WriteByte(':')
		buf.Write(v)
	}

	buf.WriteByte('}')

	return buf.Bytes(), nil
}

// UnmarshalJSON replaces the table with a decoded snapshot.
func (t *Table) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode table: %w", err)
	}

	order := make([]int, 0, len(raw))
	entries := make(map[int]*Entry, len(raw))

	var syncTotal *float64

	for k, v := range raw {
		if k == SyncKey {
			var s float64
			if err := json.Unmarshal(v, &s); err != nil {
				return fmt.Errorf("decode %s: %w", SyncKey, err)
			}
			syncTotal = &s

			continue
		}

		cp, err := strconv.Atoi(k)
		if err != nil {
			return fmt.Errorf("decode table: unexpected key %q", k)
		}

		var e Entry
		if err := json.Unmarshal(v, &e); err != nil {
			return fmt.Errorf("decode checkpoint %d: %w", cp, err)
		}

		order = append(order, cp)
		entries[cp] = &e
	}

	sort.Ints(order)

	t.mu.Lock()
	defer t.mu.Unlock()

	t.order = order
	t.entries = entries
	t.sync = syncTotal

	return nil
}
