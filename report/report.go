// Package report formats result snapshots into comparison tables.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"strings"

	"github.com/weiihann/ledgerbench/results"
)

// Snapshot is a results table labelled with the backend that produced it.
type Snapshot struct {
	Name  string
	Table *results.Table
}

// Load reads the JSON snapshots at paths. Each snapshot is named after
// its file, without directory and extension.
func Load(paths []string) ([]Snapshot, error) {
	snaps := make([]Snapshot, 0, len(paths))

	for _, p := range paths {
		t, err := results.Load(p)
		if err != nil {
			return nil, err
		}

		name := strings.TrimSuffix(filepath.Base(p), filepath.Ext(p))
		snaps = append(snaps, Snapshot{Name: name, Table: t})
	}

	return snaps, nil
}

// Row is one checkpoint of one snapshot.
type Row struct {
	Backend     string   `json:"backend"`
	Records     int      `json:"records"`
	InsertMs    float64  `json:"insertMs"`
	MsPerRecord float64  `json:"msPerRecord"`
	Throughput  float64  `json:"recordsPerSecond"`
	KeyValueMs  *float64 `json:"keyValueMs,omitempty"`
	ComplexMs   *float64 `json:"complexMs,omitempty"`
	RichMs      *float64 `json:"richMs,omitempty"`
}

// Summary is the last checkpoint of one snapshot.
type Summary struct {
	Row

	SyncMs   *float64 `json:"syncMs,omitempty"`
	Slowdown float64  `json:"slowdown"`
}

// Rows flattens snaps into one row per checkpoint.
func Rows(snaps []Snapshot) []Row {
	var rows []Row

	for _, s := range snaps {
		for _, cp := range s.Table.Checkpoints() {
			e, _ := s.Table.Entry(cp)
			rows = append(rows, newRow(s.Name, cp, e))
		}
	}

	return rows
}

func newRow(backend string, cp int, e results.Entry) Row {
	r := Row{
		Backend:    backend,
		Records:    cp,
		InsertMs:   e.Insert,
		KeyValueMs: total(e.KeyValue),
		ComplexMs:  total(e.Complex),
		RichMs:     total(e.Rich),
	}

	if cp > 0 {
		r.MsPerRecord = e.Insert / float64(cp)
	}

	if e.Insert > 0 {
		r.Throughput = float64(cp) / (e.Insert / 1000)
	}

	return r
}

func total(v *results.Value) *float64 {
	if v == nil {
		return nil
	}

	t := v.Total()

	return &t
}

// Summaries returns the final checkpoint of every non-empty snapshot with
// its per-record latency relative to the fastest one.
func Summaries(snaps []Snapshot) []Summary {
	out := make([]Summary, 0, len(snaps))

	for _, s := range snaps {
		cps := s.Table.Checkpoints()
		if len(cps) == 0 {
			continue
		}

		last := cps[len(cps)-1]
		e, _ := s.Table.Entry(last)

		sum := Summary{Row: newRow(s.Name, last, e), Slowdown: 1}
		if ms, ok := s.Table.Sync(); ok {
			sum.SyncMs = &ms
		}

		out = append(out, sum)
	}

	fastest := findFastest(out)
	for i := range out {
		if fastest > 0 && out[i].MsPerRecord > 0 {
			out[i].Slowdown = out[i].MsPerRecord / fastest
		}
	}

	return out
}

// Generate writes a markdown comparison of snaps to w.
func Generate(w io.Writer, snaps []Snapshot) error {
	if len(snaps) == 0 {
		return fmt.Errorf("no results to report")
	}

	fmt.Fprintln(w, "## Benchmark Results")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "| Backend | Records | Insert | Per Record "+
		"| Throughput | Sync | Slowdown |")
	fmt.Fprintln(w, "|---------|---------|--------|------------"+
		"|------------|------|----------|")

	for _, s := range Summaries(snaps) {
		fmt.Fprintf(w, "| %s | %d | %s | %s | %s | %s | %.2fx |\n",
			s.Backend,
			s.Records,
			formatMs(s.InsertMs),
			formatMs(s.MsPerRecord),
			formatRate(s.Throughput),
			formatOptional(s.SyncMs),
			s.Slowdown,
		)
	}

	fmt.Fprintln(w)

	fmt.Fprintln(w, "| Backend | Records | Insert | Throughput "+
		"| Key-Value | Complex | Rich |")
	fmt.Fprintln(w, "|---------|---------|--------|------------"+
		"|-----------|---------|------|")

	for _, r := range Rows(snaps) {
		fmt.Fprintf(w, "| %s | %d | %s | %s | %s | %s | %s |\n",
			r.Backend,
			r.Records,
			formatMs(r.InsertMs),
			formatRate(r.Throughput),
			formatOptional(r.KeyValueMs),
			formatOptional(r.ComplexMs),
			formatOptional(r.RichMs),
		)
	}

	return nil
}

type jsonReport struct {
	Summary []Summary `json:"summary"`
	Rows    []Row     `json:"rows"`
}

// GenerateJSON writes the comparison as JSON to w.
func GenerateJSON(w io.Writer, snaps []Snapshot) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(jsonReport{Summary: Summaries(snaps), Rows: Rows(snaps)})
}

func findFastest(sums []Summary) float64 {
	fastest := math.MaxFloat64
	for _, s := range sums {
		if s.MsPerRecord > 0 && s.MsPerRecord < fastest {
			fastest = s.MsPerRecord
		}
	}

	if fastest == math.MaxFloat64 {
		return 0
	}

	return fastest
}

func formatMs(ms float64) string {
	switch {
	case ms < 1:
		return fmt.Sprintf("%.3fms", ms)
	case ms < 1000:
		return fmt.Sprintf("%.1fms", ms)
	default:
		return fmt.Sprintf("%.2fs", ms/1000)
	}
}

func formatOptional(ms *float64) string {
	if ms == nil {
		return "-"
	}

	return formatMs(*ms)
}

func formatRate(perSecond float64) string {
	if perSecond == 0 {
		return "-"
	}

	return fmt.Sprintf("%.0f rec/s", perSecond)
}
