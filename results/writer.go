package results

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"sync"
)

// FileMode is the permission of written snapshots.
const FileMode os.FileMode = 0o664

// CSVHeader is the header row of the tabular snapshot.
var CSVHeader = []string{"numAssets", "insert", "key-value", "complex", "rich"}

// WriteJSON writes the table indented with four spaces.
func WriteJSON(w io.Writer, t *Table) error {
	data, err := json.MarshalIndent(t, "", "    ")
	if err != nil {
		return fmt.Errorf("encode results: %w", err)
	}

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write results: %w", err)
	}

	return nil
}

// WriteCSV writes one integer-rounded row per checkpoint. Series are
// rendered as their rounded sum and missing probes as empty cells.
func WriteCSV(w io.Writer, t *Table) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(CSVHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	for _, cp := range t.Checkpoints() {
		e, _ := t.Entry(cp)

		row := []string{
			strconv.Itoa(cp),
			roundCell(e.Insert),
			valueCell(e.KeyValue),
			valueCell(e.Complex),
			valueCell(e.Rich),
		}

		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row %d: %w", cp, err)
		}
	}

	cw.Flush()

	return cw.Error()
}

func roundCell(ms float64) string {
	return strconv.FormatInt(int64(math.Round(ms)), 10)
}

func valueCell(v *Value) string {
	if v == nil {
		return ""
	}

	return roundCell(v.Total())
}

// Writer persists table snapshots. With an empty Path the JSON rendering
// is logged instead.
type Writer struct {
	Path   string
	Logger *slog.Logger

	mu sync.Mutex
}

// NewWriter returns a Writer for the base path (without extension).
func NewWriter(path string, logger *slog.Logger) *Writer {
	return &Writer{Path: path, Logger: logger}
}

// Flush writes <Path>.json and <Path>.csv. Each file is replaced
// atomically so a reader never sees a torn snapshot.
func (w *Writer) Flush(t *Table) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	snap := t.Snapshot()

	var js bytes.Buffer
	if err := WriteJSON(&js, snap); err != nil {
		return err
	}

	if w.Path == "" {
		w.logger().Info("results", slog.String("table", js.String()))
		return nil
	}

	var cs bytes.Buffer
	if err := WriteCSV(&cs, snap); err != nil {
		return err
	}

	if err := writeFileAtomic(w.Path+".json", js.Bytes()); err != nil {
		return err
	}

	return writeFileAtomic(w.Path+".csv", cs.Bytes())
}

func (w *Writer) logger() *slog.Logger {
	if w.Logger == nil {
		return slog.Default()
	}

	return w.Logger
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync %s: %w", path, err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}

	if err := os.Chmod(tmp.Name(), FileMode); err != nil {
		return fmt.Errorf("chmod %s: %w", path, err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename %s: %w", path, err)
	}

	return nil
}

// Load reads a JSON snapshot written by Flush.
func Load(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	t := NewTable()
	if err := json.Unmarshal(data, t); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	return t, nil
}
