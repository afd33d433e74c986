// Package history archives finished matches as Parquet batch files.
package history

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress/zstd"
)

const schemaVersion = "match_record_v1"

// Record is one finished match.
//
// Board holds the final position as nine characters ("X", "O" or ".").
// Moves lists the cells in the order they were played, human and AI alike.
type Record struct {
	MatchID      string  `parquet:"match_id"`
	Player       string  `parquet:"player,dict"`
	PlayerSymbol string  `parquet:"player_symbol,dict"`
	Outcome      string  `parquet:"outcome,dict"`
	Board        string  `parquet:"board"`
	Moves        []int32 `parquet:"moves"`
	Difficulty   float64 `parquet:"difficulty"`
	Points       int32   `parquet:"points"`
	WeeklyPoints int32   `parquet:"weekly_points"`
	StartedAt    int64   `parquet:"started_at_ms"`
	FinishedAt   int64   `parquet:"finished_at_ms"`
}

// Writer buffers records and writes them out in batches. It is safe for
// concurrent use.
type Writer struct {
	mu         sync.Mutex
	outDir     string
	flushEvery int
	buf        []Record
	files      []string
}

// NewWriter returns a writer that flushes to outDir every flushEvery records.
func NewWriter(outDir string, flushEvery int) (*Writer, error) {
	if outDir == "" {
		return nil, fmt.Errorf("outDir is required")
	}
	if flushEvery <= 0 {
		flushEvery = 100
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	return &Writer{outDir: outDir, flushEvery: flushEvery}, nil
}

// Append buffers r, flushing when the batch is full.
func (w *Writer) Append(ctx context.Context, r Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf = append(w.buf, r)
	if len(w.buf) < w.flushEvery {
		return nil
	}
	return w.flushLocked()
}

// Flush writes any buffered records.
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flushLocked()
}

// Close flushes remaining records.
func (w *Writer) Close() error { return w.Flush() }

// Buffered returns the number of records not yet on disk.
func (w *Writer) Buffered() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.buf)
}

// Files returns the batch files written so far.
func (w *Writer) Files() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.files...)
}

func (w *Writer) flushLocked() error {
	if len(w.buf) == 0 {
		return nil
	}
	path, err := writeBatch(w.outDir, w.buf)
	if err != nil {
		return err
	}
	w.files = append(w.files, path)
	w.buf = w.buf[:0]
	return nil
}

// writeBatch writes rows to a tmp file and renames it into outDir.
func writeBatch(outDir string, rows []Record) (string, error) {
	tmpDir := filepath.Join(outDir, "tmp")
	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		return "", fmt.Errorf("create tmp dir: %w", err)
	}

	name := fmt.Sprintf("matches_%d.parquet", time.Now().UnixNano())
	finalPath := filepath.Join(outDir, name)
	tmpPath := filepath.Join(tmpDir, name+".tmp")

	if err := parquet.WriteFile(tmpPath, rows,
		parquet.Compression(&zstd.Codec{Level: zstd.SpeedBetterCompression}),
		parquet.KeyValueMetadata("schema", schemaVersion),
	); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("write parquet: %w", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("rename parquet: %w", err)
	}
	return finalPath, nil
}

// ReadFile loads every record from a batch file.
func ReadFile(path string) ([]Record, error) {
	rows, err := parquet.ReadFile[Record](path)
	if err != nil {
		return nil, fmt.Errorf("read parquet %s: %w", path, err)
	}
	return rows, nil
}
