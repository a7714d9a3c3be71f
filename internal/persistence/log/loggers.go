// Package log provides the run's append-only JSONL writers.
//
// Audit files consumed by external analysis (perturbations, compaction) stay
// plain line-delimited JSON; the per-tick journal is zstd-compressed since
// nothing reads it line by line during a run.
package log

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// AppendJSONL appends one JSON record plus newline to a plain jsonl file,
// creating parent directories as needed.
func AppendJSONL(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.Write(append(b, '\n')); err != nil {
		return err
	}
	return nil
}

// TickJournal writes one compressed JSONL entry per tick.
type TickJournal struct {
	mu  sync.Mutex
	f   *os.File
	enc *zstd.Encoder
	w   *bufio.Writer
}

// TickEntry is the journal record for one completed tick.
type TickEntry struct {
	Tick          int               `json:"tick"`
	Alive         int               `json:"alive"`
	InferenceMs   int64             `json:"inference_ms"`
	Actions       map[string]string `json:"actions,omitempty"`
	Perturbations []any             `json:"perturbations,omitempty"`
}

func NewTickJournal(dataDir string) (*TickJournal, error) {
	dir := filepath.Join(dataDir, "events")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(filepath.Join(dir, "events.jsonl.zst"),
		os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &TickJournal{
		f:   f,
		enc: enc,
		w:   bufio.NewWriterSize(enc, 128*1024),
	}, nil
}

func (j *TickJournal) Write(e TickEntry) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	if _, err := j.w.Write(b); err != nil {
		return err
	}
	if err := j.w.WriteByte('\n'); err != nil {
		return err
	}
	return j.w.Flush()
}

func (j *TickJournal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.w != nil {
		_ = j.w.Flush()
	}
	var err error
	if j.enc != nil {
		err = j.enc.Close()
		j.enc = nil
	}
	if j.f != nil {
		_ = j.f.Close()
		j.f = nil
	}
	j.w = nil
	return err
}
