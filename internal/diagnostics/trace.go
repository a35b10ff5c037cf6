package diagnostics

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// TickEvent is one recorded moment in a run: the tick, the line that
// drove it, and a short human description — a diagnostic byproduct,
// never consulted by the coordinator itself.
type TickEvent struct {
	Tick        int    `json:"tick"`
	Line        int    `json:"line"`
	Description string `json:"description"`
}

// TraceRecorder accumulates TickEvents and, on Flush, writes them as
// newline-delimited JSON, optionally packed through a CompressionEngine
// algorithm for smaller fixtures.
type TraceRecorder struct {
	engine    *CompressionEngine
	algorithm string
	events    []TickEvent
}

// NewTraceRecorder builds a recorder that compresses with algorithm
// ("none", "lz4", "snappy", or "zstd") on Flush.
func NewTraceRecorder(engine *CompressionEngine, algorithm string) *TraceRecorder {
	return &TraceRecorder{engine: engine, algorithm: algorithm}
}

// Record appends one tick event.
func (r *TraceRecorder) Record(e TickEvent) {
	r.events = append(r.events, e)
}

// Flush serializes every recorded event as JSON lines, compresses the
// result, and writes it to dir/name.
func (r *TraceRecorder) Flush(dir, name string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("diagnostics: create %s: %w", dir, err)
	}
	var buf []byte
	for _, e := range r.events {
		line, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("diagnostics: encode trace event: %w", err)
		}
		buf = append(buf, line...)
		buf = append(buf, '\n')
	}
	packed, err := r.engine.Compress(r.algorithm, buf)
	if err != nil {
		return err
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, packed, 0o644); err != nil {
		return fmt.Errorf("diagnostics: write %s: %w", path, err)
	}
	return nil
}
