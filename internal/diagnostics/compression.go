// Package diagnostics provides optional, non-durability byproducts of a
// run: a compressed tick-event trace and compressed dump snapshots for
// test fixtures. Nothing here is read back by the simulator itself —
// the coordinator and DataManager never depend on this package, which
// keeps it honest with spec.md's "no durable on-disk storage" Non-goal.
package diagnostics

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Algorithm compresses and decompresses byte slices under a name.
type Algorithm interface {
	Name() string
	Compress(data []byte) ([]byte, error)
	Decompress(data []byte) ([]byte, error)
}

// CompressionEngine is a small registry of interchangeable compression
// algorithms, selected by name rather than by policy — the simulator
// always knows up front which one a run was configured to use.
type CompressionEngine struct {
	mu         sync.RWMutex
	algorithms map[string]Algorithm
	stats      Stats
}

// Stats tracks cumulative bytes in and out, for the diagnostics report.
type Stats struct {
	mu          sync.Mutex
	RawBytes    int64
	PackedBytes int64
}

// NewCompressionEngine registers every supported algorithm: none (a
// passthrough), lz4, snappy, and zstd.
func NewCompressionEngine() *CompressionEngine {
	e := &CompressionEngine{algorithms: make(map[string]Algorithm)}
	e.Register(noneAlgorithm{})
	e.Register(lz4Algorithm{})
	e.Register(snappyAlgorithm{})
	e.Register(&zstdAlgorithm{})
	return e
}

// Register adds or replaces an algorithm under its own name.
func (e *CompressionEngine) Register(algo Algorithm) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.algorithms[algo.Name()] = algo
}

// Compress packs data with the named algorithm and updates stats.
func (e *CompressionEngine) Compress(name string, data []byte) ([]byte, error) {
	e.mu.RLock()
	algo, ok := e.algorithms[name]
	e.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("diagnostics: unknown compression algorithm %q", name)
	}
	packed, err := algo.Compress(data)
	if err != nil {
		return nil, fmt.Errorf("diagnostics: compress with %s: %w", name, err)
	}
	e.stats.mu.Lock()
	e.stats.RawBytes += int64(len(data))
	e.stats.PackedBytes += int64(len(packed))
	e.stats.mu.Unlock()
	return packed, nil
}

// Decompress unpacks data that was produced by Compress with the same
// algorithm name.
func (e *CompressionEngine) Decompress(name string, data []byte) ([]byte, error) {
	e.mu.RLock()
	algo, ok := e.algorithms[name]
	e.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("diagnostics: unknown compression algorithm %q", name)
	}
	out, err := algo.Decompress(data)
	if err != nil {
		return nil, fmt.Errorf("diagnostics: decompress with %s: %w", name, err)
	}
	return out, nil
}

// Stats returns a snapshot of cumulative byte counts.
func (e *CompressionEngine) Stats() Stats {
	e.stats.mu.Lock()
	defer e.stats.mu.Unlock()
	return Stats{RawBytes: e.stats.RawBytes, PackedBytes: e.stats.PackedBytes}
}

type noneAlgorithm struct{}

func (noneAlgorithm) Name() string { return "none" }
func (noneAlgorithm) Compress(data []byte) ([]byte, error) { return data, nil }
func (noneAlgorithm) Decompress(data []byte) ([]byte, error) { return data, nil }

type lz4Algorithm struct{}

func (lz4Algorithm) Name() string { return "lz4" }

func (lz4Algorithm) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := lz4.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (lz4Algorithm) Decompress(data []byte) ([]byte, error) {
	return io.ReadAll(lz4.NewReader(bytes.NewReader(data)))
}

type snappyAlgorithm struct{}

func (snappyAlgorithm) Name() string { return "snappy" }

func (snappyAlgorithm) Compress(data []byte) ([]byte, error) {
	return snappy.Encode(nil, data), nil
}

func (snappyAlgorithm) Decompress(data []byte) ([]byte, error) {
	return snappy.Decode(nil, data)
}

// zstdAlgorithm lazily builds its encoder/decoder, since both are
// relatively expensive to construct and a run may never use zstd.
type zstdAlgorithm struct {
	mu      sync.Mutex
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

func (*zstdAlgorithm) Name() string { return "zstd" }

func (a *zstdAlgorithm) Compress(data []byte) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.encoder == nil {
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, err
		}
		a.encoder = enc
	}
	return a.encoder.EncodeAll(data, nil), nil
}

func (a *zstdAlgorithm) Decompress(data []byte) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.decoder == nil {
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, err
		}
		a.decoder = dec
	}
	return a.decoder.DecodeAll(data, nil)
}
