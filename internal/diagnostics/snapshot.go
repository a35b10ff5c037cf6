package diagnostics

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"quorumkv/internal/datamanager"
)

// SnapshotArchiver captures a DataManager's full dump output and
// writes it, compressed, as a test fixture or post-mortem artifact.
type SnapshotArchiver struct {
	engine    *CompressionEngine
	algorithm string
}

// NewSnapshotArchiver builds an archiver using algorithm for Compress.
func NewSnapshotArchiver(engine *CompressionEngine, algorithm string) *SnapshotArchiver {
	return &SnapshotArchiver{engine: engine, algorithm: algorithm}
}

// Archive dumps every site in dm and writes the compressed result to
// dir/name.
func (a *SnapshotArchiver) Archive(dm *datamanager.DataManager, dir, name string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("diagnostics: create %s: %w", dir, err)
	}
	var buf bytes.Buffer
	dm.Dump(&buf)
	packed, err := a.engine.Compress(a.algorithm, buf.Bytes())
	if err != nil {
		return err
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, packed, 0o644); err != nil {
		return fmt.Errorf("diagnostics: write %s: %w", path, err)
	}
	return nil
}
