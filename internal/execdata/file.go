package execdata

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jacoco-filter/pkg/compression"
)

// LoadFile reads a record from disk. Gzip and zstd compressed records are
// detected by their magic bytes.
func LoadFile(path string) (*Store, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	data, err := compression.AutoDecompress(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress %s: %w", path, err)
	}

	store, err := Load(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}
	return store, nil
}

// SaveFile writes the store to path through a temporary file in the same
// directory, so a failed write never leaves a partial record behind.
func SaveFile(path string, s *Store, comp compression.Compressor) (err error) {
	var buf bytes.Buffer
	if err := Save(&buf, s); err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}

	data := buf.Bytes()
	if comp != nil {
		if data, err = comp.Compress(data); err != nil {
			return fmt.Errorf("failed to compress record: %w", err)
		}
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", tmp.Name(), err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", tmp.Name(), err)
	}
	if err = os.Chmod(tmp.Name(), 0644); err != nil {
		return fmt.Errorf("failed to chmod %s: %w", tmp.Name(), err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to rename into %s: %w", path, err)
	}
	return nil
}
