// Package compression wraps the codecs accepted for execution records.
package compression

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// Type represents the compression algorithm used.
type Type uint8

const (
	// TypeNone stores the record as is.
	TypeNone Type = iota
	// TypeGzip uses gzip compression.
	TypeGzip
	// TypeZstd uses zstd compression.
	TypeZstd
)

// String returns the flag spelling of the type.
func (t Type) String() string {
	switch t {
	case TypeGzip:
		return "gzip"
	case TypeZstd:
		return "zstd"
	default:
		return "none"
	}
}

// ParseType parses "none", "gzip" or "zstd". An empty string is TypeNone.
func ParseType(s string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none", "raw":
		return TypeNone, nil
	case "gzip", "gz":
		return TypeGzip, nil
	case "zstd", "zst":
		return TypeZstd, nil
	default:
		return TypeNone, fmt.Errorf("unknown compression type: %q (valid: none, gzip, zstd)", s)
	}
}

// Level represents the compression level.
type Level int

const (
	// LevelFastest prioritizes speed over compression ratio
	LevelFastest Level = 1
	// LevelDefault balances speed and compression ratio
	LevelDefault Level = 3
	// LevelBest prioritizes compression ratio over speed
	LevelBest Level = 9
)

// Compressor compresses whole records in memory.
type Compressor interface {
	Compress(data []byte) ([]byte, error)
	Decompress(data []byte) ([]byte, error)
	Type() Type
}

// GzipCompressor implements Compressor using gzip.
type GzipCompressor struct {
	level int
}

// NewGzipCompressor creates a new gzip compressor.
func NewGzipCompressor(level Level) *GzipCompressor {
	gzipLevel := gzip.DefaultCompression
	switch level {
	case LevelFastest:
		gzipLevel = gzip.BestSpeed
	case LevelBest:
		gzipLevel = gzip.BestCompression
	}
	return &GzipCompressor{level: gzipLevel}
}

// Compress compresses data using gzip.
func (c *GzipCompressor) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer, err := gzip.NewWriterLevel(&buf, c.level)
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip writer: %w", err)
	}
	if _, err := writer.Write(data); err != nil {
		writer.Close()
		return nil, fmt.Errorf("failed to write gzip data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close gzip writer: %w", err)
	}
	return buf.Bytes(), nil
}

// Decompress decompresses gzip data.
func (c *GzipCompressor) Decompress(data []byte) ([]byte, error) {
	reader, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer reader.Close()
	return io.ReadAll(reader)
}

// Type returns TypeGzip.
func (c *GzipCompressor) Type() Type {
	return TypeGzip
}

// ZstdCompressor implements Compressor using zstd.
type ZstdCompressor struct {
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// NewZstdCompressor creates a new zstd compressor. Close releases its
// encoder and decoder.
func NewZstdCompressor(level Level) (*ZstdCompressor, error) {
	zstdLevel := zstd.SpeedDefault
	switch level {
	case LevelFastest:
		zstdLevel = zstd.SpeedFastest
	case LevelBest:
		zstdLevel = zstd.SpeedBestCompression
	}

	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstdLevel))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}

	decoder, err := zstd.NewReader(nil)
	if err != nil {
		encoder.Close()
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}

	return &ZstdCompressor{encoder: encoder, decoder: decoder}, nil
}

// Compress compresses data using zstd.
func (c *ZstdCompressor) Compress(data []byte) ([]byte, error) {
	return c.encoder.EncodeAll(data, make([]byte, 0, len(data)/2)), nil
}

// Decompress decompresses zstd data.
func (c *ZstdCompressor) Decompress(data []byte) ([]byte, error) {
	return c.decoder.DecodeAll(data, nil)
}

// Type returns TypeZstd.
func (c *ZstdCompressor) Type() Type {
	return TypeZstd
}

// Close releases resources used by the compressor.
func (c *ZstdCompressor) Close() {
	c.encoder.Close()
	c.decoder.Close()
}

// NoOpCompressor passes data through unchanged.
type NoOpCompressor struct{}

// Compress returns the data unchanged.
func (NoOpCompressor) Compress(data []byte) ([]byte, error) { return data, nil }

// Decompress returns the data unchanged.
func (NoOpCompressor) Decompress(data []byte) ([]byte, error) { return data, nil }

// Type returns TypeNone.
func (NoOpCompressor) Type() Type { return TypeNone }

// New creates a compressor by type and level.
func New(t Type, level Level) (Compressor, error) {
	switch t {
	case TypeZstd:
		return NewZstdCompressor(level)
	case TypeGzip:
		return NewGzipCompressor(level), nil
	case TypeNone:
		return NoOpCompressor{}, nil
	default:
		return nil, fmt.Errorf("unknown compression type: %d", t)
	}
}

// Close closes a compressor if it holds resources.
func Close(c Compressor) {
	if closer, ok := c.(interface{ Close() }); ok {
		closer.Close()
	}
}

// DetectType detects the compression type from magic bytes. Anything that
// is neither gzip (1f 8b) nor zstd (28 b5 2f fd) is TypeNone.
func DetectType(data []byte) Type {
	if len(data) >= 4 && data[0] == 0x28 && data[1] == 0xb5 && data[2] == 0x2f && data[3] == 0xfd {
		return TypeZstd
	}
	if len(data) >= 2 && data[0] == 0x1f && data[1] == 0x8b {
		return TypeGzip
	}
	return TypeNone
}

// AutoDecompress detects the compression type and decompresses data.
// Uncompressed data is returned unchanged.
func AutoDecompress(data []byte) ([]byte, error) {
	switch DetectType(data) {
	case TypeZstd:
		comp, err := NewZstdCompressor(LevelDefault)
		if err != nil {
			return nil, err
		}
		defer comp.Close()
		return comp.Decompress(data)
	case TypeGzip:
		return NewGzipCompressor(LevelDefault).Decompress(data)
	default:
		return data, nil
	}
}
