package compression

import (
	"bytes"
	"testing"
)

var sample = []byte{0x01, 0xc0, 0xc0, 0x10, 0x07, 'c', 'o', 'v', 'e', 'r', 'a', 'g', 'e', 0x11, 0x00, 0x00}

func TestRoundTrip(t *testing.T) {
	for _, typ := range []Type{TypeNone, TypeGzip, TypeZstd} {
		t.Run(typ.String(), func(t *testing.T) {
			c, err := New(typ, LevelDefault)
			if err != nil {
				t.Fatalf("New failed: %v", err)
			}
			defer Close(c)

			compressed, err := c.Compress(sample)
			if err != nil {
				t.Fatalf("Compress failed: %v", err)
			}
			if got := DetectType(compressed); got != typ {
				t.Errorf("DetectType = %v, want %v", got, typ)
			}

			decompressed, err := AutoDecompress(compressed)
			if err != nil {
				t.Fatalf("AutoDecompress failed: %v", err)
			}
			if !bytes.Equal(sample, decompressed) {
				t.Error("Decompressed data doesn't match original")
			}
			if c.Type() != typ {
				t.Errorf("Type() = %v, want %v", c.Type(), typ)
			}
		})
	}
}

func TestDetectType(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want Type
	}{
		{"empty", nil, TypeNone},
		{"exec header", []byte{0x01, 0xc0, 0xc0, 0x10, 0x07}, TypeNone},
		{"gzip", []byte{0x1f, 0x8b, 0x08}, TypeGzip},
		{"zstd", []byte{0x28, 0xb5, 0x2f, 0xfd, 0x00}, TypeZstd},
		{"short zstd prefix", []byte{0x28, 0xb5}, TypeNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectType(tt.data); got != tt.want {
				t.Errorf("DetectType = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseType(t *testing.T) {
	tests := []struct {
		in      string
		want    Type
		wantErr bool
	}{
		{"", TypeNone, false},
		{"none", TypeNone, false},
		{"GZIP", TypeGzip, false},
		{" zstd ", TypeZstd, false},
		{"lz4", TypeNone, true},
	}
	for _, tt := range tests {
		got, err := ParseType(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseType(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseType(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNew_UnknownType(t *testing.T) {
	if _, err := New(Type(42), LevelDefault); err == nil {
		t.Error("expected error for unknown type")
	}
}
