package storage

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jacoco-filter/pkg/config"
)

func readAll(t *testing.T, rc io.ReadCloser) string {
	t.Helper()
	defer rc.Close()
	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	return string(b)
}

func TestNewLocalStorage(t *testing.T) {
	base := filepath.Join(t.TempDir(), "nested", "store")
	s, err := NewLocalStorage(base)
	require.NoError(t, err)
	assert.Equal(t, base, s.BasePath())

	info, err := os.Stat(base)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestLocalStorage_RoundTrip(t *testing.T) {
	s, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "records/nightly/jacoco.exec", strings.NewReader("v1")))
	require.NoError(t, s.Put(ctx, "records/nightly/jacoco.exec", strings.NewReader("v2")))

	rc, err := s.Get(ctx, "records/nightly/jacoco.exec")
	require.NoError(t, err)
	assert.Equal(t, "v2", readAll(t, rc))

	ok, err := s.Exists(ctx, "records/nightly/jacoco.exec")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Exists(ctx, "records/nightly")
	require.NoError(t, err)
	assert.False(t, ok, "directories are not objects")

	require.NoError(t, s.Delete(ctx, "records/nightly/jacoco.exec"))
	require.NoError(t, s.Delete(ctx, "records/nightly/jacoco.exec"))

	_, err = s.Get(ctx, "records/nightly/jacoco.exec")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLocalStorage_InvalidKeys(t *testing.T) {
	s, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	for _, key := range []string{"", ".", "..", "../escape.exec", "a/../../escape.exec"} {
		err := s.Put(ctx, key, strings.NewReader("x"))
		assert.Error(t, err, "key %q", key)
	}
}

func TestLocalStorage_Cancelled(t *testing.T) {
	s, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, s.Put(ctx, "a", bytes.NewReader(nil)), context.Canceled)
	_, err = s.Get(ctx, "a")
	assert.ErrorIs(t, err, context.Canceled)
	_, err = s.Exists(ctx, "a")
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, s.Delete(ctx, "a"), context.Canceled)
}

func TestLocalStorage_URL(t *testing.T) {
	base := t.TempDir()
	s, err := NewLocalStorage(base)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(base, "a", "b.exec"), s.URL("/a/b.exec"))
}

func TestNew(t *testing.T) {
	s, err := New(&config.StorageConfig{Type: "local", LocalPath: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &LocalStorage{}, s)

	s, err = New(&config.StorageConfig{
		Type:      "cos",
		Bucket:    "records-1250000000",
		Region:    "ap-guangzhou",
		SecretID:  "id",
		SecretKey: "key",
	})
	require.NoError(t, err)
	assert.IsType(t, &COSStorage{}, s)
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *config.StorageConfig
		wantErr string
	}{
		{"nil", nil, "nil"},
		{"unknown type", &config.StorageConfig{Type: "s3"}, "unsupported storage type"},
		{"local without path", &config.StorageConfig{Type: "local"}, "local storage path"},
		{"default type without path", &config.StorageConfig{}, "local storage path"},
		{"cos without bucket", &config.StorageConfig{Type: "cos", Region: "r"}, "bucket"},
		{"cos without region", &config.StorageConfig{Type: "cos", Bucket: "b"}, "region"},
		{"cos without credentials", &config.StorageConfig{Type: "cos", Bucket: "b", Region: "r"}, "credentials"},
		{"local ok", &config.StorageConfig{Type: "local", LocalPath: "/tmp/x"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateConfig(tt.cfg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
