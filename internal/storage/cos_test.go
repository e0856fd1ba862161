package storage

import (
	"context"
	"hash/crc64"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBucket serves the subset of the COS object API the storage uses.
type fakeBucket struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (b *fakeBucket) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()

	key := strings.TrimPrefix(r.URL.Path, "/")
	switch r.Method {
	case http.MethodPut:
		data, _ := io.ReadAll(r.Body)
		b.objects[key] = data
		setChecksum(w, data)
		w.WriteHeader(http.StatusOK)
	case http.MethodGet, http.MethodHead:
		data, ok := b.objects[key]
		if !ok {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			if r.Method == http.MethodGet {
				_, _ = io.WriteString(w, "<Error><Code>NoSuchKey</Code><Message>not found</Message></Error>")
			}
			return
		}
		setChecksum(w, data)
		w.WriteHeader(http.StatusOK)
		if r.Method == http.MethodGet {
			_, _ = w.Write(data)
		}
	case http.MethodDelete:
		delete(b.objects, key)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// setChecksum sets the CRC64 header the SDK verifies uploads against.
func setChecksum(w http.ResponseWriter, data []byte) {
	sum := crc64.Checksum(data, crc64.MakeTable(crc64.ECMA))
	w.Header().Set("x-cos-hash-crc64ecma", strconv.FormatUint(sum, 10))
}

func newFakeCOS(t *testing.T) (*COSStorage, *fakeBucket) {
	t.Helper()
	bucket := &fakeBucket{objects: map[string][]byte{}}
	srv := httptest.NewServer(bucket)
	t.Cleanup(srv.Close)

	s, err := NewCOSStorage(&COSConfig{
		Bucket:    "records-1250000000",
		Region:    "ap-guangzhou",
		SecretID:  "id",
		SecretKey: "key",
		Endpoint:  srv.URL,
	})
	require.NoError(t, err)
	return s, bucket
}

func TestNewCOSStorage_Validation(t *testing.T) {
	tests := []struct {
		name    string
		cfg     COSConfig
		wantErr string
	}{
		{"missing bucket", COSConfig{Region: "ap-guangzhou", SecretID: "id", SecretKey: "key"}, "bucket and region are required"},
		{"missing region", COSConfig{Bucket: "b", SecretID: "id", SecretKey: "key"}, "bucket and region are required"},
		{"missing credentials", COSConfig{Bucket: "b", Region: "ap-guangzhou"}, "credentials are required"},
		{"bad endpoint", COSConfig{Bucket: "b", Region: "r", SecretID: "id", SecretKey: "key", Endpoint: "://bad"}, "bucket URL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewCOSStorage(&tt.cfg)
			require.Error(t, err)
			assert.Nil(t, s)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestCOSStorage_URL(t *testing.T) {
	s, err := NewCOSStorage(&COSConfig{
		Bucket:    "records-1250000000",
		Region:    "ap-guangzhou",
		SecretID:  "id",
		SecretKey: "key",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://records-1250000000.cos.ap-guangzhou.myqcloud.com/nightly/jacoco.exec",
		s.URL("/nightly/jacoco.exec"))
}

func TestCOSStorage_RoundTrip(t *testing.T) {
	s, bucket := newFakeCOS(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "nightly/jacoco.exec", strings.NewReader("record")))
	assert.Equal(t, []byte("record"), bucket.objects["nightly/jacoco.exec"])

	rc, err := s.Get(ctx, "nightly/jacoco.exec")
	require.NoError(t, err)
	assert.Equal(t, "record", readAll(t, rc))

	ok, err := s.Exists(ctx, "nightly/jacoco.exec")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, s.Delete(ctx, "nightly/jacoco.exec"))
	ok, err = s.Exists(ctx, "nightly/jacoco.exec")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.Get(ctx, "nightly/jacoco.exec")
	assert.ErrorIs(t, err, ErrNotFound)
}
