package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/tencentyun/cos-go-sdk-v5"
)

// COSConfig holds COS-specific configuration.
type COSConfig struct {
	Bucket    string
	Region    string
	SecretID  string
	SecretKey string
	Domain    string // e.g., "myqcloud.com"
	Scheme    string // e.g., "https" or "http"

	// Endpoint overrides the bucket URL derived from the fields above.
	Endpoint string
}

// COSStorage keeps records in a Tencent Cloud COS bucket.
type COSStorage struct {
	client    *cos.Client
	bucketURL *url.URL
}

// NewCOSStorage creates a client for the configured bucket.
func NewCOSStorage(cfg *COSConfig) (*COSStorage, error) {
	if cfg.Bucket == "" || cfg.Region == "" {
		return nil, fmt.Errorf("bucket and region are required for COS storage")
	}
	if cfg.SecretID == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("credentials are required for COS storage")
	}

	domain := cfg.Domain
	if domain == "" {
		domain = "myqcloud.com"
	}
	scheme := cfg.Scheme
	if scheme == "" {
		scheme = "https"
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = fmt.Sprintf("%s://%s.cos.%s.%s", scheme, cfg.Bucket, cfg.Region, domain)
	}
	bucketURL, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to parse bucket URL: %w", err)
	}

	client := cos.NewClient(&cos.BaseURL{BucketURL: bucketURL}, &http.Client{
		Transport: &cos.AuthorizationTransport{
			SecretID:  cfg.SecretID,
			SecretKey: cfg.SecretKey,
		},
	})
	return &COSStorage{client: client, bucketURL: bucketURL}, nil
}

func objectKey(key string) string {
	return strings.TrimPrefix(key, "/")
}

// Put uploads r under key.
func (s *COSStorage) Put(ctx context.Context, key string, r io.Reader) error {
	opt := &cos.ObjectPutOptions{
		ObjectPutHeaderOptions: &cos.ObjectPutHeaderOptions{ContentType: "application/octet-stream"},
	}
	if _, err := s.client.Object.Put(ctx, objectKey(key), r, opt); err != nil {
		return fmt.Errorf("failed to upload %s to COS: %w", key, err)
	}
	return nil
}

// Get downloads the object under key.
func (s *COSStorage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	resp, err := s.client.Object.Get(ctx, objectKey(key), nil)
	if err != nil {
		if cos.IsNotFoundError(err) {
			return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to download %s from COS: %w", key, err)
	}
	return resp.Body, nil
}

// Exists checks the object with a HEAD request.
func (s *COSStorage) Exists(ctx context.Context, key string) (bool, error) {
	ok, err := s.client.Object.IsExist(ctx, objectKey(key))
	if err != nil {
		return false, fmt.Errorf("failed to check %s in COS: %w", key, err)
	}
	return ok, nil
}

// Delete removes the object under key.
func (s *COSStorage) Delete(ctx context.Context, key string) error {
	if _, err := s.client.Object.Delete(ctx, objectKey(key)); err != nil {
		return fmt.Errorf("failed to delete %s from COS: %w", key, err)
	}
	return nil
}

// URL returns the object URL for key.
func (s *COSStorage) URL(key string) string {
	return s.bucketURL.String() + "/" + objectKey(key)
}
