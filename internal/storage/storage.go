// Package storage moves execution records between the local disk and an
// object store, so that store://<key> can stand in for a record path.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/jacoco-filter/pkg/config"
)

// ErrNotFound is returned when no object exists under a key.
var ErrNotFound = errors.New("object not found")

// Storage is a flat key/object store.
type Storage interface {
	// Put stores the content of r under key, replacing any object there.
	Put(ctx context.Context, key string, r io.Reader) error

	// Get opens the object under key. A missing object yields ErrNotFound.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Exists reports whether an object exists under key.
	Exists(ctx context.Context, key string) (bool, error)

	// Delete removes the object under key. Deleting a missing key succeeds.
	Delete(ctx context.Context, key string) error

	// URL describes where key lives, for logs and reports.
	URL(key string) string
}

// Type names a storage backend.
type Type string

const (
	TypeLocal Type = "local"
	TypeCOS   Type = "cos"
)

// New creates the backend described by cfg.
func New(cfg *config.StorageConfig) (Storage, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}

	switch Type(cfg.Type) {
	case TypeCOS:
		return NewCOSStorage(&COSConfig{
			Bucket:    cfg.Bucket,
			Region:    cfg.Region,
			SecretID:  cfg.SecretID,
			SecretKey: cfg.SecretKey,
			Domain:    cfg.Domain,
			Scheme:    cfg.Scheme,
		})
	default:
		return NewLocalStorage(cfg.LocalPath)
	}
}

// ValidateConfig checks that cfg names a usable backend.
func ValidateConfig(cfg *config.StorageConfig) error {
	if cfg == nil {
		return fmt.Errorf("storage config is nil")
	}

	switch Type(cfg.Type) {
	case "", TypeLocal:
		if cfg.LocalPath == "" {
			return fmt.Errorf("local storage path is required")
		}
	case TypeCOS:
		if cfg.Bucket == "" {
			return fmt.Errorf("COS bucket is required")
		}
		if cfg.Region == "" {
			return fmt.Errorf("COS region is required")
		}
		if cfg.SecretID == "" || cfg.SecretKey == "" {
			return fmt.Errorf("COS credentials are required")
		}
	default:
		return fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
	return nil
}
