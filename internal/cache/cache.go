// Package cache memoizes class probe mappings in BadgerDB.
//
// Entries are keyed by class id, which is a checksum of the class bytes, so
// an entry can never describe a different version of a class. Mappings hold
// every non-synthetic method, which makes them independent of the filter
// set of the run that stored them.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/dgraph-io/badger/v4"

	"github.com/jacoco-filter/internal/probes"
	"github.com/jacoco-filter/pkg/utils"
)

// keyPrefix is bumped whenever the probe assignment or the set of recorded
// methods changes.
const keyPrefix = "probes/v2/"

// Config holds configuration for a probe cache.
type Config struct {
	// Path is the directory for BadgerDB files. Ignored when InMemory is true.
	Path string

	// InMemory keeps the cache in memory only.
	InMemory bool

	// SyncWrites enables synchronous writes.
	SyncWrites bool

	// Logger receives BadgerDB's internal log output. Nil disables it.
	Logger utils.Logger
}

// DefaultConfig returns a persistent configuration rooted at path.
func DefaultConfig(path string) Config {
	return Config{Path: path}
}

// InMemoryConfig returns a configuration for tests.
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

// badgerLogger adapts utils.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger utils.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(format, args...)
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(format, args...)
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(format, args...)
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(format, args...)
}

// ProbeCache stores ClassProbes by class id. It is safe for concurrent use.
type ProbeCache struct {
	db *badger.DB
}

// Open opens the cache described by cfg.
func Open(cfg Config) (*ProbeCache, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for a persistent cache")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create cache directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open probe cache: %w", err)
	}
	return &ProbeCache{db: db}, nil
}

func key(id uint64) []byte {
	return []byte(fmt.Sprintf("%s%016x", keyPrefix, id))
}

// Get returns the mapping stored for id.
func (c *ProbeCache) Get(ctx context.Context, id uint64) (*probes.ClassProbes, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	var cp *probes.ClassProbes
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			cp = &probes.ClassProbes{}
			return json.Unmarshal(val, cp)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read probe cache entry %016x: %w", id, err)
	}
	return cp, true, nil
}

// Put stores cp under its class id.
func (c *ProbeCache) Put(ctx context.Context, cp *probes.ClassProbes) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	val, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("encode probe cache entry %s: %w", cp.Name, err)
	}
	err = c.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key(cp.ID), val)
	})
	if err != nil {
		return fmt.Errorf("write probe cache entry %s: %w", cp.Name, err)
	}
	return nil
}

// Len returns the number of cached mappings.
func (c *ProbeCache) Len() (int, error) {
	n := 0
	err := c.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			n++
		}
		return nil
	})
	return n, err
}

// Close closes the underlying database.
func (c *ProbeCache) Close() error {
	return c.db.Close()
}
