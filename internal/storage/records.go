package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Scheme prefixes record paths that live in storage.
const Scheme = "store://"

// IsKey reports whether path has the store:// form.
func IsKey(path string) bool {
	return strings.HasPrefix(path, Scheme)
}

// Key strips the store:// prefix.
func Key(path string) string {
	return strings.TrimPrefix(path, Scheme)
}

// Fetch downloads the object named by a store:// path into dir and returns
// the local file. Plain paths are returned unchanged.
func Fetch(ctx context.Context, st Storage, path, dir string) (string, error) {
	if !IsKey(path) {
		return path, nil
	}
	if st == nil {
		return "", fmt.Errorf("%s: no storage configured", path)
	}

	rc, err := st.Get(ctx, Key(path))
	if err != nil {
		return "", err
	}
	defer rc.Close()

	local := filepath.Join(dir, "input-"+filepath.Base(Key(path)))
	f, err := os.Create(local)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", local, err)
	}
	if _, err := io.Copy(f, rc); err != nil {
		f.Close()
		return "", fmt.Errorf("failed to download %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to download %s: %w", path, err)
	}
	return local, nil
}

// Publish uploads the local file under key.
func Publish(ctx context.Context, st Storage, local, key string) error {
	if st == nil {
		return fmt.Errorf("%s: no storage configured", key)
	}
	f, err := os.Open(local)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", local, err)
	}
	defer f.Close()
	return st.Put(ctx, Key(key), f)
}

// Output maps an output record path to the local file the engine writes.
// For a store:// path the file lives in dir and must be published after
// the run.
func Output(path, dir string) (local string, remote bool) {
	if !IsKey(path) {
		return path, false
	}
	return filepath.Join(dir, "output-"+filepath.Base(Key(path))), true
}
