// Package classpath resolves class bytes by VM name from directories and
// archives.
package classpath

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// ErrClassNotFound is returned when no root holds the requested class.
var ErrClassNotFound = errors.New("class not found")

// archiveExts lists the archive types that are searched for classes.
var archiveExts = []string{".jar", ".zip", ".war", ".ear"}

// classPrefixes are archive folders whose content is rooted at the folder
// rather than at the archive root.
var classPrefixes = []string{"WEB-INF/classes/", "BOOT-INF/classes/"}

// IsArchive reports whether name has a supported archive extension.
func IsArchive(name string) bool {
	ext := strings.ToLower(path.Ext(filepath.ToSlash(name)))
	for _, e := range archiveExts {
		if ext == e {
			return true
		}
	}
	return false
}

type root interface {
	lookup(resource string) ([]byte, bool, error)
	String() string
	Close() error
}

// Resolver looks up class files across an ordered list of roots. The first
// root holding a class wins. It is safe for concurrent use and must be
// closed to release open archives.
type Resolver struct {
	roots []root
}

// Open creates a Resolver over directories and archives. Every root must
// exist.
func Open(roots ...string) (*Resolver, error) {
	r := &Resolver{}
	for _, p := range roots {
		rt, err := openRoot(p)
		if err != nil {
			r.Close()
			return nil, err
		}
		r.roots = append(r.roots, rt)
	}
	return r, nil
}

func openRoot(p string) (root, error) {
	info, err := os.Stat(p)
	if err != nil {
		return nil, fmt.Errorf("failed to open classpath entry %s: %w", p, err)
	}
	if info.IsDir() {
		return dirRoot(p), nil
	}
	if !IsArchive(p) {
		return nil, fmt.Errorf("unsupported classpath entry %s", p)
	}
	zr, err := zip.OpenReader(p)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive %s: %w", p, err)
	}
	ar := &archiveRoot{path: p, closer: zr, index: make(map[string]*zip.File)}
	if err := ar.addEntries(&zr.Reader, 0); err != nil {
		zr.Close()
		return nil, fmt.Errorf("failed to index archive %s: %w", p, err)
	}
	return ar, nil
}

// Resolve returns the bytes of the class with the given VM name.
func (r *Resolver) Resolve(vmName string) ([]byte, error) {
	resource := vmName + ".class"
	for _, rt := range r.roots {
		b, ok, err := rt.lookup(resource)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s from %s: %w", resource, rt, err)
		}
		if ok {
			return b, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrClassNotFound, vmName)
}

// Roots returns the root paths in search order.
func (r *Resolver) Roots() []string {
	out := make([]string, len(r.roots))
	for i, rt := range r.roots {
		out[i] = rt.String()
	}
	return out
}

// Close releases every open archive.
func (r *Resolver) Close() error {
	var errs []error
	for _, rt := range r.roots {
		if err := rt.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	r.roots = nil
	return errors.Join(errs...)
}

type dirRoot string

func (d dirRoot) lookup(resource string) ([]byte, bool, error) {
	b, err := os.ReadFile(filepath.Join(string(d), filepath.FromSlash(resource)))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return b, true, nil
}

func (d dirRoot) String() string { return string(d) }

func (d dirRoot) Close() error { return nil }

// maxNestedDepth bounds descent into archives inside archives.
const maxNestedDepth = 4

type archiveRoot struct {
	path   string
	closer io.Closer
	index  map[string]*zip.File
}

// addEntries indexes the class entries of zr. Top level entries are indexed
// before nested archives so they take precedence.
func (a *archiveRoot) addEntries(zr *zip.Reader, depth int) error {
	var nested []*zip.File
	for _, f := range zr.File {
		switch {
		case strings.HasSuffix(f.Name, ".class"):
			a.put(f.Name, f)
			for _, prefix := range classPrefixes {
				if rest, ok := strings.CutPrefix(f.Name, prefix); ok {
					a.put(rest, f)
				}
			}
		case IsArchive(f.Name) && depth < maxNestedDepth:
			nested = append(nested, f)
		}
	}
	for _, f := range nested {
		b, err := readZipFile(f)
		if err != nil {
			return err
		}
		inner, err := zip.NewReader(bytes.NewReader(b), int64(len(b)))
		if err != nil {
			// Not every .zip entry is meant to be a classpath archive.
			continue
		}
		if err := a.addEntries(inner, depth+1); err != nil {
			return err
		}
	}
	return nil
}

func (a *archiveRoot) put(name string, f *zip.File) {
	if _, ok := a.index[name]; !ok {
		a.index[name] = f
	}
}

func (a *archiveRoot) lookup(resource string) ([]byte, bool, error) {
	f, ok := a.index[resource]
	if !ok {
		return nil, false, nil
	}
	b, err := readZipFile(f)
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (a *archiveRoot) String() string { return a.path }

func (a *archiveRoot) Close() error { return a.closer.Close() }

func readZipFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
