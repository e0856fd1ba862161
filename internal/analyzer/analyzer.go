// Package analyzer discovers the compiled classes below a classpath root and
// groups them into a bundle of packages.
package analyzer

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/jacoco-filter/internal/classfile"
	"github.com/jacoco-filter/internal/classpath"
	"github.com/jacoco-filter/internal/execdata"
	"github.com/jacoco-filter/pkg/filter"
	"github.com/jacoco-filter/pkg/utils"
)

// Options configures an Analyzer.
type Options struct {
	// ClassFilter restricts the classes that are analyzed. Nil accepts all.
	ClassFilter *filter.ClassFilter

	// Logger receives skip and error reports. Nil discards them.
	Logger utils.Logger

	// MaxConcurrency bounds AnalyzeAll. Zero means one goroutine per root.
	MaxConcurrency int
}

// Analyzer walks directories, class files and archives.
type Analyzer struct {
	opts   Options
	logger utils.Logger
}

// New creates an Analyzer.
func New(opts Options) *Analyzer {
	return &Analyzer{
		opts:   opts,
		logger: utils.OrNull(opts.Logger),
	}
}

// Analyze discovers every class below root. Root may be a directory, a
// class file or an archive. Unreadable entries and unparsable classes are
// collected in Bundle.Errors; only an unreadable root fails the call.
func (a *Analyzer) Analyze(ctx context.Context, root string) (*Bundle, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", root, err)
	}

	bb := newBundleBuilder(filepath.Base(filepath.Clean(root)))
	switch {
	case info.IsDir():
		if err := a.walkDir(ctx, root, bb); err != nil {
			return nil, err
		}
	case classpath.IsArchive(root):
		zr, err := zip.OpenReader(root)
		if err != nil {
			return nil, fmt.Errorf("failed to open archive %s: %w", root, err)
		}
		defer zr.Close()
		if err := a.walkArchive(ctx, &zr.Reader, root, bb); err != nil {
			return nil, err
		}
	case isClassFile(root):
		b, err := os.ReadFile(root)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", root, err)
		}
		a.analyzeClass(b, root, bb)
	default:
		a.logger.Debug("Ignoring %s: not a class file or archive", root)
	}

	bundle := bb.build()
	a.logger.Debug("Analyzed %s: %d classes, %d errors", root, bundle.ClassCount(), len(bundle.Errors))
	return bundle, nil
}

// AnalyzeAll analyzes several roots concurrently. Bundles are returned in
// the order of roots.
func (a *Analyzer) AnalyzeAll(ctx context.Context, roots []string) ([]*Bundle, error) {
	bundles := make([]*Bundle, len(roots))
	g, gctx := errgroup.WithContext(ctx)
	if a.opts.MaxConcurrency > 0 {
		g.SetLimit(a.opts.MaxConcurrency)
	}
	for i, root := range roots {
		g.Go(func() error {
			b, err := a.Analyze(gctx, root)
			if err != nil {
				return err
			}
			bundles[i] = b
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return bundles, nil
}

func (a *Analyzer) walkDir(ctx context.Context, root string, bb *bundleBuilder) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			if p == root {
				return fmt.Errorf("failed to read %s: %w", root, err)
			}
			bb.fail(p, err)
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}

		switch {
		case isClassFile(p):
			b, err := os.ReadFile(p)
			if err != nil {
				bb.fail(p, err)
				return nil
			}
			a.analyzeClass(b, p, bb)
		case classpath.IsArchive(p):
			zr, err := zip.OpenReader(p)
			if err != nil {
				bb.fail(p, err)
				return nil
			}
			defer zr.Close()
			return a.walkArchive(ctx, &zr.Reader, p, bb)
		}
		return nil
	})
}

// walkArchive analyzes the entries of an archive in archive order,
// descending into nested archives.
func (a *Analyzer) walkArchive(ctx context.Context, zr *zip.Reader, location string, bb *bundleBuilder) error {
	for _, f := range zr.File {
		if err := ctx.Err(); err != nil {
			return err
		}
		if f.FileInfo().IsDir() {
			continue
		}
		entry := location + "!/" + f.Name
		isClass, isArchive := isClassFile(f.Name), classpath.IsArchive(f.Name)
		if !isClass && !isArchive {
			continue
		}

		b, err := readEntry(f)
		if err != nil {
			bb.fail(entry, err)
			continue
		}
		if isClass {
			a.analyzeClass(b, entry, bb)
			continue
		}
		nested, err := zip.NewReader(bytes.NewReader(b), int64(len(b)))
		if err != nil {
			bb.fail(entry, err)
			continue
		}
		if err := a.walkArchive(ctx, nested, entry, bb); err != nil {
			return err
		}
	}
	return nil
}

func (a *Analyzer) analyzeClass(b []byte, location string, bb *bundleBuilder) {
	cf, err := classfile.Parse(b)
	if err != nil {
		a.logger.Warn("Skipping %s: %v", location, err)
		bb.fail(location, err)
		return
	}
	switch {
	case cf.IsModule():
		a.logger.Debug("Skipping module descriptor %s", location)
		return
	case cf.IsSynthetic():
		a.logger.Debug("Skipping synthetic class %s", cf.Name)
		return
	case !a.opts.ClassFilter.Accept(cf.Name):
		a.logger.Debug("Skipping filtered class %s", cf.Name)
		return
	case cf.IsInstrumented():
		a.logger.Warn("Skipping %s: %v", location, ErrInstrumented)
		bb.fail(location, fmt.Errorf("%s: %w", cf.Name, ErrInstrumented))
		return
	}

	bb.add(&Class{
		Name:    cf.Name,
		ID:      execdata.ClassID(b),
		Methods: methodNames(cf),
		Source:  location,
	})
}

func methodNames(cf *classfile.ClassFile) []string {
	seen := make(map[string]bool)
	var names []string
	for i := range cf.Methods {
		m := &cf.Methods[i]
		if m.IsSynthetic() || seen[m.Name] {
			continue
		}
		seen[m.Name] = true
		names = append(names, m.Name)
	}
	return names
}

func readEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func isClassFile(name string) bool {
	return strings.EqualFold(path.Ext(filepath.ToSlash(name)), ".class")
}
