package analyzer

import "sort"

// Class is a compiled class discovered on the classpath.
type Class struct {
	// Name is the VM name, e.g. com/acme/A.
	Name string `json:"name" yaml:"name"`
	// ID is the CRC64 class id of the class bytes.
	ID uint64 `json:"id" yaml:"id"`
	// Methods holds the distinct non-synthetic method names in class file
	// order.
	Methods []string `json:"methods" yaml:"methods"`
	// Source is the directory file or archive entry the class was read from.
	Source string `json:"source" yaml:"source"`
}

// PackageName returns the VM package name, empty for the default package.
func (c *Class) PackageName() string {
	for i := len(c.Name) - 1; i >= 0; i-- {
		if c.Name[i] == '/' {
			return c.Name[:i]
		}
	}
	return ""
}

// Package groups the classes of one VM package.
type Package struct {
	Name    string   `json:"name" yaml:"name"`
	Classes []*Class `json:"classes" yaml:"classes"`
}

// Bundle is the analysis result of one classpath root.
type Bundle struct {
	Name     string        `json:"name" yaml:"name"`
	Packages []*Package    `json:"packages" yaml:"packages"`
	Errors   []*ClassError `json:"-" yaml:"-"`
}

// Classes returns every class of the bundle, packages and classes in name
// order.
func (b *Bundle) Classes() []*Class {
	var out []*Class
	for _, p := range b.Packages {
		out = append(out, p.Classes...)
	}
	return out
}

// ClassCount returns the number of classes in the bundle.
func (b *Bundle) ClassCount() int {
	n := 0
	for _, p := range b.Packages {
		n += len(p.Classes)
	}
	return n
}

// FindClass returns the class with the given VM name, or nil.
func (b *Bundle) FindClass(name string) *Class {
	for _, p := range b.Packages {
		for _, c := range p.Classes {
			if c.Name == name {
				return c
			}
		}
	}
	return nil
}

// bundleBuilder collects classes while a root is walked.
type bundleBuilder struct {
	name     string
	packages map[string]*Package
	seen     map[string]*Class
	errors   []*ClassError
}

func newBundleBuilder(name string) *bundleBuilder {
	return &bundleBuilder{
		name:     name,
		packages: make(map[string]*Package),
		seen:     make(map[string]*Class),
	}
}

// add registers c. A second class with the same name is ignored when its
// id matches, and recorded as an error otherwise.
func (bb *bundleBuilder) add(c *Class) {
	if prev, ok := bb.seen[c.Name]; ok {
		if prev.ID != c.ID {
			bb.fail(c.Source, ErrDuplicateClass)
		}
		return
	}
	bb.seen[c.Name] = c

	pkgName := c.PackageName()
	pkg, ok := bb.packages[pkgName]
	if !ok {
		pkg = &Package{Name: pkgName}
		bb.packages[pkgName] = pkg
	}
	pkg.Classes = append(pkg.Classes, c)
}

func (bb *bundleBuilder) fail(location string, err error) {
	bb.errors = append(bb.errors, &ClassError{Location: location, Err: err})
}

func (bb *bundleBuilder) build() *Bundle {
	b := &Bundle{Name: bb.name, Errors: bb.errors}
	for _, pkg := range bb.packages {
		sort.Slice(pkg.Classes, func(i, j int) bool {
			return pkg.Classes[i].Name < pkg.Classes[j].Name
		})
		b.Packages = append(b.Packages, pkg)
	}
	sort.Slice(b.Packages, func(i, j int) bool {
		return b.Packages[i].Name < b.Packages[j].Name
	})
	return b
}
