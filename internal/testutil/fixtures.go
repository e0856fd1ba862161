// Package testutil builds class files, archives and execution records for
// tests.
package testutil

import (
	"archive/zip"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

// MethodSpec describes a generated method. A method with Exits n gets n
// return instructions behind n-1 conditional branches, which yields exactly
// n probes with consecutive ids. Zero exits produces an abstract method.
type MethodSpec struct {
	Name       string
	Descriptor string
	Exits      int
	Synthetic  bool
}

// Method is shorthand for a ()V method with the given number of exits.
func Method(name string, exits int) MethodSpec {
	return MethodSpec{Name: name, Descriptor: "()V", Exits: exits}
}

// SimpleClass builds a class whose methods contain only branches and
// returns. Probe ids follow the order of methods.
func SimpleClass(name string, methods ...MethodSpec) []byte {
	b := NewClassBuilder(name)
	for _, spec := range methods {
		access := AccPublic
		if spec.Synthetic {
			access |= AccSynthetic
		}
		desc := spec.Descriptor
		if desc == "" {
			desc = "()V"
		}
		if spec.Exits <= 0 {
			b.Method(access|AccAbstract, spec.Name, desc)
			continue
		}
		b.Method(access, spec.Name, desc).Code(exitsCode(spec.Exits))
	}
	return b.Bytes()
}

func exitsCode(n int) *CodeBuilder {
	code := NewCode()
	for i := 1; i < n; i++ {
		// iconst_0; ifeq next; return
		next := fmt.Sprintf("L%d", i)
		code.Op(0x03).Jump(0x99, next).Op(0xb1).Mark(next)
	}
	return code.Op(0xb1) // return
}

// WriteClass writes class bytes below dir at the path derived from the VM
// name and returns that path.
func WriteClass(t *testing.T, dir, vmName string, b []byte) string {
	t.Helper()
	path := filepath.Join(dir, filepath.FromSlash(vmName)+".class")
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("failed to create directory: %v", err)
	}
	if err := os.WriteFile(path, b, 0644); err != nil {
		t.Fatalf("failed to write class: %v", err)
	}
	return path
}

// ZipEntry is one entry of a generated archive.
type ZipEntry struct {
	Name string
	Data []byte
}

// ZipBytes builds an archive holding entries in the given order.
func ZipBytes(t *testing.T, entries ...ZipEntry) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range entries {
		w, err := zw.Create(e.Name)
		if err != nil {
			t.Fatalf("failed to create entry %s: %v", e.Name, err)
		}
		if _, err := w.Write(e.Data); err != nil {
			t.Fatalf("failed to write entry %s: %v", e.Name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("failed to close archive: %v", err)
	}
	return buf.Bytes()
}

// WriteZip writes an archive to path and returns path.
func WriteZip(t *testing.T, path string, entries ...ZipEntry) string {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("failed to create directory: %v", err)
	}
	if err := os.WriteFile(path, ZipBytes(t, entries...), 0644); err != nil {
		t.Fatalf("failed to write archive: %v", err)
	}
	return path
}

// WriteFile writes content to a file in the given directory.
func WriteFile(t *testing.T, dir, filename string, content []byte) string {
	t.Helper()
	path := filepath.Join(dir, filename)
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}
	return path
}

// FileExists checks if a file exists.
func FileExists(t *testing.T, path string) bool {
	t.Helper()
	_, err := os.Stat(path)
	return err == nil
}
