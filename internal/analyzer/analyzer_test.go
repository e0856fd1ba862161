package analyzer

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jacoco-filter/internal/execdata"
	"github.com/jacoco-filter/internal/testutil"
	"github.com/jacoco-filter/pkg/filter"
)

func classA() []byte {
	return testutil.SimpleClass("com/acme/A",
		testutil.Method("toString", 1),
		testutil.Method("compute", 2),
		testutil.MethodSpec{Name: "toString", Descriptor: "(I)Ljava/lang/String;", Exits: 1},
		testutil.MethodSpec{Name: "lambda$compute$0", Exits: 1, Synthetic: true},
	)
}

func instrumentedClass() []byte {
	b := testutil.NewClassBuilder("com/acme/Instrumented")
	b.Method(testutil.AccPrivate|testutil.AccStatic, "$jacocoInit", "()[Z")
	return b.Bytes()
}

// classpathFixture lays out a directory with loose classes, skipped classes,
// a broken class and an archive holding a nested archive.
func classpathFixture(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	testutil.WriteClass(t, dir, "com/acme/A", classA())
	testutil.WriteClass(t, dir, "com/acme/B", testutil.SimpleClass("com/acme/B", testutil.Method("run", 1)))
	testutil.WriteClass(t, dir, "Top", testutil.SimpleClass("Top", testutil.Method("main", 1)))
	testutil.WriteClass(t, dir, "module-info",
		testutil.NewClassBuilder("module-info").Access(testutil.AccModule).Bytes())
	testutil.WriteClass(t, dir, "com/acme/Gen",
		testutil.NewClassBuilder("com/acme/Gen").Access(testutil.AccPublic|testutil.AccSynthetic).Bytes())
	testutil.WriteClass(t, dir, "com/acme/Broken", []byte{0xCA, 0xFE, 0xBA, 0xBE, 0x00})
	testutil.WriteClass(t, dir, "com/acme/Instrumented", instrumentedClass())
	testutil.WriteFile(t, dir, "README.txt", []byte("not a class"))

	inner := testutil.ZipBytes(t, testutil.ZipEntry{
		Name: "org/y/D.class",
		Data: testutil.SimpleClass("org/y/D", testutil.Method("d", 1)),
	})
	testutil.WriteZip(t, filepath.Join(dir, "lib", "lib.jar"),
		testutil.ZipEntry{Name: "org/x/C.class", Data: testutil.SimpleClass("org/x/C", testutil.Method("c", 1))},
		testutil.ZipEntry{Name: "inner.jar", Data: inner},
		testutil.ZipEntry{Name: "bad.jar", Data: []byte("garbage")},
		testutil.ZipEntry{Name: "META-INF/MANIFEST.MF", Data: []byte("Manifest-Version: 1.0\n")},
	)
	return dir
}

func classNames(b *Bundle) []string {
	var names []string
	for _, c := range b.Classes() {
		names = append(names, c.Name)
	}
	return names
}

func TestAnalyze_Directory(t *testing.T) {
	dir := classpathFixture(t)

	bundle, err := New(Options{}).Analyze(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, filepath.Base(dir), bundle.Name)
	assert.Equal(t, []string{"Top", "com/acme/A", "com/acme/B", "org/x/C", "org/y/D"}, classNames(bundle))
	assert.Equal(t, 5, bundle.ClassCount())

	var pkgs []string
	for _, p := range bundle.Packages {
		pkgs = append(pkgs, p.Name)
	}
	assert.Equal(t, []string{"", "com/acme", "org/x", "org/y"}, pkgs)

	a := bundle.FindClass("com/acme/A")
	require.NotNil(t, a)
	assert.Equal(t, []string{"toString", "compute"}, a.Methods)
	assert.Equal(t, execdata.ClassID(classA()), a.ID)
	assert.Equal(t, filepath.Join(dir, "com", "acme", "A.class"), a.Source)

	d := bundle.FindClass("org/y/D")
	require.NotNil(t, d)
	assert.Equal(t, filepath.Join(dir, "lib", "lib.jar")+"!/inner.jar!/org/y/D.class", d.Source)

	require.Len(t, bundle.Errors, 3)
	var instrumented int
	for _, e := range bundle.Errors {
		if errors.Is(e, ErrInstrumented) {
			instrumented++
		}
	}
	assert.Equal(t, 1, instrumented)
}

func TestAnalyze_ClassFilter(t *testing.T) {
	dir := classpathFixture(t)

	a := New(Options{ClassFilter: filter.NewClassFilter([]string{"com.acme"}, []string{"com/acme/B"})})
	bundle, err := a.Analyze(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, []string{"com/acme/A"}, classNames(bundle))
}

func TestAnalyze_SingleClassFile(t *testing.T) {
	path := testutil.WriteClass(t, t.TempDir(), "com/acme/A", classA())

	bundle, err := New(Options{}).Analyze(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, "A.class", bundle.Name)
	assert.Equal(t, []string{"com/acme/A"}, classNames(bundle))
}

func TestAnalyze_ArchiveRoot(t *testing.T) {
	path := testutil.WriteZip(t, filepath.Join(t.TempDir(), "app.war"),
		testutil.ZipEntry{Name: "WEB-INF/classes/com/acme/A.class", Data: classA()},
	)

	bundle, err := New(Options{}).Analyze(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, "app.war", bundle.Name)
	assert.Equal(t, []string{"com/acme/A"}, classNames(bundle))
	assert.Empty(t, bundle.Errors)
}

func TestAnalyze_DuplicateClass(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteClass(t, dir, "com/acme/A", classA())
	testutil.WriteZip(t, filepath.Join(dir, "same.jar"),
		testutil.ZipEntry{Name: "com/acme/A.class", Data: classA()})
	testutil.WriteZip(t, filepath.Join(dir, "other.jar"),
		testutil.ZipEntry{Name: "com/acme/A.class", Data: testutil.SimpleClass("com/acme/A", testutil.Method("x", 1))})

	bundle, err := New(Options{}).Analyze(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, []string{"com/acme/A"}, classNames(bundle))
	require.Len(t, bundle.Errors, 1)
	assert.ErrorIs(t, bundle.Errors[0], ErrDuplicateClass)
}

func TestAnalyze_Errors(t *testing.T) {
	_, err := New(Options{}).Analyze(context.Background(), filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)

	bad := testutil.WriteFile(t, t.TempDir(), "bad.jar", []byte("not a zip"))
	_, err = New(Options{}).Analyze(context.Background(), bad)
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = New(Options{}).Analyze(ctx, classpathFixture(t))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAnalyzeAll(t *testing.T) {
	first := t.TempDir()
	second := t.TempDir()
	testutil.WriteClass(t, first, "a/One", testutil.SimpleClass("a/One", testutil.Method("m", 1)))
	testutil.WriteClass(t, second, "b/Two", testutil.SimpleClass("b/Two", testutil.Method("m", 1)))

	bundles, err := New(Options{MaxConcurrency: 1}).AnalyzeAll(context.Background(), []string{second, first})
	require.NoError(t, err)
	require.Len(t, bundles, 2)
	assert.Equal(t, []string{"b/Two"}, classNames(bundles[0]))
	assert.Equal(t, []string{"a/One"}, classNames(bundles[1]))

	_, err = New(Options{}).AnalyzeAll(context.Background(), []string{first, filepath.Join(first, "nope")})
	assert.Error(t, err)
}
