package basic

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexsaveliev/srclib-basic-sub000/internal/config"
	"github.com/alexsaveliev/srclib-basic-sub000/internal/frontend"
)

func newTestEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	opts = append([]Option{WithStore(dbPath), WithConfig(config.Default())}, opts...)
	e, err := New(opts...)
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e
}

// writeTree writes files under a fresh temp dir and returns it.
func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, src := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(src), 0o644))
	}
	return root
}

const mixedPHP = "<?php\nclass Greeter {\n    public function hi() {}\n}\n(new Greeter())->hi();\n"
const mixedC = "int twice(int n) { return n * 2; }\nint main(void) { return twice(1); }\n"

func TestNew_CreatesStoreAndRuntime(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t)
	require.NotNil(t, e.runtime)
	require.NotNil(t, e.Store())

	v, err := e.Store().GetMetadata("schema_version")
	require.NoError(t, err)
	assert.NotEmpty(t, v, "migration ran")
}

func TestNew_InvalidPath(t *testing.T) {
	t.Parallel()
	_, err := New(WithStore("/nonexistent/dir/db.sqlite"))
	require.Error(t, err)
}

func TestNew_WithoutStore(t *testing.T) {
	t.Parallel()
	e, err := New(WithConfig(config.Default()))
	require.NoError(t, err)
	defer e.Close()
	assert.Nil(t, e.Store())

	_, err = e.Index(context.Background(), t.TempDir(), false)
	require.Error(t, err)
	_, err = e.Query().Units()
	require.Error(t, err)
}

func TestClose(t *testing.T) {
	t.Parallel()
	e, err := New(WithStore(filepath.Join(t.TempDir(), "test.db")))
	require.NoError(t, err)
	require.NoError(t, e.Close())
}

func TestWithLanguages(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, WithLanguages("php"))
	assert.Equal(t, []string{"php"}, e.Languages())

	all := newTestEngine(t)
	assert.Equal(t, []string{"c", "php"}, all.Languages())
}

func TestScan_OneUnitPerLanguage(t *testing.T) {
	t.Parallel()
	root := writeTree(t, map[string]string{"app/a.php": mixedPHP, "native/m.c": mixedC, "README": ""})
	e := newTestEngine(t)

	units, err := e.Scan(root)
	require.NoError(t, err)
	require.Len(t, units, 2)
	assert.Equal(t, "c", units[0].Type)
	assert.Equal(t, []string{"native/m.c"}, units[0].Files)
	assert.Equal(t, "php", units[1].Type)
	assert.Equal(t, []string{"app/a.php"}, units[1].Files)
	assert.Equal(t, filepath.Base(root), units[1].Name)
}

func TestScan_ReadsConfigFromRoot(t *testing.T) {
	t.Parallel()
	root := writeTree(t, map[string]string{
		"a.php":         mixedPHP,
		"m.c":           mixedC,
		config.FileName: "languages:\n  c:\n    disabled: true\n",
	})
	e, err := New()
	require.NoError(t, err)
	defer e.Close()

	units, err := e.Scan(root)
	require.NoError(t, err)
	require.Len(t, units, 1)
	assert.Equal(t, "php", units[0].Type)
}

func TestGraph_UnknownLanguage(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t)
	_, err := e.Graph(context.Background(), &SourceUnit{Name: "x", Type: "cobol"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, frontend.ErrUnknownLanguage))

	php := newTestEngine(t, WithLanguages("php"))
	_, err = php.Graph(context.Background(), &SourceUnit{Name: "x", Type: "c"})
	assert.True(t, errors.Is(err, frontend.ErrUnknownLanguage), "filtered languages are unknown")
}

func TestGraph_ResolvesCandidates(t *testing.T) {
	t.Parallel()
	root := writeTree(t, map[string]string{"a.php": mixedPHP})
	e := newTestEngine(t)

	res, err := e.Graph(context.Background(), &SourceUnit{Name: "demo", Type: "php", Dir: root, Files: []string{"a.php"}})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Resolution.Distinct)

	var targets []string
	for _, r := range res.Output.Refs {
		if !r.Def {
			targets = append(targets, r.DefPath)
		}
	}
	assert.Contains(t, targets, "Greeter/hi()")
}

func TestSave_PersistsGraph(t *testing.T) {
	t.Parallel()
	root := writeTree(t, map[string]string{"m.c": mixedC})
	e := newTestEngine(t)
	unit := &SourceUnit{Name: "demo", Type: "c", Dir: root, Files: []string{"m.c"}}

	res, err := e.Graph(context.Background(), unit)
	require.NoError(t, err)
	require.NoError(t, e.Save(unit, res.Output))

	d, err := e.Query().Def("demo", "c", "twice()")
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, "function", d.Kind)

	noStore, err := New()
	require.NoError(t, err)
	require.Error(t, noStore.Save(unit, res.Output))
}

func TestSave_HashesNormalizedUnit(t *testing.T) {
	t.Parallel()
	root := writeTree(t, map[string]string{"m.c": mixedC})
	e := newTestEngine(t)
	ctx := context.Background()
	name := filepath.Base(root)

	_, err := e.Index(ctx, root, false)
	require.NoError(t, err)
	indexed, err := e.store.UnitByName(name, "c")
	require.NoError(t, err)
	require.NotNil(t, indexed)

	unit := &SourceUnit{Name: name, Type: "c", Dir: root, Files: []string{filepath.Join(root, "m.c")}}
	res, err := e.Graph(ctx, &SourceUnit{Name: name, Type: "c", Dir: root, Files: []string{"m.c"}})
	require.NoError(t, err)
	require.NoError(t, e.Save(unit, res.Output))
	assert.Equal(t, []string{"m.c"}, unit.Files)

	saved, err := e.store.UnitByName(name, "c")
	require.NoError(t, err)
	assert.Equal(t, indexed.Hash, saved.Hash, "absolute file paths hash like relative ones")

	report, err := e.Index(ctx, root, false)
	require.NoError(t, err)
	require.Len(t, report.Units, 1)
	assert.True(t, report.Units[0].Skipped)
}

func TestIndex_GraphsAndSkipsUnchangedUnits(t *testing.T) {
	t.Parallel()
	root := writeTree(t, map[string]string{"a.php": mixedPHP, "m.c": mixedC})
	e := newTestEngine(t, WithParallelism(2))
	ctx := context.Background()

	report, err := e.Index(ctx, root, false)
	require.NoError(t, err)
	require.Len(t, report.Units, 2)
	assert.Zero(t, report.Failed())
	for _, u := range report.Units {
		assert.False(t, u.Skipped)
		assert.Positive(t, u.Defs)
	}

	report, err = e.Index(ctx, root, false)
	require.NoError(t, err)
	for _, u := range report.Units {
		assert.True(t, u.Skipped, "%s unchanged", u.Unit.Type)
	}

	report, err = e.Index(ctx, root, true)
	require.NoError(t, err)
	for _, u := range report.Units {
		assert.False(t, u.Skipped, "force reindexes %s", u.Unit.Type)
	}
}

func TestIndex_ReindexesChangedUnit(t *testing.T) {
	t.Parallel()
	root := writeTree(t, map[string]string{"a.php": mixedPHP, "m.c": mixedC})
	e := newTestEngine(t)
	ctx := context.Background()
	name := filepath.Base(root)

	_, err := e.Index(ctx, root, false)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(root, "m.c"), []byte("int thrice(int n) { return n * 3; }\n"), 0o644))
	report, err := e.Index(ctx, root, false)
	require.NoError(t, err)
	for _, u := range report.Units {
		assert.Equal(t, u.Unit.Type == "php", u.Skipped, "only the c unit changed")
	}

	d, err := e.Query().Def(name, "c", "twice()")
	require.NoError(t, err)
	assert.Nil(t, d)
	d, err = e.Query().Def(name, "c", "thrice()")
	require.NoError(t, err)
	assert.NotNil(t, d)
}

func TestIndex_RemovesVanishedUnits(t *testing.T) {
	t.Parallel()
	root := writeTree(t, map[string]string{"a.php": mixedPHP, "m.c": mixedC})
	e := newTestEngine(t)
	ctx := context.Background()

	_, err := e.Index(ctx, root, false)
	require.NoError(t, err)
	require.NoError(t, os.Remove(filepath.Join(root, "m.c")))

	report, err := e.Index(ctx, root, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"c:" + filepath.Base(root)}, report.Removed)

	units, err := e.Query().Units()
	require.NoError(t, err)
	require.Len(t, units, 1)
	assert.Equal(t, "php", units[0].Type)
}

func TestIndex_CancelledContext(t *testing.T) {
	t.Parallel()
	root := writeTree(t, map[string]string{"a.php": mixedPHP})
	e := newTestEngine(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Index(ctx, root, false)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestNew_WithScriptsFS_RunsGraphScript(t *testing.T) {
	t.Parallel()
	fsys := fstest.MapFS{
		"graph/c.risor": {Data: []byte(`define(root, "whole", "file", {"root": true})`)},
	}
	root := writeTree(t, map[string]string{"m.c": mixedC})
	e := newTestEngine(t, WithScriptsFS(fsys))

	res, err := e.Graph(context.Background(), &SourceUnit{Name: "demo", Type: "c", Dir: root, Files: []string{"m.c"}})
	require.NoError(t, err)
	require.Len(t, res.Output.Defs, 1)
	assert.Equal(t, "whole", res.Output.Defs[0].Path)
	assert.Equal(t, "file", res.Output.Defs[0].Kind)
}

func TestNew_WithScriptsDir(t *testing.T) {
	t.Parallel()
	dir := writeTree(t, map[string]string{
		"graph/c.risor": `define(root, "fromdisk", "variable", {"root": true})`,
	})
	root := writeTree(t, map[string]string{"m.c": mixedC})
	e := newTestEngine(t, WithScriptsDir(dir))

	res, err := e.Graph(context.Background(), &SourceUnit{Name: "demo", Type: "c", Dir: root, Files: []string{"m.c"}})
	require.NoError(t, err)
	require.Len(t, res.Output.Defs, 1)
	assert.Equal(t, "fromdisk", res.Output.Defs[0].Path)
}

func TestScriptsChanged(t *testing.T) {
	t.Parallel()
	root := writeTree(t, map[string]string{"m.c": mixedC})
	e := newTestEngine(t)
	assert.True(t, e.ScriptsChanged(), "no hash stored yet")

	_, err := e.Index(context.Background(), root, false)
	require.NoError(t, err)
	assert.False(t, e.ScriptsChanged())
}
