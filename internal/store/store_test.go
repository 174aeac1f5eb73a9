package store

import (
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexsaveliev/srclib-basic-sub000/internal/graph"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Migrate())
	t.Cleanup(func() { s.Close() })
	return s
}

func testUnit(name, typ string, files ...string) *graph.SourceUnit {
	return &graph.SourceUnit{Name: name, Type: typ, Dir: "/src/" + name, Files: files}
}

// baseDerived is the graph of a Base class with m() and a Derived subclass
// whose call $d->m() resolved to Base/m().
func baseDerived() *graph.Output {
	return &graph.Output{
		Defs: []graph.DefOut{
			{Path: "Base", TreePath: "Base", Name: "Base", Kind: "class", File: "a.php", DefStart: 6, DefEnd: 40, Exported: true},
			{Path: "Base/m()", TreePath: "Base/m", Name: "m", Kind: "method", File: "a.php", DefStart: 13, DefEnd: 38, Exported: true},
			{Path: "Derived", TreePath: "Derived", Name: "Derived", Kind: "class", File: "b.php", DefStart: 6, DefEnd: 36, Exported: true},
		},
		Refs: []graph.RefOut{
			{DefPath: "Base", Def: true, File: "a.php", Start: 12, End: 16},
			{DefPath: "Base/m()", Def: true, File: "a.php", Start: 29, End: 30},
			{DefPath: "Derived", Def: true, File: "b.php", Start: 12, End: 19},
			{DefPath: "Base", File: "b.php", Start: 28, End: 32},
			{DefPath: "Base/m()", File: "b.php", Start: 50, End: 51},
		},
	}
}

// =============================================================================
// Schema & Lifecycle
// =============================================================================

func TestMigrate_AllTablesExist(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	for _, table := range []string{"units", "defs", "refs", "metadata"} {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		require.NoError(t, err, "table %s should exist", table)
		assert.Equal(t, table, name)
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	require.NoError(t, s.Migrate())

	v, err := s.GetMetadata(MetaSchemaVersion)
	require.NoError(t, err)
	assert.Equal(t, SchemaVersion, v)
}

func TestMigrate_DropsOlderSchema(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	_, err := s.WriteGraph(testUnit("demo", "php", "a.php", "b.php"), "h1", baseDerived())
	require.NoError(t, err)
	require.NoError(t, s.SetMetadata(MetaSchemaVersion, "1"))

	require.NoError(t, s.Migrate())

	units, err := s.Units()
	require.NoError(t, err)
	assert.Empty(t, units, "graphs of an older schema are discarded")
	v, err := s.GetMetadata(MetaSchemaVersion)
	require.NoError(t, err)
	assert.Equal(t, SchemaVersion, v)

	var n int
	require.NoError(t, s.db.QueryRow("SELECT COUNT(*) FROM pragma_table_info('defs') WHERE name = 'key'").Scan(&n))
	assert.Equal(t, 1, n)
}

func TestMigrate_WALMode(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	var mode string
	err := s.db.QueryRow("PRAGMA journal_mode").Scan(&mode)
	require.NoError(t, err)
	assert.Equal(t, "wal", mode)
}

func TestNewStore_InvalidPath(t *testing.T) {
	t.Parallel()
	_, err := NewStore(filepath.Join(t.TempDir(), "missing", "dir", "db.sqlite"))
	require.Error(t, err)
}

// =============================================================================
// Graph writes
// =============================================================================

func TestWriteGraph_StoresUnitDefsAndRefs(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	unit := testUnit("demo", "php", "a.php", "b.php")
	unit.Dependencies = []string{"psr/log"}

	u, err := s.WriteGraph(unit, "h1", baseDerived())
	require.NoError(t, err)
	require.Positive(t, u.ID)

	got, err := s.UnitByName("demo", "php")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, u.ID, got.ID)
	assert.Equal(t, "/src/demo", got.Dir)
	assert.Equal(t, []string{"a.php", "b.php"}, got.Files)
	assert.Equal(t, []string{"psr/log"}, got.Dependencies)
	assert.Equal(t, "h1", got.Hash)
	assert.False(t, got.IndexedAt.IsZero())

	defs, err := s.DefsByUnit(u.ID)
	require.NoError(t, err)
	require.Len(t, defs, 3)
	assert.Equal(t, "Base", defs[0].Path)
	assert.Equal(t, "Base/m()", defs[1].Path)
	assert.Equal(t, "Derived", defs[2].Path)
	assert.Equal(t, "demo", defs[0].Unit)
	assert.Equal(t, uint32(13), defs[1].DefStart)
	assert.True(t, defs[1].Exported)
}

func TestWriteGraph_ReplacesPreviousGraph(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	unit := testUnit("demo", "php", "a.php", "b.php")

	first, err := s.WriteGraph(unit, "h1", baseDerived())
	require.NoError(t, err)

	out := &graph.Output{
		Defs: []graph.DefOut{{Path: "Only", TreePath: "Only", Name: "Only", Kind: "class", File: "a.php", DefStart: 0, DefEnd: 10}},
		Refs: []graph.RefOut{{DefPath: "Only", Def: true, File: "a.php", Start: 6, End: 10}},
	}
	second, err := s.WriteGraph(unit, "h2", out)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID, "unit row is reused")

	defs, err := s.DefsByUnit(second.ID)
	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.Equal(t, "Only", defs[0].Path)

	refs, err := s.RefsInFile(second.ID, "b.php")
	require.NoError(t, err)
	assert.Empty(t, refs)

	got, err := s.UnitByName("demo", "php")
	require.NoError(t, err)
	assert.Equal(t, "h2", got.Hash)
}

func TestWriteGraph_DuplicateKeyKeepsFirst(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	out := &graph.Output{Defs: []graph.DefOut{
		{Path: "x", TreePath: "x", Name: "x", Kind: "variable", File: "a.c", DefStart: 1, DefEnd: 2},
		{Path: "x", TreePath: "x", Name: "x", Kind: "variable", File: "a.c", DefStart: 9, DefEnd: 10},
	}}
	u, err := s.WriteGraph(testUnit("dup", "c", "a.c"), "", out)
	require.NoError(t, err)

	d, err := s.DefByPath(u.ID, "x")
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, uint32(1), d.DefStart)
}

func TestWriteGraph_SharedPathDistinctKeys(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	out := &graph.Output{
		Defs: []graph.DefOut{
			{Key: "namespace:A/constant:B", Path: "A/B", TreePath: "A/B", Name: "B", Kind: "constant", File: "a.php", DefStart: 20, DefEnd: 25},
			{Key: "namespace:A/type:B", Path: "A/B", TreePath: "A/B", Name: "B", Kind: "class", File: "a.php", DefStart: 27, DefEnd: 37},
		},
		Refs: []graph.RefOut{
			{DefKey: "namespace:A/constant:B", DefPath: "A/B", Def: true, File: "a.php", Start: 26, End: 27},
			{DefKey: "namespace:A/type:B", DefPath: "A/B", Def: true, File: "a.php", Start: 33, End: 34},
			{DefKey: "namespace:A/constant:B", DefPath: "A/B", File: "a.php", Start: 43, End: 44},
			{DefKey: "namespace:A/type:B", DefPath: "A/B", File: "a.php", Start: 57, End: 58},
		},
	}
	u, err := s.WriteGraph(testUnit("ns", "php", "a.php"), "", out)
	require.NoError(t, err)

	defs, err := s.DefsByUnit(u.ID)
	require.NoError(t, err)
	require.Len(t, defs, 2, "both defs survive a shared path")

	cls, err := s.DefByKey(u.ID, "namespace:A/type:B")
	require.NoError(t, err)
	require.NotNil(t, cls)
	assert.Equal(t, "class", cls.Kind)
	assert.Equal(t, "A/B", cls.Path)

	byPath, err := s.DefByPath(u.ID, "A/B")
	require.NoError(t, err)
	require.NotNil(t, byPath)
	assert.Equal(t, "constant", byPath.Kind, "earliest def wins a path lookup")

	refs, err := s.RefsToKey(u.ID, "namespace:A/constant:B")
	require.NoError(t, err)
	require.Len(t, refs, 2)
	assert.Equal(t, []uint32{26, 43}, []uint32{refs[0].Start, refs[1].Start})

	refs, err = s.RefsToDef(u.ID, "A/B")
	require.NoError(t, err)
	assert.Len(t, refs, 4)

	at, err := s.DefinitionAt("a.php", 57)
	require.NoError(t, err)
	require.Len(t, at, 1)
	assert.Equal(t, "class", at[0].Kind)

	at, err = s.DefinitionAt("a.php", 43)
	require.NoError(t, err)
	require.Len(t, at, 1)
	assert.Equal(t, "constant", at[0].Kind)
}

func TestWriteGraph_SameNameDifferentTypes(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	php, err := s.WriteGraph(testUnit("demo", "php", "a.php"), "", baseDerived())
	require.NoError(t, err)
	c, err := s.WriteGraph(testUnit("demo", "c", "a.c"), "", &graph.Output{
		Defs: []graph.DefOut{{Path: "Base", TreePath: "Base", Name: "Base", Kind: "struct", File: "a.c", DefStart: 0, DefEnd: 4}},
		Refs: []graph.RefOut{{DefPath: "Base", Def: true, File: "a.c", Start: 0, End: 4}},
	})
	require.NoError(t, err)
	assert.NotEqual(t, php.ID, c.ID)

	refs, err := s.RefsToDef(c.ID, "Base")
	require.NoError(t, err)
	require.Len(t, refs, 1, "php refs to Base never reach the c unit")
	assert.Equal(t, "a.c", refs[0].File)

	units, err := s.Units()
	require.NoError(t, err)
	require.Len(t, units, 2)
	assert.Equal(t, "c", units[0].Type)
	assert.Equal(t, "php", units[1].Type)
}

func TestDeleteUnit_Cascades(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	u, err := s.WriteGraph(testUnit("demo", "php", "a.php", "b.php"), "", baseDerived())
	require.NoError(t, err)

	require.NoError(t, s.DeleteUnit("demo", "php"))

	got, err := s.UnitByName("demo", "php")
	require.NoError(t, err)
	assert.Nil(t, got)
	defs, err := s.DefsByUnit(u.ID)
	require.NoError(t, err)
	assert.Empty(t, defs)
	refs, err := s.RefsInFile(u.ID, "b.php")
	require.NoError(t, err)
	assert.Empty(t, refs)
}

// =============================================================================
// Queries
// =============================================================================

func TestDefByPath_NotFound(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	u, err := s.WriteGraph(testUnit("demo", "php", "a.php"), "", baseDerived())
	require.NoError(t, err)

	d, err := s.DefByPath(u.ID, "Nope")
	require.NoError(t, err)
	assert.Nil(t, d)

	got, err := s.UnitByName("other", "php")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestDefsByNameAndPaths(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	u, err := s.WriteGraph(testUnit("demo", "php", "a.php", "b.php"), "", baseDerived())
	require.NoError(t, err)

	defs, err := s.DefsByName("m")
	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.Equal(t, "Base/m()", defs[0].Path)

	defs, err = s.DefsByPaths(u.ID, []string{"Derived", "Base", "Missing"})
	require.NoError(t, err)
	require.Len(t, defs, 2)
	assert.Equal(t, "Base", defs[0].Path)
	assert.Equal(t, "Derived", defs[1].Path)

	defs, err = s.DefsByPaths(u.ID, nil)
	require.NoError(t, err)
	assert.Empty(t, defs)
}

func TestRefsToDef(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	u, err := s.WriteGraph(testUnit("demo", "php", "a.php", "b.php"), "", baseDerived())
	require.NoError(t, err)

	refs, err := s.RefsToDef(u.ID, "Base/m()")
	require.NoError(t, err)
	require.Len(t, refs, 2)
	assert.True(t, refs[0].Def)
	assert.Equal(t, "a.php", refs[0].File)
	assert.False(t, refs[1].Def)
	assert.Equal(t, "b.php", refs[1].File)
	assert.Equal(t, uint32(50), refs[1].Start)
	assert.Equal(t, "demo", refs[1].DefUnit, "empty def unit is stored as the unit itself")
}

func TestRefsToDef_CrossUnit(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	lib, err := s.WriteGraph(testUnit("lib", "php", "a.php"), "", baseDerived())
	require.NoError(t, err)
	_, err = s.WriteGraph(testUnit("app", "php", "main.php"), "", &graph.Output{
		Refs: []graph.RefOut{{DefUnit: "lib", DefPath: "Base", File: "main.php", Start: 3, End: 7}},
	})
	require.NoError(t, err)

	refs, err := s.RefsToDef(lib.ID, "Base")
	require.NoError(t, err)
	var units []string
	for _, r := range refs {
		units = append(units, r.Unit)
	}
	assert.ElementsMatch(t, []string{"app", "lib", "lib"}, units)
}

func TestRefsInFile(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	u, err := s.WriteGraph(testUnit("demo", "php", "a.php", "b.php"), "", baseDerived())
	require.NoError(t, err)

	refs, err := s.RefsInFile(u.ID, "b.php")
	require.NoError(t, err)
	require.Len(t, refs, 3)
	assert.Equal(t, []uint32{12, 28, 50}, []uint32{refs[0].Start, refs[1].Start, refs[2].Start})
}

func TestDefinitionAt(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	_, err := s.WriteGraph(testUnit("demo", "php", "a.php", "b.php"), "", baseDerived())
	require.NoError(t, err)

	defs, err := s.DefinitionAt("b.php", 50)
	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.Equal(t, "Base/m()", defs[0].Path)
	assert.Equal(t, "a.php", defs[0].File)

	defs, err = s.DefinitionAt("b.php", 31)
	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.Equal(t, "Base", defs[0].Path)

	defs, err = s.DefinitionAt("b.php", 32)
	require.NoError(t, err)
	assert.Empty(t, defs, "end offset is exclusive")
}

func TestDefinitionAt_FanOutAndInnermost(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	out := &graph.Output{
		Defs: []graph.DefOut{
			{Path: "a/x", TreePath: "a/x", Name: "x", Kind: "field", File: "f.c", DefStart: 11, DefEnd: 12},
			{Path: "b/x", TreePath: "b/x", Name: "x", Kind: "field", File: "f.c", DefStart: 32, DefEnd: 33},
			{Path: "get()", TreePath: "get", Name: "get", Kind: "function", File: "f.c", DefStart: 40, DefEnd: 80},
		},
		Refs: []graph.RefOut{
			{DefPath: "get()", Def: true, File: "f.c", Start: 40, End: 80},
			{DefPath: "a/x", File: "f.c", Start: 70, End: 71},
			{DefPath: "b/x", File: "f.c", Start: 70, End: 71},
		},
	}
	_, err := s.WriteGraph(testUnit("fan", "c", "f.c"), "", out)
	require.NoError(t, err)

	defs, err := s.DefinitionAt("f.c", 70)
	require.NoError(t, err)
	require.Len(t, defs, 2)
	assert.Equal(t, "a/x", defs[0].Path)
	assert.Equal(t, "b/x", defs[1].Path)

	defs, err = s.DefinitionAt("f.c", 45)
	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.Equal(t, "get()", defs[0].Path)
}

func TestMetadata(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	v, err := s.GetMetadata(MetaRoot)
	require.NoError(t, err)
	assert.Empty(t, v)

	require.NoError(t, s.SetMetadata(MetaRoot, "/a"))
	require.NoError(t, s.SetMetadata(MetaRoot, "/b"))
	v, err = s.GetMetadata(MetaRoot)
	require.NoError(t, err)
	assert.Equal(t, "/b", v)
}

// =============================================================================
// Unit hash
// =============================================================================

func TestComputeUnitHash_Deterministic(t *testing.T) {
	t.Parallel()
	fsys := fstest.MapFS{
		"a.php": {Data: []byte("<?php class A {}")},
		"b.php": {Data: []byte("<?php class B {}")},
	}
	h1, err := ComputeUnitHash(testUnit("demo", "php", "a.php", "b.php"), fsys)
	require.NoError(t, err)
	h2, err := ComputeUnitHash(testUnit("demo", "php", "b.php", "a.php"), fsys)
	require.NoError(t, err)
	assert.Equal(t, h1, h2, "file order does not matter")
	assert.Len(t, h1, 64)
}

func TestComputeUnitHash_Changes(t *testing.T) {
	t.Parallel()
	fsys := fstest.MapFS{"a.php": {Data: []byte("<?php class A {}")}}
	base, err := ComputeUnitHash(testUnit("demo", "php", "a.php"), fsys)
	require.NoError(t, err)

	edited := fstest.MapFS{"a.php": {Data: []byte("<?php class A { }")}}
	h, err := ComputeUnitHash(testUnit("demo", "php", "a.php"), edited)
	require.NoError(t, err)
	assert.NotEqual(t, base, h, "content change")

	h, err = ComputeUnitHash(testUnit("other", "php", "a.php"), fsys)
	require.NoError(t, err)
	assert.NotEqual(t, base, h, "name change")

	withDep := testUnit("demo", "php", "a.php")
	withDep.Dependencies = []string{"psr/log"}
	h, err = ComputeUnitHash(withDep, fsys)
	require.NoError(t, err)
	assert.NotEqual(t, base, h, "dependency change")

	h, err = ComputeUnitHash(testUnit("demo", "php", "a.php", "gone.php"), fsys)
	require.NoError(t, err)
	assert.NotEqual(t, base, h, "missing file still counts")
}

func TestComputeUnitHash_ReadsUnitDir(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.c"), []byte("int x;"), 0o644))
	unit := &graph.SourceUnit{Name: "d", Type: "c", Dir: dir, Files: []string{"a.c"}}

	fromDir, err := ComputeUnitHash(unit, nil)
	require.NoError(t, err)
	fromFS, err := ComputeUnitHash(unit, fstest.MapFS{"a.c": {Data: []byte("int x;")}})
	require.NoError(t, err)
	assert.Equal(t, fromDir, fromFS)
}
