package runtime

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexsaveliev/srclib-basic-sub000/internal/graph"
	"github.com/alexsaveliev/srclib-basic-sub000/internal/traverse"
)

const cTestSource = `#include "point.h"

struct point {
	int x;
	int y;
};

int add(int a, int b) {
	return a + b;
}

int main(void) {
	return add(1, 2);
}
`

// --- Language tests ---

func TestParserForLanguage(t *testing.T) {
	t.Parallel()
	for _, lang := range []string{"c", "php"} {
		l, ok := ParserForLanguage(lang)
		assert.True(t, ok, lang)
		assert.NotNil(t, l, lang)
	}
	_, ok := ParserForLanguage("cobol")
	assert.False(t, ok)
	assert.Equal(t, []string{"c", "php"}, Languages())
}

func TestParse_RegistersSource(t *testing.T) {
	t.Parallel()
	rt := NewRuntime("")
	tree, err := rt.Parse(context.Background(), []byte(cTestSource), "c")
	require.NoError(t, err)
	defer rt.Release(tree)

	root := tree.RootNode()
	assert.Equal(t, "translation_unit", root.Type())
	src, ok := rt.sources.sourceForNode(root.NamedChild(0))
	require.True(t, ok)
	assert.Equal(t, cTestSource, string(src))
}

func TestParse_UnsupportedLanguage(t *testing.T) {
	t.Parallel()
	_, err := NewRuntime("").Parse(context.Background(), []byte("x"), "cobol")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported language")
}

func TestRelease_ForgetsSource(t *testing.T) {
	t.Parallel()
	rt := NewRuntime("")
	tree, err := rt.Parse(context.Background(), []byte("int x;"), "c")
	require.NoError(t, err)
	rt.Release(tree)
	rt.sources.mu.RLock()
	defer rt.sources.mu.RUnlock()
	assert.Empty(t, rt.sources.sources)
	assert.Empty(t, rt.sources.langs)
}

func TestUnquote(t *testing.T) {
	t.Parallel()
	tests := map[string]string{
		`"point.h"`:    "point.h",
		`<stdio.h>`:    "stdio.h",
		`'lib/a.php'`:  "lib/a.php",
		`"a\tb"`:       "a\tb",
		`plain`:        "plain",
		`"`:            `"`,
		`  "spaced"  `: "spaced",
	}
	for in, want := range tests {
		assert.Equal(t, want, Unquote(in), in)
	}
}

// --- Risor integration tests (via RunSource) ---

func TestRunSource_ParseAndNodeText(t *testing.T) {
	rt := NewRuntime("")
	script := `
tree := parse_src(src, "c")
root := tree.RootNode()
assert(root.Type() == "translation_unit", "expected translation_unit")

names := []
count := int(root.NamedChildCount())
for i := 0; i < count; i++ {
    child := root.NamedChild(i)
    if child.Type() == "function_definition" {
        decl := node_child(child, "declarator")
        names.append(node_text(node_child(decl, "declarator")))
    }
}
assert(len(names) == 2, 'expected 2 functions, got {len(names)}')
assert(names[0] == "add", 'expected add, got {names[0]}')
assert(names[1] == "main", 'expected main, got {names[1]}')
`
	err := rt.RunSource(context.Background(), script, map[string]any{"src": cTestSource})
	require.NoError(t, err)
}

func TestRunSource_ParseFromDisk(t *testing.T) {
	dir := t.TempDir()
	cFile := filepath.Join(dir, "main.c")
	require.NoError(t, os.WriteFile(cFile, []byte(cTestSource), 0644))

	rt := NewRuntime("")
	script := `
tree := parse(path, "c")
matches := query("(function_definition declarator: (function_declarator declarator: (identifier) @name))", tree.RootNode())
assert(len(matches) == 2, 'expected 2 matches, got {len(matches)}')
assert(node_text(matches[0]["name"]) == "add", "expected add")
`
	err := rt.RunSource(context.Background(), script, map[string]any{"path": cFile})
	require.NoError(t, err)
}

func TestRunSource_QueryInvalidPattern(t *testing.T) {
	rt := NewRuntime("")
	script := `
tree := parse_src(src, "c")
query("(not_a_real_node_type @x)", tree.RootNode())
`
	err := rt.RunSource(context.Background(), script, map[string]any{"src": cTestSource})
	require.Error(t, err)
}

func TestRunSource_NodeChildMissingIsNil(t *testing.T) {
	rt := NewRuntime("")
	script := `
tree := parse_src("int x;", "c")
root := tree.RootNode()
assert(node_child(root, "nope") == nil, "expected nil")
assert(unquote("\"a.h\"") == "a.h", "unquote")
`
	require.NoError(t, rt.RunSource(context.Background(), script, nil))
}

// --- Script loading ---

func TestRunScript_LoadsFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "test.risor"), []byte(`result := 1 + 1`), 0644))

	rt := NewRuntime(dir)
	require.NoError(t, rt.RunScript(context.Background(), "test.risor", nil))
	assert.True(t, rt.HasScript("test.risor"))
	assert.False(t, rt.HasScript("missing.risor"))
}

func TestRunScript_MissingFile(t *testing.T) {
	rt := NewRuntime(t.TempDir())
	err := rt.RunScript(context.Background(), "nonexistent.risor", nil)
	require.Error(t, err)
}

func TestLoadScript_Cached(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	p := filepath.Join(dir, "test.risor")
	require.NoError(t, os.WriteFile(p, []byte(`x := 42`), 0644))

	rt := NewRuntime(dir)
	got, err := rt.LoadScript(p)
	require.NoError(t, err)
	assert.Equal(t, `x := 42`, got)

	require.NoError(t, os.WriteFile(p, []byte(`x := 43`), 0644))
	got, err = rt.LoadScript(p)
	require.NoError(t, err)
	assert.Equal(t, `x := 42`, got, "scripts are read once")
}

func TestScriptPaths(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "graph/c.risor", GraphScriptPath("c"))
	assert.Equal(t, "resolve/c.risor", ResolutionScriptPath("c"))
}

func TestLoadScript_FromFS(t *testing.T) {
	t.Parallel()
	mapFS := fstest.MapFS{
		"graph/c.risor": &fstest.MapFile{Data: []byte(`y := 99`)},
	}
	rt := NewRuntime("", WithRuntimeFS(mapFS))

	got, err := rt.LoadScript("/graph/c.risor")
	require.NoError(t, err)
	assert.Equal(t, `y := 99`, got)

	_, err = rt.LoadScript("nonexistent.risor")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "from fs")
}

// --- Importer wiring tests ---

func TestImport_FSImporter(t *testing.T) {
	mapFS := fstest.MapFS{
		"lib_helpers.risor": &fstest.MapFile{Data: []byte(`
func greet(name) {
	return "hello " + name
}
`)},
	}
	rt := NewRuntime("", WithRuntimeFS(mapFS))
	script := `
import lib_helpers

msg := lib_helpers.greet("world")
assert(msg == "hello world", 'expected "hello world", got ' + msg)
`
	require.NoError(t, rt.RunSource(context.Background(), script, nil))
}

func TestImport_LocalImporterSeesGlobals(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "helper.risor"), []byte(`
func do_log(msg) {
	log.Info(msg)
}
`), 0644))

	rt := NewRuntime(dir)
	script := `
import helper
helper.do_log("test message")
`
	require.NoError(t, rt.RunSource(context.Background(), script, nil))
}

// --- Kernel host functions ---

// runKernelScript runs script once per declared file of a unit built from
// files, with the kernel globals bound.
func runKernelScript(t *testing.T, files map[string]string, script string) (*traverse.Controller, *Keys) {
	t.Helper()
	fsys := fstest.MapFS{}
	var names []string
	for name, body := range files {
		fsys[name] = &fstest.MapFile{Data: []byte(body)}
		names = append(names, name)
	}
	unit := &graph.SourceUnit{Name: "u", Type: "c", Dir: "/src", Files: names}
	ctl := traverse.New(unit, graph.NewCollector(nil), traverse.WithFS(fsys))
	rt := NewRuntime("")
	keys := NewKeys()
	err := ctl.Run(context.Background(), func(x *traverse.Context) error {
		tree, err := rt.Parse(x.Context(), x.Source(), "c")
		if err != nil {
			return err
		}
		defer rt.Release(tree)
		globals := KernelGlobals(x, keys)
		globals["root"] = mustProxy(tree.RootNode())
		return rt.RunSource(x.Context(), script, globals)
	})
	require.NoError(t, err)
	return ctl, keys
}

func TestKernel_DefineReferAndScopes(t *testing.T) {
	script := `
f := node_child(root.NamedChild(0), "declarator")
fn := define(f, "add", "function")
enter_scope("add", fn)
a := define(f, "a", "variable", {"local": true})
assert(key_path(a) == "add()/a", 'got {key_path(a)}')
assert(scope_path("/") == "add", "scope path")
assert(lookup("a") == a, "inner lookup")
assert(lookup("add") == fn, "outer lookup")
refer(f, lookup("a"))
exit_scope()
assert(lookup("a") == nil, "a out of scope")
b := anon("block")
assert(b == "block@a.c@0", 'got {b}')
candidate(f, "F", "x")
candidate(f, "M", "run", "Point")
`
	ctl, _ := runKernelScript(t, map[string]string{"a.c": "int add(int a) { return a; }"}, script)
	require.Zero(t, ctl.Stats().Failed, "%v", ctl.Errors())

	c := ctl.Collector()
	defs := c.Defs()
	require.Len(t, defs, 2)
	assert.Equal(t, "add()", defs[0].Key.Path())
	assert.True(t, defs[0].Exported)
	assert.Equal(t, "add()/a", defs[1].Key.Path())
	assert.True(t, defs[1].Local)
	assert.False(t, defs[1].Exported)

	var candidates []string
	for _, r := range c.Refs() {
		if r.IsCandidate {
			candidates = append(candidates, r.Target.Path())
		}
	}
	assert.Equal(t, []string{"(?F)x", "(?M)Point::run"}, candidates)
	// two self refs, one use of a, two candidates
	assert.Len(t, c.Refs(), 5)
}

func TestKernel_RootBindingsSpanFiles(t *testing.T) {
	script := `
if file_path == "a.h" {
    define(root, "shared", "variable")
} else {
    process("a.h")
    assert(lookup("shared") != nil, "binding from included file")
    assert(current_file() == "b.c", "current file")
}
`
	ctl, _ := runKernelScript(t, map[string]string{"b.c": "int y;", "a.h": "int shared;"}, script)
	require.Zero(t, ctl.Stats().Failed, "%v", ctl.Errors())
	assert.Equal(t, 2, ctl.Stats().Parsed)
}

func TestKernel_FileLevelStateIsPerFile(t *testing.T) {
	script := `
assert(lookup("x") == nil, "x leaked from another file")
define(root, "x", "variable")
b := anon("block")
assert(b == 'block@{file_path}@0', 'got {b}')
enter_scope("f")
assert(anon("block") == "block@0", "counter inside a scope")
exit_scope()
`
	ctl, keys := runKernelScript(t, map[string]string{"a.c": "int x;", "b.c": "int x;"}, script)
	require.Zero(t, ctl.Stats().Failed, "%v", ctl.Errors())
	assert.Equal(t, 2, ctl.Stats().Parsed)
	assert.Empty(t, keys.owners, "exited scopes release their owners")
}

func TestKernel_ExitRootFailsFile(t *testing.T) {
	ctl, _ := runKernelScript(t, map[string]string{"a.c": "int x;"}, `exit_scope()`)
	assert.Equal(t, 1, ctl.Stats().Failed)
	assert.Equal(t, 0, ctl.Scopes().Depth())
}

func TestResolveGlobals_FanOut(t *testing.T) {
	script := `
enter_scope("point", define(root, "point", "struct"))
define(root, "x", "field")
exit_scope()
enter_scope("size", define(root, "size", "struct"))
define(root, "x", "field")
exit_scope()
define(root, "x", "variable")
`
	ctl, keys := runKernelScript(t, map[string]string{"a.c": "int x;"}, script)
	require.Zero(t, ctl.Stats().Failed, "%v", ctl.Errors())

	var out []graph.DefKey
	globals := ResolveGlobals(ctl.Collector(), graph.NewCandidate(graph.MaybeField, "x"), keys, &out)
	resolve := `
assert(candidate_category == "F", "category")
defs := defs_named(candidate_name)
assert(len(defs) == 3, 'got {len(defs)}')
for i := 0; i < len(defs); i++ {
    if defs[i]["segment"] == "field" {
        resolve_to(defs[i]["id"])
    }
}
`
	require.NoError(t, NewRuntime("").RunSource(context.Background(), resolve, globals))
	require.Len(t, out, 2)
	assert.Equal(t, "point/x", out[0].Path())
	assert.Equal(t, "size/x", out[1].Path())
}
