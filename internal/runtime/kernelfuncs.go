package runtime

import (
	"context"
	"fmt"

	"github.com/risor-io/risor/object"
	sitter "github.com/smacker/go-tree-sitter"

	"github.com/alexsaveliev/srclib-basic-sub000/internal/frontend"
	"github.com/alexsaveliev/srclib-basic-sub000/internal/graph"
	"github.com/alexsaveliev/srclib-basic-sub000/internal/scope"
	"github.com/alexsaveliev/srclib-basic-sub000/internal/traverse"
)

// Keys hands out string handles for definition keys. Risor scripts cannot
// hold Go structs, so define, lookup and refer exchange handles instead.
// One Keys value belongs to one source unit.
type Keys struct {
	byID   map[string]graph.DefKey
	owners map[*scope.Scope]graph.DefKey
}

func NewKeys() *Keys {
	return &Keys{
		byID:   make(map[string]graph.DefKey),
		owners: make(map[*scope.Scope]graph.DefKey),
	}
}

func (k *Keys) handle(key graph.DefKey) string {
	id := key.ID()
	k.byID[id] = key
	return id
}

// Key returns the key behind handle h.
func (k *Keys) Key(h string) (graph.DefKey, bool) {
	key, ok := k.byID[h]
	return key, ok
}

// owner returns the key that names definitions made in the innermost
// scope. Scopes not entered through enter_scope own the empty key.
func (k *Keys) owner(st *scope.Stack) graph.DefKey {
	return k.owners[st.Current()]
}

// segmentForKind maps a definition kind to the segment kind used in its key.
func segmentForKind(kind string) graph.SegmentKind {
	switch kind {
	case "function", "func":
		return graph.SegmentFunction
	case "method":
		return graph.SegmentMethod
	case "field", "member":
		return graph.SegmentField
	case "type", "struct", "union", "enum", "typedef", "class", "interface", "trait":
		return graph.SegmentType
	case "macro", "constant", "const", "enumerator":
		return graph.SegmentConstant
	case "namespace", "package", "module":
		return graph.SegmentNamespace
	case "property":
		return graph.SegmentProperty
	default:
		return graph.SegmentVariable
	}
}

func nodeSpan(n *sitter.Node) graph.Span {
	return graph.Span{Start: n.StartByte(), End: n.EndByte()}
}

func toNode(obj object.Object) (*sitter.Node, error) {
	proxy, ok := obj.(*object.Proxy)
	if !ok {
		return nil, fmt.Errorf("expected proxy (Node), got %s", obj.Type())
	}
	node, ok := proxy.Interface().(*sitter.Node)
	if !ok || node == nil {
		return nil, fmt.Errorf("expected *sitter.Node, got %T", proxy.Interface())
	}
	return node, nil
}

func isNil(obj object.Object) bool {
	if obj == nil {
		return true
	}
	_, ok := obj.(*object.NilType)
	return ok
}

// GraphFile parses the file behind x and runs lang's graph script over it
// with the kernel globals and `root` bound.
func (r *Runtime) GraphFile(x *traverse.Context, keys *Keys, lang string) error {
	tree, err := r.Parse(x.Context(), x.Source(), lang)
	if err != nil {
		return err
	}
	defer r.Release(tree)
	globals := KernelGlobals(x, keys)
	globals["root"] = mustProxy(tree.RootNode())
	return r.RunScript(x.Context(), GraphScriptPath(lang), globals)
}

// ResolveCandidate runs lang's resolution script for key. A language with
// no resolution script resolves nothing.
func (r *Runtime) ResolveCandidate(ctx context.Context, c *graph.Collector, keys *Keys, lang string, key graph.DefKey) ([]graph.DefKey, error) {
	p := ResolutionScriptPath(lang)
	if !r.HasScript(p) {
		return nil, nil
	}
	var out []graph.DefKey
	if err := r.RunScript(ctx, p, ResolveGlobals(c, key, keys, &out)); err != nil {
		return nil, err
	}
	return out, nil
}

// KernelGlobals builds the host functions a graph script uses to talk to
// the traversal of one file.
func KernelGlobals(x *traverse.Context, keys *Keys) map[string]any {
	return map[string]any{
		"file_path":    x.File(),
		"current_file": makeCurrentFileFn(x),
		"process":      makeProcessFn(x),
		"enter_scope":  makeEnterScopeFn(x, keys),
		"exit_scope":   makeExitScopeFn(x, keys),
		"anon":         makeAnonFn(x),
		"scope_path":   makeScopePathFn(x),
		"define":       makeDefineFn(x, keys),
		"bind":         makeBindFn(x, keys),
		"lookup":       makeLookupFn(x),
		"refer":        makeReferFn(x, keys),
		"candidate":    makeCandidateFn(x),
		"key_path":     makeKeyPathFn(keys),
	}
}

// current_file() → string
func makeCurrentFileFn(x *traverse.Context) *object.Builtin {
	return object.NewBuiltin("current_file", func(ctx context.Context, args ...object.Object) object.Object {
		return object.NewString(x.CurrentFile())
	})
}

// process(path) → bool
//
// Relative paths are tried against the current file's directory, then the
// unit root.
func makeProcessFn(x *traverse.Context) *object.Builtin {
	return object.NewBuiltin("process", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("process", 1, len(args))
		}
		p, err := toString(args[0])
		if err != nil {
			return object.Errorf("process: %v", err)
		}
		return object.NewBool(x.Include(p))
	})
}

// enter_scope(name, owner_handle?) → nil
//
// Definitions made while the scope is active are keyed under the owner. With
// no owner the scope is keyed as an anonymous child of the enclosing owner.
func makeEnterScopeFn(x *traverse.Context, keys *Keys) *object.Builtin {
	return object.NewBuiltin("enter_scope", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) < 1 || len(args) > 2 {
			return object.NewArgsError("enter_scope", 1, len(args))
		}
		name, err := toString(args[0])
		if err != nil {
			return object.Errorf("enter_scope: %v", err)
		}
		st := x.Scopes()
		owner := keys.owner(st).Child(name, graph.SegmentScope)
		if len(args) == 2 && !isNil(args[1]) {
			h, err := toString(args[1])
			if err != nil {
				return object.Errorf("enter_scope: %v", err)
			}
			key, ok := keys.Key(h)
			if !ok {
				return object.Errorf("enter_scope: unknown key handle")
			}
			owner = key
		}
		s := scope.New(name)
		keys.owners[s] = owner
		st.Enter(s)
		return object.Nil
	})
}

// exit_scope() → string (name of the popped scope)
//
// Exiting a scope the file did not enter aborts the file.
func makeExitScopeFn(x *traverse.Context, keys *Keys) *object.Builtin {
	return object.NewBuiltin("exit_scope", func(ctx context.Context, args ...object.Object) object.Object {
		s := x.Scopes().Exit()
		delete(keys.owners, s)
		return object.NewString(s.Name)
	})
}

// anon(prefix) → string
func makeAnonFn(x *traverse.Context) *object.Builtin {
	return object.NewBuiltin("anon", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("anon", 1, len(args))
		}
		prefix, err := toString(args[0])
		if err != nil {
			return object.Errorf("anon: %v", err)
		}
		return object.NewString(x.Anonymous(prefix))
	})
}

// scope_path(sep) → string
func makeScopePathFn(x *traverse.Context) *object.Builtin {
	return object.NewBuiltin("scope_path", func(ctx context.Context, args ...object.Object) object.Object {
		sep := "/"
		if len(args) > 0 {
			s, err := toString(args[0])
			if err != nil {
				return object.Errorf("scope_path: %v", err)
			}
			sep = s
		}
		return object.NewString(x.Scopes().Path(sep, 0))
	})
}

// define(node, name, kind, opts?) → handle
//
// opts keys: segment (segment kind), local, exported, test, root (key at
// the unit root instead of under the current owner), bind (default true).
func makeDefineFn(x *traverse.Context, keys *Keys) *object.Builtin {
	return object.NewBuiltin("define", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) < 3 || len(args) > 4 {
			return object.NewArgsError("define", 3, len(args))
		}
		node, err := toNode(args[0])
		if err != nil {
			return object.Errorf("define: %v", err)
		}
		name, err := toString(args[1])
		if err != nil {
			return object.Errorf("define: name: %v", err)
		}
		kind, err := toString(args[2])
		if err != nil {
			return object.Errorf("define: kind: %v", err)
		}
		opts := map[string]object.Object{}
		if len(args) == 4 && !isNil(args[3]) {
			if opts, err = extractMap(args[3]); err != nil {
				return object.Errorf("define: opts: %v", err)
			}
		}

		seg := segmentForKind(kind)
		if s := getString(opts, "segment"); s != "" {
			seg = graph.SegmentKind(s)
		}
		st := x.Scopes()
		owner := keys.owner(st)
		if getBool(opts, "root") {
			owner = graph.DefKey{}
		}
		key := owner.Child(name, seg)

		d := x.Def(nodeSpan(node), kind, key)
		d.Local = getBool(opts, "local")
		d.Exported = !d.Local
		if _, ok := opts["exported"]; ok {
			d.Exported = getBool(opts, "exported")
		}
		d.Test = frontend.IsTestFile(x.File())
		if _, ok := opts["test"]; ok {
			d.Test = getBool(opts, "test")
		}
		x.EmitDef(d)

		h := keys.handle(key)
		if b, ok := opts["bind"]; !ok || isTruthy(b) {
			if getBool(opts, "root") {
				st.Root().Bind(name, key)
			} else {
				st.Current().Bind(name, key)
			}
		}
		return object.NewString(h)
	})
}

func isTruthy(obj object.Object) bool {
	if b, ok := obj.(*object.Bool); ok {
		return b.Value()
	}
	return !isNil(obj)
}

// bind(name, handle) → nil
func makeBindFn(x *traverse.Context, keys *Keys) *object.Builtin {
	return object.NewBuiltin("bind", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 2 {
			return object.NewArgsError("bind", 2, len(args))
		}
		name, err := toString(args[0])
		if err != nil {
			return object.Errorf("bind: %v", err)
		}
		h, err := toString(args[1])
		if err != nil {
			return object.Errorf("bind: %v", err)
		}
		key, ok := keys.Key(h)
		if !ok {
			return object.Errorf("bind: unknown key handle")
		}
		x.Scopes().Current().Bind(name, key)
		return object.Nil
	})
}

// lookup(name) → handle or nil
func makeLookupFn(x *traverse.Context) *object.Builtin {
	return object.NewBuiltin("lookup", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("lookup", 1, len(args))
		}
		name, err := toString(args[0])
		if err != nil {
			return object.Errorf("lookup: %v", err)
		}
		v, _, _, ok := x.Scopes().Lookup(name)
		if !ok {
			return object.Nil
		}
		key, ok := v.(graph.DefKey)
		if !ok {
			return object.Nil
		}
		return object.NewString(key.ID())
	})
}

// refer(node, handle) → nil
func makeReferFn(x *traverse.Context, keys *Keys) *object.Builtin {
	return object.NewBuiltin("refer", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 2 {
			return object.NewArgsError("refer", 2, len(args))
		}
		node, err := toNode(args[0])
		if err != nil {
			return object.Errorf("refer: %v", err)
		}
		h, err := toString(args[1])
		if err != nil {
			return object.Errorf("refer: %v", err)
		}
		key, ok := keys.Key(h)
		if !ok {
			return object.Errorf("refer: unknown key handle")
		}
		x.EmitRef(x.Ref(nodeSpan(node), key))
		return object.Nil
	})
}

// candidate(node, category, name, receiver?) → nil
func makeCandidateFn(x *traverse.Context) *object.Builtin {
	return object.NewBuiltin("candidate", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) < 3 || len(args) > 4 {
			return object.NewArgsError("candidate", 3, len(args))
		}
		node, err := toNode(args[0])
		if err != nil {
			return object.Errorf("candidate: %v", err)
		}
		cat, err := toString(args[1])
		if err != nil || cat == "" {
			return object.Errorf("candidate: category must be a non-empty string")
		}
		name, err := toString(args[2])
		if err != nil {
			return object.Errorf("candidate: %v", err)
		}
		key := graph.NewCandidate(graph.Category(cat), name)
		if len(args) == 4 && !isNil(args[3]) {
			recv, err := toString(args[3])
			if err != nil {
				return object.Errorf("candidate: receiver: %v", err)
			}
			key = key.WithReceiver(recv)
		}
		x.EmitRef(x.Ref(nodeSpan(node), key))
		return object.Nil
	})
}

// key_path(handle) → string
func makeKeyPathFn(keys *Keys) *object.Builtin {
	return object.NewBuiltin("key_path", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("key_path", 1, len(args))
		}
		h, err := toString(args[0])
		if err != nil {
			return object.Errorf("key_path: %v", err)
		}
		key, ok := keys.Key(h)
		if !ok {
			return object.Nil
		}
		return object.NewString(key.Path())
	})
}

// ResolveGlobals builds the host functions a resolution script uses to map
// one candidate key to concrete keys. Targets passed to resolve_to are
// appended to out.
func ResolveGlobals(c *graph.Collector, key graph.DefKey, keys *Keys, out *[]graph.DefKey) map[string]any {
	return map[string]any{
		"candidate_name":     object.NewString(key.Name()),
		"candidate_category": object.NewString(string(key.Candidate)),
		"candidate_receiver": object.NewString(key.Receiver),
		"defs_named":         makeDefsNamedFn(c, keys),
		"resolve_to":         makeResolveToFn(keys, out),
	}
}

// defs_named(name) → [{id, path, kind, segment, depth, local, file}]
func makeDefsNamedFn(c *graph.Collector, keys *Keys) *object.Builtin {
	return object.NewBuiltin("defs_named", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("defs_named", 1, len(args))
		}
		name, err := toString(args[0])
		if err != nil {
			return object.Errorf("defs_named: %v", err)
		}
		results := []object.Object{}
		for _, d := range c.DefsNamed(name) {
			results = append(results, object.NewMap(map[string]object.Object{
				"id":      object.NewString(keys.handle(d.Key)),
				"path":    object.NewString(d.Key.Path()),
				"kind":    object.NewString(d.Kind),
				"segment": object.NewString(string(d.Key.Kind())),
				"depth":   object.NewInt(int64(len(d.Key.Segments))),
				"local":   object.NewBool(d.Local),
				"file":    object.NewString(d.File),
			}))
		}
		return object.NewList(results)
	})
}

// resolve_to(handle) → nil
func makeResolveToFn(keys *Keys, out *[]graph.DefKey) *object.Builtin {
	return object.NewBuiltin("resolve_to", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("resolve_to", 1, len(args))
		}
		h, err := toString(args[0])
		if err != nil {
			return object.Errorf("resolve_to: %v", err)
		}
		key, ok := keys.Key(h)
		if !ok {
			return object.Errorf("resolve_to: unknown key handle")
		}
		*out = append(*out, key)
		return object.Nil
	})
}

// --- Map extraction helpers ---

func extractMap(obj object.Object) (map[string]object.Object, error) {
	m, ok := obj.(*object.Map)
	if !ok {
		return nil, fmt.Errorf("expected map, got %s", obj.Type())
	}
	return m.Value(), nil
}

func getString(m map[string]object.Object, key string) string {
	v, ok := m[key]
	if !ok {
		return ""
	}
	if s, ok := v.(*object.String); ok {
		return s.Value()
	}
	return ""
}

func getBool(m map[string]object.Object, key string) bool {
	v, ok := m[key]
	if !ok {
		return false
	}
	if b, ok := v.(*object.Bool); ok {
		return b.Value()
	}
	return false
}

func toString(obj object.Object) (string, error) {
	if s, ok := obj.(*object.String); ok {
		return s.Value(), nil
	}
	return "", fmt.Errorf("expected string, got %s", obj.Type())
}
