package php

import (
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/alexsaveliev/srclib-basic-sub000/internal/frontend"
	"github.com/alexsaveliev/srclib-basic-sub000/internal/graph"
	"github.com/alexsaveliev/srclib-basic-sub000/internal/resolve"
	"github.com/alexsaveliev/srclib-basic-sub000/internal/runtime"
	"github.com/alexsaveliev/srclib-basic-sub000/internal/traverse"
)

// indexer holds the unit-wide symbol tables. Class and function names are
// case-insensitive in PHP, so those tables are keyed by lowercased FQN.
// Constants and properties are case-sensitive.
type indexer struct {
	unit      *graph.SourceUnit
	hier      *resolve.Hierarchy
	classes   map[string]graph.DefKey
	members   map[string]graph.DefKey
	functions map[string]graph.DefKey
	constants map[string]graph.DefKey
}

func newIndexer(unit *graph.SourceUnit) *indexer {
	return &indexer{
		unit:      unit,
		hier:      resolve.NewHierarchy(),
		classes:   make(map[string]graph.DefKey),
		members:   make(map[string]graph.DefKey),
		functions: make(map[string]graph.DefKey),
		constants: make(map[string]graph.DefKey),
	}
}

var _ frontend.Indexer = (*indexer)(nil)

// ParseFile parses one file and walks it. Syntax errors are logged and the
// recoverable parts of the tree are still indexed.
func (ix *indexer) ParseFile(x *traverse.Context) error {
	lang, ok := runtime.ParserForLanguage(Name)
	if !ok {
		return fmt.Errorf("php: no grammar")
	}
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(lang)
	tree, err := parser.ParseCtx(x.Context(), nil, x.Source())
	if err != nil {
		return fmt.Errorf("php: parse: %w", err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		x.Logger().Warn("syntax errors in file, indexing what parsed")
	}
	newWalker(ix, x).walk(root)
	return nil
}

func memberID(cat graph.Category, name string) string {
	if cat == graph.MaybeMethod {
		name = strings.ToLower(name)
	}
	return string(cat) + ":" + name
}

func (ix *indexer) declareClass(fqn string, key graph.DefKey) {
	lf := strings.ToLower(fqn)
	ix.hier.Declare(lf)
	if _, ok := ix.classes[lf]; !ok {
		ix.classes[lf] = key
	}
}

func (ix *indexer) declareMember(class string, cat graph.Category, name string, key graph.DefKey) {
	lf := strings.ToLower(class)
	id := memberID(cat, name)
	ix.hier.Declare(lf, id)
	if _, ok := ix.members[lf+"::"+id]; !ok {
		ix.members[lf+"::"+id] = key
	}
}

func (ix *indexer) addEdge(from, to string, kind resolve.EdgeKind) {
	ix.hier.AddEdge(strings.ToLower(from), strings.ToLower(to), kind)
}

func (ix *indexer) class(fqn string) (graph.DefKey, bool) {
	k, ok := ix.classes[strings.ToLower(fqn)]
	return k, ok
}

func (ix *indexer) function(fqn string) (graph.DefKey, bool) {
	k, ok := ix.functions[strings.ToLower(fqn)]
	return k, ok
}

// Resolve maps a candidate to concrete keys.
//
// Members with a receiver resolve to the receiver's defining ancestor.
// Members without one fan out to the defining ancestor of every declared
// type, deduplicated, in declaration order. Globals fall back from the
// namespaced name to the global one, as PHP does for functions and
// constants.
func (ix *indexer) Resolve(key graph.DefKey) ([]graph.DefKey, error) {
	name := key.Name()
	switch key.Candidate {
	case graph.MaybeType:
		if k, ok := ix.class(name); ok {
			return []graph.DefKey{k}, nil
		}
		return nil, nil
	case graph.MaybeGlobal:
		for _, n := range []string{name, shortName(name)} {
			if k, ok := ix.function(n); ok {
				return []graph.DefKey{k}, nil
			}
			if k, ok := ix.constants[n]; ok {
				return []graph.DefKey{k}, nil
			}
		}
		return nil, nil
	case graph.MaybeMethod, graph.MaybeProperty, graph.MaybeConstant:
		return ix.resolveMember(key.Candidate, name, key.Receiver), nil
	}
	return nil, fmt.Errorf("php: unsupported candidate category %q", key.Candidate)
}

func (ix *indexer) resolveMember(cat graph.Category, name, receiver string) []graph.DefKey {
	id := memberID(cat, name)
	types := ix.hier.Types()
	if receiver != "" {
		types = []string{strings.ToLower(receiver)}
	}
	var out []graph.DefKey
	seen := make(map[string]bool)
	for _, t := range types {
		anc, ok := ix.hier.DefiningAncestor(t, id, resolve.DefaultOrder)
		if !ok || seen[anc] {
			continue
		}
		seen[anc] = true
		if k, ok := ix.members[anc+"::"+id]; ok {
			out = append(out, k)
		}
	}
	return out
}

// nsKey returns the key of namespace ns ("A\B").
func nsKey(ns string) graph.DefKey {
	var key graph.DefKey
	if ns == "" {
		return key
	}
	for _, part := range strings.Split(ns, `\`) {
		key = key.Child(part, graph.SegmentNamespace)
	}
	return key
}

// splitFQN splits "A\B\C" into namespace "A\B" and name "C".
func splitFQN(fqn string) (ns, name string) {
	i := strings.LastIndex(fqn, `\`)
	if i < 0 {
		return "", fqn
	}
	return fqn[:i], fqn[i+1:]
}

func shortName(fqn string) string {
	_, name := splitFQN(fqn)
	return name
}

func joinNS(ns, name string) string {
	if ns == "" {
		return name
	}
	return ns + `\` + name
}

func classKey(fqn string) graph.DefKey {
	ns, name := splitFQN(fqn)
	return nsKey(ns).Child(name, graph.SegmentType)
}
