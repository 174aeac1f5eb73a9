package php

import (
	"path"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/alexsaveliev/srclib-basic-sub000/internal/frontend"
	"github.com/alexsaveliev/srclib-basic-sub000/internal/graph"
	"github.com/alexsaveliev/srclib-basic-sub000/internal/resolve"
	"github.com/alexsaveliev/srclib-basic-sub000/internal/runtime"
	"github.com/alexsaveliev/srclib-basic-sub000/internal/scope"
	"github.com/alexsaveliev/srclib-basic-sub000/internal/traverse"
)

type classInfo struct {
	fqn    string
	key    graph.DefKey
	parent string
}

// walker emits the definitions and references of one file. Files reached
// through include get their own walker but share the unit's scope stack.
type walker struct {
	ix   *indexer
	x    *traverse.Context
	src  []byte
	test bool

	ns        string
	uses      map[string]string // lowercased alias → class FQN
	funcUses  map[string]string // lowercased alias → function FQN
	constUses map[string]string // alias → constant FQN

	class *classInfo
	owner graph.DefKey
	// fnDepth is the scope depth of the innermost function body. Variables
	// bound shallower than it are not visible.
	fnDepth int
}

func newWalker(ix *indexer, x *traverse.Context) *walker {
	w := &walker{
		ix:   ix,
		x:    x,
		src:  x.Source(),
		test: frontend.IsTestFile(x.File()),
	}
	w.resetUses()
	return w
}

func (w *walker) resetUses() {
	w.uses = make(map[string]string)
	w.funcUses = make(map[string]string)
	w.constUses = make(map[string]string)
}

func (w *walker) text(n *sitter.Node) string { return n.Content(w.src) }

func span(n *sitter.Node) graph.Span {
	return graph.Span{Start: n.StartByte(), End: n.EndByte()}
}

func (w *walker) children(n *sitter.Node) {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		w.walk(n.NamedChild(i))
	}
}

func firstNamed(n *sitter.Node, types ...string) *sitter.Node {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		for _, t := range types {
			if c.Type() == t {
				return c
			}
		}
	}
	return nil
}

// fieldOr returns the named field, or the first named child of one of the
// given types for grammar versions without the field.
func fieldOr(n *sitter.Node, field string, types ...string) *sitter.Node {
	if c := n.ChildByFieldName(field); c != nil {
		return c
	}
	return firstNamed(n, types...)
}

func (w *walker) walk(n *sitter.Node) {
	if n == nil {
		return
	}
	switch n.Type() {
	case "comment", "string", "nowdoc", "text", "php_tag", "text_interpolation", "attribute_list":
	case "namespace_definition":
		w.namespace(n)
	case "namespace_use_declaration":
		w.useDecl(n)
	case "class_declaration", "interface_declaration", "trait_declaration", "enum_declaration":
		w.classLike(n)
	case "anonymous_class":
		w.anonClass(n, n.ChildByFieldName("body"))
	case "function_definition":
		w.function(n)
	case "method_declaration":
		w.method(n)
	case "anonymous_function_creation_expression", "anonymous_function", "arrow_function":
		w.closure(n)
	case "const_declaration":
		w.constDecl(n)
	case "enum_case":
		w.enumCase(n)
	case "property_declaration":
		w.property(n)
	case "use_declaration":
		w.traitUse(n)
	case "global_declaration":
		w.globals(n)
	case "assignment_expression", "reference_assignment_expression":
		w.walk(n.ChildByFieldName("right"))
		w.assignTarget(n.ChildByFieldName("left"))
	case "foreach_statement":
		w.foreach(n)
	case "catch_clause":
		w.catch(n)
	case "variable_name":
		w.variable(n)
	case "member_call_expression", "nullsafe_member_call_expression":
		w.member(n, graph.MaybeMethod)
	case "member_access_expression", "nullsafe_member_access_expression":
		w.member(n, graph.MaybeProperty)
	case "scoped_call_expression":
		w.scopedCall(n)
	case "class_constant_access_expression":
		w.classConstant(n)
	case "scoped_property_access_expression":
		w.scopedProperty(n)
	case "object_creation_expression":
		w.newExpr(n)
	case "function_call_expression":
		w.call(n)
	case "include_expression", "include_once_expression", "require_expression", "require_once_expression":
		w.include(n)
	case "named_type", "type_name":
		w.typeRef(n)
	case "binary_expression":
		w.binary(n)
	case "name", "qualified_name":
		w.constantRef(n)
	default:
		w.children(n)
	}
}

// =============================================================================
// Names
// =============================================================================

// qualify resolves a class name as written to a fully qualified name.
func (w *walker) qualify(name string) string {
	if strings.HasPrefix(name, `\`) {
		return strings.TrimPrefix(name, `\`)
	}
	switch strings.ToLower(name) {
	case "self", "static":
		if w.class == nil {
			return ""
		}
		return w.class.fqn
	case "parent":
		if w.class == nil {
			return ""
		}
		return w.class.parent
	}
	first, rest, qualified := strings.Cut(name, `\`)
	if alias, ok := w.uses[strings.ToLower(first)]; ok {
		if qualified {
			return alias + `\` + rest
		}
		return alias
	}
	return joinNS(w.ns, name)
}

// qualifyGlobal resolves a function or constant name. Unqualified names
// stay in the current namespace; Resolve falls back to the global one.
func (w *walker) qualifyGlobal(name string, imports map[string]string, fold bool) string {
	if strings.HasPrefix(name, `\`) {
		return strings.TrimPrefix(name, `\`)
	}
	if strings.Contains(name, `\`) {
		return w.qualify(name)
	}
	alias := name
	if fold {
		alias = strings.ToLower(name)
	}
	if fqn, ok := imports[alias]; ok {
		return fqn
	}
	return joinNS(w.ns, name)
}

func (w *walker) classRef(n *sitter.Node, fqn string) {
	if fqn == "" {
		return
	}
	if key, ok := w.ix.class(fqn); ok {
		w.x.EmitRef(w.x.Ref(span(n), key))
		return
	}
	w.x.EmitRef(w.x.Ref(span(n), graph.NewCandidate(graph.MaybeType, fqn)))
}

func (w *walker) typeRef(n *sitter.Node) {
	name := firstNamed(n, "name", "qualified_name", "relative_scope")
	if name == nil {
		return
	}
	w.classRef(name, w.qualify(w.text(name)))
}

var builtinConstants = map[string]bool{"true": true, "false": true, "null": true}

func (w *walker) constantRef(n *sitter.Node) {
	name := w.text(n)
	if builtinConstants[strings.ToLower(name)] {
		return
	}
	fqn := w.qualifyGlobal(name, w.constUses, false)
	w.x.EmitRef(w.x.Ref(span(n), graph.NewCandidate(graph.MaybeGlobal, fqn)))
}

// binary handles instanceof, whose right operand is a class name.
func (w *walker) binary(n *sitter.Node) {
	op := n.ChildByFieldName("operator")
	right := n.ChildByFieldName("right")
	if op == nil || right == nil || !strings.EqualFold(w.text(op), "instanceof") {
		w.children(n)
		return
	}
	w.walk(n.ChildByFieldName("left"))
	w.typeOrName(right)
	if right.Type() != "name" && right.Type() != "qualified_name" && right.Type() != "named_type" {
		w.walk(right)
	}
}

func visibility(n *sitter.Node, src []byte) string {
	if v := firstNamed(n, "visibility_modifier"); v != nil {
		return strings.ToLower(v.Content(src))
	}
	return "public"
}

func varName(n *sitter.Node, src []byte) string {
	return strings.TrimPrefix(n.Content(src), "$")
}

// =============================================================================
// Declarations
// =============================================================================

func (w *walker) namespace(n *sitter.Node) {
	name := ""
	if nn := fieldOr(n, "name", "namespace_name"); nn != nil {
		name = strings.TrimPrefix(w.text(nn), `\`)
	}
	body := n.ChildByFieldName("body")
	if body == nil {
		// Statement form: the namespace lasts until the next one.
		w.ns = name
		w.resetUses()
		return
	}
	savedNS, uses, funcUses, constUses := w.ns, w.uses, w.funcUses, w.constUses
	w.ns = name
	w.resetUses()
	w.walk(body)
	w.ns, w.uses, w.funcUses, w.constUses = savedNS, uses, funcUses, constUses
}

func (w *walker) useDecl(n *sitter.Node) {
	kind := ""
	prefix := ""
	for i := 0; i < int(n.ChildCount()); i++ {
		c := n.Child(i)
		switch c.Type() {
		case "function", "const":
			if !c.IsNamed() && kind == "" {
				kind = c.Type()
			}
		case "namespace_name":
			prefix = strings.TrimPrefix(w.text(c), `\`)
		case "namespace_use_clause":
			w.useClause(c, "", kind)
		case "namespace_use_group":
			for j := 0; j < int(c.NamedChildCount()); j++ {
				if g := c.NamedChild(j); g.Type() == "namespace_use_clause" || g.Type() == "namespace_use_group_clause" {
					w.useClause(g, prefix, kind)
				}
			}
		}
	}
}

func (w *walker) useClause(c *sitter.Node, prefix, kind string) {
	var target *sitter.Node
	alias := ""
	if a := c.ChildByFieldName("alias"); a != nil {
		alias = w.text(a)
	}
	for i := 0; i < int(c.NamedChildCount()); i++ {
		ch := c.NamedChild(i)
		switch ch.Type() {
		case "name", "qualified_name", "namespace_name":
			if target == nil {
				target = ch
			} else if alias == "" {
				alias = w.text(ch)
			}
		case "namespace_aliasing_clause":
			if a := firstNamed(ch, "name"); a != nil {
				alias = w.text(a)
			}
		}
	}
	if target == nil {
		return
	}
	fqn := strings.TrimPrefix(w.text(target), `\`)
	if prefix != "" {
		fqn = prefix + `\` + fqn
	}
	if alias == "" {
		alias = shortName(fqn)
	}
	switch kind {
	case "function":
		w.funcUses[strings.ToLower(alias)] = fqn
	case "const":
		w.constUses[alias] = fqn
	default:
		w.uses[strings.ToLower(alias)] = fqn
		w.classRef(target, fqn)
	}
}

var classKinds = map[string]string{
	"class_declaration":     "class",
	"interface_declaration": "interface",
	"trait_declaration":     "trait",
	"enum_declaration":      "enum",
}

func (w *walker) classLike(n *sitter.Node) {
	nameNode := n.ChildByFieldName("name")
	if nameNode == nil {
		w.children(n)
		return
	}
	name := w.text(nameNode)
	fqn := joinNS(w.ns, name)
	key := classKey(fqn)

	d := w.x.Def(span(nameNode), classKinds[n.Type()], key)
	d.Exported = true
	d.Test = w.test
	w.x.EmitDef(d)
	w.ix.declareClass(fqn, key)

	info := &classInfo{fqn: fqn, key: key}
	w.supertypes(n, info, n.Type() == "interface_declaration")
	w.classBody(name, info, n.ChildByFieldName("body"))
}

// supertypes records extends and implements edges. Interfaces extend any
// number of interfaces; only a class has a parent for parent::.
func (w *walker) supertypes(n *sitter.Node, info *classInfo, iface bool) {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		var kind resolve.EdgeKind
		switch c.Type() {
		case "base_clause":
			kind = resolve.Extends
		case "class_interface_clause":
			kind = resolve.Implements
		default:
			continue
		}
		for j := 0; j < int(c.NamedChildCount()); j++ {
			nm := c.NamedChild(j)
			if nm.Type() != "name" && nm.Type() != "qualified_name" {
				continue
			}
			super := w.qualify(w.text(nm))
			w.ix.addEdge(info.fqn, super, kind)
			if kind == resolve.Extends && !iface && info.parent == "" {
				info.parent = super
			}
			w.classRef(nm, super)
		}
	}
}

func (w *walker) classBody(name string, info *classInfo, body *sitter.Node) {
	st := w.x.Scopes()
	savedClass, savedOwner := w.class, w.owner
	w.class, w.owner = info, info.key
	st.Enter(scope.New(name))
	if body != nil {
		w.children(body)
	}
	st.Exit()
	w.class, w.owner = savedClass, savedOwner
}

// anonClass indexes `new class ... { }`. Its members are keyed under a
// generated name in the enclosing owner and never resolve from outside.
func (w *walker) anonClass(n, body *sitter.Node) {
	if body == nil {
		body = firstNamed(n, "declaration_list")
	}
	name := w.x.Anonymous("class")
	key := w.owner.Child(name, graph.SegmentType)
	fqn := key.Path()
	w.ix.declareClass(fqn, key)
	info := &classInfo{fqn: fqn, key: key}
	w.supertypes(n, info, false)
	if args := firstNamed(n, "arguments"); args != nil {
		w.walk(args)
	}
	w.classBody(name, info, body)
}

func (w *walker) function(n *sitter.Node) {
	nameNode := n.ChildByFieldName("name")
	if nameNode == nil {
		return
	}
	name := w.text(nameNode)
	key := nsKey(w.ns).Child(name, graph.SegmentFunction)
	d := w.x.Def(span(nameNode), "function", key)
	d.Exported = true
	d.Test = w.test
	w.x.EmitDef(d)
	fqn := joinNS(w.ns, name)
	if _, ok := w.ix.function(fqn); !ok {
		w.ix.functions[strings.ToLower(fqn)] = key
	}
	w.body(n, name, key, true)
}

func (w *walker) method(n *sitter.Node) {
	nameNode := n.ChildByFieldName("name")
	if nameNode == nil || w.class == nil {
		w.children(n)
		return
	}
	name := w.text(nameNode)
	key := w.class.key.Child(name, graph.SegmentMethod)
	d := w.x.Def(span(nameNode), "method", key)
	d.Exported = visibility(n, w.src) == "public"
	d.Test = w.test
	w.x.EmitDef(d)
	w.ix.declareMember(w.class.fqn, graph.MaybeMethod, name, key)
	w.body(n, name, key, true)
}

// closure indexes anonymous and arrow functions. Arrow functions see the
// enclosing variables; anonymous functions only see what they capture.
func (w *walker) closure(n *sitter.Node) {
	st := w.x.Scopes()
	name := w.x.Anonymous("closure")
	key := w.owner.Child(name, graph.SegmentScope)

	type capture struct {
		name string
		key  graph.DefKey
	}
	var captured []capture
	if uc := firstNamed(n, "anonymous_function_use_clause"); uc != nil {
		w.eachVariable(uc, func(v *sitter.Node) {
			vn := varName(v, w.src)
			if target, ok := w.lookupVar(vn); ok {
				w.x.EmitRef(w.x.Ref(span(v), target))
				captured = append(captured, capture{vn, target})
			}
		})
	}

	isolated := n.Type() != "arrow_function"
	w.enterFunction(name, key, isolated, func() {
		for _, c := range captured {
			st.Current().Bind("$"+c.name, c.key)
		}
		w.params(n.ChildByFieldName("parameters"))
		w.walk(n.ChildByFieldName("return_type"))
		w.walk(n.ChildByFieldName("body"))
	})
}

func (w *walker) body(n *sitter.Node, name string, key graph.DefKey, isolated bool) {
	w.enterFunction(name, key, isolated, func() {
		w.params(n.ChildByFieldName("parameters"))
		w.walk(n.ChildByFieldName("return_type"))
		w.walk(n.ChildByFieldName("body"))
	})
}

func (w *walker) enterFunction(name string, key graph.DefKey, isolated bool, fn func()) {
	st := w.x.Scopes()
	savedOwner, savedDepth := w.owner, w.fnDepth
	st.Enter(scope.New(name))
	w.owner = key
	if isolated {
		w.fnDepth = st.Depth()
	}
	fn()
	st.Exit()
	w.owner, w.fnDepth = savedOwner, savedDepth
}

func (w *walker) params(p *sitter.Node) {
	if p == nil {
		return
	}
	for i := 0; i < int(p.NamedChildCount()); i++ {
		c := p.NamedChild(i)
		switch c.Type() {
		case "simple_parameter", "variadic_parameter", "property_promotion_parameter":
		default:
			continue
		}
		w.walk(c.ChildByFieldName("type"))
		nameNode := fieldOr(c, "name", "variable_name")
		if nameNode != nil {
			w.defineVar(nameNode, "param")
			if c.Type() == "property_promotion_parameter" && w.class != nil {
				name := varName(nameNode, w.src)
				key := w.class.key.Child(name, graph.SegmentProperty)
				d := w.x.Def(span(nameNode), "property", key)
				d.Exported = visibility(c, w.src) == "public"
				d.Test = w.test
				w.x.EmitDef(d)
				w.ix.declareMember(w.class.fqn, graph.MaybeProperty, name, key)
			}
		}
		w.walk(c.ChildByFieldName("default_value"))
	}
}

func (w *walker) property(n *sitter.Node) {
	w.walk(n.ChildByFieldName("type"))
	vis := visibility(n, w.src)
	for i := 0; i < int(n.NamedChildCount()); i++ {
		el := n.NamedChild(i)
		if el.Type() != "property_element" {
			continue
		}
		for j := 0; j < int(el.NamedChildCount()); j++ {
			c := el.NamedChild(j)
			if c.Type() != "variable_name" || w.class == nil {
				w.walk(c)
				continue
			}
			name := varName(c, w.src)
			key := w.class.key.Child(name, graph.SegmentProperty)
			d := w.x.Def(span(c), "property", key)
			d.Exported = vis == "public"
			d.Test = w.test
			w.x.EmitDef(d)
			w.ix.declareMember(w.class.fqn, graph.MaybeProperty, name, key)
		}
	}
}

func (w *walker) constDecl(n *sitter.Node) {
	vis := visibility(n, w.src)
	for i := 0; i < int(n.NamedChildCount()); i++ {
		el := n.NamedChild(i)
		if el.Type() != "const_element" {
			continue
		}
		for j := 0; j < int(el.NamedChildCount()); j++ {
			c := el.NamedChild(j)
			if c.Type() != "name" {
				w.walk(c)
				continue
			}
			w.defineConstant(c, w.text(c), vis == "public")
		}
	}
}

func (w *walker) enumCase(n *sitter.Node) {
	nameNode := fieldOr(n, "name", "name")
	if nameNode == nil {
		return
	}
	w.defineConstant(nameNode, w.text(nameNode), true)
	w.walk(n.ChildByFieldName("value"))
}

// defineConstant defines a class constant inside a class body and a
// namespace constant outside one.
func (w *walker) defineConstant(n *sitter.Node, name string, exported bool) {
	var key graph.DefKey
	if w.class != nil {
		key = w.class.key.Child(name, graph.SegmentConstant)
		w.ix.declareMember(w.class.fqn, graph.MaybeConstant, name, key)
	} else {
		key = nsKey(w.ns).Child(name, graph.SegmentConstant)
		fqn := joinNS(w.ns, name)
		if _, ok := w.ix.constants[fqn]; !ok {
			w.ix.constants[fqn] = key
		}
	}
	d := w.x.Def(span(n), "constant", key)
	d.Exported = exported
	d.Test = w.test
	w.x.EmitDef(d)
}

func (w *walker) traitUse(n *sitter.Node) {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		if c.Type() != "name" && c.Type() != "qualified_name" {
			continue
		}
		fqn := w.qualify(w.text(c))
		if w.class != nil {
			w.ix.addEdge(w.class.fqn, fqn, resolve.Uses)
		}
		w.classRef(c, fqn)
	}
}

// =============================================================================
// Variables
// =============================================================================

func (w *walker) lookupVar(name string) (graph.DefKey, bool) {
	v, _, depth, ok := w.x.Scopes().Lookup("$" + name)
	if !ok || depth < w.fnDepth {
		return graph.DefKey{}, false
	}
	key, ok := v.(graph.DefKey)
	return key, ok
}

func (w *walker) defineVar(n *sitter.Node, kind string) {
	name := varName(n, w.src)
	key := w.owner.Child(name, graph.SegmentVariable)
	d := w.x.Def(span(n), kind, key)
	d.Local = w.fnDepth > 0
	d.Test = w.test
	w.x.EmitDef(d)
	w.x.Scopes().Current().Bind("$"+name, key)
}

func (w *walker) variable(n *sitter.Node) {
	name := varName(n, w.src)
	if name == "this" {
		return
	}
	if key, ok := w.lookupVar(name); ok {
		w.x.EmitRef(w.x.Ref(span(n), key))
	}
}

// assignTarget defines the first assignment to a variable and references
// any later one. Destructuring targets are searched recursively.
func (w *walker) assignTarget(n *sitter.Node) {
	if n == nil {
		return
	}
	switch n.Type() {
	case "variable_name":
		if key, ok := w.lookupVar(varName(n, w.src)); ok {
			w.x.EmitRef(w.x.Ref(span(n), key))
			return
		}
		if varName(n, w.src) != "this" {
			w.defineVar(n, "variable")
		}
	case "list_literal", "array_creation_expression", "array_element_initializer", "pair", "by_ref":
		for i := 0; i < int(n.NamedChildCount()); i++ {
			w.assignTarget(n.NamedChild(i))
		}
	default:
		w.walk(n)
	}
}

func (w *walker) eachVariable(n *sitter.Node, fn func(*sitter.Node)) {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		if c.Type() == "variable_name" {
			fn(c)
		} else {
			w.eachVariable(c, fn)
		}
	}
}

func (w *walker) foreach(n *sitter.Node) {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		switch {
		case i == 0:
			w.walk(c)
		case c.Type() == "variable_name", c.Type() == "pair", c.Type() == "by_ref", c.Type() == "list_literal":
			w.assignTarget(c)
		default:
			w.walk(c)
		}
	}
}

func (w *walker) catch(n *sitter.Node) {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		switch c.Type() {
		case "variable_name":
			w.assignTarget(c)
		case "type_list":
			for j := 0; j < int(c.NamedChildCount()); j++ {
				w.typeOrName(c.NamedChild(j))
			}
		case "name", "qualified_name", "named_type":
			w.typeOrName(c)
		default:
			w.walk(c)
		}
	}
}

func (w *walker) typeOrName(n *sitter.Node) {
	if n.Type() == "named_type" {
		w.typeRef(n)
		return
	}
	if n.Type() == "name" || n.Type() == "qualified_name" {
		w.classRef(n, w.qualify(w.text(n)))
	}
}

// globals binds `global $x` to the unit-level variable in the current
// function scope.
func (w *walker) globals(n *sitter.Node) {
	file := w.x.FileScope()
	w.eachVariable(n, func(v *sitter.Node) {
		name := varName(v, w.src)
		payload, _ := file.Binding("$" + name)
		key, ok := payload.(graph.DefKey)
		if !ok {
			return
		}
		w.x.Scopes().Current().Bind("$"+name, key)
		w.x.EmitRef(w.x.Ref(span(v), key))
	})
}

// =============================================================================
// Member access and calls
// =============================================================================

func (w *walker) member(n *sitter.Node, cat graph.Category) {
	obj := n.ChildByFieldName("object")
	w.walk(obj)
	nameNode := n.ChildByFieldName("name")
	if nameNode != nil && nameNode.Type() == "name" {
		key := graph.NewCandidate(cat, w.text(nameNode))
		if obj != nil && w.text(obj) == "$this" && w.class != nil {
			key = key.WithReceiver(w.class.fqn)
		}
		w.x.EmitRef(w.x.Ref(span(nameNode), key))
	} else {
		w.walk(nameNode)
	}
	w.walk(n.ChildByFieldName("arguments"))
}

// scopeClass returns the class a `X::` qualifier names, or "" when it is
// not statically known.
func (w *walker) scopeClass(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	switch n.Type() {
	case "relative_scope":
		return w.qualify(strings.ToLower(w.text(n)))
	case "name", "qualified_name":
		fqn := w.qualify(w.text(n))
		w.classRef(n, fqn)
		return fqn
	}
	w.walk(n)
	return ""
}

func (w *walker) emitMember(n *sitter.Node, cat graph.Category, name, receiver string) {
	key := graph.NewCandidate(cat, name)
	if receiver != "" {
		key = key.WithReceiver(receiver)
	}
	w.x.EmitRef(w.x.Ref(span(n), key))
}

func (w *walker) scopedCall(n *sitter.Node) {
	recv := w.scopeClass(n.ChildByFieldName("scope"))
	if nameNode := n.ChildByFieldName("name"); nameNode != nil && nameNode.Type() == "name" {
		w.emitMember(nameNode, graph.MaybeMethod, w.text(nameNode), recv)
	}
	w.walk(n.ChildByFieldName("arguments"))
}

func (w *walker) classConstant(n *sitter.Node) {
	if n.NamedChildCount() < 2 {
		w.children(n)
		return
	}
	recv := w.scopeClass(n.NamedChild(0))
	nameNode := n.NamedChild(1)
	if name := w.text(nameNode); !strings.EqualFold(name, "class") {
		w.emitMember(nameNode, graph.MaybeConstant, name, recv)
	}
}

func (w *walker) scopedProperty(n *sitter.Node) {
	recv := w.scopeClass(n.ChildByFieldName("scope"))
	if nameNode := n.ChildByFieldName("name"); nameNode != nil && nameNode.Type() == "variable_name" {
		w.emitMember(nameNode, graph.MaybeProperty, varName(nameNode, w.src), recv)
	}
}

func (w *walker) newExpr(n *sitter.Node) {
	if firstNamed(n, "declaration_list") != nil {
		w.anonClass(n, nil)
		return
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		switch c.Type() {
		case "name", "qualified_name":
			w.classRef(c, w.qualify(w.text(c)))
		case "relative_scope":
			w.classRef(c, w.qualify(strings.ToLower(w.text(c))))
		default:
			w.walk(c)
		}
	}
}

func (w *walker) call(n *sitter.Node) {
	fn := n.ChildByFieldName("function")
	args := n.ChildByFieldName("arguments")
	if fn == nil || (fn.Type() != "name" && fn.Type() != "qualified_name") {
		w.walk(fn)
		w.walk(args)
		return
	}
	name := w.text(fn)
	if strings.EqualFold(strings.TrimPrefix(name, `\`), "define") && w.defineCall(args) {
		w.walk(args)
		return
	}
	fqn := w.qualifyGlobal(name, w.funcUses, true)
	if key, ok := w.ix.function(fqn); ok {
		w.x.EmitRef(w.x.Ref(span(fn), key))
	} else {
		w.x.EmitRef(w.x.Ref(span(fn), graph.NewCandidate(graph.MaybeGlobal, fqn)))
	}
	w.walk(args)
}

func firstArg(args *sitter.Node) *sitter.Node {
	if args == nil || args.NamedChildCount() == 0 {
		return nil
	}
	a := args.NamedChild(0)
	if a.Type() == "argument" && a.NamedChildCount() > 0 {
		return a.NamedChild(int(a.NamedChildCount()) - 1)
	}
	return a
}

// defineCall handles define('NAME', value), which declares a global
// constant at run time.
func (w *walker) defineCall(args *sitter.Node) bool {
	arg := firstArg(args)
	if arg == nil || arg.Type() != "string" {
		return false
	}
	name := strings.TrimPrefix(runtime.Unquote(w.text(arg)), `\`)
	if name == "" {
		return false
	}
	ns, short := splitFQN(name)
	key := nsKey(ns).Child(short, graph.SegmentConstant)
	if _, ok := w.ix.constants[name]; !ok {
		w.ix.constants[name] = key
	}
	d := w.x.Def(span(arg), "constant", key)
	d.Exported = true
	d.Test = w.test
	w.x.EmitDef(d)
	return true
}

// =============================================================================
// Includes
// =============================================================================

func (w *walker) include(n *sitter.Node) {
	arg := n.NamedChild(0)
	if arg == nil {
		return
	}
	target, rooted, ok := w.includeTarget(arg)
	w.walk(arg)
	if !ok {
		w.x.Logger().Debug("dynamic include not followed", "expr", w.text(arg))
		return
	}
	if rooted {
		w.x.Process(target)
		return
	}
	w.x.Include(target)
}

// includeTarget evaluates the statically known include forms: a literal
// path, or __DIR__ / dirname(__FILE__) joined with a literal. rooted
// reports a path already relative to the unit root.
func (w *walker) includeTarget(n *sitter.Node) (target string, rooted, ok bool) {
	switch n.Type() {
	case "parenthesized_expression":
		if n.NamedChildCount() == 1 {
			return w.includeTarget(n.NamedChild(0))
		}
	case "string":
		return runtime.Unquote(w.text(n)), false, true
	case "encapsed_string":
		if firstNamed(n, "variable_name", "member_access_expression", "subscript_expression") == nil {
			return runtime.Unquote(w.text(n)), false, true
		}
	case "binary_expression":
		left, right := n.ChildByFieldName("left"), n.ChildByFieldName("right")
		if left == nil || right == nil || (right.Type() != "string" && right.Type() != "encapsed_string") {
			return "", false, false
		}
		switch strings.ReplaceAll(w.text(left), " ", "") {
		case "__DIR__", "dirname(__FILE__)":
			rel := strings.TrimPrefix(runtime.Unquote(w.text(right)), "/")
			return path.Join(w.x.Dir(), rel), true, true
		}
	}
	return "", false, false
}
