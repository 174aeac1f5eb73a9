package resolve

// EdgeKind labels a supertype relation.
type EdgeKind string

const (
	Extends    EdgeKind = "extends"
	Implements EdgeKind = "implements"
	Uses       EdgeKind = "uses"
)

// DefaultOrder follows superclasses first, then mixins, then interfaces.
var DefaultOrder = []EdgeKind{Extends, Uses, Implements}

type edge struct {
	to   string
	kind EdgeKind
}

type typeNode struct {
	members map[string]struct{}
	edges   []edge
}

// Hierarchy is a directed graph of type declarations and their supertype
// edges. Type names are opaque strings chosen by the frontend.
type Hierarchy struct {
	nodes map[string]*typeNode
	order []string
}

func NewHierarchy() *Hierarchy {
	return &Hierarchy{nodes: make(map[string]*typeNode)}
}

func (h *Hierarchy) node(name string) *typeNode {
	n, ok := h.nodes[name]
	if !ok {
		n = &typeNode{members: make(map[string]struct{})}
		h.nodes[name] = n
		h.order = append(h.order, name)
	}
	return n
}

// Declare records typ and adds members to its own declaration set.
func (h *Hierarchy) Declare(typ string, members ...string) {
	n := h.node(typ)
	for _, m := range members {
		n.members[m] = struct{}{}
	}
}

// AddEdge records that from has supertype to via kind. Edges keep their
// declaration order; duplicates are ignored.
func (h *Hierarchy) AddEdge(from, to string, kind EdgeKind) {
	n := h.node(from)
	for _, e := range n.edges {
		if e.to == to && e.kind == kind {
			return
		}
	}
	n.edges = append(n.edges, edge{to: to, kind: kind})
}

// Has reports whether typ has been declared or referenced by an edge.
func (h *Hierarchy) Has(typ string) bool {
	_, ok := h.nodes[typ]
	return ok
}

// Declares reports whether typ itself declares member.
func (h *Hierarchy) Declares(typ, member string) bool {
	n, ok := h.nodes[typ]
	if !ok {
		return false
	}
	_, ok = n.members[member]
	return ok
}

// Supertypes returns typ's direct supertypes reachable through kind, in
// declaration order.
func (h *Hierarchy) Supertypes(typ string, kind EdgeKind) []string {
	n, ok := h.nodes[typ]
	if !ok {
		return nil
	}
	var out []string
	for _, e := range n.edges {
		if e.kind == kind {
			out = append(out, e.to)
		}
	}
	return out
}

// Types returns every known type in first-seen order.
func (h *Hierarchy) Types() []string { return append([]string(nil), h.order...) }

// DefiningAncestor returns the first type, starting with typ itself, whose
// own declarations contain member. Supertypes are searched depth first,
// following edge kinds in the priority given by order and, within a kind,
// in declaration order. Each type is visited once, so cyclic and diamond
// hierarchies terminate.
func (h *Hierarchy) DefiningAncestor(typ, member string, order []EdgeKind) (string, bool) {
	var found string
	h.walk(typ, order, func(t string) bool {
		if h.Declares(t, member) {
			found = t
			return false
		}
		return true
	})
	return found, found != ""
}

// Ancestors returns every type reachable from typ, typ first, in the order
// DefiningAncestor visits them.
func (h *Hierarchy) Ancestors(typ string, order []EdgeKind) []string {
	var out []string
	h.walk(typ, order, func(t string) bool {
		out = append(out, t)
		return true
	})
	return out
}

// walk is a worklist DFS over supertype edges. visit returns false to stop.
func (h *Hierarchy) walk(typ string, order []EdgeKind, visit func(string) bool) {
	if len(order) == 0 {
		order = DefaultOrder
	}
	visited := make(map[string]struct{})
	stack := []string{typ}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, seen := visited[cur]; seen {
			continue
		}
		visited[cur] = struct{}{}
		if !visit(cur) {
			return
		}
		var next []string
		for _, kind := range order {
			next = append(next, h.Supertypes(cur, kind)...)
		}
		// Reverse push: the first-priority supertype is popped next.
		for i := len(next) - 1; i >= 0; i-- {
			if _, seen := visited[next[i]]; !seen {
				stack = append(stack, next[i])
			}
		}
	}
}
