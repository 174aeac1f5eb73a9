// Package scope implements the lexical scope stack frontends use to bind
// names while walking a parse tree.
package scope

import (
	"errors"
	"strconv"
	"strings"
)

// ErrUnderflow is the panic value raised when the root scope, or a scope
// below the pinned floor, is popped. It signals an unbalanced frontend and is
// recovered at the file boundary.
var ErrUnderflow = errors.New("scope: exit on root scope")

// Scope is a named namespace of local bindings.
type Scope struct {
	Name string
	// Prefix is the rendered path of the enclosing scopes, set on Enter.
	Prefix []string

	bindings map[string]any
	anon     map[string]int
}

// New creates an empty scope.
func New(name string) *Scope {
	return &Scope{Name: name}
}

// Bind associates name with a frontend-defined payload, replacing any
// previous binding in this scope.
func (s *Scope) Bind(name string, payload any) {
	if s.bindings == nil {
		s.bindings = make(map[string]any)
	}
	s.bindings[name] = payload
}

// Binding returns the payload bound to name in this scope only.
func (s *Scope) Binding(name string) (any, bool) {
	v, ok := s.bindings[name]
	return v, ok
}

// NextAnonymous returns a fresh name "prefix@N" for an anonymous block.
// Counters are per scope and per prefix, starting at 0.
func (s *Scope) NextAnonymous(prefix string) string {
	if s.anon == nil {
		s.anon = make(map[string]int)
	}
	n := s.anon[prefix]
	s.anon[prefix] = n + 1
	return prefix + "@" + strconv.Itoa(n)
}

// Stack is a stack of scopes over a root scope that is never removed.
// Scopes with an empty name are transparent to Path.
type Stack struct {
	scopes []*Scope
	floor  int
}

// NewStack returns a stack holding only the root scope.
func NewStack() *Stack {
	return &Stack{scopes: []*Scope{New("")}}
}

// Root returns the bottom scope.
func (st *Stack) Root() *Scope { return st.scopes[0] }

// Current returns the innermost scope.
func (st *Stack) Current() *Scope { return st.scopes[len(st.scopes)-1] }

// Depth is the number of scopes above the root.
func (st *Stack) Depth() int { return len(st.scopes) - 1 }

// Enter pushes s and records its prefix from the enclosing chain.
func (st *Stack) Enter(s *Scope) {
	s.Prefix = st.names(0)
	st.scopes = append(st.scopes, s)
}

// Exit pops and returns the innermost scope. Exiting the root or the pinned
// floor panics with ErrUnderflow.
func (st *Stack) Exit() *Scope {
	if len(st.scopes)-1 <= st.floor {
		panic(ErrUnderflow)
	}
	s := st.scopes[len(st.scopes)-1]
	st.scopes[len(st.scopes)-1] = nil
	st.scopes = st.scopes[:len(st.scopes)-1]
	return s
}

// Pin makes the current scope the floor: Exit refuses to pop it until the
// returned previous floor is restored with Unpin.
func (st *Stack) Pin() int {
	prev := st.floor
	st.floor = st.Depth()
	return prev
}

// Unpin restores a floor returned by Pin.
func (st *Stack) Unpin(prev int) { st.floor = prev }

// Unwind pops scopes until Depth equals depth, ignoring the pinned floor. It
// never removes the root.
func (st *Stack) Unwind(depth int) {
	if depth < 0 {
		depth = 0
	}
	if st.floor > depth {
		st.floor = depth
	}
	for st.Depth() > depth {
		st.Exit()
	}
}

// Lookup searches from the innermost scope outward and returns the first
// binding for name with the scope and depth it was found at. The root is at
// depth 0.
func (st *Stack) Lookup(name string) (payload any, s *Scope, depth int, ok bool) {
	for i := len(st.scopes) - 1; i >= 0; i-- {
		if v, found := st.scopes[i].Binding(name); found {
			return v, st.scopes[i], i, true
		}
	}
	return nil, nil, 0, false
}

// Path renders the names of the scope chain, unnamed scopes excluded, joined
// by sep. With maxDepth > 0 only the outermost maxDepth names are rendered.
func (st *Stack) Path(sep string, maxDepth int) string {
	return strings.Join(st.names(maxDepth), sep)
}

func (st *Stack) names(maxDepth int) []string {
	out := make([]string, 0, len(st.scopes)-1)
	for _, s := range st.scopes {
		if s.Name == "" {
			continue
		}
		if maxDepth > 0 && len(out) == maxDepth {
			break
		}
		out = append(out, s.Name)
	}
	return out
}
