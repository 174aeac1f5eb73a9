package traverse

import (
	"context"
	"log/slog"
	"path"

	"github.com/alexsaveliev/srclib-basic-sub000/internal/graph"
	"github.com/alexsaveliev/srclib-basic-sub000/internal/scope"
)

// Context is handed to a frontend for the duration of one file's parse.
type Context struct {
	c    *Controller
	file string
	src  []byte
}

// File is the unit-relative path of the file this context was created for.
func (x *Context) File() string { return x.file }

// CurrentFile is the top of the current-file stack.
func (x *Context) CurrentFile() string { return x.c.CurrentFile() }

// Dir is the unit-relative directory of File.
func (x *Context) Dir() string { return path.Dir(x.file) }

func (x *Context) Source() []byte { return x.src }

func (x *Context) Unit() *graph.SourceUnit { return x.c.unit }

func (x *Context) Scopes() *scope.Stack { return x.c.scopes }

// FileScope is the unnamed scope of the top-level file being parsed. Files
// processed from inside it share it; bindings meant to span the whole unit
// belong in Scopes().Root() instead.
func (x *Context) FileScope() *scope.Scope { return x.c.FileScope() }

// Anonymous returns a fresh name for an anonymous entity in the current
// scope. At file level the name also carries the file's path, so entities
// of different files never share one.
func (x *Context) Anonymous(prefix string) string {
	cur := x.c.scopes.Current()
	if cur == x.c.fileScope {
		return cur.NextAnonymous(prefix + "@" + x.file)
	}
	return cur.NextAnonymous(prefix)
}

func (x *Context) Collector() *graph.Collector { return x.c.coll }

func (x *Context) Logger() *slog.Logger { return x.c.log.With("file", x.file) }

// Context returns the traversal's context.Context.
func (x *Context) Context() context.Context {
	if x.c.ctx == nil {
		return context.Background()
	}
	return x.c.ctx
}

// Def builds a definition in the current file.
func (x *Context) Def(span graph.Span, kind string, key graph.DefKey) *graph.Def {
	return &graph.Def{
		Key:  key,
		Kind: kind,
		Name: key.Name(),
		File: x.file,
		Span: span,
	}
}

// Ref builds a reference in the current file. Candidate targets produce
// candidate references.
func (x *Context) Ref(span graph.Span, target graph.DefKey) graph.Ref {
	return graph.Ref{
		File:        x.file,
		Span:        span,
		Target:      target,
		IsCandidate: target.IsCandidate(),
	}
}

// EmitDef writes d and its definition-site reference.
func (x *Context) EmitDef(d *graph.Def) { x.c.coll.Emit(d) }

func (x *Context) EmitRef(r graph.Ref) { x.c.coll.WriteRef(r) }

// Process requests that file be parsed now. See Controller.Process.
func (x *Context) Process(file string) bool { return x.c.Process(file) }

// Declared reports whether file belongs to the unit.
func (x *Context) Declared(file string) bool { return x.c.Declared(file) }

// Include processes a textual include target. Relative targets are tried
// against the current file's directory first, then the unit root.
func (x *Context) Include(target string) bool {
	if path.IsAbs(target) {
		return x.c.Process(target)
	}
	local := path.Join(x.Dir(), target)
	if x.c.Declared(local) {
		return x.c.Process(local)
	}
	if x.c.Declared(target) {
		return x.c.Process(target)
	}
	return x.c.Process(local)
}
