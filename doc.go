// Package basic provides a language-agnostic source code indexing kernel
// built on tree-sitter. A frontend walks the files of one source unit and
// emits definitions, references and candidate references; the kernel owns
// traversal order, lexical scopes, key identity and the resolution of
// candidates into concrete definitions.
//
// # Pipeline
//
// Indexing one unit runs in two phases:
//
//  1. Traverse: every declared file is parsed once, in declaration order
//     unless a file pulls another one in first (include/require). The
//     frontend defines entities in a shared scope stack and emits refs.
//
//  2. Resolve: each distinct candidate key ((?M)m, (?T)C, ...) is handed
//     back to the frontend once, after all files are parsed, and every
//     candidate ref is replaced by refs to the concrete defs it resolved
//     to. Unresolved candidates are dropped.
//
// PHP is implemented in Go. C is implemented as Risor scripts
// (scripts/graph/c.risor, scripts/resolve/c.risor) driving the same kernel.
//
// # Usage
//
//	e, err := basic.New(basic.WithStore("index.db"))
//	if err != nil { ... }
//	defer e.Close()
//
//	report, err := e.Index(ctx, "path/to/project", false)
//	defs, err := e.Query().DefinitionAt("src/App.php", 120)
//
// Units are independent: Index graphs them in parallel, each with its own
// collector and scope stack.
package basic
