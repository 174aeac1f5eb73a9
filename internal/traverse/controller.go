// Package traverse drives the processing of one source unit's files. It
// guarantees each declared file is parsed at most once, even when frontends
// request additional files mid-parse.
package traverse

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/alexsaveliev/srclib-basic-sub000/internal/graph"
	"github.com/alexsaveliev/srclib-basic-sub000/internal/scope"
)

// FileFunc parses the file described by ctx and emits into its collector.
type FileFunc func(ctx *Context) error

// Stats summarizes one traversal.
type Stats struct {
	Declared int
	Parsed   int
	Failed   int
	Outside  int
	Missing  int
}

// Option configures a Controller.
type Option func(*Controller)

// WithFS reads files from fsys instead of the unit directory.
func WithFS(fsys fs.FS) Option {
	return func(c *Controller) { c.fsys = fsys }
}

// WithLogger sets the logger for traversal anomalies.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.log = l }
}

// WithScopes shares a scope stack with the caller. By default the controller
// creates its own.
func WithScopes(st *scope.Stack) Option {
	return func(c *Controller) { c.scopes = st }
}

// Controller owns the traversal state of a single source unit. It is not
// safe for concurrent use.
type Controller struct {
	unit    *graph.SourceUnit
	coll    *graph.Collector
	scopes  *scope.Stack
	fsys    fs.FS
	log     *slog.Logger
	parse   FileFunc
	ctx     context.Context
	order   []string
	decl    map[string]struct{}
	visited map[string]struct{}
	current []string
	// fileScope is the unnamed scope of the top-level file being parsed.
	// Files it includes share it.
	fileScope *scope.Scope
	stats     Stats
	failed  []error
}

// New builds a controller for unit writing into coll.
func New(unit *graph.SourceUnit, coll *graph.Collector, opts ...Option) *Controller {
	c := &Controller{
		unit:    unit,
		coll:    coll,
		decl:    make(map[string]struct{}, len(unit.Files)),
		visited: make(map[string]struct{}, len(unit.Files)),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = slog.New(slog.DiscardHandler)
	}
	if c.scopes == nil {
		c.scopes = scope.NewStack()
	}
	if c.fsys == nil {
		c.fsys = os.DirFS(unit.Dir)
	}
	for _, f := range unit.Files {
		rel, ok := c.relative(f)
		if !ok {
			continue
		}
		if _, dup := c.decl[rel]; dup {
			continue
		}
		c.decl[rel] = struct{}{}
		c.order = append(c.order, rel)
	}
	sort.Strings(c.order)
	c.stats.Declared = len(c.order)
	return c
}

// Run processes every declared file in path order, calling parse for each
// one not already reached through Process. The order of unit.Files does not
// affect the result. Cancellation is checked
// between files; what was collected before it stays valid.
func (c *Controller) Run(ctx context.Context, parse FileFunc) error {
	c.ctx = ctx
	c.parse = parse
	defer func() { c.parse = nil }()
	for _, f := range c.order {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("traverse: %s: %w", c.unit.Name, err)
		}
		c.Process(f)
	}
	return nil
}

// Process parses file now unless it is missing, outside the unit, or
// already visited. It may be called re-entrantly from inside a parse; the
// requested file is completed before control returns. It reports whether
// the file was parsed.
func (c *Controller) Process(file string) bool {
	if c.parse == nil {
		return false
	}
	rel, ok := c.relative(file)
	if !ok {
		c.stats.Outside++
		c.log.Info("file outside unit ignored", "unit", c.unit.Name, "file", file, "from", c.CurrentFile())
		return false
	}
	if _, seen := c.visited[rel]; seen {
		return false
	}
	if _, declared := c.decl[rel]; !declared {
		if _, err := fs.Stat(c.fsys, rel); err != nil {
			c.stats.Missing++
			c.log.Debug("requested file does not exist", "unit", c.unit.Name, "file", rel)
			return false
		}
		c.stats.Outside++
		c.log.Info("file outside unit ignored", "unit", c.unit.Name, "file", rel, "from", c.CurrentFile())
		return false
	}
	c.visited[rel] = struct{}{}

	src, err := fs.ReadFile(c.fsys, rel)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			c.stats.Missing++
			c.log.Debug("requested file does not exist", "unit", c.unit.Name, "file", rel)
			return false
		}
		c.fail(rel, err)
		return false
	}

	if err := c.parseFile(rel, src); err != nil {
		c.fail(rel, err)
		return false
	}
	c.stats.Parsed++
	return true
}

// parseFile runs parse for one file. A top-level file gets a fresh unnamed
// scope so its bindings and anonymous counters never leak into the next
// file; a nested file parses inside its includer's scopes. Either way the
// scopes present on entry are pinned and anything left open is unwound.
func (c *Controller) parseFile(rel string, src []byte) (err error) {
	depth := c.scopes.Depth()
	top := len(c.current) == 0
	if top {
		c.fileScope = scope.New("")
		c.scopes.Enter(c.fileScope)
	}
	want := c.scopes.Depth()
	floor := c.scopes.Pin()
	c.current = append(c.current, rel)
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(error); ok {
				err = fmt.Errorf("panic: %w", e)
			} else {
				err = fmt.Errorf("panic: %v", r)
			}
		}
		c.scopes.Unpin(floor)
		if got := c.scopes.Depth(); got != want && err == nil {
			c.log.Warn("unbalanced scopes after file", "file", rel, "want", want, "got", got)
		}
		c.scopes.Unwind(depth)
		if top {
			c.fileScope = nil
		}
		c.current = c.current[:len(c.current)-1]
	}()
	return c.parse(&Context{c: c, file: rel, src: src})
}

func (c *Controller) fail(rel string, err error) {
	c.stats.Failed++
	c.failed = append(c.failed, fmt.Errorf("%s: %w", rel, err))
	c.log.Error("file failed", "unit", c.unit.Name, "file", rel, "err", err)
}

// CurrentFile is the file being parsed, or "" outside of a parse.
func (c *Controller) CurrentFile() string {
	if len(c.current) == 0 {
		return ""
	}
	return c.current[len(c.current)-1]
}

// Stack returns the current-file stack, outermost first.
func (c *Controller) Stack() []string { return append([]string(nil), c.current...) }

// Declared reports whether file belongs to the unit.
func (c *Controller) Declared(file string) bool {
	rel, ok := c.relative(file)
	if !ok {
		return false
	}
	_, declared := c.decl[rel]
	return declared
}

// Visited reports whether file has been processed or attempted.
func (c *Controller) Visited(file string) bool {
	rel, ok := c.relative(file)
	if !ok {
		return false
	}
	_, seen := c.visited[rel]
	return seen
}

func (c *Controller) Stats() Stats { return c.stats }

// Errors returns the per-file failures, in the order they happened.
func (c *Controller) Errors() []error { return c.failed }

func (c *Controller) Scopes() *scope.Stack { return c.scopes }

// FileScope is the scope of the top-level file being parsed, or the root
// outside of a parse.
func (c *Controller) FileScope() *scope.Scope {
	if c.fileScope == nil {
		return c.scopes.Root()
	}
	return c.fileScope
}

func (c *Controller) Collector() *graph.Collector { return c.coll }

// relative maps file to a clean unit-relative slash path. Paths that escape
// the unit directory are rejected.
func (c *Controller) relative(file string) (string, bool) {
	if filepath.IsAbs(file) {
		rel, err := filepath.Rel(c.unit.Dir, file)
		if err != nil {
			return "", false
		}
		file = rel
	}
	rel := path.Clean(filepath.ToSlash(file))
	if rel == "." || rel == ".." || strings.HasPrefix(rel, "../") || !fs.ValidPath(rel) {
		return "", false
	}
	return rel, true
}
