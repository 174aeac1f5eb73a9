package basic

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"

	"github.com/alexsaveliev/srclib-basic-sub000/internal/config"
	"github.com/alexsaveliev/srclib-basic-sub000/internal/frontend"
	"github.com/alexsaveliev/srclib-basic-sub000/internal/frontend/php"
	"github.com/alexsaveliev/srclib-basic-sub000/internal/frontend/script"
	"github.com/alexsaveliev/srclib-basic-sub000/internal/graph"
	"github.com/alexsaveliev/srclib-basic-sub000/internal/runtime"
	"github.com/alexsaveliev/srclib-basic-sub000/internal/store"
	"github.com/alexsaveliev/srclib-basic-sub000/scripts"
)

// Engine drives the kernel: source unit discovery, per-unit graphing, and
// persistence of the produced graphs.
type Engine struct {
	store       *store.Store
	runtime     *runtime.Runtime
	registry    *frontend.Registry
	cfg         *config.Config
	log         *slog.Logger
	dbPath      string
	scriptsDir  string
	scriptsFS   fs.FS
	languages   map[string]bool // nil means all languages
	parallelism int
}

// Option configures an Engine.
type Option func(*Engine)

// WithStore persists graphs to the SQLite database at dbPath.
func WithStore(dbPath string) Option {
	return func(e *Engine) {
		e.dbPath = dbPath
	}
}

// WithLanguages restricts which languages the Engine will process.
func WithLanguages(languages ...string) Option {
	return func(e *Engine) {
		e.languages = make(map[string]bool, len(languages))
		for _, lang := range languages {
			e.languages[lang] = true
		}
	}
}

// WithLogger sets the structured logger. The default discards.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.log = l
	}
}

// WithConfig fixes the configuration instead of loading it from each
// scanned root.
func WithConfig(cfg *config.Config) Option {
	return func(e *Engine) {
		e.cfg = cfg
	}
}

// WithScriptsDir loads Risor scripts from dir on disk instead of the
// embedded set.
func WithScriptsDir(dir string) Option {
	return func(e *Engine) {
		e.scriptsDir = dir
		e.scriptsFS = nil
	}
}

// WithScriptsFS loads Risor scripts from fsys.
func WithScriptsFS(fsys fs.FS) Option {
	return func(e *Engine) {
		e.scriptsFS = fsys
		e.scriptsDir = ""
	}
}

// WithParallelism bounds how many units Index graphs at once. Zero or
// less means one per CPU.
func WithParallelism(n int) Option {
	return func(e *Engine) {
		e.parallelism = n
	}
}

// New creates an Engine. Scripts default to the embedded set.
func New(opts ...Option) (*Engine, error) {
	e := &Engine{scriptsFS: scripts.FS}
	for _, opt := range opts {
		opt(e)
	}
	if e.log == nil {
		e.log = slog.New(slog.DiscardHandler)
	}
	if e.parallelism <= 0 && e.cfg != nil {
		e.parallelism = e.cfg.Parallelism
	}

	rtOpts := []runtime.RuntimeOption{runtime.WithRuntimeLogger(e.log)}
	if e.scriptsFS != nil {
		rtOpts = append(rtOpts, runtime.WithRuntimeFS(e.scriptsFS))
	}
	e.runtime = runtime.NewRuntime(e.scriptsDir, rtOpts...)
	e.registry = frontend.NewRegistry(php.New(), script.NewC(e.runtime))

	if e.dbPath != "" {
		s, err := store.NewStore(e.dbPath)
		if err != nil {
			return nil, fmt.Errorf("basic: create store: %w", err)
		}
		if err := s.Migrate(); err != nil {
			s.Close()
			return nil, fmt.Errorf("basic: migrate: %w", err)
		}
		e.store = s
	}
	return e, nil
}

// Close releases the Engine's database resources.
func (e *Engine) Close() error {
	if e.store == nil {
		return nil
	}
	return e.store.Close()
}

// Store returns the underlying Store, or nil when none was configured.
func (e *Engine) Store() *Store {
	return e.store
}

// Languages returns the names of the languages the Engine processes.
func (e *Engine) Languages() []string {
	var out []string
	for _, name := range e.registry.Names() {
		if e.enabled(name) {
			out = append(out, name)
		}
	}
	return out
}

func (e *Engine) enabled(lang string) bool {
	return e.languages == nil || e.languages[lang]
}

// config returns the fixed configuration or loads the one found at root.
func (e *Engine) config(root string) (*config.Config, error) {
	if e.cfg != nil {
		return e.cfg, nil
	}
	return config.LoadDir(root)
}

// Scan discovers the source units of every enabled language under root,
// ordered by type, then name.
func (e *Engine) Scan(root string) ([]*SourceUnit, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("basic: scan: %w", err)
	}
	cfg, err := e.config(abs)
	if err != nil {
		return nil, fmt.Errorf("basic: scan: %w", err)
	}

	var units []*SourceUnit
	for _, fe := range e.registry.Frontends() {
		lc := cfg.Language(fe.Name())
		if !e.enabled(fe.Name()) || lc.Disabled {
			continue
		}
		found, err := fe.CollectSourceUnits(abs, lc)
		if err != nil {
			return nil, fmt.Errorf("basic: scan %s: %w", fe.Name(), err)
		}
		units = append(units, found...)
	}
	sort.SliceStable(units, func(i, j int) bool {
		if units[i].Type != units[j].Type {
			return units[i].Type < units[j].Type
		}
		return units[i].Name < units[j].Name
	})
	e.log.Debug("scan done", "root", abs, "units", len(units))
	return units, nil
}

// Graph runs the kernel over one unit. It does not persist; see Save.
func (e *Engine) Graph(ctx context.Context, unit *SourceUnit) (*GraphResult, error) {
	if !e.enabled(unit.Type) {
		return nil, fmt.Errorf("%w: %q (filtered out)", frontend.ErrUnknownLanguage, unit.Type)
	}
	return e.registry.GraphUnit(ctx, unit, frontend.Options{Logger: e.log})
}

// Save persists out as the current graph of unit, replacing what was
// stored before. unit is normalized first, so its hash matches the one
// Index computes.
func (e *Engine) Save(unit *SourceUnit, out *graph.Output) error {
	if e.store == nil {
		return fmt.Errorf("basic: save %s: no store configured", unit.Name)
	}
	unit.Normalize()
	hash, err := store.ComputeUnitHash(unit, nil)
	if err != nil {
		return fmt.Errorf("basic: save %s: %w", unit.Name, err)
	}
	if _, err := e.store.WriteGraph(unit, hash, out); err != nil {
		return fmt.Errorf("basic: save %s: %w", unit.Name, err)
	}
	return nil
}

// scriptsHash computes a SHA-256 hash of all Risor scripts. Walks the
// scriptsFS or scriptsDir to find all .risor files, sorts them by path,
// and hashes their concatenated contents.
func (e *Engine) scriptsHash() string {
	var paths []string
	walk := func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() && strings.HasSuffix(p, ".risor") {
			paths = append(paths, p)
		}
		return nil
	}

	if e.scriptsFS != nil {
		fs.WalkDir(e.scriptsFS, ".", walk)
	} else if e.scriptsDir != "" {
		filepath.WalkDir(e.scriptsDir, func(p string, d fs.DirEntry, err error) error {
			rel, _ := filepath.Rel(e.scriptsDir, p)
			return walk(filepath.ToSlash(rel), d, err)
		})
	}
	sort.Strings(paths)

	h := sha256.New()
	for _, p := range paths {
		src, err := e.runtime.LoadScript(p)
		if err != nil {
			continue
		}
		h.Write([]byte(p))
		h.Write([]byte(src))
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}

// ScriptsChanged reports whether the scripts differ from the ones used to
// build the current database. True when no hash is stored yet.
func (e *Engine) ScriptsChanged() bool {
	if e.store == nil {
		return true
	}
	stored, err := e.store.GetMetadata(metaScriptsHash)
	if err != nil || stored == "" {
		return true
	}
	return e.scriptsHash() != stored
}

const metaScriptsHash = "scripts_hash"

// Query returns a new QueryBuilder wrapping the Store.
func (e *Engine) Query() *QueryBuilder {
	return &QueryBuilder{store: e.store}
}
