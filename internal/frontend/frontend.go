// Package frontend defines the contract between the language-agnostic
// indexing kernel and the per-language walkers, and runs the kernel over
// one source unit.
package frontend

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/alexsaveliev/srclib-basic-sub000/internal/config"
	"github.com/alexsaveliev/srclib-basic-sub000/internal/graph"
	"github.com/alexsaveliev/srclib-basic-sub000/internal/traverse"
)

// ErrUnknownLanguage is returned when no frontend is registered for a
// unit's type.
var ErrUnknownLanguage = errors.New("frontend: unknown language")

// Frontend is a language implementation.
type Frontend interface {
	// Name is the stable lowercase language identifier, also used as the
	// source unit type.
	Name() string
	// CollectSourceUnits discovers this language's units under root.
	CollectSourceUnits(root string, cfg config.Language) ([]*graph.SourceUnit, error)
	// NewIndexer returns fresh per-unit state. Indexers are never shared
	// between units.
	NewIndexer(unit *graph.SourceUnit) Indexer
}

// Indexer walks the files of one unit and resolves its candidate keys.
type Indexer interface {
	// ParseFile parses the file described by x and emits into it.
	ParseFile(x *traverse.Context) error
	// Resolve maps a candidate key to concrete keys. It runs after every
	// file of the unit has been parsed.
	Resolve(key graph.DefKey) ([]graph.DefKey, error)
}

// Registry maps language names to frontends. It is safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]Frontend
}

func NewRegistry(fes ...Frontend) *Registry {
	r := &Registry{byName: make(map[string]Frontend)}
	for _, fe := range fes {
		// Duplicates in the constructor keep the first registration.
		_ = r.Register(fe)
	}
	return r
}

// Register adds fe. Registering a name twice is an error.
func (r *Registry) Register(fe Frontend) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byName[fe.Name()]; ok {
		return fmt.Errorf("frontend: %s already registered", fe.Name())
	}
	r.byName[fe.Name()] = fe
	return nil
}

// Lookup returns the frontend for name or an error wrapping
// ErrUnknownLanguage.
func (r *Registry) Lookup(name string) (Frontend, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fe, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownLanguage, name)
	}
	return fe, nil
}

// Names returns the registered language names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byName))
	for name := range r.byName {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Frontends returns the registered frontends ordered by name.
func (r *Registry) Frontends() []Frontend {
	names := r.Names()
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Frontend, 0, len(names))
	for _, name := range names {
		out = append(out, r.byName[name])
	}
	return out
}
