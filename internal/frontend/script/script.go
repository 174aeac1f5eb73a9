// Package script adapts Risor graph and resolution scripts to the frontend
// contract. The C frontend is the script frontend with C's file set.
package script

import (
	"context"

	"github.com/alexsaveliev/srclib-basic-sub000/internal/config"
	"github.com/alexsaveliev/srclib-basic-sub000/internal/frontend"
	"github.com/alexsaveliev/srclib-basic-sub000/internal/graph"
	"github.com/alexsaveliev/srclib-basic-sub000/internal/runtime"
	"github.com/alexsaveliev/srclib-basic-sub000/internal/traverse"
)

// Frontend runs graph/<lang>.risor for every file and resolve/<lang>.risor
// for every distinct candidate.
type Frontend struct {
	lang  string
	rt    *runtime.Runtime
	files frontend.FileCollector
}

func New(lang string, rt *runtime.Runtime, files frontend.FileCollector) *Frontend {
	return &Frontend{lang: lang, rt: rt, files: files}
}

// NewC returns the C frontend. Objective-C sources block a tree, since
// their headers would otherwise be indexed as C.
func NewC(rt *runtime.Runtime) *Frontend {
	return New("c", rt, frontend.FileCollector{
		Extensions: []string{".c", ".h"},
		Blockers:   []string{".m", ".mm"},
	})
}

func (f *Frontend) Name() string { return f.lang }

func (f *Frontend) CollectSourceUnits(root string, cfg config.Language) ([]*graph.SourceUnit, error) {
	u, err := f.files.Merge(cfg).Unit(root, f.lang)
	if err != nil || u == nil {
		return nil, err
	}
	return []*graph.SourceUnit{u}, nil
}

func (f *Frontend) NewIndexer(*graph.SourceUnit) frontend.Indexer {
	return &indexer{fe: f, keys: runtime.NewKeys(), ctx: context.Background()}
}

// indexer carries the key handles scripts exchange across the files and
// candidates of one unit.
type indexer struct {
	fe   *Frontend
	keys *runtime.Keys
	coll *graph.Collector
	ctx  context.Context
}

func (ix *indexer) ParseFile(x *traverse.Context) error {
	ix.coll = x.Collector()
	ix.ctx = x.Context()
	return ix.fe.rt.GraphFile(x, ix.keys, ix.fe.lang)
}

func (ix *indexer) Resolve(key graph.DefKey) ([]graph.DefKey, error) {
	if ix.coll == nil {
		return nil, nil
	}
	return ix.fe.rt.ResolveCandidate(ix.ctx, ix.coll, ix.keys, ix.fe.lang, key)
}
