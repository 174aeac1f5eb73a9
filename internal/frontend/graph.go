package frontend

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/alexsaveliev/srclib-basic-sub000/internal/graph"
	"github.com/alexsaveliev/srclib-basic-sub000/internal/resolve"
	"github.com/alexsaveliev/srclib-basic-sub000/internal/traverse"
)

// Options configures one kernel run.
type Options struct {
	Logger *slog.Logger
	// FS replaces the unit directory as the file source.
	FS fs.FS
	// OnFlush hooks receive the collector after resolution.
	OnFlush []graph.FlushFunc
}

// Result is the outcome of graphing one unit.
type Result struct {
	Unit       *graph.SourceUnit
	Output     *graph.Output
	Traversal  traverse.Stats
	Resolution resolve.Stats
	// FileErrors are the per-file failures absorbed during traversal.
	FileErrors []error
}

// Graph runs the kernel over unit: traversal of every declared file,
// candidate resolution, flush, then output. Per-file and per-candidate
// failures are logged and absorbed. A cancelled ctx stops traversal at a
// file boundary; the partial result is still returned with the error.
func Graph(ctx context.Context, fe Frontend, unit *graph.SourceUnit, opts Options) (*Result, error) {
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	log = log.With("unit", unit.Name, "lang", unit.Type)
	unit.Normalize()

	coll := graph.NewCollector(log)
	for _, fn := range opts.OnFlush {
		coll.OnFlush(fn)
	}

	topts := []traverse.Option{traverse.WithLogger(log)}
	if opts.FS != nil {
		topts = append(topts, traverse.WithFS(opts.FS))
	}
	ctl := traverse.New(unit, coll, topts...)
	ix := fe.NewIndexer(unit)

	res := &Result{Unit: unit}
	runErr := ctl.Run(ctx, ix.ParseFile)
	res.Traversal = ctl.Stats()
	res.FileErrors = ctl.Errors()
	log.Debug("traversal done",
		"declared", res.Traversal.Declared, "parsed", res.Traversal.Parsed,
		"failed", res.Traversal.Failed, "outside", res.Traversal.Outside,
		"missing", res.Traversal.Missing)

	res.Resolution = resolve.Candidates(coll, ix, log)

	if err := coll.Flush(); err != nil {
		return res, fmt.Errorf("frontend: %s: %w", unit.Name, err)
	}
	res.Output = coll.Output()
	if runErr != nil {
		return res, runErr
	}
	return res, nil
}

// GraphUnit looks up unit's frontend in r and graphs it.
func (r *Registry) GraphUnit(ctx context.Context, unit *graph.SourceUnit, opts Options) (*Result, error) {
	fe, err := r.Lookup(unit.Type)
	if err != nil {
		return nil, err
	}
	return Graph(ctx, fe, unit, opts)
}
