package basic

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	goruntime "runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alexsaveliev/srclib-basic-sub000/internal/store"
)

// UnitReport is the outcome of indexing one unit.
type UnitReport struct {
	Unit *SourceUnit
	// Skipped is set when the stored graph was already current.
	Skipped bool
	Defs    int
	Refs    int
	// Result is nil for skipped and unit-fatal units.
	Result *GraphResult
	Err    error
}

// IndexReport summarizes an Index run.
type IndexReport struct {
	Root    string
	Units   []UnitReport
	Removed []string
	Elapsed time.Duration
}

// Failed returns how many units hit a unit-fatal error.
func (r *IndexReport) Failed() int {
	n := 0
	for _, u := range r.Units {
		if u.Err != nil {
			n++
		}
	}
	return n
}

// Index scans root and graphs every changed unit into the store using a
// three-phase pipeline:
//
//	Phase A (serial):   Hash each unit and skip the ones already current.
//	Phase B (parallel): Graph units on a bounded errgroup, each with its own
//	                    collector, scope stack and indexer.
//	Phase C (serial):   Write graphs to SQLite, drop units that vanished.
//
// A unit-fatal error is recorded in its UnitReport and does not stop the
// other units. Only cancellation and store failures abort the run.
func (e *Engine) Index(ctx context.Context, root string, force bool) (*IndexReport, error) {
	start := time.Now()
	if e.store == nil {
		return nil, errors.New("basic: index: no store configured")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("basic: index: %w", err)
	}
	units, err := e.Scan(abs)
	if err != nil {
		return nil, err
	}
	if !force && e.ScriptsChanged() {
		e.log.Info("scripts changed, reindexing every unit")
		force = true
	}

	// ---- Phase A: Serial change detection ----
	report := &IndexReport{Root: abs, Units: make([]UnitReport, len(units))}
	hashes := make([]string, len(units))
	var todo []int
	for i, u := range units {
		report.Units[i].Unit = u
		u.Normalize()
		hashes[i], err = store.ComputeUnitHash(u, nil)
		if err != nil {
			report.Units[i].Err = err
			continue
		}
		if !force {
			existing, err := e.store.UnitByName(u.Name, u.Type)
			if err != nil {
				return nil, fmt.Errorf("basic: index: %w", err)
			}
			if existing != nil && existing.Hash == hashes[i] {
				report.Units[i].Skipped = true
				continue
			}
		}
		todo = append(todo, i)
	}

	// ---- Phase B: Parallel graphing ----
	limit := e.parallelism
	if limit <= 0 {
		limit = goruntime.NumCPU()
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for _, i := range todo {
		g.Go(func() error {
			u := units[i]
			res, err := e.Graph(gctx, u)
			if cerr := gctx.Err(); cerr != nil {
				return cerr
			}
			if err != nil {
				e.log.Warn("unit failed", "unit", u.Name, "lang", u.Type, "error", err)
				report.Units[i].Err = err
				return nil
			}
			report.Units[i].Result = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report, fmt.Errorf("basic: index: %w", err)
	}

	// ---- Phase C: Serial commit ----
	for _, i := range todo {
		ur := &report.Units[i]
		if ur.Result == nil {
			continue
		}
		out := ur.Result.Output
		if _, err := e.store.WriteGraph(ur.Unit, hashes[i], out); err != nil {
			return report, fmt.Errorf("basic: index: %w", err)
		}
		ur.Defs, ur.Refs = len(out.Defs), len(out.Refs)
		e.log.Info("unit indexed", "unit", ur.Unit.Name, "lang", ur.Unit.Type,
			"files", len(ur.Unit.Files), "defs", ur.Defs, "refs", ur.Refs)
	}

	removed, err := e.removeVanished(abs, units)
	if err != nil {
		return report, err
	}
	report.Removed = removed

	for k, v := range map[string]string{
		store.MetaRoot:        abs,
		store.MetaLastIndexed: time.Now().UTC().Format(time.RFC3339),
		metaScriptsHash:       e.scriptsHash(),
	} {
		if err := e.store.SetMetadata(k, v); err != nil {
			return report, fmt.Errorf("basic: index: %w", err)
		}
	}
	report.Elapsed = time.Since(start)
	return report, nil
}

// removeVanished deletes stored units rooted at root that the latest scan
// no longer produced. Units of filtered-out languages are left alone.
func (e *Engine) removeVanished(root string, scanned []*SourceUnit) ([]string, error) {
	keep := make(map[string]bool, len(scanned))
	for _, u := range scanned {
		keep[u.Type+"\x00"+u.Name] = true
	}
	stored, err := e.store.Units()
	if err != nil {
		return nil, fmt.Errorf("basic: index: %w", err)
	}
	var removed []string
	for _, u := range stored {
		if u.Dir != root || !e.enabled(u.Type) || keep[u.Type+"\x00"+u.Name] {
			continue
		}
		if err := e.store.DeleteUnit(u.Name, u.Type); err != nil {
			return removed, fmt.Errorf("basic: index: %w", err)
		}
		e.log.Info("unit removed", "unit", u.Name, "lang", u.Type)
		removed = append(removed, u.Type+":"+u.Name)
	}
	return removed, nil
}
