// Package resolve implements the second pass over a unit's references:
// candidate keys emitted during traversal are resolved once each and
// expanded into concrete references.
package resolve

import (
	"log/slog"

	"github.com/alexsaveliev/srclib-basic-sub000/internal/graph"
)

// Resolver maps a candidate key to zero or more concrete keys.
type Resolver interface {
	Resolve(key graph.DefKey) ([]graph.DefKey, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(key graph.DefKey) ([]graph.DefKey, error)

func (f ResolverFunc) Resolve(key graph.DefKey) ([]graph.DefKey, error) { return f(key) }

// Stats summarizes one resolution pass.
type Stats struct {
	Candidates int // candidate occurrences
	Distinct   int // distinct candidate keys
	Resolved   int // distinct keys with at least one target
	Dropped    int // occurrences dropped for lack of targets
	Expanded   int // concrete refs produced from candidates
	Failed     int // distinct keys whose resolver returned an error
}

// Candidates rewrites c's reference set: every candidate reference is
// replaced by one concrete reference per target its key resolves to, or
// dropped when there are none. Each distinct key is resolved exactly once,
// in first-occurrence order. Resolver errors are logged and treated as no
// targets.
func Candidates(c *graph.Collector, r Resolver, log *slog.Logger) Stats {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	var st Stats

	refs := c.Refs()
	var order []string
	keys := make(map[string]graph.DefKey)
	for _, ref := range refs {
		if !isCandidate(ref) {
			continue
		}
		st.Candidates++
		id := ref.Target.ID()
		if _, ok := keys[id]; !ok {
			keys[id] = ref.Target
			order = append(order, id)
		}
	}
	if st.Candidates == 0 {
		return st
	}
	st.Distinct = len(order)

	resolved := make(map[string][]graph.DefKey, len(order))
	for _, id := range order {
		key := keys[id]
		targets, err := r.Resolve(key)
		if err != nil {
			st.Failed++
			log.Warn("candidate resolution failed", "key", key.Path(), "err", err)
			targets = nil
		}
		targets = concrete(targets)
		if len(targets) > 0 {
			st.Resolved++
		}
		resolved[id] = targets
	}

	out := make([]graph.Ref, 0, len(refs))
	for _, ref := range refs {
		if !isCandidate(ref) {
			out = append(out, ref)
			continue
		}
		targets := resolved[ref.Target.ID()]
		if len(targets) == 0 {
			st.Dropped++
			continue
		}
		for _, t := range targets {
			out = append(out, graph.Ref{
				File:   ref.File,
				Span:   ref.Span,
				Target: t,
				IsDef:  ref.IsDef,
			})
			st.Expanded++
		}
	}
	c.ReplaceRefs(out)

	log.Debug("candidates resolved",
		"candidates", st.Candidates, "distinct", st.Distinct, "resolved", st.Resolved,
		"dropped", st.Dropped, "expanded", st.Expanded, "failed", st.Failed)
	return st
}

func isCandidate(r graph.Ref) bool { return r.IsCandidate || r.Target.IsCandidate() }

// concrete filters out candidate keys a resolver may hand back; a candidate
// can never resolve to another candidate.
func concrete(keys []graph.DefKey) []graph.DefKey {
	out := keys[:0:0]
	for _, k := range keys {
		if !k.IsCandidate() && !k.IsZero() {
			out = append(out, k)
		}
	}
	return out
}
