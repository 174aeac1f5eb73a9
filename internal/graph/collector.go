package graph

import (
	"errors"
	"fmt"
	"log/slog"
)

// FlushFunc is invoked by Flush with the collector's current contents.
type FlushFunc func(c *Collector) error

// Collector accumulates the definitions and references of one source unit.
// It is not safe for concurrent use; a unit has exactly one writer.
type Collector struct {
	log *slog.Logger

	defs    map[string]*Def
	defKeys []string // insertion order of def key IDs

	refs   []Ref
	refIDs map[string]struct{}

	onFlush []FlushFunc
}

// NewCollector creates an empty collector. A nil logger discards output.
func NewCollector(log *slog.Logger) *Collector {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Collector{
		log:    log,
		defs:   make(map[string]*Def),
		refIDs: make(map[string]struct{}),
	}
}

// WriteDef inserts d, or replaces the content of an existing definition with
// the same key. A replaced definition keeps its original output position.
func (c *Collector) WriteDef(d *Def) {
	id := d.Key.ID()
	if prev, ok := c.defs[id]; ok {
		c.log.Warn("redefinition",
			"key", d.Key.Path(),
			"previous", prev.Location(),
			"current", d.Location())
	} else {
		c.defKeys = append(c.defKeys, id)
	}
	cp := *d
	c.defs[id] = &cp
}

// WriteRef adds r to the reference set. Writing an identical reference twice
// is a no-op.
func (c *Collector) WriteRef(r Ref) {
	id := r.ID()
	if _, ok := c.refIDs[id]; ok {
		return
	}
	c.refIDs[id] = struct{}{}
	c.refs = append(c.refs, r)
}

// Emit writes d and its definition-site reference.
func (c *Collector) Emit(d *Def) {
	c.WriteDef(d)
	c.WriteRef(d.SelfRef())
}

// Defs returns definitions in first-insertion order.
func (c *Collector) Defs() []*Def {
	out := make([]*Def, 0, len(c.defKeys))
	for _, id := range c.defKeys {
		out = append(out, c.defs[id])
	}
	return out
}

// Refs returns references in insertion order. The returned slice must not be
// modified.
func (c *Collector) Refs() []Ref { return c.refs }

// Def returns the definition for key, or nil.
func (c *Collector) Def(key DefKey) *Def { return c.defs[key.ID()] }

// DefsNamed returns every definition whose key ends in name, in insertion
// order.
func (c *Collector) DefsNamed(name string) []*Def {
	var out []*Def
	for _, id := range c.defKeys {
		if d := c.defs[id]; d.Key.Name() == name {
			out = append(out, d)
		}
	}
	return out
}

// ReplaceRefs swaps the reference set for refs, deduplicating as WriteRef
// does.
func (c *Collector) ReplaceRefs(refs []Ref) {
	c.refs = nil
	c.refIDs = make(map[string]struct{}, len(refs))
	for _, r := range refs {
		c.WriteRef(r)
	}
}

// OnFlush registers fn to run on every Flush.
func (c *Collector) OnFlush(fn FlushFunc) { c.onFlush = append(c.onFlush, fn) }

// Flush runs the registered flush hooks. All hooks run; their errors are
// joined.
func (c *Collector) Flush() error {
	var errs []error
	for _, fn := range c.onFlush {
		if err := fn(c); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("graph: flush: %w", errors.Join(errs...))
	}
	return nil
}

// Output builds the normalized graph. Candidate references are never part of
// the output; any still present are logged and skipped.
func (c *Collector) Output() *Output {
	out := &Output{
		Defs: make([]DefOut, 0, len(c.defKeys)),
		Refs: make([]RefOut, 0, len(c.refs)),
	}
	for _, d := range c.Defs() {
		out.Defs = append(out.Defs, newDefOut(d))
	}
	for _, r := range c.refs {
		if r.IsCandidate || r.Target.IsCandidate() {
			c.log.Debug("unresolved candidate in output", "file", r.File, "key", r.Target.Path())
			continue
		}
		out.Refs = append(out.Refs, newRefOut(r))
	}
	return out
}
