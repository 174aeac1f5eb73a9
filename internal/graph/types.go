package graph

import (
	"fmt"
	"path/filepath"
	"strconv"
)

// Span is a half-open byte range [Start, End) into a file.
type Span struct {
	Start uint32 `json:"start"`
	End   uint32 `json:"end"`
}

func (s Span) String() string { return fmt.Sprintf("%d-%d", s.Start, s.End) }

// Def is a named program entity. Two Defs are the same entity when their
// keys are equal, even if their spans or files differ.
type Def struct {
	Key      DefKey
	Kind     string
	Name     string
	File     string
	Span     Span
	Exported bool
	Local    bool
	Test     bool
}

// SameEntity reports whether d and o denote the same entity.
func (d *Def) SameEntity(o *Def) bool { return d.Key.Equal(o.Key) }

// Location renders "file:start-end" for diagnostics.
func (d *Def) Location() string { return d.File + ":" + d.Span.String() }

// SelfRef returns the definition-site reference every emitted Def carries.
func (d *Def) SelfRef() Ref {
	return Ref{File: d.File, Span: d.Span, Target: d.Key, IsDef: true}
}

// Ref is a use site pointing at a definition key.
type Ref struct {
	File        string
	Span        Span
	Target      DefKey
	IsDef       bool
	IsCandidate bool
}

// ID is the structural identity used to deduplicate references.
func (r Ref) ID() string {
	return strconv.Quote(r.File) + "@" + r.Span.String() + "#" + r.Target.ID() +
		"|" + strconv.FormatBool(r.IsDef) + strconv.FormatBool(r.IsCandidate)
}

// SourceUnit is the unit of indexing: a named set of files of one language.
type SourceUnit struct {
	Name         string   `json:"name"`
	Type         string   `json:"type"`
	Dir          string   `json:"dir"`
	Files        []string `json:"files"`
	Dependencies []string `json:"dependencies,omitempty"`
}

// Normalize rewrites file paths to clean slash-separated paths relative to
// Dir. It is the only mutation allowed after a unit has been created.
func (u *SourceUnit) Normalize() {
	if u.Dir != "" {
		u.Dir = filepath.Clean(u.Dir)
	}
	for i, f := range u.Files {
		if filepath.IsAbs(f) && u.Dir != "" {
			if rel, err := filepath.Rel(u.Dir, f); err == nil {
				f = rel
			}
		}
		u.Files[i] = filepath.ToSlash(filepath.Clean(f))
	}
}
