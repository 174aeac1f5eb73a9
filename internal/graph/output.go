package graph

// Output is the normalized graph of one source unit.
type Output struct {
	Defs []DefOut `json:"defs"`
	Refs []RefOut `json:"refs"`
}

// DefOut is the wire form of a definition.
type DefOut struct {
	Key      string `json:"key"`
	Path     string `json:"path"`
	TreePath string `json:"tree_path"`
	Name     string `json:"name"`
	Kind     string `json:"kind"`
	File     string `json:"file"`
	DefStart uint32 `json:"def_start"`
	DefEnd   uint32 `json:"def_end"`
	Exported bool   `json:"exported"`
	Local    bool   `json:"local"`
	Test     bool   `json:"test"`
}

// RefOut is the wire form of a reference. DefKey matches the target's
// DefOut.Key; DefPath is its display path and may be shared by distinct
// definitions.
type RefOut struct {
	DefUnit string `json:"def_unit,omitempty"`
	DefKey  string `json:"def_key"`
	DefPath string `json:"def_path"`
	Def     bool   `json:"def,omitempty"`
	File    string `json:"file"`
	Start   uint32 `json:"start"`
	End     uint32 `json:"end"`
}

func newDefOut(d *Def) DefOut {
	return DefOut{
		Key:      d.Key.Encode(),
		Path:     d.Key.Path(),
		TreePath: d.Key.TreePath(),
		Name:     d.Name,
		Kind:     d.Kind,
		File:     d.File,
		DefStart: d.Span.Start,
		DefEnd:   d.Span.End,
		Exported: d.Exported,
		Local:    d.Local,
		Test:     d.Test,
	}
}

func newRefOut(r Ref) RefOut {
	return RefOut{
		DefUnit: r.Target.Unit,
		DefKey:  r.Target.Encode(),
		DefPath: r.Target.Path(),
		Def:     r.IsDef,
		File:    r.File,
		Start:   r.Span.Start,
		End:     r.Span.End,
	}
}
