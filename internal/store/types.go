package store

import "time"

// Unit is a stored source unit.
type Unit struct {
	ID           int64
	Name         string
	Type         string
	Dir          string
	Files        []string
	Dependencies []string
	// Hash is ComputeUnitHash at the time the graph was written.
	Hash      string
	IndexedAt time.Time
}

// Def is a stored definition. Key is unique within its unit; Path usually
// is, but distinct entities may share it.
type Def struct {
	ID       int64
	UnitID   int64
	Unit     string
	Key      string
	Path     string
	TreePath string
	Name     string
	Kind     string
	File     string
	DefStart uint32
	DefEnd   uint32
	Exported bool
	Local    bool
	Test     bool
}

// Ref is a stored reference. DefUnit is always filled in, including for
// references to the ref's own unit.
type Ref struct {
	ID      int64
	UnitID  int64
	Unit    string
	DefUnit string
	DefKey  string
	DefPath string
	Def     bool
	File    string
	Start   uint32
	End     uint32
}

// Metadata keys.
const (
	MetaSchemaVersion = "schema_version"
	MetaLastIndexed   = "last_indexed"
	MetaRoot          = "root"
)
