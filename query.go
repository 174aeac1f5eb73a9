package basic

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/alexsaveliev/srclib-basic-sub000/internal/store"
)

// QueryBuilder provides a read API over the Store.
type QueryBuilder struct {
	store *store.Store
}

// Location is a source range. Lines and columns are 1-based; columns
// count bytes.
type Location struct {
	File      string
	StartLine int
	StartCol  int
	EndLine   int
	EndCol    int
}

func (q *QueryBuilder) check() error {
	if q.store == nil {
		return fmt.Errorf("query: no store configured")
	}
	return nil
}

// unit looks up a unit; a missing unit is (nil, nil).
func (q *QueryBuilder) unit(name, typ string) (*Unit, error) {
	if err := q.check(); err != nil {
		return nil, err
	}
	return q.store.UnitByName(name, typ)
}

// Units returns every stored unit.
func (q *QueryBuilder) Units() ([]*Unit, error) {
	if err := q.check(); err != nil {
		return nil, err
	}
	return q.store.Units()
}

// Defs returns the defs of a unit ordered by file and position.
func (q *QueryBuilder) Defs(unit, typ string) ([]*Def, error) {
	u, err := q.unit(unit, typ)
	if err != nil || u == nil {
		return nil, err
	}
	return q.store.DefsByUnit(u.ID)
}

// DefsNamed returns every def with the given simple name.
func (q *QueryBuilder) DefsNamed(name string) ([]*Def, error) {
	if err := q.check(); err != nil {
		return nil, err
	}
	return q.store.DefsByName(name)
}

// Def returns the def at path in a unit, or nil.
func (q *QueryBuilder) Def(unit, typ, path string) (*Def, error) {
	u, err := q.unit(unit, typ)
	if err != nil || u == nil {
		return nil, err
	}
	return q.store.DefByPath(u.ID, path)
}

// ReferencesTo returns every reference to the def at path in a unit,
// including the def's own self-reference.
func (q *QueryBuilder) ReferencesTo(unit, typ, path string) ([]*Ref, error) {
	u, err := q.unit(unit, typ)
	if err != nil || u == nil {
		return nil, err
	}
	return q.store.RefsToDef(u.ID, path)
}

// RefsInFile returns the references located in one file of a unit.
func (q *QueryBuilder) RefsInFile(unit, typ, file string) ([]*Ref, error) {
	u, err := q.unit(unit, typ)
	if err != nil || u == nil {
		return nil, err
	}
	return q.store.RefsInFile(u.ID, file)
}

// DefinitionAt returns the defs referenced at a byte offset in a
// unit-relative file.
func (q *QueryBuilder) DefinitionAt(file string, offset uint32) ([]*Def, error) {
	if err := q.check(); err != nil {
		return nil, err
	}
	return q.store.DefinitionAt(filepath.ToSlash(file), offset)
}

// DefinitionAtPosition is DefinitionAt with a 1-based line and column. The
// file is read from the indexed root to translate the position.
func (q *QueryBuilder) DefinitionAtPosition(file string, line, col int) ([]*Def, error) {
	if err := q.check(); err != nil {
		return nil, err
	}
	root, err := q.store.GetMetadata(store.MetaRoot)
	if err != nil {
		return nil, err
	}
	src, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(file)))
	if err != nil {
		return nil, fmt.Errorf("definition at position: %w", err)
	}
	off, err := offsetOf(src, line, col)
	if err != nil {
		return nil, fmt.Errorf("definition at position: %s: %w", file, err)
	}
	return q.DefinitionAt(file, off)
}

// Location translates a def's byte span into lines and columns by reading
// the file from its unit directory.
func (q *QueryBuilder) Location(d *Def) (*Location, error) {
	if err := q.check(); err != nil {
		return nil, err
	}
	u, err := q.store.UnitByID(d.UnitID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, fmt.Errorf("location: unit %d not found", d.UnitID)
	}
	src, err := os.ReadFile(filepath.Join(u.Dir, filepath.FromSlash(d.File)))
	if err != nil {
		return nil, fmt.Errorf("location: %w", err)
	}
	loc := &Location{File: d.File}
	loc.StartLine, loc.StartCol = lineCol(src, d.DefStart)
	loc.EndLine, loc.EndCol = lineCol(src, d.DefEnd)
	return loc, nil
}

// lineCol converts a byte offset into a 1-based line and column. Offsets
// past the end clamp to the end.
func lineCol(src []byte, off uint32) (int, int) {
	if int(off) > len(src) {
		off = uint32(len(src))
	}
	before := src[:off]
	line := bytes.Count(before, []byte{'\n'}) + 1
	col := int(off) - (bytes.LastIndexByte(before, '\n') + 1) + 1
	return line, col
}

// offsetOf converts a 1-based line and column into a byte offset.
func offsetOf(src []byte, line, col int) (uint32, error) {
	if line < 1 || col < 1 {
		return 0, fmt.Errorf("invalid position %d:%d", line, col)
	}
	start := 0
	for l := 1; l < line; l++ {
		i := bytes.IndexByte(src[start:], '\n')
		if i < 0 {
			return 0, fmt.Errorf("line %d past end of file", line)
		}
		start += i + 1
	}
	end := len(src)
	if i := bytes.IndexByte(src[start:], '\n'); i >= 0 {
		end = start + i
	}
	if start+col-1 > end {
		return 0, fmt.Errorf("column %d past end of line %d", col, line)
	}
	return uint32(start + col - 1), nil
}

// NewQueryBuilder wraps an already open Store.
func NewQueryBuilder(s *Store) *QueryBuilder {
	return &QueryBuilder{store: s}
}
