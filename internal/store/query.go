package store

import (
	"database/sql"
	"errors"
	"fmt"
)

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

const unitColumns = "u.id, u.name, u.type, u.dir, u.files, u.dependencies, u.hash, u.indexed_at"

func scanUnit(sc scanner) (*Unit, error) {
	u := &Unit{}
	var files, deps string
	var indexed sql.NullTime
	if err := sc.Scan(&u.ID, &u.Name, &u.Type, &u.Dir, &files, &deps, &u.Hash, &indexed); err != nil {
		return nil, err
	}
	u.Files = unmarshalStrings(files)
	u.Dependencies = unmarshalStrings(deps)
	if indexed.Valid {
		u.IndexedAt = indexed.Time
	}
	return u, nil
}

const defColumns = "d.id, d.unit_id, du.name, d.key, d.path, d.tree_path, d.name, d.kind, d.file, d.def_start, d.def_end, d.exported, d.local, d.test"

func scanDef(sc scanner, extra ...any) (*Def, error) {
	d := &Def{}
	dest := append([]any{&d.ID, &d.UnitID, &d.Unit, &d.Key, &d.Path, &d.TreePath, &d.Name, &d.Kind, &d.File,
		&d.DefStart, &d.DefEnd, &d.Exported, &d.Local, &d.Test}, extra...)
	if err := sc.Scan(dest...); err != nil {
		return nil, err
	}
	return d, nil
}

const refColumns = "r.id, r.unit_id, ru.name, r.def_unit, r.def_key, r.def_path, r.is_def, r.file, r.ref_start, r.ref_end"

func scanRef(sc scanner) (*Ref, error) {
	r := &Ref{}
	if err := sc.Scan(&r.ID, &r.UnitID, &r.Unit, &r.DefUnit, &r.DefKey, &r.DefPath, &r.Def, &r.File, &r.Start, &r.End); err != nil {
		return nil, err
	}
	return r, nil
}

// --- Unit queries ---

// Units returns every stored unit ordered by name, then type.
func (s *Store) Units() ([]*Unit, error) {
	rows, err := s.db.Query("SELECT " + unitColumns + " FROM units u ORDER BY u.name, u.type")
	if err != nil {
		return nil, fmt.Errorf("units: %w", err)
	}
	defer rows.Close()
	var out []*Unit
	for rows.Next() {
		u, err := scanUnit(rows)
		if err != nil {
			return nil, fmt.Errorf("scan unit: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// UnitByName returns the unit with name and type, or nil if none.
func (s *Store) UnitByName(name, typ string) (*Unit, error) {
	u, err := scanUnit(s.db.QueryRow(
		"SELECT "+unitColumns+" FROM units u WHERE u.name = ? AND u.type = ?", name, typ,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("unit by name: %w", err)
	}
	return u, nil
}

// UnitByID returns the unit with id, or nil if none.
func (s *Store) UnitByID(id int64) (*Unit, error) {
	u, err := scanUnit(s.db.QueryRow("SELECT "+unitColumns+" FROM units u WHERE u.id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("unit by id: %w", err)
	}
	return u, nil
}

// --- Def queries ---

func (s *Store) queryDefs(where string, args ...any) ([]*Def, error) {
	rows, err := s.db.Query(
		"SELECT "+defColumns+" FROM defs d JOIN units du ON du.id = d.unit_id WHERE "+where+
			" ORDER BY du.name, d.file, d.def_start, d.path", args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Def
	for rows.Next() {
		d, err := scanDef(rows)
		if err != nil {
			return nil, fmt.Errorf("scan def: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// DefsByUnit returns a unit's defs ordered by file and position.
func (s *Store) DefsByUnit(unitID int64) ([]*Def, error) {
	defs, err := s.queryDefs("d.unit_id = ?", unitID)
	if err != nil {
		return nil, fmt.Errorf("defs by unit: %w", err)
	}
	return defs, nil
}

// DefsByName returns every def with the given simple name across units.
func (s *Store) DefsByName(name string) ([]*Def, error) {
	defs, err := s.queryDefs("d.name = ?", name)
	if err != nil {
		return nil, fmt.Errorf("defs by name: %w", err)
	}
	return defs, nil
}

// DefsByPaths returns the defs of a unit whose path is in paths.
func (s *Store) DefsByPaths(unitID int64, paths []string) ([]*Def, error) {
	if len(paths) == 0 {
		return nil, nil
	}
	args := append([]any{unitID}, stringsToArgs(paths)...)
	defs, err := s.queryDefs("d.unit_id = ? AND d.path IN ("+placeholderList(len(paths))+")", args...)
	if err != nil {
		return nil, fmt.Errorf("defs by paths: %w", err)
	}
	return defs, nil
}

// DefByPath returns the def at path in a unit, or nil if none. When
// several defs share the path the first in file order is returned.
func (s *Store) DefByPath(unitID int64, path string) (*Def, error) {
	d, err := scanDef(s.db.QueryRow(
		"SELECT "+defColumns+" FROM defs d JOIN units du ON du.id = d.unit_id WHERE d.unit_id = ? AND d.path = ?"+
			" ORDER BY d.file, d.def_start, d.key LIMIT 1",
		unitID, path,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("def by path: %w", err)
	}
	return d, nil
}

// DefByKey returns the def with key in a unit, or nil if none.
func (s *Store) DefByKey(unitID int64, key string) (*Def, error) {
	d, err := scanDef(s.db.QueryRow(
		"SELECT "+defColumns+" FROM defs d JOIN units du ON du.id = d.unit_id WHERE d.unit_id = ? AND d.key = ?",
		unitID, key,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("def by key: %w", err)
	}
	return d, nil
}

// DefinitionAt returns the defs targeted by the innermost reference covering
// offset in file. A fanned-out reference yields several defs. Units of
// another type never match, so a C ref cannot land on a PHP def.
func (s *Store) DefinitionAt(file string, offset uint32) ([]*Def, error) {
	rows, err := s.db.Query(`SELECT `+defColumns+`, r.ref_end - r.ref_start AS width
		FROM refs r
		JOIN units ru ON ru.id = r.unit_id
		JOIN units du ON du.name = r.def_unit AND du.type = ru.type
		JOIN defs d ON d.unit_id = du.id AND d.key = r.def_key
		WHERE r.file = ? AND r.ref_start <= ? AND ? < r.ref_end
		ORDER BY width, d.path`, file, offset, offset)
	if err != nil {
		return nil, fmt.Errorf("definition at: %w", err)
	}
	defer rows.Close()

	var out []*Def
	seen := make(map[int64]bool)
	best := int64(-1)
	for rows.Next() {
		var width int64
		d, err := scanDef(rows, &width)
		if err != nil {
			return nil, fmt.Errorf("scan def: %w", err)
		}
		if best >= 0 && width > best {
			break
		}
		best = width
		if !seen[d.ID] {
			seen[d.ID] = true
			out = append(out, d)
		}
	}
	return out, rows.Err()
}

// --- Ref queries ---

func (s *Store) queryRefs(join, where string, args ...any) ([]*Ref, error) {
	rows, err := s.db.Query(
		"SELECT "+refColumns+" FROM refs r JOIN units ru ON ru.id = r.unit_id "+join+" WHERE "+where+
			" ORDER BY ru.name, r.file, r.ref_start, r.def_path", args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Ref
	for rows.Next() {
		r, err := scanRef(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ref: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// RefsToDef returns every reference, from any unit of the same type, to
// the defs at path in the given unit. The defs' own self-references are
// included.
func (s *Store) RefsToDef(unitID int64, path string) ([]*Ref, error) {
	refs, err := s.queryRefs(
		"JOIN units du ON du.name = r.def_unit AND du.type = ru.type JOIN defs d ON d.unit_id = du.id AND d.key = r.def_key",
		"du.id = ? AND d.path = ?", unitID, path)
	if err != nil {
		return nil, fmt.Errorf("refs to def: %w", err)
	}
	return refs, nil
}

// RefsToKey returns every reference, from any unit of the same type, to the
// def with key in the given unit.
func (s *Store) RefsToKey(unitID int64, key string) ([]*Ref, error) {
	refs, err := s.queryRefs(
		"JOIN units du ON du.name = r.def_unit AND du.type = ru.type",
		"du.id = ? AND r.def_key = ?", unitID, key)
	if err != nil {
		return nil, fmt.Errorf("refs to key: %w", err)
	}
	return refs, nil
}

// RefsInFile returns the references located in one file of a unit.
func (s *Store) RefsInFile(unitID int64, file string) ([]*Ref, error) {
	refs, err := s.queryRefs("", "r.unit_id = ? AND r.file = ?", unitID, file)
	if err != nil {
		return nil, fmt.Errorf("refs in file: %w", err)
	}
	return refs, nil
}

// --- Metadata ---

// GetMetadata returns the value stored under name, or "" if unset.
func (s *Store) GetMetadata(name string) (string, error) {
	var v string
	err := s.db.QueryRow("SELECT value FROM metadata WHERE name = ?", name).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get metadata %q: %w", name, err)
	}
	return v, nil
}

// SetMetadata stores value under name, replacing any previous value.
func (s *Store) SetMetadata(name, value string) error {
	if _, err := s.db.Exec(
		"INSERT INTO metadata (name, value) VALUES (?, ?) ON CONFLICT(name) DO UPDATE SET value = excluded.value",
		name, value,
	); err != nil {
		return fmt.Errorf("set metadata %q: %w", name, err)
	}
	return nil
}
