package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/alexsaveliev/srclib-basic-sub000/internal/graph"
)

// WriteGraph replaces everything stored for unit with out, within a single
// transaction. Refs with an empty DefUnit are stored against unit itself.
// A key seen twice in out keeps its first def. Defs and refs built without
// a key are keyed by their path.
func (s *Store) WriteGraph(unit *graph.SourceUnit, hash string, out *graph.Output) (*Unit, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("write graph: begin: %w", err)
	}
	defer tx.Rollback()

	u := &Unit{
		Name:         unit.Name,
		Type:         unit.Type,
		Dir:          unit.Dir,
		Files:        unit.Files,
		Dependencies: unit.Dependencies,
		Hash:         hash,
		IndexedAt:    time.Now().UTC().Truncate(time.Second),
	}
	if u.ID, err = upsertUnitTx(tx, u); err != nil {
		return nil, fmt.Errorf("write graph: unit %q: %w", unit.Name, err)
	}

	for _, q := range []string{
		"DELETE FROM refs WHERE unit_id = ?",
		"DELETE FROM defs WHERE unit_id = ?",
	} {
		if _, err := tx.Exec(q, u.ID); err != nil {
			return nil, fmt.Errorf("write graph: clear unit %q: %w", unit.Name, err)
		}
	}

	if out != nil {
		if err := insertDefsTx(tx, u.ID, out.Defs); err != nil {
			return nil, fmt.Errorf("write graph: %w", err)
		}
		if err := insertRefsTx(tx, u.ID, unit.Name, out.Refs); err != nil {
			return nil, fmt.Errorf("write graph: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("write graph: commit: %w", err)
	}
	return u, nil
}

// DeleteUnit removes a unit and, through the cascade, its defs and refs.
func (s *Store) DeleteUnit(name, typ string) error {
	if _, err := s.db.Exec("DELETE FROM units WHERE name = ? AND type = ?", name, typ); err != nil {
		return fmt.Errorf("delete unit %q: %w", name, err)
	}
	return nil
}

func upsertUnitTx(tx *sql.Tx, u *Unit) (int64, error) {
	_, err := tx.Exec(`INSERT INTO units (name, type, dir, files, dependencies, hash, indexed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name, type) DO UPDATE SET
		  dir = excluded.dir,
		  files = excluded.files,
		  dependencies = excluded.dependencies,
		  hash = excluded.hash,
		  indexed_at = excluded.indexed_at`,
		u.Name, u.Type, u.Dir, marshalStrings(u.Files), marshalStrings(u.Dependencies), u.Hash, u.IndexedAt,
	)
	if err != nil {
		return 0, err
	}
	var id int64
	if err := tx.QueryRow("SELECT id FROM units WHERE name = ? AND type = ?", u.Name, u.Type).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func insertDefsTx(tx *sql.Tx, unitID int64, defs []graph.DefOut) error {
	stmt, err := tx.Prepare(`INSERT INTO defs
		(unit_id, key, path, tree_path, name, kind, file, def_start, def_end, exported, local, test)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(unit_id, key) DO NOTHING`)
	if err != nil {
		return fmt.Errorf("prepare defs: %w", err)
	}
	defer stmt.Close()
	for _, d := range defs {
		if _, err := stmt.Exec(unitID, keyOr(d.Key, d.Path), d.Path, d.TreePath, d.Name, d.Kind, d.File,
			d.DefStart, d.DefEnd, d.Exported, d.Local, d.Test); err != nil {
			return fmt.Errorf("def %q: %w", d.Path, err)
		}
	}
	return nil
}

func insertRefsTx(tx *sql.Tx, unitID int64, unitName string, refs []graph.RefOut) error {
	stmt, err := tx.Prepare(`INSERT INTO refs
		(unit_id, def_unit, def_key, def_path, is_def, file, ref_start, ref_end)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare refs: %w", err)
	}
	defer stmt.Close()
	for _, r := range refs {
		defUnit := r.DefUnit
		if defUnit == "" {
			defUnit = unitName
		}
		if _, err := stmt.Exec(unitID, defUnit, keyOr(r.DefKey, r.DefPath), r.DefPath, r.Def, r.File, r.Start, r.End); err != nil {
			return fmt.Errorf("ref %s@%d: %w", r.File, r.Start, err)
		}
	}
	return nil
}

func keyOr(key, path string) string {
	if key == "" {
		return path
	}
	return key
}
