package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// Store is the SQLite data access layer for produced unit graphs.
type Store struct {
	db *sql.DB
}

// NewStore opens a SQLite database at dbPath with WAL mode enabled.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for use in transactions.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Migrate creates all tables and indexes. Idempotent. A database written
// by an older schema version loses its graphs and is rebuilt on the next
// index.
func (s *Store) Migrate() error {
	var v string
	if err := s.db.QueryRow("SELECT value FROM metadata WHERE name = ?", MetaSchemaVersion).Scan(&v); err == nil && v != SchemaVersion {
		if _, err := s.db.Exec(dropDDL); err != nil {
			return fmt.Errorf("migrate: drop schema %s: %w", v, err)
		}
	}
	if _, err := s.db.Exec(schemaDDL); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return s.SetMetadata(MetaSchemaVersion, SchemaVersion)
}

// SchemaVersion is bumped whenever schemaDDL changes shape.
const SchemaVersion = "2"

const dropDDL = `
DROP TABLE IF EXISTS refs;
DROP TABLE IF EXISTS defs;
DROP TABLE IF EXISTS units;
`

const schemaDDL = `
CREATE TABLE IF NOT EXISTS units (
  id            INTEGER PRIMARY KEY,
  name          TEXT NOT NULL,
  type          TEXT NOT NULL,
  dir           TEXT NOT NULL DEFAULT '',
  files         TEXT NOT NULL DEFAULT '[]',
  dependencies  TEXT NOT NULL DEFAULT '[]',
  hash          TEXT NOT NULL DEFAULT '',
  indexed_at    DATETIME,
  UNIQUE(name, type)
);

CREATE TABLE IF NOT EXISTS defs (
  id         INTEGER PRIMARY KEY,
  unit_id    INTEGER NOT NULL REFERENCES units(id) ON DELETE CASCADE,
  key        TEXT NOT NULL,
  path       TEXT NOT NULL,
  tree_path  TEXT NOT NULL,
  name       TEXT NOT NULL,
  kind       TEXT NOT NULL,
  file       TEXT NOT NULL,
  def_start  INTEGER NOT NULL,
  def_end    INTEGER NOT NULL,
  exported   BOOLEAN NOT NULL DEFAULT FALSE,
  local      BOOLEAN NOT NULL DEFAULT FALSE,
  test       BOOLEAN NOT NULL DEFAULT FALSE,
  UNIQUE(unit_id, key)
);

CREATE TABLE IF NOT EXISTS refs (
  id        INTEGER PRIMARY KEY,
  unit_id   INTEGER NOT NULL REFERENCES units(id) ON DELETE CASCADE,
  def_unit  TEXT NOT NULL,
  def_key   TEXT NOT NULL,
  def_path  TEXT NOT NULL,
  is_def    BOOLEAN NOT NULL DEFAULT FALSE,
  file      TEXT NOT NULL,
  ref_start INTEGER NOT NULL,
  ref_end   INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS metadata (
  name  TEXT PRIMARY KEY,
  value TEXT NOT NULL
);

-- Indexes

CREATE INDEX IF NOT EXISTS idx_defs_unit ON defs(unit_id);
CREATE INDEX IF NOT EXISTS idx_defs_name ON defs(name);
CREATE INDEX IF NOT EXISTS idx_defs_file ON defs(file);
CREATE INDEX IF NOT EXISTS idx_defs_path ON defs(unit_id, path);
CREATE INDEX IF NOT EXISTS idx_refs_unit ON refs(unit_id);
CREATE INDEX IF NOT EXISTS idx_refs_target ON refs(def_unit, def_key);
CREATE INDEX IF NOT EXISTS idx_refs_file ON refs(file, ref_start);
`
