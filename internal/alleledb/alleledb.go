// Package alleledb implements the allele-hash store (design doc section
// 4.2/6.1): a persistent keyed lookup from (checksum prefix, locus index) to
// the canonical numeric allele ID it represents, backed by SQLite over the
// literal schema the spec names:
//
//	alleles(checksum TEXT, position INTEGER, code INTEGER)
//	CREATE INDEX ... ON alleles(checksum, position)
package alleledb

import (
	"database/sql"

	"github.com/grailbio/base/errors"
	_ "github.com/mattn/go-sqlite3"
)

// Store is a handle on an alleles.db file. The zero value is not usable;
// construct with Create (build phase) or Open (query phase).
type Store struct {
	db       *sql.DB
	readOnly bool

	insertStmt *sql.Stmt
	lookupStmt *sql.Stmt
}

// Create opens (creating if necessary) path for writing and lays down the
// schema. The caller must call Finalize before the store is readable.
func Create(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.E(err, "alleledb: opening", path)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS alleles (
		checksum TEXT NOT NULL,
		position INTEGER NOT NULL,
		code INTEGER NOT NULL
	)`); err != nil {
		db.Close() // nolint: errcheck
		return nil, errors.E(err, "alleledb: creating schema", path)
	}
	stmt, err := db.Prepare(`INSERT INTO alleles(checksum, position, code) VALUES (?, ?, ?)`)
	if err != nil {
		db.Close() // nolint: errcheck
		return nil, errors.E(err, "alleledb: preparing insert", path)
	}
	return &Store{db: db, insertStmt: stmt}, nil
}

// Put inserts one allele-hash entry. Callers should batch Put calls inside a
// transaction (see BulkInsert) for build-time throughput; Put itself is not
// transactional.
func (s *Store) Put(checksum string, locus, alleleID int) error {
	if _, err := s.insertStmt.Exec(checksum, locus, alleleID); err != nil {
		return errors.E(err, "alleledb: inserting", checksum)
	}
	return nil
}

// Entry is one (checksum, locus, alleleID) row, as ingested from a locus
// FASTA file.
type Entry struct {
	Checksum string
	Locus    int
	AlleleID int
}

// BulkInsert inserts entries inside a single transaction, matching the
// original implementation's `cursor.executemany` batch-insert shape
// (design doc: original_source/src/hclink/build.py: create_allele_db).
func (s *Store) BulkInsert(entries []Entry) error {
	tx, err := s.db.Begin()
	if err != nil {
		return errors.E(err, "alleledb: beginning transaction")
	}
	stmt := tx.Stmt(s.insertStmt)
	for _, e := range entries {
		if _, err := stmt.Exec(e.Checksum, e.Locus, e.AlleleID); err != nil {
			tx.Rollback() // nolint: errcheck
			return errors.E(err, "alleledb: inserting batch")
		}
	}
	return tx.Commit()
}

// Finalize builds the secondary index on (checksum, position) and switches
// the store to read-only use. It must be called exactly once, after all
// Put/BulkInsert calls.
func (s *Store) Finalize() error {
	if _, err := s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_alleles_checksum_position
		ON alleles(checksum, position)`); err != nil {
		return errors.E(err, "alleledb: building index")
	}
	s.insertStmt.Close() // nolint: errcheck
	s.insertStmt = nil
	stmt, err := s.db.Prepare(`SELECT code FROM alleles WHERE checksum = ? AND position = ? LIMIT 1`)
	if err != nil {
		return errors.E(err, "alleledb: preparing lookup")
	}
	s.lookupStmt = stmt
	s.readOnly = true
	return nil
}

// Open opens an existing alleles.db read-only (query phase). The store is
// already finalized by construction.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, errors.E(err, "alleledb: opening", path)
	}
	stmt, err := db.Prepare(`SELECT code FROM alleles WHERE checksum = ? AND position = ? LIMIT 1`)
	if err != nil {
		db.Close() // nolint: errcheck
		return nil, errors.E(err, "alleledb: preparing lookup", path)
	}
	return &Store{db: db, lookupStmt: stmt, readOnly: true}, nil
}

// Get looks up the canonical allele ID for a checksum at a locus. ok is
// false when there is no match: spec's LookupMiss, not an error.
func (s *Store) Get(checksum string, locus int) (id int, ok bool) {
	var code int
	err := s.lookupStmt.QueryRow(checksum, locus).Scan(&code)
	if err != nil {
		return 0, false
	}
	return code, true
}

// Lookup implements profile.Resolver, so a *Store can be passed directly to
// profile.Encode during query-time decoding.
func (s *Store) Lookup(checksum string, locus int) (int, bool) {
	return s.Get(checksum, locus)
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	if s.insertStmt != nil {
		s.insertStmt.Close() // nolint: errcheck
	}
	if s.lookupStmt != nil {
		s.lookupStmt.Close() // nolint: errcheck
	}
	return s.db.Close()
}
