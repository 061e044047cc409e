// Package state persists the installed-package ledger in the SQLite file
// at the config's [base].db path: one row per installed package version,
// plus the per-file relocation record Unpack produced, so a later run can
// tell what is already installed without re-walking the cellar.
package state

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/pacbrew/pacbrew/internal/link"
	"github.com/pacbrew/pacbrew/internal/pacerr"
	"github.com/pacbrew/pacbrew/internal/relocate"
	"github.com/pacbrew/pacbrew/internal/unpack"
)

// Store is the ledger's handle. One Store per process; callers share it
// across concurrent pipeline stages, guarded by the database/sql pool's
// own locking.
type Store struct {
	db *sql.DB
}

// Open creates (if needed) and opens the ledger at path, applying its
// schema. WAL mode is enabled so a concurrent reader (e.g. a status
// command) never blocks on an in-progress install.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, pacerr.IoFailed("create state dir", filepath.Dir(path), err)
	}
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)")
	if err != nil {
		return nil, pacerr.IoFailed("open state db", path, err)
	}
	if err := initSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func initSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS packages (
			name TEXT NOT NULL,
			version TEXT NOT NULL,
			dest TEXT NOT NULL,
			installed_at DATETIME NOT NULL,
			PRIMARY KEY (name, version)
		);
		CREATE TABLE IF NOT EXISTS package_files (
			name TEXT NOT NULL,
			version TEXT NOT NULL,
			relative_path TEXT NOT NULL,
			relocate_kind TEXT NOT NULL,
			PRIMARY KEY (name, version, relative_path)
		);
		CREATE TABLE IF NOT EXISTS links (
			name TEXT NOT NULL PRIMARY KEY,
			version TEXT NOT NULL,
			dest TEXT NOT NULL,
			linked_at DATETIME NOT NULL
		);
	`)
	if err != nil {
		return pacerr.Wrap(pacerr.KindIOFailed, err, "failed to initialize state schema")
	}
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordInstall writes one unpacked package and its per-file relocation
// record, replacing any prior row for the same (name, version).
func (s *Store) RecordInstall(ctx context.Context, installed unpack.Installed) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return pacerr.Wrap(pacerr.KindIOFailed, err, "failed to begin transaction")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO packages (name, version, dest, installed_at) VALUES (?, ?, ?, ?)`,
		installed.Name, installed.Version, installed.Dest, time.Now().UTC()); err != nil {
		return pacerr.Wrap(pacerr.KindIOFailed, err, "failed to record package")
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM package_files WHERE name = ? AND version = ?`, installed.Name, installed.Version); err != nil {
		return pacerr.Wrap(pacerr.KindIOFailed, err, "failed to clear prior file records")
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO package_files (name, version, relative_path, relocate_kind) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return pacerr.Wrap(pacerr.KindIOFailed, err, "failed to prepare file record statement")
	}
	defer stmt.Close()

	for relPath, kind := range installed.Files {
		if _, err := stmt.ExecContext(ctx, installed.Name, installed.Version, relPath, kind.String()); err != nil {
			return pacerr.Wrap(pacerr.KindIOFailed, err, "failed to record relocated file")
		}
	}

	if err := tx.Commit(); err != nil {
		return pacerr.Wrap(pacerr.KindIOFailed, err, "failed to commit package record")
	}
	return nil
}

// RecordLink writes the `<prefix>/opt/<name>` symlink's current target.
func (s *Store) RecordLink(ctx context.Context, linked link.Linked) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO links (name, version, dest, linked_at) VALUES (?, ?, ?, ?)`,
		linked.Name, linked.Version, linked.Dest, time.Now().UTC())
	if err != nil {
		return pacerr.Wrap(pacerr.KindIOFailed, err, "failed to record link")
	}
	return nil
}

// installedPackage is one installed package row, as returned by
// listPackages. Unexported: listing/removing installed packages is out of
// scope (see spec Non-goals), so this and listPackages/packageFiles below
// exist only to give RecordInstall/RecordLink's schema round-trip test
// coverage, not as a public query surface.
type installedPackage struct {
	Name        string
	Version     string
	Dest        string
	InstalledAt time.Time
}

// listPackages returns every installed (name, version) pair, most
// recently installed first.
func (s *Store) listPackages(ctx context.Context) ([]installedPackage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, version, dest, installed_at FROM packages ORDER BY installed_at DESC`)
	if err != nil {
		return nil, pacerr.Wrap(pacerr.KindIOFailed, err, "failed to list packages")
	}
	defer rows.Close()

	var out []installedPackage
	for rows.Next() {
		var p installedPackage
		if err := rows.Scan(&p.Name, &p.Version, &p.Dest, &p.InstalledAt); err != nil {
			return nil, pacerr.Wrap(pacerr.KindIOFailed, err, "failed to scan package row")
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// packageFiles returns the relocation kind recorded for every file of one
// installed (name, version), keyed by relative path.
func (s *Store) packageFiles(ctx context.Context, name, version string) (map[string]relocate.Kind, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT relative_path, relocate_kind FROM package_files WHERE name = ? AND version = ?`, name, version)
	if err != nil {
		return nil, pacerr.Wrap(pacerr.KindIOFailed, err, "failed to list package files")
	}
	defer rows.Close()

	out := make(map[string]relocate.Kind)
	for rows.Next() {
		var relPath, kind string
		if err := rows.Scan(&relPath, &kind); err != nil {
			return nil, pacerr.Wrap(pacerr.KindIOFailed, err, "failed to scan file row")
		}
		parsed, err := relocate.ParseKind(kind)
		if err != nil {
			return nil, pacerr.New(pacerr.KindIOFailed, fmt.Sprintf("corrupt state: %v", err))
		}
		out[relPath] = parsed
	}
	return out, rows.Err()
}
