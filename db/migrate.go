package db

import (
	"database/sql"
	"embed"
	"path"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/teranos/pagesync/errors"
	"github.com/teranos/pagesync/logger"
	"github.com/teranos/pagesync/sym"
)

//go:embed sqlite/migrations/*.sql
var migrationFS embed.FS

const migrationDir = "sqlite/migrations"

// migration is one embedded schema file. Version is the numeric file prefix.
type migration struct {
	Version string
	File    string
}

func loadMigrations() ([]migration, error) {
	entries, err := migrationFS.ReadDir(migrationDir)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list migrations")
	}
	var out []migration
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}
		version, _, ok := strings.Cut(name, "_")
		if !ok {
			return nil, errors.Newf("migration %s has no version prefix", name)
		}
		out = append(out, migration{Version: version, File: name})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// appliedVersions reads schema_migrations. A database without the table
// has nothing applied.
func appliedVersions(conn *sql.DB) (map[string]bool, error) {
	var n int
	err := conn.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'schema_migrations'`).Scan(&n)
	if err != nil {
		return nil, errors.Wrap(err, "failed to inspect schema")
	}
	applied := map[string]bool{}
	if n == 0 {
		return applied, nil
	}
	rows, err := conn.Query(`SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read applied migrations")
	}
	defer rows.Close()
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, errors.Wrap(err, "failed to read applied migrations")
		}
		applied[v] = true
	}
	return applied, rows.Err()
}

// Migrate brings the schema up to date. Each pending migration runs in its
// own transaction together with its schema_migrations row.
func Migrate(conn *sql.DB, log *zap.SugaredLogger) error {
	all, err := loadMigrations()
	if err != nil {
		return err
	}
	applied, err := appliedVersions(conn)
	if err != nil {
		return err
	}

	var ran int
	for _, m := range all {
		if applied[m.Version] {
			continue
		}
		if err := apply(conn, m); err != nil {
			return err
		}
		if log != nil {
			logger.DBDebugw(log, "Applied migration", logger.FieldFile, m.File)
		}
		ran++
	}

	if log != nil && ran > 0 {
		log.Infow("Schema migrated", logger.FieldSymbol, sym.DB, "applied", ran, "total", len(all))
	}
	return nil
}

func apply(conn *sql.DB, m migration) error {
	stmt, err := migrationFS.ReadFile(path.Join(migrationDir, m.File))
	if err != nil {
		return errors.Wrapf(err, "failed to read %s", m.File)
	}
	tx, err := conn.Begin()
	if err != nil {
		return errors.Wrapf(err, "failed to begin %s", m.File)
	}
	if _, err := tx.Exec(string(stmt)); err != nil {
		return errors.CombineErrors(errors.Wrapf(err, "failed to execute %s", m.File), tx.Rollback())
	}
	if _, err := tx.Exec(`INSERT INTO schema_migrations (version) VALUES (?)`, m.Version); err != nil {
		return errors.CombineErrors(errors.Wrapf(err, "failed to record %s", m.File), tx.Rollback())
	}
	return errors.Wrapf(tx.Commit(), "failed to commit %s", m.File)
}
