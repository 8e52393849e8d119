package migration

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// SchemaTable keeps orderflow's migration state apart from other services
// sharing the database.
const SchemaTable = "orderflow_schema_migrations"

//go:embed sql/*.sql
var files embed.FS

// Source exposes the embedded order schema.
func Source() (fs.FS, error) {
	return fs.Sub(files, "sql")
}

// Latest is the newest embedded schema version.
func Latest() (uint, error) {
	sub, err := Source()
	if err != nil {
		return 0, err
	}
	src, err := iofs.New(sub, ".")
	if err != nil {
		return 0, err
	}
	defer src.Close()

	v, err := src.First()
	if err != nil {
		return 0, err
	}
	for {
		next, err := src.Next(v)
		if errors.Is(err, fs.ErrNotExist) {
			return v, nil
		}
		if err != nil {
			return 0, err
		}
		v = next
	}
}

// Result is the schema version before and after Apply. Zero means empty.
type Result struct {
	From uint
	To   uint
}

// Apply brings a postgres database to the latest order schema. A dirty
// version from an interrupted run is refused and must be repaired by hand.
func Apply(db *sql.DB) (Result, error) {
	if db == nil {
		return Result{}, errors.New("migration: database handle is required")
	}
	m, err := newMigrator(db)
	if err != nil {
		return Result{}, err
	}
	// m is not closed: that would close the shared *sql.DB.

	from, err := version(m)
	if err != nil {
		return Result{}, err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return Result{From: from}, fmt.Errorf("migration: apply: %w", err)
	}
	to, err := version(m)
	if err != nil {
		return Result{From: from}, err
	}
	return Result{From: from, To: to}, nil
}

func newMigrator(db *sql.DB) (*migrate.Migrate, error) {
	sub, err := Source()
	if err != nil {
		return nil, fmt.Errorf("migration: open source: %w", err)
	}
	src, err := iofs.New(sub, ".")
	if err != nil {
		return nil, fmt.Errorf("migration: open source: %w", err)
	}
	driver, err := postgres.WithInstance(db, &postgres.Config{MigrationsTable: SchemaTable})
	if err != nil {
		return nil, fmt.Errorf("migration: open driver: %w", err)
	}
	return migrate.NewWithInstance("iofs", src, "postgres", driver)
}

func version(m *migrate.Migrate) (uint, error) {
	v, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("migration: read version: %w", err)
	}
	if dirty {
		return v, fmt.Errorf("migration: schema version %d is dirty", v)
	}
	return v, nil
}
