package storage

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrDirtySchema is returned when a previous migration failed halfway and
// the schema needs manual repair before the service can use it.
var ErrDirtySchema = errors.New("database schema is dirty")

// SchemaStatus describes the migration state of the contributions database.
type SchemaStatus struct {
	Version uint `json:"version"`
	Latest  uint `json:"latest"`
}

// Current reports whether every embedded migration has been applied.
func (s SchemaStatus) Current() bool {
	return s.Version == s.Latest
}

// schemaMigrator applies the embedded periods, contributions and drafts
// migrations through its own connection, so closing it leaves the
// repository's pool open.
type schemaMigrator struct {
	db  *sql.DB
	src source.Driver
	m   *migrate.Migrate
}

func newSchemaMigrator(dbPath string) (*schemaMigrator, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open migration database: %w", err)
	}

	driver, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create sqlite driver: %w", err)
	}

	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create iofs source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create migrate instance: %w", err)
	}
	return &schemaMigrator{db: db, src: src, m: m}, nil
}

func (s *schemaMigrator) Close() {
	s.m.Close()
	s.db.Close()
}

// latest walks the embedded migrations to find the newest version.
func (s *schemaMigrator) latest() (uint, error) {
	v, err := s.src.First()
	if err != nil {
		return 0, fmt.Errorf("read first migration: %w", err)
	}
	for {
		next, err := s.src.Next(v)
		if errors.Is(err, fs.ErrNotExist) {
			return v, nil
		}
		if err != nil {
			return 0, fmt.Errorf("read migration after %d: %w", v, err)
		}
		v = next
	}
}

// version returns the applied version, zero for a fresh database.
func (s *schemaMigrator) version() (uint, error) {
	v, dirty, err := s.m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	if dirty {
		return v, fmt.Errorf("%w at version %d", ErrDirtySchema, v)
	}
	return v, nil
}

func (s *schemaMigrator) up() (SchemaStatus, error) {
	if _, err := s.version(); err != nil {
		return SchemaStatus{}, err
	}
	if err := s.m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return SchemaStatus{}, fmt.Errorf("apply migrations: %w", err)
	}
	return s.status()
}

func (s *schemaMigrator) status() (SchemaStatus, error) {
	latest, err := s.latest()
	if err != nil {
		return SchemaStatus{}, err
	}
	v, err := s.version()
	if err != nil {
		return SchemaStatus{}, err
	}
	return SchemaStatus{Version: v, Latest: latest}, nil
}

// RunMigrations brings the schema at dbPath up to date and reports the
// resulting version. A dirty schema is refused rather than migrated.
func RunMigrations(dbPath string) (SchemaStatus, error) {
	sm, err := newSchemaMigrator(dbPath)
	if err != nil {
		return SchemaStatus{}, err
	}
	defer sm.Close()
	return sm.up()
}

// ReadSchemaStatus reports the schema version at dbPath without migrating.
func ReadSchemaStatus(dbPath string) (SchemaStatus, error) {
	sm, err := newSchemaMigrator(dbPath)
	if err != nil {
		return SchemaStatus{}, err
	}
	defer sm.Close()
	return sm.status()
}
