package migration

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// MigrationsTable keeps the ledger's schema version apart from any other
// migrate-managed schema sharing the database.
const MigrationsTable = "bursar_schema_migrations"

// Status is the ledger schema state after a run.
type Status struct {
	Version uint
	Applied bool
}

func embeddedSource() (source.Driver, error) {
	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return nil, fmt.Errorf("open embedded ledger schema: %w", err)
	}
	return iofs.New(sub, ".")
}

// RunMigrations brings the postgres ledger schema up to the newest embedded
// version. Applied is false when the schema was already current.
func RunMigrations(db *sql.DB) (Status, error) {
	if db == nil {
		return Status{}, errors.New("ledger schema: nil database handle")
	}

	src, err := embeddedSource()
	if err != nil {
		return Status{}, err
	}
	driver, err := postgres.WithInstance(db, &postgres.Config{MigrationsTable: MigrationsTable})
	if err != nil {
		return Status{}, fmt.Errorf("ledger schema driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return Status{}, fmt.Errorf("ledger schema migrator: %w", err)
	}

	var status Status
	switch err := m.Up(); {
	case err == nil:
		status.Applied = true
	case errors.Is(err, migrate.ErrNoChange):
	default:
		return Status{}, fmt.Errorf("apply ledger schema: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return Status{}, fmt.Errorf("read ledger schema version: %w", err)
	}
	if dirty {
		return Status{}, fmt.Errorf("ledger schema version %d is dirty", version)
	}
	status.Version = version
	// m.Close would also close db, which gorm still owns.
	return status, nil
}
