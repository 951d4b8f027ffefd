package connections

import (
	"database/sql"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Migrate brings the connections schema up to date.
func (m *Metastore) Migrate() error {
	if m.db == nil {
		return fmt.Errorf("metastore not opened")
	}
	return migrateWithDB(m.db, m.driver)
}

func migrateWithDB(db *sql.DB, driver string) error {
	goose.SetBaseFS(migrations)
	goose.SetLogger(goose.NopLogger())

	dialect := "sqlite"
	if driver == "pgx" {
		dialect = "postgres"
	}
	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("failed to set migration dialect: %w", err)
	}

	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// MigrationVersion reports the current schema version.
func (m *Metastore) MigrationVersion() (int64, error) {
	if m.db == nil {
		return 0, fmt.Errorf("metastore not opened")
	}
	version, err := goose.GetDBVersion(m.db)
	if err != nil {
		return 0, fmt.Errorf("failed to get migration version: %w", err)
	}
	return version, nil
}
