// Package migration applies embedded goose migrations for the configured
// database dialect.
package migration

import (
	"context"
	"database/sql"
	"embed"
	"io/fs"
	"sync"

	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"
)

//go:embed postgres/*.sql
var postgresFS embed.FS

//go:embed sqlite/*.sql
var sqliteFS embed.FS

// goose keeps dialect and base FS as package state; serialize migrations so
// concurrent callers cannot interleave.
var mu sync.Mutex

// Migrate brings the schema up to date for the given driver ("postgres" or
// "sqlite"). It is idempotent: applied versions are recorded by goose.
func Migrate(ctx context.Context, db *sql.DB, driver string) error {
	mu.Lock()
	defer mu.Unlock()

	var (
		baseFS  fs.FS
		dialect string
	)
	switch driver {
	case "postgres":
		baseFS, dialect = postgresFS, "postgres"
	case "sqlite":
		baseFS, dialect = sqliteFS, "sqlite3"
	default:
		return errors.Errorf("unsupported driver %q", driver)
	}

	sub, err := fs.Sub(baseFS, driver)
	if err != nil {
		return errors.Wrap(err, "failed to open embedded migrations")
	}
	goose.SetBaseFS(sub)
	defer goose.SetBaseFS(nil)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect(dialect); err != nil {
		return errors.Wrapf(err, "failed to set goose dialect %q", dialect)
	}
	if err := goose.UpContext(ctx, db, "."); err != nil {
		return errors.Wrap(err, "failed to apply migrations")
	}
	return nil
}
