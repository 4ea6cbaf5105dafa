package sqlite

import (
	"database/sql"

	"github.com/pkg/errors"

	// Import the SQLite driver.
	_ "modernc.org/sqlite"

	"github.com/hrygo/channelwatch/internal/profile"
	"github.com/hrygo/channelwatch/store"
)

// SQLite is the development and demo profile. It supports the full store
// contract behind a single connection; concurrent write throughput is not a
// goal here.
type DB struct {
	db      *sql.DB
	profile *profile.Profile
}

// NewDB opens the database file from the profile DSN with WAL journaling.
func NewDB(profile *profile.Profile) (store.Driver, error) {
	if profile.DSN == "" {
		return nil, errors.New("dsn required")
	}

	// Each pragma must be prefixed with `_pragma=` for the modernc driver.
	sqliteDB, err := sql.Open("sqlite", profile.DSN+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open db with dsn: %s", profile.DSN)
	}

	// A single connection is optimal with WAL for this workload.
	sqliteDB.SetMaxOpenConns(1)
	sqliteDB.SetMaxIdleConns(1)
	sqliteDB.SetConnMaxLifetime(0)
	sqliteDB.SetConnMaxIdleTime(0)

	if err := sqliteDB.Ping(); err != nil {
		_ = sqliteDB.Close()
		return nil, errors.Wrap(err, "failed to ping database")
	}

	return &DB{db: sqliteDB, profile: profile}, nil
}

func (d *DB) GetDB() *sql.DB {
	return d.db
}

func (d *DB) Close() error {
	return d.db.Close()
}
