package postgres

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	// Import the PostgreSQL driver.
	_ "github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/hrygo/channelwatch/internal/profile"
	"github.com/hrygo/channelwatch/store"
)

type DB struct {
	db      *sql.DB
	profile *profile.Profile
}

// NewDB opens a pooled PostgreSQL connection from the profile DSN.
func NewDB(profile *profile.Profile) (store.Driver, error) {
	if profile.DSN == "" {
		return nil, errors.New("dsn required")
	}

	postgresDB, err := sql.Open("postgres", profile.DSN)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open database")
	}
	postgresDB.SetMaxOpenConns(10)
	postgresDB.SetMaxIdleConns(5)
	postgresDB.SetConnMaxLifetime(30 * time.Minute)

	if err := postgresDB.Ping(); err != nil {
		_ = postgresDB.Close()
		return nil, errors.Wrap(err, "failed to ping database")
	}

	return &DB{db: postgresDB, profile: profile}, nil
}

func (d *DB) GetDB() *sql.DB {
	return d.db
}

func (d *DB) Close() error {
	return d.db.Close()
}

// placeholder returns the placeholder for the i-th (1-based) argument.
func placeholder(i int) string {
	return fmt.Sprintf("$%d", i)
}

// placeholders returns "$1, $2, ..., $n".
func placeholders(n int) string {
	list := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		list = append(list, placeholder(i))
	}
	return strings.Join(list, ", ")
}
