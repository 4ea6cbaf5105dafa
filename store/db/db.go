// Package db provides the database driver constructor.
package db

import (
	"github.com/pkg/errors"

	"github.com/hrygo/channelwatch/internal/profile"
	"github.com/hrygo/channelwatch/store"
	"github.com/hrygo/channelwatch/store/db/postgres"
	"github.com/hrygo/channelwatch/store/db/sqlite"
)

// NewDBDriver creates a new database driver based on the profile.
func NewDBDriver(profile *profile.Profile) (store.Driver, error) {
	switch profile.Driver {
	case "postgres":
		return postgres.NewDB(profile)
	case "sqlite":
		return sqlite.NewDB(profile)
	default:
		return nil, errors.Errorf("unsupported driver %q", profile.Driver)
	}
}
