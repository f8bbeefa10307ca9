package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Supported backends.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// ErrUnknownDriver is returned by Open for a driver other than sqlite or postgres.
var ErrUnknownDriver = errors.New("unknown database driver")

// Open returns the store for driver. source is a file path for sqlite and a
// connection string for postgres. PostgreSQL only uses opts.ClaimLease.
func Open(ctx context.Context, driver, source string, opts Options) (Store, error) {
	switch strings.ToLower(driver) {
	case "", DriverSQLite, "sqlite3":
		return OpenSQLite(source, opts)
	case DriverPostgres, "postgresql":
		return OpenPostgres(ctx, source, opts)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}
}
