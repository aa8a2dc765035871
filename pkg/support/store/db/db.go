// Package db selects the concrete store driver from configuration.
package db

import (
	"fmt"

	"github.com/christried/GilgesBA/pkg/support/store"
	"github.com/christried/GilgesBA/pkg/support/store/db/postgres"
	"github.com/christried/GilgesBA/pkg/support/store/db/sqlite"
)

// Options selects and configures the backing database.
type Options struct {
	// Driver is "sqlite" (default) or "postgres".
	Driver string

	// Path is the database file path (sqlite).
	Path string

	// DSN is the connection string (postgres).
	DSN string
}

// NewDriver opens the configured database and returns its driver.
func NewDriver(opts Options) (store.Driver, error) {
	switch opts.Driver {
	case "", "sqlite":
		return sqlite.Open(opts.Path)
	case "postgres":
		if opts.DSN == "" {
			return nil, fmt.Errorf("postgres driver requires a DSN")
		}
		return postgres.Open(opts.DSN)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", opts.Driver)
	}
}
