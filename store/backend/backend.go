// Package backend opens a store.Store by driver name so that binaries and
// the Forge extension share one way of selecting storage.
package backend

import (
	"context"
	"fmt"
	"strings"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"
	"github.com/xraph/grove/drivers/pgdriver"
	"github.com/xraph/grove/drivers/sqlitedriver"

	"github.com/xraph/cloudbill/store"
	"github.com/xraph/cloudbill/store/file"
	"github.com/xraph/cloudbill/store/memory"
	"github.com/xraph/cloudbill/store/mongo"
	"github.com/xraph/cloudbill/store/postgres"
	"github.com/xraph/cloudbill/store/sqlite"
)

// Driver names accepted by Open.
const (
	DriverMemory   = "memory"
	DriverFile     = "file"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
)

// Config selects a backend.
type Config struct {
	// Driver is one of the Driver constants. When empty, the file store is
	// used if Path is set and the memory store otherwise.
	Driver string

	// Path is the JSON document of the file store.
	Path string

	// DSN is the database file for sqlite, the connection URL for
	// postgres, or the URI (including the database name) for mongo.
	DSN string
}

// Resolve returns the effective driver name.
func (c Config) Resolve() string {
	d := strings.ToLower(strings.TrimSpace(c.Driver))
	switch d {
	case "":
		if c.Path != "" {
			return DriverFile
		}
		return DriverMemory
	case "pg", "postgresql":
		return DriverPostgres
	case "mongodb":
		return DriverMongo
	case "sqlite3":
		return DriverSQLite
	}
	return d
}

// Open connects the configured backend. Schema migration is left to the
// engine's Start.
func Open(ctx context.Context, cfg Config) (store.Store, error) {
	switch driver := cfg.Resolve(); driver {
	case DriverMemory:
		return memory.New(), nil

	case DriverFile:
		if cfg.Path == "" {
			return nil, fmt.Errorf("cloudbill/backend: file driver needs a path")
		}
		s, err := file.New(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("cloudbill/backend: open %s: %w", cfg.Path, err)
		}
		return s, nil

	case DriverSQLite:
		if cfg.DSN == "" {
			return nil, fmt.Errorf("cloudbill/backend: sqlite driver needs a dsn")
		}
		sdb := sqlitedriver.New()
		if err := sdb.Open(ctx, cfg.DSN); err != nil {
			return nil, fmt.Errorf("cloudbill/backend: %w", err)
		}
		return fromDriver(sdb)

	case DriverPostgres:
		if cfg.DSN == "" {
			return nil, fmt.Errorf("cloudbill/backend: postgres driver needs a dsn")
		}
		pdb := pgdriver.New()
		if err := pdb.Open(ctx, cfg.DSN); err != nil {
			return nil, fmt.Errorf("cloudbill/backend: %w", err)
		}
		return fromDriver(pdb)

	case DriverMongo:
		if cfg.DSN == "" {
			return nil, fmt.Errorf("cloudbill/backend: mongo driver needs a uri")
		}
		mdb := mongodriver.New()
		if err := mdb.Open(ctx, cfg.DSN); err != nil {
			return nil, fmt.Errorf("cloudbill/backend: %w", err)
		}
		return fromDriver(mdb)

	default:
		return nil, fmt.Errorf("cloudbill/backend: unsupported driver %q", driver)
	}
}

func fromDriver(drv grove.GroveDriver) (store.Store, error) {
	db, err := grove.Open(drv)
	if err != nil {
		_ = drv.Close()
		return nil, fmt.Errorf("cloudbill/backend: %w", err)
	}
	s, err := FromGrove(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// FromGrove builds the store matching db's driver.
func FromGrove(db *grove.DB) (store.Store, error) {
	switch name := db.Driver().Name(); name {
	case "pg":
		return postgres.New(db), nil
	case "sqlite":
		return sqlite.New(db), nil
	case "mongo":
		return mongo.New(db), nil
	default:
		return nil, fmt.Errorf("cloudbill/backend: no store for grove driver %q", name)
	}
}
