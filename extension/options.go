package extension

import (
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/cloudbill"
	"github.com/xraph/cloudbill/plugin"
	"github.com/xraph/cloudbill/store"
)

// Option configures the cloudbill Forge extension.
type Option func(*Extension)

// WithStore sets the store for the billing engine.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithGroveDB builds the store from an open grove database, picking the
// postgres, sqlite or mongo backend from its driver.
func WithGroveDB(db *grove.DB) Option {
	return func(e *Extension) {
		e.groveDB = db
	}
}

// WithEngineOption passes a cloudbill.Option through to the underlying engine.
func WithEngineOption(opt cloudbill.Option) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, opt)
	}
}

// WithPlugin registers a cloudbill plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, cloudbill.WithPlugin(p))
	}
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithDisableRoutes prevents HTTP route registration.
func WithDisableRoutes() Option {
	return func(e *Extension) { e.config.DisableRoutes = true }
}

// WithDisableMigrate prevents auto-migration on start.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithBasePath sets the URL prefix for billing routes.
func WithBasePath(path string) Option {
	return func(e *Extension) { e.config.BasePath = path }
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}

// WithLockTTL sets how long a generation run may hold the lock.
func WithLockTTL(d time.Duration) Option {
	return func(e *Extension) { e.config.LockTTL = d }
}

// WithPluginTimeout sets the per-call plugin hook timeout.
func WithPluginTimeout(d time.Duration) Option {
	return func(e *Extension) { e.config.PluginTimeout = d }
}

// WithStorePath selects the JSON file store at path.
func WithStorePath(path string) Option {
	return func(e *Extension) { e.config.StorePath = path }
}

// WithStoreDriver selects a database backend and its connection string.
func WithStoreDriver(driver, dsn string) Option {
	return func(e *Extension) {
		e.config.StoreDriver = driver
		e.config.StoreDSN = dsn
	}
}

// WithCompany sets the issuer printed on PDF reports.
func WithCompany(name, address string) Option {
	return func(e *Extension) {
		e.config.CompanyName = name
		e.config.CompanyAddress = address
	}
}
