package extension

import "time"

// Config holds the cloudbill extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.cloudbill" or "cloudbill" keys).
type Config struct {
	// DisableRoutes prevents HTTP route registration.
	DisableRoutes bool `json:"disable_routes" mapstructure:"disable_routes" yaml:"disable_routes"`

	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// BasePath is the URL prefix for billing routes (default: "/cloudbill").
	BasePath string `json:"base_path" mapstructure:"base_path" yaml:"base_path"`

	// LockTTL bounds how long one invoice generation run may hold the
	// generation lock (default: 5m).
	LockTTL time.Duration `json:"lock_ttl" mapstructure:"lock_ttl" yaml:"lock_ttl"`

	// PluginTimeout bounds each plugin hook call (default: 5s).
	PluginTimeout time.Duration `json:"plugin_timeout" mapstructure:"plugin_timeout" yaml:"plugin_timeout"`

	// StoreDriver selects the backend: memory, file, sqlite, postgres or
	// mongo. When empty, the file store is used if StorePath is set and the
	// in-memory store otherwise.
	StoreDriver string `json:"store_driver" mapstructure:"store_driver" yaml:"store_driver"`

	// StorePath is the file used by the JSON file store.
	StorePath string `json:"store_path" mapstructure:"store_path" yaml:"store_path"`

	// StoreDSN is the database file, URL or URI of the sqlite, postgres and
	// mongo backends.
	StoreDSN string `json:"store_dsn" mapstructure:"store_dsn" yaml:"store_dsn"`

	// CompanyName and CompanyAddress are printed on PDF reports.
	CompanyName    string `json:"company_name" mapstructure:"company_name" yaml:"company_name"`
	CompanyAddress string `json:"company_address" mapstructure:"company_address" yaml:"company_address"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		BasePath:      "/cloudbill",
		LockTTL:       5 * time.Minute,
		PluginTimeout: 5 * time.Second,
	}
}
