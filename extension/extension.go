// Package extension provides the Forge extension adapter for cloudbill.
//
// It implements the forge.Extension interface to integrate the billing
// engine into a Forge application with DI registration and lifecycle
// management. The HTTP API is exposed through Handler so the host decides
// where to mount it.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.cloudbill" or
// "cloudbill" keys.
package extension

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/xraph/forge"
	"github.com/xraph/grove"
	"github.com/xraph/vessel"

	"github.com/xraph/cloudbill"
	"github.com/xraph/cloudbill/api"
	"github.com/xraph/cloudbill/report"
	"github.com/xraph/cloudbill/store"
	"github.com/xraph/cloudbill/store/backend"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "cloudbill"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Cloud resource billing engine"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts cloudbill as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config     Config
	engine     *cloudbill.Engine
	store      store.Store
	groveDB    *grove.DB
	engineOpts []cloudbill.Option
	handler    http.Handler
}

// New creates a new cloudbill Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Engine returns the underlying billing engine.
// This is nil until Register is called.
func (e *Extension) Engine() *cloudbill.Engine { return e.engine }

// Handler returns the HTTP API, or nil when routes are disabled.
// This is nil until Register is called.
func (e *Extension) Handler() http.Handler { return e.handler }

// Register implements [forge.Extension]. It loads configuration,
// initializes the billing engine, and registers it in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	if e.store == nil {
		s, err := e.openStore()
		if err != nil {
			return err
		}
		e.store = s
	}

	renderer := report.New(report.Company{
		Name:    e.config.CompanyName,
		Address: e.config.CompanyAddress,
	})

	e.engine = cloudbill.New(e.store, e.buildEngineOpts(renderer)...)

	if !e.config.DisableRoutes {
		srv := api.NewServer(e.engine, api.WithReports(renderer))
		e.handler = srv.Router(e.config.BasePath)
	}

	return vessel.Provide(fapp.Container(), func() (*cloudbill.Engine, error) {
		return e.engine, nil
	})
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.engine == nil {
		return errors.New("cloudbill: extension not initialized")
	}

	if !e.config.DisableMigrate {
		if err := e.engine.Start(ctx); err != nil {
			return err
		}
	}

	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(_ context.Context) error {
	if e.engine != nil {
		if err := e.engine.Stop(); err != nil {
			e.MarkStopped()
			return err
		}
	}
	e.MarkStopped()
	return nil
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.store == nil {
		return errors.New("cloudbill: store not initialized")
	}
	return e.store.Ping(ctx)
}

// openStore prefers a grove database handed over with WithGroveDB, then
// the configured driver.
func (e *Extension) openStore() (store.Store, error) {
	if e.groveDB != nil {
		return backend.FromGrove(e.groveDB)
	}
	s, err := backend.Open(context.Background(), backend.Config{
		Driver: e.config.StoreDriver,
		Path:   e.config.StorePath,
		DSN:    e.config.StoreDSN,
	})
	if err != nil {
		return nil, fmt.Errorf("cloudbill: open store: %w", err)
	}
	return s, nil
}

// buildEngineOpts constructs cloudbill.Option values from the resolved config.
func (e *Extension) buildEngineOpts(renderer *report.Renderer) []cloudbill.Option {
	opts := make([]cloudbill.Option, 0, len(e.engineOpts)+3)

	opts = append(opts,
		cloudbill.WithLockTTL(e.config.LockTTL),
		cloudbill.WithPluginTimeout(e.config.PluginTimeout),
		cloudbill.WithPlugin(report.NewFormatter(renderer)),
	)

	// Pass-through options come last so they win.
	opts = append(opts, e.engineOpts...)

	return opts
}

// --- Config Loading ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("cloudbill: configuration is required but not found in config files; " +
				"ensure 'extensions.cloudbill' or 'cloudbill' key exists in your config")
		}
		e.config = mergeWithDefaults(programmaticConfig)
	} else {
		e.config = mergeConfigurations(fileConfig, programmaticConfig)
	}

	e.Logger().Debug("cloudbill: configuration loaded",
		forge.F("disable_routes", e.config.DisableRoutes),
		forge.F("disable_migrate", e.config.DisableMigrate),
		forge.F("base_path", e.config.BasePath),
		forge.F("lock_ttl", e.config.LockTTL),
		forge.F("plugin_timeout", e.config.PluginTimeout),
		forge.F("store_driver", e.config.StoreDriver),
		forge.F("store_path", e.config.StorePath),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()
	var cfg Config

	for _, key := range []string{"extensions.cloudbill", "cloudbill"} {
		if !cm.IsSet(key) {
			continue
		}
		if err := cm.Bind(key, &cfg); err == nil {
			e.Logger().Debug("cloudbill: loaded config from file",
				forge.F("key", key),
			)
			return cfg, true
		}
		e.Logger().Warn("cloudbill: failed to bind config",
			forge.F("key", key),
			forge.F("error", "bind failed"),
		)
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.BasePath == "" {
		cfg.BasePath = defaults.BasePath
	}
	if cfg.LockTTL == 0 {
		cfg.LockTTL = defaults.LockTTL
	}
	if cfg.PluginTimeout == 0 {
		cfg.PluginTimeout = defaults.PluginTimeout
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence for most fields; programmatic bool flags fill gaps.
func mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	if programmaticConfig.DisableRoutes {
		yamlConfig.DisableRoutes = true
	}
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}

	if yamlConfig.BasePath == "" {
		yamlConfig.BasePath = programmaticConfig.BasePath
	}
	if yamlConfig.StoreDriver == "" {
		yamlConfig.StoreDriver = programmaticConfig.StoreDriver
	}
	if yamlConfig.StorePath == "" {
		yamlConfig.StorePath = programmaticConfig.StorePath
	}
	if yamlConfig.StoreDSN == "" {
		yamlConfig.StoreDSN = programmaticConfig.StoreDSN
	}
	if yamlConfig.CompanyName == "" {
		yamlConfig.CompanyName = programmaticConfig.CompanyName
	}
	if yamlConfig.CompanyAddress == "" {
		yamlConfig.CompanyAddress = programmaticConfig.CompanyAddress
	}

	if yamlConfig.LockTTL == 0 {
		yamlConfig.LockTTL = programmaticConfig.LockTTL
	}
	if yamlConfig.PluginTimeout == 0 {
		yamlConfig.PluginTimeout = programmaticConfig.PluginTimeout
	}

	return mergeWithDefaults(yamlConfig)
}
