package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	redis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/xraph/cloudbill"
	audithook "github.com/xraph/cloudbill/audit_hook"
	"github.com/xraph/cloudbill/lock"
	"github.com/xraph/cloudbill/observability"
	"github.com/xraph/cloudbill/report"
	"github.com/xraph/cloudbill/store"
	"github.com/xraph/cloudbill/store/backend"
)

var rootCmd = &cobra.Command{
	Use:   "cloudbill",
	Short: "Cloud resource billing",
	Long: `cloudbill rates hourly usage of cloud instances against a resource
catalog and issues one invoice per client for each billing period.

Examples:
  cloudbill load-config catalog.xml
  cloudbill load-consumptions usage.xml
  cloudbill generate 01/01/2024 31/01/2024
  cloudbill analyze categories 01/01/2024 31/12/2024
  cloudbill serve --addr :8080`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file (default ./cloudbill.yaml)")
	rootCmd.PersistentFlags().String("store", "", "path of the JSON data file (empty keeps data in memory)")
	rootCmd.PersistentFlags().String("store-driver", "", "storage backend (memory, file, sqlite, postgres, mongo)")
	rootCmd.PersistentFlags().String("store-dsn", "", "database file, URL or URI for the sqlite, postgres and mongo backends")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "", "log format (text, json)")
}

// Config holds the command line configuration.
type Config struct {
	Store   StoreConfig   `mapstructure:"store"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	Log     LogConfig     `mapstructure:"log"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Company CompanyConfig `mapstructure:"company"`
}

// StoreConfig selects where billing data lives. An empty Driver means the
// file store when Path is set and the memory store otherwise.
type StoreConfig struct {
	Driver string `mapstructure:"driver"`
	Path   string `mapstructure:"path"`
	DSN    string `mapstructure:"dsn"`
}

// HTTPConfig holds the API server settings.
type HTTPConfig struct {
	Addr     string `mapstructure:"addr"`
	BasePath string `mapstructure:"base_path"`
	Metrics  bool   `mapstructure:"metrics"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// RedisConfig enables the shared generation lock when Addr is set.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// CompanyConfig is the invoice issuer.
type CompanyConfig struct {
	Name    string `mapstructure:"name"`
	Address string `mapstructure:"address"`
}

// loadConfig reads configuration from the config file, CLOUDBILL_*
// environment variables and the persistent flags, in increasing priority.
func loadConfig(cmd *cobra.Command) (*Config, error) {
	v := viper.New()

	v.SetConfigName("cloudbill")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/cloudbill")

	v.SetEnvPrefix("CLOUDBILL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	flags := cmd.Flags()
	for key, flag := range map[string]string{
		"store.path":   "store",
		"store.driver": "store-driver",
		"store.dsn":    "store-dsn",
		"log.level":    "log-level",
		"log.format":   "log-format",
		"http.addr":    "addr",
	} {
		if f := flags.Lookup(flag); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("bind flag %s: %w", flag, err)
			}
		}
	}

	if path, _ := flags.GetString("config"); path != "" {
		v.SetConfigFile(path)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("store.driver", "")
	v.SetDefault("store.path", "cloudbill.json")
	v.SetDefault("store.dsn", "")

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.base_path", "/")
	v.SetDefault("http.metrics", true)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("company.name", report.DefaultCompany.Name)
	v.SetDefault("company.address", report.DefaultCompany.Address)
}

// newLogger builds the process logger from cfg. Unknown levels fall back
// to info.
func newLogger(cfg LogConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// app is a started engine and everything it was built from.
type app struct {
	cfg      *Config
	logger   *slog.Logger
	engine   *cloudbill.Engine
	reports  *report.Renderer
	registry *prometheus.Registry
	redis    *redis.Client
}

// openApp loads configuration, opens the store and starts the engine.
func openApp(cmd *cobra.Command) (*app, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	logger := newLogger(cfg.Log, os.Stderr)

	s, err := openStore(cmd.Context(), cfg.Store)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:      cfg,
		logger:   logger,
		reports:  report.New(report.Company{Name: cfg.Company.Name, Address: cfg.Company.Address}),
		registry: prometheus.NewRegistry(),
	}

	opts := []cloudbill.Option{
		cloudbill.WithLogger(logger),
		cloudbill.WithPlugin(report.NewFormatter(a.reports)),
		cloudbill.WithPlugin(observability.NewMetricsExtension(observability.NewPrometheusFactory(a.registry))),
		cloudbill.WithPlugin(audithook.New(audithook.SlogRecorder(logger), audithook.WithLogger(logger))),
	}
	if cfg.Redis.Addr != "" {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		opts = append(opts, cloudbill.WithLocker(lock.NewRedis(a.redis, "")))
	}

	a.engine = cloudbill.New(s, opts...)
	if err := a.engine.Start(cmd.Context()); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func openStore(ctx context.Context, cfg StoreConfig) (store.Store, error) {
	s, err := backend.Open(ctx, backend.Config{Driver: cfg.Driver, Path: cfg.Path, DSN: cfg.DSN})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return s, nil
}

// Close stops the engine and releases the Redis client.
func (a *app) Close() error {
	var errs []error
	if a.engine != nil {
		errs = append(errs, a.engine.Stop())
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	return errors.Join(errs...)
}

// withApp runs fn against a started app and always closes it.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(); cerr != nil {
			a.logger.Error("shutdown", "error", cerr)
		}
	}()
	return fn(cmd.Context(), a)
}
