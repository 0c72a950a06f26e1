package cloudbill

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/cloudbill/analysis"
	"github.com/xraph/cloudbill/catalog"
	"github.com/xraph/cloudbill/client"
	"github.com/xraph/cloudbill/consumption"
	"github.com/xraph/cloudbill/ingest"
	"github.com/xraph/cloudbill/invoice"
	"github.com/xraph/cloudbill/lock"
	"github.com/xraph/cloudbill/plugin"
	"github.com/xraph/cloudbill/rating"
	"github.com/xraph/cloudbill/store"
	"github.com/xraph/cloudbill/types"
)

// generationLockKey is the single key every generation run competes for.
const generationLockKey = "invoice-generation"

// Engine is the main billing engine.
type Engine struct {
	store    store.Store
	plugins  *plugin.Registry
	logger   *slog.Logger
	resolver *rating.Resolver
	analyzer *analysis.Analyzer

	// Generation serialization
	locker  lock.Locker
	lockTTL time.Duration
}

// New creates a new Engine instance.
func New(s store.Store, opts ...Option) *Engine {
	e := &Engine{
		store:    s,
		plugins:  plugin.NewRegistry(),
		logger:   slog.Default(),
		resolver: rating.NewResolver(s, IsNotFound),
		analyzer: analysis.New(s, IsNotFound),
		locker:   lock.NewLocal(),
		lockTTL:  5 * time.Minute,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Option configures an Engine instance.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
		e.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Engine) {
		_ = e.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithLocker replaces the in-process generation lock, for example with a
// Redis lock shared by several processes.
func WithLocker(l lock.Locker) Option {
	return func(e *Engine) {
		if l != nil {
			e.locker = l
		}
	}
}

// WithLockTTL bounds how long a crashed generation run can hold the lock.
func WithLockTTL(ttl time.Duration) Option {
	return func(e *Engine) {
		if ttl > 0 {
			e.lockTTL = ttl
		}
	}
}

// WithPluginTimeout sets the per-call plugin hook timeout.
func WithPluginTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.plugins.WithTimeout(d)
	}
}

// Start migrates the store and initializes plugins.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.store.Migrate(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrMigrationFailed, err)
	}

	e.plugins.EmitInit(ctx, e)

	e.logger.Info("cloudbill started",
		"plugins", e.plugins.Count(),
		"lock_ttl", e.lockTTL,
	)

	return nil
}

// Stop shuts down plugins and closes the store.
func (e *Engine) Stop() error {
	ctx := context.Background()
	e.plugins.EmitShutdown(ctx)

	return e.store.Close()
}

// Store returns the underlying store.
func (e *Engine) Store() store.Store { return e.store }

// Plugins returns the plugin registry.
func (e *Engine) Plugins() *plugin.Registry { return e.plugins }

// ──────────────────────────────────────────────────
// Catalog and clients
// ──────────────────────────────────────────────────

// UpsertCatalog stores resources, then categories. Configuration ownership
// is checked before anything is written, so a conflicting batch stores
// nothing.
func (e *Engine) UpsertCatalog(ctx context.Context, resources []*catalog.Resource, categories []*catalog.Category) error {
	if len(categories) > 0 {
		existing, err := e.store.ListCategories(ctx)
		if err != nil {
			return err
		}
		owners := make(map[int64]int64)
		for _, c := range existing {
			for _, cfg := range c.Configurations {
				owners[cfg.ID] = c.ID
			}
		}
		if c := catalog.CheckOwnership(owners, categories); c != nil {
			return NewIntegrityError(ErrConfigurationConflict, c.String())
		}
	}

	now := types.NewEntity()
	for _, r := range resources {
		r.Entity = now
	}
	for _, c := range categories {
		c.Entity = now
		c.Own()
	}

	if err := e.store.UpsertResources(ctx, resources); err != nil {
		return err
	}
	if err := e.store.UpsertCategories(ctx, categories); err != nil {
		return err
	}

	e.plugins.EmitCatalogUpserted(ctx, len(resources), len(categories))
	return nil
}

// UpsertClients stores clients with their instances.
func (e *Engine) UpsertClients(ctx context.Context, clients []*client.Client) error {
	now := types.NewEntity()
	for _, c := range clients {
		if !client.ValidNIT(client.NormalizeNIT(c.NIT)) {
			return ValidationError{Field: "nit", Message: fmt.Sprintf("%q is not a valid NIT", c.NIT)}
		}
		c.NIT = client.NormalizeNIT(c.NIT)
		c.Entity = now
	}

	if err := e.store.UpsertClients(ctx, clients); err != nil {
		return err
	}

	e.plugins.EmitClientsUpserted(ctx, len(clients))
	return nil
}

// GetClient retrieves a client by NIT.
func (e *Engine) GetClient(ctx context.Context, nit string) (*client.Client, error) {
	return e.store.GetClient(ctx, client.NormalizeNIT(nit))
}

// ──────────────────────────────────────────────────
// Consumptions
// ──────────────────────────────────────────────────

// RecordConsumption appends one consumption. The NIT is validated here and
// never again at billing time.
func (e *Engine) RecordConsumption(ctx context.Context, rec consumption.Record) (*consumption.Consumption, error) {
	rec, err := ingest.NormalizeRecord(rec)
	if err != nil {
		return nil, validationError(err)
	}

	c, err := e.store.AppendConsumption(ctx, rec)
	if err != nil {
		return nil, err
	}

	e.plugins.EmitConsumptionRecorded(ctx, c)
	return c, nil
}

// RecordConsumptions appends records in order and stops at the first error.
func (e *Engine) RecordConsumptions(ctx context.Context, recs []consumption.Record) ([]*consumption.Consumption, error) {
	result := make([]*consumption.Consumption, 0, len(recs))
	for _, rec := range recs {
		c, err := e.RecordConsumption(ctx, rec)
		if err != nil {
			return result, err
		}
		result = append(result, c)
	}
	return result, nil
}

// CalculateConsumptionCost prices one consumption against the current
// catalog. It never writes.
func (e *Engine) CalculateConsumptionCost(ctx context.Context, c *consumption.Consumption) (*rating.Cost, error) {
	return e.resolver.Calculate(ctx, c)
}

// ──────────────────────────────────────────────────
// Queries and maintenance
// ──────────────────────────────────────────────────

// Snapshot returns every stored collection.
func (e *Engine) Snapshot(ctx context.Context) (*store.Snapshot, error) {
	return e.store.Snapshot(ctx)
}

// GetInvoice retrieves an invoice by number.
func (e *Engine) GetInvoice(ctx context.Context, number string) (*invoice.Invoice, error) {
	return e.store.GetInvoice(ctx, number)
}

// ListInvoices lists invoices matching opts in creation order.
func (e *Engine) ListInvoices(ctx context.Context, opts invoice.ListOpts) ([]*invoice.Invoice, error) {
	return e.store.ListInvoices(ctx, opts)
}

// Reset removes all data.
func (e *Engine) Reset(ctx context.Context) error {
	if err := e.store.Reset(ctx); err != nil {
		return err
	}

	e.plugins.EmitStoreReset(ctx)
	e.logger.Info("store reset")
	return nil
}

// parseRange parses inclusive "dd/mm/yyyy" bounds.
func parseRange(start, end string) (time.Time, time.Time, error) {
	from, err := types.ParseDay(start)
	if err != nil {
		return time.Time{}, time.Time{}, ValidationError{Field: "start_date", Message: err.Error()}
	}
	to, err := types.ParseDay(end)
	if err != nil {
		return time.Time{}, time.Time{}, ValidationError{Field: "end_date", Message: err.Error()}
	}
	return from, to, nil
}
