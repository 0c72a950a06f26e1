package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/xraph/cloudbill/consumption"
	"github.com/xraph/cloudbill/invoice"
)

// defaultHookTimeout bounds a single plugin call.
const defaultHookTimeout = 5 * time.Second

// Registry manages all registered plugins and provides efficient dispatch.
// It uses type-cached discovery for O(1) dispatch performance.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger
	timeout time.Duration

	// Type-cached plugin lists for efficient dispatch
	onInit                []OnInit
	onShutdown            []OnShutdown
	onCatalogUpserted     []OnCatalogUpserted
	onClientsUpserted     []OnClientsUpserted
	onConsumptionRecorded []OnConsumptionRecorded
	onInvoiceGenerated    []OnInvoiceGenerated
	onGenerationCompleted []OnGenerationCompleted
	onDanglingReference   []OnDanglingReference
	onStoreReset          []OnStoreReset
	invoiceFormatters     map[string]InvoiceFormatter
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger:            slog.Default(),
		timeout:           defaultHookTimeout,
		invoiceFormatters: make(map[string]InvoiceFormatter),
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// WithTimeout sets the per-call hook timeout.
func (r *Registry) WithTimeout(d time.Duration) *Registry {
	if d > 0 {
		r.timeout = d
	}
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Check for duplicate
	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	// Type-switch to cache interfaces
	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
	}
	if v, ok := p.(OnCatalogUpserted); ok {
		r.onCatalogUpserted = append(r.onCatalogUpserted, v)
	}
	if v, ok := p.(OnClientsUpserted); ok {
		r.onClientsUpserted = append(r.onClientsUpserted, v)
	}
	if v, ok := p.(OnConsumptionRecorded); ok {
		r.onConsumptionRecorded = append(r.onConsumptionRecorded, v)
	}
	if v, ok := p.(OnInvoiceGenerated); ok {
		r.onInvoiceGenerated = append(r.onInvoiceGenerated, v)
	}
	if v, ok := p.(OnGenerationCompleted); ok {
		r.onGenerationCompleted = append(r.onGenerationCompleted, v)
	}
	if v, ok := p.(OnDanglingReference); ok {
		r.onDanglingReference = append(r.onDanglingReference, v)
	}
	if v, ok := p.(OnStoreReset); ok {
		r.onStoreReset = append(r.onStoreReset, v)
	}
	if v, ok := p.(InvoiceFormatter); ok {
		r.invoiceFormatters[v.Format()] = v
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"interfaces", r.getImplementedInterfaces(p),
	)

	return nil
}

// getImplementedInterfaces returns a list of interfaces implemented by the plugin.
func (r *Registry) getImplementedInterfaces(p Plugin) []string {
	var interfaces []string
	v := reflect.TypeOf(p)

	// Check each interface
	checkInterface := func(iface reflect.Type, name string) {
		if v.Implements(iface) {
			interfaces = append(interfaces, name)
		}
	}

	// List all interfaces to check
	checkInterface(reflect.TypeOf((*OnInit)(nil)).Elem(), "OnInit")
	checkInterface(reflect.TypeOf((*OnShutdown)(nil)).Elem(), "OnShutdown")
	checkInterface(reflect.TypeOf((*OnCatalogUpserted)(nil)).Elem(), "OnCatalogUpserted")
	checkInterface(reflect.TypeOf((*OnClientsUpserted)(nil)).Elem(), "OnClientsUpserted")
	checkInterface(reflect.TypeOf((*OnConsumptionRecorded)(nil)).Elem(), "OnConsumptionRecorded")
	checkInterface(reflect.TypeOf((*OnInvoiceGenerated)(nil)).Elem(), "OnInvoiceGenerated")
	checkInterface(reflect.TypeOf((*OnGenerationCompleted)(nil)).Elem(), "OnGenerationCompleted")
	checkInterface(reflect.TypeOf((*OnDanglingReference)(nil)).Elem(), "OnDanglingReference")
	checkInterface(reflect.TypeOf((*OnStoreReset)(nil)).Elem(), "OnStoreReset")
	checkInterface(reflect.TypeOf((*InvoiceFormatter)(nil)).Elem(), "InvoiceFormatter")

	return interfaces
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, engine interface{}) {
	r.mu.RLock()
	plugins := r.onInit
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, p.Name(), "OnInit", func() error {
			return p.OnInit(ctx, engine)
		})
	}
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	r.mu.RLock()
	plugins := r.onShutdown
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, p.Name(), "OnShutdown", func() error {
			return p.OnShutdown(ctx)
		})
	}
}

// EmitCatalogUpserted emits a catalog upserted event.
func (r *Registry) EmitCatalogUpserted(ctx context.Context, resources, categories int) {
	r.mu.RLock()
	plugins := r.onCatalogUpserted
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, p.Name(), "OnCatalogUpserted", func() error {
			return p.OnCatalogUpserted(ctx, resources, categories)
		})
	}
}

// EmitClientsUpserted emits a clients upserted event.
func (r *Registry) EmitClientsUpserted(ctx context.Context, clients int) {
	r.mu.RLock()
	plugins := r.onClientsUpserted
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, p.Name(), "OnClientsUpserted", func() error {
			return p.OnClientsUpserted(ctx, clients)
		})
	}
}

// EmitConsumptionRecorded emits a consumption recorded event.
func (r *Registry) EmitConsumptionRecorded(ctx context.Context, c *consumption.Consumption) {
	r.mu.RLock()
	plugins := r.onConsumptionRecorded
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, p.Name(), "OnConsumptionRecorded", func() error {
			return p.OnConsumptionRecorded(ctx, c)
		})
	}
}

// EmitInvoiceGenerated emits an invoice generated event.
func (r *Registry) EmitInvoiceGenerated(ctx context.Context, inv *invoice.Invoice) {
	r.mu.RLock()
	plugins := r.onInvoiceGenerated
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, p.Name(), "OnInvoiceGenerated", func() error {
			return p.OnInvoiceGenerated(ctx, inv)
		})
	}
}

// EmitGenerationCompleted emits a generation completed event.
func (r *Registry) EmitGenerationCompleted(ctx context.Context, run GenerationSummary) {
	r.mu.RLock()
	plugins := r.onGenerationCompleted
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, p.Name(), "OnGenerationCompleted", func() error {
			return p.OnGenerationCompleted(ctx, run)
		})
	}
}

// EmitDanglingReference emits a dangling reference event.
func (r *Registry) EmitDanglingReference(ctx context.Context, ref DanglingReference) {
	r.mu.RLock()
	plugins := r.onDanglingReference
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, p.Name(), "OnDanglingReference", func() error {
			return p.OnDanglingReference(ctx, ref)
		})
	}
}

// EmitStoreReset emits a store reset event.
func (r *Registry) EmitStoreReset(ctx context.Context) {
	r.mu.RLock()
	plugins := r.onStoreReset
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, p.Name(), "OnStoreReset", func() error {
			return p.OnStoreReset(ctx)
		})
	}
}

// GetInvoiceFormatter returns the formatter registered for format.
func (r *Registry) GetInvoiceFormatter(format string) InvoiceFormatter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.invoiceFormatters[format]
}

// InvoiceFormats lists the registered formatter names, sorted.
func (r *Registry) InvoiceFormats() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	formats := make([]string, 0, len(r.invoiceFormatters))
	for f := range r.invoiceFormatters {
		formats = append(formats, f)
	}
	sort.Strings(formats)
	return formats
}

func (r *Registry) dispatch(ctx context.Context, pluginName, hook string, fn func() error) {
	if err := r.callWithTimeout(ctx, pluginName, fn); err != nil {
		r.logger.Warn("plugin "+hook+" failed",
			"plugin", pluginName,
			"error", err,
		)
	}
}

// callWithTimeout calls a plugin function with a timeout.
// Plugins should never block the billing pipeline.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(r.timeout):
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
