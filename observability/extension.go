// Package observability provides a metrics extension for cloudbill that
// records lifecycle event counts via a MetricFactory.
package observability

import (
	"context"

	"github.com/xraph/cloudbill/consumption"
	"github.com/xraph/cloudbill/invoice"
	"github.com/xraph/cloudbill/plugin"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin                = (*MetricsExtension)(nil)
	_ plugin.OnInit                = (*MetricsExtension)(nil)
	_ plugin.OnCatalogUpserted     = (*MetricsExtension)(nil)
	_ plugin.OnClientsUpserted     = (*MetricsExtension)(nil)
	_ plugin.OnConsumptionRecorded = (*MetricsExtension)(nil)
	_ plugin.OnInvoiceGenerated    = (*MetricsExtension)(nil)
	_ plugin.OnGenerationCompleted = (*MetricsExtension)(nil)
	_ plugin.OnDanglingReference   = (*MetricsExtension)(nil)
	_ plugin.OnStoreReset          = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records system-wide lifecycle metrics.
// Register it as an engine plugin to automatically track billing metrics.
type MetricsExtension struct {
	factory MetricFactory

	// Catalog metrics
	ResourcesUpserted  Counter
	CategoriesUpserted Counter
	ClientsUpserted    Counter

	// Consumption metrics
	ConsumptionsRecorded Counter
	ConsumptionHours     Histogram

	// Invoice metrics
	InvoiceGenerated Counter
	InvoiceTotal     Histogram

	// Generation metrics
	GenerationRuns     Counter
	GenerationLatency  Histogram
	ConsumptionsBilled Counter

	// Integrity metrics
	DanglingReferences Counter
	StoreResets        Counter
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		// Catalog metrics
		ResourcesUpserted:  factory.Counter("cloudbill.catalog.resources.upserted"),
		CategoriesUpserted: factory.Counter("cloudbill.catalog.categories.upserted"),
		ClientsUpserted:    factory.Counter("cloudbill.clients.upserted"),

		// Consumption metrics
		ConsumptionsRecorded: factory.Counter("cloudbill.consumption.recorded"),
		ConsumptionHours:     factory.Histogram("cloudbill.consumption.hours"),

		// Invoice metrics
		InvoiceGenerated: factory.Counter("cloudbill.invoice.generated"),
		InvoiceTotal:     factory.Histogram("cloudbill.invoice.total_amount"),

		// Generation metrics
		GenerationRuns:     factory.Counter("cloudbill.generation.runs"),
		GenerationLatency:  factory.Histogram("cloudbill.generation.latency_ms"),
		ConsumptionsBilled: factory.Counter("cloudbill.generation.consumptions_billed"),

		// Integrity metrics
		DanglingReferences: factory.Counter("cloudbill.consumption.dangling_references"),
		StoreResets:        factory.Counter("cloudbill.store.resets"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ interface{}) error {
	return nil
}

// ──────────────────────────────────────────────────
// Catalog and client hooks
// ──────────────────────────────────────────────────

// OnCatalogUpserted implements plugin.OnCatalogUpserted.
func (m *MetricsExtension) OnCatalogUpserted(_ context.Context, resources, categories int) error {
	m.ResourcesUpserted.Add(float64(resources))
	m.CategoriesUpserted.Add(float64(categories))
	return nil
}

// OnClientsUpserted implements plugin.OnClientsUpserted.
func (m *MetricsExtension) OnClientsUpserted(_ context.Context, clients int) error {
	m.ClientsUpserted.Add(float64(clients))
	return nil
}

// ──────────────────────────────────────────────────
// Consumption hooks
// ──────────────────────────────────────────────────

// OnConsumptionRecorded implements plugin.OnConsumptionRecorded.
func (m *MetricsExtension) OnConsumptionRecorded(_ context.Context, c *consumption.Consumption) error {
	m.ConsumptionsRecorded.Inc()
	m.ConsumptionHours.Observe(c.TimeHours.InexactFloat64())
	return nil
}

// OnDanglingReference implements plugin.OnDanglingReference.
func (m *MetricsExtension) OnDanglingReference(_ context.Context, _ plugin.DanglingReference) error {
	m.DanglingReferences.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Invoice hooks
// ──────────────────────────────────────────────────

// OnInvoiceGenerated implements plugin.OnInvoiceGenerated.
func (m *MetricsExtension) OnInvoiceGenerated(_ context.Context, inv *invoice.Invoice) error {
	m.InvoiceGenerated.Inc()
	m.InvoiceTotal.Observe(inv.Total.Float64())
	return nil
}

// OnGenerationCompleted implements plugin.OnGenerationCompleted.
func (m *MetricsExtension) OnGenerationCompleted(_ context.Context, run plugin.GenerationSummary) error {
	m.GenerationRuns.Inc()
	m.GenerationLatency.Observe(float64(run.Elapsed.Milliseconds()))
	m.ConsumptionsBilled.Add(float64(run.Consumptions))
	return nil
}

// OnStoreReset implements plugin.OnStoreReset.
func (m *MetricsExtension) OnStoreReset(_ context.Context) error {
	m.StoreResets.Inc()
	return nil
}
