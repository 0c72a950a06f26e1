// Package plugin provides an extensible plugin system for cloudbill.
// Plugins can hook into various lifecycle events to extend functionality.
package plugin

import (
	"context"
	"io"
	"time"

	"github.com/xraph/cloudbill/consumption"
	"github.com/xraph/cloudbill/id"
	"github.com/xraph/cloudbill/invoice"
	"github.com/xraph/cloudbill/types"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the engine starts.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, engine interface{}) error
}

// OnShutdown is called when the plugin is shutting down.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Ingestion hooks
// ──────────────────────────────────────────────────

// OnCatalogUpserted is called after resources and categories are stored.
type OnCatalogUpserted interface {
	Plugin
	OnCatalogUpserted(ctx context.Context, resources, categories int) error
}

// OnClientsUpserted is called after clients are stored.
type OnClientsUpserted interface {
	Plugin
	OnClientsUpserted(ctx context.Context, clients int) error
}

// OnConsumptionRecorded is called for every appended consumption.
type OnConsumptionRecorded interface {
	Plugin
	OnConsumptionRecorded(ctx context.Context, c *consumption.Consumption) error
}

// ──────────────────────────────────────────────────
// Billing hooks
// ──────────────────────────────────────────────────

// OnInvoiceGenerated is called for every invoice after its run is committed.
type OnInvoiceGenerated interface {
	Plugin
	OnInvoiceGenerated(ctx context.Context, inv *invoice.Invoice) error
}

// OnGenerationCompleted is called once per committed generation run.
type OnGenerationCompleted interface {
	Plugin
	OnGenerationCompleted(ctx context.Context, run GenerationSummary) error
}

// OnDanglingReference is called when a consumption is billed with part of
// its instance → configuration → resource chain missing.
type OnDanglingReference interface {
	Plugin
	OnDanglingReference(ctx context.Context, ref DanglingReference) error
}

// OnStoreReset is called after all data has been removed.
type OnStoreReset interface {
	Plugin
	OnStoreReset(ctx context.Context) error
}

// GenerationSummary describes one invoice generation run.
type GenerationSummary struct {
	RunID        id.RunID
	Start        string
	End          string
	Invoices     int
	Consumptions int
	Total        types.Money
	Elapsed      time.Duration
}

// DanglingReference identifies a consumption priced with missing data.
type DanglingReference struct {
	ConsumptionID    int64
	NIT              string
	InstanceID       int64
	Resolution       string
	SkippedResources []int64
}

// ──────────────────────────────────────────────────
// Invoice formatters
// ──────────────────────────────────────────────────

// InvoiceFormatter renders invoice statements for export.
type InvoiceFormatter interface {
	Plugin
	Format() string // "pdf", "json", etc.
	Render(ctx context.Context, stmt *invoice.Statement, w io.Writer) error
}
