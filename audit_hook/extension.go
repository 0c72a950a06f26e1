// Package audithook bridges cloudbill lifecycle events to an audit trail
// backend.
//
// It defines a local Recorder interface so the package does not depend on
// any audit backend. Callers inject a RecorderFunc adapter at wiring time.
package audithook

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/xraph/cloudbill/consumption"
	"github.com/xraph/cloudbill/invoice"
	"github.com/xraph/cloudbill/plugin"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin                = (*Extension)(nil)
	_ plugin.OnCatalogUpserted     = (*Extension)(nil)
	_ plugin.OnClientsUpserted     = (*Extension)(nil)
	_ plugin.OnConsumptionRecorded = (*Extension)(nil)
	_ plugin.OnDanglingReference   = (*Extension)(nil)
	_ plugin.OnInvoiceGenerated    = (*Extension)(nil)
	_ plugin.OnGenerationCompleted = (*Extension)(nil)
	_ plugin.OnStoreReset          = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a local representation of an audit event.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// SlogRecorder writes audit events as structured log lines.
func SlogRecorder(logger *slog.Logger) Recorder {
	return RecorderFunc(func(ctx context.Context, event *AuditEvent) error {
		logger.InfoContext(ctx, "audit",
			"action", event.Action,
			"resource", event.Resource,
			"resource_id", event.ResourceID,
			"category", event.Category,
			"outcome", event.Outcome,
			"severity", event.Severity,
			"metadata", event.Metadata,
		)
		return nil
	})
}

// Extension bridges cloudbill lifecycle events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Catalog and client hooks
// ──────────────────────────────────────────────────

// OnCatalogUpserted implements plugin.OnCatalogUpserted.
func (e *Extension) OnCatalogUpserted(ctx context.Context, resources, categories int) error {
	return e.record(ctx, ActionCatalogUpserted, SeverityInfo, OutcomeSuccess,
		ResourceCatalog, "", CategoryCatalog,
		"resources", resources,
		"categories", categories,
	)
}

// OnClientsUpserted implements plugin.OnClientsUpserted.
func (e *Extension) OnClientsUpserted(ctx context.Context, clients int) error {
	return e.record(ctx, ActionClientsUpserted, SeverityInfo, OutcomeSuccess,
		ResourceClient, "", CategoryCatalog,
		"clients", clients,
	)
}

// ──────────────────────────────────────────────────
// Consumption hooks
// ──────────────────────────────────────────────────

// OnConsumptionRecorded implements plugin.OnConsumptionRecorded.
func (e *Extension) OnConsumptionRecorded(ctx context.Context, c *consumption.Consumption) error {
	return e.record(ctx, ActionConsumptionRecorded, SeverityInfo, OutcomeSuccess,
		ResourceConsumption, strconv.FormatInt(c.ID, 10), CategoryUsage,
		"nit", c.NIT,
		"instance_id", c.InstanceID,
		"time_hours", c.TimeHours.String(),
		"date_time", c.DateTime,
	)
}

// OnDanglingReference implements plugin.OnDanglingReference.
func (e *Extension) OnDanglingReference(ctx context.Context, ref plugin.DanglingReference) error {
	return e.record(ctx, ActionDanglingReference, SeverityWarning, OutcomePartial,
		ResourceConsumption, strconv.FormatInt(ref.ConsumptionID, 10), CategoryIntegrity,
		"nit", ref.NIT,
		"instance_id", ref.InstanceID,
		"resolution", ref.Resolution,
		"skipped_resources", ref.SkippedResources,
	)
}

// ──────────────────────────────────────────────────
// Invoice hooks
// ──────────────────────────────────────────────────

// OnInvoiceGenerated implements plugin.OnInvoiceGenerated.
func (e *Extension) OnInvoiceGenerated(ctx context.Context, inv *invoice.Invoice) error {
	return e.record(ctx, ActionInvoiceGenerated, SeverityInfo, OutcomeSuccess,
		ResourceInvoice, inv.Number, CategoryBilling,
		"nit", inv.ClientNIT,
		"issue_date", inv.IssueDate,
		"total", inv.Total.FormatMajor(),
		"consumptions", len(inv.ConsumptionIDs),
	)
}

// OnGenerationCompleted implements plugin.OnGenerationCompleted.
func (e *Extension) OnGenerationCompleted(ctx context.Context, run plugin.GenerationSummary) error {
	return e.record(ctx, ActionGenerationCompleted, SeverityInfo, OutcomeSuccess,
		ResourceGeneration, run.RunID.String(), CategoryBilling,
		"start", run.Start,
		"end", run.End,
		"invoices", run.Invoices,
		"consumptions", run.Consumptions,
		"total", run.Total.FormatMajor(),
		"elapsed_ms", run.Elapsed.Milliseconds(),
	)
}

// ──────────────────────────────────────────────────
// Store hooks
// ──────────────────────────────────────────────────

// OnStoreReset implements plugin.OnStoreReset.
func (e *Extension) OnStoreReset(ctx context.Context) error {
	return e.record(ctx, ActionStoreReset, SeverityWarning, OutcomeSuccess,
		ResourceStore, "", CategoryMaintenance,
	)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
