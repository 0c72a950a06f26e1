package audithook

// Action constants for audit events.
const (
	// Catalog actions
	ActionCatalogUpserted = "catalog.upserted"
	ActionClientsUpserted = "clients.upserted"

	// Consumption actions
	ActionConsumptionRecorded = "consumption.recorded"
	ActionDanglingReference   = "consumption.dangling_reference"

	// Invoice actions
	ActionInvoiceGenerated    = "invoice.generated"
	ActionGenerationCompleted = "generation.completed"

	// Store actions
	ActionStoreReset = "store.reset"
)

// Resource constants for audit events.
const (
	ResourceCatalog     = "catalog"
	ResourceClient      = "client"
	ResourceConsumption = "consumption"
	ResourceInvoice     = "invoice"
	ResourceGeneration  = "generation"
	ResourceStore       = "store"
)

// Category constants for audit events.
const (
	CategoryBilling     = "billing"
	CategoryCatalog     = "catalog"
	CategoryUsage       = "usage"
	CategoryIntegrity   = "integrity"
	CategoryMaintenance = "maintenance"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomePartial = "partial"
)
