package store

import (
	"context"

	"github.com/xraph/cloudbill/catalog"
	"github.com/xraph/cloudbill/client"
	"github.com/xraph/cloudbill/consumption"
	"github.com/xraph/cloudbill/invoice"
)

// Store is the unified storage interface for all cloudbill entities.
// Instead of embedding the sub-interfaces, we explicitly declare all methods
// to avoid naming conflicts.
type Store interface {
	// Catalog methods
	UpsertResources(ctx context.Context, resources []*catalog.Resource) error
	UpsertCategories(ctx context.Context, categories []*catalog.Category) error
	GetResource(ctx context.Context, resourceID int64) (*catalog.Resource, error)
	GetCategory(ctx context.Context, categoryID int64) (*catalog.Category, error)
	GetConfiguration(ctx context.Context, configurationID int64) (*catalog.Configuration, error)
	ListResources(ctx context.Context) ([]*catalog.Resource, error)
	ListCategories(ctx context.Context) ([]*catalog.Category, error)

	// Client methods
	UpsertClients(ctx context.Context, clients []*client.Client) error
	GetClient(ctx context.Context, nit string) (*client.Client, error)
	GetInstance(ctx context.Context, nit string, instanceID int64) (*client.Instance, error)
	ListClients(ctx context.Context) ([]*client.Client, error)

	// Consumption methods
	AppendConsumption(ctx context.Context, rec consumption.Record) (*consumption.Consumption, error)
	GetConsumption(ctx context.Context, consumptionID int64) (*consumption.Consumption, error)
	ListConsumptions(ctx context.Context) ([]*consumption.Consumption, error)
	ListUnbilledConsumptions(ctx context.Context) ([]*consumption.Consumption, error)
	MarkConsumptionsBilled(ctx context.Context, ids []int64) error

	// Invoice methods
	CreateInvoice(ctx context.Context, inv *invoice.Invoice) error
	GetInvoice(ctx context.Context, number string) (*invoice.Invoice, error)
	ListInvoices(ctx context.Context, opts invoice.ListOpts) ([]*invoice.Invoice, error)
	CountInvoices(ctx context.Context) (int, error)

	// CommitInvoices persists a whole generation run. Every invoice number
	// and consumption id is checked before anything is written.
	CommitInvoices(ctx context.Context, invoices []*invoice.Invoice) error

	// Snapshot returns every collection in storage order.
	Snapshot(ctx context.Context) (*Snapshot, error)

	// Reset removes all data.
	Reset(ctx context.Context) error

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// Snapshot is a full read of the store.
type Snapshot struct {
	Resources    []*catalog.Resource        `json:"resources"`
	Categories   []*catalog.Category        `json:"categories"`
	Clients      []*client.Client           `json:"clients"`
	Consumptions []*consumption.Consumption `json:"consumptions"`
	Invoices     []*invoice.Invoice         `json:"invoices"`
}

// Summary counts the entities in a snapshot.
type Summary struct {
	Resources      int `json:"resources"`
	Categories     int `json:"categories"`
	Configurations int `json:"configurations"`
	Clients        int `json:"clients"`
	Instances      int `json:"instances"`
	Consumptions   int `json:"consumptions"`
	Invoices       int `json:"invoices"`
}

// Summary counts the entities held in the snapshot.
func (s *Snapshot) Summary() Summary {
	sum := Summary{
		Resources:    len(s.Resources),
		Categories:   len(s.Categories),
		Clients:      len(s.Clients),
		Consumptions: len(s.Consumptions),
		Invoices:     len(s.Invoices),
	}
	for _, c := range s.Categories {
		sum.Configurations += len(c.Configurations)
	}
	for _, c := range s.Clients {
		sum.Instances += len(c.Instances)
	}
	return sum
}

// Paginate applies offset and limit to a slice. A zero limit means no limit.
func Paginate[T any](items []T, offset, limit int) []T {
	start := offset
	if start > len(items) {
		start = len(items)
	}
	if start < 0 {
		start = 0
	}
	end := start + limit
	if limit <= 0 || end > len(items) {
		end = len(items)
	}
	return items[start:end]
}
