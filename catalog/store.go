package catalog

import "context"

// Store persists resources and categories. Upserts replace by identity and
// append when absent, keeping first-insertion order.
type Store interface {
	UpsertResources(ctx context.Context, resources []*Resource) error
	UpsertCategories(ctx context.Context, categories []*Category) error
	GetResource(ctx context.Context, resourceID int64) (*Resource, error)
	GetCategory(ctx context.Context, categoryID int64) (*Category, error)
	GetConfiguration(ctx context.Context, configurationID int64) (*Configuration, error)
	ListResources(ctx context.Context) ([]*Resource, error)
	ListCategories(ctx context.Context) ([]*Category, error)
}
