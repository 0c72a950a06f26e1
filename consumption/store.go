package consumption

import "context"

// Store is the consumption log.
type Store interface {
	// AppendConsumption always appends and assigns the next positional id.
	AppendConsumption(ctx context.Context, rec Record) (*Consumption, error)
	GetConsumption(ctx context.Context, consumptionID int64) (*Consumption, error)
	ListConsumptions(ctx context.Context) ([]*Consumption, error)
	// ListUnbilledConsumptions returns unbilled records in insertion order.
	ListUnbilledConsumptions(ctx context.Context) ([]*Consumption, error)
	// MarkConsumptionsBilled flips every id or none of them.
	MarkConsumptionsBilled(ctx context.Context, ids []int64) error
}
