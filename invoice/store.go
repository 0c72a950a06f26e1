package invoice

import (
	"context"
	"time"

	"github.com/xraph/cloudbill/types"
)

// Store persists issued invoices.
type Store interface {
	// CreateInvoice fails with a duplicate-number error when the number exists.
	CreateInvoice(ctx context.Context, inv *Invoice) error
	GetInvoice(ctx context.Context, number string) (*Invoice, error)
	ListInvoices(ctx context.Context, opts ListOpts) ([]*Invoice, error)
	CountInvoices(ctx context.Context) (int, error)
}

// ListOpts filters invoices. Start and End bound the issue date inclusively
// at day precision; zero values leave that side open.
type ListOpts struct {
	ClientNIT string
	Start     time.Time
	End       time.Time
	Limit     int
	Offset    int
}

// Matches reports whether inv passes the filter, ignoring paging.
func (o ListOpts) Matches(inv *Invoice) bool {
	if o.ClientNIT != "" && inv.ClientNIT != o.ClientNIT {
		return false
	}
	if o.Start.IsZero() && o.End.IsZero() {
		return true
	}
	day, err := types.ParseDay(inv.IssueDate)
	if err != nil {
		return false
	}
	if !o.Start.IsZero() && day.Before(o.Start) {
		return false
	}
	if !o.End.IsZero() && day.After(o.End) {
		return false
	}
	return true
}
