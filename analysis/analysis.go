// Package analysis aggregates issued invoices into revenue reports.
package analysis

import (
	"context"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/xraph/cloudbill/catalog"
	"github.com/xraph/cloudbill/consumption"
	"github.com/xraph/cloudbill/id"
	"github.com/xraph/cloudbill/invoice"
	"github.com/xraph/cloudbill/rating"
	"github.com/xraph/cloudbill/types"
)

// Mode selects the aggregation key.
type Mode string

const (
	// ModeCategories keys revenue by "category - configuration".
	ModeCategories Mode = "categories"
	// ModeResources keys revenue by resource name.
	ModeResources Mode = "resources"
)

// ParseMode accepts "categories" or "resources" in any case.
func ParseMode(s string) (Mode, bool) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeCategories:
		return ModeCategories, true
	case ModeResources:
		return ModeResources, true
	}
	return "", false
}

// Item is one row of a sales report.
type Item struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Revenue     types.Money     `json:"revenue"`
	Percentage  decimal.Decimal `json:"percentage"`
}

// Result is a complete sales report. Every call to Analyze yields a fresh ID.
type Result struct {
	ID       id.ReportID `json:"id"`
	Mode     Mode        `json:"type"`
	Start    string      `json:"start_date,omitempty"`
	End      string      `json:"end_date,omitempty"`
	Invoices int         `json:"invoices"`
	Total    types.Money `json:"total_revenue"`
	Items    []Item      `json:"items"`
}

// Source is the read side of the store used by the analyzer.
type Source interface {
	rating.Lookup
	GetConsumption(ctx context.Context, consumptionID int64) (*consumption.Consumption, error)
	GetCategory(ctx context.Context, categoryID int64) (*catalog.Category, error)
}

// Analyzer computes sales reports. It never writes.
type Analyzer struct {
	src      Source
	resolver *rating.Resolver
	notFound func(error) bool
}

// New creates an analyzer. notFound must report whether a lookup error means
// the entity does not exist.
func New(src Source, notFound func(error) bool) *Analyzer {
	return &Analyzer{
		src:      src,
		resolver: rating.NewResolver(src, notFound),
		notFound: notFound,
	}
}

type bucket struct {
	item  Item
	order int
}

// Analyze aggregates the consumptions of invoices priced at current catalog
// values. Unresolvable consumptions contribute nothing.
func (a *Analyzer) Analyze(ctx context.Context, invoices []*invoice.Invoice, mode Mode) (*Result, error) {
	buckets := make(map[string]*bucket)
	add := func(name, description string, revenue types.Money) {
		b, ok := buckets[name]
		if !ok {
			b = &bucket{item: Item{Name: name, Description: description, Revenue: types.Zero()}, order: len(buckets)}
			buckets[name] = b
		}
		b.item.Revenue = b.item.Revenue.Add(revenue)
	}

	categories := make(map[int64]*catalog.Category)
	for _, inv := range invoices {
		for _, cid := range inv.ConsumptionIDs {
			c, err := a.src.GetConsumption(ctx, cid)
			if err != nil {
				if a.notFound(err) {
					continue
				}
				return nil, err
			}
			chain, err := a.resolver.Resolve(ctx, c.NIT, c.InstanceID)
			if err != nil {
				return nil, err
			}
			if chain.Resolution != rating.Resolved {
				continue
			}

			switch mode {
			case ModeCategories:
				cat, ok := categories[chain.Configuration.CategoryID]
				if !ok {
					cat, err = a.src.GetCategory(ctx, chain.Configuration.CategoryID)
					if err != nil && !a.notFound(err) {
						return nil, err
					}
					categories[chain.Configuration.CategoryID] = cat
				}
				if cat == nil {
					continue
				}
				desc := chain.Configuration.Description
				if desc == "" {
					desc = cat.Description
				}
				cost := rating.Price(chain, c.TimeHours)
				add(cat.Name+" - "+chain.Configuration.Name, desc, cost.Total)
			case ModeResources:
				for _, line := range rating.Price(chain, c.TimeHours).Lines {
					res := componentResource(chain, line.ResourceID)
					add(line.Name, string(res.Type), line.Total)
				}
			}
		}
	}

	result := &Result{ID: id.NewReportID(), Mode: mode, Invoices: len(invoices), Total: types.Zero(), Items: make([]Item, 0, len(buckets))}
	ordered := make([]*bucket, 0, len(buckets))
	for _, b := range buckets {
		ordered = append(ordered, b)
		result.Total = result.Total.Add(b.item.Revenue)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].order < ordered[j].order })
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].item.Revenue.GreaterThan(ordered[j].item.Revenue)
	})
	for _, b := range ordered {
		b.item.Percentage = b.item.Revenue.Percentage(result.Total)
		result.Items = append(result.Items, b.item)
	}
	return result, nil
}

func componentResource(chain *rating.Chain, resourceID int64) *catalog.Resource {
	for _, comp := range chain.Components {
		if comp.Resource.ID == resourceID {
			return comp.Resource
		}
	}
	return &catalog.Resource{}
}
