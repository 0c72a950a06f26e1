// Package rating prices consumptions against the current catalog.
//
// A consumption is priced by walking instance → configuration → resources.
// Gaps in that chain never fail a calculation: a missing instance or
// configuration prices the consumption at zero and a missing resource drops
// its line. Callers learn about gaps through Cost.Resolution and
// Cost.SkippedResources.
package rating

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/xraph/cloudbill/catalog"
	"github.com/xraph/cloudbill/client"
	"github.com/xraph/cloudbill/consumption"
	"github.com/xraph/cloudbill/invoice"
	"github.com/xraph/cloudbill/types"
)

// Lookup is the read side of the store needed to resolve a chain.
type Lookup interface {
	GetInstance(ctx context.Context, nit string, instanceID int64) (*client.Instance, error)
	GetConfiguration(ctx context.Context, configurationID int64) (*catalog.Configuration, error)
	GetResource(ctx context.Context, resourceID int64) (*catalog.Resource, error)
}

// Resolution tells how far a chain could be resolved.
type Resolution string

const (
	Resolved             Resolution = "resolved"
	InstanceMissing      Resolution = "instance_missing"
	ConfigurationMissing Resolution = "configuration_missing"
)

// Component is a resource with the quantity its configuration holds.
type Component struct {
	Resource *catalog.Resource
	Quantity decimal.Decimal
}

// Chain is the resolved instance → configuration → resources path.
type Chain struct {
	Resolution       Resolution
	Instance         *client.Instance
	Configuration    *catalog.Configuration
	Components       []Component
	SkippedResources []int64
}

// Resolver resolves chains against a Lookup. NotFound classifies lookup
// errors that mean "absent"; any other error aborts the resolution.
type Resolver struct {
	lookup   Lookup
	notFound func(error) bool
}

// NewResolver creates a resolver. notFound must report whether a lookup
// error means the entity does not exist.
func NewResolver(lookup Lookup, notFound func(error) bool) *Resolver {
	return &Resolver{lookup: lookup, notFound: notFound}
}

// Resolve walks the chain for one client instance.
func (r *Resolver) Resolve(ctx context.Context, nit string, instanceID int64) (*Chain, error) {
	inst, err := r.lookup.GetInstance(ctx, nit, instanceID)
	if err != nil {
		if r.notFound(err) {
			return &Chain{Resolution: InstanceMissing}, nil
		}
		return nil, err
	}

	cfg, err := r.lookup.GetConfiguration(ctx, inst.ConfigurationID)
	if err != nil {
		if r.notFound(err) {
			return &Chain{Resolution: ConfigurationMissing, Instance: inst}, nil
		}
		return nil, err
	}

	chain := &Chain{
		Resolution:    Resolved,
		Instance:      inst,
		Configuration: cfg,
		Components:    make([]Component, 0, len(cfg.Resources)),
	}
	for _, cr := range cfg.Resources {
		res, err := r.lookup.GetResource(ctx, cr.ResourceID)
		if err != nil {
			if r.notFound(err) {
				chain.SkippedResources = append(chain.SkippedResources, cr.ResourceID)
				continue
			}
			return nil, err
		}
		chain.Components = append(chain.Components, Component{Resource: res, Quantity: cr.Quantity})
	}
	return chain, nil
}

// Cost is the price of one consumption.
type Cost struct {
	Total            types.Money
	Lines            []invoice.Line
	Resolution       Resolution
	Instance         *client.Instance
	Configuration    *catalog.Configuration
	SkippedResources []int64
}

// Dangling reports whether any part of the chain was missing.
func (c *Cost) Dangling() bool {
	return c.Resolution != Resolved || len(c.SkippedResources) > 0
}

// Calculate prices a consumption: one line per resolvable resource, each
// quantity × value per hour × hours, in configuration order.
func (r *Resolver) Calculate(ctx context.Context, c *consumption.Consumption) (*Cost, error) {
	chain, err := r.Resolve(ctx, c.NIT, c.InstanceID)
	if err != nil {
		return nil, err
	}
	return Price(chain, c.TimeHours), nil
}

// Price computes the cost of running a resolved chain for hours.
func Price(chain *Chain, hours decimal.Decimal) *Cost {
	cost := &Cost{
		Total:            types.Zero(),
		Lines:            make([]invoice.Line, 0, len(chain.Components)),
		Resolution:       chain.Resolution,
		Instance:         chain.Instance,
		Configuration:    chain.Configuration,
		SkippedResources: chain.SkippedResources,
	}
	for _, comp := range chain.Components {
		line := invoice.Line{
			ResourceID:  comp.Resource.ID,
			Name:        comp.Resource.Name,
			Quantity:    comp.Quantity,
			CostPerHour: comp.Resource.ValuePerHour,
			TimeHours:   hours,
			Total:       types.Cost(comp.Quantity, comp.Resource.ValuePerHour, hours),
		}
		cost.Lines = append(cost.Lines, line)
		cost.Total = cost.Total.Add(line.Total)
	}
	return cost
}
