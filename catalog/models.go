// Package catalog defines the billable resources and the categories of
// configurations that bundle them.
package catalog

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/xraph/cloudbill/types"
)

// ResourceType classifies a resource for sales analysis.
type ResourceType string

const (
	ResourceHardware ResourceType = "Hardware"
	ResourceSoftware ResourceType = "Software"
)

// Valid reports whether t is a known resource type.
func (t ResourceType) Valid() bool {
	return t == ResourceHardware || t == ResourceSoftware
}

// Resource is a billable unit priced per hour.
type Resource struct {
	types.Entity
	ID           int64           `json:"id" validate:"gte=0"`
	Name         string          `json:"name" validate:"required"`
	Abbreviation string          `json:"abbreviation"`
	Metric       string          `json:"metric"`
	Type         ResourceType    `json:"type" validate:"oneof=Hardware Software"`
	ValuePerHour decimal.Decimal `json:"value_per_hour"`
}

// ConfigurationResource is a quantity of one resource inside a configuration.
type ConfigurationResource struct {
	ResourceID int64           `json:"resource_id"`
	Quantity   decimal.Decimal `json:"quantity"`
}

// Configuration is a named bundle of resource quantities. Configuration ids
// are addressable on their own, independently of the owning category.
type Configuration struct {
	ID          int64                   `json:"id"`
	CategoryID  int64                   `json:"category_id"`
	Name        string                  `json:"name"`
	Description string                  `json:"description,omitempty"`
	Resources   []ConfigurationResource `json:"resources"`
}

// Category groups configurations under a workload label.
type Category struct {
	types.Entity
	ID             int64           `json:"id"`
	Name           string          `json:"name" validate:"required"`
	Description    string          `json:"description,omitempty"`
	Workload       string          `json:"workload,omitempty"`
	Configurations []Configuration `json:"configurations" validate:"dive"`
}

// FindConfiguration returns the configuration with the given id or nil.
func (c *Category) FindConfiguration(id int64) *Configuration {
	for i := range c.Configurations {
		if c.Configurations[i].ID == id {
			return &c.Configurations[i]
		}
	}
	return nil
}

// Own stamps the category id on every configuration it carries.
func (c *Category) Own() {
	for i := range c.Configurations {
		c.Configurations[i].CategoryID = c.ID
	}
}

// Conflict describes a configuration id claimed by two categories.
type Conflict struct {
	ConfigurationID int64
	Owner           int64
	Claimant        int64
}

func (c *Conflict) String() string {
	return fmt.Sprintf("configuration %d owned by category %d, claimed by category %d",
		c.ConfigurationID, c.Owner, c.Claimant)
}

// CheckOwnership verifies that incoming categories claim no configuration id
// owned by a different category. owners maps configuration ids to their
// current category; categories being replaced release what they own.
func CheckOwnership(owners map[int64]int64, incoming []*Category) *Conflict {
	replaced := make(map[int64]bool, len(incoming))
	for _, c := range incoming {
		replaced[c.ID] = true
	}
	effective := make(map[int64]int64, len(owners))
	for cfg, owner := range owners {
		if !replaced[owner] {
			effective[cfg] = owner
		}
	}
	// A category repeated in one batch replaces its earlier copy.
	claims := make(map[int64]int64)
	for _, c := range incoming {
		for cfg, owner := range claims {
			if owner == c.ID {
				delete(claims, cfg)
			}
		}
		for _, cfg := range c.Configurations {
			if owner, ok := effective[cfg.ID]; ok && owner != c.ID {
				return &Conflict{ConfigurationID: cfg.ID, Owner: owner, Claimant: c.ID}
			}
			if owner, ok := claims[cfg.ID]; ok && owner != c.ID {
				return &Conflict{ConfigurationID: cfg.ID, Owner: owner, Claimant: c.ID}
			}
			claims[cfg.ID] = c.ID
		}
	}
	return nil
}

// Clone returns a deep copy of the resource.
func (r *Resource) Clone() *Resource {
	cp := *r
	return &cp
}

// Clone returns a deep copy of the category and its configurations.
func (c *Category) Clone() *Category {
	cp := *c
	cp.Configurations = make([]Configuration, len(c.Configurations))
	for i, cfg := range c.Configurations {
		cfg.Resources = append([]ConfigurationResource(nil), cfg.Resources...)
		cp.Configurations[i] = cfg
	}
	return &cp
}
