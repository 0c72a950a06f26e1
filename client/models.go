// Package client defines billed customers and the cloud instances they run.
package client

import (
	"regexp"
	"strings"

	"github.com/xraph/cloudbill/types"
)

var nitPattern = regexp.MustCompile(`^\d+-[0-9kK]$`)

// ValidNIT reports whether nit has the form digits, hyphen, check character
// (0-9 or K, case-insensitive).
func ValidNIT(nit string) bool {
	return nitPattern.MatchString(nit)
}

// NormalizeNIT trims the NIT and upper-cases a K check character.
func NormalizeNIT(nit string) string {
	return strings.ToUpper(strings.TrimSpace(nit))
}

// InstanceStatus is the lifecycle state of an instance.
type InstanceStatus string

const (
	StatusActive    InstanceStatus = "Vigente"
	StatusCancelled InstanceStatus = "Cancelada"
)

// ParseStatus accepts the wire spelling in either language.
func ParseStatus(s string) (InstanceStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "vigente", "active":
		return StatusActive, true
	case "cancelada", "cancelled", "canceled":
		return StatusCancelled, true
	}
	return "", false
}

// Instance is a running configuration owned by a client. EndDate is set only
// when the instance is cancelled.
type Instance struct {
	ID              int64          `json:"id"`
	ConfigurationID int64          `json:"configuration_id"`
	Name            string         `json:"name"`
	StartDate       string         `json:"start_date,omitempty"`
	Status          InstanceStatus `json:"status" validate:"oneof=Vigente Cancelada"`
	EndDate         string         `json:"end_date,omitempty"`
}

// Cancelled reports whether the instance has been cancelled.
func (i *Instance) Cancelled() bool { return i.Status == StatusCancelled }

// Client is a billed customer identified by NIT.
type Client struct {
	types.Entity
	NIT       string     `json:"nit" validate:"required,nit"`
	Name      string     `json:"name" validate:"required"`
	Username  string     `json:"username"`
	Password  string     `json:"password,omitempty"`
	Address   string     `json:"address,omitempty"`
	Email     string     `json:"email,omitempty" validate:"omitempty,email"`
	Instances []Instance `json:"instances" validate:"dive"`
}

// FindInstance returns the instance with the given id or nil.
func (c *Client) FindInstance(id int64) *Instance {
	for i := range c.Instances {
		if c.Instances[i].ID == id {
			return &c.Instances[i]
		}
	}
	return nil
}

// Clone returns a deep copy of the client and its instances.
func (c *Client) Clone() *Client {
	cp := *c
	cp.Instances = append([]Instance(nil), c.Instances...)
	return &cp
}
