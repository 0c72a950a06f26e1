// Package consumption defines the append-only log of instance usage.
package consumption

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/xraph/cloudbill/types"
)

// Consumption records hours of usage for one client instance. ID is the
// 1-based position in the log. Only Billed ever changes after append.
type Consumption struct {
	ID         int64           `json:"id"`
	NIT        string          `json:"nit" validate:"required,nit"`
	InstanceID int64           `json:"instance_id"`
	TimeHours  decimal.Decimal `json:"time_hours"`
	DateTime   string          `json:"date_time"`
	Billed     bool            `json:"billed"`
	RecordedAt time.Time       `json:"recorded_at"`
}

// Day returns the calendar day of the consumption, ignoring the time.
func (c *Consumption) Day() (time.Time, error) {
	return types.ParseDay(c.DateTime)
}

// Record is the input for appending a consumption.
type Record struct {
	NIT        string          `json:"nit" validate:"required,nit"`
	InstanceID int64           `json:"instance_id"`
	TimeHours  decimal.Decimal `json:"time_hours"`
	DateTime   string          `json:"date_time" validate:"required"`
}

// Clone returns a copy of the consumption.
func (c *Consumption) Clone() *Consumption {
	cp := *c
	return &cp
}
