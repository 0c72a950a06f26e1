// Package invoice defines issued invoices and their per-consumption detail.
package invoice

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/xraph/cloudbill/id"
	"github.com/xraph/cloudbill/types"
)

// NumberPrefix starts every invoice number.
const NumberPrefix = "FAC-"

// FormatNumber renders a sequence as "FAC-" plus six zero-padded digits.
func FormatNumber(seq int) string {
	return fmt.Sprintf("%s%06d", NumberPrefix, seq)
}

// ParseNumber extracts the sequence from an invoice number.
func ParseNumber(number string) (int, error) {
	digits, ok := strings.CutPrefix(number, NumberPrefix)
	if !ok || len(digits) < 6 {
		return 0, fmt.Errorf("invoice number %q is not %sNNNNNN", number, NumberPrefix)
	}
	seq, err := strconv.Atoi(digits)
	if err != nil || seq < 1 {
		return 0, fmt.Errorf("invoice number %q is not %sNNNNNN", number, NumberPrefix)
	}
	return seq, nil
}

// Invoice consolidates billed consumptions of one client. Invoices are
// immutable once created.
type Invoice struct {
	types.Entity
	ID             id.InvoiceID `json:"id"`
	Number         string       `json:"invoice_number"`
	ClientNIT      string       `json:"client_nit"`
	IssueDate      string       `json:"issue_date"`
	PeriodStart    string       `json:"period_start"`
	Total          types.Money  `json:"total_amount"`
	ConsumptionIDs []int64      `json:"consumptions"`
	RunID          id.RunID     `json:"run_id"`
	Details        []Detail     `json:"details"`
}

// Detail is the cost of one consumption at generation time.
type Detail struct {
	ConsumptionID int64           `json:"consumption_id"`
	InstanceID    int64           `json:"instance_id"`
	TimeHours     decimal.Decimal `json:"time_hours"`
	DateTime      string          `json:"date_time"`
	Cost          types.Money     `json:"cost"`
	Resources     []Line          `json:"resources"`
}

// Line is the cost of one resource within a consumption.
type Line struct {
	ResourceID  int64           `json:"resource_id"`
	Name        string          `json:"name"`
	Quantity    decimal.Decimal `json:"quantity"`
	CostPerHour decimal.Decimal `json:"cost_per_hour"`
	TimeHours   decimal.Decimal `json:"time_hours"`
	Total       types.Money     `json:"total_cost"`
}

// Statement is an invoice regrouped per instance for presentation.
type Statement struct {
	Invoice   *Invoice        `json:"invoice"`
	Client    StatementClient `json:"client"`
	Instances []InstanceGroup `json:"instances"`
	Total     types.Money     `json:"total"`
}

// StatementClient is the addressee block of a statement.
type StatementClient struct {
	NIT     string `json:"nit"`
	Name    string `json:"name"`
	Address string `json:"address,omitempty"`
	Email   string `json:"email,omitempty"`
}

// InstanceGroup sums an invoice's lines for one instance, one row per
// resource.
type InstanceGroup struct {
	InstanceID   int64       `json:"instance_id"`
	InstanceName string      `json:"instance_name"`
	Resources    []Line      `json:"resources"`
	Subtotal     types.Money `json:"subtotal"`
}

// Group folds the invoice details into per-instance groups, in order of
// first appearance. names maps instance ids to display names; unknown
// instances are shown by id.
func (inv *Invoice) Group(names map[int64]string) []InstanceGroup {
	var groups []InstanceGroup
	index := map[int64]int{}
	for _, d := range inv.Details {
		gi, ok := index[d.InstanceID]
		if !ok {
			name := names[d.InstanceID]
			if name == "" {
				name = fmt.Sprintf("Instancia %d", d.InstanceID)
			}
			groups = append(groups, InstanceGroup{
				InstanceID:   d.InstanceID,
				InstanceName: name,
				Subtotal:     types.Zero(),
			})
			gi = len(groups) - 1
			index[d.InstanceID] = gi
		}
		g := &groups[gi]
		for _, l := range d.Resources {
			merged := false
			for ri := range g.Resources {
				r := &g.Resources[ri]
				if r.ResourceID == l.ResourceID && r.Quantity.Equal(l.Quantity) && r.CostPerHour.Equal(l.CostPerHour) {
					r.TimeHours = r.TimeHours.Add(l.TimeHours)
					r.Total = r.Total.Add(l.Total)
					merged = true
					break
				}
			}
			if !merged {
				g.Resources = append(g.Resources, l)
			}
		}
		g.Subtotal = g.Subtotal.Add(d.Cost)
	}
	return groups
}

// Clone returns a deep copy of the invoice.
func (inv *Invoice) Clone() *Invoice {
	cp := *inv
	cp.ConsumptionIDs = append([]int64(nil), inv.ConsumptionIDs...)
	cp.Details = make([]Detail, len(inv.Details))
	for i, d := range inv.Details {
		d.Resources = append([]Line(nil), d.Resources...)
		cp.Details[i] = d
	}
	return &cp
}
