package report

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/cloudbill/analysis"
	"github.com/xraph/cloudbill/id"
	"github.com/xraph/cloudbill/invoice"
	"github.com/xraph/cloudbill/types"
)

func statement() *invoice.Statement {
	line := invoice.Line{
		ResourceID:  1,
		Name:        "CPU",
		Quantity:    decimal.NewFromInt(2),
		CostPerHour: decimal.RequireFromString("1.5"),
		TimeHours:   decimal.NewFromInt(10),
		Total:       types.MoneyFromFloat(30),
	}
	return &invoice.Statement{
		Invoice: &invoice.Invoice{Number: "FAC-000001", ClientNIT: "12345-6", IssueDate: "31/01/2024"},
		Client:  invoice.StatementClient{NIT: "12345-6", Name: "Acme"},
		Instances: []invoice.InstanceGroup{{
			InstanceID:   1,
			InstanceName: "web-1",
			Resources:    []invoice.Line{line},
			Subtotal:     types.MoneyFromFloat(30),
		}},
		Total: types.MoneyFromFloat(30),
	}
}

func TestNewFillsDefaultCompany(t *testing.T) {
	r := New(Company{Address: "Zona 10"})
	assert.Equal(t, DefaultCompany.Name, r.company.Name)
	assert.Equal(t, "Zona 10", r.company.Address)
}

func TestRenderInvoice(t *testing.T) {
	data, err := New(Company{}).RenderInvoice(statement())
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF")))

	_, err = New(Company{}).RenderInvoice(nil)
	assert.Error(t, err)
}

func TestRenderSalesAnalysis(t *testing.T) {
	r := New(Company{})
	r.now = func() time.Time { return time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC) }

	tests := []struct {
		name   string
		result *analysis.Result
	}{
		{"categories", &analysis.Result{
			ID:    id.NewReportID(),
			Mode:  analysis.ModeCategories,
			Start: "01/01/2024",
			End:   "31/01/2024",
			Total: types.MoneyFromFloat(38),
			Items: []analysis.Item{
				{Name: "Web - Small", Description: "Servidor", Revenue: types.MoneyFromFloat(30), Percentage: decimal.RequireFromString("78.947")},
				{Name: "Web - Licensed", Revenue: types.MoneyFromFloat(8), Percentage: decimal.RequireFromString("21.053")},
			},
		}},
		{"empty resources", &analysis.Result{Mode: analysis.ModeResources, Total: types.Zero()}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := r.RenderSalesAnalysis(tt.result)
			require.NoError(t, err)
			assert.True(t, bytes.HasPrefix(data, []byte("%PDF")))
		})
	}
}

func TestPercent(t *testing.T) {
	assert.Equal(t, "52.6%", percent(decimal.RequireFromString("52.6315")))
	assert.Equal(t, "0.0%", percent(decimal.Zero))
}

func TestFormatterWritesPDF(t *testing.T) {
	f := NewFormatter(New(Company{}))
	assert.Equal(t, "pdf", f.Format())

	var buf bytes.Buffer
	require.NoError(t, f.Render(context.Background(), statement(), &buf))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF")))
}
