package postgres

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/cloudbill/catalog"
	"github.com/xraph/cloudbill/client"
	"github.com/xraph/cloudbill/invoice"
	"github.com/xraph/cloudbill/types"
)

func TestLastByKey(t *testing.T) {
	in := []*catalog.Resource{
		{ID: 1, Name: "CPU"},
		nil,
		{ID: 2, Name: "RAM"},
		{ID: 1, Name: "vCPU"},
	}

	out := lastByKey(in, func(r *catalog.Resource) int64 { return r.ID })

	require.Len(t, out, 2)
	assert.Equal(t, "vCPU", out[0].Name)
	assert.Equal(t, "RAM", out[1].Name)
}

func TestCategoryModel(t *testing.T) {
	c := &catalog.Category{
		ID:   5,
		Name: "DB",
		Configurations: []catalog.Configuration{
			{ID: 10, Name: "Large", Resources: []catalog.ConfigurationResource{
				{ResourceID: 2, Quantity: decimal.NewFromInt(8)},
			}},
		},
	}

	m, err := toCategoryModel(c, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(3), m.Position)

	got, err := fromCategoryModel(m)
	require.NoError(t, err)
	assert.Equal(t, int64(5), got.Configurations[0].CategoryID)
	assert.NotNil(t, got.FindConfiguration(10))
}

func TestClientModel(t *testing.T) {
	c := &client.Client{
		NIT:  "999-K",
		Name: "Beta",
		Instances: []client.Instance{
			{ID: 1, ConfigurationID: 10, Name: "db-1", Status: client.StatusCancelled, EndDate: "01/02/2024"},
		},
	}

	m, err := toClientModel(c, 1)
	require.NoError(t, err)

	got, err := fromClientModel(m)
	require.NoError(t, err)
	require.NotNil(t, got.FindInstance(1))
	assert.True(t, got.FindInstance(1).Cancelled())
}

func TestInvoiceModelSequence(t *testing.T) {
	inv := &invoice.Invoice{Number: "FAC-000123", Total: types.NewMoney(decimal.RequireFromString("45.5"))}

	m, err := toInvoiceModel(inv)
	require.NoError(t, err)
	assert.Equal(t, int64(123), m.Seq)

	got, err := fromInvoiceModel(m)
	require.NoError(t, err)
	assert.Equal(t, "45.50", got.Total.FormatMajor())
	assert.True(t, got.ID.IsNil())
}
