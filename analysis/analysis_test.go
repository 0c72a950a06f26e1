package analysis_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/cloudbill"
	"github.com/xraph/cloudbill/analysis"
	"github.com/xraph/cloudbill/catalog"
	"github.com/xraph/cloudbill/client"
	"github.com/xraph/cloudbill/consumption"
	"github.com/xraph/cloudbill/id"
	"github.com/xraph/cloudbill/invoice"
	"github.com/xraph/cloudbill/store/memory"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func seed(t *testing.T) (*memory.Store, []*invoice.Invoice) {
	t.Helper()
	ctx := context.Background()
	s := memory.New()

	require.NoError(t, s.UpsertResources(ctx, []*catalog.Resource{
		{ID: 1, Name: "CPU", Type: catalog.ResourceHardware, ValuePerHour: dec("5")},
		{ID: 2, Name: "OS", Type: catalog.ResourceSoftware, ValuePerHour: dec("1")},
	}))
	require.NoError(t, s.UpsertCategories(ctx, []*catalog.Category{
		{ID: 1, Name: "Web", Description: "web hosting", Configurations: []catalog.Configuration{
			{ID: 10, Name: "Small", Resources: []catalog.ConfigurationResource{
				{ResourceID: 1, Quantity: dec("1")},
				{ResourceID: 2, Quantity: dec("1")},
			}},
		}},
		{ID: 2, Name: "DB", Configurations: []catalog.Configuration{
			{ID: 20, Name: "Large", Description: "big database", Resources: []catalog.ConfigurationResource{
				{ResourceID: 1, Quantity: dec("4")},
			}},
		}},
	}))
	require.NoError(t, s.UpsertClients(ctx, []*client.Client{{
		NIT: "12345-6",
		Instances: []client.Instance{
			{ID: 1, ConfigurationID: 10},
			{ID: 2, ConfigurationID: 20},
			{ID: 3, ConfigurationID: 999},
		},
	}}))

	for _, r := range []consumption.Record{
		{NIT: "12345-6", InstanceID: 1, TimeHours: dec("2"), DateTime: "01/03/2024"}, // web: 12
		{NIT: "12345-6", InstanceID: 2, TimeHours: dec("1"), DateTime: "01/03/2024"}, // db: 20
		{NIT: "12345-6", InstanceID: 3, TimeHours: dec("9"), DateTime: "01/03/2024"}, // dangling
		{NIT: "12345-6", InstanceID: 1, TimeHours: dec("1"), DateTime: "02/03/2024"}, // web: 6
	} {
		_, err := s.AppendConsumption(ctx, r)
		require.NoError(t, err)
	}

	invoices := []*invoice.Invoice{
		{Number: "FAC-000001", ConsumptionIDs: []int64{1, 2, 3}},
		{Number: "FAC-000002", ConsumptionIDs: []int64{4, 404}},
	}
	return s, invoices
}

func TestAnalyzeCategories(t *testing.T) {
	s, invoices := seed(t)
	a := analysis.New(s, cloudbill.IsNotFound)

	res, err := a.Analyze(context.Background(), invoices, analysis.ModeCategories)
	require.NoError(t, err)

	require.Len(t, res.Items, 2)
	assert.Equal(t, "DB - Large", res.Items[0].Name)
	assert.Equal(t, "big database", res.Items[0].Description)
	assert.Equal(t, "20.00", res.Items[0].Revenue.FormatMajor())

	assert.Equal(t, "Web - Small", res.Items[1].Name)
	assert.Equal(t, "web hosting", res.Items[1].Description)
	assert.Equal(t, "18.00", res.Items[1].Revenue.FormatMajor())

	assert.Equal(t, "38.00", res.Total.FormatMajor())
	assert.Equal(t, "52.63", res.Items[0].Percentage.StringFixed(2))
	assert.Equal(t, 2, res.Invoices)
}

func TestAnalyzeResources(t *testing.T) {
	s, invoices := seed(t)
	a := analysis.New(s, cloudbill.IsNotFound)

	res, err := a.Analyze(context.Background(), invoices, analysis.ModeResources)
	require.NoError(t, err)

	require.Len(t, res.Items, 2)
	assert.Equal(t, "CPU", res.Items[0].Name)
	assert.Equal(t, "Hardware", res.Items[0].Description)
	assert.Equal(t, "35.00", res.Items[0].Revenue.FormatMajor())
	assert.Equal(t, "OS", res.Items[1].Name)
	assert.Equal(t, "Software", res.Items[1].Description)
	assert.Equal(t, "3.00", res.Items[1].Revenue.FormatMajor())

	sum := decimal.Zero
	for _, it := range res.Items {
		sum = sum.Add(it.Percentage)
	}
	assert.True(t, sum.Round(6).Equal(decimal.NewFromInt(100)))
}

func TestAnalyzeEmpty(t *testing.T) {
	s, _ := seed(t)
	a := analysis.New(s, cloudbill.IsNotFound)

	res, err := a.Analyze(context.Background(), nil, analysis.ModeCategories)
	require.NoError(t, err)
	assert.Empty(t, res.Items)
	assert.True(t, res.Total.IsZero())
	assert.Equal(t, id.PrefixReport, res.ID.Prefix())

	again, err := a.Analyze(context.Background(), nil, analysis.ModeCategories)
	require.NoError(t, err)
	assert.NotEqual(t, res.ID.String(), again.ID.String())
}

func TestAnalyzeTiesKeepFirstSeenOrder(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	require.NoError(t, s.UpsertResources(ctx, []*catalog.Resource{
		{ID: 1, Name: "B", ValuePerHour: dec("1")},
		{ID: 2, Name: "A", ValuePerHour: dec("1")},
	}))
	require.NoError(t, s.UpsertCategories(ctx, []*catalog.Category{{ID: 1, Name: "X", Configurations: []catalog.Configuration{
		{ID: 1, Name: "c", Resources: []catalog.ConfigurationResource{
			{ResourceID: 1, Quantity: dec("1")},
			{ResourceID: 2, Quantity: dec("1")},
		}},
	}}}))
	require.NoError(t, s.UpsertClients(ctx, []*client.Client{{NIT: "1-1", Instances: []client.Instance{{ID: 1, ConfigurationID: 1}}}}))
	_, err := s.AppendConsumption(ctx, consumption.Record{NIT: "1-1", InstanceID: 1, TimeHours: dec("1"), DateTime: "01/01/2024"})
	require.NoError(t, err)

	res, err := analysis.New(s, cloudbill.IsNotFound).Analyze(ctx, []*invoice.Invoice{{ConsumptionIDs: []int64{1}}}, analysis.ModeResources)
	require.NoError(t, err)
	require.Len(t, res.Items, 2)
	assert.Equal(t, "B", res.Items[0].Name)
	assert.Equal(t, "A", res.Items[1].Name)
}

func TestParseMode(t *testing.T) {
	m, ok := analysis.ParseMode("Categories")
	assert.True(t, ok)
	assert.Equal(t, analysis.ModeCategories, m)
	_, ok = analysis.ParseMode("clients")
	assert.False(t, ok)
}
