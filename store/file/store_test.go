package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/cloudbill/catalog"
	"github.com/xraph/cloudbill/client"
	"github.com/xraph/cloudbill/consumption"
	"github.com/xraph/cloudbill/invoice"
	"github.com/xraph/cloudbill/types"
)

func TestPersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "data", "cloudbill.json")

	s, err := New(path)
	require.NoError(t, err)
	require.NoError(t, s.Migrate(ctx))
	_, err = os.Stat(path)
	require.NoError(t, err)

	require.NoError(t, s.UpsertResources(ctx, []*catalog.Resource{
		{ID: 1, Name: "cpu", Type: catalog.ResourceHardware, ValuePerHour: decimal.RequireFromString("5.25")},
	}))
	require.NoError(t, s.UpsertCategories(ctx, []*catalog.Category{{
		ID: 1, Name: "web",
		Configurations: []catalog.Configuration{{ID: 10, Name: "small", Resources: []catalog.ConfigurationResource{
			{ResourceID: 1, Quantity: decimal.NewFromInt(2)},
		}}},
	}}))
	require.NoError(t, s.UpsertClients(ctx, []*client.Client{{
		NIT: "12345-6", Name: "Acme", Instances: []client.Instance{{ID: 1, ConfigurationID: 10}},
	}}))
	_, err = s.AppendConsumption(ctx, consumption.Record{
		NIT: "12345-6", InstanceID: 1, TimeHours: decimal.NewFromInt(3), DateTime: "01/03/2024 00:00",
	})
	require.NoError(t, err)
	_, err = s.AppendConsumption(ctx, consumption.Record{
		NIT: "12345-6", InstanceID: 1, TimeHours: decimal.NewFromInt(1), DateTime: "02/03/2024 00:00",
	})
	require.NoError(t, err)
	require.NoError(t, s.CommitInvoices(ctx, []*invoice.Invoice{{
		Number: "FAC-000001", ClientNIT: "12345-6", IssueDate: "31/03/2024",
		Total: types.NewMoney(decimal.RequireFromString("31.5")), ConsumptionIDs: []int64{1},
	}}))

	reopened, err := New(path)
	require.NoError(t, err)

	res, err := reopened.GetResource(ctx, 1)
	require.NoError(t, err)
	assert.True(t, res.ValuePerHour.Equal(decimal.RequireFromString("5.25")))

	cfg, err := reopened.GetConfiguration(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), cfg.CategoryID)

	unbilled, err := reopened.ListUnbilledConsumptions(ctx)
	require.NoError(t, err)
	require.Len(t, unbilled, 1)
	assert.Equal(t, int64(2), unbilled[0].ID)

	inv, err := reopened.GetInvoice(ctx, "FAC-000001")
	require.NoError(t, err)
	assert.Equal(t, "31.50", inv.Total.FormatMajor())
}

func TestFailedMutationDoesNotFlush(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cloudbill.json")

	s, err := New(path)
	require.NoError(t, err)
	require.NoError(t, s.Migrate(ctx))
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	assert.Error(t, s.MarkConsumptionsBilled(ctx, []int64{1}))

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestFailedFlushRollsBackMemory(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cloudbill.json")

	s, err := New(path)
	require.NoError(t, err)
	require.NoError(t, s.UpsertResources(ctx, []*catalog.Resource{{ID: 1, Name: "cpu"}}))

	// A directory in place of the temp file makes every write fail.
	require.NoError(t, os.Mkdir(path+".tmp", 0o755))

	err = s.UpsertResources(ctx, []*catalog.Resource{{ID: 1, Name: "vcpu"}, {ID: 2, Name: "ram"}})
	require.Error(t, err)
	_, err = s.AppendConsumption(ctx, consumption.Record{
		NIT: "12345-6", InstanceID: 1, TimeHours: decimal.NewFromInt(1), DateTime: "01/03/2024 00:00",
	})
	require.Error(t, err)

	res, err := s.GetResource(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "cpu", res.Name)
	_, err = s.GetResource(ctx, 2)
	assert.Error(t, err)
	list, err := s.ListConsumptions(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)

	require.NoError(t, os.Remove(path+".tmp"))
	c, err := s.AppendConsumption(ctx, consumption.Record{
		NIT: "12345-6", InstanceID: 1, TimeHours: decimal.NewFromInt(1), DateTime: "01/03/2024 00:00",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), c.ID)

	reopened, err := New(path)
	require.NoError(t, err)
	res, err = reopened.GetResource(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "cpu", res.Name)
}

func TestResetEmptiesDocument(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cloudbill.json")

	s, err := New(path)
	require.NoError(t, err)
	require.NoError(t, s.UpsertResources(ctx, []*catalog.Resource{{ID: 1, Name: "cpu"}}))
	require.NoError(t, s.Reset(ctx))

	reopened, err := New(path)
	require.NoError(t, err)
	list, err := reopened.ListResources(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestCorruptDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cloudbill.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := New(path)
	assert.Error(t, err)
}
