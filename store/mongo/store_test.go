package mongo

import (
	"context"
	"os"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	"github.com/xraph/cloudbill/consumption"
	"github.com/xraph/cloudbill/invoice"
)

// newTestStore connects to CLOUDBILL_TEST_MONGO_URI, which must point at a
// replica set, and empties the cloudbill collections.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	uri := os.Getenv("CLOUDBILL_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("CLOUDBILL_TEST_MONGO_URI not set")
	}
	ctx := context.Background()

	mdb := mongodriver.New()
	require.NoError(t, mdb.Open(ctx, uri))
	db, err := grove.Open(mdb)
	require.NoError(t, err)

	s := New(db)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Migrate(ctx))
	require.NoError(t, s.Reset(ctx))
	return s
}

func TestCommitInvoicesRollsBack(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	for i := 0; i < 2; i++ {
		_, err := s.AppendConsumption(ctx, consumption.Record{
			NIT: "12345-6", InstanceID: 1, TimeHours: decimal.NewFromInt(1), DateTime: "01/03/2024",
		})
		require.NoError(t, err)
	}

	err := s.CommitInvoices(ctx, []*invoice.Invoice{
		{Number: "FAC-000001", ConsumptionIDs: []int64{1}},
		{Number: "INV-2", ConsumptionIDs: []int64{2}},
	})
	require.Error(t, err)

	n, err := s.CountInvoices(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	unbilled, err := s.ListUnbilledConsumptions(ctx)
	require.NoError(t, err)
	assert.Len(t, unbilled, 2)
}
