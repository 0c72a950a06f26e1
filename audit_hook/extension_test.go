package audithook

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/cloudbill/consumption"
	"github.com/xraph/cloudbill/invoice"
	"github.com/xraph/cloudbill/plugin"
	"github.com/xraph/cloudbill/types"
)

func collect(events *[]*AuditEvent) Recorder {
	return RecorderFunc(func(_ context.Context, event *AuditEvent) error {
		*events = append(*events, event)
		return nil
	})
}

func TestExtensionRecordsEvents(t *testing.T) {
	ctx := context.Background()
	var events []*AuditEvent
	ext := New(collect(&events))

	require.NoError(t, ext.OnConsumptionRecorded(ctx, &consumption.Consumption{
		ID:         7,
		NIT:        "12345-6",
		InstanceID: 1,
		TimeHours:  decimal.NewFromInt(10),
		DateTime:   "05/01/2024 10:30",
	}))
	require.NoError(t, ext.OnInvoiceGenerated(ctx, &invoice.Invoice{
		Number:         "FAC-000001",
		ClientNIT:      "12345-6",
		Total:          types.MoneyFromFloat(30),
		ConsumptionIDs: []int64{7},
	}))
	require.NoError(t, ext.OnDanglingReference(ctx, plugin.DanglingReference{ConsumptionID: 8, Resolution: "instance_missing"}))

	require.Len(t, events, 3)

	assert.Equal(t, ActionConsumptionRecorded, events[0].Action)
	assert.Equal(t, "7", events[0].ResourceID)
	assert.Equal(t, "10", events[0].Metadata["time_hours"])

	assert.Equal(t, ActionInvoiceGenerated, events[1].Action)
	assert.Equal(t, "FAC-000001", events[1].ResourceID)
	assert.Equal(t, "30.00", events[1].Metadata["total"])
	assert.Equal(t, CategoryBilling, events[1].Category)

	assert.Equal(t, ActionDanglingReference, events[2].Action)
	assert.Equal(t, SeverityWarning, events[2].Severity)
	assert.Equal(t, OutcomePartial, events[2].Outcome)
}

func TestExtensionActionFilters(t *testing.T) {
	ctx := context.Background()

	var enabled []*AuditEvent
	ext := New(collect(&enabled), WithEnabledActions(ActionStoreReset))
	require.NoError(t, ext.OnClientsUpserted(ctx, 2))
	require.NoError(t, ext.OnStoreReset(ctx))
	require.Len(t, enabled, 1)
	assert.Equal(t, ActionStoreReset, enabled[0].Action)

	var disabled []*AuditEvent
	ext = New(collect(&disabled), WithDisabledActions(ActionConsumptionRecorded))
	require.NoError(t, ext.OnConsumptionRecorded(ctx, &consumption.Consumption{ID: 1}))
	require.NoError(t, ext.OnCatalogUpserted(ctx, 1, 1))
	require.Len(t, disabled, 1)
	assert.Equal(t, ActionCatalogUpserted, disabled[0].Action)
}

func TestExtensionSwallowsRecorderErrors(t *testing.T) {
	ext := New(RecorderFunc(func(context.Context, *AuditEvent) error {
		return errors.New("backend down")
	}))
	assert.NoError(t, ext.OnStoreReset(context.Background()))
}
