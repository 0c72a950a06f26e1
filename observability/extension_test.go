package observability

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/cloudbill/consumption"
	"github.com/xraph/cloudbill/invoice"
	"github.com/xraph/cloudbill/plugin"
	"github.com/xraph/cloudbill/types"
)

func TestMetricsExtensionCountsHooks(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	factory := NewPrometheusFactory(reg)
	m := NewMetricsExtension(factory)

	require.NoError(t, m.OnCatalogUpserted(ctx, 3, 2))
	require.NoError(t, m.OnClientsUpserted(ctx, 4))
	require.NoError(t, m.OnConsumptionRecorded(ctx, &consumption.Consumption{TimeHours: decimal.NewFromInt(10)}))
	require.NoError(t, m.OnInvoiceGenerated(ctx, &invoice.Invoice{Total: types.MoneyFromFloat(30)}))
	require.NoError(t, m.OnGenerationCompleted(ctx, plugin.GenerationSummary{Invoices: 1, Consumptions: 5, Elapsed: time.Millisecond}))
	require.NoError(t, m.OnDanglingReference(ctx, plugin.DanglingReference{ConsumptionID: 1}))
	require.NoError(t, m.OnStoreReset(ctx))

	counter := func(name string) float64 {
		return testutil.ToFloat64(factory.Counter(name).(prometheus.Counter))
	}
	assert.Equal(t, 3.0, counter("cloudbill.catalog.resources.upserted"))
	assert.Equal(t, 2.0, counter("cloudbill.catalog.categories.upserted"))
	assert.Equal(t, 4.0, counter("cloudbill.clients.upserted"))
	assert.Equal(t, 1.0, counter("cloudbill.consumption.recorded"))
	assert.Equal(t, 1.0, counter("cloudbill.invoice.generated"))
	assert.Equal(t, 1.0, counter("cloudbill.generation.runs"))
	assert.Equal(t, 5.0, counter("cloudbill.generation.consumptions_billed"))
	assert.Equal(t, 1.0, counter("cloudbill.consumption.dangling_references"))
	assert.Equal(t, 1.0, counter("cloudbill.store.resets"))

	count, err := testutil.GatherAndCount(reg, "cloudbill_invoice_total_amount", "cloudbill_consumption_hours")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestPrometheusFactoryReusesCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()

	first := NewPrometheusFactory(reg).Counter("cloudbill.invoice.generated")
	first.Inc()

	// A second factory on the same registry shares the registered collector.
	second := NewPrometheusFactory(reg).Counter("cloudbill.invoice.generated")
	second.Inc()

	assert.Equal(t, 2.0, testutil.ToFloat64(first.(prometheus.Counter)))
	assert.Equal(t, "cloudbill_invoice_generated", metricName("cloudbill.invoice.generated"))
}
