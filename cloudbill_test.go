package cloudbill_test

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/cloudbill"
	"github.com/xraph/cloudbill/catalog"
	"github.com/xraph/cloudbill/client"
	"github.com/xraph/cloudbill/consumption"
	"github.com/xraph/cloudbill/ingest"
	"github.com/xraph/cloudbill/invoice"
	"github.com/xraph/cloudbill/plugin"
	"github.com/xraph/cloudbill/rating"
	"github.com/xraph/cloudbill/store/memory"
	"github.com/xraph/cloudbill/types"
)

// recorder captures the hooks fired during a test.
type recorder struct {
	mu        sync.Mutex
	generated []string
	dangling  []plugin.DanglingReference
	runs      []plugin.GenerationSummary
	recorded  int
	resets    int
}

func (r *recorder) Name() string { return "recorder" }

func (r *recorder) OnInvoiceGenerated(_ context.Context, inv *invoice.Invoice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.generated = append(r.generated, inv.Number)
	return nil
}

func (r *recorder) OnDanglingReference(_ context.Context, ref plugin.DanglingReference) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dangling = append(r.dangling, ref)
	return nil
}

func (r *recorder) OnGenerationCompleted(_ context.Context, run plugin.GenerationSummary) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, run)
	return nil
}

func (r *recorder) OnConsumptionRecorded(_ context.Context, _ *consumption.Consumption) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recorded++
	return nil
}

func (r *recorder) OnStoreReset(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resets++
	return nil
}

// textFormatter renders a one-line summary per instance.
type textFormatter struct{}

func (textFormatter) Name() string   { return "text-formatter" }
func (textFormatter) Format() string { return "text" }

func (textFormatter) Render(_ context.Context, stmt *invoice.Statement, w io.Writer) error {
	for _, g := range stmt.Instances {
		if _, err := fmt.Fprintf(w, "%s %s\n", g.InstanceName, g.Subtotal.FormatMajor()); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "total %s\n", stmt.Total.FormatMajor())
	return err
}

// busyLocker never grants the lock.
type busyLocker struct{}

func (busyLocker) TryLock(context.Context, string, time.Duration) (string, bool, error) {
	return "", false, nil
}

func (busyLocker) Release(context.Context, string, string) error { return nil }

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// newEngine loads R1 (1.50/h), R2 (0.50/h) and configuration C1 = 2×R1 into
// a memory store, with clients 12345-6 (instance 1) and 7788-K (instance 2).
func newEngine(t *testing.T, opts ...cloudbill.Option) (*cloudbill.Engine, *memory.Store, *recorder) {
	t.Helper()

	ctx := context.Background()
	s := memory.New()
	rec := &recorder{}
	opts = append([]cloudbill.Option{cloudbill.WithPlugin(rec)}, opts...)
	e := cloudbill.New(s, opts...)
	require.NoError(t, e.Start(ctx))
	t.Cleanup(func() { _ = e.Stop() })

	require.NoError(t, e.UpsertCatalog(ctx,
		[]*catalog.Resource{
			{ID: 1, Name: "CPU", Type: catalog.ResourceHardware, ValuePerHour: dec("1.5")},
			{ID: 2, Name: "Licencia", Type: catalog.ResourceSoftware, ValuePerHour: dec("0.5")},
		},
		[]*catalog.Category{{
			ID:   1,
			Name: "Web",
			Configurations: []catalog.Configuration{
				{ID: 1, Name: "Small", Resources: []catalog.ConfigurationResource{{ResourceID: 1, Quantity: dec("2")}}},
				{ID: 2, Name: "Licensed", Resources: []catalog.ConfigurationResource{
					{ResourceID: 1, Quantity: dec("1")},
					{ResourceID: 2, Quantity: dec("1")},
				}},
			},
		}},
	))
	require.NoError(t, e.UpsertClients(ctx, []*client.Client{
		{NIT: "12345-6", Name: "Acme", Address: "Ciudad", Instances: []client.Instance{
			{ID: 1, ConfigurationID: 1, Name: "web-1", StartDate: "01/01/2024", Status: client.StatusActive},
		}},
		{NIT: "7788-k", Name: "Globex", Instances: []client.Instance{
			{ID: 2, ConfigurationID: 2, Name: "app-1", StartDate: "01/01/2024", Status: client.StatusActive},
		}},
	}))

	return e, s, rec
}

func consume(t *testing.T, e *cloudbill.Engine, nit string, instance int64, hours, date string) *consumption.Consumption {
	t.Helper()
	c, err := e.RecordConsumption(context.Background(), consumption.Record{
		NIT:        nit,
		InstanceID: instance,
		TimeHours:  dec(hours),
		DateTime:   date,
	})
	require.NoError(t, err)
	return c
}

func TestUpsertCatalogConflictWritesNothing(t *testing.T) {
	ctx := context.Background()
	e, s, _ := newEngine(t)

	err := e.UpsertCatalog(ctx,
		[]*catalog.Resource{
			{ID: 1, Name: "vCPU", Type: catalog.ResourceHardware, ValuePerHour: dec("9")},
			{ID: 3, Name: "Disco", Type: catalog.ResourceHardware, ValuePerHour: dec("0.1")},
		},
		[]*catalog.Category{{
			ID:             2,
			Name:           "DB",
			Configurations: []catalog.Configuration{{ID: 1, Name: "Stolen"}},
		}},
	)
	require.Error(t, err)
	assert.ErrorIs(t, err, cloudbill.ErrConfigurationConflict)

	r, err := s.GetResource(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "CPU", r.Name)
	_, err = s.GetResource(ctx, 3)
	assert.ErrorIs(t, err, cloudbill.ErrResourceNotFound)
	_, err = s.GetCategory(ctx, 2)
	assert.ErrorIs(t, err, cloudbill.ErrCategoryNotFound)
}

func TestGenerateInvoicesScenario(t *testing.T) {
	ctx := context.Background()
	e, _, rec := newEngine(t)

	consume(t, e, "12345-6", 1, "10", "05/01/2024 10:30")

	invoices, err := e.GenerateInvoices(ctx, "01/01/2024", "31/01/2024")
	require.NoError(t, err)
	require.Len(t, invoices, 1)

	inv := invoices[0]
	assert.Equal(t, "FAC-000001", inv.Number)
	assert.Equal(t, "12345-6", inv.ClientNIT)
	assert.Equal(t, "31/01/2024", inv.IssueDate)
	assert.Equal(t, "01/01/2024", inv.PeriodStart)
	assert.True(t, inv.Total.Equal(types.MoneyFromFloat(30)), "total = %s", inv.Total)
	assert.Equal(t, []int64{1}, inv.ConsumptionIDs)
	require.Len(t, inv.Details, 1)
	require.Len(t, inv.Details[0].Resources, 1)
	assert.Equal(t, "CPU", inv.Details[0].Resources[0].Name)

	again, err := e.GenerateInvoices(ctx, "01/01/2024", "31/01/2024")
	require.NoError(t, err)
	assert.NotNil(t, again)
	assert.Empty(t, again)

	assert.Equal(t, []string{"FAC-000001"}, rec.generated)
	require.Len(t, rec.runs, 1)
	assert.Equal(t, 1, rec.runs[0].Invoices)
	assert.Equal(t, 1, rec.runs[0].Consumptions)
}

func TestGenerateInvoicesContinuesNumbering(t *testing.T) {
	ctx := context.Background()
	e, s, _ := newEngine(t)

	for i := 1; i <= 5; i++ {
		require.NoError(t, s.CreateInvoice(ctx, &invoice.Invoice{
			Number:    invoice.FormatNumber(i),
			ClientNIT: "12345-6",
			IssueDate: "31/12/2023",
			Total:     types.Zero(),
		}))
	}
	consume(t, e, "12345-6", 1, "1", "02/01/2024")
	consume(t, e, "7788-K", 2, "1", "02/01/2024")

	invoices, err := e.GenerateInvoices(ctx, "01/01/2024", "31/01/2024")
	require.NoError(t, err)
	require.Len(t, invoices, 2)
	assert.Equal(t, "FAC-000006", invoices[0].Number)
	assert.Equal(t, "FAC-000007", invoices[1].Number)
}

func TestGenerateInvoicesGroupsByClientInOrder(t *testing.T) {
	ctx := context.Background()
	e, _, _ := newEngine(t)

	consume(t, e, "7788-K", 2, "2", "03/01/2024")
	consume(t, e, "12345-6", 1, "1", "04/01/2024")
	consume(t, e, "7788-K", 2, "3", "05/01/2024")

	invoices, err := e.GenerateInvoices(ctx, "01/01/2024", "31/01/2024")
	require.NoError(t, err)
	require.Len(t, invoices, 2)

	assert.Equal(t, "7788-K", invoices[0].ClientNIT)
	assert.Equal(t, []int64{1, 3}, invoices[0].ConsumptionIDs)
	// (1.5 + 0.5) × 5h
	assert.Equal(t, "10.00", invoices[0].Total.FormatMajor())

	assert.Equal(t, "12345-6", invoices[1].ClientNIT)
	assert.Equal(t, []int64{2}, invoices[1].ConsumptionIDs)
	assert.Equal(t, "3.00", invoices[1].Total.FormatMajor())
}

func TestGenerateInvoicesInclusiveBounds(t *testing.T) {
	ctx := context.Background()
	e, s, _ := newEngine(t)

	consume(t, e, "12345-6", 1, "1", "31/12/2023 23:59")
	consume(t, e, "12345-6", 1, "1", "01/01/2024 00:00")
	consume(t, e, "12345-6", 1, "1", "31/01/2024 23:59")
	consume(t, e, "12345-6", 1, "1", "01/02/2024 00:00")
	consume(t, e, "12345-6", 1, "1", "sin fecha")

	invoices, err := e.GenerateInvoices(ctx, "01/01/2024", "31/01/2024")
	require.NoError(t, err)
	require.Len(t, invoices, 1)
	assert.Equal(t, []int64{2, 3}, invoices[0].ConsumptionIDs)

	unbilled, err := s.ListUnbilledConsumptions(ctx)
	require.NoError(t, err)
	ids := make([]int64, 0, len(unbilled))
	for _, c := range unbilled {
		ids = append(ids, c.ID)
	}
	assert.Equal(t, []int64{1, 4, 5}, ids)
}

func TestGenerateInvoicesReversedRangeIsEmpty(t *testing.T) {
	ctx := context.Background()
	e, _, _ := newEngine(t)
	consume(t, e, "12345-6", 1, "1", "15/01/2024")

	invoices, err := e.GenerateInvoices(ctx, "31/01/2024", "01/01/2024")
	require.NoError(t, err)
	assert.Empty(t, invoices)
}

func TestGenerateInvoicesDanglingInstance(t *testing.T) {
	ctx := context.Background()
	e, s, rec := newEngine(t)

	consume(t, e, "12345-6", 1, "10", "05/01/2024")
	consume(t, e, "12345-6", 99, "10", "06/01/2024")

	invoices, err := e.GenerateInvoices(ctx, "01/01/2024", "31/01/2024")
	require.NoError(t, err)
	require.Len(t, invoices, 1)
	assert.Equal(t, []int64{1, 2}, invoices[0].ConsumptionIDs)
	assert.Equal(t, "30.00", invoices[0].Total.FormatMajor())
	assert.True(t, invoices[0].Details[1].Cost.IsZero())
	assert.Empty(t, invoices[0].Details[1].Resources)

	c, err := s.GetConsumption(ctx, 2)
	require.NoError(t, err)
	assert.True(t, c.Billed)

	require.Len(t, rec.dangling, 1)
	assert.Equal(t, int64(2), rec.dangling[0].ConsumptionID)
	assert.Equal(t, string(rating.InstanceMissing), rec.dangling[0].Resolution)
}

func TestGenerateInvoicesConservation(t *testing.T) {
	ctx := context.Background()
	e, s, _ := newEngine(t)

	consume(t, e, "12345-6", 1, "1.25", "02/01/2024")
	consume(t, e, "7788-K", 2, "3.5", "03/01/2024")
	consume(t, e, "12345-6", 1, "0.75", "04/01/2024")
	consume(t, e, "7788-K", 42, "9", "05/01/2024")

	before, err := s.ListUnbilledConsumptions(ctx)
	require.NoError(t, err)
	expected := types.Zero()
	for _, c := range before {
		cost, err := e.CalculateConsumptionCost(ctx, c)
		require.NoError(t, err)
		expected = expected.Add(cost.Total)
	}

	invoices, err := e.GenerateInvoices(ctx, "01/01/2024", "31/01/2024")
	require.NoError(t, err)

	billed := types.Zero()
	for _, inv := range invoices {
		lines := types.Zero()
		for _, d := range inv.Details {
			lines = lines.Add(d.Cost)
		}
		assert.True(t, lines.Equal(inv.Total), "%s: details %s != total %s", inv.Number, lines, inv.Total)
		billed = billed.Add(inv.Total)
	}
	assert.True(t, expected.Equal(billed), "expected %s, billed %s", expected, billed)
}

func TestGenerateInvoicesBillsAtMostOnce(t *testing.T) {
	ctx := context.Background()
	e, s, _ := newEngine(t)

	for d := 1; d <= 20; d++ {
		consume(t, e, "12345-6", 1, "1", fmt.Sprintf("%02d/01/2024", d))
	}

	ranges := [][2]string{
		{"01/01/2024", "10/01/2024"},
		{"05/01/2024", "15/01/2024"},
		{"01/01/2024", "31/01/2024"},
		{"01/01/2024", "31/01/2024"},
	}
	for _, r := range ranges {
		_, err := e.GenerateInvoices(ctx, r[0], r[1])
		require.NoError(t, err)
	}

	all, err := s.ListInvoices(ctx, invoice.ListOpts{})
	require.NoError(t, err)
	require.Len(t, all, 2)

	seen := map[int64]string{}
	for _, inv := range all {
		for _, id := range inv.ConsumptionIDs {
			prev, dup := seen[id]
			assert.False(t, dup, "consumption %d billed by %s and %s", id, prev, inv.Number)
			seen[id] = inv.Number
		}
	}
	assert.Len(t, seen, 20)
}

func TestGenerateInvoicesMalformedBound(t *testing.T) {
	ctx := context.Background()
	e, s, _ := newEngine(t)
	consume(t, e, "12345-6", 1, "1", "05/01/2024")

	for _, r := range [][2]string{{"2024-01-01", "31/01/2024"}, {"01/01/2024", "32/01/2024"}, {"", ""}} {
		_, err := e.GenerateInvoices(ctx, r[0], r[1])
		require.Error(t, err, "%v", r)
		assert.True(t, cloudbill.IsValidation(err), "%v: %v", r, err)
	}

	n, err := s.CountInvoices(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	unbilled, err := s.ListUnbilledConsumptions(ctx)
	require.NoError(t, err)
	assert.Len(t, unbilled, 1)
}

func TestGenerateInvoicesLockHeld(t *testing.T) {
	ctx := context.Background()
	e, s, _ := newEngine(t, cloudbill.WithLocker(busyLocker{}))
	consume(t, e, "12345-6", 1, "1", "05/01/2024")

	_, err := e.GenerateInvoices(ctx, "01/01/2024", "31/01/2024")
	require.ErrorIs(t, err, cloudbill.ErrGenerationInProgress)
	assert.True(t, cloudbill.IsConflict(err))

	n, err := s.CountInvoices(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestGenerateInvoicesConcurrentRuns(t *testing.T) {
	ctx := context.Background()
	e, s, _ := newEngine(t)
	for d := 1; d <= 9; d++ {
		consume(t, e, "12345-6", 1, "1", fmt.Sprintf("0%d/01/2024", d))
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.GenerateInvoices(ctx, "01/01/2024", "31/01/2024")
			if err != nil {
				assert.ErrorIs(t, err, cloudbill.ErrGenerationInProgress)
			}
		}()
	}
	wg.Wait()

	all, err := s.ListInvoices(ctx, invoice.ListOpts{})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Len(t, all[0].ConsumptionIDs, 9)
}

func TestRecordConsumptionValidation(t *testing.T) {
	ctx := context.Background()
	e, _, rec := newEngine(t)

	tests := []struct {
		name string
		rec  consumption.Record
	}{
		{"invalid nit", consumption.Record{NIT: "abc", InstanceID: 1, TimeHours: dec("1"), DateTime: "01/01/2024"}},
		{"negative hours", consumption.Record{NIT: "12345-6", InstanceID: 1, TimeHours: dec("-1"), DateTime: "01/01/2024"}},
		{"missing date", consumption.Record{NIT: "12345-6", InstanceID: 1, TimeHours: dec("1")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.RecordConsumption(ctx, tt.rec)
			require.Error(t, err)
			assert.True(t, cloudbill.IsValidation(err), "%v", err)
		})
	}

	c := consume(t, e, " 7788-k ", 2, "1", "fecha: 05/01/2024 9:05")
	assert.Equal(t, "7788-K", c.NIT)
	assert.Equal(t, "05/01/2024 09:05", c.DateTime)
	assert.Equal(t, 1, rec.recorded)
}

func TestCalculateConsumptionCostIsPure(t *testing.T) {
	ctx := context.Background()
	e, s, _ := newEngine(t)
	c := consume(t, e, "7788-K", 2, "4", "05/01/2024")

	cost, err := e.CalculateConsumptionCost(ctx, c)
	require.NoError(t, err)
	assert.Equal(t, "8.00", cost.Total.FormatMajor())
	require.Len(t, cost.Lines, 2)
	assert.Equal(t, int64(1), cost.Lines[0].ResourceID)
	assert.Equal(t, int64(2), cost.Lines[1].ResourceID)

	stored, err := s.GetConsumption(ctx, c.ID)
	require.NoError(t, err)
	assert.False(t, stored.Billed)
}

func TestInvoiceDetailAndRender(t *testing.T) {
	ctx := context.Background()
	e, _, _ := newEngine(t, cloudbill.WithPlugin(textFormatter{}))

	consume(t, e, "12345-6", 1, "2", "02/01/2024")
	consume(t, e, "12345-6", 1, "3", "03/01/2024")
	_, err := e.GenerateInvoices(ctx, "01/01/2024", "31/01/2024")
	require.NoError(t, err)

	stmt, err := e.InvoiceDetail(ctx, "FAC-000001")
	require.NoError(t, err)
	assert.Equal(t, "Acme", stmt.Client.Name)
	assert.Equal(t, "Ciudad", stmt.Client.Address)
	require.Len(t, stmt.Instances, 1)
	assert.Equal(t, "web-1", stmt.Instances[0].InstanceName)
	require.Len(t, stmt.Instances[0].Resources, 1)
	assert.Equal(t, "15.00", stmt.Instances[0].Subtotal.FormatMajor())
	assert.True(t, stmt.Instances[0].Resources[0].TimeHours.Equal(dec("5")))

	var buf bytes.Buffer
	require.NoError(t, e.RenderInvoice(ctx, "FAC-000001", "text", &buf))
	assert.Equal(t, "web-1 15.00\ntotal 15.00\n", buf.String())

	err = e.RenderInvoice(ctx, "FAC-000001", "docx", &buf)
	assert.True(t, cloudbill.IsValidation(err))

	_, err = e.InvoiceDetail(ctx, "FAC-000099")
	assert.True(t, cloudbill.IsNotFound(err))
}

func TestAnalyzeSales(t *testing.T) {
	ctx := context.Background()
	e, _, _ := newEngine(t)

	consume(t, e, "12345-6", 1, "10", "05/01/2024")
	consume(t, e, "7788-K", 2, "4", "06/01/2024")
	_, err := e.GenerateInvoices(ctx, "01/01/2024", "31/01/2024")
	require.NoError(t, err)
	consume(t, e, "12345-6", 1, "10", "05/02/2024")
	_, err = e.GenerateInvoices(ctx, "01/02/2024", "29/02/2024")
	require.NoError(t, err)

	result, err := e.AnalyzeSales(ctx, "categories", "01/01/2024", "31/01/2024")
	require.NoError(t, err)
	assert.Equal(t, 2, result.Invoices)
	assert.Equal(t, "38.00", result.Total.FormatMajor())
	require.Len(t, result.Items, 2)
	assert.Equal(t, "Web - Small", result.Items[0].Name)
	assert.Equal(t, "30.00", result.Items[0].Revenue.FormatMajor())
	assert.Equal(t, "Web - Licensed", result.Items[1].Name)
	assert.Equal(t, "01/01/2024", result.Start)

	result, err = e.AnalyzeSales(ctx, "RESOURCES", "", "")
	require.NoError(t, err)
	assert.Equal(t, 3, result.Invoices)
	require.Len(t, result.Items, 2)
	assert.Equal(t, "CPU", result.Items[0].Name)
	assert.Equal(t, "66.00", result.Items[0].Revenue.FormatMajor())
	assert.Equal(t, "Software", result.Items[1].Description)

	_, err = e.AnalyzeSales(ctx, "clients", "", "")
	require.ErrorIs(t, err, cloudbill.ErrInvalidAnalysisMode)
	_, err = e.AnalyzeSales(ctx, "categories", "1-1-2024", "")
	assert.True(t, cloudbill.IsValidation(err))
}

func TestImportAndReset(t *testing.T) {
	ctx := context.Background()
	e, s, rec := newEngine(t)

	result, err := e.ImportConsumptions(ctx, strings.NewReader(`[
		{"nit": "12345-6", "instance_id": 1, "time_hours": 2, "date_time": "Registrado el 07/01/2024 08:15"},
		{"nit": "bad", "instance_id": 1, "time_hours": 2, "date_time": "07/01/2024"}
	]`), ingest.FormatJSON)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Counts.Consumptions)
	assert.Equal(t, 1, result.Counts.RejectedConsumptions)

	_, err = e.ImportConfiguration(ctx, strings.NewReader("<listaRecursos>"), ingest.FormatXML)
	assert.True(t, cloudbill.IsValidation(err))

	snap, err := e.Snapshot(ctx)
	require.NoError(t, err)
	sum := snap.Summary()
	assert.Equal(t, 2, sum.Resources)
	assert.Equal(t, 2, sum.Configurations)
	assert.Equal(t, 2, sum.Clients)
	assert.Equal(t, 1, sum.Consumptions)

	require.NoError(t, e.Reset(ctx))
	assert.Equal(t, 1, rec.resets)

	snap, err = e.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, snap.Summary().Clients)
	_, err = s.GetResource(ctx, 1)
	assert.True(t, cloudbill.IsNotFound(err))
}
