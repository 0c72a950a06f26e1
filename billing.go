package cloudbill

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/xraph/cloudbill/analysis"
	"github.com/xraph/cloudbill/consumption"
	"github.com/xraph/cloudbill/id"
	"github.com/xraph/cloudbill/invoice"
	"github.com/xraph/cloudbill/plugin"
	"github.com/xraph/cloudbill/types"
)

// GenerateInvoices bills every unbilled consumption dated within
// [start, end] ("dd/mm/yyyy", inclusive, time of day ignored). One invoice is
// issued per client, in order of first appearance, numbered after the
// invoices already stored. All invoices are computed before any is
// persisted; a run that fails leaves the store untouched.
func (e *Engine) GenerateInvoices(ctx context.Context, start, end string) ([]*invoice.Invoice, error) {
	from, to, err := parseRange(start, end)
	if err != nil {
		return nil, err
	}

	token, ok, err := e.locker.TryLock(ctx, generationLockKey, e.lockTTL)
	if err != nil {
		return nil, fmt.Errorf("cloudbill: acquire generation lock: %w", err)
	}
	if !ok {
		return nil, ErrGenerationInProgress
	}
	defer func() {
		if err := e.locker.Release(context.Background(), generationLockKey, token); err != nil {
			e.logger.Warn("failed to release generation lock", "error", err)
		}
	}()

	began := time.Now()

	pending, err := e.store.ListUnbilledConsumptions(ctx)
	if err != nil {
		return nil, err
	}

	var order []string
	byNIT := make(map[string][]*consumption.Consumption)
	for _, c := range pending {
		day, err := c.Day()
		if err != nil || !types.InRange(day, from, to) {
			continue
		}
		if _, seen := byNIT[c.NIT]; !seen {
			order = append(order, c.NIT)
		}
		byNIT[c.NIT] = append(byNIT[c.NIT], c)
	}

	if len(order) == 0 {
		e.logger.Info("no consumptions to bill", "start", start, "end", end)
		return []*invoice.Invoice{}, nil
	}

	existing, err := e.store.CountInvoices(ctx)
	if err != nil {
		return nil, err
	}

	runID := id.NewRunID()
	seq := existing + 1
	invoices := make([]*invoice.Invoice, 0, len(order))
	var dangling []plugin.DanglingReference
	var billed int

	for _, nit := range order {
		inv := &invoice.Invoice{
			Entity:      types.NewEntity(),
			ID:          id.NewInvoiceID(),
			Number:      invoice.FormatNumber(seq),
			ClientNIT:   nit,
			IssueDate:   types.FormatDay(to),
			PeriodStart: types.FormatDay(from),
			Total:       types.Zero(),
			RunID:       runID,
		}
		seq++

		for _, c := range byNIT[nit] {
			cost, err := e.resolver.Calculate(ctx, c)
			if err != nil {
				return nil, fmt.Errorf("cloudbill: price consumption %d: %w", c.ID, err)
			}
			if cost.Dangling() {
				dangling = append(dangling, plugin.DanglingReference{
					ConsumptionID:    c.ID,
					NIT:              c.NIT,
					InstanceID:       c.InstanceID,
					Resolution:       string(cost.Resolution),
					SkippedResources: cost.SkippedResources,
				})
			}

			inv.Total = inv.Total.Add(cost.Total)
			inv.ConsumptionIDs = append(inv.ConsumptionIDs, c.ID)
			inv.Details = append(inv.Details, invoice.Detail{
				ConsumptionID: c.ID,
				InstanceID:    c.InstanceID,
				TimeHours:     c.TimeHours,
				DateTime:      c.DateTime,
				Cost:          cost.Total,
				Resources:     cost.Lines,
			})
			billed++
		}

		invoices = append(invoices, inv)
	}

	if err := e.store.CommitInvoices(ctx, invoices); err != nil {
		return nil, err
	}

	for _, ref := range dangling {
		e.logger.Warn("consumption billed with missing references",
			"consumption_id", ref.ConsumptionID,
			"nit", ref.NIT,
			"instance_id", ref.InstanceID,
			"resolution", ref.Resolution,
			"skipped_resources", ref.SkippedResources,
		)
		e.plugins.EmitDanglingReference(ctx, ref)
	}

	total := types.Zero()
	for _, inv := range invoices {
		total = total.Add(inv.Total)
		e.plugins.EmitInvoiceGenerated(ctx, inv)
		e.logger.Info("invoice generated",
			"invoice_number", inv.Number,
			"nit", inv.ClientNIT,
			"consumptions", len(inv.ConsumptionIDs),
			"total", inv.Total.String(),
		)
	}

	e.plugins.EmitGenerationCompleted(ctx, plugin.GenerationSummary{
		RunID:        runID,
		Start:        types.FormatDay(from),
		End:          types.FormatDay(to),
		Invoices:     len(invoices),
		Consumptions: billed,
		Total:        total,
		Elapsed:      time.Since(began),
	})

	return invoices, nil
}

// InvoiceDetail regroups a stored invoice per instance and attaches the
// client's addressee data. Instance names come from the current client
// record; a client that no longer exists is shown by NIT only.
func (e *Engine) InvoiceDetail(ctx context.Context, number string) (*invoice.Statement, error) {
	inv, err := e.store.GetInvoice(ctx, number)
	if err != nil {
		return nil, err
	}

	stmt := &invoice.Statement{
		Invoice: inv,
		Client:  invoice.StatementClient{NIT: inv.ClientNIT},
		Total:   inv.Total,
	}

	names := make(map[int64]string)
	cl, err := e.store.GetClient(ctx, inv.ClientNIT)
	switch {
	case err == nil:
		stmt.Client.Name = cl.Name
		stmt.Client.Address = cl.Address
		stmt.Client.Email = cl.Email
		for _, in := range cl.Instances {
			names[in.ID] = in.Name
		}
	case !IsNotFound(err):
		return nil, err
	}

	stmt.Instances = inv.Group(names)
	return stmt, nil
}

// RenderInvoice writes an invoice through the formatter plugin registered
// for format.
func (e *Engine) RenderInvoice(ctx context.Context, number, format string, w io.Writer) error {
	f := e.plugins.GetInvoiceFormatter(format)
	if f == nil {
		return ValidationError{Field: "format", Message: fmt.Sprintf("no invoice formatter for %q", format)}
	}

	stmt, err := e.InvoiceDetail(ctx, number)
	if err != nil {
		return err
	}
	return f.Render(ctx, stmt, w)
}

// AnalyzeSales reports revenue of the invoices issued within [start, end].
// An empty bound leaves that side of the range open.
func (e *Engine) AnalyzeSales(ctx context.Context, mode, start, end string) (*analysis.Result, error) {
	m, ok := analysis.ParseMode(mode)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAnalysisMode, mode)
	}

	var opts invoice.ListOpts
	if start != "" {
		from, err := types.ParseDay(start)
		if err != nil {
			return nil, ValidationError{Field: "start_date", Message: err.Error()}
		}
		opts.Start = from
	}
	if end != "" {
		to, err := types.ParseDay(end)
		if err != nil {
			return nil, ValidationError{Field: "end_date", Message: err.Error()}
		}
		opts.End = to
	}

	invoices, err := e.store.ListInvoices(ctx, opts)
	if err != nil {
		return nil, err
	}

	result, err := e.analyzer.Analyze(ctx, invoices, m)
	if err != nil {
		return nil, err
	}
	if !opts.Start.IsZero() {
		result.Start = types.FormatDay(opts.Start)
	}
	if !opts.End.IsZero() {
		result.End = types.FormatDay(opts.End)
	}
	return result, nil
}

// AnalyzeInvoices reports revenue of a caller-selected invoice list.
func (e *Engine) AnalyzeInvoices(ctx context.Context, invoices []*invoice.Invoice, mode analysis.Mode) (*analysis.Result, error) {
	if _, ok := analysis.ParseMode(string(mode)); !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAnalysisMode, mode)
	}
	return e.analyzer.Analyze(ctx, invoices, mode)
}
