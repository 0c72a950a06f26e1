package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/pgdriver"
	_ "github.com/xraph/grove/drivers/pgdriver/pgmigrate"
	"github.com/xraph/grove/migrate"

	"github.com/xraph/cloudbill"
	"github.com/xraph/cloudbill/catalog"
	"github.com/xraph/cloudbill/client"
	"github.com/xraph/cloudbill/consumption"
	"github.com/xraph/cloudbill/invoice"
	billstore "github.com/xraph/cloudbill/store"
)

// compile-time interface check
var _ billstore.Store = (*Store)(nil)

// Store implements store.Store using PostgreSQL via Grove ORM.
//
// Every write that touches more than one row runs in a single transaction,
// so a failed upsert, billing mark, or invoice commit leaves no partial
// state behind.
type Store struct {
	db *grove.DB
	pg *pgdriver.PgDB
}

// New creates a new PostgreSQL store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db: db,
		pg: pgdriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// querier is satisfied by both the connection pool and an open transaction.
type querier interface {
	NewSelect(model ...any) *pgdriver.SelectQuery
	NewInsert(model any) *pgdriver.InsertQuery
	NewUpdate(model any) *pgdriver.UpdateQuery
	NewDelete(model any) *pgdriver.DeleteQuery
	NewRaw(query string, args ...any) *pgdriver.RawQuery
}

// inTx runs fn in a transaction. Any error from fn rolls everything back.
func (s *Store) inTx(ctx context.Context, fn func(q querier) error) error {
	tx, err := s.pg.BeginTxQuery(ctx, nil)
	if err != nil {
		return fmt.Errorf("cloudbill/postgres: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("cloudbill/postgres: commit: %w", err)
	}
	return nil
}

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.pg)
	if err != nil {
		return fmt.Errorf("cloudbill/postgres: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("cloudbill/postgres: migration failed: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Catalog Store ====================

func (s *Store) UpsertResources(ctx context.Context, resources []*catalog.Resource) error {
	resources = lastByKey(resources, func(r *catalog.Resource) int64 { return r.ID })
	if len(resources) == 0 {
		return nil
	}
	return s.inTx(ctx, func(q querier) error {
		next, err := nextPosition(ctx, q, "cloudbill_resources")
		if err != nil {
			return err
		}

		models := make([]resourceModel, len(resources))
		for i, r := range resources {
			models[i] = *toResourceModel(r, next+int64(i))
		}
		_, err = q.NewInsert(&models).
			MultiRow().
			OnConflict("(id) DO UPDATE").
			Set("name = EXCLUDED.name").
			Set("abbreviation = EXCLUDED.abbreviation").
			Set("metric = EXCLUDED.metric").
			Set("type = EXCLUDED.type").
			Set("value_per_hour = EXCLUDED.value_per_hour").
			Set("updated_at = EXCLUDED.updated_at").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("cloudbill/postgres: upsert resources: %w", err)
		}
		return nil
	})
}

func (s *Store) UpsertCategories(ctx context.Context, categories []*catalog.Category) error {
	categories = lastByKey(categories, func(c *catalog.Category) int64 { return c.ID })
	if len(categories) == 0 {
		return nil
	}

	return s.inTx(ctx, func(q querier) error {
		existing, err := listCategories(ctx, q)
		if err != nil {
			return err
		}
		owners := make(map[int64]int64)
		for _, c := range existing {
			for _, cfg := range c.Configurations {
				owners[cfg.ID] = c.ID
			}
		}
		if c := catalog.CheckOwnership(owners, categories); c != nil {
			return cloudbill.NewIntegrityError(cloudbill.ErrConfigurationConflict, c.String())
		}

		next, err := nextPosition(ctx, q, "cloudbill_categories")
		if err != nil {
			return err
		}
		models := make([]categoryModel, len(categories))
		for i, c := range categories {
			cp := c.Clone()
			cp.Own()
			m, err := toCategoryModel(cp, next+int64(i))
			if err != nil {
				return err
			}
			models[i] = *m
		}
		_, err = q.NewInsert(&models).
			MultiRow().
			OnConflict("(id) DO UPDATE").
			Set("name = EXCLUDED.name").
			Set("description = EXCLUDED.description").
			Set("workload = EXCLUDED.workload").
			Set("configurations = EXCLUDED.configurations").
			Set("updated_at = EXCLUDED.updated_at").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("cloudbill/postgres: upsert categories: %w", err)
		}
		return nil
	})
}

func (s *Store) GetResource(ctx context.Context, resourceID int64) (*catalog.Resource, error) {
	m := new(resourceModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", resourceID).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, cloudbill.ErrResourceNotFound
		}
		return nil, err
	}
	return fromResourceModel(m)
}

func (s *Store) GetCategory(ctx context.Context, categoryID int64) (*catalog.Category, error) {
	m := new(categoryModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", categoryID).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, cloudbill.ErrCategoryNotFound
		}
		return nil, err
	}
	return fromCategoryModel(m)
}

func (s *Store) GetConfiguration(ctx context.Context, configurationID int64) (*catalog.Configuration, error) {
	categories, err := s.ListCategories(ctx)
	if err != nil {
		return nil, err
	}
	for _, c := range categories {
		if cfg := c.FindConfiguration(configurationID); cfg != nil {
			return cfg, nil
		}
	}
	return nil, cloudbill.ErrConfigurationNotFound
}

func (s *Store) ListResources(ctx context.Context) ([]*catalog.Resource, error) {
	var models []resourceModel
	if err := s.pg.NewSelect(&models).OrderExpr("position ASC").Scan(ctx); err != nil {
		return nil, err
	}
	result := make([]*catalog.Resource, len(models))
	for i := range models {
		r, err := fromResourceModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = r
	}
	return result, nil
}

func (s *Store) ListCategories(ctx context.Context) ([]*catalog.Category, error) {
	return listCategories(ctx, s.pg)
}

func listCategories(ctx context.Context, q querier) ([]*catalog.Category, error) {
	var models []categoryModel
	if err := q.NewSelect(&models).OrderExpr("position ASC").Scan(ctx); err != nil {
		return nil, err
	}
	result := make([]*catalog.Category, len(models))
	for i := range models {
		c, err := fromCategoryModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = c
	}
	return result, nil
}

// ==================== Client Store ====================

func (s *Store) UpsertClients(ctx context.Context, clients []*client.Client) error {
	clients = lastByKey(clients, func(c *client.Client) string { return c.NIT })
	if len(clients) == 0 {
		return nil
	}
	return s.inTx(ctx, func(q querier) error {
		next, err := nextPosition(ctx, q, "cloudbill_clients")
		if err != nil {
			return err
		}

		models := make([]clientModel, len(clients))
		for i, c := range clients {
			m, err := toClientModel(c, next+int64(i))
			if err != nil {
				return err
			}
			models[i] = *m
		}
		_, err = q.NewInsert(&models).
			MultiRow().
			OnConflict("(nit) DO UPDATE").
			Set("name = EXCLUDED.name").
			Set("username = EXCLUDED.username").
			Set("password = EXCLUDED.password").
			Set("address = EXCLUDED.address").
			Set("email = EXCLUDED.email").
			Set("instances = EXCLUDED.instances").
			Set("updated_at = EXCLUDED.updated_at").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("cloudbill/postgres: upsert clients: %w", err)
		}
		return nil
	})
}

func (s *Store) GetClient(ctx context.Context, nit string) (*client.Client, error) {
	m := new(clientModel)
	err := s.pg.NewSelect(m).
		Where("nit = $1", nit).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, cloudbill.ErrClientNotFound
		}
		return nil, err
	}
	return fromClientModel(m)
}

func (s *Store) GetInstance(ctx context.Context, nit string, instanceID int64) (*client.Instance, error) {
	c, err := s.GetClient(ctx, nit)
	if err != nil {
		if errors.Is(err, cloudbill.ErrClientNotFound) {
			return nil, cloudbill.ErrInstanceNotFound
		}
		return nil, err
	}
	inst := c.FindInstance(instanceID)
	if inst == nil {
		return nil, cloudbill.ErrInstanceNotFound
	}
	return inst, nil
}

func (s *Store) ListClients(ctx context.Context) ([]*client.Client, error) {
	var models []clientModel
	if err := s.pg.NewSelect(&models).OrderExpr("position ASC").Scan(ctx); err != nil {
		return nil, err
	}
	result := make([]*client.Client, len(models))
	for i := range models {
		c, err := fromClientModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = c
	}
	return result, nil
}

// ==================== Consumption Store ====================

// AppendConsumption assigns the next positional id in the same statement
// as the insert.
func (s *Store) AppendConsumption(ctx context.Context, rec consumption.Record) (*consumption.Consumption, error) {
	c := &consumption.Consumption{
		NIT:        rec.NIT,
		InstanceID: rec.InstanceID,
		TimeHours:  rec.TimeHours,
		DateTime:   rec.DateTime,
		RecordedAt: now(),
	}
	err := s.pg.NewRaw(`
		INSERT INTO cloudbill_consumptions (id, nit, instance_id, time_hours, date_time, billed, recorded_at)
		SELECT COALESCE(MAX(id), 0) + 1, $1, $2, $3, $4, FALSE, $5 FROM cloudbill_consumptions
		RETURNING id
	`, c.NIT, c.InstanceID, c.TimeHours.String(), c.DateTime, c.RecordedAt).Scan(ctx, &c.ID)
	if err != nil {
		return nil, fmt.Errorf("cloudbill/postgres: append consumption: %w", err)
	}
	return c, nil
}

func (s *Store) GetConsumption(ctx context.Context, consumptionID int64) (*consumption.Consumption, error) {
	return getConsumption(ctx, s.pg, consumptionID)
}

func getConsumption(ctx context.Context, q querier, consumptionID int64) (*consumption.Consumption, error) {
	m := new(consumptionModel)
	err := q.NewSelect(m).
		Where("id = $1", consumptionID).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, cloudbill.ErrConsumptionNotFound
		}
		return nil, err
	}
	return fromConsumptionModel(m)
}

func (s *Store) ListConsumptions(ctx context.Context) ([]*consumption.Consumption, error) {
	var models []consumptionModel
	if err := s.pg.NewSelect(&models).OrderExpr("id ASC").Scan(ctx); err != nil {
		return nil, err
	}
	return fromConsumptionModels(models)
}

func (s *Store) ListUnbilledConsumptions(ctx context.Context) ([]*consumption.Consumption, error) {
	var models []consumptionModel
	err := s.pg.NewSelect(&models).
		Where("billed = $1", false).
		OrderExpr("id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return fromConsumptionModels(models)
}

func (s *Store) MarkConsumptionsBilled(ctx context.Context, ids []int64) error {
	return s.inTx(ctx, func(q querier) error {
		for _, cid := range ids {
			if _, err := getConsumption(ctx, q, cid); err != nil {
				if errors.Is(err, cloudbill.ErrConsumptionNotFound) {
					return cloudbill.NewIntegrityError(err, fmt.Sprintf("id %d", cid))
				}
				return err
			}
		}
		for _, cid := range ids {
			_, err := q.NewUpdate((*consumptionModel)(nil)).
				Set("billed = $1", true).
				Where("id = $2", cid).
				Exec(ctx)
			if err != nil {
				return fmt.Errorf("cloudbill/postgres: mark consumption %d billed: %w", cid, err)
			}
		}
		return nil
	})
}

// claimConsumption flips an unbilled consumption to billed.
func claimConsumption(ctx context.Context, q querier, cid int64) error {
	res, err := q.NewUpdate((*consumptionModel)(nil)).
		Set("billed = $1", true).
		Where("id = $2", cid).
		Where("billed = $3", false).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("cloudbill/postgres: claim consumption %d: %w", cid, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return cloudbill.NewIntegrityError(cloudbill.ErrConsumptionAlreadyBilled, fmt.Sprintf("id %d", cid))
	}
	return nil
}

// ==================== Invoice Store ====================

func (s *Store) CreateInvoice(ctx context.Context, inv *invoice.Invoice) error {
	exists, err := invoiceExists(ctx, s.pg, inv.Number)
	if err != nil {
		return err
	}
	if exists {
		return cloudbill.NewIntegrityError(cloudbill.ErrDuplicateInvoiceNumber, inv.Number)
	}
	return insertInvoice(ctx, s.pg, inv)
}

func insertInvoice(ctx context.Context, q querier, inv *invoice.Invoice) error {
	m, err := toInvoiceModel(inv)
	if err != nil {
		return err
	}
	if _, err := q.NewInsert(m).Exec(ctx); err != nil {
		return fmt.Errorf("cloudbill/postgres: insert invoice %s: %w", inv.Number, err)
	}
	return nil
}

func invoiceExists(ctx context.Context, q querier, number string) (bool, error) {
	var count int64
	err := q.NewRaw(`SELECT COUNT(*) FROM cloudbill_invoices WHERE number = $1`, number).Scan(ctx, &count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *Store) GetInvoice(ctx context.Context, number string) (*invoice.Invoice, error) {
	m := new(invoiceModel)
	err := s.pg.NewSelect(m).
		Where("number = $1", number).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, cloudbill.ErrInvoiceNotFound
		}
		return nil, err
	}
	return fromInvoiceModel(m)
}

// ListInvoices filters by client in SQL. Issue dates are stored as
// dd/mm/yyyy text, so the date range and paging are applied in Go.
func (s *Store) ListInvoices(ctx context.Context, opts invoice.ListOpts) ([]*invoice.Invoice, error) {
	var models []invoiceModel
	q := s.pg.NewSelect(&models)
	if opts.ClientNIT != "" {
		q = q.Where("client_nit = $1", opts.ClientNIT)
	}
	if err := q.OrderExpr("seq ASC").Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*invoice.Invoice, 0, len(models))
	for i := range models {
		inv, err := fromInvoiceModel(&models[i])
		if err != nil {
			return nil, err
		}
		if opts.Matches(inv) {
			result = append(result, inv)
		}
	}
	return billstore.Paginate(result, opts.Offset, opts.Limit), nil
}

func (s *Store) CountInvoices(ctx context.Context) (int, error) {
	var count int64
	if err := s.pg.NewRaw(`SELECT COUNT(*) FROM cloudbill_invoices`).Scan(ctx, &count); err != nil {
		return 0, err
	}
	return int(count), nil
}

// CommitInvoices claims every consumption and inserts every invoice in one
// transaction.
func (s *Store) CommitInvoices(ctx context.Context, invoices []*invoice.Invoice) error {
	return s.inTx(ctx, func(q querier) error {
		if err := validateCommit(ctx, q, invoices); err != nil {
			return err
		}
		for _, inv := range invoices {
			for _, cid := range inv.ConsumptionIDs {
				if err := claimConsumption(ctx, q, cid); err != nil {
					return err
				}
			}
			if err := insertInvoice(ctx, q, inv); err != nil {
				return err
			}
		}
		return nil
	})
}

func validateCommit(ctx context.Context, q querier, invoices []*invoice.Invoice) error {
	numbers := make(map[string]bool, len(invoices))
	claimed := make(map[int64]bool)
	for _, inv := range invoices {
		exists, err := invoiceExists(ctx, q, inv.Number)
		if err != nil {
			return err
		}
		if exists || numbers[inv.Number] {
			return cloudbill.NewIntegrityError(cloudbill.ErrDuplicateInvoiceNumber, inv.Number)
		}
		numbers[inv.Number] = true

		for _, cid := range inv.ConsumptionIDs {
			c, err := getConsumption(ctx, q, cid)
			if err != nil {
				if errors.Is(err, cloudbill.ErrConsumptionNotFound) {
					return cloudbill.NewIntegrityError(err, fmt.Sprintf("id %d", cid))
				}
				return err
			}
			if c.Billed || claimed[cid] {
				return cloudbill.NewIntegrityError(cloudbill.ErrConsumptionAlreadyBilled, fmt.Sprintf("id %d", cid))
			}
			claimed[cid] = true
		}
	}
	return nil
}

// ==================== Snapshot and lifecycle ====================

func (s *Store) Snapshot(ctx context.Context) (*billstore.Snapshot, error) {
	resources, err := s.ListResources(ctx)
	if err != nil {
		return nil, err
	}
	categories, err := s.ListCategories(ctx)
	if err != nil {
		return nil, err
	}
	clients, err := s.ListClients(ctx)
	if err != nil {
		return nil, err
	}
	consumptions, err := s.ListConsumptions(ctx)
	if err != nil {
		return nil, err
	}
	invoices, err := s.ListInvoices(ctx, invoice.ListOpts{})
	if err != nil {
		return nil, err
	}
	return &billstore.Snapshot{
		Resources:    resources,
		Categories:   categories,
		Clients:      clients,
		Consumptions: consumptions,
		Invoices:     invoices,
	}, nil
}

func (s *Store) Reset(ctx context.Context) error {
	deletes := []any{
		(*invoiceModel)(nil),
		(*consumptionModel)(nil),
		(*clientModel)(nil),
		(*categoryModel)(nil),
		(*resourceModel)(nil),
	}
	return s.inTx(ctx, func(q querier) error {
		for _, m := range deletes {
			if _, err := q.NewDelete(m).Where("1 = 1").Exec(ctx); err != nil {
				return fmt.Errorf("cloudbill/postgres: reset: %w", err)
			}
		}
		return nil
	})
}

// ==================== Helpers ====================

func nextPosition(ctx context.Context, q querier, table string) (int64, error) {
	var next int64
	err := q.NewRaw(`SELECT COALESCE(MAX(position), 0) + 1 FROM ` + table).Scan(ctx, &next)
	if err != nil {
		return 0, fmt.Errorf("cloudbill/postgres: next position in %s: %w", table, err)
	}
	return next, nil
}

func fromConsumptionModels(models []consumptionModel) ([]*consumption.Consumption, error) {
	result := make([]*consumption.Consumption, len(models))
	for i := range models {
		c, err := fromConsumptionModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = c
	}
	return result, nil
}

// lastByKey keeps the last item per key, at the slot of its first
// occurrence. One upsert statement may not touch a row twice.
func lastByKey[T any, K comparable](items []*T, key func(*T) K) []*T {
	index := make(map[K]int, len(items))
	out := make([]*T, 0, len(items))
	for _, it := range items {
		if it == nil {
			continue
		}
		k := key(it)
		if i, ok := index[k]; ok {
			out[i] = it
			continue
		}
		index[k] = len(out)
		out = append(out, it)
	}
	return out
}

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
