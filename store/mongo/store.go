package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	"github.com/xraph/cloudbill"
	"github.com/xraph/cloudbill/catalog"
	"github.com/xraph/cloudbill/client"
	"github.com/xraph/cloudbill/consumption"
	"github.com/xraph/cloudbill/invoice"
	billstore "github.com/xraph/cloudbill/store"
)

// Collection name constants.
const (
	colResources    = "cloudbill_resources"
	colCategories   = "cloudbill_categories"
	colClients      = "cloudbill_clients"
	colConsumptions = "cloudbill_consumptions"
	colInvoices     = "cloudbill_invoices"
)

// appendAttempts bounds retries when two appends race for the same id.
const appendAttempts = 5

// compile-time interface check
var _ billstore.Store = (*Store)(nil)

// Store implements store.Store using MongoDB via Grove ORM.
//
// Billing marks and invoice commits run in multi-document transactions,
// which need a replica set or sharded cluster.
type Store struct {
	db  *grove.DB
	mdb *mongodriver.MongoDB
}

// New creates a new MongoDB store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// inTx runs fn with a context bound to a transaction session. Any error
// from fn aborts the transaction.
func (s *Store) inTx(ctx context.Context, fn func(ctx context.Context) error) error {
	raw, err := s.mdb.GroveTx(ctx, 0, false)
	if err != nil {
		return fmt.Errorf("cloudbill/mongo: begin tx: %w", err)
	}
	tx, ok := raw.(*mongodriver.MongoTx)
	if !ok {
		return fmt.Errorf("cloudbill/mongo: unexpected transaction type %T", raw)
	}

	if err := fn(tx.SessionContext(ctx)); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("cloudbill/mongo: commit: %w", err)
	}
	return nil
}

// Migrate creates indexes for all cloudbill collections.
func (s *Store) Migrate(ctx context.Context) error {
	indexes := migrationIndexes()

	for col, models := range indexes {
		if len(models) == 0 {
			continue
		}
		_, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("cloudbill/mongo: migrate %s indexes: %w", col, err)
		}
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
	next, err := s.nextPosition(ctx, colResources)
	if err != nil {
		return err
	}
	for i, r := range resources {
		if r == nil {
			continue
		}
		m := toResourceModel(r)
		_, err := s.mdb.NewUpdate(m).
			Filter(bson.M{"_id": m.ID}).
			SetUpdate(bson.M{
				"$set": bson.M{
					"name":           m.Name,
					"abbreviation":   m.Abbreviation,
					"metric":         m.Metric,
					"type":           m.Type,
					"value_per_hour": m.ValuePerHour,
					"updated_at":     m.UpdatedAt,
				},
				"$setOnInsert": bson.M{
					"position":   next + int64(i),
					"created_at": m.CreatedAt,
				},
			}).
			Upsert().
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("cloudbill/mongo: upsert resource %d: %w", r.ID, err)
		}
	}
	return nil
}

func (s *Store) UpsertCategories(ctx context.Context, categories []*catalog.Category) error {
	existing, err := s.ListCategories(ctx)
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

	next, err := s.nextPosition(ctx, colCategories)
	if err != nil {
		return err
	}
	for i, c := range categories {
		if c == nil {
			continue
		}
		m := toCategoryModel(c)
		_, err := s.mdb.NewUpdate(m).
			Filter(bson.M{"_id": m.ID}).
			SetUpdate(bson.M{
				"$set": bson.M{
					"name":           m.Name,
					"description":    m.Description,
					"workload":       m.Workload,
					"configurations": m.Configurations,
					"updated_at":     m.UpdatedAt,
				},
				"$setOnInsert": bson.M{
					"position":   next + int64(i),
					"created_at": m.CreatedAt,
				},
			}).
			Upsert().
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("cloudbill/mongo: upsert category %d: %w", c.ID, err)
		}
	}
	return nil
}

func (s *Store) GetResource(ctx context.Context, resourceID int64) (*catalog.Resource, error) {
	var m resourceModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": resourceID}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, cloudbill.ErrResourceNotFound
		}
		return nil, fmt.Errorf("cloudbill/mongo: get resource: %w", err)
	}
	return fromResourceModel(&m)
}

func (s *Store) GetCategory(ctx context.Context, categoryID int64) (*catalog.Category, error) {
	var m categoryModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": categoryID}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, cloudbill.ErrCategoryNotFound
		}
		return nil, fmt.Errorf("cloudbill/mongo: get category: %w", err)
	}
	return fromCategoryModel(&m)
}

func (s *Store) GetConfiguration(ctx context.Context, configurationID int64) (*catalog.Configuration, error) {
	var m categoryModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"configurations.id": configurationID}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, cloudbill.ErrConfigurationNotFound
		}
		return nil, fmt.Errorf("cloudbill/mongo: get configuration: %w", err)
	}
	c, err := fromCategoryModel(&m)
	if err != nil {
		return nil, err
	}
	cfg := c.FindConfiguration(configurationID)
	if cfg == nil {
		return nil, cloudbill.ErrConfigurationNotFound
	}
	return cfg, nil
}

func (s *Store) ListResources(ctx context.Context) ([]*catalog.Resource, error) {
	var models []resourceModel
	err := s.mdb.NewFind(&models).
		Filter(bson.M{}).
		Sort(bson.D{{Key: "position", Value: 1}}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("cloudbill/mongo: list resources: %w", err)
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
	var models []categoryModel
	err := s.mdb.NewFind(&models).
		Filter(bson.M{}).
		Sort(bson.D{{Key: "position", Value: 1}}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("cloudbill/mongo: list categories: %w", err)
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
	next, err := s.nextPosition(ctx, colClients)
	if err != nil {
		return err
	}
	for i, c := range clients {
		if c == nil {
			continue
		}
		m := toClientModel(c)
		_, err := s.mdb.NewUpdate(m).
			Filter(bson.M{"_id": m.NIT}).
			SetUpdate(bson.M{
				"$set": bson.M{
					"name":       m.Name,
					"username":   m.Username,
					"password":   m.Password,
					"address":    m.Address,
					"email":      m.Email,
					"instances":  m.Instances,
					"updated_at": m.UpdatedAt,
				},
				"$setOnInsert": bson.M{
					"position":   next + int64(i),
					"created_at": m.CreatedAt,
				},
			}).
			Upsert().
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("cloudbill/mongo: upsert client %s: %w", c.NIT, err)
		}
	}
	return nil
}

func (s *Store) GetClient(ctx context.Context, nit string) (*client.Client, error) {
	var m clientModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": nit}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, cloudbill.ErrClientNotFound
		}
		return nil, fmt.Errorf("cloudbill/mongo: get client: %w", err)
	}
	return fromClientModel(&m), nil
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
	err := s.mdb.NewFind(&models).
		Filter(bson.M{}).
		Sort(bson.D{{Key: "position", Value: 1}}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("cloudbill/mongo: list clients: %w", err)
	}
	result := make([]*client.Client, len(models))
	for i := range models {
		result[i] = fromClientModel(&models[i])
	}
	return result, nil
}

// ==================== Consumption Store ====================

// AppendConsumption inserts under the next positional id, retrying when a
// concurrent append took it first.
func (s *Store) AppendConsumption(ctx context.Context, rec consumption.Record) (*consumption.Consumption, error) {
	m := &consumptionModel{
		NIT:        rec.NIT,
		InstanceID: rec.InstanceID,
		TimeHours:  rec.TimeHours.String(),
		DateTime:   rec.DateTime,
		RecordedAt: now(),
	}

	for attempt := 0; attempt < appendAttempts; attempt++ {
		last, err := s.maxValue(ctx, colConsumptions, "_id")
		if err != nil {
			return nil, err
		}
		m.ID = last + 1

		_, err = s.mdb.NewInsert(m).Exec(ctx)
		if err == nil {
			return fromConsumptionModel(m)
		}
		if !mongo.IsDuplicateKeyError(err) {
			return nil, fmt.Errorf("cloudbill/mongo: append consumption: %w", err)
		}
	}
	return nil, fmt.Errorf("cloudbill/mongo: append consumption: id contention after %d attempts", appendAttempts)
}

func (s *Store) GetConsumption(ctx context.Context, consumptionID int64) (*consumption.Consumption, error) {
	var m consumptionModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": consumptionID}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, cloudbill.ErrConsumptionNotFound
		}
		return nil, fmt.Errorf("cloudbill/mongo: get consumption: %w", err)
	}
	return fromConsumptionModel(&m)
}

func (s *Store) ListConsumptions(ctx context.Context) ([]*consumption.Consumption, error) {
	return s.findConsumptions(ctx, bson.M{})
}

func (s *Store) ListUnbilledConsumptions(ctx context.Context) ([]*consumption.Consumption, error) {
	return s.findConsumptions(ctx, bson.M{"billed": false})
}

func (s *Store) findConsumptions(ctx context.Context, filter bson.M) ([]*consumption.Consumption, error) {
	var models []consumptionModel
	err := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "_id", Value: 1}}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("cloudbill/mongo: list consumptions: %w", err)
	}
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

func (s *Store) MarkConsumptionsBilled(ctx context.Context, ids []int64) error {
	unique := make(map[int64]bool, len(ids))
	for _, cid := range ids {
		unique[cid] = true
	}
	return s.inTx(ctx, func(ctx context.Context) error {
		n, err := s.mdb.Collection(colConsumptions).CountDocuments(ctx, bson.M{"_id": bson.M{"$in": ids}})
		if err != nil {
			return fmt.Errorf("cloudbill/mongo: count consumptions: %w", err)
		}
		if n != int64(len(unique)) {
			return cloudbill.NewIntegrityError(cloudbill.ErrConsumptionNotFound, fmt.Sprintf("%d of %d ids exist", n, len(unique)))
		}

		_, err = s.mdb.Collection(colConsumptions).UpdateMany(ctx,
			bson.M{"_id": bson.M{"$in": ids}},
			bson.M{"$set": bson.M{"billed": true}},
		)
		if err != nil {
			return fmt.Errorf("cloudbill/mongo: mark consumptions billed: %w", err)
		}
		return nil
	})
}

// claimConsumption flips an unbilled consumption to billed.
func (s *Store) claimConsumption(ctx context.Context, cid int64) error {
	res, err := s.mdb.NewUpdate((*consumptionModel)(nil)).
		Filter(bson.M{"_id": cid, "billed": false}).
		SetUpdate(bson.M{"$set": bson.M{"billed": true}}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("cloudbill/mongo: claim consumption %d: %w", cid, err)
	}
	if res.MatchedCount() == 0 {
		return cloudbill.NewIntegrityError(cloudbill.ErrConsumptionAlreadyBilled, fmt.Sprintf("id %d", cid))
	}
	return nil
}

// ==================== Invoice Store ====================

func (s *Store) CreateInvoice(ctx context.Context, inv *invoice.Invoice) error {
	m, err := toInvoiceModel(inv)
	if err != nil {
		return err
	}
	if _, err := s.mdb.NewInsert(m).Exec(ctx); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return cloudbill.NewIntegrityError(cloudbill.ErrDuplicateInvoiceNumber, inv.Number)
		}
		return fmt.Errorf("cloudbill/mongo: create invoice: %w", err)
	}
	return nil
}

func (s *Store) GetInvoice(ctx context.Context, number string) (*invoice.Invoice, error) {
	var m invoiceModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": number}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, cloudbill.ErrInvoiceNotFound
		}
		return nil, fmt.Errorf("cloudbill/mongo: get invoice: %w", err)
	}
	return fromInvoiceModel(&m)
}

// ListInvoices filters by client in the query. Issue dates are dd/mm/yyyy
// strings, so the date range and paging are applied in Go.
func (s *Store) ListInvoices(ctx context.Context, opts invoice.ListOpts) ([]*invoice.Invoice, error) {
	var models []invoiceModel

	filter := bson.M{}
	if opts.ClientNIT != "" {
		filter["client_nit"] = opts.ClientNIT
	}

	err := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "seq", Value: 1}}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("cloudbill/mongo: list invoices: %w", err)
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
	n, err := s.mdb.Collection(colInvoices).CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("cloudbill/mongo: count invoices: %w", err)
	}
	return int(n), nil
}

// CommitInvoices claims every consumption and inserts every invoice in one
// transaction.
func (s *Store) CommitInvoices(ctx context.Context, invoices []*invoice.Invoice) error {
	return s.inTx(ctx, func(ctx context.Context) error {
		if err := s.validateCommit(ctx, invoices); err != nil {
			return err
		}
		for _, inv := range invoices {
			for _, cid := range inv.ConsumptionIDs {
				if err := s.claimConsumption(ctx, cid); err != nil {
					return err
				}
			}
			if err := s.CreateInvoice(ctx, inv); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) validateCommit(ctx context.Context, invoices []*invoice.Invoice) error {
	numbers := make(map[string]bool, len(invoices))
	claimed := make(map[int64]bool)
	for _, inv := range invoices {
		n, err := s.mdb.Collection(colInvoices).CountDocuments(ctx, bson.M{"_id": inv.Number})
		if err != nil {
			return fmt.Errorf("cloudbill/mongo: check invoice number: %w", err)
		}
		if n > 0 || numbers[inv.Number] {
			return cloudbill.NewIntegrityError(cloudbill.ErrDuplicateInvoiceNumber, inv.Number)
		}
		numbers[inv.Number] = true

		for _, cid := range inv.ConsumptionIDs {
			c, err := s.GetConsumption(ctx, cid)
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
	for _, col := range []string{colInvoices, colConsumptions, colClients, colCategories, colResources} {
		if _, err := s.mdb.Collection(col).DeleteMany(ctx, bson.M{}); err != nil {
			return fmt.Errorf("cloudbill/mongo: reset %s: %w", col, err)
		}
	}
	return nil
}

// ==================== Helpers ====================

func (s *Store) nextPosition(ctx context.Context, col string) (int64, error) {
	last, err := s.maxValue(ctx, col, "position")
	if err != nil {
		return 0, err
	}
	return last + 1, nil
}

// maxValue returns the largest integer stored under field, or 0 for an
// empty collection.
func (s *Store) maxValue(ctx context.Context, col, field string) (int64, error) {
	var doc bson.M
	opts := options.FindOne().
		SetSort(bson.D{{Key: field, Value: -1}}).
		SetProjection(bson.M{field: 1})
	err := s.mdb.Collection(col).FindOne(ctx, bson.M{}, opts).Decode(&doc)
	if err != nil {
		if isNoDocuments(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("cloudbill/mongo: max %s in %s: %w", field, col, err)
	}
	switch v := doc[field].(type) {
	case int64:
		return v, nil
	case int32:
		return int64(v), nil
	default:
		return 0, nil
	}
}

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

// isNoDocuments checks if an error wraps mongo.ErrNoDocuments.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// migrationIndexes returns the index definitions for all cloudbill collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colResources: {
			{Keys: bson.D{{Key: "position", Value: 1}}},
		},
		colCategories: {
			{Keys: bson.D{{Key: "position", Value: 1}}},
			{Keys: bson.D{{Key: "configurations.id", Value: 1}}},
		},
		colClients: {
			{Keys: bson.D{{Key: "position", Value: 1}}},
		},
		colConsumptions: {
			{Keys: bson.D{{Key: "billed", Value: 1}, {Key: "_id", Value: 1}}},
		},
		colInvoices: {
			{
				Keys:    bson.D{{Key: "seq", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "client_nit", Value: 1}, {Key: "seq", Value: 1}}},
			{Keys: bson.D{{Key: "run_id", Value: 1}}},
		},
	}
}
