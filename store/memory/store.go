// Package memory provides an in-process store guarded by a single mutex.
// It is the default backend for tests and the base of the file store.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/xraph/cloudbill"
	"github.com/xraph/cloudbill/catalog"
	"github.com/xraph/cloudbill/client"
	"github.com/xraph/cloudbill/consumption"
	"github.com/xraph/cloudbill/invoice"
	"github.com/xraph/cloudbill/store"
)

// Compile-time interface check.
var _ store.Store = (*Store)(nil)

type Store struct {
	mu sync.RWMutex

	// Catalog storage, in first-insertion order
	resources     []*catalog.Resource
	resourceIndex map[int64]int
	categories    []*catalog.Category
	categoryIndex map[int64]int
	configOwners  map[int64]int64

	// Client storage
	clients     []*client.Client
	clientIndex map[string]int

	// Consumption log; position i holds id i+1
	consumptions []*consumption.Consumption

	// Invoice storage
	invoices     []*invoice.Invoice
	invoiceIndex map[string]int
}

func New() *Store {
	s := &Store{}
	s.reset()
	return s
}

func (s *Store) reset() {
	s.resources = make([]*catalog.Resource, 0)
	s.resourceIndex = make(map[int64]int)
	s.categories = make([]*catalog.Category, 0)
	s.categoryIndex = make(map[int64]int)
	s.configOwners = make(map[int64]int64)
	s.clients = make([]*client.Client, 0)
	s.clientIndex = make(map[string]int)
	s.consumptions = make([]*consumption.Consumption, 0)
	s.invoices = make([]*invoice.Invoice, 0)
	s.invoiceIndex = make(map[string]int)
}

// Catalog Store implementation

func (s *Store) UpsertResources(_ context.Context, resources []*catalog.Resource) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range resources {
		cp := r.Clone()
		if i, ok := s.resourceIndex[r.ID]; ok {
			cp.CreatedAt = s.resources[i].CreatedAt
			s.resources[i] = cp
			continue
		}
		s.resourceIndex[r.ID] = len(s.resources)
		s.resources = append(s.resources, cp)
	}
	return nil
}

func (s *Store) UpsertCategories(_ context.Context, categories []*catalog.Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c := catalog.CheckOwnership(s.configOwners, categories); c != nil {
		return cloudbill.NewIntegrityError(cloudbill.ErrConfigurationConflict, c.String())
	}

	for _, c := range categories {
		cp := c.Clone()
		cp.Own()
		if i, ok := s.categoryIndex[c.ID]; ok {
			cp.CreatedAt = s.categories[i].CreatedAt
			s.categories[i] = cp
			continue
		}
		s.categoryIndex[c.ID] = len(s.categories)
		s.categories = append(s.categories, cp)
	}

	s.configOwners = make(map[int64]int64)
	for _, c := range s.categories {
		for _, cfg := range c.Configurations {
			s.configOwners[cfg.ID] = c.ID
		}
	}
	return nil
}

func (s *Store) GetResource(_ context.Context, resourceID int64) (*catalog.Resource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if i, ok := s.resourceIndex[resourceID]; ok {
		return s.resources[i].Clone(), nil
	}
	return nil, cloudbill.ErrResourceNotFound
}

func (s *Store) GetCategory(_ context.Context, categoryID int64) (*catalog.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if i, ok := s.categoryIndex[categoryID]; ok {
		return s.categories[i].Clone(), nil
	}
	return nil, cloudbill.ErrCategoryNotFound
}

func (s *Store) GetConfiguration(_ context.Context, configurationID int64) (*catalog.Configuration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	owner, ok := s.configOwners[configurationID]
	if !ok {
		return nil, cloudbill.ErrConfigurationNotFound
	}
	cat := s.categories[s.categoryIndex[owner]]
	cfg := cat.FindConfiguration(configurationID)
	if cfg == nil {
		return nil, cloudbill.ErrConfigurationNotFound
	}
	cp := *cfg
	cp.Resources = append([]catalog.ConfigurationResource(nil), cfg.Resources...)
	return &cp, nil
}

func (s *Store) ListResources(_ context.Context) ([]*catalog.Resource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*catalog.Resource, 0, len(s.resources))
	for _, r := range s.resources {
		result = append(result, r.Clone())
	}
	return result, nil
}

func (s *Store) ListCategories(_ context.Context) ([]*catalog.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*catalog.Category, 0, len(s.categories))
	for _, c := range s.categories {
		result = append(result, c.Clone())
	}
	return result, nil
}

// Client Store implementation

func (s *Store) UpsertClients(_ context.Context, clients []*client.Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range clients {
		cp := c.Clone()
		if i, ok := s.clientIndex[c.NIT]; ok {
			cp.CreatedAt = s.clients[i].CreatedAt
			s.clients[i] = cp
			continue
		}
		s.clientIndex[c.NIT] = len(s.clients)
		s.clients = append(s.clients, cp)
	}
	return nil
}

func (s *Store) GetClient(_ context.Context, nit string) (*client.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if i, ok := s.clientIndex[nit]; ok {
		return s.clients[i].Clone(), nil
	}
	return nil, cloudbill.ErrClientNotFound
}

func (s *Store) GetInstance(_ context.Context, nit string, instanceID int64) (*client.Instance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.clientIndex[nit]
	if !ok {
		return nil, cloudbill.ErrInstanceNotFound
	}
	inst := s.clients[i].FindInstance(instanceID)
	if inst == nil {
		return nil, cloudbill.ErrInstanceNotFound
	}
	cp := *inst
	return &cp, nil
}

func (s *Store) ListClients(_ context.Context) ([]*client.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*client.Client, 0, len(s.clients))
	for _, c := range s.clients {
		result = append(result, c.Clone())
	}
	return result, nil
}

// Consumption Store implementation

func (s *Store) AppendConsumption(_ context.Context, rec consumption.Record) (*consumption.Consumption, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := &consumption.Consumption{
		ID:         int64(len(s.consumptions) + 1),
		NIT:        rec.NIT,
		InstanceID: rec.InstanceID,
		TimeHours:  rec.TimeHours,
		DateTime:   rec.DateTime,
		RecordedAt: time.Now().UTC(),
	}
	s.consumptions = append(s.consumptions, c)
	return c.Clone(), nil
}

func (s *Store) GetConsumption(_ context.Context, consumptionID int64) (*consumption.Consumption, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.consumptionAt(consumptionID)
	if !ok {
		return nil, cloudbill.ErrConsumptionNotFound
	}
	return c.Clone(), nil
}

func (s *Store) consumptionAt(consumptionID int64) (*consumption.Consumption, bool) {
	if consumptionID < 1 || consumptionID > int64(len(s.consumptions)) {
		return nil, false
	}
	return s.consumptions[consumptionID-1], true
}

func (s *Store) ListConsumptions(_ context.Context) ([]*consumption.Consumption, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*consumption.Consumption, 0, len(s.consumptions))
	for _, c := range s.consumptions {
		result = append(result, c.Clone())
	}
	return result, nil
}

func (s *Store) ListUnbilledConsumptions(_ context.Context) ([]*consumption.Consumption, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*consumption.Consumption, 0)
	for _, c := range s.consumptions {
		if !c.Billed {
			result = append(result, c.Clone())
		}
	}
	return result, nil
}

func (s *Store) MarkConsumptionsBilled(_ context.Context, ids []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, cid := range ids {
		if _, ok := s.consumptionAt(cid); !ok {
			return cloudbill.NewIntegrityError(cloudbill.ErrConsumptionNotFound, fmt.Sprintf("id %d", cid))
		}
	}
	for _, cid := range ids {
		s.consumptions[cid-1].Billed = true
	}
	return nil
}

// Invoice Store implementation

func (s *Store) CreateInvoice(_ context.Context, inv *invoice.Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.invoiceIndex[inv.Number]; exists {
		return cloudbill.NewIntegrityError(cloudbill.ErrDuplicateInvoiceNumber, inv.Number)
	}
	s.appendInvoice(inv)
	return nil
}

func (s *Store) appendInvoice(inv *invoice.Invoice) {
	s.invoiceIndex[inv.Number] = len(s.invoices)
	s.invoices = append(s.invoices, inv.Clone())
}

func (s *Store) GetInvoice(_ context.Context, number string) (*invoice.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if i, ok := s.invoiceIndex[number]; ok {
		return s.invoices[i].Clone(), nil
	}
	return nil, cloudbill.ErrInvoiceNotFound
}

func (s *Store) ListInvoices(_ context.Context, opts invoice.ListOpts) ([]*invoice.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*invoice.Invoice, 0)
	for _, inv := range s.invoices {
		if opts.Matches(inv) {
			result = append(result, inv.Clone())
		}
	}
	return store.Paginate(result, opts.Offset, opts.Limit), nil
}

func (s *Store) CountInvoices(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.invoices), nil
}

func (s *Store) CommitInvoices(_ context.Context, invoices []*invoice.Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.validateCommit(invoices); err != nil {
		return err
	}
	for _, inv := range invoices {
		s.appendInvoice(inv)
		for _, cid := range inv.ConsumptionIDs {
			s.consumptions[cid-1].Billed = true
		}
	}
	return nil
}

func (s *Store) validateCommit(invoices []*invoice.Invoice) error {
	numbers := make(map[string]bool, len(invoices))
	claimed := make(map[int64]bool)
	for _, inv := range invoices {
		if _, exists := s.invoiceIndex[inv.Number]; exists || numbers[inv.Number] {
			return cloudbill.NewIntegrityError(cloudbill.ErrDuplicateInvoiceNumber, inv.Number)
		}
		numbers[inv.Number] = true
		for _, cid := range inv.ConsumptionIDs {
			c, ok := s.consumptionAt(cid)
			if !ok {
				return cloudbill.NewIntegrityError(cloudbill.ErrConsumptionNotFound, fmt.Sprintf("id %d", cid))
			}
			if c.Billed || claimed[cid] {
				return cloudbill.NewIntegrityError(cloudbill.ErrConsumptionAlreadyBilled, fmt.Sprintf("id %d", cid))
			}
			claimed[cid] = true
		}
	}
	return nil
}

// Snapshot and lifecycle

func (s *Store) Snapshot(_ context.Context) (*store.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := &store.Snapshot{
		Resources:    make([]*catalog.Resource, 0, len(s.resources)),
		Categories:   make([]*catalog.Category, 0, len(s.categories)),
		Clients:      make([]*client.Client, 0, len(s.clients)),
		Consumptions: make([]*consumption.Consumption, 0, len(s.consumptions)),
		Invoices:     make([]*invoice.Invoice, 0, len(s.invoices)),
	}
	for _, r := range s.resources {
		snap.Resources = append(snap.Resources, r.Clone())
	}
	for _, c := range s.categories {
		snap.Categories = append(snap.Categories, c.Clone())
	}
	for _, c := range s.clients {
		snap.Clients = append(snap.Clients, c.Clone())
	}
	for _, c := range s.consumptions {
		snap.Consumptions = append(snap.Consumptions, c.Clone())
	}
	for _, inv := range s.invoices {
		snap.Invoices = append(snap.Invoices, inv.Clone())
	}
	return snap, nil
}

// Restore replaces the whole state with a snapshot. The snapshot is checked
// in full first; a rejected snapshot leaves the current state untouched.
// Consumption ids must run 1..n in order.
func (s *Store) Restore(snap *store.Snapshot) error {
	if err := validateSnapshot(snap); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.reset()
	for _, r := range snap.Resources {
		s.resourceIndex[r.ID] = len(s.resources)
		s.resources = append(s.resources, r.Clone())
	}
	for _, c := range snap.Categories {
		cp := c.Clone()
		cp.Own()
		s.categoryIndex[c.ID] = len(s.categories)
		s.categories = append(s.categories, cp)
		for _, cfg := range cp.Configurations {
			s.configOwners[cfg.ID] = c.ID
		}
	}
	for _, c := range snap.Clients {
		s.clientIndex[c.NIT] = len(s.clients)
		s.clients = append(s.clients, c.Clone())
	}
	for _, c := range snap.Consumptions {
		s.consumptions = append(s.consumptions, c.Clone())
	}
	for _, inv := range snap.Invoices {
		s.appendInvoice(inv)
	}
	return nil
}

func validateSnapshot(snap *store.Snapshot) error {
	if snap == nil {
		return cloudbill.NewIntegrityError(cloudbill.ErrInvalidInput, "nil snapshot")
	}

	resources := make(map[int64]bool, len(snap.Resources))
	for _, r := range snap.Resources {
		if r == nil || resources[r.ID] {
			return cloudbill.NewIntegrityError(cloudbill.ErrAlreadyExists, "duplicate or empty resource")
		}
		resources[r.ID] = true
	}

	categories := make(map[int64]bool, len(snap.Categories))
	owners := make(map[int64]int64)
	for _, c := range snap.Categories {
		if c == nil || categories[c.ID] {
			return cloudbill.NewIntegrityError(cloudbill.ErrAlreadyExists, "duplicate or empty category")
		}
		categories[c.ID] = true
		for _, cfg := range c.Configurations {
			if owner, ok := owners[cfg.ID]; ok {
				conflict := &catalog.Conflict{ConfigurationID: cfg.ID, Owner: owner, Claimant: c.ID}
				return cloudbill.NewIntegrityError(cloudbill.ErrConfigurationConflict, conflict.String())
			}
			owners[cfg.ID] = c.ID
		}
	}

	clients := make(map[string]bool, len(snap.Clients))
	for _, c := range snap.Clients {
		if c == nil || clients[c.NIT] {
			return cloudbill.NewIntegrityError(cloudbill.ErrAlreadyExists, "duplicate or empty client")
		}
		clients[c.NIT] = true
	}

	for i, c := range snap.Consumptions {
		if c == nil || c.ID != int64(i+1) {
			return cloudbill.NewIntegrityError(cloudbill.ErrInvalidInput,
				fmt.Sprintf("consumption at position %d must have id %d", i+1, i+1))
		}
	}

	numbers := make(map[string]bool, len(snap.Invoices))
	for _, inv := range snap.Invoices {
		if inv == nil {
			return cloudbill.NewIntegrityError(cloudbill.ErrInvalidInput, "empty invoice")
		}
		if numbers[inv.Number] {
			return cloudbill.NewIntegrityError(cloudbill.ErrDuplicateInvoiceNumber, inv.Number)
		}
		numbers[inv.Number] = true
		for _, cid := range inv.ConsumptionIDs {
			if cid < 1 || cid > int64(len(snap.Consumptions)) {
				return cloudbill.NewIntegrityError(cloudbill.ErrConsumptionNotFound,
					fmt.Sprintf("invoice %s references id %d", inv.Number, cid))
			}
		}
	}
	return nil
}

func (s *Store) Reset(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.reset()
	return nil
}

// Migrate is a no-op for the memory store.
func (s *Store) Migrate(_ context.Context) error { return nil }

// Ping is a no-op for the memory store.
func (s *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (s *Store) Close() error { return nil }
