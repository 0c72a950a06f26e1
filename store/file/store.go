// Package file persists the memory store as a single JSON document on disk.
// Every successful mutation rewrites the document; reads are served from
// memory.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/xraph/cloudbill/catalog"
	"github.com/xraph/cloudbill/client"
	"github.com/xraph/cloudbill/consumption"
	"github.com/xraph/cloudbill/invoice"
	"github.com/xraph/cloudbill/store"
	"github.com/xraph/cloudbill/store/memory"
)

// Compile-time interface check.
var _ store.Store = (*Store)(nil)

// Store is a memory store mirrored to path.
type Store struct {
	*memory.Store

	// write serializes mutations with their flush so the document on disk
	// always matches a state readers could have observed.
	write sync.Mutex
	path  string
}

// New opens the document at path, creating parent directories as needed. A
// missing file starts an empty store.
func New(path string) (*Store, error) {
	s := &Store{Store: memory.New(), path: path}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the location of the document.
func (s *Store) Path() string { return s.path }

func (s *Store) load() error {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("cloudbill/file: read %s: %w", s.path, err)
	}
	if len(data) == 0 {
		return nil
	}
	var snap store.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("cloudbill/file: decode %s: %w", s.path, err)
	}
	return s.Restore(&snap)
}

func (s *Store) flush(ctx context.Context) error {
	snap, err := s.Store.Snapshot(ctx)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("cloudbill/file: encode: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("cloudbill/file: mkdir: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("cloudbill/file: write: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("cloudbill/file: rename: %w", err)
	}
	return nil
}

// mutate applies fn and writes the document. If the write fails, memory is
// rolled back to its state before fn so it never runs ahead of the disk.
func (s *Store) mutate(ctx context.Context, fn func() error) error {
	s.write.Lock()
	defer s.write.Unlock()

	before, err := s.Store.Snapshot(ctx)
	if err != nil {
		return err
	}
	if err := fn(); err != nil {
		return err
	}
	if err := s.flush(ctx); err != nil {
		if rerr := s.Restore(before); rerr != nil {
			return errors.Join(err, fmt.Errorf("cloudbill/file: roll back: %w", rerr))
		}
		return err
	}
	return nil
}

func (s *Store) UpsertResources(ctx context.Context, resources []*catalog.Resource) error {
	return s.mutate(ctx, func() error { return s.Store.UpsertResources(ctx, resources) })
}

func (s *Store) UpsertCategories(ctx context.Context, categories []*catalog.Category) error {
	return s.mutate(ctx, func() error { return s.Store.UpsertCategories(ctx, categories) })
}

func (s *Store) UpsertClients(ctx context.Context, clients []*client.Client) error {
	return s.mutate(ctx, func() error { return s.Store.UpsertClients(ctx, clients) })
}

func (s *Store) AppendConsumption(ctx context.Context, rec consumption.Record) (*consumption.Consumption, error) {
	var c *consumption.Consumption
	err := s.mutate(ctx, func() error {
		var err error
		c, err = s.Store.AppendConsumption(ctx, rec)
		return err
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Store) MarkConsumptionsBilled(ctx context.Context, ids []int64) error {
	return s.mutate(ctx, func() error { return s.Store.MarkConsumptionsBilled(ctx, ids) })
}

func (s *Store) CreateInvoice(ctx context.Context, inv *invoice.Invoice) error {
	return s.mutate(ctx, func() error { return s.Store.CreateInvoice(ctx, inv) })
}

func (s *Store) CommitInvoices(ctx context.Context, invoices []*invoice.Invoice) error {
	return s.mutate(ctx, func() error { return s.Store.CommitInvoices(ctx, invoices) })
}

func (s *Store) Reset(ctx context.Context) error {
	return s.mutate(ctx, func() error { return s.Store.Reset(ctx) })
}

// Migrate writes the initial document when none exists.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := os.Stat(s.path); err == nil {
		return nil
	}
	s.write.Lock()
	defer s.write.Unlock()
	return s.flush(ctx)
}

// Ping checks that the document directory is reachable.
func (s *Store) Ping(_ context.Context) error {
	dir := filepath.Dir(s.path)
	if _, err := os.Stat(dir); err != nil {
		return fmt.Errorf("cloudbill/file: ping: %w", err)
	}
	return nil
}
