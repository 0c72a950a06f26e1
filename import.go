package cloudbill

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/xraph/cloudbill/ingest"
)

// ImportResult reports what an import stored.
type ImportResult struct {
	Counts ingest.Counts `json:"counts"`
}

// ImportConfiguration parses a configuration document and applies it.
// Nothing is stored when the document is malformed.
func (e *Engine) ImportConfiguration(ctx context.Context, r io.Reader, format ingest.Format) (*ImportResult, error) {
	doc, counts, err := ingest.ParseConfiguration(r, format)
	if err != nil {
		return nil, validationError(err)
	}

	if err := e.ApplyConfiguration(ctx, doc); err != nil {
		return nil, err
	}

	e.logger.Info("configuration imported",
		"resources", counts.Resources,
		"categories", counts.Categories,
		"configurations", counts.Configurations,
		"clients", counts.Clients,
		"instances", counts.Instances,
		"rejected_clients", counts.RejectedClients,
	)

	return &ImportResult{Counts: counts}, nil
}

// ApplyConfiguration upserts resources, categories and clients in that order.
func (e *Engine) ApplyConfiguration(ctx context.Context, doc *ingest.Document) error {
	if doc == nil {
		return ValidationError{Field: "document", Message: "empty configuration document"}
	}
	if err := e.UpsertCatalog(ctx, doc.Resources, doc.Categories); err != nil {
		return err
	}
	return e.UpsertClients(ctx, doc.Clients)
}

// ImportConsumptions parses a consumption document and appends every valid
// record.
func (e *Engine) ImportConsumptions(ctx context.Context, r io.Reader, format ingest.Format) (*ImportResult, error) {
	recs, counts, err := ingest.ParseConsumptions(r, format)
	if err != nil {
		return nil, validationError(err)
	}

	if _, err := e.RecordConsumptions(ctx, recs); err != nil {
		return nil, err
	}

	e.logger.Info("consumptions imported",
		"consumptions", counts.Consumptions,
		"rejected", counts.RejectedConsumptions,
	)

	return &ImportResult{Counts: counts}, nil
}

// validationError maps decoder and validator failures onto ValidationError.
func validationError(err error) error {
	var ie *ingest.Error
	if errors.As(err, &ie) {
		return ValidationError{Field: ie.Field, Message: ie.Message}
	}
	return ValidationError{Field: "document", Message: fmt.Sprint(err)}
}
