// Package cloudbill provides a billing engine for rented cloud
// infrastructure.
//
// Cloudbill is designed as a library, not a service. Import it into your Go
// application, or run the cloudbill command for an HTTP API and CLI over the
// same engine. It provides:
//
//   - A catalog of resources priced per hour, grouped into category
//     configurations
//   - Clients identified by NIT, each renting configuration instances
//   - Append-only consumption records with positional ids
//   - Invoice generation per client over an inclusive date range, numbered
//     FAC-000001 onwards, never billing a consumption twice
//   - Sales analysis by category configuration or by resource
//   - PDF invoices and sales reports
//
// # Quick Start
//
// Create an engine with your preferred store:
//
//	import (
//	    "github.com/xraph/cloudbill"
//	    "github.com/xraph/cloudbill/store/file"
//	)
//
//	// Initialize store
//	store, err := file.New("data/cloudbill.json")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Create engine
//	engine := cloudbill.New(store)
//
//	// Start the engine (migrates the store)
//	if err := engine.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer engine.Stop()
//
// # Core Concepts
//
// The configuration document loads resources, categories and clients:
//
//	result, err := engine.ImportConfiguration(ctx, r, ingest.FormatXML)
//
// Consumptions record hours used by a client's instance:
//
//	c, err := engine.RecordConsumption(ctx, consumption.Record{
//	    NIT:        "12345-6",
//	    InstanceID: 1,
//	    TimeHours:  decimal.NewFromInt(10),
//	    DateTime:   "05/01/2024 10:30",
//	})
//
// Invoices bill every unbilled consumption in a date range:
//
//	invoices, err := engine.GenerateInvoices(ctx, "01/01/2024", "31/01/2024")
//
// Running the same range again returns no invoices: each consumption is
// billed at most once.
//
// # Money
//
// Amounts are exact decimals (shopspring/decimal). A line costs
// quantity × value per hour × hours, and nothing is rounded until it is
// displayed.
//
// # Storage
//
// Backends live under store/: memory, file (a JSON document on disk),
// postgres, sqlite and mongo. The SQL and Mongo backends use grove.
//
// # TypeID
//
// Invoices and generation runs also carry TypeIDs:
//
//	inv_01h455vb4pex5vsknk084sn02q  // Invoice ID
//	run_01h455vb4pex5vsknk084sn02q  // Generation run ID
package cloudbill
