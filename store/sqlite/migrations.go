package sqlite

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the cloudbill store (SQLite).
var Migrations = migrate.NewGroup("cloudbill")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_cloudbill_catalog",
			Version: "20240101000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS cloudbill_resources (
    id             INTEGER PRIMARY KEY,
    position       INTEGER NOT NULL,
    name           TEXT NOT NULL DEFAULT '',
    abbreviation   TEXT NOT NULL DEFAULT '',
    metric         TEXT NOT NULL DEFAULT '',
    type           TEXT NOT NULL DEFAULT '',
    value_per_hour TEXT NOT NULL DEFAULT '0',
    created_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS cloudbill_categories (
    id             INTEGER PRIMARY KEY,
    position       INTEGER NOT NULL,
    name           TEXT NOT NULL DEFAULT '',
    description    TEXT NOT NULL DEFAULT '',
    workload       TEXT NOT NULL DEFAULT '',
    configurations TEXT NOT NULL DEFAULT '[]',
    created_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_cloudbill_resources_position ON cloudbill_resources (position);
CREATE INDEX IF NOT EXISTS idx_cloudbill_categories_position ON cloudbill_categories (position);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
DROP TABLE IF EXISTS cloudbill_categories;
DROP TABLE IF EXISTS cloudbill_resources;
`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_cloudbill_clients",
			Version: "20240101000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS cloudbill_clients (
    nit        TEXT PRIMARY KEY,
    position   INTEGER NOT NULL,
    name       TEXT NOT NULL DEFAULT '',
    username   TEXT NOT NULL DEFAULT '',
    password   TEXT NOT NULL DEFAULT '',
    address    TEXT NOT NULL DEFAULT '',
    email      TEXT NOT NULL DEFAULT '',
    instances  TEXT NOT NULL DEFAULT '[]',
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_cloudbill_clients_position ON cloudbill_clients (position);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS cloudbill_clients`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_cloudbill_consumptions",
			Version: "20240101000003",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS cloudbill_consumptions (
    id          INTEGER PRIMARY KEY,
    nit         TEXT NOT NULL DEFAULT '',
    instance_id INTEGER NOT NULL DEFAULT 0,
    time_hours  TEXT NOT NULL DEFAULT '0',
    date_time   TEXT NOT NULL DEFAULT '',
    billed      INTEGER NOT NULL DEFAULT 0,
    recorded_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_cloudbill_consumptions_unbilled ON cloudbill_consumptions (id) WHERE billed = 0;
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS cloudbill_consumptions`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_cloudbill_invoices",
			Version: "20240101000004",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS cloudbill_invoices (
    number          TEXT PRIMARY KEY,
    seq             INTEGER NOT NULL,
    id              TEXT NOT NULL DEFAULT '',
    client_nit      TEXT NOT NULL DEFAULT '',
    issue_date      TEXT NOT NULL DEFAULT '',
    period_start    TEXT NOT NULL DEFAULT '',
    total           TEXT NOT NULL DEFAULT '0',
    consumption_ids TEXT NOT NULL DEFAULT '[]',
    run_id          TEXT NOT NULL DEFAULT '',
    details         TEXT NOT NULL DEFAULT '[]',
    created_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_cloudbill_invoices_seq ON cloudbill_invoices (seq);
CREATE INDEX IF NOT EXISTS idx_cloudbill_invoices_client ON cloudbill_invoices (client_nit, seq);
CREATE INDEX IF NOT EXISTS idx_cloudbill_invoices_run ON cloudbill_invoices (run_id);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS cloudbill_invoices`)
				return err
			},
		},
	)
}
