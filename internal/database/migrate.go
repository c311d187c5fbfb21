package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

// Migrator is the subset of a pgx pool needed to bootstrap the schema.
type Migrator interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// column describes a column introduced after a table's first release.
type column struct {
	Table      string
	Name       string
	Definition string
}

var baseTables = []string{
	`CREATE TABLE IF NOT EXISTS prospects (
        id BIGSERIAL PRIMARY KEY,
        first_name TEXT NOT NULL DEFAULT '',
        last_name TEXT NOT NULL DEFAULT '',
        email TEXT NOT NULL UNIQUE,
        linkedin_url TEXT,
        raw_payload JSONB,
        status TEXT NOT NULL DEFAULT 'pending',
        attempts INTEGER NOT NULL DEFAULT 0,
        send_at TIMESTAMPTZ NOT NULL,
        created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
        sent_at TIMESTAMPTZ,
        error TEXT
    )`,
	`CREATE TABLE IF NOT EXISTS routing (
        email TEXT PRIMARY KEY,
        pain_profile TEXT NOT NULL DEFAULT '',
        company TEXT NOT NULL DEFAULT '',
        first_name TEXT NOT NULL DEFAULT '',
        last_name TEXT NOT NULL DEFAULT '',
        updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
    )`,
	`CREATE TABLE IF NOT EXISTS leads (
        email TEXT PRIMARY KEY,
        first_name TEXT NOT NULL DEFAULT '',
        last_name TEXT NOT NULL DEFAULT '',
        linkedin_url TEXT NOT NULL DEFAULT '',
        company TEXT NOT NULL DEFAULT '',
        created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
        updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
    )`,
}

// Columns added on top of the base tables. Append only.
var additiveColumns = []column{
	{Table: "prospects", Name: "company", Definition: "TEXT NOT NULL DEFAULT ''"},
	{Table: "prospects", Name: "campaign_id", Definition: "TEXT"},
	{Table: "prospects", Name: "pain_profile", Definition: "TEXT"},
	{Table: "prospects", Name: "phone", Definition: "TEXT NOT NULL DEFAULT ''"},
	{Table: "leads", Name: "phone", Definition: "TEXT NOT NULL DEFAULT ''"},
	{Table: "prospects", Name: "payload", Definition: "BYTEA"},
	{Table: "prospects", Name: "heyreach_campaign_id", Definition: "TEXT"},
	{Table: "prospects", Name: "heyreach_campaign_name", Definition: "TEXT"},
}

var indexes = []string{
	`CREATE INDEX IF NOT EXISTS idx_prospects_due ON prospects (status, send_at)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_leads_linkedin ON leads (linkedin_url) WHERE linkedin_url <> ''`,
	`CREATE INDEX IF NOT EXISTS idx_leads_name ON leads (LOWER(first_name), LOWER(last_name))`,
	`CREATE INDEX IF NOT EXISTS idx_routing_profile ON routing (pain_profile)`,
}

const columnExistsSQL = `
        SELECT EXISTS (
            SELECT 1 FROM information_schema.columns
            WHERE table_schema = current_schema() AND table_name = $1 AND column_name = $2
        )`

// Migrate creates missing tables, then adds each later column only if it is absent.
func Migrate(ctx context.Context, db Migrator, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}

	for _, stmt := range baseTables {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}

	for _, col := range additiveColumns {
		var exists bool
		if err := db.QueryRow(ctx, columnExistsSQL, col.Table, col.Name).Scan(&exists); err != nil {
			return fmt.Errorf("inspect column %s.%s: %w", col.Table, col.Name, err)
		}
		if exists {
			continue
		}

		stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", col.Table, col.Name, col.Definition)
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("add column %s.%s: %w", col.Table, col.Name, err)
		}
		logger.Info("schema column added", zap.String("table", col.Table), zap.String("column", col.Name))
	}

	for _, stmt := range indexes {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}

	return nil
}
