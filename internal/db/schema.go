package db

import (
	"context"
	"fmt"
)

// schema holds the DDL per driver; postgres stores documents as jsonb.
var schema = map[string][]string{
	DriverPostgres: {
		`CREATE TABLE IF NOT EXISTS campaigns (
            id            UUID PRIMARY KEY,
            tenant        TEXT NOT NULL,
            product       TEXT NOT NULL DEFAULT '',
            icp           TEXT NOT NULL DEFAULT '',
            tone          TEXT NOT NULL DEFAULT '',
            description   TEXT NOT NULL DEFAULT '',
            template_type TEXT NOT NULL DEFAULT '',
            content_types JSONB,
            status        TEXT NOT NULL,
            workflow_id   TEXT,
            analysis      JSONB,
            calendar      JSONB,
            error_message TEXT,
            created_at    TIMESTAMPTZ NOT NULL,
            updated_at    TIMESTAMPTZ NOT NULL,
            published_at  TIMESTAMPTZ
        )`,
		`CREATE INDEX IF NOT EXISTS idx_campaigns_tenant ON campaigns (tenant, created_at DESC)`,
		`CREATE TABLE IF NOT EXISTS campaign_events (
            id          UUID PRIMARY KEY,
            campaign_id UUID NOT NULL,
            type        TEXT NOT NULL,
            stage       TEXT,
            message     TEXT NOT NULL DEFAULT '',
            payload     JSONB,
            seq         BIGINT NOT NULL,
            timestamp   TIMESTAMPTZ NOT NULL,
            UNIQUE (campaign_id, seq)
        )`,
	},
	DriverSQLite: {
		`CREATE TABLE IF NOT EXISTS campaigns (
            id            TEXT PRIMARY KEY,
            tenant        TEXT NOT NULL,
            product       TEXT NOT NULL DEFAULT '',
            icp           TEXT NOT NULL DEFAULT '',
            tone          TEXT NOT NULL DEFAULT '',
            description   TEXT NOT NULL DEFAULT '',
            template_type TEXT NOT NULL DEFAULT '',
            content_types TEXT,
            status        TEXT NOT NULL,
            workflow_id   TEXT,
            analysis      TEXT,
            calendar      TEXT,
            error_message TEXT,
            created_at    TIMESTAMP NOT NULL,
            updated_at    TIMESTAMP NOT NULL,
            published_at  TIMESTAMP
        )`,
		`CREATE INDEX IF NOT EXISTS idx_campaigns_tenant ON campaigns (tenant, created_at DESC)`,
		`CREATE TABLE IF NOT EXISTS campaign_events (
            id          TEXT PRIMARY KEY,
            campaign_id TEXT NOT NULL,
            type        TEXT NOT NULL,
            stage       TEXT,
            message     TEXT NOT NULL DEFAULT '',
            payload     TEXT,
            seq         INTEGER NOT NULL,
            timestamp   TIMESTAMP NOT NULL,
            UNIQUE (campaign_id, seq)
        )`,
	},
}

// Migrate creates the tables if they do not exist.
func (c *Client) Migrate(ctx context.Context) error {
	stmts, ok := schema[c.driver]
	if !ok {
		return fmt.Errorf("no schema for driver %q", c.driver)
	}
	for _, stmt := range stmts {
		if _, err := c.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
