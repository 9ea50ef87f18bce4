package sqlite

import (
	"context"
	"database/sql"
	"fmt"
)

// Migrator applies the base ledger schema. Caller provides opened *sql.DB.
type Migrator struct{}

func (m Migrator) Up(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS endpoint_usage (
            endpoint TEXT PRIMARY KEY,
            calls INTEGER NOT NULL DEFAULT 0,
            tokens INTEGER NOT NULL DEFAULT 0,
            errors INTEGER NOT NULL DEFAULT 0,
            cache_hits INTEGER NOT NULL DEFAULT 0,
            first_used_at TEXT NOT NULL,
            last_used_at TEXT NOT NULL
        );`,
	}
	for i, s := range stmts {
		if _, err := db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("migrate step %d: %w", i, err)
		}
	}
	return nil
}
