package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Manager handles schema versioning.
type Manager struct{}

const latestVersion = 2

func (m Manager) ensureTable(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (version INTEGER NOT NULL);`)
	if err != nil {
		return err
	}
	// initialize row if empty
	var cnt int
	_ = db.QueryRowContext(ctx, `SELECT COUNT(1) FROM schema_migrations`).Scan(&cnt)
	if cnt == 0 {
		_, err = db.ExecContext(ctx, `INSERT INTO schema_migrations(version) VALUES(0)`)
	}
	return err
}

// Version returns the applied schema version.
func (m Manager) Version(ctx context.Context, db *sql.DB) (int, error) {
	if err := m.ensureTable(ctx, db); err != nil {
		return 0, err
	}
	var v int
	if err := db.QueryRowContext(ctx, `SELECT version FROM schema_migrations`).Scan(&v); err != nil {
		return 0, err
	}
	return v, nil
}

func (m Manager) setVersion(ctx context.Context, db *sql.DB, v int) error {
	_, err := db.ExecContext(ctx, `UPDATE schema_migrations SET version=?`, v)
	return err
}

// UpToLatest applies migrations to reach latestVersion.
func (m Manager) UpToLatest(ctx context.Context, db *sql.DB) error {
	cur, err := m.Version(ctx, db)
	if err != nil {
		return err
	}
	for v := cur + 1; v <= latestVersion; v++ {
		if err := m.up(ctx, db, v); err != nil {
			return fmt.Errorf("migrate up to v%d: %w", v, err)
		}
		if err := m.setVersion(ctx, db, v); err != nil {
			return err
		}
	}
	return nil
}

// DownOne attempts to roll back the last migration if supported.
func (m Manager) DownOne(ctx context.Context, db *sql.DB) error {
	cur, err := m.Version(ctx, db)
	if err != nil {
		return err
	}
	if cur <= 0 {
		return nil
	}
	if err := m.down(ctx, db, cur); err != nil {
		return err
	}
	return m.setVersion(ctx, db, cur-1)
}

func (m Manager) up(ctx context.Context, db *sql.DB, v int) error {
	switch v {
	case 1:
		return (Migrator{}).Up(ctx, db)
	case 2:
		// per-provider split of the endpoint counters
		stmts := []string{
			`CREATE TABLE IF NOT EXISTS endpoint_provider (
                endpoint TEXT NOT NULL,
                provider TEXT NOT NULL,
                calls INTEGER NOT NULL DEFAULT 0,
                PRIMARY KEY (endpoint, provider)
            );`,
		}
		for i, s := range stmts {
			if _, err := db.ExecContext(ctx, s); err != nil {
				return fmt.Errorf("v2 step %d: %w", i, err)
			}
		}
		return nil
	default:
		return fmt.Errorf("unknown migration version %d", v)
	}
}

func (m Manager) down(ctx context.Context, db *sql.DB, v int) error {
	switch v {
	case 2:
		_, err := db.ExecContext(ctx, `DROP TABLE IF EXISTS endpoint_provider;`)
		return err
	case 1:
		return errors.New("down from v1 not supported")
	default:
		return fmt.Errorf("unknown migration version %d", v)
	}
}
