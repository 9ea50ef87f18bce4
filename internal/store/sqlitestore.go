package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	sqlm "mcpd/internal/storage/sqlite"
)

// MemoryDSN keeps the ledger inside the process; nothing survives a restart.
const MemoryDSN = ":memory:"

// SQLite is the SQL-backed Ledger.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens the ledger database and brings its schema up to date.
// An empty dsn means MemoryDSN.
func NewSQLite(ctx context.Context, dsn string) (*SQLite, error) {
	if dsn == "" {
		dsn = MemoryDSN
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// every :memory: connection is its own database
	db.SetMaxOpenConns(1)
	if err := (sqlm.Manager{}).UpToLatest(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLite{db: db}, nil
}

// Open returns the SQLite ledger, or the map ledger when SQLite is unavailable.
func Open(ctx context.Context, dsn string) (Ledger, error) {
	s, err := NewSQLite(ctx, dsn)
	if err != nil {
		return NewMem(), fmt.Errorf("sqlite ledger unavailable: %w", err)
	}
	return s, nil
}

// WithTx commits on nil error and rolls back otherwise.
func (s *SQLite) WithTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func b2i(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (s *SQLite) Record(ctx context.Context, u Usage) error {
	if err := validate(&u); err != nil {
		return err
	}
	at := u.At.UTC().Format(time.RFC3339Nano)
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO endpoint_usage(endpoint, calls, tokens, errors, cache_hits, first_used_at, last_used_at)
            VALUES(?, 1, ?, ?, ?, ?, ?)
            ON CONFLICT(endpoint) DO UPDATE SET
                calls = calls + 1,
                tokens = tokens + excluded.tokens,
                errors = errors + excluded.errors,
                cache_hits = cache_hits + excluded.cache_hits,
                last_used_at = excluded.last_used_at`,
			u.Endpoint, u.Tokens, b2i(u.Error), b2i(u.Cached), at, at)
		if err != nil {
			return fmt.Errorf("record usage: %w", err)
		}
		if u.Cached || u.Provider == "" {
			return nil
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO endpoint_provider(endpoint, provider, calls) VALUES(?, ?, 1)
            ON CONFLICT(endpoint, provider) DO UPDATE SET calls = calls + 1`, u.Endpoint, u.Provider)
		if err != nil {
			return fmt.Errorf("record provider usage: %w", err)
		}
		return nil
	})
}

func (s *SQLite) Snapshot(ctx context.Context) (map[string]EndpointUsage, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT endpoint, calls, tokens, errors, cache_hits, first_used_at, last_used_at FROM endpoint_usage`)
	if err != nil {
		return nil, err
	}
	out := make(map[string]EndpointUsage)
	for rows.Next() {
		var (
			name        string
			u           EndpointUsage
			first, last string
		)
		if err := rows.Scan(&name, &u.Calls, &u.Tokens, &u.Errors, &u.CacheHits, &first, &last); err != nil {
			rows.Close()
			return nil, err
		}
		u.FirstUsedAt, _ = time.Parse(time.RFC3339Nano, first)
		u.LastUsedAt, _ = time.Parse(time.RFC3339Nano, last)
		out[name] = u
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	prows, err := s.db.QueryContext(ctx, `SELECT endpoint, provider, calls FROM endpoint_provider`)
	if err != nil {
		return nil, err
	}
	defer prows.Close()
	for prows.Next() {
		var (
			name, provider string
			calls          int
		)
		if err := prows.Scan(&name, &provider, &calls); err != nil {
			return nil, err
		}
		u, ok := out[name]
		if !ok {
			continue
		}
		if u.Providers == nil {
			u.Providers = make(map[string]int)
		}
		u.Providers[provider] = calls
		out[name] = u
	}
	return out, prows.Err()
}

func (s *SQLite) Close() error { return s.db.Close() }
