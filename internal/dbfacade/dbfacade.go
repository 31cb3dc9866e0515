// Package dbfacade is the DB facade (C1): a thin wrapper over a tuned
// pgxpool.Pool exposing execute/query/query_opt plus a raw acquire for
// callers that need several statements on one borrowed connection.
//
// Grounded on the teacher's internal/store/postgres.go pool construction
// and ping/schema bootstrap sequencing.
package dbfacade

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Facade wraps a pgxpool.Pool with nino's positional-parameter query
// surface. No retry logic; transient errors bubble to the caller.
type Facade struct {
	pool *pgxpool.Pool
}

// Open connects to dsn and builds a pool sized to poolSize (0 leaves the
// pgx default, which callers override before calling Open using
// PoolSizeOrDefault).
func Open(ctx context.Context, dsn string, poolSize int) (*Facade, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("dbfacade: parse dsn: %w", err)
	}
	if poolSize > 0 {
		cfg.MaxConns = int32(poolSize)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("dbfacade: open pool: %w", err)
	}

	f := &Facade{pool: pool}
	if err := f.ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return f, nil
}

func (f *Facade) ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := f.pool.Ping(ctx); err != nil {
		return fmt.Errorf("dbfacade: ping: %w", err)
	}
	return nil
}

// PoolSizeOrDefault implements §4.1's "defaulting to serving_threads +
// script_threads when unset" rule.
func PoolSizeOrDefault(configured, servingThreads, scriptThreads int) int {
	if configured > 0 {
		return configured
	}
	return servingThreads + scriptThreads
}

// Pool exposes the underlying pool for components (notifybus, txsession)
// that need raw pgx access rather than the facade's narrower surface.
func (f *Facade) Pool() *pgxpool.Pool { return f.pool }

// Execute runs sql with positional params and returns the affected row
// count.
func (f *Facade) Execute(ctx context.Context, sql string, params ...any) (int64, error) {
	tag, err := f.pool.Exec(ctx, sql, params...)
	if err != nil {
		return 0, fmt.Errorf("dbfacade: execute: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Query runs sql with positional params and returns every matched row.
func (f *Facade) Query(ctx context.Context, sql string, params ...any) (pgx.Rows, error) {
	rows, err := f.pool.Query(ctx, sql, params...)
	if err != nil {
		return nil, fmt.Errorf("dbfacade: query: %w", err)
	}
	return rows, nil
}

// QueryOpt runs sql and returns a single row, or (nil, nil) if there is no
// match.
func (f *Facade) QueryOpt(ctx context.Context, sql string, params ...any) (pgx.Rows, error) {
	rows, err := f.Query(ctx, sql, params...)
	if err != nil {
		return nil, err
	}
	if !rows.Next() {
		rows.Close()
		return nil, nil
	}
	return rows, nil
}

// Acquire returns a borrowed connection for callers that need several
// statements to share one connection (e.g. a bootstrap script run
// statement-by-statement).
func (f *Facade) Acquire(ctx context.Context) (*pgxpool.Conn, error) {
	conn, err := f.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("dbfacade: acquire: %w", err)
	}
	return conn, nil
}

// Close releases the pool.
func (f *Facade) Close() {
	f.pool.Close()
}
